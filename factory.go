package beliefgraph

import (
	"context"
	"fmt"

	"github.com/beliefgraph/core/internal/application/engine"
	"github.com/beliefgraph/core/internal/config"
	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/infrastructure/gateway"
	"github.com/beliefgraph/core/internal/infrastructure/storage"
)

// Storage is the persistence contract the engine runs against: the
// relational store plus the three logical vector indexes.
type Storage = domain.Storage

// Gateway is the embedding + judge oracle the engine calls through.
type Gateway = gateway.Gateway

// NewMemoryStorage creates an in-process, map-backed storage suitable for
// tests and the standalone/demo path. No external services required.
func NewMemoryStorage() Storage {
	return storage.NewMemoryStore()
}

// NewPostgresStorage opens a Postgres-backed storage against dsn and
// initializes its schema if it does not already exist. debug enables
// per-query logging.
func NewPostgresStorage(dsn string, debug bool) (Storage, error) {
	store := storage.NewBunStore(dsn, debug)
	if err := store.InitSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

// NewOpenAIGateway builds a Gateway backed by the OpenAI embeddings and
// chat completion APIs.
func NewOpenAIGateway(apiKey, baseURL, embeddingModel, judgeModel string) Gateway {
	return gateway.NewOpenAIGateway(apiKey, baseURL, embeddingModel, judgeModel)
}

// NewFakeGateway builds a deterministic, in-process Gateway for tests.
func NewFakeGateway() Gateway {
	return gateway.NewFakeGateway()
}

// New wires store and gw into a fully configured Engine using cfg's
// tunables.
func New(store Storage, gw Gateway, cfg *config.Config) *Engine {
	return engine.New(store, gw, cfg)
}

// LoadConfig loads configuration from the environment, applying defaults
// and bounds validation.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}

// DefaultConfig returns the engine's baseline configuration without
// reading the environment.
func DefaultConfig() *config.Config {
	return config.Default()
}
