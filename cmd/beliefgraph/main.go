// Command beliefgraph runs the belief-graph engine as a long-lived process:
// it wires storage, the embedding/judge gateway, and the engine together,
// starts the periodic full-graph propagation and resolution-sweep jobs, and
// waits for a termination signal to shut down cleanly.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beliefgraph/core"
	"github.com/beliefgraph/core/internal/infrastructure/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	var memStore = flag.Bool("memory-store", false, "use the in-memory store instead of Postgres (demo/smoke-test mode)")
	flag.Parse()

	cfg, err := beliefgraph.LoadConfig()
	if err != nil {
		// logger isn't set up yet; this is the one place we fall back to
		// the default process stderr.
		os.Stderr.WriteString("loading configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Bool("memory_store", *memStore).
		Str("dsn", maskDSN(cfg.DatabaseDSN)).
		Msg("starting beliefgraph engine")

	var store beliefgraph.Storage
	if *memStore {
		store = beliefgraph.NewMemoryStorage()
	} else {
		store, err = beliefgraph.NewPostgresStorage(cfg.DatabaseDSN, cfg.LogLevel == "debug")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize storage")
		}
	}

	gw := beliefgraph.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.JudgeModel)

	if cfg.RedisURL != "" {
		if _, err := redis.ParseURL(cfg.RedisURL); err != nil {
			log.Warn().Err(err).Msg("invalid redis url, continuing without a wake channel")
		}
	}

	engine := beliefgraph.New(store, gw, cfg)

	scheduler := beliefgraph.NewScheduler(engine, cfg.FullGraphInterval, cfg.ResolutionSweep)
	scheduler.Start()
	log.Info().
		Dur("full_graph_interval", cfg.FullGraphInterval).
		Dur("resolution_sweep", cfg.ResolutionSweep).
		Msg("scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownDone := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info().Msg("shut down cleanly")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timed out waiting for in-flight jobs")
	}
}

// maskDSN replaces a DSN's password component with *** so connection
// strings are safe to log.
func maskDSN(dsn string) string {
	start, end := -1, -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' && start == -1 && i+1 < len(dsn) && dsn[i+1] != '/' {
			start = i + 1
		}
		if dsn[i] == '@' && start != -1 {
			end = i
			break
		}
	}
	if start != -1 && end != -1 && end > start {
		return dsn[:start] + "***" + dsn[end:]
	}
	return dsn
}
