package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdictDTO struct {
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
}

func TestExtractJSONObjectPlain(t *testing.T) {
	var v verdictDTO
	err := extractJSONObject(`{"relation":"contradicts","confidence":0.9}`, &v)
	require.NoError(t, err)
	assert.Equal(t, "contradicts", v.Relation)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)
}

func TestExtractJSONObjectWrappedInProseAndFence(t *testing.T) {
	var v verdictDTO
	raw := "Here is my answer:\n```json\n{\"relation\":\"confirms\",\"confidence\":0.75}\n```\nLet me know if you need more."
	err := extractJSONObject(raw, &v)
	require.NoError(t, err)
	assert.Equal(t, "confirms", v.Relation)
}

func TestExtractJSONObjectNestedBraces(t *testing.T) {
	var v map[string]any
	err := extractJSONObject(`{"relation":"confirms","meta":{"nested":true}}`, &v)
	require.NoError(t, err)
	assert.Equal(t, "confirms", v["relation"])
}

func TestExtractJSONObjectNoObjectFound(t *testing.T) {
	var v verdictDTO
	err := extractJSONObject("no json here", &v)
	assert.Error(t, err)
}

func TestExtractJSONObjectUnbalanced(t *testing.T) {
	var v verdictDTO
	err := extractJSONObject(`{"relation":"confirms"`, &v)
	assert.Error(t, err)
}
