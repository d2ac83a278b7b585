package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeTypeClassification(t *testing.T) {
	assert.True(t, EdgeDerivedFrom.IsSupport())
	assert.True(t, EdgeConfirmedBy.IsSupport())
	assert.False(t, EdgeViolatedBy.IsSupport())
	assert.False(t, EdgeSupersedes.IsSupport())

	assert.True(t, EdgeViolatedBy.IsContradiction())
	assert.False(t, EdgeDerivedFrom.IsContradiction())
	assert.False(t, EdgeConfirmedBy.IsContradiction())
}

func TestMergeStrength(t *testing.T) {
	assert.InDelta(t, 0.7, MergeStrength(0.5, 0.2), 1e-9)
	assert.InDelta(t, 1.0, MergeStrength(0.9, 0.5), 1e-9)
	assert.InDelta(t, 0.0, MergeStrength(0.1, -0.5), 1e-9)
}
