package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

func roster(names ...string) []*domain.TrustedIdentity {
	out := make([]*domain.TrustedIdentity, 0, len(names))
	for i, name := range names {
		out = append(out, &domain.TrustedIdentity{
			Name:       name,
			Embeddings: [][]float64{{float64(i), 0, 0}},
		})
	}
	return out
}

func TestResolveEmptyRoster(t *testing.T) {
	r := New(0.4)

	verdict := r.Resolve(nil, []float64{1, 2, 3})

	assert.False(t, verdict.IsTrusted)
	assert.Empty(t, verdict.MatchedName)
}

func TestResolveEmptyEmbedding(t *testing.T) {
	r := New(0.4)

	verdict := r.Resolve(roster("alice"), nil)

	assert.False(t, verdict.IsTrusted)
}

func TestResolveExactMatch(t *testing.T) {
	r := New(0.4)

	verdict := r.Resolve(roster("alice", "bob"), []float64{1, 0, 0})

	assert.True(t, verdict.IsTrusted)
	assert.Equal(t, "bob", verdict.MatchedName)
	assert.InDelta(t, 1.0, verdict.Confidence, 1e-9)
}

func TestResolveBeyondThreshold(t *testing.T) {
	r := New(0.4)

	// Nearest roster embedding is 1.0 away, well past the threshold.
	verdict := r.Resolve(roster("alice"), []float64{1, 0, 0})

	assert.False(t, verdict.IsTrusted)
	assert.Empty(t, verdict.MatchedName, "below-threshold matches must not leak a name")
}

func TestResolveNearestNeighborWins(t *testing.T) {
	r := New(0.5)

	ids := []*domain.TrustedIdentity{
		{Name: "far", Embeddings: [][]float64{{3, 0, 0}}},
		{Name: "near", Embeddings: [][]float64{{0.1, 0, 0}}},
	}

	verdict := r.Resolve(ids, []float64{0, 0, 0})

	assert.True(t, verdict.IsTrusted)
	assert.Equal(t, "near", verdict.MatchedName)
}

func TestResolveTieKeepsFirstEnrolled(t *testing.T) {
	r := New(0.5)

	ids := []*domain.TrustedIdentity{
		{Name: "first", Embeddings: [][]float64{{0.1, 0, 0}}},
		{Name: "second", Embeddings: [][]float64{{-0.1, 0, 0}}},
	}

	verdict := r.Resolve(ids, []float64{0, 0, 0})

	assert.Equal(t, "first", verdict.MatchedName)
}

func TestResolveSkipsMismatchedDimensions(t *testing.T) {
	r := New(0.5)

	ids := []*domain.TrustedIdentity{
		{Name: "ragged", Embeddings: [][]float64{{0, 0}}},
		{Name: "ok", Embeddings: [][]float64{{0.1, 0, 0}}},
	}

	verdict := r.Resolve(ids, []float64{0, 0, 0})

	assert.Equal(t, "ok", verdict.MatchedName)
}

func TestResolveDeterministic(t *testing.T) {
	r := New(0.4)
	ids := roster("alice", "bob", "carol")
	probe := []float64{1.2, 0.1, -0.3}

	first := r.Resolve(ids, probe)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Resolve(ids, probe))
	}
}
