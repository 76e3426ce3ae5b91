package resolve

import (
	"math"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

// distanceTolerance is the float slack under which two distances count as a
// tie. Ties resolve to the identity enrolled first.
const distanceTolerance = 1e-9

// Resolver matches face embeddings against the trusted roster.
//
// Resolve is pure: the same embedding against the same roster always yields
// the same verdict, and the resolver never mutates the roster it reads.
type Resolver struct {
	// threshold is the maximum embedding distance still considered a match.
	threshold float64
}

func New(threshold float64) *Resolver {
	return &Resolver{threshold: threshold}
}

// Resolve finds the globally closest roster embedding (nearest neighbor
// across every embedding of every identity, not a per-identity average) and
// converts its distance to a similarity confidence.
//
// An empty roster, an empty embedding, or a roster whose entries are all
// malformed yields the unknown verdict; Resolve never errors.
func (r *Resolver) Resolve(roster []*domain.TrustedIdentity, embedding []float64) domain.IdentityVerdict {
	if len(embedding) == 0 || len(roster) == 0 {
		return domain.IdentityVerdict{}
	}

	bestName := ""
	bestDistance := math.Inf(1)

	for _, identity := range roster {
		for _, stored := range identity.Embeddings {
			// Malformed stored embeddings are skipped, not fatal.
			if len(stored) != len(embedding) {
				continue
			}
			d := euclidean(embedding, stored)
			if d+distanceTolerance < bestDistance {
				bestDistance = d
				bestName = identity.Name
			}
		}
	}

	if bestName == "" {
		return domain.IdentityVerdict{}
	}

	confidence := 1.0 - bestDistance
	if confidence < 0 {
		confidence = 0
	}

	if bestDistance >= r.threshold {
		// Too far from everyone: report the confidence but no identity.
		return domain.IdentityVerdict{Confidence: confidence}
	}

	return domain.IdentityVerdict{
		MatchedName: bestName,
		Confidence:  confidence,
		IsTrusted:   true,
	}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
