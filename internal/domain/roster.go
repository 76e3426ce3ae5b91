package domain

import "time"

// TrustedIdentity is one enrolled person: a unique name plus the face
// embeddings captured during enrollment. The roster is only ever mutated
// through an enrollment commit, never while an encounter is open.
type TrustedIdentity struct {
	Name       string
	Embeddings [][]float64
	EnrolledAt time.Time
}

// FaceObservation is a single per-frame signal from the vision collaborator.
// It is consumed immediately by the resolver and not retained.
type FaceObservation struct {
	Embedding []float64
	Timestamp time.Time
}

// IdentityVerdict is the resolver's answer for one observation. It is derived,
// never stored: the same embedding against the same roster always yields the
// same verdict.
//
// Confidence is a similarity score in [0,1] (1 = exact match on the distance
// scale). IsTrusted holds iff the closest roster embedding is nearer than the
// configured recognition threshold.
type IdentityVerdict struct {
	MatchedName string
	Confidence  float64
	IsTrusted   bool
}
