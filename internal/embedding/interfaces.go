// Package embedding defines the narrow interface the indexing core consumes
// to turn text into vectors, and a small set of concrete providers. The
// core never depends on a specific provider's wire format; it only depends
// on Provider.
package embedding

import "context"

// Profile identifies the provider+model fingerprint that produced a set of
// vectors. Distinct profiles are routed to distinct on-disk databases (C5)
// so vectors of different dimension never collide.
type Profile struct {
	Provider       string
	Model          string
	Dim            int
	DatabaseSuffix string
}

// Provider is the narrow interface the storage and search layers consume
// for turning text into vectors. Implementations embed documents (indexing
// time) and queries (search time) into the same vector space; both return
// a fixed-dimension vector as declared by Profile().
type Provider interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Profile() Profile
}
