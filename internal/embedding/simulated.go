package embedding

import (
	"context"
	"crypto/sha256"
	"math"
)

// SimulatedWarningHeader is the marker text for simulated-embedding output.
// The provider does not attach it to the vectors it returns; a simulated
// vector is identified by its embedding_model matching Profile().Model.
const SimulatedWarningHeader = "SIMULATED-EMBEDDING: "

// SimulatedProvider deterministically hashes text into a unit vector of the
// configured dimension. It exists so the engine can run end-to-end (tests,
// offline demos, or a real provider being temporarily unreachable) without a
// live embedding backend. Its output must never be mistaken for a real
// embedding at search time — callers are expected to check the
// embedding_model field against this provider's Profile().Model.
type SimulatedProvider struct {
	dim   int
	model string
}

// NewSimulatedProvider returns a provider producing vectors of dimension dim.
func NewSimulatedProvider(dim int) *SimulatedProvider {
	if dim <= 0 {
		dim = 768
	}
	return &SimulatedProvider{dim: dim, model: "simulated-sha256"}
}

func (p *SimulatedProvider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return p.hashVector(text), nil
}

func (p *SimulatedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.hashVector(text), nil
}

func (p *SimulatedProvider) Profile() Profile {
	return Profile{Provider: "simulated", Model: p.model, Dim: p.dim, DatabaseSuffix: "simulated"}
}

// hashVector expands a SHA-256 digest of text into dim float32s in [-1, 1]
// and L2-normalizes the result so cosine-similarity math behaves sanely.
func (p *SimulatedProvider) hashVector(text string) []float32 {
	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, p.dim)
	var sumSq float64
	for i := 0; i < p.dim; i++ {
		b := seed[i%len(seed)]
		shifted := byte(int(b) + i*31)
		v := (float64(shifted)/255.0)*2 - 1
		vec[i] = float32(v)
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

var _ Provider = (*SimulatedProvider)(nil)
