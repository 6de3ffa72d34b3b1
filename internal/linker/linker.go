// Package linker implements the related-memory linker (C10): after a memory
// is embedded, it finds the nearest neighbors by vector similarity and
// persists them as a flat {id,similarity} list on the source memory.
package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/memento-index/memento/internal/pathsafety"
	"github.com/memento-index/memento/pkg/types"
)

// maxExcerptChars bounds how much of a memory's content is embedded purely
// for relatedness linking, keeping the linker's embedding call cheap.
const maxExcerptChars = 1000

// MinSimilarity is the floor (0-100 cosine similarity) below which a
// neighbor is not considered related.
const MinSimilarity = 75.0

// MaxRelated is the number of related memories kept per source memory.
const MaxRelated = 5

// Embedder embeds text for linking purposes; the caller is expected to pass
// the same embedding.Provider used for the memory's primary embedding.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// Neighbor is one candidate considered by the linker.
type Neighbor struct {
	ID        int64
	Embedding []float32
}

// Excerpt truncates content to the first maxExcerptChars runes, the portion
// actually embedded for linking.
func Excerpt(content string) string {
	r := []rune(content)
	if len(r) <= maxExcerptChars {
		return content
	}
	return string(r[:maxExcerptChars])
}

// FindRelated embeds the source memory's excerpt, scores it against every
// candidate, and returns up to MaxRelated neighbors (excluding selfID) with
// similarity >= MinSimilarity, ordered by similarity descending.
func FindRelated(ctx context.Context, embed Embedder, content string, selfID int64, candidates []Neighbor) ([]types.RelatedMemory, error) {
	vec, err := embed(ctx, Excerpt(content))
	if err != nil {
		return nil, fmt.Errorf("linker: failed to embed excerpt: %w", err)
	}

	type scored struct {
		id  int64
		sim float64
	}
	var scoredCandidates []scored
	for _, c := range candidates {
		if c.ID == selfID {
			continue
		}
		sim := cosineSimilarity(vec, c.Embedding)
		if sim >= MinSimilarity {
			scoredCandidates = append(scoredCandidates, scored{c.ID, sim})
		}
	}

	sort.Slice(scoredCandidates, func(i, j int) bool { return scoredCandidates[i].sim > scoredCandidates[j].sim })
	if len(scoredCandidates) > MaxRelated {
		scoredCandidates = scoredCandidates[:MaxRelated]
	}

	related := make([]types.RelatedMemory, len(scoredCandidates))
	for i, s := range scoredCandidates {
		related[i] = types.RelatedMemory{ID: s.id, Similarity: s.sim / 100}
	}
	return related, nil
}

// SerializeRelated marshals related memories to the JSON text persisted in
// the related_memories column.
func SerializeRelated(related []types.RelatedMemory) (string, error) {
	var items []any
	for _, r := range related {
		items = append(items, map[string]any{"id": r.ID, "similarity": r.Similarity})
	}
	bytes, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("linker: failed to marshal related memories: %w", err)
	}
	return string(bytes), nil
}

// ParseRelated deserializes the related_memories column safely, guarding
// against a corrupted or maliciously crafted JSON blob the same way the
// path-safety layer guards file paths.
func ParseRelated(text string) []types.RelatedMemory {
	parsed := pathsafety.SafeParseJSON(text, []any{})
	arr, ok := parsed.([]any)
	if !ok {
		return nil
	}

	var out []types.RelatedMemory
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		idF, _ := obj["id"].(float64)
		sim, _ := obj["similarity"].(float64)
		out = append(out, types.RelatedMemory{ID: int64(idF), Similarity: sim})
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return cos * 100
}
