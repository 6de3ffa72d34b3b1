// Package ranking implements the smart-score blend and MMR diversification
// pass applied to search results before they are returned (C7).
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/memento-index/memento/pkg/types"
)

// Weights are the smart-score blend coefficients.
type Weights struct {
	Similarity float64
	Recency    float64
	Usage      float64
}

// DefaultWeights is the standard smart-score blend: 0.5*similarity +
// 0.3*recency + 0.2*usage.
var DefaultWeights = Weights{Similarity: 0.5, Recency: 0.3, Usage: 0.2}

// Scored is one candidate carrying every signal ranking needs.
type Scored struct {
	Memory     *types.Memory
	Embedding  []float32
	Similarity float64 // 0-100
}

// recencyScore is a 3-bucket step function over "days since last_accessed":
// 1.0 under a week, 0.8 under a month, else 0.5.
func recencyScore(mem *types.Memory, now time.Time) float64 {
	last := time.UnixMilli(mem.LastAccessed)
	days := now.Sub(last).Hours() / 24
	if days < 0 {
		days = 0
	}
	switch {
	case days < 7:
		return 1.0
	case days < 30:
		return 0.8
	default:
		return 0.5
	}
}

// usageScore is access_count / 10, linear, saturating at 1.0 from 10
// accesses on.
func usageScore(mem *types.Memory) float64 {
	if mem.AccessCount <= 0 {
		return 0
	}
	return math.Min(1.0, float64(mem.AccessCount)/10)
}

// SmartScore blends similarity, recency, and usage per Weights.
func SmartScore(s Scored, w Weights, now time.Time) float64 {
	sim := s.Similarity / 100
	return w.Similarity*sim + w.Recency*recencyScore(s.Memory, now) + w.Usage*usageScore(s.Memory)
}

// Rank sorts candidates by smart score, descending.
func Rank(candidates []Scored, w Weights, now time.Time) []Scored {
	out := make([]Scored, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return SmartScore(out[i], w, now) > SmartScore(out[j], w, now)
	})
	return out
}

// Diversify applies Maximal Marginal Relevance with the given lambda
// (default 0.3) to trade off relevance against redundancy. With fewer
// than 4 candidates diversification is skipped and the input order is
// returned unchanged, since MMR's benefit only shows up with a real pool to
// select from.
func Diversify(candidates []Scored, w Weights, lambda float64, now time.Time, limit int) []Scored {
	if len(candidates) < 4 {
		if limit > 0 && limit < len(candidates) {
			return candidates[:limit]
		}
		return candidates
	}
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	pool := make([]Scored, len(candidates))
	copy(pool, candidates)
	relevance := make([]float64, len(pool))
	for i, c := range pool {
		relevance[i] = SmartScore(c, w, now)
	}

	selected := make([]Scored, 0, limit)
	chosen := make([]bool, len(pool))

	for len(selected) < limit {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, c := range pool {
			if chosen[i] {
				continue
			}
			maxSim := 0.0
			for j, s := range selected {
				_ = j
				sim := embeddingSimilarity(c.Embedding, s.Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmr := relevance[i] - lambda*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		chosen[bestIdx] = true
		selected = append(selected, pool[bestIdx])
	}

	return selected
}

func embeddingSimilarity(a, b []float32) float64 {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// maxLearnedTriggers caps the trigger phrases LearnFromSelection appends to
// a single memory, so a heavily-selected memory's trigger_phrases list
// doesn't grow without bound.
const maxLearnedTriggers = 10

// LearnFromSelection extracts candidate trigger phrases from a query that
// led to mem being selected, appending any not already present up to
// maxLearnedTriggers.
func LearnFromSelection(mem *types.Memory, query string, extract func(string) []string) []string {
	existing := make(map[string]bool, len(mem.TriggerPhrases))
	for _, t := range mem.TriggerPhrases {
		existing[t] = true
	}

	phrases := mem.TriggerPhrases
	for _, candidate := range extract(query) {
		if len(phrases) >= maxLearnedTriggers {
			break
		}
		if existing[candidate] {
			continue
		}
		phrases = append(phrases, candidate)
		existing[candidate] = true
	}
	return phrases
}
