// Package search implements the query pipeline (C6): constitutional
// prepend, multi-concept vector search, decay-aware effective-importance
// scoring, and a weighted keyword fallback when no embedding is available.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/memento-index/memento/internal/decay"
	"github.com/memento-index/memento/internal/store/sqlite"
	"github.com/memento-index/memento/pkg/types"
)

// Result wraps a matched memory with the scores that produced its rank.
type Result struct {
	Memory     *types.Memory
	Similarity float64 // vector: 0-100 cosine similarity; keyword: keywordScore; constitutional: 100
	Effective  float64 // importance_weight after decay
	Source     string  // "vector", "keyword", or "constitutional"
}

// Options configures one Query call.
type Options struct {
	SpecFolder         string
	Limit              int
	IncludeConstitutional bool
	DecayModel         decay.Model
}

// Engine runs searches against one profile's database.
type Engine struct {
	store *sqlite.Store
}

// New wraps a store for searching.
func New(store *sqlite.Store) *Engine {
	return &Engine{store: store}
}

// QueryVectors scores every vector-bearing memory in the folder against
// each query vector (one per "concept") and ranks by the average cosine
// similarity. No similarity floor is applied: a memory is returned whether
// or not it is close to every concept.
func (e *Engine) QueryVectors(ctx context.Context, vectors [][]float32, opts Options) ([]Result, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("search: at least one query vector is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	db := e.store.DB()
	rows, err := db.QueryContext(ctx, `
		SELECT v.id, v.embedding, v.dimension FROM vec v
		JOIN memories m ON m.id = v.id
		WHERE m.spec_folder = ?
	`, opts.SpecFolder)
	if err != nil {
		return nil, fmt.Errorf("search: failed to load candidate vectors: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id         int64
		minSim     float64
		avgSim     float64
	}
	var candidates []candidate

	for rows.Next() {
		var id int64
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim); err != nil {
			continue
		}
		vec := deserializeEmbedding(blob, dim)
		if vec == nil {
			continue
		}

		minSim := 100.0
		var sum float64
		for _, qv := range vectors {
			sim := cosineSimilarity(qv, vec)
			sum += sim
			if sim < minSim {
				minSim = sim
			}
		}
		candidates = append(candidates, candidate{id: id, minSim: minSim, avgSim: sum / float64(len(vectors))})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].avgSim > candidates[j].avgSim
	})

	var results []Result
	for _, c := range candidates {
		if len(results) >= opts.Limit {
			break
		}
		m, err := e.store.Get(ctx, c.id)
		if err != nil {
			continue
		}
		eff := opts.DecayModel.EffectiveImportance(m)
		results = append(results, Result{Memory: m, Similarity: c.avgSim, Effective: eff, Source: "vector"})
	}

	if opts.IncludeConstitutional {
		results = e.prependConstitutional(ctx, opts.SpecFolder, results)
	}

	return results, nil
}

// prependConstitutional puts every constitutional-tier memory in the folder
// ahead of the ranked results, ordered by importance_weight; one that the
// ranked results already hold is moved to the front rather than repeated.
// expires_at is not checked.
func (e *Engine) prependConstitutional(ctx context.Context, specFolder string, results []Result) []Result {
	db := e.store.DB()
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM memories
		WHERE spec_folder = ? AND importance_tier = 'constitutional'
		ORDER BY importance_weight DESC
	`, specFolder)
	if err != nil {
		return results
	}
	defer rows.Close()

	isConst := make(map[int64]bool)
	var prepend []Result
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		m, err := e.store.Get(ctx, id)
		if err != nil {
			continue
		}
		isConst[id] = true
		prepend = append(prepend, Result{Memory: m, Similarity: 100, Effective: m.ImportanceWeight, Source: "constitutional"})
	}

	for _, r := range results {
		if !isConst[r.Memory.ID] {
			prepend = append(prepend, r)
		}
	}
	return prepend
}

// QueryKeyword runs the weighted keyword fallback used when no embedding
// provider is reachable. The FTS5 virtual table narrows candidates to rows
// that match at least one term (cheap even over a large corpus); the
// weighted scoring pass (keywordScore: title 3x, trigger phrases 2.5x,
// folder and path 1x each) re-ranks that narrowed set. A row that FTS
// matched on its content alone scores 0 and is not returned.
func (e *Engine) QueryKeyword(ctx context.Context, query string, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	db := e.store.DB()
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	ftsQuery := strings.Join(quoted, " OR ")
	rows, err := db.QueryContext(ctx, `
		SELECT m.id FROM memories_fts f
		JOIN memories m ON m.id = f.rowid
		WHERE f MATCH ? AND m.spec_folder = ?
	`, ftsQuery, opts.SpecFolder)
	if err != nil {
		return nil, fmt.Errorf("search: failed to list candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}

	type scored struct {
		m     *types.Memory
		score float64
	}
	var out []scored
	for _, id := range ids {
		m, err := e.store.Get(ctx, id)
		if err != nil {
			continue
		}
		score := keywordScore(m, terms)
		if score > 0 {
			out = append(out, scored{m, score})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	var results []Result
	for _, s := range out {
		eff := opts.DecayModel.EffectiveImportance(s.m)
		results = append(results, Result{Memory: s.m, Similarity: s.score, Effective: eff, Source: "keyword"})
	}
	return results, nil
}

// keywordScore scores substring matches on title (x3), trigger phrases
// (x2.5), folder, and path, then weights the total by (0.5+importance_weight)
// so a more important memory outranks an equally-matched but less important
// one.
func keywordScore(m *types.Memory, terms []string) float64 {
	title := strings.ToLower(m.Title)
	triggers := strings.ToLower(strings.Join(m.TriggerPhrases, " "))
	folder := strings.ToLower(m.SpecFolder)
	path := strings.ToLower(m.FilePath)

	var score float64
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += 3.0
		}
		if strings.Contains(triggers, t) {
			score += 2.5
		}
		if strings.Contains(folder, t) {
			score += 1.0
		}
		if strings.Contains(path, t) {
			score += 1.0
		}
	}
	return score * (0.5 + m.ImportanceWeight)
}
