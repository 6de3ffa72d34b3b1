// Package engine wires the indexing core's components (C1-C12) into the
// handful of operations a caller actually performs: remember a piece of
// content, search for related ones, record that a result was used, ingest a
// whole coding session, and periodically surface cleanup candidates.
package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/memento-index/memento/internal/cache"
	"github.com/memento-index/memento/internal/decay"
	"github.com/memento-index/memento/internal/embedding"
	"github.com/memento-index/memento/internal/ingest"
	"github.com/memento-index/memento/internal/linker"
	"github.com/memento-index/memento/internal/notify"
	"github.com/memento-index/memento/internal/preflight"
	"github.com/memento-index/memento/internal/ranking"
	"github.com/memento-index/memento/internal/retry"
	"github.com/memento-index/memento/internal/search"
	"github.com/memento-index/memento/internal/store/sqlite"
	"github.com/memento-index/memento/internal/usage"
	"github.com/memento-index/memento/pkg/types"
)

// Config holds the tunables for every component the engine wires together.
// The zero value is not ready to use; call DefaultConfig.
type Config struct {
	Preflight        preflight.Config
	Cache            cache.Config
	Ranking          ranking.Weights
	MMRLambda        float64
	RetryOptions     retry.Options
	OpportunisticMax int
}

// DefaultConfig returns the standard defaults for every component.
func DefaultConfig() Config {
	return Config{
		Preflight:        preflight.NewConfig(preflight.Config{}),
		Cache:            cache.DefaultConfig(),
		Ranking:          ranking.DefaultWeights,
		MMRLambda:        0.3,
		RetryOptions:     retry.DefaultOptions(),
		OpportunisticMax: 3,
	}
}

// Engine is the one-stop orchestrator: a caller only ever needs an Engine,
// never the individual component packages.
type Engine struct {
	store    *sqlite.Store
	embedder embedding.Provider
	search   *search.Engine
	cache    *cache.Cache
	breaker  *retry.CircuitBreaker
	pending  *retry.OpportunisticQueue
	notifier *notify.EventWriter
	decay    decay.Model
	cfg      Config

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires every component against one profile's store and embedding
// provider. dataDir is where the notify package writes its event files
// (shared with any sibling process watching the same profile database).
func New(store *sqlite.Store, embedder embedding.Provider, dataDir string, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("engine: embedder is required")
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to build cache: %w", err)
	}

	maxPerRun := cfg.OpportunisticMax
	if maxPerRun <= 0 {
		maxPerRun = 3
	}

	return &Engine{
		store:    store,
		embedder: embedder,
		search:   search.New(store),
		cache:    c,
		breaker:  retry.NewCircuitBreaker(),
		pending:  retry.NewOpportunisticQueue(maxPerRun, rate.Limit(2), 3),
		notifier: notify.NewEventWriter(dataDir),
		decay:    decay.Model{},
		cfg:      cfg,
	}, nil
}

// Start marks the engine ready and launches the background loop that drains
// the opportunistic retry queue even when no new memory is being saved, so
// a previously failed embedding eventually gets a chance without needing a
// fresh Remember call to trigger it. Calling Start twice is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.started = true

	e.wg.Add(1)
	go e.backgroundDrainLoop(loopCtx)

	return nil
}

// Shutdown stops the background drain loop and waits for it to exit.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) backgroundDrainLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pending.Drain(ctx, e.retryPendingEmbed)
		}
	}
}

// retryPendingEmbed re-attempts the embedding for one previously-failed
// memory and, on success, persists the vector and clears its retry status.
func (e *Engine) retryPendingEmbed(ctx context.Context, p retry.PendingEmbed) error {
	vec, err := e.embedWithRetry(ctx, p.Content)
	if err != nil {
		return err
	}
	m, err := e.store.Get(ctx, p.MemoryID)
	if err != nil {
		return nil // memory was deleted since queueing; drop silently
	}
	m.EmbeddingStatus = types.EmbeddingSuccess
	m.EmbeddingModel = e.embedder.Profile().Model
	if err := e.store.Update(ctx, m, vec, m.EmbeddingModel); err != nil {
		return err
	}
	e.cache.InvalidateFolder(m.SpecFolder)
	return nil
}

func (e *Engine) embedWithRetry(ctx context.Context, content string) ([]float32, error) {
	result, _, err := retry.Run(ctx, func(ctx context.Context) (any, error) {
		return e.breaker.Execute(ctx, func() (interface{}, error) {
			return e.embedder.EmbedDocument(ctx, content)
		})
	}, e.cfg.RetryOptions)
	if err != nil {
		return nil, err
	}
	vec, _ := result.([]float32)
	return vec, nil
}

// RememberInput is everything a caller supplies to index one piece of
// content. Tier is inferred from the path and content when left empty,
// ContextType defaults to general when left empty, and the decay half-life
// is always derived from the tier.
type RememberInput struct {
	Content        string
	SpecFolder     string
	FilePath       string
	AnchorID       string
	Title          string
	TriggerPhrases []string
	Tier           types.ImportanceTier
	ContextType    types.ContextType
	Confidence     float64
	IsPinned       bool
	Channel        string
	SessionID      string
	Force          bool
}

// Remember validates, embeds, links, and persists one candidate memory. A
// failing pre-flight result is returned alongside a nil memory and a nil
// error; err is reserved for operational failures (store/embedding errors
// the caller cannot route around).
func (e *Engine) Remember(ctx context.Context, in RememberInput) (*types.Memory, preflight.Result, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(in.Content)))

	vec, embedErr := e.embedWithRetry(ctx, in.Content)

	findExact := func(ctx context.Context, contentHash, specFolder string) (int64, string, bool) {
		return e.store.FindByContentHash(ctx, contentHash, specFolder)
	}
	var findSimilar preflight.SimilarLookup
	if embedErr == nil {
		findSimilar = func(ctx context.Context, embedding []float32, specFolder string) (float64, int64, bool) {
			return e.store.FindMostSimilar(ctx, embedding, specFolder)
		}
	}

	result := preflight.Run(ctx, e.cfg.Preflight, preflight.Input{
		Content:     in.Content,
		SpecFolder:  in.SpecFolder,
		ContentHash: hash,
		Embedding:   vec,
		Force:       in.Force,
	}, findExact, findSimilar)

	if !result.Pass {
		return nil, result, nil
	}

	tier := in.Tier
	if tier == "" {
		tier = decay.ClassifyTier(in.FilePath, in.Content)
	}
	tier = ingest.RefineTierForPath(tier, in.FilePath, in.Content)

	contextType := in.ContextType
	if contextType == "" {
		contextType = types.ContextGeneral
	}

	now := time.Now().UTC()
	halfLife := ingest.ComputeDecayHalfLife(tier)
	confidence := in.Confidence
	if confidence == 0 {
		confidence = 1.0
	}

	m := &types.Memory{
		SpecFolder:        in.SpecFolder,
		FilePath:          in.FilePath,
		AnchorID:          in.AnchorID,
		Title:             in.Title,
		TriggerPhrases:    in.TriggerPhrases,
		ContentHash:       hash,
		ImportanceWeight:  1.0,
		ImportanceTier:    tier,
		ContextType:       contextType,
		DecayHalfLifeDays: halfLife,
		IsPinned:          in.IsPinned,
		ExpiresAt:         decay.ExpiresAt(tier, now),
		Confidence:        confidence,
		Channel:           in.Channel,
		SessionID:         in.SessionID,
		Content:           in.Content,
	}

	model := ""
	if embedErr == nil {
		m.EmbeddingStatus = types.EmbeddingSuccess
		model = e.embedder.Profile().Model
		m.EmbeddingModel = model
	} else {
		class, _ := retry.Classify(embedErr)
		if class == retry.ClassificationTransient {
			m.EmbeddingStatus = types.EmbeddingRetry
		} else {
			m.EmbeddingStatus = types.EmbeddingFailed
		}
	}

	id, err := e.store.Insert(ctx, m, vec, model)
	if err != nil {
		return nil, result, fmt.Errorf("engine: failed to store memory: %w", err)
	}

	if embedErr != nil && m.EmbeddingStatus == types.EmbeddingRetry {
		e.pending.Push(retry.PendingEmbed{MemoryID: id, Content: in.Content})
	}

	if embedErr == nil && len(vec) > 0 {
		if related, linkErr := e.linkRelated(ctx, id, vec, in.SpecFolder); linkErr == nil && len(related) > 0 {
			m.RelatedMemories = related
			_ = e.store.Update(ctx, m, vec, model)
		}
	}

	e.cache.InvalidateFolder(in.SpecFolder)
	_ = notify.NotifyDBUpdated(e.notifier, in.SpecFolder)

	e.pending.Drain(ctx, e.retryPendingEmbed)

	return m, result, nil
}

// linkRelated loads every other vector in the folder and scores them
// against the freshly embedded memory, following the same direct-SQL
// pattern internal/search uses for candidate lookup rather than adding a
// new storage-engine method for one caller.
func (e *Engine) linkRelated(ctx context.Context, selfID int64, vec []float32, specFolder string) ([]types.RelatedMemory, error) {
	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT v.id FROM vec v
		JOIN memories m ON m.id = v.id
		WHERE m.spec_folder = ? AND v.id != ?
	`, specFolder, selfID)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to list candidate vectors: %w", err)
	}
	defer rows.Close()

	var neighbors []linker.Neighbor
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		nvec, _, err := e.store.GetVector(ctx, id)
		if err != nil || len(nvec) == 0 {
			continue
		}
		neighbors = append(neighbors, linker.Neighbor{ID: id, Embedding: nvec})
	}

	identity := func(ctx context.Context, text string) ([]float32, error) { return vec, nil }
	return linker.FindRelated(ctx, identity, "", selfID, neighbors)
}

// SearchInput configures one Search call. Supply either QueryVectors (one
// per concept; vector search is used) or QueryText (keyword fallback).
type SearchInput struct {
	SpecFolder            string
	QueryVectors          [][]float32
	QueryText             string
	Limit                 int
	IncludeConstitutional bool
}

// Search runs the query pipeline, then ranks and diversifies the results.
// Returned memories have already had their access recorded.
func (e *Engine) Search(ctx context.Context, in SearchInput) ([]ranking.Scored, error) {
	if in.Limit <= 0 {
		in.Limit = 10
	}

	opts := search.Options{SpecFolder: in.SpecFolder, Limit: in.Limit, DecayModel: e.decay}

	var raw []search.Result
	var err error
	if len(in.QueryVectors) > 0 {
		raw, err = e.search.QueryVectors(ctx, in.QueryVectors, opts)
	} else {
		raw, err = e.search.QueryKeyword(ctx, in.QueryText, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("engine: search failed: %w", err)
	}

	scored := make([]ranking.Scored, 0, len(raw))
	for _, r := range raw {
		vec, _, _ := e.store.GetVector(ctx, r.Memory.ID)
		scored = append(scored, ranking.Scored{Memory: r.Memory, Embedding: vec, Similarity: r.Similarity})
	}

	now := time.Now()
	ranked := ranking.Rank(scored, e.cfg.Ranking, now)
	out := ranking.Diversify(ranked, e.cfg.Ranking, e.cfg.MMRLambda, now, in.Limit)

	if in.IncludeConstitutional {
		constMems, cErr := e.loadConstitutional(ctx, in.SpecFolder)
		if cErr == nil {
			out = prependScored(out, constMems)
		}
	}

	for _, s := range out {
		_ = usage.RecordAccess(ctx, e.store, s.Memory.ID)
	}

	return out, nil
}

func prependScored(existing []ranking.Scored, constMems []*types.Memory) []ranking.Scored {
	seen := make(map[int64]bool, len(existing))
	for _, s := range existing {
		seen[s.Memory.ID] = true
	}
	prepend := make([]ranking.Scored, 0, len(constMems))
	for _, m := range constMems {
		if seen[m.ID] {
			continue
		}
		prepend = append(prepend, ranking.Scored{Memory: m, Similarity: 100})
	}
	return append(prepend, existing...)
}

// loadConstitutional returns every constitutional-tier memory visible to
// specFolder (its own folder plus folder-less global memories), serving
// the result from the constitutional cache (C9) when present.
func (e *Engine) loadConstitutional(ctx context.Context, specFolder string) ([]*types.Memory, error) {
	if cached, ok := e.cache.Get(specFolder); ok {
		return cached, nil
	}

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT id FROM memories
		WHERE importance_tier = 'constitutional' AND (spec_folder = ? OR spec_folder = '')
		ORDER BY importance_weight DESC
	`, specFolder)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load constitutional memories: %w", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		m, err := e.store.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, m)
	}

	e.cache.Set(specFolder, out)
	return out, nil
}

// RecordAccess bumps access_count/last_accessed for id. The constitutional
// cache is left as it is.
func (e *Engine) RecordAccess(ctx context.Context, id int64) error {
	return usage.RecordAccess(ctx, e.store, id)
}

// DiscoverCleanupCandidates loads every memory in specFolder and flags the
// ones usage.DiscoverCleanupCandidates considers safe to retire.
func (e *Engine) DiscoverCleanupCandidates(ctx context.Context, specFolder string) ([]usage.CleanupCandidate, error) {
	rows, err := e.store.DB().QueryContext(ctx, `SELECT id FROM memories WHERE spec_folder = ?`, specFolder)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to list memories: %w", err)
	}
	defer rows.Close()

	var mems []*types.Memory
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		m, err := e.store.Get(ctx, id)
		if err != nil {
			continue
		}
		mems = append(mems, m)
	}

	return usage.DiscoverCleanupCandidates(mems, time.Now()), nil
}

// IngestResult is one observation's outcome: either a stored memory, or a
// pre-flight result explaining why it wasn't.
type IngestResult struct {
	Observation ingest.Observation
	Memory      *types.Memory
	Preflight   preflight.Result
}

// IngestSession classifies every observation in a raw session and attempts
// to Remember each one, continuing past individual pre-flight rejections
// (e.g. an observation too short to index) rather than aborting the batch.
func (e *Engine) IngestSession(ctx context.Context, specFolder, filePath string, s ingest.Session) ([]IngestResult, types.ProjectPhase, error) {
	observations := ingest.ClassifyAll(s)
	phase := ingest.DetectProjectPhase(s.RecentContext)
	sessionID := ingest.NewSessionID()

	results := make([]IngestResult, 0, len(observations))
	for _, obs := range observations {
		mem, pf, err := e.Remember(ctx, RememberInput{
			Content:     obs.Text,
			SpecFolder:  specFolder,
			FilePath:    filePath,
			AnchorID:    obs.AnchorID,
			Tier:        obs.Tier,
			ContextType: obs.ContextType,
			SessionID:   sessionID,
		})
		if err != nil {
			return results, phase, fmt.Errorf("engine: failed to ingest observation %q: %w", obs.AnchorID, err)
		}
		results = append(results, IngestResult{Observation: obs, Memory: mem, Preflight: pf})
	}

	return results, phase, nil
}
