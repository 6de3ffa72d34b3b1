package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-index/memento/internal/embedding"
	"github.com/memento-index/memento/internal/ingest"
	"github.com/memento-index/memento/internal/retry"
	"github.com/memento-index/memento/internal/store/sqlite"
	"github.com/memento-index/memento/pkg/types"
)

// fakeEmbedder hashes text into a tiny deterministic vector so related-ness
// and search tests can exercise cosine similarity without a real provider.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) vector(text string) []float32 {
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{sum, sum / 2, 1}
}

func (f *fakeEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("connection reset: embedding provider unreachable")
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.EmbedDocument(ctx, text)
}

func (f *fakeEmbedder) Profile() embedding.Profile {
	return embedding.Profile{Provider: "fake", Model: "fake-v1", Dim: 3}
}

func newTestEngine(t *testing.T, embedder embedding.Provider) *Engine {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.RetryOptions = retry.Options{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Base: 2}

	e, err := New(store, embedder, t.TempDir(), cfg)
	require.NoError(t, err)
	return e
}

func TestRemember_StoresAndEmbeds(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	mem, result, err := e.Remember(ctx, RememberInput{
		Content:    "Always run the linter before committing.",
		SpecFolder: "backend",
		FilePath:   "backend/decisions/lint.md",
		Title:      "Lint before commit",
	})
	require.NoError(t, err)
	assert.True(t, result.Pass)
	require.NotNil(t, mem)
	assert.NotZero(t, mem.ID)
	assert.Equal(t, types.EmbeddingSuccess, mem.EmbeddingStatus)
	assert.Equal(t, types.TierCritical, mem.ImportanceTier) // decisions/ path signal
}

func TestRemember_RejectsContentBelowMinimumLength(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	mem, result, err := e.Remember(ctx, RememberInput{Content: "short", SpecFolder: "backend"})
	require.NoError(t, err)
	assert.Nil(t, mem)
	assert.False(t, result.Pass)
}

func TestRemember_ExactDuplicateIsFatalWithoutForce(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	in := RememberInput{Content: "We standardized on SQLite for local storage.", SpecFolder: "backend"}
	_, first, err := e.Remember(ctx, in)
	require.NoError(t, err)
	require.True(t, first.Pass)

	_, second, err := e.Remember(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.Pass)

	in.Force = true
	_, third, err := e.Remember(ctx, in)
	require.NoError(t, err)
	assert.True(t, third.Pass)
}

func TestRemember_EmbeddingFailureQueuesForRetryInsteadOfFailingTheSave(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{fail: true})
	ctx := context.Background()

	mem, result, err := e.Remember(ctx, RememberInput{
		Content:    "This note is saved even though embedding is unreachable.",
		SpecFolder: "backend",
	})
	require.NoError(t, err)
	require.True(t, result.Pass)
	require.NotNil(t, mem)
	assert.Equal(t, types.EmbeddingRetry, mem.EmbeddingStatus)
}

func TestSearch_VectorQueryReturnsRankedResults(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	_, _, err := e.Remember(ctx, RememberInput{Content: "The retry engine uses exponential backoff with a cap.", SpecFolder: "backend"})
	require.NoError(t, err)
	_, _, err = e.Remember(ctx, RememberInput{Content: "The cache holds constitutional memories per folder.", SpecFolder: "backend"})
	require.NoError(t, err)

	qvec := (&fakeEmbedder{}).vector("The retry engine uses exponential backoff with a cap.")
	results, err := e.Search(ctx, SearchInput{SpecFolder: "backend", QueryVectors: [][]float32{qvec}, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestSearch_KeywordFallbackWhenNoVectorsSupplied(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	_, _, err := e.Remember(ctx, RememberInput{Content: "Backoff caps retries at four seconds.", SpecFolder: "backend", Title: "Backoff retries"})
	require.NoError(t, err)

	results, err := e.Search(ctx, SearchInput{SpecFolder: "backend", QueryText: "backoff retries", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestIngestSession_ClassifiesAndRemembersEachObservation(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	session := ingest.Normalize(
		nil,
		[]string{"Fixed a bug where the cache never expired entries."},
		[]string{"implementing the fix now"},
		nil,
	)

	results, phase, err := e.IngestSession(ctx, "backend", "backend/notes.md", session)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ObservationBugfix, results[0].Observation.Type)
	assert.Equal(t, types.PhaseImplementation, phase)
	require.NotNil(t, results[0].Memory)
}

func TestDiscoverCleanupCandidates_FlagsLowConfidenceMemory(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	_, _, err := e.Remember(ctx, RememberInput{
		Content:    "A throwaway note nobody will revisit.",
		SpecFolder: "backend",
		Confidence: 0.1,
	})
	require.NoError(t, err)

	candidates, err := e.DiscoverCleanupCandidates(ctx, "backend")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
}

func TestStartShutdown_IdempotentAndDrainsInBackground(t *testing.T) {
	e := newTestEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Start(ctx)) // second Start is a no-op, not an error

	require.NoError(t, e.Shutdown(ctx))
	require.NoError(t, e.Shutdown(ctx)) // second Shutdown is a no-op, not an error
}
