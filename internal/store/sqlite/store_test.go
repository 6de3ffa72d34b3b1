package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-index/memento/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertAndGet_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{
		SpecFolder:        "auth",
		FilePath:          "auth/notes.md",
		AnchorID:          "setup/install",
		Title:             "Install steps",
		TriggerPhrases:    []string{"install", "setup"},
		Content:           "Run make install before anything else.",
		ImportanceWeight:  0.6,
		ImportanceTier:    types.TierNormal,
		ContextType:       types.ContextGeneral,
		DecayHalfLifeDays: 90,
		Confidence:        1.0,
	}

	id, err := store.Insert(ctx, m, []float32{0.1, 0.2, 0.3}, "ollama:nomic-embed-text")
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Install steps", got.Title)
	assert.Equal(t, []string{"install", "setup"}, got.TriggerPhrases)
	assert.NotEmpty(t, got.ContentHash)

	vec, model, err := store.GetVector(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ollama:nomic-embed-text", model)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, vec, 1e-6)
}

func TestInsert_DuplicateSpecFolderFilePathAnchor_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{SpecFolder: "auth", FilePath: "auth/notes.md", AnchorID: "a", Title: "t", Content: "enough content here"}
	_, err := store.Insert(ctx, m, nil, "")
	require.NoError(t, err)

	dup := &types.Memory{SpecFolder: "auth", FilePath: "auth/notes.md", AnchorID: "a", Title: "t2", Content: "other content entirely"}
	_, err = store.Insert(ctx, dup, nil, "")
	assert.Error(t, err)
}

func TestUpdate_AppendsHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{SpecFolder: "auth", FilePath: "auth/a.md", Title: "Original", Content: "original content here please"}
	id, err := store.Insert(ctx, m, nil, "")
	require.NoError(t, err)

	m.ID = id
	m.Title = "Updated"
	require.NoError(t, store.Update(ctx, m, nil, ""))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Title)

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM history WHERE memory_id = ?", id).Scan(&count))
	assert.Equal(t, 2, count) // ADD + UPDATE
}

func TestDelete_RemovesMemoryAndVector(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{SpecFolder: "auth", FilePath: "auth/b.md", Title: "Gone soon", Content: "this will be deleted shortly"}
	id, err := store.Insert(ctx, m, []float32{0.5, 0.5}, "m")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = store.GetVector(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByContentHash_DetectsExactDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{SpecFolder: "auth", FilePath: "auth/c.md", Title: "Dup source", Content: "identical content for hashing"}
	id, err := store.Insert(ctx, m, nil, "")
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)

	existingID, path, found := store.FindByContentHash(ctx, got.ContentHash, "auth")
	assert.True(t, found)
	assert.Equal(t, id, existingID)
	assert.Equal(t, "auth/c.md", path)
}

func TestFindMostSimilar_ReturnsNearestNeighbor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := &types.Memory{SpecFolder: "x", FilePath: "x/a.md", Title: "a", Content: "vector a content for testing purposes"}
	idA, err := store.Insert(ctx, a, []float32{1, 0, 0}, "m")
	require.NoError(t, err)

	b := &types.Memory{SpecFolder: "x", FilePath: "x/b.md", Title: "b", Content: "vector b content for testing purposes"}
	_, err = store.Insert(ctx, b, []float32{0, 1, 0}, "m")
	require.NoError(t, err)

	sim, id, found := store.FindMostSimilar(ctx, []float32{0.99, 0.01, 0}, "x")
	assert.True(t, found)
	assert.Equal(t, idA, id)
	assert.Greater(t, sim, 90.0)
}

func TestRecordAccess_IncrementsCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{SpecFolder: "x", FilePath: "x/d.md", Title: "d", Content: "access counting content right here"}
	id, err := store.Insert(ctx, m, nil, "")
	require.NoError(t, err)

	require.NoError(t, store.RecordAccess(ctx, id))
	require.NoError(t, store.RecordAccess(ctx, id))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.NotZero(t, got.LastAccessed)
}

func TestCheckpoint_CreateAndRestore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{SpecFolder: "x", FilePath: "x/e.md", Title: "e", Content: "content that will be checkpointed"}
	id, err := store.Insert(ctx, m, nil, "")
	require.NoError(t, err)

	cpID, err := store.CreateCheckpoint(ctx, "before-wipe", "x", "main", nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.RestoreCheckpoint(ctx, cpID)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "e", got.Title)
}

func TestVerifyIntegrity_CleanOnFreshStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{SpecFolder: "x", FilePath: "x/f.md", Title: "f", Content: "clean integrity content here ok"}
	_, err := store.Insert(ctx, m, []float32{0.1}, "m")
	require.NoError(t, err)

	report, err := store.VerifyIntegrity(ctx, nil)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestSerializeDeserializeEmbedding_RoundTrip(t *testing.T) {
	v := []float32{0.1, -0.2, 3.14, 0}
	blob := serializeEmbedding(v)
	got := deserializeEmbedding(blob, len(v))
	assert.InDeltaSlice(t, v, got, 1e-6)
}
