package linker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-index/memento/pkg/types"
)

func TestExcerpt_TruncatesToMax(t *testing.T) {
	content := strings.Repeat("a", 2000)
	got := Excerpt(content)
	assert.Len(t, got, maxExcerptChars)
}

func TestExcerpt_ShorterContentUnchanged(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short"))
}

func TestFindRelated_FiltersSelfAndBelowThreshold(t *testing.T) {
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	candidates := []Neighbor{
		{ID: 1, Embedding: []float32{1, 0, 0}},    // self, excluded
		{ID: 2, Embedding: []float32{0.99, 0.01, 0}}, // above threshold
		{ID: 3, Embedding: []float32{0, 1, 0}},    // orthogonal, below threshold
	}

	related, err := FindRelated(context.Background(), embed, "content", 1, candidates)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, int64(2), related[0].ID)
}

func TestFindRelated_CapsAtMaxRelated(t *testing.T) {
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0}, nil
	}
	var candidates []Neighbor
	for i := int64(2); i <= 10; i++ {
		candidates = append(candidates, Neighbor{ID: i, Embedding: []float32{1, 0}})
	}

	related, err := FindRelated(context.Background(), embed, "content", 1, candidates)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(related), MaxRelated)
}

func TestSerializeParseRelated_RoundTrip(t *testing.T) {
	original := []types.RelatedMemory{{ID: 1, Similarity: 0.9}, {ID: 2, Similarity: 0.8}}
	text, err := SerializeRelated(original)
	require.NoError(t, err)

	parsed := ParseRelated(text)
	require.Len(t, parsed, 2)
	assert.Equal(t, int64(1), parsed[0].ID)
}
