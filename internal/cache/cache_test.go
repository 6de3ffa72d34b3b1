package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-index/memento/pkg/types"
)

func TestGetSet_RoundTrip(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	mems := []*types.Memory{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}}
	c.Set("folder-1", mems)

	got, ok := c.Get("folder-1")
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestGet_MissOnUnknownKey(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = 10 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("folder-1", []*types.Memory{{ID: 1}})

	c.now = func() time.Time { return now.Add(20 * time.Millisecond) }
	_, ok := c.Get("folder-1")
	assert.False(t, ok)
}

func TestInvalidateFolder_RemovesOnlyThatKey(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	c.Set("folder-1", []*types.Memory{{ID: 1}})
	c.Set("folder-2", []*types.Memory{{ID: 2}})

	c.InvalidateFolder("folder-1")

	_, ok1 := c.Get("folder-1")
	_, ok2 := c.Get("folder-2")
	assert.False(t, ok1)
	assert.True(t, ok2)
}

func TestSet_TruncatesToTokenBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenBudget = 1 // force truncation
	c, err := New(cfg)
	require.NoError(t, err)

	huge := make([]*types.Memory, 50)
	for i := range huge {
		huge[i] = &types.Memory{ID: int64(i), Content: "padding content that costs real tokens to store"}
	}
	c.Set("folder-1", huge)

	got, ok := c.Get("folder-1")
	require.True(t, ok)
	assert.LessOrEqual(t, len(got), len(huge))
}
