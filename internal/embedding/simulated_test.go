package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedProvider_Deterministic(t *testing.T) {
	p := NewSimulatedProvider(16)

	v1, err := p.EmbedDocument(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := p.EmbedDocument(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 16)
}

func TestSimulatedProvider_DifferentTextDiffers(t *testing.T) {
	p := NewSimulatedProvider(16)
	v1, _ := p.EmbedDocument(context.Background(), "alpha")
	v2, _ := p.EmbedDocument(context.Background(), "beta")
	assert.NotEqual(t, v1, v2)
}

func TestSimulatedProvider_Profile(t *testing.T) {
	p := NewSimulatedProvider(768)
	prof := p.Profile()
	assert.Equal(t, 768, prof.Dim)
	assert.Equal(t, "simulated", prof.DatabaseSuffix)
}
