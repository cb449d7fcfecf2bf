package testutil

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	assert.NotNil(t, logger)
}

func TestNewTestEvent(t *testing.T) {
	a := NewTestEvent(1, 2)
	assert.Equal(t, a, NewTestEvent(1, 2))
	assert.NotEqual(t, a, NewTestEvent(1, 3))
	assert.NotEqual(t, a, NewTestEvent(2, 2))
}

func TestRandomBlocks(t *testing.T) {
	blocks := RandomBlocks(rand.New(rand.NewSource(1)), 20, 3)
	require.Len(t, blocks, 20)
	for _, b := range blocks {
		assert.LessOrEqual(t, len(b), 3)
	}
}

func TestBuildChain(t *testing.T) {
	ctx := context.Background()
	e := NewTestEvent(9, 9)
	chain := BuildChain(t, RandomBlocks(rand.New(rand.NewSource(2)), 10, 2), DefaultChainOptions())

	n, err := chain.Index.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)

	m, err := chain.Storage.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), m)

	rec, err := chain.Index.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Skip.NumEntries())

	set, err := chain.Storage.Get(ctx, 9)
	require.NoError(t, err)
	assert.False(t, set.Contains(e))
}
