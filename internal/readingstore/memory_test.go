package readingstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Append(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)

	pumps := testBatch("pump", 200, true)
	fans := testBatch("fan", 3, false)
	require.NoError(t, store.Append(context.Background(), pumps))
	require.NoError(t, store.Append(context.Background(), fans))

	all, err := store.All()
	require.NoError(t, err)
	assert.Equal(t, append(pumps, fans...), all)

	byAsset, err := store.ByAsset("fan")
	require.NoError(t, err)
	assert.Equal(t, fans, byAsset)
}

func TestMemoryStore_DuplicateReadKeys(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)

	batch := testBatch("pump", 3, true)
	require.NoError(t, store.Append(context.Background(), batch))
	// A retried batch plus a duplicate inside the same batch.
	require.NoError(t, store.Append(context.Background(), append(batch, batch[0])))

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
