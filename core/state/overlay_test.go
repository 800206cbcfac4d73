package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-network/kestrel/core/types"
)

func TestOverlayPrecedence(t *testing.T) {
	o := NewOverlay()

	_, ok := o.Get([]byte("missing"))
	require.False(t, ok, "empty overlay must not claim entries")

	o.Set([]byte("k"), []byte("v1"))
	value, ok := o.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), value)

	o.Set([]byte("k"), []byte("v2"))
	value, _ = o.Get([]byte("k"))
	require.Equal(t, []byte("v2"), value, "later write must shadow earlier one")

	o.Delete([]byte("k"))
	value, ok = o.Get([]byte("k"))
	require.True(t, ok, "deletion marker must be an overlay entry")
	require.Nil(t, value, "deleted key must read as absent")
}

func TestOverlayChildStorage(t *testing.T) {
	o := NewOverlay()
	prefix := []byte("trust")

	o.ChildSet(prefix, []byte("k"), []byte("v"))
	value, ok := o.ChildGet(prefix, []byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v"), value)

	// Same key under another prefix is a different entry.
	_, ok = o.ChildGet([]byte("other"), []byte("k"))
	require.False(t, ok)

	// Top-level storage is unaffected by child writes.
	_, ok = o.Get([]byte("k"))
	require.False(t, ok)

	o.ChildDelete(prefix, []byte("k"))
	value, ok = o.ChildGet(prefix, []byte("k"))
	require.True(t, ok)
	require.Nil(t, value)
}

func TestOverlayViewFallsThrough(t *testing.T) {
	backend, err := NewMemoryBackend(
		map[string][]byte{"base": []byte("snapshot")},
		map[string]map[string][]byte{"c": {"ck": []byte("cv")}},
	)
	require.NoError(t, err)
	view, err := backend.StateAt(types.BlockRef{})
	require.NoError(t, err)

	o := NewOverlay()
	ov := NewOverlayView(view, o)

	value, err := ov.Get([]byte("base"))
	require.NoError(t, err)
	require.Equal(t, []byte("snapshot"), value)

	ov.Set([]byte("base"), []byte("pending"))
	value, err = ov.Get([]byte("base"))
	require.NoError(t, err)
	require.Equal(t, []byte("pending"), value, "overlay write must shadow snapshot")

	ov.Delete([]byte("base"))
	value, err = ov.Get([]byte("base"))
	require.NoError(t, err)
	require.Nil(t, value, "overlay deletion must not fall through")

	cv, err := ov.ChildGet([]byte("c"), []byte("ck"))
	require.NoError(t, err)
	require.Equal(t, []byte("cv"), cv)

	ov.ChildSet([]byte("c"), []byte("ck"), []byte("cv2"))
	cv, err = ov.ChildGet([]byte("c"), []byte("ck"))
	require.NoError(t, err)
	require.Equal(t, []byte("cv2"), cv)
}

func TestOverlayForkIsolation(t *testing.T) {
	o := NewOverlay()
	o.Set([]byte("shared"), []byte("v"))

	fork := o.Fork()
	fork.Set([]byte("lane"), []byte("w"))
	fork.Delete([]byte("shared"))

	_, ok := o.Get([]byte("lane"))
	require.False(t, ok, "fork writes must not leak into the parent")
	value, _ := o.Get([]byte("shared"))
	require.Equal(t, []byte("v"), value)

	o.Adopt(fork)
	value, ok = o.Get([]byte("lane"))
	require.True(t, ok)
	require.Equal(t, []byte("w"), value)
	value, ok = o.Get([]byte("shared"))
	require.True(t, ok)
	require.Nil(t, value)
}

func TestTransactionCacheInvalidation(t *testing.T) {
	o := NewOverlay()
	cache := NewTransactionCache()

	o.Set([]byte("a"), []byte("1"))
	gen := o.Generation()
	cache.Store(gen, [32]byte{}) // root value irrelevant here

	_, ok := cache.Lookup(gen)
	require.True(t, ok)

	o.Set([]byte("b"), []byte("2"))
	_, ok = cache.Lookup(o.Generation())
	require.False(t, ok, "overlay mutation must invalidate the cached transaction")

	// Adopt bumps the generation even when the fork carries no new writes.
	fork := o.Fork()
	cache.Store(o.Generation(), [32]byte{})
	o.Adopt(fork)
	_, ok = cache.Lookup(o.Generation())
	require.False(t, ok)
}
