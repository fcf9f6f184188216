package statecache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withClock replaces the store clock with a manually advanced one.
func withClock(s *Store) *time.Time {
	now := time.Now()
	s.now = func() time.Time { return now }
	return &now
}

func TestView_SetAndGet(t *testing.T) {
	store := NewStore(DefaultCapacity, DefaultTTL)
	view := store.Namespace("dashboard")

	view.Set("filters", map[string]any{"range": "7d"}, SetOptions{})

	got, ok := view.Get("filters")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"range": "7d"}, got)

	_, ok = view.Get("missing")
	assert.False(t, ok)
}

func TestView_TTLRoundTrip(t *testing.T) {
	store := NewStore(DefaultCapacity, DefaultTTL)
	now := withClock(store)
	view := store.Namespace("dashboard")

	view.Set("k", "v", SetOptions{TTL: time.Minute})

	got, ok := view.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	*now = now.Add(time.Minute + time.Second)

	_, ok = view.Get("k")
	assert.False(t, ok, "expired entry must read as absent")

	// No resurrection: a second read is still absent and the entry is gone.
	_, ok = view.Get("k")
	assert.False(t, ok)
	assert.Zero(t, store.Len())
}

func TestView_NoExpire(t *testing.T) {
	store := NewStore(DefaultCapacity, time.Minute)
	now := withClock(store)
	view := store.Namespace("settings")

	view.Set("pinned", 42, SetOptions{NoExpire: true})
	*now = now.Add(24 * time.Hour)

	got, ok := view.Get("pinned")
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestView_DefaultTTLApplies(t *testing.T) {
	store := NewStore(DefaultCapacity, time.Minute)
	now := withClock(store)
	view := store.Namespace("m")

	view.Set("k", "v", SetOptions{})
	*now = now.Add(2 * time.Minute)

	_, ok := view.Get("k")
	assert.False(t, ok)
}

func TestStore_EvictsOldestInserted(t *testing.T) {
	store := NewStore(50, DefaultTTL)
	view := store.Namespace("m")

	for i := 0; i < 50; i++ {
		view.Set(fmt.Sprintf("k%02d", i), i, SetOptions{})
	}
	require.Equal(t, 50, store.Len())

	// The 51st distinct key evicts exactly the oldest-inserted key.
	view.Set("k50", 50, SetOptions{})

	assert.Equal(t, 50, store.Len())
	_, ok := view.Get("k00")
	assert.False(t, ok, "oldest-inserted key should be evicted")
	_, ok = view.Get("k01")
	assert.True(t, ok)
	_, ok = view.Get("k50")
	assert.True(t, ok)
}

func TestStore_OverwriteKeepsInsertionOrder(t *testing.T) {
	store := NewStore(2, DefaultTTL)
	view := store.Namespace("m")

	view.Set("a", 1, SetOptions{})
	view.Set("b", 2, SetOptions{})
	// Overwriting "a" is not a re-insertion; it stays oldest.
	view.Set("a", 3, SetOptions{})

	view.Set("c", 4, SetOptions{})

	_, ok := view.Get("a")
	assert.False(t, ok)
	got, ok := view.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestStore_CapacityIsSharedAcrossNamespaces(t *testing.T) {
	store := NewStore(2, DefaultTTL)
	a := store.Namespace("mod-a")
	b := store.Namespace("mod-b")

	a.Set("k1", 1, SetOptions{})
	a.Set("k2", 2, SetOptions{})
	// Pressure from mod-b evicts mod-a's oldest entry.
	b.Set("k1", 3, SetOptions{})

	_, ok := a.Get("k1")
	assert.False(t, ok)
	_, ok = b.Get("k1")
	assert.True(t, ok)
}

func TestView_ClearOnlyOwnNamespace(t *testing.T) {
	store := NewStore(DefaultCapacity, DefaultTTL)
	a := store.Namespace("mod-a")
	b := store.Namespace("mod-b")

	a.Set("k1", 1, SetOptions{})
	a.Set("k2", 2, SetOptions{})
	b.Set("k1", 3, SetOptions{})

	a.Clear()

	_, ok := a.Get("k1")
	assert.False(t, ok)
	_, ok = a.Get("k2")
	assert.False(t, ok)
	got, ok := b.Get("k1")
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestView_NamespaceIsolation(t *testing.T) {
	store := NewStore(DefaultCapacity, DefaultTTL)
	a := store.Namespace("mod-a")
	b := store.Namespace("mod-b")

	a.Set("shared-key", "from-a", SetOptions{})
	b.Set("shared-key", "from-b", SetOptions{})

	got, _ := a.Get("shared-key")
	assert.Equal(t, "from-a", got)
	got, _ = b.Get("shared-key")
	assert.Equal(t, "from-b", got)
}

func TestView_Version(t *testing.T) {
	store := NewStore(DefaultCapacity, DefaultTTL)
	view := store.Namespace("m")

	view.Set("k", "v", SetOptions{Version: "v2"})

	ver, ok := view.GetVersion("k")
	require.True(t, ok)
	assert.Equal(t, "v2", ver)
}

func TestGet_Typed(t *testing.T) {
	store := NewStore(DefaultCapacity, DefaultTTL)
	view := store.Namespace("m")

	view.Set("count", 7, SetOptions{})

	n, ok := Get[int](view, "count")
	require.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = Get[string](view, "count")
	assert.False(t, ok, "type mismatch reads as absent")
}

func TestView_Delete(t *testing.T) {
	store := NewStore(DefaultCapacity, DefaultTTL)
	view := store.Namespace("m")

	view.Set("k", "v", SetOptions{})
	view.Delete("k")

	_, ok := view.Get("k")
	assert.False(t, ok)
}
