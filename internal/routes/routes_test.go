package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mfeshell/internal/auth"
	"github.com/fyrsmithlabs/mfeshell/internal/eventbus"
	"github.com/fyrsmithlabs/mfeshell/internal/logging"
)

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry(nil)

	reg.Register("dash", []Entry{{Label: "Overview", Path: "/dash"}})
	reg.Register("dash", []Entry{{Label: "Reports", Path: "/dash/reports"}})

	entries := reg.Dynamic("dash")
	require.Len(t, entries, 1)
	assert.Equal(t, "Reports", entries[0].Label)
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry(nil)

	reg.Register("dash", []Entry{{Label: "Overview", Path: "/dash"}})
	reg.Unregister("dash")

	assert.Empty(t, reg.Dynamic("dash"))
	assert.Empty(t, reg.Modules())
}

func TestRegistry_EmitsEvents(t *testing.T) {
	bus := eventbus.New(logging.NewNop())
	reg := NewRegistry(bus)

	var events []string
	bus.On(eventbus.EventRoutesRegistered, func(e string, _ any) { events = append(events, e) })
	bus.On(eventbus.EventRoutesUnregistered, func(e string, _ any) { events = append(events, e) })

	reg.Register("dash", []Entry{{Label: "Overview", Path: "/dash"}})
	reg.Unregister("dash")
	// Unknown module: no event.
	reg.Unregister("ghost")

	assert.Equal(t, []string{
		eventbus.EventRoutesRegistered,
		eventbus.EventRoutesUnregistered,
	}, events)
}

func TestMerge_DynamicOverridesByPath(t *testing.T) {
	static := []Entry{{Path: "/a", Label: "Static"}}
	dynamic := []Entry{{Path: "/a", Label: "Dynamic"}}

	merged := Merge(static, dynamic)
	require.Len(t, merged, 1)
	assert.Equal(t, "Dynamic", merged[0].Label)
	assert.Equal(t, "/a", merged[0].Path)
}

func TestMerge_SortsByOrderAscending(t *testing.T) {
	static := []Entry{
		{Path: "/c", Label: "C", Order: 2},
		{Path: "/a", Label: "A"},
	}
	dynamic := []Entry{
		{Path: "/b", Label: "B", Order: 1},
	}

	merged := Merge(static, dynamic)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{merged[0].Label, merged[1].Label, merged[2].Label})
}

func TestMerge_DefaultOrderZeroIsStable(t *testing.T) {
	static := []Entry{{Path: "/x", Label: "X"}, {Path: "/y", Label: "Y"}}
	dynamic := []Entry{{Path: "/z", Label: "Z"}}

	merged := Merge(static, dynamic)
	assert.Equal(t, []string{"X", "Y", "Z"}, []string{merged[0].Label, merged[1].Label, merged[2].Label})
}

func TestRegistry_Merged(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("dash", []Entry{{Path: "/dash/live", Label: "Live", Order: 1}})

	merged := reg.Merged("dash", []Entry{{Path: "/dash", Label: "Overview"}})
	require.Len(t, merged, 2)
	assert.Equal(t, "Overview", merged[0].Label)
	assert.Equal(t, "Live", merged[1].Label)
}

func TestFilterByPermissions(t *testing.T) {
	entries := []Entry{
		{Path: "/public", Label: "Public"},
		{Path: "/admin", Label: "Admin", Permissions: []string{"admin"}},
	}

	user := auth.User{ID: "u1"}
	filtered := FilterByPermissions(entries, user)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Public", filtered[0].Label)

	admin := auth.User{ID: "u2", Permissions: []string{"admin"}}
	assert.Len(t, FilterByPermissions(entries, admin), 2)
}
