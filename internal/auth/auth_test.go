package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_HasPermission(t *testing.T) {
	user := User{ID: "u1", Permissions: []string{"admin", "reports.read"}}

	assert.True(t, user.HasPermission("admin"))
	assert.False(t, user.HasPermission("reports.write"))
	assert.True(t, user.HasAll([]string{"admin", "reports.read"}))
	assert.False(t, user.HasAll([]string{"admin", "reports.write"}))
	assert.True(t, user.HasAll(nil))
}

func TestStaticProvider_Snapshot(t *testing.T) {
	user := User{ID: "u1", Name: "Demo"}
	p := NewStaticProvider(user, "tok-1")

	snap := p.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "u1", snap.User.ID)
	assert.Equal(t, "tok-1", snap.Token)
	require.NotNil(t, snap.Logout)
}

func TestStaticProvider_LogoutLogin(t *testing.T) {
	p := NewStaticProvider(User{ID: "u1"}, "tok-1")

	var changes []Snapshot
	cancel := p.Subscribe(func(s Snapshot) { changes = append(changes, s) })
	defer cancel()

	snap := p.Snapshot()
	require.NoError(t, snap.Logout(context.Background()))

	after := p.Snapshot()
	assert.False(t, after.IsAuthenticated)
	assert.Empty(t, after.User.ID)
	assert.Empty(t, after.Token)

	require.NoError(t, after.Login(context.Background()))
	assert.True(t, p.Snapshot().IsAuthenticated)

	require.Len(t, changes, 2)
	assert.False(t, changes[0].IsAuthenticated)
	assert.True(t, changes[1].IsAuthenticated)

	// Logging out twice only notifies once.
	_ = p.Snapshot().Logout(context.Background())
	_ = p.Snapshot().Logout(context.Background())
	assert.Len(t, changes, 3)
}

func TestStaticProvider_Unsubscribe(t *testing.T) {
	p := NewStaticProvider(User{ID: "u1"}, "")

	calls := 0
	cancel := p.Subscribe(func(Snapshot) { calls++ })
	cancel()

	_ = p.Snapshot().Logout(context.Background())
	assert.Zero(t, calls)
}
