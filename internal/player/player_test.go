package player

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcqq/internal/storage"
)

func newRegistry(t *testing.T, limits Limits) (*Registry, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "players.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewStore[Player](context.Background(), db, Namespace)
	require.NoError(t, err)
	return NewRegistry(store, limits), db
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("JE")
	assert.True(t, ok)
	assert.Equal(t, KindJava, k)
	k, ok = ParseKind("bedrock")
	assert.True(t, ok)
	assert.Equal(t, KindBedrock, k)
	_, ok = ParseKind("pocket")
	assert.False(t, ok)
}

func TestBind_CreatesAndPersists(t *testing.T) {
	reg, db := newRegistry(t, Limits{})
	ctx := context.Background()

	p, err := reg.Bind(ctx, PlatformQQ, "10001", KindJava, "Steve")
	require.NoError(t, err)
	assert.Equal(t, "Steve", p.Name)
	assert.Equal(t, []string{"Steve"}, p.JavaName)

	store, err := storage.NewStore[Player](ctx, db, Namespace)
	require.NoError(t, err)
	reloaded := NewRegistry(store, Limits{})
	got, ok := reloaded.FindByAccount(PlatformQQ, "10001")
	require.True(t, ok)
	assert.Equal(t, "Steve", got.Name)

	byName, ok := reloaded.FindByName("steve")
	require.True(t, ok)
	assert.True(t, byName.HasAccount(PlatformQQ, "10001"))
}

func TestBind_Limits(t *testing.T) {
	reg, _ := newRegistry(t, Limits{MaxJava: 1, MaxBedrock: 2})
	ctx := context.Background()

	_, err := reg.Bind(ctx, PlatformQQ, "1", KindJava, "Steve")
	require.NoError(t, err)

	_, err = reg.Bind(ctx, PlatformQQ, "1", KindJava, "Alex")
	assert.ErrorIs(t, err, ErrLimitExceeded)

	_, err = reg.Bind(ctx, PlatformQQ, "1", KindBedrock, "Steve BE")
	require.NoError(t, err)
	p, err := reg.Bind(ctx, PlatformQQ, "1", KindBedrock, "Steve2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Steve BE", "Steve2"}, p.BedrockName)

	_, err = reg.Bind(ctx, PlatformQQ, "1", KindBedrock, "Steve3")
	assert.ErrorIs(t, err, ErrLimitExceeded)

	// rebinding an owned name is a no-op
	_, err = reg.Bind(ctx, PlatformQQ, "1", KindJava, "Steve")
	assert.NoError(t, err)
}

func TestBind_NameTaken(t *testing.T) {
	reg, _ := newRegistry(t, Limits{})
	ctx := context.Background()

	_, err := reg.Bind(ctx, PlatformQQ, "1", KindJava, "Steve")
	require.NoError(t, err)
	_, err = reg.Bind(ctx, PlatformQQ, "2", KindJava, "steve")
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestUnbind_PrunesEmptyPlayer(t *testing.T) {
	reg, _ := newRegistry(t, Limits{MaxJava: 2})
	ctx := context.Background()

	_, err := reg.Bind(ctx, PlatformQQ, "1", KindJava, "Steve")
	require.NoError(t, err)
	_, err = reg.Bind(ctx, PlatformQQ, "1", KindJava, "Alex")
	require.NoError(t, err)

	removed, err := reg.Unbind(ctx, PlatformQQ, "1", "alex")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alex"}, removed)
	assert.Len(t, reg.All(), 1)

	_, err = reg.Unbind(ctx, PlatformQQ, "1", "Nobody")
	assert.ErrorIs(t, err, ErrNotBound)

	removed, err = reg.Unbind(ctx, PlatformQQ, "1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Steve"}, removed)
	assert.Empty(t, reg.All())

	_, err = reg.Unbind(ctx, PlatformQQ, "1", "")
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestUnbindAccount(t *testing.T) {
	reg, _ := newRegistry(t, Limits{MaxAccounts: 2})
	ctx := context.Background()

	_, err := reg.Bind(ctx, PlatformQQ, "1", KindJava, "Steve")
	require.NoError(t, err)
	_, err = reg.LinkAccount(ctx, "Steve", PlatformQQ, "2")
	require.NoError(t, err)
	_, err = reg.LinkAccount(ctx, "Steve", PlatformQQ, "3")
	assert.ErrorIs(t, err, ErrLimitExceeded)

	removed, err := reg.UnbindAccount(ctx, PlatformQQ, "1")
	require.NoError(t, err)
	assert.Empty(t, removed, "another account still owns the names")

	removed, err = reg.UnbindAccount(ctx, PlatformQQ, "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Steve"}, removed)
	assert.Empty(t, reg.All())
}

func TestPermission(t *testing.T) {
	reg, _ := newRegistry(t, Limits{})
	ctx := context.Background()

	admins := map[string][]string{PlatformQQ: {"10001"}}
	perm := NewPermission(func() map[string][]string { return admins }, reg)

	assert.True(t, perm.IsAdmin(PlatformQQ, "10001"))
	assert.False(t, perm.IsAdmin(PlatformQQ, "10002"))
	assert.False(t, perm.IsAdmin(PlatformQQ, ""))

	_, err := reg.Bind(ctx, PlatformQQ, "10002", KindJava, "Alex")
	require.NoError(t, err)
	require.NoError(t, reg.SetProperty(ctx, "Alex", AdminProperty, true))

	assert.True(t, perm.IsAdmin(PlatformQQ, "10002"))
	assert.True(t, perm.IsAdmin(PlatformMinecraft, "Alex"))

	admins = map[string][]string{}
	assert.False(t, perm.IsAdmin(PlatformQQ, "10001"), "admin list is read live")

	assert.ErrorIs(t, reg.SetProperty(ctx, "Ghost", AdminProperty, true), ErrUnknownPlayer)
}
