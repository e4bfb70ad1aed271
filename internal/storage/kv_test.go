package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKV_SetGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	kv := db.KV("cooldown")

	require.NoError(t, kv.Set(ctx, "10001", "1", 0))
	require.NoError(t, kv.Set(ctx, "10001", "2", 0))

	v, err := kv.Get(ctx, "10001")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestKV_NamespacesAreIsolated(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.KV("a").Set(ctx, "k", "from-a", 0))
	_, err := db.KV("b").Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := db.KV("a").List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "from-a"}, list)
}

func TestKV_Expired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	kv := db.KV("cooldown")

	require.NoError(t, kv.Set(ctx, "gone", "x", time.Nanosecond))
	require.NoError(t, kv.Set(ctx, "stays", "y", time.Hour))
	time.Sleep(5 * time.Millisecond)

	_, err := kv.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := kv.Exists(ctx, "stays")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := kv.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, list, "gone")
}

func TestKV_Delete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	kv := db.KV("x")

	require.NoError(t, kv.Set(ctx, "k", "v", 0))
	require.NoError(t, kv.Delete(ctx, "k"))
	assert.ErrorIs(t, kv.Delete(ctx, "k"), ErrNotFound)
}

func TestCleanExpired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.KV("a").Set(ctx, "1", "x", time.Nanosecond))
	require.NoError(t, db.KV("b").Set(ctx, "2", "x", time.Nanosecond))
	require.NoError(t, db.KV("b").Set(ctx, "3", "x", 0))
	time.Sleep(5 * time.Millisecond)

	n, err := db.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := db.KV("b").Exists(ctx, "3")
	require.NoError(t, err)
	assert.True(t, ok)
}
