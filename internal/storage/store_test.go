package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyword struct {
	Reply string `json:"reply"`
	By    string `json:"by"`
}

func TestStore_WriteThrough(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, err := NewStore[keyword](ctx, db, "keyword")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "ping", keyword{Reply: "pong", By: "admin"}))
	require.NoError(t, s.Set(ctx, "hi", keyword{Reply: "hello"}))

	reopened, err := NewStore[keyword](ctx, db, "keyword")
	require.NoError(t, err)
	v, ok := reopened.Get("ping")
	require.True(t, ok)
	assert.Equal(t, "pong", v.Reply)
	assert.Equal(t, []string{"hi", "ping"}, reopened.Keys())
	assert.Equal(t, 2, reopened.Len())

	other, err := NewStore[keyword](ctx, db, "ban_words")
	require.NoError(t, err)
	assert.Zero(t, other.Len())
}

func TestStore_Delete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, err := NewStore[string](ctx, db, "ban_words")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "foo", "spam"))
	require.NoError(t, s.Delete(ctx, "foo"))
	assert.ErrorIs(t, s.Delete(ctx, "foo"), ErrNotFound)

	require.NoError(t, s.Load(ctx))
	assert.False(t, s.Has("foo"))
}

func TestStore_Update(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, err := NewStore[[]string](ctx, db, "lists")
	require.NoError(t, err)

	appendName := func(name string) func([]string, bool) ([]string, bool, error) {
		return func(cur []string, _ bool) ([]string, bool, error) {
			return append(cur, name), true, nil
		}
	}
	require.NoError(t, s.Update(ctx, "p", appendName("a")))
	require.NoError(t, s.Update(ctx, "p", appendName("b")))
	v, _ := s.Get("p")
	assert.Equal(t, []string{"a", "b"}, v)

	boom := errors.New("boom")
	err = s.Update(ctx, "p", func([]string, bool) ([]string, bool, error) { return nil, false, boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, s.Has("p"))

	require.NoError(t, s.Update(ctx, "p", func([]string, bool) ([]string, bool, error) { return nil, false, nil }))
	require.NoError(t, s.Load(ctx))
	assert.False(t, s.Has("p"))
}

func TestStore_Save(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, err := NewStore[int](ctx, db, "n")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", 1))

	_, err = db.Exec("DELETE FROM records")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	reopened, err := NewStore[int](ctx, db, "n")
	require.NoError(t, err)
	v, ok := reopened.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}
