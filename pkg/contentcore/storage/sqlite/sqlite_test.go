package sqlite

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/storage/storagetest"
)

func openTestDB(t *testing.T) *Storage[storagetest.Note] {
	t.Helper()

	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, EnsureSchema(context.Background(), db))
	return New[storagetest.Note](db, "note")
}

func TestSQLiteStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) contentcore.Storage[storagetest.Note] {
		return openTestDB(t)
	})
}

func TestSQLiteStorage_TypesAreIsolated(t *testing.T) {
	notes := openTestDB(t)
	todos := New[storagetest.Note](notes.db, "todo")
	ctx := context.Background()

	_, err := notes.Create(ctx, storagetest.Note{Title: "shared id"}, contentcore.CreateOptions{ID: "1"})
	require.NoError(t, err)
	_, err = todos.Create(ctx, storagetest.Note{Title: "shared id"}, contentcore.CreateOptions{ID: "1"})
	require.NoError(t, err)

	require.NoError(t, todos.Delete(ctx, "1"))

	got, err := notes.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "note", got.Type)
}

func TestSQLiteStorage_SearchEscapesWildcards(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	_, err := s.Create(ctx, storagetest.Note{Title: "100% done"}, contentcore.CreateOptions{})
	require.NoError(t, err)
	_, err = s.Create(ctx, storagetest.Note{Title: "1000 done"}, contentcore.CreateOptions{})
	require.NoError(t, err)

	res, err := s.Search(ctx, contentcore.SearchQuery{Text: "100%"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestContentMatch(t *testing.T) {
	match := func(attributes any, text string) driver.Value {
		v, err := contentMatch(nil, []driver.Value{attributes, text})
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, int64(1), match(`{"title":"Crème Brûlée"}`, "BRÛLÉE"))
	assert.Equal(t, int64(1), match([]byte(`{"title":"Tom & Jerry"}`), "tom & jerry"))
	assert.Equal(t, int64(0), match(`{"title":"x"}`, "title"))
	assert.Equal(t, int64(1), match(`{}`, ""))
	assert.Equal(t, int64(0), match(nil, "x"))
}
