// Package storagetest holds the behaviour every contentcore.Storage backend
// is expected to share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-core/pkg/contentcore"
)

// Note is the attribute type used by the shared tests.
type Note struct {
	Title  string   `json:"title,omitempty"`
	Body   string   `json:"body,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Pinned bool     `json:"pinned,omitempty"`
}

func patch(t *testing.T, fields map[string]any) contentcore.Patch {
	t.Helper()
	p, err := contentcore.NewPatch(fields)
	require.NoError(t, err)
	return p
}

// Factory returns a fresh, empty backend.
type Factory func(t *testing.T) contentcore.Storage[Note]

// Run exercises a backend against the shared storage semantics.
func Run(t *testing.T, newStorage Factory) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStorage(t)

		created, err := s.Create(ctx, Note{Title: "Hello", Body: "World"}, contentcore.CreateOptions{})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.NotEmpty(t, created.Type)
		assert.Equal(t, int64(1), created.Version)
		assert.False(t, created.CreatedAt.IsZero())
		assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Hello", got.Attributes.Title)
		assert.Equal(t, "World", got.Attributes.Body)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.Type, got.Type)
	})

	t.Run("CreateWithID", func(t *testing.T) {
		s := newStorage(t)

		created, err := s.Create(ctx, Note{Title: "A"}, contentcore.CreateOptions{ID: "fixed"})
		require.NoError(t, err)
		assert.Equal(t, "fixed", created.ID)

		_, err = s.Create(ctx, Note{Title: "B"}, contentcore.CreateOptions{ID: "fixed"})
		assert.ErrorIs(t, err, contentcore.ErrConflict)

		replaced, err := s.Create(ctx, Note{Title: "C"}, contentcore.CreateOptions{ID: "fixed", Overwrite: true})
		require.NoError(t, err)
		assert.Equal(t, "C", replaced.Attributes.Title)

		got, err := s.Get(ctx, "fixed")
		require.NoError(t, err)
		assert.Equal(t, "C", got.Attributes.Title)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStorage(t)

		item, err := s.Get(ctx, "missing")
		assert.Nil(t, item)
		assert.ErrorIs(t, err, contentcore.ErrNotFound)
	})

	t.Run("MGetKeepsOrderAndSkipsMissing", func(t *testing.T) {
		s := newStorage(t)

		a, err := s.Create(ctx, Note{Title: "a"}, contentcore.CreateOptions{ID: "a"})
		require.NoError(t, err)
		b, err := s.Create(ctx, Note{Title: "b"}, contentcore.CreateOptions{ID: "b"})
		require.NoError(t, err)

		items, err := s.MGet(ctx, []string{b.ID, "missing", a.ID})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "b", items[0].ID)
		assert.Equal(t, "a", items[1].ID)

		items, err = s.MGet(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("UpdateMergesFields", func(t *testing.T) {
		s := newStorage(t)

		created, err := s.Create(ctx, Note{Title: "Draft", Body: "keep me"}, contentcore.CreateOptions{})
		require.NoError(t, err)

		res, err := s.Update(ctx, created.ID, patch(t, map[string]any{"title": "Final"}), contentcore.UpdateOptions{})
		require.NoError(t, err)
		assert.Equal(t, created.ID, res.ID)
		assert.Equal(t, int64(2), res.Version)
		assert.Equal(t, []string{"title"}, res.Attributes.Keys(), "only applied fields are returned")
		assert.JSONEq(t, `"Final"`, string(res.Attributes["title"]))
		assert.False(t, res.UpdatedAt.Before(created.UpdatedAt))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Final", got.Attributes.Title)
		assert.Equal(t, "keep me", got.Attributes.Body)
		assert.Equal(t, int64(2), got.Version)
		assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("UpdateAppliesZeroValues", func(t *testing.T) {
		s := newStorage(t)

		created, err := s.Create(ctx, Note{Title: "Pinned", Body: "keep me", Tags: []string{"a"}, Pinned: true}, contentcore.CreateOptions{})
		require.NoError(t, err)

		res, err := s.Update(ctx, created.ID, patch(t, map[string]any{"pinned": false, "tags": nil}), contentcore.UpdateOptions{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"pinned", "tags"}, res.Attributes.Keys())
		assert.JSONEq(t, `false`, string(res.Attributes["pinned"]))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, got.Attributes.Pinned)
		assert.Empty(t, got.Attributes.Tags)
		assert.Equal(t, "Pinned", got.Attributes.Title)
		assert.Equal(t, "keep me", got.Attributes.Body)
	})

	t.Run("UpdateRejectsUnknownField", func(t *testing.T) {
		s := newStorage(t)

		created, err := s.Create(ctx, Note{Title: "x"}, contentcore.CreateOptions{})
		require.NoError(t, err)

		_, err = s.Update(ctx, created.ID, patch(t, map[string]any{"colour": "red"}), contentcore.UpdateOptions{})
		assert.ErrorIs(t, err, contentcore.ErrInvalidContent)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("UpdateVersionCheck", func(t *testing.T) {
		s := newStorage(t)

		created, err := s.Create(ctx, Note{Title: "v1"}, contentcore.CreateOptions{})
		require.NoError(t, err)

		_, err = s.Update(ctx, created.ID, patch(t, map[string]any{"title": "stale"}), contentcore.UpdateOptions{Version: 5})
		assert.ErrorIs(t, err, contentcore.ErrConflict)

		res, err := s.Update(ctx, created.ID, patch(t, map[string]any{"title": "v2"}), contentcore.UpdateOptions{Version: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Version)
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		s := newStorage(t)

		_, err := s.Update(ctx, "missing", patch(t, map[string]any{"title": "x"}), contentcore.UpdateOptions{})
		assert.ErrorIs(t, err, contentcore.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStorage(t)

		created, err := s.Create(ctx, Note{Title: "gone"}, contentcore.CreateOptions{})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, created.ID))

		_, err = s.Get(ctx, created.ID)
		assert.ErrorIs(t, err, contentcore.ErrNotFound)

		err = s.Delete(ctx, created.ID)
		assert.True(t, errors.Is(err, contentcore.ErrNotFound))
	})

	t.Run("Search", func(t *testing.T) {
		s := newStorage(t)

		for i := 0; i < 5; i++ {
			_, err := s.Create(ctx, Note{Title: fmt.Sprintf("Groceries %d", i)}, contentcore.CreateOptions{ID: fmt.Sprintf("g%d", i)})
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, Note{Title: "Meeting notes"}, contentcore.CreateOptions{})
		require.NoError(t, err)

		res, err := s.Search(ctx, contentcore.SearchQuery{Text: "groceries"})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Total)
		assert.Len(t, res.Hits, 5)

		page, err := s.Search(ctx, contentcore.SearchQuery{Text: "GROCERIES", Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Len(t, page.Hits, 1)

		all, err := s.Search(ctx, contentcore.SearchQuery{})
		require.NoError(t, err)
		assert.Equal(t, 6, all.Total)

		none, err := s.Search(ctx, contentcore.SearchQuery{Text: "nothing like this"})
		require.NoError(t, err)
		assert.Equal(t, 0, none.Total)
		assert.NotNil(t, none.Hits)
	})

	t.Run("SearchMatchesValues", func(t *testing.T) {
		s := newStorage(t)

		_, err := s.Create(ctx, Note{Title: "Tom & Jerry <3"}, contentcore.CreateOptions{ID: "cartoon"})
		require.NoError(t, err)
		_, err = s.Create(ctx, Note{Title: "Dessert", Tags: []string{"Crème Brûlée"}}, contentcore.CreateOptions{ID: "dessert"})
		require.NoError(t, err)

		for text, want := range map[string][]string{
			"Tom & Jerry":  {"cartoon"},
			"jerry <3":     {"cartoon"},
			"crème brûlée": {"dessert"},
			"title":        nil,
			"tags":         nil,
			`"`:            nil,
		} {
			res, err := s.Search(ctx, contentcore.SearchQuery{Text: text})
			require.NoError(t, err, text)
			var ids []string
			for _, hit := range res.Hits {
				ids = append(ids, hit.ID)
			}
			assert.Equal(t, want, ids, "search %q", text)
			assert.Equal(t, len(want), res.Total, "search %q", text)
		}
	})

	t.Run("SearchNewestFirst", func(t *testing.T) {
		s := newStorage(t)

		first, err := s.Create(ctx, Note{Title: "report one"}, contentcore.CreateOptions{ID: "one"})
		require.NoError(t, err)
		_, err = s.Create(ctx, Note{Title: "report two"}, contentcore.CreateOptions{ID: "two"})
		require.NoError(t, err)

		// Updating the first item makes it the most recently changed.
		_, err = s.Update(ctx, first.ID, patch(t, map[string]any{"body": "edited"}), contentcore.UpdateOptions{})
		require.NoError(t, err)

		res, err := s.Search(ctx, contentcore.SearchQuery{Text: "report"})
		require.NoError(t, err)
		require.Len(t, res.Hits, 2)
		assert.Equal(t, "one", res.Hits[0].ID)
	})
}
