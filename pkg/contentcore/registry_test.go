package contentcore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/storage/memory"
)

type note struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type todo struct {
	Title string `json:"title,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

func (t todo) Validate() error {
	if t.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

func TestRegistry_GetStorageReturnsRegisteredInstance(t *testing.T) {
	r := contentcore.NewRegistry()
	backend := memory.New[note]("note")

	require.NoError(t, r.Register(contentcore.NewDefinition[note]("note", backend)))

	got, err := contentcore.GetStorage[note](r, "note")
	require.NoError(t, err)
	assert.Same(t, backend, got)

	def, err := r.Definition("note")
	require.NoError(t, err)
	assert.Same(t, backend, def.Storage())
	assert.True(t, r.IsRegistered("note"))
}

func TestRegistry_UnknownContentType(t *testing.T) {
	r := contentcore.NewRegistry()

	_, err := contentcore.GetStorage[note](r, "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, contentcore.ErrUnknownContentType)

	var ctErr *contentcore.ContentTypeError
	require.ErrorAs(t, err, &ctErr)
	assert.Equal(t, "ghost", ctErr.ContentType)
	assert.Contains(t, err.Error(), "ghost")
}

func TestRegistry_TypeMismatch(t *testing.T) {
	r := contentcore.NewRegistry()
	require.NoError(t, r.Register(contentcore.NewDefinition[note]("note", memory.New[note]("note"))))

	_, err := contentcore.GetStorage[todo](r, "note")
	assert.ErrorIs(t, err, contentcore.ErrTypeMismatch)
}

func TestRegistry_Duplicates(t *testing.T) {
	t.Run("RejectedByDefault", func(t *testing.T) {
		r := contentcore.NewRegistry()
		first := memory.New[note]("note")
		require.NoError(t, r.Register(contentcore.NewDefinition[note]("note", first)))

		err := r.Register(contentcore.NewDefinition[note]("note", memory.New[note]("note")))
		assert.ErrorIs(t, err, contentcore.ErrDuplicateRegistration)

		got, err := contentcore.GetStorage[note](r, "note")
		require.NoError(t, err)
		assert.Same(t, first, got)
	})

	t.Run("OverwriteAllowed", func(t *testing.T) {
		r := contentcore.NewRegistry(contentcore.WithOverwrite())
		require.NoError(t, r.Register(contentcore.NewDefinition[note]("note", memory.New[note]("note"))))

		second := memory.New[note]("note")
		require.NoError(t, r.Register(contentcore.NewDefinition[note]("note", second)))

		got, err := contentcore.GetStorage[note](r, "note")
		require.NoError(t, err)
		assert.Same(t, second, got)
	})
}

func TestRegistry_InvalidRegistrations(t *testing.T) {
	r := contentcore.NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.ErrorIs(t, r.Register(contentcore.NewDefinition[note]("", memory.New[note](""))), contentcore.ErrInvalidContentType)
	assert.ErrorIs(t, r.Register(contentcore.NewDefinition[note]("bad name", memory.New[note]("x"))), contentcore.ErrInvalidContentType)
	assert.Error(t, r.Register(contentcore.NewDefinition[note]("note", nil)))
	assert.Empty(t, r.ContentTypes())
}

func TestRegistry_ContentTypesSorted(t *testing.T) {
	r := contentcore.NewRegistry()
	require.NoError(t, r.Register(contentcore.NewDefinition[todo]("todo", memory.New[todo]("todo"))))
	require.NoError(t, r.Register(contentcore.NewDefinition[note]("note", memory.New[note]("note"))))

	assert.Equal(t, []string{"note", "todo"}, r.ContentTypes())
}

func TestDefinition_JSONAdapter(t *testing.T) {
	def := contentcore.NewDefinition[todo]("todo", memory.New[todo]("todo"))
	s := def.JSON()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	t.Run("StrictDecode", func(t *testing.T) {
		_, err := s.Create(ctx, json.RawMessage(`{"title":"x","color":"red"}`), contentcore.CreateOptions{})
		assert.ErrorIs(t, err, contentcore.ErrInvalidContent)

		_, err = s.Create(ctx, json.RawMessage(`{"title":"x"} {}`), contentcore.CreateOptions{})
		assert.ErrorIs(t, err, contentcore.ErrInvalidContent)

		_, err = s.Create(ctx, nil, contentcore.CreateOptions{})
		assert.ErrorIs(t, err, contentcore.ErrInvalidContent)
	})

	t.Run("ValidateOnCreate", func(t *testing.T) {
		_, err := s.Create(ctx, json.RawMessage(`{"done":true}`), contentcore.CreateOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, contentcore.ErrInvalidContent)
		assert.Contains(t, err.Error(), "title is required")

		var vErr *contentcore.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "todo", vErr.ContentType)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		created, err := s.Create(ctx, json.RawMessage(`{"title":"buy milk"}`), contentcore.CreateOptions{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"buy milk"}`, string(created.Attributes))

		// Partial updates skip validation.
		res, err := s.Update(ctx, created.ID, contentcore.Patch{"done": json.RawMessage(`true`)}, contentcore.UpdateOptions{})
		require.NoError(t, err)
		assert.Equal(t, contentcore.Patch{"done": json.RawMessage(`true`)}, res.Attributes)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"buy milk","done":true}`, string(got.Attributes))

		// An explicit false clears an omitempty field.
		_, err = s.Update(ctx, created.ID, contentcore.Patch{"done": json.RawMessage(`false`)}, contentcore.UpdateOptions{})
		require.NoError(t, err)

		got, err = s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"buy milk"}`, string(got.Attributes))
	})

	t.Run("StrictUpdate", func(t *testing.T) {
		created, err := s.Create(ctx, json.RawMessage(`{"title":"x"}`), contentcore.CreateOptions{})
		require.NoError(t, err)

		for _, p := range []contentcore.Patch{
			nil,
			{"colour": json.RawMessage(`"red"`)},
			{"done": json.RawMessage(`"yes"`)},
		} {
			_, err := s.Update(ctx, created.ID, p, contentcore.UpdateOptions{})
			var vErr *contentcore.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "todo", vErr.ContentType)
			assert.ErrorIs(t, err, contentcore.ErrInvalidContent)
		}

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
	})
}
