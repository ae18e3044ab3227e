package contentcore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/storage/memory"
)

// recorder collects events; it is safe for concurrent emitters.
type recorder struct {
	mu     sync.Mutex
	events []contentcore.Event
}

func (r *recorder) handle(e contentcore.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []contentcore.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contentcore.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newNoteCrud(t *testing.T) (*contentcore.Crud[note], *recorder) {
	t.Helper()
	bus := contentcore.NewEventBus(nil)
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	return contentcore.NewCrud[note]("note", memory.New[note]("note"), bus), rec
}

// failingStorage rejects every call with err.
type failingStorage struct {
	err error
}

func (f failingStorage) Get(ctx context.Context, id string) (*contentcore.Item[note], error) {
	return nil, f.err
}

func (f failingStorage) MGet(ctx context.Context, ids []string) ([]*contentcore.Item[note], error) {
	return nil, f.err
}

func (f failingStorage) Create(ctx context.Context, attrs note, opts contentcore.CreateOptions) (*contentcore.Item[note], error) {
	return nil, f.err
}

func (f failingStorage) Update(ctx context.Context, id string, patch contentcore.Patch, opts contentcore.UpdateOptions) (*contentcore.UpdateResult, error) {
	return nil, f.err
}

func (f failingStorage) Delete(ctx context.Context, id string) error {
	return f.err
}

func (f failingStorage) Search(ctx context.Context, query contentcore.SearchQuery) (*contentcore.SearchResult[note], error) {
	return nil, f.err
}

func TestCrud_GetEvents(t *testing.T) {
	crud, rec := newNoteCrud(t)
	ctx := context.Background()

	created, err := crud.Create(ctx, note{Title: "x"}, contentcore.CreateOptions{})
	require.NoError(t, err)
	rec.reset()

	item, err := crud.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", item.Attributes.Title)

	require.Len(t, rec.events, 2)
	assert.Equal(t, []contentcore.EventType{contentcore.EventGetItemStart, contentcore.EventGetItemSuccess}, rec.types())
	for _, e := range rec.events {
		assert.Equal(t, "note", e.ContentType)
		assert.Equal(t, created.ID, e.ContentID)
	}
	assert.Same(t, item, rec.events[1].Data)
}

func TestCrud_ErrorsPassThroughUnchanged(t *testing.T) {
	backendErr := errors.New("cluster unavailable")
	bus := contentcore.NewEventBus(nil)
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	crud := contentcore.NewCrud[note]("note", failingStorage{err: backendErr}, bus)
	ctx := context.Background()

	tests := []struct {
		name  string
		call  func() error
		start contentcore.EventType
		fail  contentcore.EventType
	}{
		{"Get", func() error { _, err := crud.Get(ctx, "1"); return err }, contentcore.EventGetItemStart, contentcore.EventGetItemError},
		{"MGet", func() error { _, err := crud.MGet(ctx, []string{"1"}); return err }, contentcore.EventBulkGetItemStart, contentcore.EventBulkGetItemError},
		{"Create", func() error { _, err := crud.Create(ctx, note{}, contentcore.CreateOptions{}); return err }, contentcore.EventCreateItemStart, contentcore.EventCreateItemError},
		{"Update", func() error { _, err := crud.Update(ctx, "1", contentcore.Patch{}, contentcore.UpdateOptions{}); return err }, contentcore.EventUpdateItemStart, contentcore.EventUpdateItemError},
		{"Delete", func() error { return crud.Delete(ctx, "1") }, contentcore.EventDeleteItemStart, contentcore.EventDeleteItemError},
		{"Search", func() error { _, err := crud.Search(ctx, contentcore.SearchQuery{}); return err }, contentcore.EventSearchItemStart, contentcore.EventSearchItemError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.reset()

			err := tt.call()
			assert.Equal(t, backendErr, err)

			assert.Equal(t, []contentcore.EventType{tt.start, tt.fail}, rec.types())
			assert.Equal(t, backendErr, rec.events[1].Error)
		})
	}
}

func TestCrud_AllOperationsInstrumented(t *testing.T) {
	crud, rec := newNoteCrud(t)
	ctx := context.Background()

	created, err := crud.Create(ctx, note{Title: "a"}, contentcore.CreateOptions{})
	require.NoError(t, err)
	_, err = crud.MGet(ctx, []string{created.ID})
	require.NoError(t, err)
	_, err = crud.Update(ctx, created.ID, contentcore.Patch{"body": json.RawMessage(`"b"`)}, contentcore.UpdateOptions{})
	require.NoError(t, err)
	_, err = crud.Search(ctx, contentcore.SearchQuery{Text: "a"})
	require.NoError(t, err)
	require.NoError(t, crud.Delete(ctx, created.ID))

	assert.Equal(t, []contentcore.EventType{
		contentcore.EventCreateItemStart, contentcore.EventCreateItemSuccess,
		contentcore.EventBulkGetItemStart, contentcore.EventBulkGetItemSuccess,
		contentcore.EventUpdateItemStart, contentcore.EventUpdateItemSuccess,
		contentcore.EventSearchItemStart, contentcore.EventSearchItemSuccess,
		contentcore.EventDeleteItemStart, contentcore.EventDeleteItemSuccess,
	}, rec.types())

	// The create success event learns the generated id.
	assert.Empty(t, rec.events[0].ContentID)
	assert.Equal(t, created.ID, rec.events[1].ContentID)
	assert.Equal(t, []string{created.ID}, rec.events[2].ContentIDs)
	assert.Nil(t, rec.events[9].Data)
}

func TestCrud_NoteScenario(t *testing.T) {
	core := contentcore.New()
	setup := core.Setup()
	require.NoError(t, setup.Register(contentcore.NewDefinition[note]("note", memory.New[note]("note"))))

	rec := &recorder{}
	setup.Events().Subscribe(rec.handle)

	crud, err := contentcore.TypedCrud[note](setup, "note")
	require.NoError(t, err)
	ctx := context.Background()

	created, err := crud.Create(ctx, note{Title: "x"}, contentcore.CreateOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := crud.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	require.NoError(t, crud.Delete(ctx, created.ID))
	rec.reset()

	_, err = crud.Get(ctx, created.ID)
	assert.ErrorIs(t, err, contentcore.ErrNotFound)
	assert.Equal(t, []contentcore.EventType{contentcore.EventGetItemStart, contentcore.EventGetItemError}, rec.types())
	assert.ErrorIs(t, rec.events[1].Error, contentcore.ErrNotFound)
}

func TestCrud_ConcurrentGetsKeepPerCallOrder(t *testing.T) {
	crud, rec := newNoteCrud(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 10; i++ {
		item, err := crud.Create(ctx, note{Title: fmt.Sprint(i)}, contentcore.CreateOptions{})
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}
	ids = append(ids, "missing")
	rec.reset()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = crud.Get(ctx, id)
		}(id)
	}
	wg.Wait()

	seen := make(map[string][]contentcore.EventType)
	for _, e := range rec.events {
		seen[e.ContentID] = append(seen[e.ContentID], e.Type)
	}
	require.Len(t, seen, len(ids))
	for _, id := range ids {
		types := seen[id]
		require.Len(t, types, 2, id)
		assert.Equal(t, contentcore.EventGetItemStart, types[0], id)
		if id == "missing" {
			assert.Equal(t, contentcore.EventGetItemError, types[1])
		} else {
			assert.Equal(t, contentcore.EventGetItemSuccess, types[1], id)
		}
	}
}

// task has no omitempty tags, so its zero values always encode.
type task struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

func TestCrud_UpdateWritesOnlySentFields(t *testing.T) {
	crud := contentcore.NewCrud[task]("task", memory.New[task]("task"), nil)
	ctx := context.Background()

	created, err := crud.Create(ctx, task{Title: "a", Done: true}, contentcore.CreateOptions{})
	require.NoError(t, err)

	res, err := crud.Update(ctx, created.ID, contentcore.Patch{"title": json.RawMessage(`"b"`)}, contentcore.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, res.Attributes.Keys())

	got, err := crud.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task{Title: "b", Done: true}, got.Attributes)

	_, err = crud.Update(ctx, created.ID, contentcore.Patch{"done": json.RawMessage(`false`)}, contentcore.UpdateOptions{})
	require.NoError(t, err)

	got, err = crud.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task{Title: "b"}, got.Attributes)
}
