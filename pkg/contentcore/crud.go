package contentcore

import (
	"context"
)

// Crud is the facade feature code uses for one content type. Every operation
// emits a start event, calls the backend, then emits a success or error
// event. Backend errors are returned unchanged.
type Crud[T any] struct {
	contentType string
	storage     Storage[T]
	events      *EventBus
}

// NewCrud creates a facade over storage that reports to events. Most callers
// obtain one from Setup.Crud or TypedCrud instead.
func NewCrud[T any](contentType string, storage Storage[T], events *EventBus) *Crud[T] {
	return &Crud[T]{
		contentType: contentType,
		storage:     storage,
		events:      events,
	}
}

// ContentType returns the content type this facade is bound to.
func (c *Crud[T]) ContentType() string {
	return c.contentType
}

// Get returns one item.
func (c *Crud[T]) Get(ctx context.Context, id string) (*Item[T], error) {
	return instrument(c, OpGet, Event{ContentID: id}, func() (*Item[T], error) {
		return c.storage.Get(ctx, id)
	})
}

// MGet returns the items found for ids.
func (c *Crud[T]) MGet(ctx context.Context, ids []string) ([]*Item[T], error) {
	return instrument(c, OpBulkGet, Event{ContentIDs: ids}, func() ([]*Item[T], error) {
		return c.storage.MGet(ctx, ids)
	})
}

// Create stores a new item.
func (c *Crud[T]) Create(ctx context.Context, attrs T, opts CreateOptions) (*Item[T], error) {
	return instrument(c, OpCreate, Event{ContentID: opts.ID, Data: attrs}, func() (*Item[T], error) {
		return c.storage.Create(ctx, attrs, opts)
	})
}

// Update writes the keys of patch and returns them along with the internal
// fields.
func (c *Crud[T]) Update(ctx context.Context, id string, patch Patch, opts UpdateOptions) (*UpdateResult, error) {
	return instrument(c, OpUpdate, Event{ContentID: id, Data: patch}, func() (*UpdateResult, error) {
		return c.storage.Update(ctx, id, patch, opts)
	})
}

// Delete removes an item.
func (c *Crud[T]) Delete(ctx context.Context, id string) error {
	_, err := instrument(c, OpDelete, Event{ContentID: id}, func() (struct{}, error) {
		return struct{}{}, c.storage.Delete(ctx, id)
	})
	return err
}

// Search returns a page of matching items.
func (c *Crud[T]) Search(ctx context.Context, query SearchQuery) (*SearchResult[T], error) {
	return instrument(c, OpSearch, Event{Data: query}, func() (*SearchResult[T], error) {
		return c.storage.Search(ctx, query)
	})
}

// instrument wraps one backend call in start and success/error events. The
// success event carries the result and, when the start event had no id, the
// id of the returned item.
func instrument[T, R any](c *Crud[T], op string, start Event, call func() (R, error)) (R, error) {
	start.Type = NewEventType(op, PhaseStart)
	start.ContentType = c.contentType
	c.emit(start)

	res, err := call()

	done := Event{
		ContentType: c.contentType,
		ContentID:   start.ContentID,
		ContentIDs:  start.ContentIDs,
	}
	if err != nil {
		done.Type = NewEventType(op, PhaseError)
		done.Error = err
		c.emit(done)
		return res, err
	}

	done.Type = NewEventType(op, PhaseSuccess)
	if op != OpDelete {
		done.Data = res
	}
	if item, ok := any(res).(*Item[T]); ok && item != nil && done.ContentID == "" {
		done.ContentID = item.ID
	}
	c.emit(done)
	return res, nil
}

func (c *Crud[T]) emit(event Event) {
	if c.events != nil {
		c.events.Emit(event)
	}
}
