package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/content-core/pkg/contentcore"
)

type record struct {
	fields     contentcore.CommonFields
	attributes []byte
}

// Storage implements contentcore.Storage in memory. Attributes are kept JSON
// encoded so callers never share state with the store.
type Storage[T any] struct {
	contentType string

	mu    sync.RWMutex
	items map[string]*record
}

// New creates an empty in-memory backend for contentType
func New[T any](contentType string) *Storage[T] {
	return &Storage[T]{
		contentType: contentType,
		items:       make(map[string]*record),
	}
}

func (s *Storage[T]) Get(ctx context.Context, id string) (*contentcore.Item[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.items[id]
	if !exists {
		return nil, contentcore.ErrNotFound
	}
	return decode[T](rec)
}

func (s *Storage[T]) MGet(ctx context.Context, ids []string) ([]*contentcore.Item[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*contentcore.Item[T], 0, len(ids))
	for _, id := range ids {
		rec, exists := s.items[id]
		if !exists {
			continue
		}
		item, err := decode[T](rec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Storage[T]) Create(ctx context.Context, attrs T, opts contentcore.CreateOptions) (*contentcore.Item[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists && !opts.Overwrite {
		return nil, fmt.Errorf("%s %s already exists: %w", s.contentType, id, contentcore.ErrConflict)
	}

	now := time.Now().UTC()
	rec := &record{
		fields: contentcore.CommonFields{
			ID:        id,
			Type:      s.contentType,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		},
		attributes: encoded,
	}
	s.items[id] = rec
	return decode[T](rec)
}

func (s *Storage[T]) Update(ctx context.Context, id string, patch contentcore.Patch, opts contentcore.UpdateOptions) (*contentcore.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.items[id]
	if !exists {
		return nil, contentcore.ErrNotFound
	}
	if opts.Version != 0 && opts.Version != rec.fields.Version {
		return nil, fmt.Errorf("%s %s is at version %d, not %d: %w",
			s.contentType, id, rec.fields.Version, opts.Version, contentcore.ErrConflict)
	}

	current, err := decode[T](rec)
	if err != nil {
		return nil, err
	}
	merged, applied, err := contentcore.MergeAttributes(current.Attributes, patch)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	// Replace rather than mutate so readers holding a decoded copy are unaffected.
	updated := &record{fields: rec.fields, attributes: encoded}
	updated.fields.Version++
	updated.fields.UpdatedAt = time.Now().UTC()
	s.items[id] = updated

	return &contentcore.UpdateResult{CommonFields: updated.fields, Attributes: applied}, nil
}

func (s *Storage[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return contentcore.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Storage[T]) Search(ctx context.Context, query contentcore.SearchQuery) (*contentcore.SearchResult[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*contentcore.Item[T]
	for _, rec := range s.items {
		if !contentcore.MatchText(rec.attributes, query.Text) {
			continue
		}
		item, err := decode[T](rec)
		if err != nil {
			return nil, err
		}
		matches = append(matches, item)
	}
	return contentcore.PageItems(matches, query), nil
}

// Len returns the number of stored items
func (s *Storage[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func decode[T any](rec *record) (*contentcore.Item[T], error) {
	item := &contentcore.Item[T]{CommonFields: rec.fields}
	if err := json.Unmarshal(rec.attributes, &item.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", rec.fields.ID, err)
	}
	return item, nil
}
