package contentcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Definition binds a content type name to its storage backend and to the
// attribute type T chosen at construction.
type Definition struct {
	contentType string
	storage     any
	json        Storage[json.RawMessage]
}

// NewDefinition creates the definition for contentType backed by storage.
// Attributes arriving as JSON are decoded strictly into T; if T implements
// Validator, created attributes are validated as well.
func NewDefinition[T any](contentType string, storage Storage[T]) *Definition {
	def := &Definition{contentType: contentType}
	if storage != nil {
		def.storage = storage
		def.json = &jsonStorage[T]{contentType: contentType, typed: storage}
	}
	return def
}

// ContentType returns the registered name.
func (d *Definition) ContentType() string {
	return d.contentType
}

// Storage returns the backend exactly as it was passed to NewDefinition.
func (d *Definition) Storage() any {
	return d.storage
}

// JSON returns the backend wrapped to accept and return JSON attributes.
func (d *Definition) JSON() Storage[json.RawMessage] {
	return d.json
}

// jsonStorage adapts a typed backend to JSON attributes.
type jsonStorage[T any] struct {
	contentType string
	typed       Storage[T]
}

func (s *jsonStorage[T]) Get(ctx context.Context, id string) (*RawItem, error) {
	item, err := s.typed.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return encodeItem(item)
}

func (s *jsonStorage[T]) MGet(ctx context.Context, ids []string) ([]*RawItem, error) {
	items, err := s.typed.MGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	return encodeItems(items)
}

func (s *jsonStorage[T]) Create(ctx context.Context, attrs json.RawMessage, opts CreateOptions) (*RawItem, error) {
	typed, err := s.decode(attrs, true)
	if err != nil {
		return nil, err
	}
	item, err := s.typed.Create(ctx, typed, opts)
	if err != nil {
		return nil, err
	}
	return encodeItem(item)
}

func (s *jsonStorage[T]) Update(ctx context.Context, id string, patch Patch, opts UpdateOptions) (*UpdateResult, error) {
	if patch == nil {
		return nil, &ValidationError{ContentType: s.contentType, Err: errors.New("attributes are required")}
	}
	// Every key must exist in T with a value of the right type.
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, &ValidationError{ContentType: s.contentType, Err: err}
	}
	if _, err := s.decode(raw, false); err != nil {
		return nil, err
	}
	return s.typed.Update(ctx, id, patch, opts)
}

func (s *jsonStorage[T]) Delete(ctx context.Context, id string) error {
	return s.typed.Delete(ctx, id)
}

func (s *jsonStorage[T]) Search(ctx context.Context, query SearchQuery) (*SearchResult[json.RawMessage], error) {
	res, err := s.typed.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := encodeItems(res.Hits)
	if err != nil {
		return nil, err
	}
	return &SearchResult[json.RawMessage]{Hits: hits, Total: res.Total}, nil
}

func (s *jsonStorage[T]) decode(raw json.RawMessage, validate bool) (T, error) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 {
		return v, &ValidationError{ContentType: s.contentType, Err: errors.New("attributes are required")}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, &ValidationError{ContentType: s.contentType, Err: err}
	}
	if dec.More() {
		return v, &ValidationError{ContentType: s.contentType, Err: errors.New("unexpected data after attributes")}
	}

	if !validate {
		return v, nil
	}
	if validator, ok := any(v).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return v, &ValidationError{ContentType: s.contentType, Err: err}
		}
	} else if validator, ok := any(&v).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return v, &ValidationError{ContentType: s.contentType, Err: err}
		}
	}
	return v, nil
}

func encodeItem[T any](item *Item[T]) (*RawItem, error) {
	if item == nil {
		return nil, nil
	}
	raw, err := json.Marshal(item.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes of %s: %w", item.ID, err)
	}
	return &RawItem{CommonFields: item.CommonFields, Attributes: raw}, nil
}

func encodeItems[T any](items []*Item[T]) ([]*RawItem, error) {
	out := make([]*RawItem, 0, len(items))
	for _, item := range items {
		raw, err := encodeItem(item)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
