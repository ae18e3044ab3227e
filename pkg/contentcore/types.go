package contentcore

import (
	"encoding/json"
	"time"
)

// Search paging defaults shared by all backends.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// CommonFields are carried by every content item regardless of its type.
type CommonFields struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a stored content item with type-specific attributes.
type Item[T any] struct {
	CommonFields
	Attributes T `json:"attributes"`
}

// UpdateResult holds the internal fields of an updated item together with the
// attributes that were actually applied by the update.
type UpdateResult struct {
	CommonFields
	Attributes Patch `json:"attributes"`
}

// CreateOptions control item creation.
type CreateOptions struct {
	// ID assigns an explicit id; a uuid is generated when empty.
	ID string `json:"id,omitempty"`
	// Overwrite replaces an existing item with the same id instead of failing.
	Overwrite bool `json:"overwrite,omitempty"`
}

// UpdateOptions control partial updates.
type UpdateOptions struct {
	// Version, when non-zero, must match the stored version.
	Version int64 `json:"version,omitempty"`
}

// SearchQuery selects items of one content type.
type SearchQuery struct {
	Text   string `json:"text,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Normalize clamps paging values to the supported range.
func (q SearchQuery) Normalize() SearchQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// SearchResult is one page of search hits.
type SearchResult[T any] struct {
	Hits  []*Item[T] `json:"hits"`
	Total int        `json:"total"`
}

// RawItem is an item whose attributes are still JSON encoded.
type RawItem = Item[json.RawMessage]

// MultiSearchQuery searches across content types through the search index.
type MultiSearchQuery struct {
	Text  string   `json:"text,omitempty"`
	Types []string `json:"types,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// ContentRef identifies one item of one content type.
type ContentRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// MultiSearchResult lists references to matching items, best match first.
type MultiSearchResult struct {
	Hits  []ContentRef `json:"hits"`
	Total int          `json:"total"`
}
