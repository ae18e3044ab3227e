package contentcore

import (
	"context"

	"github.com/elastic/go-elasticsearch/v8"
)

// Storage is the persistence capability a feature registers for one content
// type. Implementations must be safe for concurrent use.
type Storage[T any] interface {
	// Get returns the item or ErrNotFound
	Get(ctx context.Context, id string) (*Item[T], error)

	// MGet returns the items found, in request order; missing ids are skipped
	MGet(ctx context.Context, ids []string) ([]*Item[T], error)

	// Create stores a new item
	Create(ctx context.Context, attrs T, opts CreateOptions) (*Item[T], error)

	// Update writes the keys of patch onto the stored item
	Update(ctx context.Context, id string, patch Patch, opts UpdateOptions) (*UpdateResult, error)

	// Delete removes the item or returns ErrNotFound
	Delete(ctx context.Context, id string) error

	// Search returns one page of matching items
	Search(ctx context.Context, query SearchQuery) (*SearchResult[T], error)
}

// Validator is implemented by attribute types that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// StartDeps are the runtime collaborators handed to the search index when the
// core starts.
type StartDeps struct {
	ESClient *elasticsearch.Client
	Events   *EventBus
}

// SearchIndex is started with the core and typically follows the event bus.
type SearchIndex interface {
	Start(ctx context.Context, deps StartDeps) error
	Stop()
}
