// Package elastic keeps an Elasticsearch index in step with the content
// event bus and answers searches that span content types.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tendant/content-core/pkg/contentcore"
)

// Defaults applied by New.
const (
	DefaultIndex   = "content-items"
	DefaultTimeout = 5 * time.Second
)

var (
	// ErrNoClient indicates Start was called without an Elasticsearch client
	ErrNoClient = errors.New("elasticsearch client is required")

	// ErrNotStarted indicates Search was called before Start
	ErrNotStarted = errors.New("search index not started")
)

// Config holds index settings
type Config struct {
	Index   string        // Index name
	Timeout time.Duration // Per request timeout for indexing calls
	Refresh bool          // Refresh after every write, for tests and demos
}

// Index implements contentcore.SearchIndex
type Index struct {
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	client *es.Client
	off    []func()
}

// Option configures an Index
type Option func(*Index)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an index that does nothing until started
func New(config Config, opts ...Option) *Index {
	if config.Index == "" {
		config.Index = DefaultIndex
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	i := &Index{config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"type":       map[string]any{"type": "keyword"},
			"id":         map[string]any{"type": "keyword"},
			"version":    map[string]any{"type": "long"},
			"created_at": map[string]any{"type": "date"},
			"updated_at": map[string]any{"type": "date"},
			"attributes": map[string]any{"type": "object", "dynamic": true},
		},
	},
}

// Start creates the index if needed and subscribes to write events.
func (i *Index) Start(ctx context.Context, deps contentcore.StartDeps) error {
	if deps.ESClient == nil {
		return ErrNoClient
	}
	if deps.Events == nil {
		return errors.New("event bus is required")
	}

	if err := ensureIndex(ctx, deps.ESClient, i.config.Index); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.client = deps.ESClient
	i.off = append(i.off,
		deps.Events.On(contentcore.EventCreateItemSuccess, i.handle),
		deps.Events.On(contentcore.EventUpdateItemSuccess, i.handle),
		deps.Events.On(contentcore.EventDeleteItemSuccess, i.handle),
	)

	i.logger.Info("Search index started", "index", i.config.Index)
	return nil
}

// Stop unsubscribes from the event bus
func (i *Index) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, off := range i.off {
		off()
	}
	i.off = nil
}

func ensureIndex(ctx context.Context, client *es.Client, name string) error {
	res, err := client.Indices.Exists([]string{name}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", name, err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to check index %s: %s", name, res.Status())
	}

	body, err := json.Marshal(indexMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = client.Indices.Create(
		name,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	defer res.Body.Close()

	// Another instance may have created it in the meantime.
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("error creating index %s: %s", name, res.String())
	}
	return nil
}

// document is the indexed form of an item. Items of every attribute type
// marshal to this shape.
type document struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Version    int64           `json:"version"`
	CreatedAt  *time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

func docID(contentType, id string) string {
	return contentType + ":" + id
}

// handle runs on the emitting goroutine; failures are logged and never reach
// the CRUD caller.
func (i *Index) handle(event contentcore.Event) {
	i.mu.RLock()
	client := i.client
	i.mu.RUnlock()
	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.config.Timeout)
	defer cancel()

	var err error
	switch event.Type {
	case contentcore.EventCreateItemSuccess:
		err = i.indexDocument(ctx, client, event)
	case contentcore.EventUpdateItemSuccess:
		err = i.updateDocument(ctx, client, event)
	case contentcore.EventDeleteItemSuccess:
		err = i.deleteDocument(ctx, client, event)
	}
	if err != nil {
		i.logger.Error("Failed to sync search index",
			"event_type", string(event.Type),
			"content_type", event.ContentType,
			"content_id", event.ContentID,
			"error", err)
	}
}

func decodeDocument(event contentcore.Event) (*document, error) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode event data: %w", err)
	}
	if doc.Type == "" {
		doc.Type = event.ContentType
	}
	if doc.ID == "" {
		doc.ID = event.ContentID
	}
	if doc.ID == "" {
		return nil, errors.New("event carries no content id")
	}
	return &doc, nil
}

func (i *Index) refresh() string {
	if i.config.Refresh {
		return "true"
	}
	return "false"
}

func (i *Index) indexDocument(ctx context.Context, client *es.Client, event contentcore.Event) error {
	doc, err := decodeDocument(event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := client.Index(
		i.config.Index,
		bytes.NewReader(body),
		client.Index.WithContext(ctx),
		client.Index.WithDocumentID(docID(doc.Type, doc.ID)),
		client.Index.WithRefresh(i.refresh()),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}
	return nil
}

func (i *Index) updateDocument(ctx context.Context, client *es.Client, event contentcore.Event) error {
	doc, err := decodeDocument(event)
	if err != nil {
		return err
	}

	// The update result only carries applied attributes; ES merges objects.
	body, err := json.Marshal(map[string]any{
		"doc":           doc,
		"doc_as_upsert": true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	res, err := client.Update(
		i.config.Index,
		docID(doc.Type, doc.ID),
		bytes.NewReader(body),
		client.Update.WithContext(ctx),
		client.Update.WithRefresh(i.refresh()),
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error updating document: %s", res.String())
	}
	return nil
}

func (i *Index) deleteDocument(ctx context.Context, client *es.Client, event contentcore.Event) error {
	res, err := client.Delete(
		i.config.Index,
		docID(event.ContentType, event.ContentID),
		client.Delete.WithContext(ctx),
		client.Delete.WithRefresh(i.refresh()),
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("error deleting document: %s", res.String())
	}
	return nil
}

// Search runs a simple_query_string over the attributes of the given content
// types, or of all types when none are given.
func (i *Index) Search(ctx context.Context, query contentcore.MultiSearchQuery) (*contentcore.MultiSearchResult, error) {
	i.mu.RLock()
	client := i.client
	i.mu.RUnlock()
	if client == nil {
		return nil, ErrNotStarted
	}

	limit := contentcore.SearchQuery{Limit: query.Limit}.Normalize().Limit

	var must any = map[string]any{"match_all": map[string]any{}}
	if query.Text != "" {
		must = map[string]any{
			"simple_query_string": map[string]any{
				"query":            query.Text,
				"fields":           []string{"attributes.*"},
				"default_operator": "and",
				"lenient":          true,
			},
		}
	}
	boolQuery := map[string]any{"must": must}
	if len(query.Types) > 0 {
		boolQuery["filter"] = map[string]any{"terms": map[string]any{"type": query.Types}}
	}

	body, err := json.Marshal(map[string]any{
		"query":            map[string]any{"bool": boolQuery},
		"size":             limit,
		"_source":          []string{"type", "id"},
		"track_total_hits": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(i.config.Index),
		client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching: %s", res.String())
	}

	return decodeSearchResponse(res)
}

func decodeSearchResponse(res *esapi.Response) (*contentcore.MultiSearchResult, error) {
	var searchResult struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source contentcore.ContentRef `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	result := &contentcore.MultiSearchResult{
		Hits:  make([]contentcore.ContentRef, 0, len(searchResult.Hits.Hits)),
		Total: searchResult.Hits.Total.Value,
	}
	for _, hit := range searchResult.Hits.Hits {
		result.Hits = append(result.Hits, hit.Source)
	}
	return result, nil
}

// NewClient creates an Elasticsearch client for addresses
func NewClient(addresses ...string) (*es.Client, error) {
	client, err := es.NewClient(es.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}
