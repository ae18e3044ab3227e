package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/content-core/pkg/contentcore"
)

// Client calls the RPC endpoint. Every call is one POST; there is no retry,
// batching or caching.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithHeader adds a header sent with every call
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes fn with arg and decodes the result into out. A nil out
// discards the result.
func (c *Client) Call(ctx context.Context, fn string, arg any, out any) error {
	if arg == nil {
		arg = struct{}{}
	}
	payload, err := json.Marshal(struct {
		Fn  string `json:"fn"`
		Arg any    `json:"arg"`
	}{Fn: fn, Arg: arg})
	if err != nil {
		return fmt.Errorf("failed to encode call %s: %w", fn, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+Path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s failed: %w", fn, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response of %s: %w", fn, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp, body)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", fn, err)
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode result of %s: %w", fn, err)
	}
	return nil
}

func parseHTTPError(resp *http.Response, body []byte) error {
	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Body:       string(body),
	}
	var errBody ErrorBody
	if json.Unmarshal(body, &errBody) == nil && errBody.Message != "" {
		httpErr.Message = errBody.Message
	}
	return httpErr
}

// Get returns one item
func (c *Client) Get(ctx context.Context, contentType, id string) (*contentcore.RawItem, error) {
	// A null result leaves item nil.
	var item *contentcore.RawItem
	if err := c.Call(ctx, FnGet, GetIn{Type: contentType, ID: id}, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// BulkGet returns the items found for ids
func (c *Client) BulkGet(ctx context.Context, contentType string, ids []string) ([]*contentcore.RawItem, error) {
	var items []*contentcore.RawItem
	if err := c.Call(ctx, FnBulkGet, BulkGetIn{Type: contentType, IDs: ids}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Create stores a new item; data is encoded to JSON
func (c *Client) Create(ctx context.Context, contentType string, data any, opts contentcore.CreateOptions) (*contentcore.RawItem, error) {
	raw, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	var item *contentcore.RawItem
	if err := c.Call(ctx, FnCreate, CreateIn{Type: contentType, Data: raw, Options: opts}, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// Update applies a partial update. data must encode to a JSON object; every
// key it encodes is written, including false, zero and null values.
func (c *Client) Update(ctx context.Context, contentType, id string, data any, opts contentcore.UpdateOptions) (*contentcore.UpdateResult, error) {
	raw, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	patch, err := contentcore.ParsePatch(raw)
	if err != nil {
		return nil, err
	}
	var res *contentcore.UpdateResult
	if err := c.Call(ctx, FnUpdate, UpdateIn{Type: contentType, ID: id, Data: patch, Options: opts}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Delete removes an item
func (c *Client) Delete(ctx context.Context, contentType, id string) error {
	return c.Call(ctx, FnDelete, DeleteIn{Type: contentType, ID: id}, nil)
}

// Search returns a page of items of one content type
func (c *Client) Search(ctx context.Context, contentType string, query contentcore.SearchQuery) (*contentcore.SearchResult[json.RawMessage], error) {
	var res *contentcore.SearchResult[json.RawMessage]
	if err := c.Call(ctx, FnSearch, SearchIn{Type: contentType, Query: query}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// MSearch searches across content types through the server's search index
func (c *Client) MSearch(ctx context.Context, query contentcore.MultiSearchQuery) (*contentcore.MultiSearchResult, error) {
	var res *contentcore.MultiSearchResult
	if err := c.Call(ctx, FnMSearch, query, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func encodeData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	return raw, nil
}
