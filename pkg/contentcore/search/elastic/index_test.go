package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/storage/memory"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeTransport answers Elasticsearch requests from a handler and records them.
type fakeTransport struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(method, path string) (int, string)
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: req.Method, Path: req.URL.Path, Body: body})
	f.mu.Unlock()

	status, payload := http.StatusOK, `{}`
	if f.respond != nil {
		status, payload = f.respond(req.Method, req.URL.Path)
	}

	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(payload)),
		Request:    req,
	}, nil
}

func (f *fakeTransport) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newFakeClient(t *testing.T, transport *fakeTransport) *es.Client {
	t.Helper()
	client, err := es.NewClient(es.Config{
		Addresses: []string{"http://es.test:9200"},
		Transport: transport,
	})
	require.NoError(t, err)
	return client
}

type note struct {
	Title string `json:"title,omitempty"`
}

func TestIndex_StartRequiresClient(t *testing.T) {
	idx := New(Config{})
	err := idx.Start(context.Background(), contentcore.StartDeps{Events: contentcore.NewEventBus(nil)})
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestIndex_CreatesMissingIndex(t *testing.T) {
	transport := &fakeTransport{respond: func(method, path string) (int, string) {
		if method == http.MethodHead {
			return http.StatusNotFound, ``
		}
		return http.StatusOK, `{"acknowledged":true}`
	}}
	idx := New(Config{Index: "items"})

	err := idx.Start(context.Background(), contentcore.StartDeps{
		ESClient: newFakeClient(t, transport),
		Events:   contentcore.NewEventBus(nil),
	})
	require.NoError(t, err)

	reqs := transport.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodHead, reqs[0].Method)
	assert.Equal(t, "/items", reqs[0].Path)
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Equal(t, "/items", reqs[1].Path)
	assert.Contains(t, reqs[1].Body, `"type":{"type":"keyword"}`)
}

func TestIndex_FollowsWriteEvents(t *testing.T) {
	transport := &fakeTransport{}
	core := contentcore.New(contentcore.WithSearchIndex(New(Config{Index: "items"})))
	setup := core.Setup()
	require.NoError(t, setup.Register(contentcore.NewDefinition[note]("note", memory.New[note]("note"))))
	require.NoError(t, core.Start(context.Background(), contentcore.StartDeps{ESClient: newFakeClient(t, transport)}))
	t.Cleanup(core.Stop)

	crud, err := contentcore.TypedCrud[note](setup, "note")
	require.NoError(t, err)
	ctx := context.Background()

	created, err := crud.Create(ctx, note{Title: "hello"}, contentcore.CreateOptions{ID: "n1"})
	require.NoError(t, err)
	_, err = crud.Get(ctx, created.ID)
	require.NoError(t, err)
	_, err = crud.Update(ctx, created.ID, contentcore.Patch{"title": json.RawMessage(`"bye"`)}, contentcore.UpdateOptions{})
	require.NoError(t, err)
	require.NoError(t, crud.Delete(ctx, created.ID))

	reqs := transport.recorded()
	// HEAD for the index check, then one request per write.
	require.Len(t, reqs, 4)

	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Equal(t, "/items/_doc/note:n1", reqs[1].Path)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(reqs[1].Body), &doc))
	assert.Equal(t, "note", doc["type"])
	assert.Equal(t, "n1", doc["id"])
	assert.Equal(t, map[string]any{"title": "hello"}, doc["attributes"])

	assert.Equal(t, http.MethodPost, reqs[2].Method)
	assert.Equal(t, "/items/_update/note:n1", reqs[2].Path)
	assert.Contains(t, reqs[2].Body, `"title":"bye"`)
	assert.Contains(t, reqs[2].Body, `"doc_as_upsert":true`)

	assert.Equal(t, http.MethodDelete, reqs[3].Method)
	assert.Equal(t, "/items/_doc/note:n1", reqs[3].Path)
}

func TestIndex_FailuresDoNotReachCaller(t *testing.T) {
	transport := &fakeTransport{respond: func(method, path string) (int, string) {
		if method == http.MethodHead {
			return http.StatusOK, ``
		}
		return http.StatusInternalServerError, `{"error":"boom"}`
	}}
	bus := contentcore.NewEventBus(nil)
	idx := New(Config{})
	require.NoError(t, idx.Start(context.Background(), contentcore.StartDeps{ESClient: newFakeClient(t, transport), Events: bus}))

	crud := contentcore.NewCrud[note]("note", memory.New[note]("note"), bus)
	_, err := crud.Create(context.Background(), note{Title: "x"}, contentcore.CreateOptions{})
	assert.NoError(t, err)
	assert.Len(t, transport.recorded(), 2)
}

func TestIndex_StopUnsubscribes(t *testing.T) {
	bus := contentcore.NewEventBus(nil)
	idx := New(Config{})
	require.NoError(t, idx.Start(context.Background(), contentcore.StartDeps{ESClient: newFakeClient(t, &fakeTransport{}), Events: bus}))
	assert.Equal(t, 1, bus.HandlerCount(contentcore.EventCreateItemSuccess))

	idx.Stop()
	assert.Equal(t, 0, bus.HandlerCount(contentcore.EventCreateItemSuccess))
	assert.Equal(t, 0, bus.HandlerCount(contentcore.EventDeleteItemSuccess))
}

func TestIndex_Search(t *testing.T) {
	t.Run("NotStarted", func(t *testing.T) {
		_, err := New(Config{}).Search(context.Background(), contentcore.MultiSearchQuery{Text: "x"})
		assert.ErrorIs(t, err, ErrNotStarted)
	})

	t.Run("DecodesHits", func(t *testing.T) {
		transport := &fakeTransport{respond: func(method, path string) (int, string) {
			if strings.HasSuffix(path, "/_search") {
				return http.StatusOK, `{"hits":{"total":{"value":2},"hits":[
					{"_id":"note:1","_source":{"type":"note","id":"1"}},
					{"_id":"todo:7","_source":{"type":"todo","id":"7"}}]}}`
			}
			return http.StatusOK, `{}`
		}}
		idx := New(Config{Index: "items"})
		require.NoError(t, idx.Start(context.Background(), contentcore.StartDeps{
			ESClient: newFakeClient(t, transport),
			Events:   contentcore.NewEventBus(nil),
		}))

		res, err := idx.Search(context.Background(), contentcore.MultiSearchQuery{Text: "milk", Types: []string{"note", "todo"}, Limit: 500})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Equal(t, []contentcore.ContentRef{{Type: "note", ID: "1"}, {Type: "todo", ID: "7"}}, res.Hits)

		reqs := transport.recorded()
		last := reqs[len(reqs)-1]
		assert.Equal(t, "/items/_search", last.Path)
		assert.Contains(t, last.Body, `"simple_query_string"`)
		assert.Contains(t, last.Body, `"terms":{"type":["note","todo"]}`)
		assert.Contains(t, last.Body, `"size":100`)
	})

	t.Run("ErrorResponse", func(t *testing.T) {
		transport := &fakeTransport{respond: func(method, path string) (int, string) {
			if strings.HasSuffix(path, "/_search") {
				return http.StatusBadRequest, `{"error":{"type":"parse_exception"}}`
			}
			return http.StatusOK, `{}`
		}}
		idx := New(Config{})
		require.NoError(t, idx.Start(context.Background(), contentcore.StartDeps{
			ESClient: newFakeClient(t, transport),
			Events:   contentcore.NewEventBus(nil),
		}))

		_, err := idx.Search(context.Background(), contentcore.MultiSearchQuery{})
		assert.Error(t, err)
	})
}
