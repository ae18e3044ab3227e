package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/rpc"
	"github.com/tendant/content-core/pkg/contentcore/storage/memory"
)

type task struct {
	Title string `json:"title,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

func newTestServer(t *testing.T) string {
	t.Helper()

	core := contentcore.New(contentcore.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	setup := core.Setup()
	require.NoError(t, setup.Register(contentcore.NewDefinition[task]("task", memory.New[task]("task"))))

	functions := rpc.NewFunctionHandler()
	require.NoError(t, functions.Register(rpc.ContentFunctions()...))

	router := chi.NewRouter()
	rpc.Routes(router, rpc.RouteOptions{
		Handler: functions,
		Context: rpc.NewContext(setup, nil),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func execute(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_CRUD(t *testing.T) {
	server := newTestServer(t)

	out, err := execute(t, server, "create", "--type", "task", "--id", "a1", "--data", `{"title":"buy milk"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Created task a1 (version 1)")

	out, err = execute(t, server, "get", "--type", "task", "--json", "a1")
	require.NoError(t, err)
	var item contentcore.RawItem
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	assert.Equal(t, "a1", item.ID)
	assert.JSONEq(t, `{"title":"buy milk"}`, string(item.Attributes))

	out, err = execute(t, server, "update", "--type", "task", "--version", "1", "--data", `{"done":true}`, "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated task a1 (version 2)")

	_, err = execute(t, server, "update", "--type", "task", "--version", "1", "--data", `{"done":false}`, "a1")
	var httpErr *rpc.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 409, httpErr.StatusCode)

	_, err = execute(t, server, "update", "--type", "task", "--data", `{"done":false}`, "a1")
	require.NoError(t, err)
	out, err = execute(t, server, "get", "--type", "task", "--json", "a1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	assert.JSONEq(t, `{"title":"buy milk"}`, string(item.Attributes))

	out, err = execute(t, server, "get", "--type", "task", "a1", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "a1")
	assert.NotContains(t, out, "missing")

	out, err = execute(t, server, "search", "--type", "task", "MILK")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 1")

	out, err = execute(t, server, "search", "--type", "task", "title")
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 0")

	out, err = execute(t, server, "delete", "--type", "task", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted task a1")

	_, err = execute(t, server, "get", "--type", "task", "a1")
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.StatusCode)
}

func TestCommands_Call(t *testing.T) {
	server := newTestServer(t)

	out, err := execute(t, server, "call", "create", `{"type":"task","data":{"title":"raw"},"options":{"id":"r1"}}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "r1"`)

	_, err = execute(t, server, "call", "nope")
	var httpErr *rpc.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 400, httpErr.StatusCode)
}

func TestCommands_Validation(t *testing.T) {
	server := newTestServer(t)

	_, err := execute(t, server, "get", "a1")
	assert.ErrorContains(t, err, "--type is required")

	_, err = execute(t, server, "create", "--type", "task", "--data", `[1,2]`)
	assert.ErrorContains(t, err, "JSON object")

	_, err = execute(t, server, "msearch", "anything")
	var httpErr *rpc.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 501, httpErr.StatusCode)
}
