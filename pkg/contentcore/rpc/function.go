package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tendant/content-core/pkg/contentcore"
)

// Searcher answers searches spanning content types
type Searcher interface {
	Search(ctx context.Context, query contentcore.MultiSearchQuery) (*contentcore.MultiSearchResult, error)
}

// Context is shared by every call. Crud resolves the JSON facade for a
// content type; Search is nil when no search index is configured.
type Context struct {
	Crud   func(contentType string) (*contentcore.Crud[json.RawMessage], error)
	Search Searcher
}

// NewContext builds a Context over a core setup
func NewContext(setup *contentcore.Setup, search Searcher) *Context {
	return &Context{Crud: setup.Crud, Search: search}
}

// HandlerFunc runs one call with its still encoded argument
type HandlerFunc func(ctx context.Context, rc *Context, arg json.RawMessage) (any, error)

// Function is a named RPC function
type Function struct {
	Name   string
	Handle HandlerFunc
}

// NewFunction declares a function whose argument is decoded into I.
// Unknown keys in arg are ignored.
func NewFunction[I, O any](name string, fn func(ctx context.Context, rc *Context, in I) (O, error)) Function {
	return Function{
		Name: name,
		Handle: func(ctx context.Context, rc *Context, arg json.RawMessage) (any, error) {
			var in I
			if len(bytes.TrimSpace(arg)) > 0 {
				if err := json.Unmarshal(arg, &in); err != nil {
					return nil, &DispatchError{Fn: name, Err: fmt.Errorf("%w: %v", ErrInvalidArgument, err)}
				}
			}
			return fn(ctx, rc, in)
		},
	}
}

// FunctionHandler looks functions up by name
type FunctionHandler struct {
	mu  sync.RWMutex
	fns map[string]Function
}

// NewFunctionHandler creates an empty handler
func NewFunctionHandler() *FunctionHandler {
	return &FunctionHandler{fns: make(map[string]Function)}
}

// Register adds functions. It fails on the first name already taken.
func (h *FunctionHandler) Register(fns ...Function) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, fn := range fns {
		if fn.Name == "" || fn.Handle == nil {
			return fmt.Errorf("function name and handler are required")
		}
		if _, exists := h.fns[fn.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateFunction, fn.Name)
		}
		h.fns[fn.Name] = fn
	}
	return nil
}

// Names lists registered function names in order
func (h *FunctionHandler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.fns))
	for name := range h.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs the function named by env. Function errors are returned as is.
func (h *FunctionHandler) Call(ctx context.Context, rc *Context, env *Envelope) (*Response, error) {
	h.mu.RLock()
	fn, ok := h.fns[env.Fn]
	h.mu.RUnlock()
	if !ok {
		return nil, &DispatchError{Fn: env.Fn, Err: ErrUnknownFunction}
	}

	result, err := fn.Handle(ctx, rc, env.Arg)
	if err != nil {
		return nil, err
	}
	return &Response{Result: result}, nil
}
