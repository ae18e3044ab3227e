package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tendant/content-core/pkg/contentcore"
)

// Built-in function names
const (
	FnGet     = "get"
	FnBulkGet = "bulkGet"
	FnCreate  = "create"
	FnUpdate  = "update"
	FnDelete  = "delete"
	FnSearch  = "search"
	FnMSearch = "msearch"
)

// GetIn is the argument of get
type GetIn struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// BulkGetIn is the argument of bulkGet
type BulkGetIn struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

// CreateIn is the argument of create
type CreateIn struct {
	Type    string                    `json:"type"`
	Data    json.RawMessage           `json:"data"`
	Options contentcore.CreateOptions `json:"options,omitempty"`
}

// UpdateIn is the argument of update. Only the keys present in Data are
// written.
type UpdateIn struct {
	Type    string                    `json:"type"`
	ID      string                    `json:"id"`
	Data    contentcore.Patch         `json:"data"`
	Options contentcore.UpdateOptions `json:"options,omitempty"`
}

// DeleteIn is the argument of delete
type DeleteIn struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// DeleteOut is the result of delete
type DeleteOut struct {
	Success bool `json:"success"`
}

// SearchIn is the argument of search
type SearchIn struct {
	Type  string                  `json:"type"`
	Query contentcore.SearchQuery `json:"query"`
}

// ContentFunctions returns the built-in content functions
func ContentFunctions() []Function {
	return []Function{
		NewFunction(FnGet, get),
		NewFunction(FnBulkGet, bulkGet),
		NewFunction(FnCreate, create),
		NewFunction(FnUpdate, update),
		NewFunction(FnDelete, remove),
		NewFunction(FnSearch, search),
		NewFunction(FnMSearch, msearch),
	}
}

func crudFor(rc *Context, fn, contentType string) (*contentcore.Crud[json.RawMessage], error) {
	if contentType == "" {
		return nil, invalidArgument(fn, "type is required")
	}
	if rc == nil || rc.Crud == nil {
		return nil, errors.New("rpc context has no crud")
	}
	return rc.Crud(contentType)
}

func invalidArgument(fn, msg string) error {
	return &DispatchError{Fn: fn, Err: fmt.Errorf("%w: %s", ErrInvalidArgument, msg)}
}

func get(ctx context.Context, rc *Context, in GetIn) (*contentcore.RawItem, error) {
	if in.ID == "" {
		return nil, invalidArgument(FnGet, "id is required")
	}
	crud, err := crudFor(rc, FnGet, in.Type)
	if err != nil {
		return nil, err
	}
	return crud.Get(ctx, in.ID)
}

func bulkGet(ctx context.Context, rc *Context, in BulkGetIn) ([]*contentcore.RawItem, error) {
	crud, err := crudFor(rc, FnBulkGet, in.Type)
	if err != nil {
		return nil, err
	}
	return crud.MGet(ctx, in.IDs)
}

func create(ctx context.Context, rc *Context, in CreateIn) (*contentcore.RawItem, error) {
	crud, err := crudFor(rc, FnCreate, in.Type)
	if err != nil {
		return nil, err
	}
	return crud.Create(ctx, in.Data, in.Options)
}

func update(ctx context.Context, rc *Context, in UpdateIn) (*contentcore.UpdateResult, error) {
	if in.ID == "" {
		return nil, invalidArgument(FnUpdate, "id is required")
	}
	if in.Data == nil {
		return nil, invalidArgument(FnUpdate, "data must be a JSON object")
	}
	crud, err := crudFor(rc, FnUpdate, in.Type)
	if err != nil {
		return nil, err
	}
	return crud.Update(ctx, in.ID, in.Data, in.Options)
}

func remove(ctx context.Context, rc *Context, in DeleteIn) (*DeleteOut, error) {
	if in.ID == "" {
		return nil, invalidArgument(FnDelete, "id is required")
	}
	crud, err := crudFor(rc, FnDelete, in.Type)
	if err != nil {
		return nil, err
	}
	if err := crud.Delete(ctx, in.ID); err != nil {
		return nil, err
	}
	return &DeleteOut{Success: true}, nil
}

func search(ctx context.Context, rc *Context, in SearchIn) (*contentcore.SearchResult[json.RawMessage], error) {
	crud, err := crudFor(rc, FnSearch, in.Type)
	if err != nil {
		return nil, err
	}
	return crud.Search(ctx, in.Query)
}

func msearch(ctx context.Context, rc *Context, in contentcore.MultiSearchQuery) (*contentcore.MultiSearchResult, error) {
	if rc == nil || rc.Search == nil {
		return nil, ErrSearchUnavailable
	}
	return rc.Search.Search(ctx, in)
}
