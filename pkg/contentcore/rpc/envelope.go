package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Path is the single endpoint every call is posted to.
const Path = "/api/content_management/rpc"

// Envelope is the request body of a call. Arg is kept encoded until the
// function decodes it into its own input type.
type Envelope struct {
	Fn  string          `json:"fn"`
	Arg json.RawMessage `json:"arg"`
}

// Response is the success body of a call.
type Response struct {
	Result any `json:"result"`
}

// DecodeEnvelope reads and validates an envelope. Unknown top-level keys
// are ignored; fn must be a non-empty string and arg a JSON object.
func DecodeEnvelope(r io.Reader) (*Envelope, error) {
	var raw struct {
		Fn  json.RawMessage `json:"fn"`
		Arg json.RawMessage `json:"arg"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, invalidEnvelope("request body must be a JSON object: %v", err)
	}

	var fn string
	if len(raw.Fn) == 0 || json.Unmarshal(raw.Fn, &fn) != nil {
		return nil, invalidEnvelope("fn must be a string")
	}
	if fn == "" {
		return nil, invalidEnvelope("fn must not be empty")
	}

	arg := bytes.TrimSpace(raw.Arg)
	if len(arg) == 0 || arg[0] != '{' {
		return nil, &DispatchError{Fn: fn, Err: fmt.Errorf("%w: arg must be an object", ErrInvalidEnvelope)}
	}

	return &Envelope{Fn: fn, Arg: json.RawMessage(arg)}, nil
}

func invalidEnvelope(format string, args ...any) error {
	return &DispatchError{Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidEnvelope}, args...)...)}
}
