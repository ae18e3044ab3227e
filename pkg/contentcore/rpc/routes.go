package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/content-core/pkg/contentcore"
)

// DefaultMaxBodyBytes limits the request body when RouteOptions leaves it unset
const DefaultMaxBodyBytes int64 = 1 << 20

// ErrorBody is the JSON body of a failed call
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// ErrorResponse is what a WrapErrorFunc turns an error into
type ErrorResponse struct {
	StatusCode int
	Body       ErrorBody
}

// WrapErrorFunc maps any error escaping a call to an HTTP error response
type WrapErrorFunc func(err error) ErrorResponse

// NewErrorResponse builds a response whose body repeats the status
func NewErrorResponse(status int, message string) ErrorResponse {
	return ErrorResponse{
		StatusCode: status,
		Body: ErrorBody{
			StatusCode: status,
			Error:      http.StatusText(status),
			Message:    message,
		},
	}
}

// DefaultWrapError maps dispatch and content errors to 4xx responses and
// hides the message of anything else behind a generic 500.
func DefaultWrapError(err error) ErrorResponse {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return NewErrorResponse(http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, ErrInvalidEnvelope),
		errors.Is(err, ErrUnknownFunction),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, contentcore.ErrUnknownContentType),
		errors.Is(err, contentcore.ErrInvalidContent):
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	case errors.Is(err, contentcore.ErrNotFound):
		return NewErrorResponse(http.StatusNotFound, err.Error())
	case errors.Is(err, contentcore.ErrConflict):
		return NewErrorResponse(http.StatusConflict, err.Error())
	case errors.Is(err, ErrSearchUnavailable):
		return NewErrorResponse(http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorResponse(http.StatusGatewayTimeout, "operation timed out")
	default:
		return NewErrorResponse(http.StatusInternalServerError, "An internal server error occurred")
	}
}

// RouteOptions configures the RPC route
type RouteOptions struct {
	Handler      *FunctionHandler
	Context      *Context
	WrapError    WrapErrorFunc // defaults to DefaultWrapError
	Logger       *slog.Logger
	MaxBodyBytes int64 // defaults to DefaultMaxBodyBytes
}

func (o *RouteOptions) setDefaults() {
	if o.Handler == nil {
		o.Handler = NewFunctionHandler()
	}
	if o.Context == nil {
		o.Context = &Context{}
	}
	if o.WrapError == nil {
		o.WrapError = DefaultWrapError
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Routes mounts POST Path on r
func Routes(r chi.Router, opts RouteOptions) {
	opts.setDefaults()
	r.With(
		LoggingMiddleware(opts.Logger),
		RequestSizeLimitMiddleware(opts.MaxBodyBytes),
	).Post(Path, NewHandler(opts).ServeHTTP)
}

type handler struct {
	opts RouteOptions
}

// NewHandler returns the bare RPC handler without routing or middleware
func NewHandler(opts RouteOptions) http.Handler {
	opts.setDefaults()
	return &handler{opts: opts}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	env, err := DecodeEnvelope(r.Body)
	if err != nil {
		h.respondError(w, r, "", err)
		return
	}

	res, err := h.opts.Handler.Call(r.Context(), h.opts.Context, env)
	if err != nil {
		h.respondError(w, r, env.Fn, err)
		return
	}

	render.JSON(w, r, res)
}

func (h *handler) respondError(w http.ResponseWriter, r *http.Request, fn string, err error) {
	resp := h.opts.WrapError(err)
	if resp.StatusCode < http.StatusBadRequest {
		resp.StatusCode = http.StatusInternalServerError
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		h.opts.Logger.Error("RPC call failed", "fn", fn, "status", resp.StatusCode, "error", err)
	} else {
		h.opts.Logger.Debug("RPC call rejected", "fn", fn, "status", resp.StatusCode, "error", err)
	}

	render.Status(r, resp.StatusCode)
	render.JSON(w, r, resp.Body)
}
