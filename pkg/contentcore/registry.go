package contentcore

import (
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"sync"
)

var contentTypePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Registry maps content type names to their definitions. Registration
// normally happens during setup; lookups happen while serving requests.
type Registry struct {
	mu             sync.RWMutex
	defs           map[string]*Definition
	allowOverwrite bool
	logger         *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOverwrite lets a later registration replace an earlier one instead of
// failing with ErrDuplicateRegistration.
func WithOverwrite() RegistryOption {
	return func(r *Registry) {
		r.allowOverwrite = true
	}
}

// WithRegistryLogger sets the logger used for registration messages.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		defs:   make(map[string]*Definition),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs def. A second registration of the same content type
// fails unless the registry was created WithOverwrite.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return &ContentTypeError{Op: "register", Err: errors.New("definition is required")}
	}
	if !contentTypePattern.MatchString(def.contentType) {
		return &ContentTypeError{ContentType: def.contentType, Op: "register", Err: ErrInvalidContentType}
	}
	if def.storage == nil {
		return &ContentTypeError{ContentType: def.contentType, Op: "register", Err: errors.New("storage is required")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.contentType]; exists {
		if !r.allowOverwrite {
			return &ContentTypeError{ContentType: def.contentType, Op: "register", Err: ErrDuplicateRegistration}
		}
		r.logger.Warn("Replacing content type storage", "content_type", def.contentType)
	}
	r.defs[def.contentType] = def
	r.logger.Debug("Content type registered", "content_type", def.contentType)
	return nil
}

// Definition returns the definition registered for contentType.
func (r *Registry) Definition(contentType string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[contentType]
	if !ok {
		return nil, &ContentTypeError{ContentType: contentType, Op: "lookup", Err: ErrUnknownContentType}
	}
	return def, nil
}

// IsRegistered reports whether contentType has a definition.
func (r *Registry) IsRegistered(contentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[contentType]
	return ok
}

// ContentTypes lists registered content types in name order.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetStorage returns the backend registered for contentType. It fails with
// ErrUnknownContentType when nothing is registered and ErrTypeMismatch when
// the backend was registered for a different attribute type.
func GetStorage[T any](r *Registry, contentType string) (Storage[T], error) {
	def, err := r.Definition(contentType)
	if err != nil {
		return nil, err
	}
	storage, ok := def.storage.(Storage[T])
	if !ok {
		return nil, &ContentTypeError{ContentType: contentType, Op: "lookup", Err: ErrTypeMismatch}
	}
	return storage, nil
}
