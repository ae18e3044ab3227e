package contentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

type lifecycle int

const (
	stateConstructed lifecycle = iota
	stateSetup
	stateStarted
)

// Core owns the registry, the event bus and the search index for one
// process. It moves from constructed to set up to started.
type Core struct {
	registry    *Registry
	events      *EventBus
	searchIndex SearchIndex
	logger      *slog.Logger

	mu    sync.Mutex
	state lifecycle

	registryOpts []RegistryOption
}

// Option represents a functional option for configuring the core
type Option func(*Core)

// WithLogger sets the logger used by the core and its event bus
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSearchIndex sets the search index started by Start
func WithSearchIndex(index SearchIndex) Option {
	return func(c *Core) {
		c.searchIndex = index
	}
}

// WithRegistryOptions passes options to the content registry
func WithRegistryOptions(opts ...RegistryOption) Option {
	return func(c *Core) {
		c.registryOpts = append(c.registryOpts, opts...)
	}
}

// New creates a core with the given options
func New(options ...Option) *Core {
	c := &Core{
		logger:      slog.Default(),
		searchIndex: NoopSearchIndex{},
	}
	for _, option := range options {
		option(c)
	}

	c.registry = NewRegistry(append([]RegistryOption{WithRegistryLogger(c.logger)}, c.registryOpts...)...)
	c.events = NewEventBus(c.logger)
	return c
}

// Setup returns the contract handed to features during the setup phase.
func (c *Core) Setup() *Setup {
	c.mu.Lock()
	if c.state == stateConstructed {
		c.state = stateSetup
	}
	c.mu.Unlock()
	return &Setup{core: c}
}

// Start starts the search index with the runtime dependencies. The event bus
// is filled in by the core.
func (c *Core) Start(ctx context.Context, deps StartDeps) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateConstructed:
		return ErrNotSetup
	case stateStarted:
		return ErrAlreadyStarted
	}

	deps.Events = c.events
	if err := c.searchIndex.Start(ctx, deps); err != nil {
		return fmt.Errorf("failed to start search index: %w", err)
	}

	c.state = stateStarted
	c.logger.Info("Content core started", "content_types", c.registry.ContentTypes())
	return nil
}

// Stop stops the search index. The core cannot be restarted.
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateStarted {
		c.searchIndex.Stop()
	}
}

// Registry returns the content registry.
func (c *Core) Registry() *Registry {
	return c.registry
}

// Events returns the event bus.
func (c *Core) Events() *EventBus {
	return c.events
}

// Setup is the setup-phase contract: register content types and obtain CRUD
// facades.
type Setup struct {
	core *Core
}

// Register installs a content type definition.
func (s *Setup) Register(def *Definition) error {
	return s.core.registry.Register(def)
}

// Crud returns a JSON-attribute facade for contentType.
func (s *Setup) Crud(contentType string) (*Crud[json.RawMessage], error) {
	def, err := s.core.registry.Definition(contentType)
	if err != nil {
		return nil, err
	}
	return NewCrud(contentType, def.JSON(), s.core.events), nil
}

// Events returns the event bus so features can subscribe during setup.
func (s *Setup) Events() *EventBus {
	return s.core.events
}

// TypedCrud returns a facade bound to the attribute type T the content type
// was registered with.
func TypedCrud[T any](s *Setup, contentType string) (*Crud[T], error) {
	storage, err := GetStorage[T](s.core.registry, contentType)
	if err != nil {
		return nil, err
	}
	return NewCrud(contentType, storage, s.core.events), nil
}
