// Package redisstream forwards content lifecycle events to a Redis stream so
// other services can follow content changes.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/content-core/pkg/contentcore"
)

// DefaultStream is the stream written to when none is configured.
const DefaultStream = "content-events"

// publishTimeout bounds a single XADD issued from an event handler.
const publishTimeout = 5 * time.Second

// Message is the JSON payload stored under the "event" field of each stream
// entry.
type Message struct {
	EventType   string    `json:"event_type"`
	ContentType string    `json:"content_type"`
	ContentID   string    `json:"content_id,omitempty"`
	ContentIDs  []string  `json:"content_ids,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Forwarder publishes success and error events to a Redis stream.
type Forwarder struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

// Option configures a Forwarder
type Option func(*Forwarder)

// WithStream sets the stream name
func WithStream(stream string) Option {
	return func(f *Forwarder) {
		if stream != "" {
			f.stream = stream
		}
	}
}

// WithMaxLen caps the stream length approximately; zero keeps every entry.
func WithMaxLen(n int64) Option {
	return func(f *Forwarder) {
		f.maxLen = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a forwarder. Returns nil if client is nil.
func New(client *redis.Client, opts ...Option) *Forwarder {
	if client == nil {
		return nil
	}
	f := &Forwarder{
		client: client,
		stream: DefaultStream,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Attach subscribes the forwarder to bus and returns the detach func. Start
// events are not forwarded.
func (f *Forwarder) Attach(bus *contentcore.EventBus) func() {
	if f == nil || bus == nil {
		return func() {}
	}
	return bus.Subscribe(func(event contentcore.Event) {
		if event.Type.Phase() == contentcore.PhaseStart {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		// Errors are logged by Publish.
		_ = f.Publish(ctx, event)
	})
}

// Publish sends one event to the stream.
func (f *Forwarder) Publish(ctx context.Context, event contentcore.Event) error {
	if f == nil || f.client == nil {
		return nil // No-op if forwarder not configured
	}

	msg := Message{
		EventType:   string(event.Type),
		ContentType: event.ContentType,
		ContentID:   event.ContentID,
		ContentIDs:  event.ContentIDs,
		Timestamp:   event.Timestamp,
	}
	if event.Error != nil {
		msg.Error = event.Error.Error()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: f.stream,
		Values: map[string]any{
			"event": string(payload),
		},
	}
	if f.maxLen > 0 {
		args.MaxLen = f.maxLen
		args.Approx = true
	}

	result := f.client.XAdd(ctx, args)
	if publishErr := result.Err(); publishErr != nil {
		f.logger.Error("Failed to publish event",
			"event_type", msg.EventType,
			"content_type", msg.ContentType,
			"content_id", msg.ContentID,
			"error", publishErr)
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	f.logger.Debug("Published content event",
		"event_type", msg.EventType,
		"content_type", msg.ContentType,
		"stream_id", result.Val())
	return nil
}
