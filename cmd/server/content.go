package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/config"
)

// Todo is a demo content type with required title
type Todo struct {
	Title string     `json:"title,omitempty"`
	Done  bool       `json:"done,omitempty"`
	Due   *time.Time `json:"due,omitempty"`
}

func (t Todo) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("title is required")
	}
	return nil
}

// Note is a demo content type for free text
type Note struct {
	Title string   `json:"title,omitempty"`
	Body  string   `json:"body,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

func (n Note) Validate() error {
	if n.Title == "" && n.Body == "" {
		return errors.New("title or body is required")
	}
	return nil
}

func registerContentTypes(ctx context.Context, setup *contentcore.Setup, backends *config.Backends) error {
	if err := register[Todo](ctx, setup, backends, "todo"); err != nil {
		return err
	}
	return register[Note](ctx, setup, backends, "note")
}

func register[T any](ctx context.Context, setup *contentcore.Setup, backends *config.Backends, contentType string) error {
	storage, err := config.BuildStorage[T](ctx, backends, contentType)
	if err != nil {
		return fmt.Errorf("failed to build %s storage: %w", contentType, err)
	}
	return setup.Register(contentcore.NewDefinition(contentType, storage))
}
