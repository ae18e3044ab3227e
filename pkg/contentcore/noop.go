package contentcore

import "context"

// NoopSearchIndex is used when no search index is configured
type NoopSearchIndex struct{}

// Start does nothing and returns nil
func (NoopSearchIndex) Start(ctx context.Context, deps StartDeps) error {
	return nil
}

// Stop does nothing
func (NoopSearchIndex) Stop() {}
