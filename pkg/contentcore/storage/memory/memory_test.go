package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/storage/memory"
	"github.com/tendant/content-core/pkg/contentcore/storage/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) contentcore.Storage[storagetest.Note] {
		return memory.New[storagetest.Note]("note")
	})
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	s := memory.New[storagetest.Note]("note")
	ctx := context.Background()

	created, err := s.Create(ctx, storagetest.Note{Title: "t", Tags: []string{"a"}}, contentcore.CreateOptions{})
	require.NoError(t, err)

	created.Attributes.Tags[0] = "changed"

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Attributes.Tags)
}

func TestMemoryStorage_ConcurrentCreates(t *testing.T) {
	s := memory.New[storagetest.Note]("note")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, storagetest.Note{Title: "x"}, contentcore.CreateOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}

func TestMemoryStorage_CanceledContext(t *testing.T) {
	s := memory.New[storagetest.Note]("note")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, storagetest.Note{Title: "x"}, contentcore.CreateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len())
}
