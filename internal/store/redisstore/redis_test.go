package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"codecollab/internal/store"
)

// setupTestRedis creates a miniredis instance and a redis client for testing
func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return client
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := NewDocumentStore(setupTestRedis(t))
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	s := NewDocumentStore(setupTestRedis(t))
	ctx := context.Background()

	doc := &store.Document{
		RoomID:         "r1",
		CurrentContent: "hello world",
		Versions: []store.Version{{
			ID:          "v1",
			Content:     "hello",
			SavedBy:     "u1",
			SavedByName: "Ada",
			RoomID:      "r1",
			CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}},
	}
	assert.NoError(t, s.Save(ctx, doc))

	loaded, err := s.Load(ctx, "r1")
	assert.NoError(t, err)
	assert.Equal(t, "hello world", loaded.CurrentContent)
	assert.Len(t, loaded.Versions, 1)
	assert.Equal(t, "Ada", loaded.Versions[0].SavedByName)
}

func TestSaveOverwritesFullSnapshot(t *testing.T) {
	s := NewDocumentStore(setupTestRedis(t))
	ctx := context.Background()

	assert.NoError(t, s.Save(ctx, &store.Document{RoomID: "r1", CurrentContent: "one",
		Versions: []store.Version{{ID: "a"}, {ID: "b"}}}))
	assert.NoError(t, s.Save(ctx, &store.Document{RoomID: "r1", CurrentContent: "two"}))

	loaded, err := s.Load(ctx, "r1")
	assert.NoError(t, err)
	assert.Equal(t, "two", loaded.CurrentContent)
	assert.Empty(t, loaded.Versions)
}
