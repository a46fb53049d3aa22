package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"codecollab/internal/store"
)

const keyPrefix = "doc:"

// DocumentStore persists each room document as a JSON blob under doc:<roomId>.
type DocumentStore struct {
	rdb *redis.Client
}

func NewDocumentStore(rdb *redis.Client) *DocumentStore {
	return &DocumentStore{rdb: rdb}
}

func (s *DocumentStore) Load(ctx context.Context, roomID string) (*store.Document, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+roomID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", roomID, err)
	}

	var doc store.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", roomID, err)
	}
	return &doc, nil
}

func (s *DocumentStore) Save(ctx context.Context, doc *store.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.RoomID, err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+doc.RoomID, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", doc.RoomID, err)
	}
	return nil
}
