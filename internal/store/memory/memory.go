package memory

import (
	"context"
	"sync"

	"codecollab/internal/store"
)

// DocumentStore keeps documents in a process-local map. It is the default
// backend and the one the tests run against.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*store.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*store.Document)}
}

func (s *DocumentStore) Load(_ context.Context, roomID string) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *DocumentStore) Save(_ context.Context, doc *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.RoomID] = doc.Clone()
	return nil
}
