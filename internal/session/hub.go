package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"codecollab/internal/models"
	"codecollab/internal/store"
)

// Hub owns every active room. Rooms are created lazily on first join,
// loaded from the document store exactly once (concurrent first joins
// await the same load), and evicted as soon as the last client leaves.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*roomEntry

	docs             store.DocumentStore
	debounce         time.Duration
	broadcastRestore bool
	log              *zap.Logger
}

type roomEntry struct {
	ready chan struct{}
	room  *Room
	err   error
}

type HubOptions struct {
	Debounce         time.Duration
	BroadcastRestore bool
}

func NewHub(docs store.DocumentStore, opts HubOptions, log *zap.Logger) *Hub {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:            make(map[string]*roomEntry),
		docs:             docs,
		debounce:         opts.Debounce,
		broadcastRestore: opts.BroadcastRestore,
		log:              log,
	}
}

// GetOrLoad returns the active room for id, loading its document from the
// store (or initializing an empty one) if the room is not yet resident.
func (h *Hub) GetOrLoad(ctx context.Context, id string) (*Room, error) {
	h.mu.Lock()
	if e, ok := h.rooms[id]; ok {
		h.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.room, nil
	}

	e := &roomEntry{ready: make(chan struct{})}
	h.rooms[id] = e
	h.mu.Unlock()

	doc, err := h.docs.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		doc = &store.Document{RoomID: id, CurrentContent: "", Versions: []store.Version{}}
		err = nil
	}
	if err != nil {
		e.err = err
		h.mu.Lock()
		delete(h.rooms, id)
		h.mu.Unlock()
		close(e.ready)
		return nil, err
	}

	e.room = newRoom(id, doc, h.docs, h.debounce, h.broadcastRestore, h.log)
	close(e.ready)
	return e.room, nil
}

// Attach loads the room for id and joins the client to it. The membership
// increment happens under the hub lock, so a concurrent eviction either
// completes first (and the load repeats against the store) or observes the
// new member and leaves the room alive. Without this a joiner could attach
// to an instance the hub had already dropped, splitting the room in two.
func (h *Hub) Attach(ctx context.Context, id string, c *Client) (*Room, error) {
	for {
		room, err := h.GetOrLoad(ctx, id)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		if e, ok := h.rooms[id]; ok && e.room == room {
			room.Join(c)
			h.mu.Unlock()
			return room, nil
		}
		h.mu.Unlock()
	}
}

// Get returns the resident room for id, if any. It does not trigger a load.
func (h *Hub) Get(id string) (*Room, bool) {
	h.mu.Lock()
	e, ok := h.rooms[id]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-e.ready
	if e.err != nil {
		return nil, false
	}
	return e.room, true
}

// evict drops a room once its last client has left. The pending debounced
// write is flushed before the room is released so no committed edit is
// lost; a join racing with eviction keeps the room alive.
func (h *Hub) evict(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.rooms[r.ID]
	if !ok || e.room != r {
		return
	}
	if r.ClientCount() > 0 {
		return
	}
	if err := r.Flush(context.Background()); err != nil {
		h.log.Error("flush before evict failed", zap.String("room", r.ID), zap.Error(err))
	}
	delete(h.rooms, r.ID)
}

// ActiveRooms reports the number of resident rooms.
func (h *Hub) ActiveRooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Versions lists the saved versions for a room through the same coordinator
// invariants whether or not the room is live. A room with no record yields
// an empty list.
func (h *Hub) Versions(ctx context.Context, roomID string) ([]store.Version, error) {
	if room, ok := h.Get(roomID); ok {
		if err := room.Flush(ctx); err != nil {
			h.log.Warn("flush before version list failed", zap.String("room", roomID), zap.Error(err))
		}
		return room.Versions(), nil
	}
	doc, err := h.docs.Load(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return []store.Version{}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Versions, nil
}

// DeleteVersion removes a version by index, routing through the live room
// when one exists and falling back to a direct store mutation otherwise.
// The cold path holds the hub lock across its load-mutate-save so a
// concurrent GetOrLoad cannot read the document mid-mutation and later
// flush the deleted version back.
func (h *Hub) DeleteVersion(ctx context.Context, roomID string, index int) error {
	for {
		if room, ok := h.Get(roomID); ok {
			return room.DeleteVersionAt(ctx, index)
		}
		h.mu.Lock()
		if _, ok := h.rooms[roomID]; ok {
			h.mu.Unlock()
			continue
		}
		err := h.deleteVersionColdLocked(ctx, roomID, index)
		h.mu.Unlock()
		return err
	}
}

func (h *Hub) deleteVersionColdLocked(ctx context.Context, roomID string, index int) error {
	doc, err := h.docs.Load(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrOutOfRange
	}
	if err != nil {
		return err
	}
	if index < 0 || index >= len(doc.Versions) {
		return ErrOutOfRange
	}
	doc.Versions = append(doc.Versions[:index], doc.Versions[index+1:]...)
	return h.docs.Save(ctx, doc)
}

// RestoreVersion rewinds a room's content to a saved version and returns
// the restored content. The cold path is serialized against loads the same
// way DeleteVersion's is.
func (h *Hub) RestoreVersion(ctx context.Context, roomID string, index int) (string, error) {
	for {
		if room, ok := h.Get(roomID); ok {
			content, err := room.RestoreVersionAt(ctx, index)
			if err != nil {
				return "", err
			}
			if h.broadcastRestore {
				room.BroadcastAll(models.WSFrame{Type: models.EvtReceiveCode, Data: models.CodeChange{Code: content}})
			}
			return content, nil
		}
		h.mu.Lock()
		if _, ok := h.rooms[roomID]; ok {
			h.mu.Unlock()
			continue
		}
		content, err := h.restoreVersionColdLocked(ctx, roomID, index)
		h.mu.Unlock()
		return content, err
	}
}

func (h *Hub) restoreVersionColdLocked(ctx context.Context, roomID string, index int) (string, error) {
	doc, err := h.docs.Load(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrVersionNotFound
	}
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(doc.Versions) {
		return "", ErrVersionNotFound
	}
	doc.CurrentContent = doc.Versions[index].Content
	if err := h.docs.Save(ctx, doc); err != nil {
		return "", err
	}
	return doc.CurrentContent, nil
}
