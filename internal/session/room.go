package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codecollab/internal/models"
	"codecollab/internal/store"
)

// DefaultDebounce is the quiet window after the last edit before the
// document is persisted.
const DefaultDebounce = 150 * time.Millisecond

var (
	ErrNotAMember      = errors.New("not_a_member")
	ErrOutOfRange      = errors.New("version_out_of_range")
	ErrVersionNotFound = errors.New("version_not_found")
)

// Room is the in-memory authority for one active room. It owns the live
// document, the attached clients, and the debounced persistence pipeline.
// All document reads and writes go through r.mu, so operations within a
// room are applied in arrival order (last writer wins).
type Room struct {
	ID string

	mu      sync.Mutex
	clients map[*Client]struct{}
	doc     *store.Document
	timer   *time.Timer
	dirty   bool

	// flushMu serializes store writes without blocking edits, so two
	// overlapping flushes cannot land out of order.
	flushMu sync.Mutex

	docs             store.DocumentStore
	debounce         time.Duration
	broadcastRestore bool
	log              *zap.Logger
}

func newRoom(id string, doc *store.Document, docs store.DocumentStore, debounce time.Duration, broadcastRestore bool, log *zap.Logger) *Room {
	return &Room{
		ID:               id,
		clients:          make(map[*Client]struct{}),
		doc:              doc,
		docs:             docs,
		debounce:         debounce,
		broadcastRestore: broadcastRestore,
		log:              log,
	}
}

func (r *Room) Join(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

// Leave detaches the client and reports how many remain.
func (r *Room) Leave(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return len(r.clients)
}

func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Content returns the authoritative current content.
func (r *Room) Content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.CurrentContent
}

func (r *Room) isMember(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// SubmitEdit applies an edit: the in-memory content is updated at once so
// later joins see the latest text, persistence is debounced, and the new
// content is pushed to every other member immediately.
func (r *Room) SubmitEdit(c *Client, code string) error {
	r.mu.Lock()
	if !r.isMember(c) {
		r.mu.Unlock()
		return ErrNotAMember
	}
	r.doc.CurrentContent = code
	r.dirty = true
	r.scheduleFlushLocked()
	r.broadcastLocked(c, models.WSFrame{Type: models.EvtReceiveCode, Data: models.CodeChange{Code: code}})
	r.mu.Unlock()
	return nil
}

// scheduleFlushLocked resets the debounce window. Callers hold r.mu.
func (r *Room) scheduleFlushLocked() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() {
		if err := r.Flush(context.Background()); err != nil {
			r.log.Warn("debounced persist failed", zap.String("room", r.ID), zap.Error(err))
		}
	})
}

// Flush writes the current document to the store if there are unpersisted
// changes. On failure the room stays dirty, members receive a degraded-sync
// warning, and the write is retried on the next debounce or flush.
func (r *Room) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	snapshot := r.doc.Clone()
	r.dirty = false
	r.mu.Unlock()

	if err := r.docs.Save(ctx, snapshot); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.broadcastAllLocked(models.WSFrame{Type: models.EvtSyncDegraded})
		r.mu.Unlock()
		return err
	}
	return nil
}

// SaveVersion snapshots the server-held current content at the head of the
// version list, stamped with the acting user, and persists immediately.
// A pending debounced edit rides along in the same write.
func (r *Room) SaveVersion(ctx context.Context, c *Client) (store.Version, error) {
	r.mu.Lock()
	if !r.isMember(c) {
		r.mu.Unlock()
		return store.Version{}, ErrNotAMember
	}
	version := store.Version{
		ID:          uuid.NewString(),
		Content:     r.doc.CurrentContent,
		SavedBy:     c.User.ID,
		SavedByName: c.User.Name,
		RoomID:      r.ID,
		CreatedAt:   time.Now().UTC(),
	}
	r.doc.Versions = append([]store.Version{version}, r.doc.Versions...)
	r.dirty = true
	r.mu.Unlock()

	if err := r.Flush(ctx); err != nil {
		r.log.Error("persist version save failed", zap.String("room", r.ID), zap.Error(err))
	}
	return version, nil
}

// DeleteVersion removes the entry at index; later entries shift down one.
func (r *Room) DeleteVersion(ctx context.Context, c *Client, index int) error {
	r.mu.Lock()
	if !r.isMember(c) {
		r.mu.Unlock()
		return ErrNotAMember
	}
	r.mu.Unlock()
	return r.DeleteVersionAt(ctx, index)
}

// DeleteVersionAt is the membership-free form shared with the HTTP surface.
func (r *Room) DeleteVersionAt(ctx context.Context, index int) error {
	if err := r.Flush(ctx); err != nil {
		r.log.Warn("flush before delete failed", zap.String("room", r.ID), zap.Error(err))
	}

	r.mu.Lock()
	if index < 0 || index >= len(r.doc.Versions) {
		r.mu.Unlock()
		return ErrOutOfRange
	}
	r.doc.Versions = append(r.doc.Versions[:index], r.doc.Versions[index+1:]...)
	r.dirty = true
	r.mu.Unlock()

	if err := r.Flush(ctx); err != nil {
		r.log.Error("persist version delete failed", zap.String("room", r.ID), zap.Error(err))
	}
	return nil
}

// RestoreVersion rewinds the current content to the stored version and
// returns the restored text to the caller. Any pending debounced edit is
// flushed first so the restore never reads a stale base.
func (r *Room) RestoreVersion(ctx context.Context, c *Client, index int) (string, error) {
	r.mu.Lock()
	if !r.isMember(c) {
		r.mu.Unlock()
		return "", ErrNotAMember
	}
	r.mu.Unlock()

	content, err := r.RestoreVersionAt(ctx, index)
	if err != nil {
		return "", err
	}
	if r.broadcastRestore {
		r.Broadcast(c, models.WSFrame{Type: models.EvtReceiveCode, Data: models.CodeChange{Code: content}})
	}
	return content, nil
}

// RestoreVersionAt is the membership-free form shared with the HTTP surface.
func (r *Room) RestoreVersionAt(ctx context.Context, index int) (string, error) {
	if err := r.Flush(ctx); err != nil {
		r.log.Warn("flush before restore failed", zap.String("room", r.ID), zap.Error(err))
	}

	r.mu.Lock()
	if index < 0 || index >= len(r.doc.Versions) {
		r.mu.Unlock()
		return "", ErrVersionNotFound
	}
	content := r.doc.Versions[index].Content
	r.doc.CurrentContent = content
	r.dirty = true
	r.mu.Unlock()

	if err := r.Flush(ctx); err != nil {
		r.log.Error("persist restore failed", zap.String("room", r.ID), zap.Error(err))
	}
	return content, nil
}

// Versions returns a copy of the version list, most recent first.
func (r *Room) Versions() []store.Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.Version, len(r.doc.Versions))
	copy(out, r.doc.Versions)
	return out
}

// SendChat broadcasts a chat message to the whole room, sender included,
// so every client renders it through the same path.
func (r *Room) SendChat(c *Client, message string) (models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isMember(c) {
		return models.ChatMessage{}, ErrNotAMember
	}
	msg := models.ChatMessage{
		User:      c.User.Name,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	r.broadcastAllLocked(models.WSFrame{Type: models.EvtReceiveMessage, Data: msg})
	return msg, nil
}

// Broadcast sends a frame to every member except the sender.
func (r *Room) Broadcast(sender *Client, frame models.WSFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(sender, frame)
}

// BroadcastAll sends a frame to every member including the sender.
func (r *Room) BroadcastAll(frame models.WSFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastAllLocked(frame)
}

func (r *Room) broadcastLocked(sender *Client, frame models.WSFrame) {
	for c := range r.clients {
		if c == sender {
			continue
		}
		c.Send(frame)
	}
}

func (r *Room) broadcastAllLocked(frame models.WSFrame) {
	for c := range r.clients {
		c.Send(frame)
	}
}
