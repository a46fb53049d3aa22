package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no document exists for a room.
var ErrNotFound = errors.New("document_not_found")

// Version is an immutable snapshot in a room's history. Index 0 is the
// most recent. IDs are stable across deletions; positions are not.
type Version struct {
	ID          string    `json:"id" bson:"id"`
	Content     string    `json:"content" bson:"content"`
	SavedBy     string    `json:"savedBy" bson:"savedBy"`
	SavedByName string    `json:"savedByName" bson:"savedByName"`
	RoomID      string    `json:"roomId" bson:"roomId"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// Document is the durable state of a room: the current content plus the
// saved version history, most recent first.
type Document struct {
	RoomID         string    `json:"roomId" bson:"roomId"`
	CurrentContent string    `json:"currentContent" bson:"currentContent"`
	Versions       []Version `json:"versions" bson:"versions"`
}

// Clone returns a deep copy so callers can mutate freely.
func (d *Document) Clone() *Document {
	out := &Document{
		RoomID:         d.RoomID,
		CurrentContent: d.CurrentContent,
		Versions:       make([]Version, len(d.Versions)),
	}
	copy(out.Versions, d.Versions)
	return out
}

// DocumentStore is the durable keyed storage for room documents. Save
// writes the full snapshot each time, so retries after a failed write are
// idempotent.
type DocumentStore interface {
	Load(ctx context.Context, roomID string) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}
