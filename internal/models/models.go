package models

import "time"

// WSFrame is the envelope for every message on the collaboration socket.
// Frames are multiplexed by Type; Data carries the event payload.
type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Socket event names. Client -> server events carry the request payloads
// below; server -> client events carry the response payloads.
const (
	EvtJoinRoom       = "join-room"
	EvtCodeChange     = "code-change"
	EvtReceiveCode    = "receive-code"
	EvtSaveVersion    = "save-version"
	EvtVersionSaved   = "version-saved"
	EvtDeleteVersion  = "delete-version"
	EvtVersionDeleted = "version-deleted"
	EvtRestoreVersion = "restore-version"
	EvtVersionRestore = "version-restored"
	EvtChatMessage    = "chat-message"
	EvtReceiveMessage = "receive-message"
	EvtError          = "error"
	EvtSyncDegraded   = "sync-degraded"
)

// UserIdentity is the verified identity attached to a connection.
type UserIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

type CodeChange struct {
	Code string `json:"code"`
}

type VersionIndexRequest struct {
	VersionIndex int `json:"versionIndex"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

// ChatMessage is broadcast to the whole room, sender included, so every
// client renders chat through the same path.
type ChatMessage struct {
	User      string    `json:"user"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type VersionDeleted struct {
	VersionIndex int `json:"versionIndex"`
}

type VersionRestored struct {
	Content string `json:"content"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
