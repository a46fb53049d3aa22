package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codecollab/internal/metrics"
	"codecollab/internal/models"
	"codecollab/internal/session"
	"codecollab/internal/store"
	"codecollab/internal/utils"
)

type Handlers struct {
	log       *zap.Logger
	hub       *session.Hub
	registry  *session.Registry
	jwtSecret string
}

func NewHandlers(log *zap.Logger, hub *session.Hub, jwtSecret string) *Handlers {
	return &Handlers{
		log:       log,
		hub:       hub,
		registry:  session.NewRegistry(hub),
		jwtSecret: jwtSecret,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

/*** Collab WebSocket: shared editor, chat and version history ***/
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := session.NewClient(conn, identity)
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()
	defer h.registry.Leave(client)

	ctx := r.Context()

	// Event loop: one frame at a time per connection.
	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		if frame.Type == models.EvtJoinRoom {
			var req models.JoinRoomRequest
			if err := marshal(frame.Data, &req); err != nil {
				client.Send(errFrame("invalid_payload"))
				continue
			}
			if req.RoomID == "" {
				client.Send(errFrame("invalid_room"))
				continue
			}
			content, joinErr := h.registry.Join(ctx, client, req.RoomID)
			if joinErr != nil {
				h.log.Error("join room failed", zap.String("room", req.RoomID), zap.Error(joinErr))
				client.Send(errFrame("join_failed"))
				continue
			}
			client.Send(models.WSFrame{Type: models.EvtReceiveCode, Data: models.CodeChange{Code: content}})
			continue
		}

		room := client.Room()
		if room == nil {
			client.Send(errFrame(session.ErrNotAMember.Error()))
			continue
		}

		switch frame.Type {
		case models.EvtCodeChange:
			var req models.CodeChange
			if err := marshal(frame.Data, &req); err != nil {
				client.Send(errFrame("invalid_payload"))
				continue
			}
			if err := room.SubmitEdit(client, req.Code); err != nil {
				client.Send(errFrame(err.Error()))
				continue
			}
			metrics.Edits.Inc()

		case models.EvtSaveVersion:
			version, err := room.SaveVersion(ctx, client)
			if err != nil {
				client.Send(errFrame(err.Error()))
				continue
			}
			metrics.VersionSaves.Inc()
			client.Send(models.WSFrame{Type: models.EvtVersionSaved, Data: version})

		case models.EvtDeleteVersion:
			var req models.VersionIndexRequest
			if err := marshal(frame.Data, &req); err != nil {
				client.Send(errFrame("invalid_payload"))
				continue
			}
			if err := room.DeleteVersion(ctx, client, req.VersionIndex); err != nil {
				client.Send(errFrame(err.Error()))
				continue
			}
			client.Send(models.WSFrame{Type: models.EvtVersionDeleted, Data: models.VersionDeleted{VersionIndex: req.VersionIndex}})

		case models.EvtRestoreVersion:
			var req models.VersionIndexRequest
			if err := marshal(frame.Data, &req); err != nil {
				client.Send(errFrame("invalid_payload"))
				continue
			}
			content, err := room.RestoreVersion(ctx, client, req.VersionIndex)
			if err != nil {
				client.Send(errFrame(err.Error()))
				continue
			}
			client.Send(models.WSFrame{Type: models.EvtVersionRestore, Data: models.VersionRestored{Content: content}})

		case models.EvtChatMessage:
			var req models.ChatRequest
			if err := marshal(frame.Data, &req); err != nil {
				client.Send(errFrame("invalid_payload"))
				continue
			}
			if _, err := room.SendChat(client, req.Message); err != nil {
				client.Send(errFrame(err.Error()))
				continue
			}
			metrics.ChatMessages.Inc()

		default:
			client.Send(errFrame("unknown_type"))
		}
	}
}

/*** HTTP mirror of the version operations, for clients off the live channel ***/

func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	versions, err := h.hub.Versions(r.Context(), roomID)
	if err != nil {
		h.log.Error("list versions failed", zap.String("room", roomID), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
		return
	}
	utils.JSON(w, http.StatusOK, versions)
}

func (h *Handlers) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if err := h.hub.DeleteVersion(r.Context(), roomID, index); err != nil {
		h.writeVersionError(w, roomID, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.VersionDeleted{VersionIndex: index})
}

func (h *Handlers) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	var req models.VersionIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	content, err := h.hub.RestoreVersion(r.Context(), roomID, req.VersionIndex)
	if err != nil {
		h.writeVersionError(w, roomID, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.VersionRestored{Content: content})
}

func (h *Handlers) writeVersionError(w http.ResponseWriter, roomID string, err error) {
	switch {
	case errors.Is(err, session.ErrOutOfRange), errors.Is(err, session.ErrVersionNotFound), errors.Is(err, store.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error("version operation failed", zap.String("room", roomID), zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "server error")
	}
}

// RequireAuth guards the REST surface with the same credential the socket
// handshake uses.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.identityFromRequest(r); err != nil {
			utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) identityFromRequest(r *http.Request) (models.UserIdentity, error) {
	token, err := utils.TokenFromRequest(r)
	if err != nil {
		return models.UserIdentity{}, err
	}
	claims, err := utils.VerifyToken(token, h.jwtSecret)
	if err != nil {
		return models.UserIdentity{}, err
	}
	return utils.IdentityFromClaims(claims)
}

// marshal round-trips a decoded frame payload into its typed form. The
// error matters: a zero-valued index from a bad payload would address a
// real version.
func marshal(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func errFrame(code string) models.WSFrame {
	return models.WSFrame{Type: models.EvtError, Data: models.ErrorPayload{Code: code}}
}
