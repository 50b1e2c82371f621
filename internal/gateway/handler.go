package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/typerace/internal/registry"
	"github.com/mcdev12/typerace/internal/room"
)

// Inbound command budget per connection. Typing snapshots dominate, so the
// steady rate matches a fast typist with headroom and the burst absorbs
// client-side batching.
const (
	inboundRate  rate.Limit = 30
	inboundBurst            = 60
)

// Handler terminates WebSocket sessions: it authenticates the participant
// from the upgrade request, then decodes, validates and dispatches every
// inbound frame to the coordinator.
type Handler struct {
	hub   *Hub
	coord *room.Coordinator

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHandler(hub *Hub, coord *room.Coordinator) *Handler {
	return &Handler{
		hub:      hub,
		coord:    coord,
		limiters: make(map[string]*rate.Limiter),
	}
}

// ServeHTTP upgrades GET /ws. Identity comes from query parameters: a
// userId marks a signed-in user, its absence a guest session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	participantID := uuid.New().String()
	q := r.URL.Query()

	userID := q.Get("userId")
	isGuest := userID == ""
	fallback := "Guest-" + participantID[:8]
	p := registry.Participant{
		ID:      participantID,
		UserID:  userID,
		Name:    sanitizeUserName(q.Get("name"), fallback),
		Avatar:  q.Get("avatar"),
		IsGuest: isGuest,
	}

	h.mu.Lock()
	h.limiters[participantID] = rate.NewLimiter(inboundRate, inboundBurst)
	h.mu.Unlock()

	sess, err := h.hub.Accept(w, r, participantID, h.dispatch, h.disconnect)
	if err != nil {
		h.mu.Lock()
		delete(h.limiters, participantID)
		h.mu.Unlock()
		return
	}

	// Register with the coordinator before the pumps run so a connection
	// that dies immediately still reaches Disconnect with the registry
	// entry in place. The room list sent here queues in the send buffer
	// and flushes once the write pump starts.
	h.coord.Connect(p)
	sess.Start()
}

// disconnect is invoked by the hub exactly once per dead connection.
func (h *Handler) disconnect(participantID string) {
	h.mu.Lock()
	delete(h.limiters, participantID)
	h.mu.Unlock()

	h.coord.Disconnect(participantID)
}

// dispatch routes one inbound frame. A panic in a single command must not
// take down the read pump, so it is confined here.
func (h *Handler) dispatch(participantID string, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("participant_id", participantID).
				Interface("panic", rec).
				Msg("panic while handling inbound frame")
		}
	}()

	if !h.allow(participantID) {
		log.Warn().Str("participant_id", participantID).Msg("inbound rate limit exceeded, dropping frame")
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(participantID, "malformed message")
		return
	}

	if err := h.handle(participantID, env); err != nil {
		h.sendError(participantID, clientMessage(err))
	}
}

func (h *Handler) handle(participantID string, env Envelope) error {
	switch env.Type {
	case EventUserJoin:
		var p UserJoinPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		name := sanitizeUserName(p.Name, "Guest-"+participantID[:8])
		return h.coord.SetProfile(participantID, name, p.Avatar, p.UserID)

	case EventCreateRoom:
		var p CreateRoomPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := h.coord.CreateRoom(participantID, room.CreateConfig{
			Name:       p.Name,
			MaxPlayers: p.MaxPlayers,
			Difficulty: p.Difficulty,
			IsPrivate:  p.IsPrivate,
			Password:   p.Password,
		})
		return err

	case EventJoinRoom:
		var p JoinRoomPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return h.coord.JoinRoom(participantID, p.RoomID, p.Password)

	case EventLeaveRoom:
		return h.coord.LeaveRoom(participantID)

	case EventStartRace:
		h.coord.StartRace(participantID)
		return nil

	case EventTyping:
		var p TypingPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		h.coord.TypingUpdate(participantID, p.TypedText)
		return nil

	case EventSendChat:
		var p ChatPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return h.coord.SendChat(participantID, p.Message)

	default:
		log.Debug().
			Str("participant_id", participantID).
			Str("event_type", env.Type).
			Msg("unknown inbound event type")
		return nil
	}
}

// validatable is implemented by every inbound payload.
type validatable interface {
	Validate() error
}

func decode(data json.RawMessage, p validatable) error {
	if len(data) == 0 {
		return &ValidationError{Field: "data", Reason: "required"}
	}
	if err := json.Unmarshal(data, p); err != nil {
		return &ValidationError{Field: "data", Reason: "malformed"}
	}
	return p.Validate()
}

func (h *Handler) allow(participantID string) bool {
	h.mu.Lock()
	lim, ok := h.limiters[participantID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return lim.Allow()
}

func (h *Handler) sendError(participantID, message string) {
	h.hub.To(participantID, room.Event{
		Type: EventError,
		Data: ErrorPayload{Message: message},
	})
}

// clientMessage maps an internal error to the message relayed to the
// client.
func clientMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("invalid %s: %s", verr.Field, verr.Reason)
	}

	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, room.ErrRoomFull):
		return "room is full"
	case errors.Is(err, room.ErrInvalidPassword):
		return "invalid password"
	case errors.Is(err, room.ErrRaceInProgress):
		return "race already in progress"
	case errors.Is(err, room.ErrNotInRoom):
		return "not in a room"
	case errors.Is(err, room.ErrNotConnected):
		return "not connected"
	case errors.Is(err, room.ErrInvalidInput):
		return "invalid input"
	default:
		return "internal error"
	}
}
