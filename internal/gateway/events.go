package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcdev12/typerace/internal/room"
)

// Envelope is the wire frame for every message in both directions. Data
// holds the event-specific payload.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Inbound event types. Outbound counterparts live in the room package;
// chat:message is the one name shared by both directions.
const (
	EventUserJoin   = "user:join"
	EventCreateRoom = "room:create"
	EventJoinRoom   = "room:join"
	EventLeaveRoom  = "room:leave"
	EventStartRace  = "race:start"
	EventTyping     = "typing:update"
	EventSendChat   = "chat:message"
)

// EventError is sent back to a single participant when their command was
// rejected.
const EventError = "error"

type ErrorPayload struct {
	Message string `json:"message"`
}

// ValidationError reports which inbound field failed validation. It maps to
// a client-facing error message as-is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Inbound payload limits. These bound what a client can make the server
// hold or relay, independent of the read limit on the socket itself.
const (
	maxUserNameLen = 50
	maxRoomNameLen = 30
	maxPasswordLen = 20
	maxTypedLen    = 10000
)

// UserJoinPayload announces (or replaces) the identity behind a
// connection. A missing userId marks the session as a guest.
type UserJoinPayload struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	UserID string `json:"userId"`
}

func (p *UserJoinPayload) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" || len(name) > maxUserNameLen {
		return &ValidationError{Field: "name", Reason: "must be 1-50 characters"}
	}
	return nil
}

type CreateRoomPayload struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	Difficulty string `json:"difficulty"`
	IsPrivate  bool   `json:"isPrivate"`
	Password   string `json:"password"`
}

func (p *CreateRoomPayload) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" || len(name) > maxRoomNameLen {
		return &ValidationError{Field: "name", Reason: "must be 1-30 characters"}
	}
	if p.MaxPlayers < room.MinPlayers || p.MaxPlayers > room.MaxPlayers {
		return &ValidationError{Field: "maxPlayers", Reason: "must be between 2 and 8"}
	}
	switch p.Difficulty {
	case "", "easy", "medium", "hard":
	default:
		return &ValidationError{Field: "difficulty", Reason: "must be easy, medium or hard"}
	}
	if p.IsPrivate && (p.Password == "" || len(p.Password) > maxPasswordLen) {
		return &ValidationError{Field: "password", Reason: "must be 1-20 characters"}
	}
	return nil
}

type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password"`
}

func (p *JoinRoomPayload) Validate() error {
	if strings.TrimSpace(p.RoomID) == "" {
		return &ValidationError{Field: "roomId", Reason: "required"}
	}
	if len(p.Password) > maxPasswordLen {
		return &ValidationError{Field: "password", Reason: "must be 1-20 characters"}
	}
	return nil
}

type TypingPayload struct {
	TypedText string `json:"typedText"`
}

func (p *TypingPayload) Validate() error {
	if len(p.TypedText) > maxTypedLen {
		return &ValidationError{Field: "typedText", Reason: "too long"}
	}
	return nil
}

type ChatPayload struct {
	Message string `json:"message"`
}

func (p *ChatPayload) Validate() error {
	if strings.TrimSpace(p.Message) == "" || len(p.Message) > room.MaxChatLength {
		return &ValidationError{Field: "message", Reason: "must be 1-200 characters"}
	}
	return nil
}

// sanitizeUserName normalizes a client-supplied display name, falling back
// to the given default when empty and truncating overlong input rather than
// rejecting the connection.
func sanitizeUserName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	if len(name) > maxUserNameLen {
		// Back up to a rune start so the cut never splits a multibyte
		// character.
		cut := maxUserNameLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		return name[:cut]
	}
	return name
}
