package gateway

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCreateRoomPayloadValidate(t *testing.T) {
	valid := CreateRoomPayload{Name: "speed demons", MaxPlayers: 4, Difficulty: "hard"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		payload CreateRoomPayload
		field   string
	}{
		{"empty name", CreateRoomPayload{Name: "  ", MaxPlayers: 4}, "name"},
		{"long name", CreateRoomPayload{Name: strings.Repeat("x", 31), MaxPlayers: 4}, "name"},
		{"too few players", CreateRoomPayload{Name: "room", MaxPlayers: 1}, "maxPlayers"},
		{"too many players", CreateRoomPayload{Name: "room", MaxPlayers: 9}, "maxPlayers"},
		{"bad difficulty", CreateRoomPayload{Name: "room", MaxPlayers: 4, Difficulty: "insane"}, "difficulty"},
		{"private without password", CreateRoomPayload{Name: "room", MaxPlayers: 4, IsPrivate: true}, "password"},
		{"long password", CreateRoomPayload{Name: "room", MaxPlayers: 4, IsPrivate: true, Password: strings.Repeat("x", 21)}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	// Difficulty defaulting happens downstream; empty is accepted here.
	noDifficulty := CreateRoomPayload{Name: "room", MaxPlayers: 2}
	assert.NoError(t, noDifficulty.Validate())
}

func TestJoinRoomPayloadValidate(t *testing.T) {
	assert.NoError(t, (&JoinRoomPayload{RoomID: "ABC123"}).Validate())
	assert.Error(t, (&JoinRoomPayload{}).Validate())
	assert.Error(t, (&JoinRoomPayload{RoomID: "ABC123", Password: strings.Repeat("x", 21)}).Validate())
}

func TestTypingPayloadValidate(t *testing.T) {
	assert.NoError(t, (&TypingPayload{TypedText: ""}).Validate())
	assert.NoError(t, (&TypingPayload{TypedText: strings.Repeat("a", maxTypedLen)}).Validate())
	assert.Error(t, (&TypingPayload{TypedText: strings.Repeat("a", maxTypedLen+1)}).Validate())
}

func TestChatPayloadValidate(t *testing.T) {
	assert.NoError(t, (&ChatPayload{Message: "gl hf"}).Validate())
	assert.Error(t, (&ChatPayload{Message: "   "}).Validate())
	assert.Error(t, (&ChatPayload{Message: strings.Repeat("a", 201)}).Validate())
}

func TestSanitizeUserName(t *testing.T) {
	assert.Equal(t, "Alice", sanitizeUserName("  Alice  ", "Guest-1"))
	assert.Equal(t, "Guest-1", sanitizeUserName("", "Guest-1"))
	assert.Len(t, sanitizeUserName(strings.Repeat("x", 80), "Guest-1"), maxUserNameLen)
}

func TestSanitizeUserNameKeepsRunesIntact(t *testing.T) {
	// 20 three-byte runes is 60 bytes; byte 50 falls in the middle of the
	// 17th rune, so the cut must back up to byte 48.
	name := sanitizeUserName(strings.Repeat("☃", 20), "Guest-1")
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, strings.Repeat("☃", 16), name)
	assert.LessOrEqual(t, len(name), maxUserNameLen)
}
