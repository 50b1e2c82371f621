package room

import "time"

// Event is one outbound notification, fanned out by the transport layer.
// The coordinator never blocks on delivery: broadcasting is fire-and-forget
// relative to the mutation that produced the event.
type Event struct {
	Type string
	Data any
}

// Broadcaster is implemented by the transport layer (the WebSocket hub).
// Implementations must not block.
type Broadcaster interface {
	// ToAll delivers an event to every connected participant.
	ToAll(evt Event)
	// ToParticipants delivers an event to the given participant ids.
	ToParticipants(ids []string, evt Event)
	// To delivers an event to a single participant.
	To(id string, evt Event)
}

// Outbound event types. Inbound counterparts live in the gateway package.
const (
	EventRoomsList     = "rooms:list"
	EventRoomsUpdated  = "rooms:updated"
	EventRoomJoined    = "room:joined"
	EventPlayerJoined  = "player:joined"
	EventPlayerLeft    = "player:left"
	EventHostChanged   = "room:host_changed"
	EventRaceCountdown = "race:countdown"
	EventRaceStarted   = "race:started"
	EventRaceFinished  = "race:finished"
	EventAllFinished   = "race:all_finished"
	EventProgress      = "player:progress"
	EventChatMessage   = "chat:message"
)

type RoomJoinedPayload struct {
	Room    Info     `json:"room"`
	Players []Player `json:"players"`
}

type PlayerJoinedPayload struct {
	Player Player `json:"player"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
}

type HostChangedPayload struct {
	NewHost string `json:"newHost"`
}

type CountdownPayload struct {
	Countdown int `json:"countdown"`
}

type RaceStartedPayload struct {
	StartTime time.Time `json:"startTime"`
	Text      string    `json:"text"`
}

// RaceFinishedPayload is delivered only to the finishing player.
type RaceFinishedPayload struct {
	Placement   int     `json:"placement"`
	WPM         int     `json:"wpm"`
	Accuracy    int     `json:"accuracy"`
	TimeElapsed float64 `json:"timeElapsed"`
}

type AllFinishedPayload struct {
	Results []RaceResult `json:"results"`
}

type ProgressPayload struct {
	PlayerID string  `json:"playerId"`
	Progress float64 `json:"progress"`
	WPM      int     `json:"wpm"`
	Accuracy int     `json:"accuracy"`
}
