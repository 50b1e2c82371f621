package room

import (
	"time"

	"github.com/mcdev12/typerace/internal/anticheat"
)

// Status is the race lifecycle state of a room. Transitions are
// one-directional: waiting -> countdown -> racing -> finished, with
// countdown able to fall back to waiting only through room teardown.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusRacing    Status = "racing"
	StatusFinished  Status = "finished"
)

const (
	MinPlayers = 2
	MaxPlayers = 8

	// CountdownTicks is the number of one-second countdown steps between the
	// host command and the race start.
	CountdownTicks = 5

	MaxChatLength = 200

	// analyzeEvery controls how often the authenticity detector is consulted,
	// in appended characters. Analysis is cheap but not per-keystroke cheap.
	analyzeEvery = 10
)

// Player is a room participant plus their per-race state.
type Player struct {
	ID       string  `json:"id"`
	UserID   string  `json:"userId,omitempty"`
	Name     string  `json:"name"`
	Avatar   string  `json:"avatar,omitempty"`
	IsGuest  bool    `json:"isGuest"`
	Progress float64 `json:"progress"`
	WPM      int     `json:"wpm"`
	Accuracy int     `json:"accuracy"`
	Finished bool    `json:"finished"`

	typedText    string
	finishedAt   time.Time
	finishSeq    int
	joinSeq      int
	lastInputAt  time.Time
	detector     *anticheat.Detector
	authenticity *anticheat.Result
}

// RaceResult is one finalized row of a finished race.
type RaceResult struct {
	Placement int    `json:"placement"`
	PlayerID  string `json:"playerId"`
	UserID    string `json:"userId,omitempty"`
	Name      string `json:"name"`
	WPM       int    `json:"wpm"`
	Accuracy  int    `json:"accuracy"`
	IsGuest   bool   `json:"isGuest"`
	// FinishedAt and TimeElapsed are zero for players that never reached
	// 100%.
	FinishedAt  time.Time `json:"finishedAt,omitzero"`
	TimeElapsed float64   `json:"timeElapsed,omitempty"`

	Authenticity *anticheat.Result `json:"authenticity,omitempty"`
}

// ChatMessage is relayed to every participant of the sender's room,
// including the sender, and is not retained afterwards.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsGuest   bool      `json:"isGuest"`
}

// Room is one bounded group of participants racing the same text.
type Room struct {
	ID          string
	Name        string
	HostID      string
	MaxPlayers  int
	Difficulty  string
	IsPrivate   bool
	Status      Status
	Text        string
	GuestCount  int
	UserCount   int
	CreatedAt   time.Time
	StartedAt   time.Time
	Results     []RaceResult

	password    string
	players     map[string]*Player
	joinCounter int
	finishCount int
	countdown   *countdown
}

func (r *Room) host() *Player {
	return r.players[r.HostID]
}

// earliestJoined returns the remaining player with the lowest join sequence,
// the deterministic host successor.
func (r *Room) earliestJoined() *Player {
	var successor *Player
	for _, p := range r.players {
		if successor == nil || p.joinSeq < successor.joinSeq {
			successor = p
		}
	}
	return successor
}

func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	return ids
}

// finishedPlayers counts current players that have completed the text.
func (r *Room) finishedPlayers() int {
	n := 0
	for _, p := range r.players {
		if p.Finished {
			n++
		}
	}
	return n
}

func (r *Room) playerList() []Player {
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	return out
}

// ListItem is the room-list projection broadcast to every connection.
type ListItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Players     int    `json:"players"`
	MaxPlayers  int    `json:"maxPlayers"`
	Status      Status `json:"status"`
	Host        string `json:"host"`
	HostIsGuest bool   `json:"hostIsGuest"`
	Difficulty  string `json:"difficulty"`
	IsPrivate   bool   `json:"isPrivate"`
	GuestCount  int    `json:"guestCount"`
	UserCount   int    `json:"userCount"`
}

// Info is the full room projection sent to a joining participant.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Host        string `json:"host"`
	HostIsGuest bool   `json:"hostIsGuest"`
	MaxPlayers  int    `json:"maxPlayers"`
	Difficulty  string `json:"difficulty"`
	Status      Status `json:"status"`
	Text        string `json:"text"`
	GuestCount  int    `json:"guestCount"`
	UserCount   int    `json:"userCount"`
}

func (r *Room) listItem() ListItem {
	item := ListItem{
		ID:         r.ID,
		Name:       r.Name,
		Players:    len(r.players),
		MaxPlayers: r.MaxPlayers,
		Status:     r.Status,
		Difficulty: r.Difficulty,
		IsPrivate:  r.IsPrivate,
		GuestCount: r.GuestCount,
		UserCount:  r.UserCount,
	}
	if h := r.host(); h != nil {
		item.Host = h.Name
		item.HostIsGuest = h.IsGuest
	}
	return item
}

func (r *Room) info() Info {
	info := Info{
		ID:         r.ID,
		Name:       r.Name,
		MaxPlayers: r.MaxPlayers,
		Difficulty: r.Difficulty,
		Status:     r.Status,
		Text:       r.Text,
		GuestCount: r.GuestCount,
		UserCount:  r.UserCount,
	}
	if h := r.host(); h != nil {
		info.Host = h.Name
		info.HostIsGuest = h.IsGuest
	}
	return info
}
