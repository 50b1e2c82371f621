// Package room owns the room/participant lifecycle and the per-room race
// state machine. Every mutation of shared state is serialized behind one
// mutex so that "player finishes" and "host leaves" interleavings stay
// linearizable; countdown timers are the only asynchronous element and are
// always cancellable through the handle stored on the room.
package room

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/internal/anticheat"
	"github.com/mcdev12/typerace/internal/registry"
	"github.com/mcdev12/typerace/internal/texts"
	"github.com/mcdev12/typerace/internal/typing"
)

// ResultSink receives the finalized result list of every finished race.
// Implementations must return quickly; the coordinator invokes them outside
// its lock on a separate goroutine.
type ResultSink interface {
	RaceFinished(roomID string, results []RaceResult)
}

// Coordinator owns all rooms in the process. It is safe for concurrent use.
type Coordinator struct {
	mu    sync.Mutex
	rooms map[string]*Room

	registry    *registry.Registry
	broadcaster Broadcaster
	texts       texts.Provider
	clock       clockwork.Clock
	sink        ResultSink
}

// CreateConfig carries the validated parameters of a room:create request.
type CreateConfig struct {
	Name       string
	MaxPlayers int
	Difficulty string
	IsPrivate  bool
	Password   string
}

func NewCoordinator(reg *registry.Registry, bc Broadcaster, tp texts.Provider, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		rooms:       make(map[string]*Room),
		registry:    reg,
		broadcaster: bc,
		texts:       tp,
		clock:       clock,
	}
}

// SetResultSink installs an optional collaborator notified of finished races.
func (c *Coordinator) SetResultSink(sink ResultSink) {
	c.sink = sink
}

// outbound is one deferred broadcast, emitted after the lock is released so
// that no delivery ever happens inside a state mutation.
type outbound struct {
	all bool
	one string
	ids []string
	evt Event
}

func (c *Coordinator) flush(events []outbound) {
	for _, o := range events {
		switch {
		case o.all:
			c.broadcaster.ToAll(o.evt)
		case o.one != "":
			c.broadcaster.To(o.one, o.evt)
		default:
			c.broadcaster.ToParticipants(o.ids, o.evt)
		}
	}
}

// Connect registers a freshly joined participant and sends them the current
// room list.
func (c *Coordinator) Connect(p registry.Participant) {
	c.registry.Add(p)

	c.mu.Lock()
	list := c.listRoomsLocked()
	c.mu.Unlock()

	log.Info().
		Str("participant_id", p.ID).
		Str("name", p.Name).
		Bool("guest", p.IsGuest).
		Msg("participant connected")
	c.broadcaster.To(p.ID, Event{Type: EventRoomsList, Data: list})
}

// SetProfile applies a user:join identity announcement: the registry entry
// is replaced and the current room list re-sent. If the participant already
// sits in a room, their player entry follows the new identity.
func (c *Coordinator) SetProfile(participantID, name, avatar, userID string) error {
	p, ok := c.registry.Get(participantID)
	if !ok {
		return ErrNotConnected
	}
	c.registry.SetProfile(participantID, name, avatar, userID)

	c.mu.Lock()
	if r, ok := c.rooms[p.RoomID]; ok {
		if player, ok := r.players[participantID]; ok {
			if player.IsGuest != (userID == "") {
				if player.IsGuest {
					r.GuestCount--
					r.UserCount++
				} else {
					r.UserCount--
					r.GuestCount++
				}
			}
			player.Name = name
			player.Avatar = avatar
			player.UserID = userID
			player.IsGuest = userID == ""
		}
	}
	list := c.listRoomsLocked()
	c.mu.Unlock()

	log.Info().
		Str("participant_id", participantID).
		Str("name", name).
		Bool("guest", userID == "").
		Msg("participant identity set")
	c.broadcaster.To(participantID, Event{Type: EventRoomsList, Data: list})
	return nil
}

// Disconnect applies the implicit room:leave of a dropped connection and
// removes the participant from the registry.
func (c *Coordinator) Disconnect(participantID string) {
	p, ok := c.registry.Get(participantID)
	if !ok {
		return
	}

	c.mu.Lock()
	events, finished := c.leaveLocked(p)
	c.mu.Unlock()

	c.registry.Remove(participantID)
	log.Info().Str("participant_id", participantID).Msg("participant disconnected")

	c.flush(events)
	c.notifySink(finished)
}

// CreateRoom creates a room with the creator as sole participant and host,
// returning the new room's id.
func (c *Coordinator) CreateRoom(participantID string, cfg CreateConfig) (string, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return "", ErrInvalidInput
	}
	if cfg.MaxPlayers < MinPlayers || cfg.MaxPlayers > MaxPlayers {
		return "", ErrInvalidInput
	}

	p, ok := c.registry.Get(participantID)
	if !ok {
		return "", ErrNotConnected
	}

	difficulty := cfg.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	text := c.texts.Text(difficulty)

	c.mu.Lock()
	events, finished := c.leaveLocked(p)

	r := &Room{
		ID:         newRoomID(),
		Name:       cfg.Name,
		HostID:     p.ID,
		MaxPlayers: cfg.MaxPlayers,
		Difficulty: difficulty,
		IsPrivate:  cfg.IsPrivate,
		Status:     StatusWaiting,
		Text:       text,
		CreatedAt:  c.clock.Now(),
		players:    make(map[string]*Player),
	}
	if cfg.IsPrivate {
		r.password = cfg.Password
	}
	c.rooms[r.ID] = r
	c.addPlayerLocked(r, p)

	events = append(events,
		outbound{one: p.ID, evt: Event{Type: EventRoomJoined, Data: RoomJoinedPayload{Room: r.info(), Players: r.playerList()}}},
		c.roomsUpdatedLocked(),
	)
	c.mu.Unlock()

	log.Info().
		Str("room_id", r.ID).
		Str("host", p.Name).
		Bool("private", cfg.IsPrivate).
		Msg("room created")
	c.flush(events)
	c.notifySink(finished)
	return r.ID, nil
}

// JoinRoom adds the participant to a room, implicitly leaving any room they
// were in before.
func (c *Coordinator) JoinRoom(participantID, roomID, password string) error {
	p, ok := c.registry.Get(participantID)
	if !ok {
		return ErrNotConnected
	}

	c.mu.Lock()
	r, ok := c.rooms[roomID]
	if !ok {
		c.mu.Unlock()
		return ErrRoomNotFound
	}
	if len(r.players) >= r.MaxPlayers {
		c.mu.Unlock()
		return ErrRoomFull
	}
	if r.IsPrivate && password != r.password {
		c.mu.Unlock()
		return ErrInvalidPassword
	}
	if r.Status == StatusRacing {
		c.mu.Unlock()
		return ErrRaceInProgress
	}

	events, finished := c.leaveLocked(p)

	// The implicit leave may have torn this room down when the joiner was
	// its final member, which would make this a rejoin of a dead room.
	if _, still := c.rooms[roomID]; !still {
		c.mu.Unlock()
		c.flush(events)
		c.notifySink(finished)
		return ErrRoomNotFound
	}

	others := r.memberIDs()
	player := c.addPlayerLocked(r, p)

	events = append(events,
		outbound{one: p.ID, evt: Event{Type: EventRoomJoined, Data: RoomJoinedPayload{Room: r.info(), Players: r.playerList()}}},
		outbound{ids: others, evt: Event{Type: EventPlayerJoined, Data: PlayerJoinedPayload{Player: *player}}},
		c.roomsUpdatedLocked(),
	)
	c.mu.Unlock()

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Msg("participant joined room")
	c.flush(events)
	c.notifySink(finished)
	return nil
}

// LeaveRoom removes the participant from their current room, if any.
func (c *Coordinator) LeaveRoom(participantID string) error {
	p, ok := c.registry.Get(participantID)
	if !ok {
		return ErrNotConnected
	}

	c.mu.Lock()
	events, finished := c.leaveLocked(p)
	c.mu.Unlock()

	c.flush(events)
	c.notifySink(finished)
	return nil
}

// StartRace begins the countdown. Only the current host may trigger it, and
// only from the waiting state; anything else is silently ignored.
func (c *Coordinator) StartRace(participantID string) {
	p, ok := c.registry.Get(participantID)
	if !ok || p.RoomID == "" {
		return
	}

	c.mu.Lock()
	r, ok := c.rooms[p.RoomID]
	if !ok || r.HostID != participantID || r.Status != StatusWaiting {
		c.mu.Unlock()
		return
	}

	r.Status = StatusCountdown
	cd := newCountdown()
	r.countdown = cd
	members := r.memberIDs()
	c.mu.Unlock()

	log.Info().Str("room_id", r.ID).Msg("countdown started")
	c.broadcaster.ToParticipants(members, Event{
		Type: EventRaceCountdown,
		Data: CountdownPayload{Countdown: CountdownTicks},
	})
	go c.runCountdown(r.ID, cd)
}

// TypingUpdate processes one full-snapshot typing update. Updates outside an
// active race, or from an already finished player, are dropped without any
// state change.
func (c *Coordinator) TypingUpdate(participantID, typedText string) {
	p, ok := c.registry.Get(participantID)
	if !ok || p.RoomID == "" {
		return
	}

	c.mu.Lock()
	r, ok := c.rooms[p.RoomID]
	if !ok || r.Status != StatusRacing {
		c.mu.Unlock()
		return
	}
	player, ok := r.players[participantID]
	if !ok || player.Finished {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	elapsed := now.Sub(r.StartedAt)

	c.feedDetectorLocked(r, player, typedText, now)

	progress := typing.Progress(r.Text, typedText)
	player.WPM = typing.WPM(typedText, elapsed)
	player.Accuracy = typing.Accuracy(r.Text, typedText)
	player.typedText = typedText
	player.lastInputAt = now
	// Last write wins for the snapshot, but reported progress never moves
	// backwards within a race.
	if progress > player.Progress {
		player.Progress = progress
	}

	var events []outbound
	var finished *finishedRace

	if progress >= 100 && !player.Finished {
		player.Finished = true
		player.finishedAt = now
		r.finishCount++
		player.finishSeq = r.finishCount

		// Placement counts only players still in the room, so it stays
		// consistent with the final results when an earlier finisher has
		// already left. finishSeq remains the tie-break key.
		placement := r.finishedPlayers()

		events = append(events, outbound{one: player.ID, evt: Event{
			Type: EventRaceFinished,
			Data: RaceFinishedPayload{
				Placement:   placement,
				WPM:         player.WPM,
				Accuracy:    player.Accuracy,
				TimeElapsed: elapsed.Seconds(),
			},
		}})
		log.Info().
			Str("room_id", r.ID).
			Str("participant_id", player.ID).
			Int("placement", placement).
			Int("wpm", player.WPM).
			Msg("player finished race")

		if done, evt := c.maybeFinishRaceLocked(r); done != nil {
			events = append(events, evt)
			finished = done
		}
	}

	events = append(events, outbound{ids: r.memberIDs(), evt: Event{
		Type: EventProgress,
		Data: ProgressPayload{
			PlayerID: player.ID,
			Progress: player.Progress,
			WPM:      player.WPM,
			Accuracy: player.Accuracy,
		},
	}})
	c.mu.Unlock()

	c.flush(events)
	c.notifySink(finished)
}

// SendChat validates and relays a chat message to every participant in the
// sender's room, the sender included.
func (c *Coordinator) SendChat(participantID, text string) error {
	if strings.TrimSpace(text) == "" || len(text) > MaxChatLength {
		return ErrInvalidInput
	}
	p, ok := c.registry.Get(participantID)
	if !ok {
		return ErrNotConnected
	}
	if p.RoomID == "" {
		return ErrNotInRoom
	}

	c.mu.Lock()
	r, ok := c.rooms[p.RoomID]
	if !ok {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	members := r.memberIDs()
	c.mu.Unlock()

	msg := ChatMessage{
		ID:        uuid.New().String(),
		UserID:    p.ID,
		UserName:  p.Name,
		Message:   text,
		Timestamp: c.clock.Now(),
		IsGuest:   p.IsGuest,
	}
	c.broadcaster.ToParticipants(members, Event{Type: EventChatMessage, Data: msg})
	return nil
}

// ListRooms returns a point-in-time snapshot of every room.
func (c *Coordinator) ListRooms() []ListItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listRoomsLocked()
}

// RoomCount reports the number of live rooms, for the health probe.
func (c *Coordinator) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// RoomInfo returns the public projection of one room.
func (c *Coordinator) RoomInfo(roomID string) (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	if !ok {
		return Info{}, false
	}
	return r.info(), true
}

// PlayerState returns a copy of one player's current race state.
func (c *Coordinator) PlayerState(roomID, participantID string) (Player, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	if !ok {
		return Player{}, false
	}
	p, ok := r.players[participantID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Shutdown cancels every pending countdown so no timer fires after the
// process starts tearing down.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rooms {
		if r.countdown != nil {
			r.countdown.stop()
			r.countdown = nil
		}
	}
}

// --- internals, all called with c.mu held ---

func (c *Coordinator) addPlayerLocked(r *Room, p registry.Participant) *Player {
	r.joinCounter++
	player := &Player{
		ID:       p.ID,
		UserID:   p.UserID,
		Name:     p.Name,
		Avatar:   p.Avatar,
		IsGuest:  p.IsGuest,
		Accuracy: 100,
		joinSeq:  r.joinCounter,
		detector: anticheat.NewDetector(c.clock),
	}
	r.players[p.ID] = player
	if p.IsGuest {
		r.GuestCount++
	} else {
		r.UserCount++
	}
	c.registry.SetRoom(p.ID, r.ID)
	return player
}

type finishedRace struct {
	roomID  string
	results []RaceResult
}

// leaveLocked removes the participant from their current room, applying host
// succession and, for the last member, full room teardown including the
// countdown timer. It returns the broadcasts to emit after unlock.
func (c *Coordinator) leaveLocked(p registry.Participant) ([]outbound, *finishedRace) {
	if p.RoomID == "" {
		return nil, nil
	}
	r, ok := c.rooms[p.RoomID]
	if !ok {
		c.registry.SetRoom(p.ID, "")
		return nil, nil
	}
	player, ok := r.players[p.ID]
	if !ok {
		c.registry.SetRoom(p.ID, "")
		return nil, nil
	}

	delete(r.players, p.ID)
	if player.IsGuest {
		if r.GuestCount > 0 {
			r.GuestCount--
		}
	} else if r.UserCount > 0 {
		r.UserCount--
	}
	c.registry.SetRoom(p.ID, "")

	var events []outbound
	events = append(events, outbound{ids: r.memberIDs(), evt: Event{
		Type: EventPlayerLeft,
		Data: PlayerLeftPayload{PlayerID: p.ID},
	}})

	if r.HostID == p.ID {
		if successor := r.earliestJoined(); successor != nil {
			r.HostID = successor.ID
			events = append(events, outbound{ids: r.memberIDs(), evt: Event{
				Type: EventHostChanged,
				Data: HostChangedPayload{NewHost: successor.Name},
			}})
			log.Info().
				Str("room_id", r.ID).
				Str("new_host", successor.ID).
				Msg("host reassigned")
		}
	}

	var finished *finishedRace
	if len(r.players) == 0 {
		if r.countdown != nil {
			r.countdown.stop()
			r.countdown = nil
		}
		delete(c.rooms, r.ID)
		log.Info().Str("room_id", r.ID).Msg("room torn down")
	} else if r.Status == StatusRacing {
		// A departure can leave the room with every remaining player already
		// at 100%.
		var evt outbound
		if finished, evt = c.maybeFinishRaceLocked(r); finished != nil {
			events = append(events, evt)
		}
	}

	events = append(events, c.roomsUpdatedLocked())
	return events, finished
}

// maybeFinishRaceLocked transitions racing->finished once every current
// player has finished, finalizing the result list.
func (c *Coordinator) maybeFinishRaceLocked(r *Room) (*finishedRace, outbound) {
	if r.Status != StatusRacing || len(r.players) == 0 {
		return nil, outbound{}
	}
	for _, p := range r.players {
		if !p.Finished {
			return nil, outbound{}
		}
	}

	r.Status = StatusFinished
	r.Results = buildResults(r)
	log.Info().Str("room_id", r.ID).Int("results", len(r.Results)).Msg("race finished")

	return &finishedRace{roomID: r.ID, results: r.Results},
		outbound{ids: r.memberIDs(), evt: Event{Type: EventAllFinished, Data: AllFinishedPayload{Results: r.Results}}}
}

// buildResults orders players by finish timestamp ascending, breaking
// identical-timestamp ties by finish order; unfinished players go last.
func buildResults(r *Room) []RaceResult {
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.Finished != b.Finished {
			return a.Finished
		}
		if !a.Finished {
			return a.joinSeq < b.joinSeq
		}
		if !a.finishedAt.Equal(b.finishedAt) {
			return a.finishedAt.Before(b.finishedAt)
		}
		return a.finishSeq < b.finishSeq
	})

	results := make([]RaceResult, len(players))
	for i, p := range players {
		results[i] = RaceResult{
			Placement:    i + 1,
			PlayerID:     p.ID,
			UserID:       p.UserID,
			Name:         p.Name,
			WPM:          p.WPM,
			Accuracy:     p.Accuracy,
			IsGuest:      p.IsGuest,
			FinishedAt:   p.finishedAt,
			Authenticity: p.authenticity,
		}
		if p.Finished {
			results[i].TimeElapsed = p.finishedAt.Sub(r.StartedAt).Seconds()
		}
	}
	return results
}

// feedDetectorLocked derives keystroke events from the delta between the
// previous and current snapshots. Only clean appends are fed; edits that
// rewrite earlier input carry no usable timing signal.
func (c *Coordinator) feedDetectorLocked(r *Room, player *Player, typedText string, now time.Time) {
	prev := player.typedText
	if len(typedText) <= len(prev) || !strings.HasPrefix(typedText, prev) {
		return
	}
	appended := typedText[len(prev):]

	gap := int64(0)
	if player.detector.Len() > 0 {
		since := r.StartedAt
		if !player.lastInputAt.IsZero() {
			since = player.lastInputAt
		}
		gap = now.Sub(since).Milliseconds()
	}

	before := player.detector.Len()
	for i := 0; i < len(appended); i++ {
		pos := len(prev) + i
		latency := int64(0)
		if i == 0 {
			latency = gap
		}
		player.detector.RecordEvent(anticheat.Event{
			Char:    rune(appended[i]),
			Correct: pos < len(r.Text) && r.Text[pos] == appended[i],
			Latency: latency,
		})
	}

	if player.authenticity != nil {
		return
	}
	if player.detector.Len()/analyzeEvery > before/analyzeEvery {
		if res := player.detector.Analyze(); res.CheatDetected {
			player.authenticity = &res
			log.Warn().
				Str("room_id", r.ID).
				Str("participant_id", player.ID).
				Strs("cheat_types", res.CheatTypes).
				Float64("confidence", res.Confidence).
				Msg("authenticity heuristics flagged player")
		}
	}
}

func (c *Coordinator) listRoomsLocked() []ListItem {
	list := make([]ListItem, 0, len(c.rooms))
	for _, r := range c.rooms {
		list = append(list, r.listItem())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (c *Coordinator) roomsUpdatedLocked() outbound {
	return outbound{all: true, evt: Event{Type: EventRoomsUpdated, Data: c.listRoomsLocked()}}
}

func (c *Coordinator) notifySink(finished *finishedRace) {
	if finished == nil || c.sink == nil {
		return
	}
	go c.sink.RaceFinished(finished.roomID, finished.results)
}

// newRoomID produces a short, share-friendly room code.
func newRoomID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:6])
}
