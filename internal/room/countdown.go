package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// countdown is the cancellable timer handle stored on a Room while it is in
// the countdown state. Storing the handle on the room, rather than letting a
// closure float free, is what makes teardown deterministic: deleting the
// room stops the pending transition before it can fire against removed state.
type countdown struct {
	cancel chan struct{}
	once   sync.Once
}

func newCountdown() *countdown {
	return &countdown{cancel: make(chan struct{})}
}

func (cd *countdown) stop() {
	cd.once.Do(func() { close(cd.cancel) })
}

// runCountdown drives the countdown->racing transition for one room. It is
// the only goroutine the coordinator ever spawns per room, and it re-checks
// room identity on every tick so a cancelled or torn-down room is never
// mutated by a stale timer.
func (c *Coordinator) runCountdown(roomID string, cd *countdown) {
	for remaining := CountdownTicks - 1; remaining >= 0; remaining-- {
		timer := c.clock.NewTimer(time.Second)
		select {
		case <-timer.Chan():
		case <-cd.cancel:
			stopAndDrainTimer(timer)
			log.Debug().Str("room_id", roomID).Msg("countdown cancelled")
			return
		}

		if remaining > 0 {
			c.tickCountdown(roomID, cd, remaining)
		} else {
			c.beginRace(roomID, cd)
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already
// fired, per the time.Timer.Stop contract.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// tickCountdown broadcasts one countdown step if the room still owns this
// countdown.
func (c *Coordinator) tickCountdown(roomID string, cd *countdown, remaining int) {
	c.mu.Lock()
	r, ok := c.rooms[roomID]
	if !ok || r.Status != StatusCountdown || r.countdown != cd {
		c.mu.Unlock()
		return
	}
	members := r.memberIDs()
	c.mu.Unlock()

	c.broadcaster.ToParticipants(members, Event{
		Type: EventRaceCountdown,
		Data: CountdownPayload{Countdown: remaining},
	})
}

// beginRace performs the countdown->racing transition: every player's
// per-race state is reset, the start instant is stamped, and the text goes
// out to the room.
func (c *Coordinator) beginRace(roomID string, cd *countdown) {
	c.mu.Lock()
	r, ok := c.rooms[roomID]
	if !ok || r.Status != StatusCountdown || r.countdown != cd {
		c.mu.Unlock()
		return
	}

	r.Status = StatusRacing
	r.StartedAt = c.clock.Now()
	r.countdown = nil
	r.finishCount = 0
	for _, p := range r.players {
		p.Progress = 0
		p.WPM = 0
		p.Accuracy = 100
		p.Finished = false
		p.finishedAt = time.Time{}
		p.finishSeq = 0
		p.typedText = ""
		p.lastInputAt = time.Time{}
		p.authenticity = nil
		p.detector.Reset()
	}
	members := r.memberIDs()
	payload := RaceStartedPayload{StartTime: r.StartedAt, Text: r.Text}
	c.mu.Unlock()

	log.Info().Str("room_id", roomID).Int("players", len(members)).Msg("race started")
	c.broadcaster.ToParticipants(members, Event{Type: EventRaceStarted, Data: payload})
}
