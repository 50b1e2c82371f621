package results

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/internal/room"
)

// Service records finished races and solo tests. It implements
// room.ResultSink: the coordinator hands it the final standings of every
// race, it publishes them and persists a row per signed-in finisher.
type Service struct {
	store Store
	pub   Publisher
	clock clockwork.Clock

	// saveTimeout bounds how long a single store write may take; race
	// recording runs outside any request context.
	saveTimeout time.Duration
}

// NewService builds a Service. store may be nil when persistence is not
// configured; pub must not be nil (use NoopPublisher).
func NewService(store Store, pub Publisher, clock clockwork.Clock) *Service {
	return &Service{
		store:       store,
		pub:         pub,
		clock:       clock,
		saveTimeout: 5 * time.Second,
	}
}

// racePayload is the published shape of one finished race.
type racePayload struct {
	RoomID  string            `json:"roomId"`
	Results []room.RaceResult `json:"results"`
}

// RaceFinished implements room.ResultSink.
func (s *Service) RaceFinished(roomID string, standings []room.RaceResult) {
	s.pub.Publish(SubjectRaceFinished, "race.finished", racePayload{
		RoomID:  roomID,
		Results: standings,
	})

	if s.store == nil {
		return
	}

	for _, res := range standings {
		// Guests have no account to attach history to, and abandoners have
		// no finish time worth recording.
		if res.IsGuest || res.FinishedAt.IsZero() {
			continue
		}

		result := TestResult{
			ID:           uuid.New().String(),
			UserID:       res.UserID,
			WPM:          res.WPM,
			Accuracy:     res.Accuracy,
			TimeElapsed:  res.TimeElapsed,
			TestType:     TestTypeMultiplayer,
			Placement:    res.Placement,
			Authenticity: res.Authenticity,
			CreatedAt:    s.clock.Now(),
		}
		s.saveResult(result)
	}
}

// RecordTest persists one client-reported solo test and publishes it.
func (s *Service) RecordTest(ctx context.Context, result TestResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = s.clock.Now()
	}

	if s.store != nil {
		if err := s.store.SaveResult(ctx, result); err != nil {
			return err
		}
	}

	s.pub.Publish(SubjectResultRecorded, "result.recorded", result)
	return nil
}

// Stats returns the aggregate history of one user plus their most recent
// tests.
func (s *Service) Stats(ctx context.Context, userID string) (UserStats, []TestResult, error) {
	if s.store == nil {
		return UserStats{}, nil, nil
	}
	stats, err := s.store.UserStats(ctx, userID)
	if err != nil {
		return UserStats{}, nil, err
	}
	recent, err := s.store.RecentResults(ctx, userID, 10)
	if err != nil {
		return UserStats{}, nil, err
	}
	return stats, recent, nil
}

func (s *Service) saveResult(result TestResult) {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	if err := s.store.SaveResult(ctx, result); err != nil {
		log.Error().
			Err(err).
			Str("user_id", result.UserID).
			Msg("failed to persist race result")
		return
	}
	s.pub.Publish(SubjectResultRecorded, "result.recorded", result)
}
