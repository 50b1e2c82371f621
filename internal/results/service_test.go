package results

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typerace/internal/room"
)

type fakeStore struct {
	mu      sync.Mutex
	saved   []TestResult
	stats   UserStats
	recent  []TestResult
	saveErr error
}

func (f *fakeStore) SaveResult(_ context.Context, result TestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, result)
	return nil
}

func (f *fakeStore) UserStats(context.Context, string) (UserStats, error) {
	return f.stats, nil
}

func (f *fakeStore) RecentResults(context.Context, string, int) ([]TestResult, error) {
	return f.recent, nil
}

func (f *fakeStore) savedResults() []TestResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TestResult(nil), f.saved...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []struct {
		Subject   string
		EventType string
		Payload   any
	}
}

func (f *fakePublisher) Publish(subject, eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, struct {
		Subject   string
		EventType string
		Payload   any
	}{subject, eventType, payload})
}

func (f *fakePublisher) published() []struct {
	Subject   string
	EventType string
	Payload   any
} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(f.events[:0:0], f.events...)
}

func TestRaceFinishedPersistsSignedInFinishers(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(store, pub, clock)

	finishedAt := clock.Now()
	svc.RaceFinished("ROOM01", []room.RaceResult{
		{Placement: 1, PlayerID: "p1", UserID: "u1", Name: "Alice", WPM: 80, Accuracy: 97, FinishedAt: finishedAt, TimeElapsed: 42.5},
		{Placement: 2, PlayerID: "p2", Name: "guest", IsGuest: true, WPM: 60, Accuracy: 91, FinishedAt: finishedAt, TimeElapsed: 55},
		{Placement: 3, PlayerID: "p3", UserID: "u3", Name: "Cara", WPM: 40, Accuracy: 88},
	})

	saved := store.savedResults()
	require.Len(t, saved, 1, "only the signed-in finisher is persisted")
	assert.Equal(t, "u1", saved[0].UserID)
	assert.Equal(t, TestTypeMultiplayer, saved[0].TestType)
	assert.Equal(t, 1, saved[0].Placement)
	assert.Equal(t, 42.5, saved[0].TimeElapsed)
	assert.Equal(t, clock.Now(), saved[0].CreatedAt)

	events := pub.published()
	require.NotEmpty(t, events)
	assert.Equal(t, SubjectRaceFinished, events[0].Subject)
	assert.Equal(t, "race.finished", events[0].EventType)
	payload, ok := events[0].Payload.(racePayload)
	require.True(t, ok)
	assert.Equal(t, "ROOM01", payload.RoomID)
	assert.Len(t, payload.Results, 3)
}

func TestRaceFinishedWithoutStoreStillPublishes(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewService(nil, pub, clockwork.NewFakeClock())

	svc.RaceFinished("ROOM01", []room.RaceResult{
		{Placement: 1, PlayerID: "p1", UserID: "u1", WPM: 80, Accuracy: 97, FinishedAt: time.Now()},
	})

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, SubjectRaceFinished, events[0].Subject)
}

func TestRecordTestFillsDefaultsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(store, pub, clock)

	err := svc.RecordTest(context.Background(), TestResult{
		UserID: "u1", WPM: 72, Accuracy: 95, TimeElapsed: 60, TestType: TestTypePractice,
	})
	require.NoError(t, err)

	saved := store.savedResults()
	require.Len(t, saved, 1)
	assert.NotEmpty(t, saved[0].ID)
	assert.Equal(t, clock.Now(), saved[0].CreatedAt)

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, SubjectResultRecorded, events[0].Subject)
	assert.Equal(t, "result.recorded", events[0].EventType)
}

func TestRecordTestPropagatesStoreError(t *testing.T) {
	store := &fakeStore{saveErr: assert.AnError}
	pub := &fakePublisher{}
	svc := NewService(store, pub, clockwork.NewFakeClock())

	err := svc.RecordTest(context.Background(), TestResult{UserID: "u1", TestType: TestTypePractice})
	assert.Error(t, err)
	assert.Empty(t, pub.published(), "no event for a result that was not stored")
}
