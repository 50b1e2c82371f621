package results

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(store *fakeStore) *http.ServeMux {
	svc := NewService(store, &fakePublisher{}, clockwork.NewFakeClock())
	mux := http.NewServeMux()
	NewHTTPHandler(svc).Register(mux)
	return mux
}

func TestSubmitResult(t *testing.T) {
	store := &fakeStore{}
	mux := newTestHandler(store)

	body := `{"wpm":72,"accuracy":95,"errors":3,"timeElapsed":60,"testType":"practice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/results", strings.NewReader(body))
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	saved := store.savedResults()
	require.Len(t, saved, 1)
	assert.Equal(t, "u1", saved[0].UserID)
	assert.Equal(t, 72, saved[0].WPM)
}

func TestSubmitResultRejections(t *testing.T) {
	mux := newTestHandler(&fakeStore{})

	tests := []struct {
		name   string
		userID string
		body   string
		status int
	}{
		{"no user", "", `{"wpm":72,"accuracy":95,"timeElapsed":60,"testType":"practice"}`, http.StatusUnauthorized},
		{"garbage body", "u1", `{nope`, http.StatusBadRequest},
		{"wpm out of range", "u1", `{"wpm":900,"accuracy":95,"timeElapsed":60,"testType":"practice"}`, http.StatusBadRequest},
		{"accuracy out of range", "u1", `{"wpm":72,"accuracy":101,"timeElapsed":60,"testType":"practice"}`, http.StatusBadRequest},
		{"zero elapsed", "u1", `{"wpm":72,"accuracy":95,"timeElapsed":0,"testType":"practice"}`, http.StatusBadRequest},
		{"bad test type", "u1", `{"wpm":72,"accuracy":95,"timeElapsed":60,"testType":"warmup"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/results", strings.NewReader(tt.body))
			if tt.userID != "" {
				req.Header.Set("X-User-Id", tt.userID)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGetStats(t *testing.T) {
	store := &fakeStore{
		stats:  UserStats{TotalTests: 5, BestWPM: 90, RacesPlayed: 3, RacesWon: 1},
		recent: []TestResult{{ID: "r1", UserID: "u1", WPM: 80}},
	}
	mux := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Stats       UserStats    `json:"stats"`
		RecentTests []TestResult `json:"recentTests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Stats.TotalTests)
	assert.Equal(t, 90, resp.Stats.BestWPM)
	require.Len(t, resp.RecentTests, 1)
	assert.Equal(t, 80, resp.RecentTests[0].WPM)
}

func TestGetStatsRequiresUser(t *testing.T) {
	mux := newTestHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
