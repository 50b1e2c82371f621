package results

import (
	"time"

	"github.com/mcdev12/typerace/internal/anticheat"
)

// TestResult is one persisted typing test, solo or multiplayer.
type TestResult struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	WPM         int       `json:"wpm"`
	Accuracy    int       `json:"accuracy"`
	Errors      int       `json:"errors"`
	TimeElapsed float64   `json:"timeElapsed"`
	TestType    string    `json:"testType"`
	// Placement is zero for solo tests.
	Placement int `json:"placement,omitempty"`

	Authenticity *anticheat.Result `json:"cheatDetection,omitempty"`
	CreatedAt    time.Time         `json:"timestamp"`
}

// Test types accepted on the results endpoint.
const (
	TestTypePractice    = "practice"
	TestTypeMultiplayer = "multiplayer"
)

// UserStats is the aggregate view of one user's history.
type UserStats struct {
	TotalTests      int     `json:"totalTests"`
	TotalTime       float64 `json:"totalTime"`
	BestWPM         int     `json:"bestWpm"`
	AverageWPM      int     `json:"averageWpm"`
	BestAccuracy    int     `json:"bestAccuracy"`
	AverageAccuracy int     `json:"averageAccuracy"`
	TotalWords      int     `json:"totalWords"`
	TotalErrors     int     `json:"totalErrors"`
	RacesPlayed     int     `json:"racesPlayed"`
	RacesWon        int     `json:"racesWon"`
}
