// Package anticheat flags likely non-human or pasted keyboard input from
// keystroke timing. Detection is probabilistic: each heuristic contributes a
// fixed confidence weight and the aggregate is capped at 1.0.
package anticheat

import (
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// Event is a single keystroke observation. Latency is the time since the
// previous keystroke in milliseconds; the first event of a session carries 0.
type Event struct {
	Char    rune
	Correct bool
	Latency int64
}

// Result aggregates the detector outcomes for the current window.
type Result struct {
	CheatDetected bool     `json:"isCheatDetected"`
	CheatTypes    []string `json:"cheatType"`
	Confidence    float64  `json:"confidence"`
	Details       []string `json:"details"`
}

// SessionStats summarizes an entire typing session.
type SessionStats struct {
	TotalTime  time.Duration
	Accuracy   int
	WPM        int
	Characters int
	Errors     int
}

const (
	// detectionThreshold is the aggregate confidence above which a session
	// is considered cheating.
	detectionThreshold = 0.7

	weightImpossibleSpeed = 0.8
	weightBotPattern      = 0.9
	weightPerfectAccuracy = 0.6
	weightUnusualPattern  = 0.5
	weightCopyPaste       = 1.0
)

// Detector accumulates keystroke events for one typing session and runs the
// heuristics on demand. The window is append-only within a session; Reset
// starts a new one. Not safe for concurrent use.
type Detector struct {
	clock     clockwork.Clock
	events    []Event
	startedAt time.Time
	lastKeyAt time.Time
}

// NewDetector returns a Detector whose latencies and WPM estimates are
// derived from clock. Tests pass a fake clock.
func NewDetector(clock clockwork.Clock) *Detector {
	d := &Detector{clock: clock}
	d.Reset()
	return d
}

// Reset discards the event window and restarts the session clock.
func (d *Detector) Reset() {
	d.events = d.events[:0]
	d.startedAt = d.clock.Now()
	d.lastKeyAt = time.Time{}
}

// RecordKey appends a keystroke, deriving its latency from the session clock.
func (d *Detector) RecordKey(char rune, correct bool) {
	now := d.clock.Now()
	var latency int64
	if !d.lastKeyAt.IsZero() {
		latency = now.Sub(d.lastKeyAt).Milliseconds()
	}
	d.lastKeyAt = now
	d.events = append(d.events, Event{Char: char, Correct: correct, Latency: latency})
}

// RecordEvent appends a keystroke with an explicit latency. Callers that
// observe a block of characters at once give the first character the real
// gap and the rest zero latency, which is what the paste heuristic keys on.
func (d *Detector) RecordEvent(ev Event) {
	d.lastKeyAt = d.clock.Now()
	d.events = append(d.events, ev)
}

// Len reports the number of events recorded in the current session.
func (d *Detector) Len() int {
	return len(d.events)
}

// Analyze runs every heuristic against the current window. Each heuristic is
// independent and re-evaluated in full on every call.
func (d *Detector) Analyze() Result {
	res := Result{
		CheatTypes: []string{},
		Details:    []string{},
	}

	checks := []struct {
		name   string
		weight float64
		run    func() (bool, string)
	}{
		{"impossible_speed", weightImpossibleSpeed, d.detectImpossibleSpeed},
		{"bot_pattern", weightBotPattern, d.detectBotPattern},
		{"perfect_accuracy", weightPerfectAccuracy, d.detectPerfectAccuracy},
		{"unusual_pattern", weightUnusualPattern, d.detectUnusualPatterns},
		{"copy_paste", weightCopyPaste, d.detectCopyPaste},
	}

	for _, c := range checks {
		detected, detail := c.run()
		if !detected {
			continue
		}
		res.CheatTypes = append(res.CheatTypes, c.name)
		res.Details = append(res.Details, detail)
		res.Confidence += c.weight
	}

	res.CheatDetected = res.Confidence > detectionThreshold
	res.Confidence = math.Min(res.Confidence, 1.0)
	return res
}

// detectImpossibleSpeed fires when the average gap over the last 10 events
// is under 50ms, roughly 1200+ WPM.
func (d *Detector) detectImpossibleSpeed() (bool, string) {
	if len(d.events) < 10 {
		return false, ""
	}
	recent := d.events[len(d.events)-10:]
	var sum int64
	for _, ev := range recent {
		sum += ev.Latency
	}
	avg := float64(sum) / float64(len(recent))
	if avg > 0 && avg < 50 {
		estWPM := math.Round(60000 / (avg * 5))
		return true, fmt.Sprintf("impossible typing speed: ~%.0f WPM (avg %.1fms between keys)", estWPM, avg)
	}
	return false, ""
}

// detectBotPattern fires when inter-key timing is too uniform to be human: a
// coefficient of variation under 0.1 with a mean under 200ms.
func (d *Detector) detectBotPattern() (bool, string) {
	if len(d.events) < 20 {
		return false, ""
	}
	timings := nonZeroLatencies(d.events[len(d.events)-20:])
	if len(timings) < 10 {
		return false, ""
	}
	mean, stddev := meanStddev(timings)
	cv := stddev / mean
	if cv < 0.1 && mean < 200 {
		return true, fmt.Sprintf("bot-like consistent timing: %.3f coefficient of variation", cv)
	}
	return false, ""
}

// detectPerfectAccuracy fires on a flawless last-50-event window at an
// estimated session speed above 120 WPM.
func (d *Detector) detectPerfectAccuracy() (bool, string) {
	if len(d.events) < 50 {
		return false, ""
	}
	for _, ev := range d.events[len(d.events)-50:] {
		if !ev.Correct {
			return false, ""
		}
	}
	wpm := d.sessionWPM()
	if wpm > 120 {
		return true, fmt.Sprintf("perfect accuracy at high speed (%d WPM)", wpm)
	}
	return false, ""
}

// detectUnusualPatterns fires when too many latencies are wildly out of line
// with both neighbors, which smells like scripted alternation.
func (d *Detector) detectUnusualPatterns() (bool, string) {
	if len(d.events) < 30 {
		return false, ""
	}
	timings := nonZeroLatencies(d.events[len(d.events)-30:])
	irregular := 0
	for i := 1; i < len(timings)-1; i++ {
		prev, curr, next := float64(timings[i-1]), float64(timings[i]), float64(timings[i+1])
		if (curr < prev*0.5 && curr < next*0.5) || (curr > prev*2 && curr > next*2) {
			irregular++
		}
	}
	if float64(irregular) > float64(len(timings))*0.3 {
		return true, fmt.Sprintf("irregular alternating speed pattern: %d outlier timings", irregular)
	}
	return false, ""
}

// detectCopyPaste fires on a burst of zero-latency characters, the signature
// of pasted text.
func (d *Detector) detectCopyPaste() (bool, string) {
	if len(d.events) < 5 {
		return false, ""
	}
	recent := d.events
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	zeros := 0
	for _, ev := range recent {
		if ev.Latency == 0 {
			zeros++
		}
	}
	if zeros > 3 {
		return true, fmt.Sprintf("possible copy-paste: %d characters with zero timing", zeros)
	}
	return false, ""
}

// sessionWPM estimates speed over the whole session assuming 5 characters
// per word.
func (d *Detector) sessionWPM() int {
	if len(d.events) < 5 {
		return 0
	}
	minutes := d.clock.Now().Sub(d.startedAt).Minutes()
	if minutes <= 0 {
		return 0
	}
	words := float64(len(d.events)) / 5
	return int(math.Round(words / minutes))
}

// Stats returns totals for the current session.
func (d *Detector) Stats() SessionStats {
	s := SessionStats{Characters: len(d.events)}
	if len(d.events) == 0 {
		s.Accuracy = 0
		return s
	}
	correct := 0
	for _, ev := range d.events {
		if ev.Correct {
			correct++
		} else {
			s.Errors++
		}
	}
	s.Accuracy = int(math.Round(float64(correct) / float64(len(d.events)) * 100))
	s.TotalTime = d.lastKeyAt.Sub(d.startedAt)
	s.WPM = d.sessionWPM()
	return s
}

func nonZeroLatencies(events []Event) []int64 {
	out := make([]int64, 0, len(events))
	for _, ev := range events {
		if ev.Latency > 0 {
			out = append(out, ev.Latency)
		}
	}
	return out
}

func meanStddev(timings []int64) (float64, float64) {
	var sum float64
	for _, t := range timings {
		sum += float64(t)
	}
	mean := sum / float64(len(timings))

	var variance float64
	for _, t := range timings {
		variance += math.Pow(float64(t)-mean, 2)
	}
	variance /= float64(len(timings))
	return mean, math.Sqrt(variance)
}
