// Package typing holds the pure progress/speed/accuracy calculations for a
// race attempt. All functions recompute from the full typed-so-far snapshot,
// so callers never need to sequence incremental updates.
package typing

import (
	"math"
	"strings"
	"time"
)

// Progress returns the percentage of the reference text covered by the typed
// snapshot, clamped to [0, 100].
func Progress(reference, typed string) float64 {
	if len(reference) == 0 {
		return 0
	}
	p := float64(len(typed)) / float64(len(reference)) * 100
	return math.Min(p, 100)
}

// WPM estimates words per minute from a typed snapshot and the elapsed race
// time. A word is a whitespace-separated token. Zero or negative elapsed
// time yields 0.
func WPM(typed string, elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	words := len(strings.Fields(typed))
	return int(math.Round(float64(words) / elapsed.Minutes()))
}

// Accuracy compares the typed snapshot position-by-position against the
// reference text, up to the shorter of the two. An empty snapshot is 100%.
func Accuracy(reference, typed string) int {
	if len(typed) == 0 {
		return 100
	}
	n := len(typed)
	if len(reference) < n {
		n = len(reference)
	}
	correct := 0
	for i := 0; i < n; i++ {
		if reference[i] == typed[i] {
			correct++
		}
	}
	return correct * 100 / len(typed)
}
