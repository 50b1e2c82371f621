package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress("abcdefghij", ""))
	assert.Equal(t, 50.0, Progress("abcdefghij", "abcde"))
	assert.Equal(t, 100.0, Progress("abcdefghij", "abcdefghij"))

	// Overshoot is clamped.
	assert.Equal(t, 100.0, Progress("ab", "abcd"))

	// Degenerate reference text never divides by zero.
	assert.Equal(t, 0.0, Progress("", "anything"))
}

func TestWPM(t *testing.T) {
	// Two tokens in half a minute.
	assert.Equal(t, 4, WPM("hello world", 30*time.Second))

	assert.Equal(t, 0, WPM("hello world", 0))
	assert.Equal(t, 0, WPM("", time.Minute))
	assert.Equal(t, 60, WPM("one two three", 3*time.Second))
}

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 66, Accuracy("cat", "cot"))
	assert.Equal(t, 100, Accuracy("cat", ""))
	assert.Equal(t, 100, Accuracy("cat", "cat"))
	assert.Equal(t, 0, Accuracy("cat", "dog"))

	// Typing past the reference counts the excess against the typist.
	assert.Equal(t, 75, Accuracy("cat", "cats"))
}
