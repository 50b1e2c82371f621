package texts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextPerDifficulty(t *testing.T) {
	p := NewStatic(1)

	for _, difficulty := range []string{"easy", "medium", "hard"} {
		text := p.Text(difficulty)
		assert.NotEmpty(t, text)
		assert.Contains(t, builtinCorpus[difficulty], text)
	}
}

func TestUnknownDifficultyFallsBackToMedium(t *testing.T) {
	p := NewStatic(1)

	text := p.Text("nightmare")
	assert.Contains(t, builtinCorpus["medium"], text)
}

func TestSeededSelectionIsDeterministic(t *testing.T) {
	a := NewStatic(42)
	b := NewStatic(42)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Text("medium"), b.Text("medium"))
	}
}
