// Package texts supplies reference passages for races. The core consumes it
// only through the Provider interface so a database-backed source can be
// swapped in without touching the coordinator.
package texts

import (
	"math/rand"
	"sync"
)

// Provider hands out a reference text for the requested difficulty.
type Provider interface {
	Text(difficulty string) string
}

// Static serves from an in-memory corpus keyed by difficulty, falling back
// to the medium set for unknown tags.
type Static struct {
	mu     sync.Mutex
	rng    *rand.Rand
	corpus map[string][]string
}

// NewStatic returns a provider over the built-in corpus.
func NewStatic(seed int64) *Static {
	return &Static{
		rng:    rand.New(rand.NewSource(seed)),
		corpus: builtinCorpus,
	}
}

func (s *Static) Text(difficulty string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.corpus[difficulty]
	if !ok || len(set) == 0 {
		set = s.corpus["medium"]
	}
	return set[s.rng.Intn(len(set))]
}

var builtinCorpus = map[string][]string{
	"easy": {
		"The sun rose over the quiet town and the streets slowly filled with people on their way to work.",
		"A small dog ran across the park chasing a red ball while children laughed and played on the swings.",
		"She opened the window to let in the morning air and watched the birds gather around the old oak tree.",
	},
	"medium": {
		"The quick brown fox jumps over the lazy dog. This pangram contains every letter of the alphabet and is commonly used for typing practice. It demonstrates the importance of accuracy and speed in typing, which are essential skills in today's digital world.",
		"In the world of technology, innovation is the key to success. Companies that embrace change and adapt to new trends are the ones that thrive in the competitive market. The ability to think outside the box and create solutions that meet the evolving needs of consumers is what sets great organizations apart.",
		"Artificial intelligence and machine learning are transforming the way we work and live. From autonomous vehicles to smart home devices, these technologies are becoming increasingly integrated into our daily lives, promising a future of unprecedented convenience and efficiency.",
	},
	"hard": {
		"The art of programming is the art of organizing complexity, of mastering multitude and avoiding its bastard chaos as effectively as possible. Programming is one of the most difficult branches of applied mathematics; the poorer mathematicians had better remain pure mathematicians.",
		"Considered subjectively, syntax recapitulates semantics; yet the pragmatics of large-scale systems, with their queues, caches, retries and partial failures, resists any tidy formalism: the practitioner's craft lies in bounding the blast radius of the unexpected.",
	},
}
