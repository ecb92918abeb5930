// Package signature produces transaction signatures for mocked trade and
// settlement operations.
//
// The output has the length and alphabet of a real signature and nothing
// more: it is not valid, not unique and must not be parsed. Outputs are a
// pure function of the seed and the call sequence, so a session built with
// the same seed replays the same signatures.
package signature

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/howeyc/crc16"
)

// Example is the template every signature is permuted from.
const Example = "AyZgLRoT78G3KUxPiMTWF84MTQam1eL3bwuWBguufqSBU1JKVcrmGJe6XztLKJ4DfzQ8k1NQsLQnxFT4mB5F9yE0"

type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(seed uint64) *Synthesizer {
	return &Synthesizer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// SeedFromLabel derives a seed from a human readable label such as a test
// name.
func SeedFromLabel(label string) uint64 {
	return uint64(crc16.Checksum([]byte(label), crc16.IBMTable))
}

// Signature permutes Example once and repeats it count times. A count of
// zero or less yields "".
func (s *Synthesizer) Signature(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.Repeat(s.shuffle(), count)
}

func (s *Synthesizer) shuffle() string {
	b := []byte(Example)

	s.mu.Lock()
	s.rng.Shuffle(len(b), func(i, j int) { b[i], b[j] = b[j], b[i] })
	s.mu.Unlock()

	return string(b)
}
