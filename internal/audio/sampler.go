package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/washsense/washsense/internal/cue"
)

// Sampler bridges pushed PCM windows to pull-based cue sampling. Capture
// runs outside this process; whoever owns the microphone posts windows
// with Feed, and the sensing loop reads the freshest classification with
// Sample on its own cadence.
type Sampler struct {
	classifier *Classifier

	mu     sync.Mutex
	latest cue.Map
}

// NewSampler wraps a classifier.
func NewSampler(classifier *Classifier) *Sampler {
	return &Sampler{classifier: classifier}
}

// Feed classifies one PCM window and caches the result.
func (s *Sampler) Feed(samples []int16) error {
	result, err := s.classifier.Classify(samples)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.latest = result.Cues()
	s.mu.Unlock()
	return nil
}

// FeedBytes decodes little-endian 16-bit PCM and feeds it.
func (s *Sampler) FeedBytes(data []byte) error {
	if len(data)%2 != 0 {
		return fmt.Errorf("pcm data must be an even number of bytes, got %d", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return s.Feed(samples)
}

// Sample returns the most recent classification. Before any window has
// arrived it reports silence.
func (s *Sampler) Sample() (cue.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return cue.ZeroAudio(), nil
	}
	return s.latest.Clone(), nil
}
