package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/washsense/washsense/internal/cue"
)

// Feature constants tuned for 16 kHz mono PCM near a sink. Running water
// is broadband splashing, so it shows a high zero-crossing rate at
// moderate energy. A blower is a loud low-frequency roar, so it shows
// high energy with a much lower crossing rate.
const (
	energyCeiling = 8000.0 // RMS amplitude mapped to confidence 1.0
	waterZCRLow   = 0.15   // crossing rate below this is not water
	waterZCRHigh  = 0.45   // crossing rate at or above this is fully water-like
	blowerZCRHigh = 0.20   // crossing rate above this is not blower-like
	blowerEnergy  = 0.5    // normalized energy needed for full blower confidence
)

// Classifier turns PCM windows into audio cue confidences. Results are
// exponentially smoothed across windows so single noisy frames do not
// flip the detection.
type Classifier struct {
	windowSize int
	sampleRate int
	smoothing  float64

	lastWater  float64
	lastBlower float64

	// Statistics
	totalWindows  uint64
	waterWindows  uint64
	blowerWindows uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// Result holds the classification of one audio window.
type Result struct {
	WaterConfidence  float64   `json:"water_confidence"`
	BlowerConfidence float64   `json:"blower_confidence"`
	Energy           float64   `json:"energy"`
	ZeroCrossingRate float64   `json:"zero_crossing_rate"`
	Timestamp        time.Time `json:"timestamp"`
}

// Cues converts the result into the audio cue map.
func (r *Result) Cues() cue.Map {
	return cue.Map{
		cue.WaterSound:  r.WaterConfidence,
		cue.BlowerSound: r.BlowerConfidence,
	}
}

// ClassifierStats represents classifier statistics.
type ClassifierStats struct {
	TotalWindows  uint64    `json:"total_windows"`
	WaterWindows  uint64    `json:"water_windows"`
	BlowerWindows uint64    `json:"blower_windows"`
	LastProcessed time.Time `json:"last_processed"`
}

// NewClassifier creates an audio classifier for fixed-size PCM windows.
func NewClassifier(windowSize, sampleRate int, smoothing float64) (*Classifier, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if smoothing < 0 || smoothing > 1 {
		return nil, fmt.Errorf("smoothing must be between 0 and 1, got %f", smoothing)
	}

	return &Classifier{
		windowSize: windowSize,
		sampleRate: sampleRate,
		smoothing:  smoothing,
	}, nil
}

// Classify processes one window of samples and returns smoothed water and
// blower confidences.
func (c *Classifier) Classify(samples []int16) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(samples) != c.windowSize {
		return nil, fmt.Errorf("expected %d samples, got %d", c.windowSize, len(samples))
	}

	energy := normalizedEnergy(samples)
	zcr := zeroCrossingRate(samples)

	water := waterConfidence(energy, zcr)
	blower := blowerConfidence(energy, zcr)

	if c.totalWindows > 0 {
		water = c.smoothing*water + (1-c.smoothing)*c.lastWater
		blower = c.smoothing*blower + (1-c.smoothing)*c.lastBlower
	}
	c.lastWater = water
	c.lastBlower = blower

	c.totalWindows++
	if water >= 0.5 {
		c.waterWindows++
	}
	if blower >= 0.5 {
		c.blowerWindows++
	}
	c.lastProcessed = time.Now()

	return &Result{
		WaterConfidence:  water,
		BlowerConfidence: blower,
		Energy:           energy,
		ZeroCrossingRate: zcr,
		Timestamp:        c.lastProcessed,
	}, nil
}

// normalizedEnergy returns RMS amplitude scaled to 0..1.
func normalizedEnergy(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return clamp01(rms / energyCeiling)
}

// zeroCrossingRate returns the fraction of adjacent sample pairs that
// change sign.
func zeroCrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

func waterConfidence(energy, zcr float64) float64 {
	if energy < 0.02 {
		return 0
	}
	// Ramp from 0 at waterZCRLow to 1 at waterZCRHigh.
	spectral := clamp01((zcr - waterZCRLow) / (waterZCRHigh - waterZCRLow))
	loudness := clamp01(energy / 0.2)
	return spectral * loudness
}

func blowerConfidence(energy, zcr float64) float64 {
	if zcr > blowerZCRHigh {
		return 0
	}
	return clamp01(energy / blowerEnergy)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// GetStats returns current classifier statistics.
func (c *Classifier) GetStats() ClassifierStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClassifierStats{
		TotalWindows:  c.totalWindows,
		WaterWindows:  c.waterWindows,
		BlowerWindows: c.blowerWindows,
		LastProcessed: c.lastProcessed,
	}
}

// WindowSize returns the expected number of samples per window.
func (c *Classifier) WindowSize() int {
	return c.windowSize
}

// Reset clears smoothing state and statistics.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastWater = 0
	c.lastBlower = 0
	c.totalWindows = 0
	c.waterWindows = 0
	c.blowerWindows = 0
	c.lastProcessed = time.Time{}
}
