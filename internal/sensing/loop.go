package sensing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/washsense/washsense/internal/cue"
	"github.com/washsense/washsense/internal/metrics"
)

// Dispatcher sends frames out for visual inference and hands back any
// finished results. The provider pool implements it.
type Dispatcher interface {
	Submit(ctx context.Context, frameB64 string) bool
	Collect() []cue.Map
}

// AudioSampler produces the current audio cue confidences on demand.
type AudioSampler interface {
	Sample() (cue.Map, error)
}

// LoopConfig carries the loop cadences. Frame dispatch and audio sampling
// run on independent intervals on top of one short tick.
type LoopConfig struct {
	TickInterval     time.Duration
	DispatchInterval time.Duration
	AudioInterval    time.Duration
}

// LoopStats represents sensing loop counters.
type LoopStats struct {
	Ticks             uint64 `json:"ticks"`
	FramesDispatched  uint64 `json:"frames_dispatched"`
	FramesDropped     uint64 `json:"frames_dropped"`
	VisualEvents      uint64 `json:"visual_events"`
	AudioEvents       uint64 `json:"audio_events"`
	AudioSampleErrors uint64 `json:"audio_sample_errors"`
}

// Loop drives sensing on a fixed tick. Each tick it collects finished
// inference results, dispatches the freshest frame when the dispatch
// cadence is due, and samples audio when the audio cadence is due. All
// output lands on the event queue as fused-ready cue events.
type Loop struct {
	cfg        LoopConfig
	frames     *FrameSlot
	events     *EventQueue
	dispatcher Dispatcher
	audio      AudioSampler
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	stats LoopStats
}

// NewLoop wires a sensing loop. The audio sampler may be nil when no
// microphone is configured; audio cues are then never produced. The
// metrics collector may also be nil.
func NewLoop(cfg LoopConfig, frames *FrameSlot, events *EventQueue, dispatcher Dispatcher, audio AudioSampler, logger *slog.Logger, m *metrics.Metrics) (*Loop, error) {
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive")
	}
	if cfg.DispatchInterval <= 0 {
		return nil, fmt.Errorf("dispatch interval must be positive")
	}
	if cfg.AudioInterval <= 0 {
		return nil, fmt.Errorf("audio interval must be positive")
	}
	if frames == nil || events == nil || dispatcher == nil {
		return nil, fmt.Errorf("frames, events and dispatcher are required")
	}

	return &Loop{
		cfg:        cfg,
		frames:     frames,
		events:     events,
		dispatcher: dispatcher,
		audio:      audio,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Run ticks until the context is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("Sensing loop started",
		slog.Duration("tick", l.cfg.TickInterval),
		slog.Duration("dispatch_interval", l.cfg.DispatchInterval),
		slog.Duration("audio_interval", l.cfg.AudioInterval),
	)

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	var lastDispatch, lastAudio time.Time
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Sensing loop stopped")
			return
		case now := <-ticker.C:
			l.Tick(ctx, now, &lastDispatch, &lastAudio)
		}
	}
}

// Tick runs one iteration of the loop body.
func (l *Loop) Tick(ctx context.Context, now time.Time, lastDispatch, lastAudio *time.Time) {
	l.mu.Lock()
	l.stats.Ticks++
	l.mu.Unlock()

	l.collectResults()

	if now.Sub(*lastDispatch) >= l.cfg.DispatchInterval {
		*lastDispatch = now
		l.dispatchFrame(ctx)
	}

	if l.audio != nil && now.Sub(*lastAudio) >= l.cfg.AudioInterval {
		*lastAudio = now
		l.sampleAudio()
	}
}

func (l *Loop) collectResults() {
	for _, cues := range l.dispatcher.Collect() {
		l.events.Push(cue.Event{Kind: cue.KindVisual, Cues: cues})
		l.mu.Lock()
		l.stats.VisualEvents++
		l.mu.Unlock()
	}
}

func (l *Loop) dispatchFrame(ctx context.Context) {
	frame, ok := l.frames.Take()
	if !ok {
		return
	}
	if l.dispatcher.Submit(ctx, frame) {
		l.mu.Lock()
		l.stats.FramesDispatched++
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.RecordFrameDispatched()
		}
		return
	}
	// No eligible endpoint; the frame is dropped rather than queued so a
	// stalled pool never builds a backlog of stale frames.
	l.mu.Lock()
	l.stats.FramesDropped++
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.RecordFrameDropped()
	}
}

func (l *Loop) sampleAudio() {
	cues, err := l.audio.Sample()
	if err != nil {
		l.logger.Warn("Audio sampling failed", slog.String("error", err.Error()))
		l.mu.Lock()
		l.stats.AudioSampleErrors++
		l.mu.Unlock()
		return
	}
	l.events.Push(cue.Event{Kind: cue.KindAudio, Cues: cues})
	l.mu.Lock()
	l.stats.AudioEvents++
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.RecordAudioWindow(cues.Get(cue.WaterSound) >= 0.5, cues.Get(cue.BlowerSound) >= 0.5)
	}
}

// GetStats returns current loop counters.
func (l *Loop) GetStats() LoopStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
