package sensing

import (
	"sync"

	"github.com/washsense/washsense/internal/cue"
)

// FrameSlot is a single-slot frame buffer. A producer always succeeds in
// storing a frame; when a frame is already waiting it is overwritten, so
// the consumer only ever sees the freshest capture. Frames are base64
// encoded JPEG data.
type FrameSlot struct {
	mu      sync.Mutex
	frame   string
	present bool

	framesStored      uint64
	framesOverwritten uint64
}

// NewFrameSlot creates an empty frame slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Put stores a frame, replacing any frame already waiting.
func (s *FrameSlot) Put(frameB64 string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.present {
		s.framesOverwritten++
	}
	s.frame = frameB64
	s.present = true
	s.framesStored++
}

// Take removes and returns the waiting frame, if any.
func (s *FrameSlot) Take() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present {
		return "", false
	}
	frame := s.frame
	s.frame = ""
	s.present = false
	return frame, true
}

// Stats returns how many frames were stored and how many of those were
// overwritten before being taken.
func (s *FrameSlot) Stats() (stored, overwritten uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesStored, s.framesOverwritten
}

// EventQueue is an unbounded FIFO of cue events. Producers never block;
// the consumer drains the whole backlog at once so fused cues are applied
// in arrival order.
type EventQueue struct {
	mu     sync.Mutex
	events []cue.Event
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Push appends an event.
func (q *EventQueue) Push(ev cue.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
}

// Drain removes and returns all queued events in arrival order.
func (q *EventQueue) Drain() []cue.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
