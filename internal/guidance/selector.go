package guidance

import (
	"sync"
	"time"

	"github.com/washsense/washsense/internal/fsm"
)

// Selector decides which feedback message to emit. Transition messages
// always win; dwell warnings fire once per state visit when their delay
// elapses, subject to a global cooldown so the user is not flooded.
type Selector struct {
	cooldown time.Duration

	mu         sync.Mutex
	state      fsm.State
	enteredAt  time.Time
	fired      map[int]bool
	lastSpoken time.Time

	now func() time.Time
}

// NewSelector creates a selector with the given minimum gap between
// spoken dwell warnings.
func NewSelector(cooldown time.Duration) *Selector {
	s := &Selector{
		cooldown: cooldown,
		fired:    make(map[int]bool),
		now:      time.Now,
	}
	s.state = fsm.Idle
	s.enteredAt = s.now()
	return s
}

// OnTransition records a state change and returns its announcement, if
// one is catalogued. Pending dwell warnings for the old state are
// discarded.
func (s *Selector) OnTransition(tr fsm.Transition) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = tr.To
	s.enteredAt = s.now()
	s.fired = make(map[int]bool)

	msg, ok := TransitionMessages[tr]
	if ok {
		s.lastSpoken = s.now()
	}
	return msg, ok
}

// Poll returns a due dwell warning for the current state, or "" when
// nothing should be said right now. Each warning fires at most once per
// state visit.
func (s *Selector) Poll() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSpoken) < s.cooldown {
		return "", false
	}

	dwell := now.Sub(s.enteredAt)
	for i, w := range StateWarnings[s.state] {
		if s.fired[i] || dwell < w.Delay {
			continue
		}
		s.fired[i] = true
		s.lastSpoken = now
		return w.Message, true
	}
	return "", false
}

// Guidance returns the current state's instruction at the given detail
// level. It does not count against the cooldown.
func (s *Selector) Guidance(detailLevel int) (string, bool) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	return ForState(state, detailLevel)
}
