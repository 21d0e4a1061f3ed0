package fsm

import (
	"fmt"
	"sync"
	"time"

	"github.com/washsense/washsense/internal/cue"
)

// activityThreshold is the cue level above which the user counts as active.
const activityThreshold = 0.3

// maxDetailLevel caps the guidance level-of-detail counter.
const maxDetailLevel = 2

// Transition reports one fired state change.
type Transition struct {
	From State `json:"from_state"`
	To   State `json:"to_state"`
}

// HistoryEntry is one visit in the state history. ExitTime is nil for the
// single open entry, which is always the current state.
type HistoryEntry struct {
	State     State      `json:"state"`
	EnterTime time.Time  `json:"enter_time"`
	ExitTime  *time.Time `json:"exit_time"`
}

// StateScore is the per-state breakdown of the completion score.
type StateScore struct {
	Points    int  `json:"points"`
	MaxPoints int  `json:"max_points"`
	Completed bool `json:"completed"`
}

// Score is the session completion score, defined only once DONE is reached.
type Score struct {
	Total    int                  `json:"total"`
	MaxTotal int                  `json:"max_total"`
	Details  map[State]StateScore `json:"details"`
}

// scorePoints awards each state's points when it appears anywhere in the
// set of visited states; order and repeat visits are irrelevant.
var scorePoints = map[State]int{
	Washing:         15,
	Soaping:         25,
	Rinsing:         8,
	RinsingOK:       6,
	RinsingThorough: 6,
	TowelDrying:     15,
	ClothesDrying:   5,
	BlowerDrying:    10,
	Done:            10,
}

// Engine advances through the state catalogue as fused cue maps arrive.
// Update is synchronous and never blocks; the engine owns its history,
// sustained-condition timers and inactivity clock exclusively.
type Engine struct {
	mu sync.RWMutex

	state     State
	enteredAt time.Time
	history   []HistoryEntry

	// condSince maps sustained-timer names to the instant the condition
	// first flipped true. Scoped to the current state: cleared on every
	// transition.
	condSince map[string]time.Time

	lastActivity time.Time
	idleTimeout  time.Duration

	// cueBuffer holds the most recent cue maps for inspection (status API,
	// session log). Cleared on every transition.
	cueBuffer     []cue.Map
	cueBufferSize int

	// detailLevel selects more verbose guidance after idle regressions.
	detailLevel int

	now func() time.Time
}

// NewEngine creates an engine in IDLE with a single open history entry.
func NewEngine(idleTimeout time.Duration, cueBufferSize int) (*Engine, error) {
	if idleTimeout <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive, got %v", idleTimeout)
	}
	if cueBufferSize < 1 {
		return nil, fmt.Errorf("cue buffer size must be at least 1, got %d", cueBufferSize)
	}

	e := &Engine{
		idleTimeout:   idleTimeout,
		cueBufferSize: cueBufferSize,
		condSince:     make(map[string]time.Time),
		now:           time.Now,
	}
	e.resetLocked()
	return e, nil
}

// Update processes one fused cue map. It returns the fired transition, or
// nil when the state did not change. Callers must only invoke Update when
// at least one fresh cue event has arrived, so that stale values are not
// re-counted as new evidence of sustained activity.
func (e *Engine) Update(cues cue.Map) *Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.pushCue(cues)

	def := States[e.state]

	// 1) Activity: any activity cue above threshold resets the clock.
	// States without activity cues (IDLE, DONE) are exempt.
	if hasActivity(def, cues) {
		e.lastActivity = now
	}

	// 2) First matching rule wins; order encodes priority.
	timeInState := now.Sub(e.enteredAt)
	for _, rule := range def.Rules {
		if e.ruleFires(rule, cues, timeInState, now) {
			return e.transitionTo(rule.Target, now)
		}
	}

	// 3) Idle timeout regression. Bump the guidance detail level so the
	// external feedback layer can explain the step more thoroughly.
	if e.state != Idle && e.state != Done && now.Sub(e.lastActivity) >= e.idleTimeout {
		if e.detailLevel < maxDetailLevel {
			e.detailLevel++
		}
		return e.transitionTo(Idle, now)
	}

	return nil
}

func hasActivity(def Def, cues cue.Map) bool {
	if len(def.ActivityCues) == 0 {
		return true
	}
	for _, key := range def.ActivityCues {
		if cues.Get(key) > activityThreshold {
			return true
		}
	}
	return false
}

func (e *Engine) ruleFires(rule Rule, cues cue.Map, timeInState time.Duration, now time.Time) bool {
	pass := true
	for _, test := range rule.All {
		if !test.holds(cues) {
			pass = false
			break
		}
	}
	if pass && len(rule.Any) > 0 {
		pass = false
		for _, test := range rule.Any {
			if test.holds(cues) {
				pass = true
				break
			}
		}
	}

	if rule.Sustain > 0 {
		return e.sustained(rule.Timer, pass, now) >= rule.Sustain
	}
	return pass && timeInState >= rule.MinTime
}

// sustained returns how long the named condition has held continuously.
// It is 0 the instant the condition is false, and the timer restarts the
// first time the condition flips back to true.
func (e *Engine) sustained(name string, condition bool, now time.Time) time.Duration {
	if !condition {
		delete(e.condSince, name)
		return 0
	}
	since, ok := e.condSince[name]
	if !ok {
		e.condSince[name] = now
		return 0
	}
	return now.Sub(since)
}

func (e *Engine) transitionTo(target State, now time.Time) *Transition {
	from := e.state

	exit := now
	e.history[len(e.history)-1].ExitTime = &exit
	e.history = append(e.history, HistoryEntry{State: target, EnterTime: now})

	e.state = target
	e.enteredAt = now
	e.lastActivity = now

	// Every sustained timer and the rolling cue buffer are scoped to the
	// state that just ended.
	clear(e.condSince)
	e.cueBuffer = e.cueBuffer[:0]

	return &Transition{From: from, To: target}
}

func (e *Engine) pushCue(cues cue.Map) {
	if len(e.cueBuffer) == e.cueBufferSize {
		copy(e.cueBuffer, e.cueBuffer[1:])
		e.cueBuffer = e.cueBuffer[:e.cueBufferSize-1]
	}
	e.cueBuffer = append(e.cueBuffer, cues.Clone())
}

// Reset returns the engine to IDLE with a fresh history and cleared timers.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	now := e.now()
	e.state = Idle
	e.enteredAt = now
	e.history = []HistoryEntry{{State: Idle, EnterTime: now}}
	clear(e.condSince)
	e.cueBuffer = e.cueBuffer[:0]
	e.lastActivity = now
	e.detailLevel = 0
}

// CurrentState returns the current state.
func (e *Engine) CurrentState() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// TimeInState returns how long the engine has been in the current state.
func (e *Engine) TimeInState() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now().Sub(e.enteredAt)
}

// History returns a copy of the full state-visit history, ordered by entry
// time. Exactly one entry, the last, has a nil exit time.
func (e *Engine) History() []HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

// VisitedStates returns the set of states visited this session.
func (e *Engine) VisitedStates() map[State]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	visited := make(map[State]bool, len(e.history))
	for _, entry := range e.history {
		visited[entry.State] = true
	}
	return visited
}

// DetailLevel returns the guidance level-of-detail counter (0..2).
func (e *Engine) DetailLevel() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.detailLevel
}

// LatestCues returns the most recent cue map seen in the current state,
// or nil when none has arrived since the last transition.
func (e *Engine) LatestCues() cue.Map {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.cueBuffer) == 0 {
		return nil
	}
	return e.cueBuffer[len(e.cueBuffer)-1].Clone()
}

// GetScore returns the completion score, or nil while the session has not
// reached DONE.
func (e *Engine) GetScore() *Score {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.state != Done {
		return nil
	}

	visited := make(map[State]bool, len(e.history))
	for _, entry := range e.history {
		visited[entry.State] = true
	}

	score := &Score{MaxTotal: 100, Details: make(map[State]StateScore, len(scorePoints))}
	for state, pts := range scorePoints {
		completed := visited[state]
		detail := StateScore{MaxPoints: pts, Completed: completed}
		if completed {
			detail.Points = pts
			score.Total += pts
		}
		score.Details[state] = detail
	}
	return score
}
