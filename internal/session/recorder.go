package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/washsense/washsense/internal/cue"
	"github.com/washsense/washsense/internal/fsm"
)

// Event types recorded during a session.
const (
	EventTransition = "transition"
	EventCues       = "cues"
	EventFeedback   = "feedback"
)

// Event is one recorded moment of a session.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	FromState fsm.State `json:"from_state,omitempty"`
	ToState   fsm.State `json:"to_state,omitempty"`
	State     fsm.State `json:"state,omitempty"`
	Cues      cue.Map   `json:"cues,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Log is the persisted session document.
type Log struct {
	SessionID    string             `json:"session_id"`
	StartedAt    time.Time          `json:"started_at"`
	SavedAt      time.Time          `json:"saved_at"`
	StateHistory []fsm.HistoryEntry `json:"state_history"`
	Score        *fsm.Score         `json:"score,omitempty"`
	Events       []Event            `json:"events"`
}

// Recorder accumulates session events in memory and writes them out when
// the session ends. It is safe for concurrent use.
type Recorder struct {
	outputDir string
	sessionID string
	startedAt time.Time

	mu     sync.Mutex
	events []Event

	now func() time.Time
}

// NewRecorder creates a recorder writing into outputDir. The directory is
// created if missing.
func NewRecorder(outputDir string) (*Recorder, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Recorder{
		outputDir: outputDir,
		sessionID: "session_" + uuid.NewString(),
		startedAt: time.Now(),
		now:       time.Now,
	}, nil
}

// SessionID returns the unique session identifier.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// RecordTransition records a state change with the cues that caused it.
func (r *Recorder) RecordTransition(tr fsm.Transition, cues cue.Map) {
	r.append(Event{
		Type:      EventTransition,
		Timestamp: r.now(),
		FromState: tr.From,
		ToState:   tr.To,
		Cues:      cues.Clone(),
	})
}

// RecordCues records a periodic cue snapshot in the given state.
func (r *Recorder) RecordCues(state fsm.State, cues cue.Map) {
	r.append(Event{
		Type:      EventCues,
		Timestamp: r.now(),
		State:     state,
		Cues:      cues.Clone(),
	})
}

// RecordFeedback records a message spoken or shown to the user.
func (r *Recorder) RecordFeedback(state fsm.State, message string) {
	r.append(Event{
		Type:      EventFeedback,
		Timestamp: r.now(),
		State:     state,
		Message:   message,
	})
}

func (r *Recorder) append(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// EventCount returns the number of recorded events.
func (r *Recorder) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Save writes the session log as JSON and returns its path.
func (r *Recorder) Save(history []fsm.HistoryEntry, score *fsm.Score) (string, error) {
	r.mu.Lock()
	events := make([]Event, len(r.events))
	copy(events, r.events)
	r.mu.Unlock()

	log := Log{
		SessionID:    r.sessionID,
		StartedAt:    r.startedAt,
		SavedAt:      r.now(),
		StateHistory: history,
		Score:        score,
		Events:       events,
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode session log: %w", err)
	}

	path := filepath.Join(r.outputDir, r.sessionID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write session log: %w", err)
	}
	return path, nil
}
