// Package fsm implements the hand-washing assessment state machine. The
// transition catalogue is declarative data (cue threshold tests plus sustain
// windows and time-in-state gates) evaluated by a small interpreter inside
// the engine, which also tracks sustained-condition timers, activity-based
// idle regression, the state-visit history and the completion score.
package fsm
