// Package guidance turns state activity into user-facing feedback. It
// holds the transition message catalogue, per-state dwell warnings and
// the adaptive level-of-detail instructions, and selects which message
// to speak without repeating itself.
package guidance
