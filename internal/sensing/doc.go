// Package sensing runs the capture-side loop. It holds the freshest
// camera frame in a single-slot buffer, dispatches frames and audio
// windows on independent cadences, and queues fused cue events for the
// state engine to drain.
package sensing
