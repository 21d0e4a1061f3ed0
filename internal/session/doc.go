// Package session records what happened during a washing session and
// writes the artifacts: a JSON event log and a human-readable assessment
// report.
package session
