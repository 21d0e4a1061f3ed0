// Package server implements the HTTP API for monitoring a washing session.
// It exposes the current state, transition history, final score, service
// configuration and Prometheus metrics.
package server
