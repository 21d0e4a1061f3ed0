// Package emitter publishes session activity to an MQTT broker so
// external systems (dashboards, caregiver apps) can follow a washing
// session live. The emitter is optional; without a broker the rest of
// the service runs unchanged.
package emitter
