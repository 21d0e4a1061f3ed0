// Package cue defines the confidence-map value type shared by all sensing
// stages, the visual and audio cue key sets, and the fusion of both sources
// into a single map for the state engine.
package cue
