// Package audio classifies ambient sound around the sink. It detects the
// two sounds that matter for washing assessment, running water and a hand
// blower, from raw PCM windows using energy and zero-crossing features.
package audio
