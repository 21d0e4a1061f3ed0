package cue

// Visual cue keys returned by the VLM providers.
const (
	HandsVisible      = "hands_visible"
	HandsUnderWater   = "hands_under_water"
	HandsOnSoap       = "hands_on_soap"
	FoamVisible       = "foam_visible"
	TowelDrying       = "towel_drying"
	HandsTouchClothes = "hands_touch_clothes"
	BlowerVisible     = "blower_visible"
)

// Audio cue keys returned by the audio classifier.
const (
	WaterSound  = "water_sound"
	BlowerSound = "blower_sound"
)

// VisualKeys lists every cue key a VLM provider must report.
var VisualKeys = []string{
	HandsVisible,
	HandsUnderWater,
	HandsOnSoap,
	FoamVisible,
	TowelDrying,
	HandsTouchClothes,
	BlowerVisible,
}

// AudioKeys lists every cue key the audio classifier reports.
var AudioKeys = []string{
	WaterSound,
	BlowerSound,
}

// Map holds named confidence values in [0, 1]. Maps are value types: every
// stage that hands one across a goroutine boundary hands over its own copy.
type Map map[string]float64

// Kind tags the origin of a cue event.
type Kind string

const (
	KindVisual Kind = "visual"
	KindAudio  Kind = "audio"
)

// Event is one tagged cue delivery from the sensing side to the consumer.
type Event struct {
	Kind Kind
	Cues Map
}

// Get returns the confidence for key, or 0 when the key is absent.
func (m Map) Get(key string) float64 {
	return m[key]
}

// Clone returns an independent copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clamp bounds v to [0, 1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Fallback returns the neutral visual map (every key 0.5) substituted when
// inference output cannot be trusted. 0.5 fails every transition threshold,
// so fallback cues can never advance the state machine.
func Fallback() Map {
	m := make(Map, len(VisualKeys))
	for _, key := range VisualKeys {
		m[key] = 0.5
	}
	return m
}

// ZeroVisual returns the all-zero visual map used before any inference
// result has arrived.
func ZeroVisual() Map {
	m := make(Map, len(VisualKeys))
	for _, key := range VisualKeys {
		m[key] = 0.0
	}
	return m
}

// ZeroAudio returns the all-zero audio map used before any classification
// result has arrived.
func ZeroAudio() Map {
	m := make(Map, len(AudioKeys))
	for _, key := range AudioKeys {
		m[key] = 0.0
	}
	return m
}

// Merge combines visual and audio cues into one map. The key namespaces are
// disjoint, so this is a plain union with no weighting.
func Merge(visual, audio Map) Map {
	merged := make(Map, len(visual)+len(audio))
	for k, v := range visual {
		merged[k] = v
	}
	for k, v := range audio {
		merged[k] = v
	}
	return merged
}
