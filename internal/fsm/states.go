package fsm

import (
	"time"

	"github.com/washsense/washsense/internal/cue"
)

// State identifies one node of the assessment state machine.
type State string

const (
	Idle            State = "IDLE"
	WaterNoHands    State = "WATER_NO_HANDS"
	HandsNoWater    State = "HANDS_NO_WATER"
	Washing         State = "WASHING"
	Soaping         State = "SOAPING"
	Rinsing         State = "RINSING"
	RinsingOK       State = "RINSING_OK"
	RinsingThorough State = "RINSING_THOROUGH"
	TowelDrying     State = "TOWEL_DRYING"
	ClothesDrying   State = "CLOTHES_DRYING"
	BlowerDrying    State = "BLOWER_DRYING"
	Done            State = "DONE"
)

// Order lists every state top to bottom as the flow progresses.
var Order = []State{
	Idle,
	WaterNoHands, HandsNoWater,
	Washing,
	Soaping,
	Rinsing, RinsingOK, RinsingThorough,
	TowelDrying, ClothesDrying, BlowerDrying,
	Done,
}

// Timing constants for the transition catalogue.
const (
	// sustainWindow is how long an entry condition must hold continuously.
	sustainWindow = 1300 * time.Millisecond
	// rinseTier is the extra rinsing time required per quality tier.
	rinseTier = 5 * time.Second
	// dryingSettle is the minimum time in a drying state before the
	// stop-signal can complete the session.
	dryingSettle = 1300 * time.Millisecond
)

// Op selects the direction of a cue threshold comparison.
type Op int

const (
	// Above is satisfied when the cue value is strictly greater than the
	// threshold.
	Above Op = iota
	// Below is satisfied when the cue value is strictly less than the
	// threshold. Absent keys read as 0 and therefore satisfy Below.
	Below
)

// CueTest compares a single cue value against a threshold.
type CueTest struct {
	Key       string
	Op        Op
	Threshold float64
}

func (t CueTest) holds(cues cue.Map) bool {
	v := cues.Get(t.Key)
	if t.Op == Above {
		return v > t.Threshold
	}
	return v < t.Threshold
}

// Rule is one declarative transition record. All tests in All must hold,
// and at least one test in Any when Any is non-empty. With Sustain set the
// combined condition must hold continuously for that long, tracked under
// Timer in the engine's sustained-condition arena. With MinTime set the
// rule only fires once the engine has spent that long in the source state.
type Rule struct {
	Target  State
	Desc    string
	All     []CueTest
	Any     []CueTest
	Sustain time.Duration
	Timer   string
	MinTime time.Duration
}

// Def describes one state: its transition rules in priority order and the
// cues whose presence counts as user activity while in the state.
type Def struct {
	Name        State
	Description string
	Rules       []Rule
	// ActivityCues drive the idle-timeout regression: while every listed
	// cue stays at or below the activity threshold the inactivity clock
	// runs. Empty means the state is exempt (IDLE, DONE).
	ActivityCues []string
}

// washingEntry is the shared hands-under-running-water entry rule.
func washingEntry(timer string) Rule {
	return Rule{
		Target: Washing,
		Desc:   "Hands under water + water sound sustained",
		All: []CueTest{
			{Key: cue.HandsUnderWater, Op: Above, Threshold: 0.5},
			{Key: cue.WaterSound, Op: Above, Threshold: 0.5},
		},
		Sustain: sustainWindow,
		Timer:   timer,
	}
}

// dryingRules returns the shared drying triggers, used from WASHING
// (skip-soap path), SOAPING (skip-rinse path) and every rinsing tier.
// Blower detection is immediate: the sound threshold is deliberately low
// since blower noise is rarely ambiguous, while the visible threshold must
// exceed the neutral 0.5 that degraded inference output reports for every
// visual key.
func dryingRules() []Rule {
	return []Rule{
		{
			Target:  TowelDrying,
			Desc:    "Towel drying sustained",
			All:     []CueTest{{Key: cue.TowelDrying, Op: Above, Threshold: 0.5}},
			Sustain: sustainWindow,
			Timer:   "towel_entry",
		},
		{
			Target:  ClothesDrying,
			Desc:    "Clothes drying sustained",
			All:     []CueTest{{Key: cue.HandsTouchClothes, Op: Above, Threshold: 0.5}},
			Sustain: sustainWindow,
			Timer:   "clothes_entry",
		},
		{
			Target: BlowerDrying,
			Desc:   "Blower heard or seen",
			Any: []CueTest{
				{Key: cue.BlowerSound, Op: Above, Threshold: 0.3},
				{Key: cue.BlowerVisible, Op: Above, Threshold: 0.5},
			},
		},
	}
}

// resoapRule returns the immediate re-soap rule shared by the rinsing tiers.
func resoapRule() Rule {
	return Rule{
		Target: Soaping,
		Desc:   "Soap touched again",
		All:    []CueTest{{Key: cue.HandsOnSoap, Op: Above, Threshold: 0.5}},
	}
}

// rinseActivity is shared by all rinsing tiers.
var rinseActivity = []string{cue.HandsUnderWater, cue.WaterSound, cue.HandsVisible}

// States is the canonical 12-state transition catalogue. Rule order within
// a state encodes priority: advance transitions come before same-family
// quality upgrades.
var States = map[State]Def{
	Idle: {
		Name:        Idle,
		Description: "Waiting for hand washing to begin",
		Rules: []Rule{
			washingEntry("hands_and_water"),
			{
				Target: WaterNoHands,
				Desc:   "Water running, no hands",
				All: []CueTest{
					{Key: cue.WaterSound, Op: Above, Threshold: 0.5},
					{Key: cue.HandsVisible, Op: Below, Threshold: 0.4},
				},
				Sustain: sustainWindow,
				Timer:   "water_no_hands",
			},
			{
				Target: HandsNoWater,
				Desc:   "Hands visible, no water",
				All: []CueTest{
					{Key: cue.HandsVisible, Op: Above, Threshold: 0.5},
					{Key: cue.WaterSound, Op: Below, Threshold: 0.4},
				},
				Sustain: sustainWindow,
				Timer:   "hands_no_water",
			},
		},
	},
	WaterNoHands: {
		Name:         WaterNoHands,
		Description:  "Water running but no hands detected",
		Rules:        []Rule{washingEntry("hands_and_water")},
		ActivityCues: []string{cue.WaterSound},
	},
	HandsNoWater: {
		Name:         HandsNoWater,
		Description:  "Hands visible but no water detected",
		Rules:        []Rule{washingEntry("hands_and_water")},
		ActivityCues: []string{cue.HandsVisible},
	},
	Washing: {
		Name:        Washing,
		Description: "Washing hands under running water",
		Rules: append([]Rule{
			{
				Target: Soaping,
				Desc:   "Soap touched",
				All:    []CueTest{{Key: cue.HandsOnSoap, Op: Above, Threshold: 0.5}},
			},
		}, dryingRules()...),
		ActivityCues: []string{cue.HandsVisible, cue.WaterSound, cue.HandsUnderWater},
	},
	Soaping: {
		Name:        Soaping,
		Description: "Applying hand soap",
		Rules: append([]Rule{
			{
				Target: Rinsing,
				Desc:   "Back under running water",
				All: []CueTest{
					{Key: cue.HandsUnderWater, Op: Above, Threshold: 0.5},
					{Key: cue.WaterSound, Op: Above, Threshold: 0.5},
				},
				Sustain: sustainWindow,
				Timer:   "rinsing_entry",
			},
		}, dryingRules()...),
		ActivityCues: []string{cue.HandsVisible, cue.HandsOnSoap, cue.FoamVisible},
	},
	Rinsing: {
		Name:        Rinsing,
		Description: "Rinsing hand soap off under water",
		Rules: append(append([]Rule{resoapRule()}, dryingRules()...),
			Rule{
				Target:  RinsingOK,
				Desc:    "Rinsed long enough",
				MinTime: rinseTier,
				All: []CueTest{
					{Key: cue.HandsUnderWater, Op: Above, Threshold: 0.5},
					{Key: cue.WaterSound, Op: Above, Threshold: 0.5},
				},
			}),
		ActivityCues: rinseActivity,
	},
	RinsingOK: {
		Name:        RinsingOK,
		Description: "Rinsing reached a good duration",
		Rules: append(append([]Rule{resoapRule()}, dryingRules()...),
			Rule{
				Target:  RinsingThorough,
				Desc:    "Rinsed thoroughly",
				MinTime: rinseTier,
				All: []CueTest{
					{Key: cue.HandsUnderWater, Op: Above, Threshold: 0.5},
					{Key: cue.WaterSound, Op: Above, Threshold: 0.5},
				},
			}),
		ActivityCues: rinseActivity,
	},
	RinsingThorough: {
		Name:         RinsingThorough,
		Description:  "Rinsing reached a thorough duration",
		Rules:        append([]Rule{resoapRule()}, dryingRules()...),
		ActivityCues: rinseActivity,
	},
	TowelDrying: {
		Name:        TowelDrying,
		Description: "Drying hands with a towel",
		Rules: []Rule{
			{
				Target:  Done,
				Desc:    "Towel drying finished",
				MinTime: dryingSettle,
				All:     []CueTest{{Key: cue.TowelDrying, Op: Below, Threshold: 0.3}},
			},
		},
		ActivityCues: []string{cue.TowelDrying, cue.HandsVisible},
	},
	ClothesDrying: {
		Name:        ClothesDrying,
		Description: "Drying hands on clothes",
		Rules: []Rule{
			{
				Target:  Done,
				Desc:    "Clothes drying finished",
				MinTime: dryingSettle,
				All:     []CueTest{{Key: cue.HandsTouchClothes, Op: Below, Threshold: 0.3}},
			},
		},
		ActivityCues: []string{cue.HandsTouchClothes, cue.HandsVisible},
	},
	BlowerDrying: {
		Name:        BlowerDrying,
		Description: "Drying hands with a blower",
		Rules: []Rule{
			{
				Target:  Done,
				Desc:    "Blower drying finished",
				MinTime: dryingSettle,
				All: []CueTest{
					{Key: cue.BlowerSound, Op: Below, Threshold: 0.2},
					{Key: cue.BlowerVisible, Op: Below, Threshold: 0.2},
				},
			},
		},
		ActivityCues: []string{cue.BlowerVisible, cue.BlowerSound},
	},
	Done: {
		Name:        Done,
		Description: "Hand washing complete",
	},
}
