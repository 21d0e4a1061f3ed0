package guidance

import (
	"time"

	"github.com/washsense/washsense/internal/fsm"
)

// Warning is a message spoken after lingering in a state for Delay.
type Warning struct {
	Delay   time.Duration
	Message string
}

// TransitionMessages maps every catalogued transition to its announcement.
var TransitionMessages = map[fsm.Transition]string{
	// Forward transitions
	{From: fsm.Idle, To: fsm.WaterNoHands}:   "Water detected. Please put your hands under the water.",
	{From: fsm.Idle, To: fsm.HandsNoWater}:   "Hands detected. Please turn on the faucet.",
	{From: fsm.Idle, To: fsm.Washing}:        "Good, now washing your hands.",
	{From: fsm.WaterNoHands, To: fsm.Washing}: "Hands detected, now washing.",
	{From: fsm.HandsNoWater, To: fsm.Washing}: "Water detected, now washing.",
	{From: fsm.Washing, To: fsm.Soaping}:      "Applying hand soap, great!",
	{From: fsm.Soaping, To: fsm.Rinsing}:      "Rinsing the soap off now.",

	// Rinsing quality upgrades
	{From: fsm.Rinsing, To: fsm.RinsingOK}:         "Good rinsing! Keep going for a thorough rinse.",
	{From: fsm.RinsingOK, To: fsm.RinsingThorough}: "Excellent! Thorough rinsing achieved.",

	// Re-soap from any rinsing level
	{From: fsm.Rinsing, To: fsm.Soaping}:         "Re-applying soap for another round.",
	{From: fsm.RinsingOK, To: fsm.Soaping}:       "Re-applying soap for another round.",
	{From: fsm.RinsingThorough, To: fsm.Soaping}: "Re-applying soap for another round.",

	// Drying from rinsing levels
	{From: fsm.Rinsing, To: fsm.TowelDrying}:          "Drying hands with a towel, good choice.",
	{From: fsm.Rinsing, To: fsm.ClothesDrying}:        "Drying hands on clothes. A towel would be better.",
	{From: fsm.Rinsing, To: fsm.BlowerDrying}:         "Using the hand dryer.",
	{From: fsm.RinsingOK, To: fsm.TowelDrying}:        "Drying hands with a towel, good choice.",
	{From: fsm.RinsingOK, To: fsm.ClothesDrying}:      "Drying hands on clothes. A towel would be better.",
	{From: fsm.RinsingOK, To: fsm.BlowerDrying}:       "Using the hand dryer.",
	{From: fsm.RinsingThorough, To: fsm.TowelDrying}:  "Drying hands with a towel, good choice.",
	{From: fsm.RinsingThorough, To: fsm.ClothesDrying}: "Drying hands on clothes. A towel would be better.",
	{From: fsm.RinsingThorough, To: fsm.BlowerDrying}:  "Using the hand dryer.",

	// Skipped soap, washing straight to drying
	{From: fsm.Washing, To: fsm.TowelDrying}:   "Drying without soap. Try using soap next time.",
	{From: fsm.Washing, To: fsm.ClothesDrying}: "Drying on clothes without soap. Try soap and a towel next time.",
	{From: fsm.Washing, To: fsm.BlowerDrying}:  "Drying without soap. Try using soap next time.",

	// Skipped rinse, soaping straight to drying
	{From: fsm.Soaping, To: fsm.TowelDrying}:   "Drying without rinsing. Make sure to rinse off the soap next time.",
	{From: fsm.Soaping, To: fsm.ClothesDrying}: "Drying on clothes without rinsing. Rinse and use a towel next time.",
	{From: fsm.Soaping, To: fsm.BlowerDrying}:  "Drying without rinsing. Make sure to rinse off the soap next time.",

	// Drying to done
	{From: fsm.TowelDrying, To: fsm.Done}:   "All done! Great job washing your hands.",
	{From: fsm.ClothesDrying, To: fsm.Done}: "All done! Next time try using a towel.",
	{From: fsm.BlowerDrying, To: fsm.Done}:  "All done! Great job.",

	// Idle timeout regressions
	{From: fsm.WaterNoHands, To: fsm.Idle}:    "Activity stopped. Please continue.",
	{From: fsm.HandsNoWater, To: fsm.Idle}:    "Activity stopped. Please continue.",
	{From: fsm.Washing, To: fsm.Idle}:         "You seem to have stopped. Please continue washing.",
	{From: fsm.Soaping, To: fsm.Idle}:         "You seem to have stopped. Please continue.",
	{From: fsm.Rinsing, To: fsm.Idle}:         "You seem to have stopped. Please continue rinsing.",
	{From: fsm.RinsingOK, To: fsm.Idle}:       "You seem to have stopped. Please continue rinsing.",
	{From: fsm.RinsingThorough, To: fsm.Idle}: "You seem to have stopped rinsing.",
	{From: fsm.TowelDrying, To: fsm.Idle}:     "You seem to have stopped drying.",
	{From: fsm.ClothesDrying, To: fsm.Idle}:   "You seem to have stopped drying.",
	{From: fsm.BlowerDrying, To: fsm.Idle}:    "You seem to have stopped drying.",
}

// StateWarnings lists dwell warnings per state, ordered by delay.
var StateWarnings = map[fsm.State][]Warning{
	fsm.Idle: {
		{Delay: 20 * time.Second, Message: "Please turn on the faucet and start washing your hands."},
	},
	fsm.WaterNoHands: {
		{Delay: 10 * time.Second, Message: "Please put your hands under the water."},
		{Delay: 20 * time.Second, Message: "Please save water. Put your hands under or turn off the faucet."},
	},
	fsm.HandsNoWater: {
		{Delay: 10 * time.Second, Message: "Please turn on the faucet."},
	},
	fsm.Washing: {
		{Delay: 20 * time.Second, Message: "Please save water. Apply soap or turn off the faucet."},
	},
	fsm.Soaping: {
		{Delay: 10 * time.Second, Message: "Remember to lather all surfaces of your hands for at least 20 seconds."},
		{Delay: 25 * time.Second, Message: "Great lathering! You can rinse your hands now."},
	},
	fsm.Rinsing: {
		{Delay: 15 * time.Second, Message: "Make sure to rinse off all the soap."},
	},
	fsm.RinsingOK: {
		{Delay: 8 * time.Second, Message: "Good rinsing! Keep going a bit longer for a thorough rinse."},
	},
	fsm.RinsingThorough: {
		{Delay: 8 * time.Second, Message: "Excellent rinse! You can dry your hands now."},
	},
	fsm.TowelDrying: {
		{Delay: 8 * time.Second, Message: "Make sure your hands are fully dry."},
	},
	fsm.ClothesDrying: {
		{Delay: 8 * time.Second, Message: "Try using a clean towel next time for better hygiene."},
	},
	fsm.BlowerDrying: {
		{Delay: 8 * time.Second, Message: "Keep your hands under the dryer until fully dry."},
	},
}

// LODGuidance holds per-state instructions at three levels of detail,
// from terse to step-by-step. The engine raises the level each time a
// session stalls back to idle.
var LODGuidance = map[fsm.State][3]string{
	fsm.Idle: {
		"Please start washing your hands.",
		"Turn on the faucet and place your hands under the water to begin.",
		"Step 1: Turn on the faucet. Step 2: Place both hands under the running water.",
	},
	fsm.WaterNoHands: {
		"Put your hands under the water.",
		"Place both hands under the running water to start washing.",
		"Move your hands directly under the faucet stream. The water is running but your hands are not detected.",
	},
	fsm.HandsNoWater: {
		"Turn on the faucet.",
		"Turn on the faucet to start washing your hands.",
		"Reach for the faucet handle and turn it on. Then place your hands under the water stream.",
	},
	fsm.Washing: {
		"Apply soap when ready.",
		"Good, your hands are under water. Now apply soap to both hands.",
		"Reach for the soap dispenser and press it to get soap on your hands. Rub all surfaces.",
	},
	fsm.Soaping: {
		"Lather all hand surfaces.",
		"Rub the soap over all surfaces: palms, backs, between fingers, and under nails.",
		"Make sure to scrub: palms together, back of each hand, interlace fingers, thumbs, and fingertips on palms. Aim for 20 seconds.",
	},
	fsm.Rinsing: {
		"Rinse off the soap.",
		"Hold your hands under running water and rinse off all the soap.",
		"Place both hands under the water stream and rub them together to remove all soap residue. Continue for at least 10 seconds.",
	},
	fsm.RinsingOK: {
		"Good rinsing! Keep going or dry your hands.",
		"You have rinsed for a good amount of time. A bit more for a thorough rinse, or you can dry.",
		"You have been rinsing for about 5 seconds. Continue for 5 more seconds for a thorough rinse, or proceed to dry your hands.",
	},
	fsm.RinsingThorough: {
		"Excellent rinse! Dry your hands now.",
		"Thorough rinse achieved. Use a towel or dryer to dry your hands.",
		"Great job rinsing thoroughly! Now reach for a paper towel or use the hand dryer to dry your hands completely.",
	},
	fsm.TowelDrying: {
		"Dry your hands thoroughly.",
		"Use the towel to dry all surfaces of your hands completely.",
		"Pat both sides of your hands, between your fingers, and your wrists with the towel until completely dry.",
	},
	fsm.ClothesDrying: {
		"Drying on clothes. Use a towel next time.",
		"You are wiping your hands on your clothes. A clean towel is more hygienic.",
		"Using clothes to dry is less hygienic. Next time, reach for a paper towel or use the hand dryer instead.",
	},
	fsm.BlowerDrying: {
		"Keep hands under the dryer.",
		"Hold your hands under the dryer and rub them together until dry.",
		"Position both hands under the air stream and rub them together. Make sure all surfaces are dry before finishing.",
	},
	fsm.Done: {
		"All done! Great job.",
		"Hand washing complete. Great job!",
		"Hand washing complete. You did a great job following all the steps!",
	},
}

// ForTransition returns the catalogued announcement for a transition.
func ForTransition(tr fsm.Transition) (string, bool) {
	msg, ok := TransitionMessages[tr]
	return msg, ok
}

// ForState returns the instruction for a state at the given detail level.
// Levels beyond the most detailed clamp to it.
func ForState(state fsm.State, detailLevel int) (string, bool) {
	levels, ok := LODGuidance[state]
	if !ok {
		return "", false
	}
	if detailLevel < 0 {
		detailLevel = 0
	}
	if detailLevel >= len(levels) {
		detailLevel = len(levels) - 1
	}
	return levels[detailLevel], true
}
