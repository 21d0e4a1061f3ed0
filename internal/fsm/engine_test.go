package fsm

import (
	"testing"
	"time"

	"github.com/washsense/washsense/internal/cue"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e, err := NewEngine(5*time.Second, 5)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	e.now = clock.Now
	e.resetLocked()
	return e, clock
}

// feed drives repeated updates with the same cues, advancing the clock by
// step between calls, and returns the first transition that fires.
func feed(e *Engine, clock *fakeClock, cues cue.Map, step time.Duration, calls int) *Transition {
	for i := 0; i < calls; i++ {
		if tr := e.Update(cues); tr != nil {
			return tr
		}
		clock.advance(step)
	}
	return nil
}

// driveTo walks the engine along a path of washing steps using cue feeding.
func driveTo(t *testing.T, e *Engine, clock *fakeClock, path []State) {
	t.Helper()

	stimuli := map[State]cue.Map{
		Washing:         {cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7},
		Soaping:         {cue.HandsOnSoap: 0.7},
		Rinsing:         {cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7},
		RinsingOK:       {cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7},
		RinsingThorough: {cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7},
		TowelDrying:     {cue.TowelDrying: 0.8},
		ClothesDrying:   {cue.HandsTouchClothes: 0.8},
		BlowerDrying:    {cue.BlowerSound: 0.6},
		Done:            {},
	}

	for _, target := range path {
		tr := feed(e, clock, stimuli[target], 500*time.Millisecond, 40)
		if tr == nil || tr.To != target {
			t.Fatalf("Failed to reach %s (at %s, got %+v)", target, e.CurrentState(), tr)
		}
	}
}

func TestInitialState(t *testing.T) {
	e, _ := newTestEngine(t)

	if e.CurrentState() != Idle {
		t.Errorf("Expected initial state IDLE, got %s", e.CurrentState())
	}
	if len(e.History()) != 1 {
		t.Errorf("Expected 1 history entry, got %d", len(e.History()))
	}
	if e.History()[0].ExitTime != nil {
		t.Error("Expected the initial history entry to be open")
	}
}

func TestNeutralCuesNeverLeaveIdle(t *testing.T) {
	for _, cues := range []cue.Map{cue.Fallback(), cue.ZeroVisual(), cue.Merge(cue.ZeroVisual(), cue.ZeroAudio())} {
		e, clock := newTestEngine(t)
		if tr := feed(e, clock, cues, 400*time.Millisecond, 50); tr != nil {
			t.Errorf("Neutral cues fired %s -> %s", tr.From, tr.To)
		}
		if e.CurrentState() != Idle {
			t.Errorf("Expected IDLE, got %s", e.CurrentState())
		}
	}
}

func TestIdleToWashingSustained(t *testing.T) {
	e, clock := newTestEngine(t)
	cues := cue.Map{cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7}

	// The condition must hold for 1.3s before the transition fires.
	e.Update(cues)
	clock.advance(time.Second)
	if tr := e.Update(cues); tr != nil {
		t.Fatalf("Fired after only 1s sustained: %+v", tr)
	}
	clock.advance(400 * time.Millisecond)

	tr := e.Update(cues)
	if tr == nil || tr.From != Idle || tr.To != Washing {
		t.Fatalf("Expected IDLE -> WASHING, got %+v", tr)
	}

	// Exactly one transition: the next update starts from a fresh WASHING.
	if tr := e.Update(cues); tr != nil {
		t.Errorf("Unexpected second transition %+v", tr)
	}
}

func TestSustainedResetsOnFlicker(t *testing.T) {
	e, clock := newTestEngine(t)
	on := cue.Map{cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7}
	off := cue.Map{cue.HandsUnderWater: 0.1, cue.WaterSound: 0.7}

	e.Update(on)
	clock.advance(time.Second)
	e.Update(off) // condition drops, timer must restart
	clock.advance(100 * time.Millisecond)
	e.Update(on)
	clock.advance(time.Second)

	if tr := e.Update(on); tr != nil {
		t.Fatalf("Sustained timer survived a false sample: %+v", tr)
	}
	clock.advance(400 * time.Millisecond)
	if tr := e.Update(on); tr == nil || tr.To != Washing {
		t.Fatalf("Expected WASHING after a fresh 1.3s hold, got %+v", tr)
	}
}

func TestIdleBranchStates(t *testing.T) {
	tests := []struct {
		name string
		cues cue.Map
		want State
	}{
		{
			name: "water without hands",
			cues: cue.Map{cue.WaterSound: 0.7, cue.HandsVisible: 0.1},
			want: WaterNoHands,
		},
		{
			name: "hands without water",
			cues: cue.Map{cue.HandsVisible: 0.8, cue.WaterSound: 0.1},
			want: HandsNoWater,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, clock := newTestEngine(t)
			tr := feed(e, clock, tt.cues, 500*time.Millisecond, 10)
			if tr == nil || tr.To != tt.want {
				t.Fatalf("Expected IDLE -> %s, got %+v", tt.want, tr)
			}

			// Both branch states converge on WASHING.
			both := cue.Map{cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7}
			tr = feed(e, clock, both, 500*time.Millisecond, 10)
			if tr == nil || tr.From != tt.want || tr.To != Washing {
				t.Fatalf("Expected %s -> WASHING, got %+v", tt.want, tr)
			}
		})
	}
}

func TestWashingToSoapingImmediate(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing})

	tr := e.Update(cue.Map{cue.HandsOnSoap: 0.7})
	if tr == nil || tr.From != Washing || tr.To != Soaping {
		t.Fatalf("Expected immediate WASHING -> SOAPING, got %+v", tr)
	}
}

func TestBlowerTriggerImmediate(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing, Soaping, Rinsing})

	tr := e.Update(cue.Map{cue.BlowerVisible: 0.6})
	if tr == nil || tr.To != BlowerDrying {
		t.Fatalf("Expected immediate RINSING -> BLOWER_DRYING, got %+v", tr)
	}
}

func TestFallbackCuesHoldState(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing})

	// A provider timeout degrades to the neutral map; it must not move the
	// machine, in particular not into BLOWER_DRYING.
	if tr := feed(e, clock, cue.Fallback(), 400*time.Millisecond, 10); tr != nil {
		t.Fatalf("Fallback cues fired %s -> %s", tr.From, tr.To)
	}
	if e.CurrentState() != Washing {
		t.Errorf("Expected WASHING, got %s", e.CurrentState())
	}
}

func TestRinsingQualityTiers(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing, Soaping, Rinsing})

	rinse := cue.Map{cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7}

	tr := feed(e, clock, rinse, 500*time.Millisecond, 20)
	if tr == nil || tr.From != Rinsing || tr.To != RinsingOK {
		t.Fatalf("Expected RINSING -> RINSING_OK after 5s, got %+v", tr)
	}

	tr = feed(e, clock, rinse, 500*time.Millisecond, 20)
	if tr == nil || tr.From != RinsingOK || tr.To != RinsingThorough {
		t.Fatalf("Expected RINSING_OK -> RINSING_THOROUGH after 5s more, got %+v", tr)
	}
}

func TestResoapFromRinsingTiers(t *testing.T) {
	for _, tier := range []State{Rinsing, RinsingOK, RinsingThorough} {
		e, clock := newTestEngine(t)
		path := []State{Washing, Soaping, Rinsing}
		switch tier {
		case RinsingOK:
			path = append(path, RinsingOK)
		case RinsingThorough:
			path = append(path, RinsingOK, RinsingThorough)
		}
		driveTo(t, e, clock, path)

		tr := e.Update(cue.Map{cue.HandsOnSoap: 0.7})
		if tr == nil || tr.From != tier || tr.To != Soaping {
			t.Fatalf("Expected %s -> SOAPING on re-soap, got %+v", tier, tr)
		}
	}
}

func TestSkipSoapDryingPath(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing})

	tr := feed(e, clock, cue.Map{cue.TowelDrying: 0.8}, 500*time.Millisecond, 10)
	if tr == nil || tr.From != Washing || tr.To != TowelDrying {
		t.Fatalf("Expected WASHING -> TOWEL_DRYING, got %+v", tr)
	}
}

func TestDryingToDone(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing, Soaping, Rinsing, TowelDrying})

	// The stop signal alone is not enough before the settle time.
	tr := e.Update(cue.Map{cue.TowelDrying: 0.1, cue.HandsVisible: 0.6})
	if tr != nil {
		t.Fatalf("DONE fired before the settle time: %+v", tr)
	}
	clock.advance(2 * time.Second)
	tr = e.Update(cue.Map{cue.TowelDrying: 0.1, cue.HandsVisible: 0.6})
	if tr == nil || tr.To != Done {
		t.Fatalf("Expected TOWEL_DRYING -> DONE, got %+v", tr)
	}
}

func TestIdleTimeoutRegression(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing})

	// No activity cue above threshold for the idle timeout.
	idle := cue.Map{cue.HandsVisible: 0.1, cue.WaterSound: 0.1}
	e.Update(idle)
	clock.advance(5 * time.Second)

	tr := e.Update(idle)
	if tr == nil || tr.From != Washing || tr.To != Idle {
		t.Fatalf("Expected WASHING -> IDLE on inactivity, got %+v", tr)
	}
	if e.DetailLevel() != 1 {
		t.Errorf("Expected detail level 1 after one regression, got %d", e.DetailLevel())
	}
}

func TestActivityResetsIdleClock(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing})

	active := cue.Map{cue.HandsVisible: 0.6}
	for i := 0; i < 10; i++ {
		clock.advance(3 * time.Second)
		if tr := e.Update(active); tr != nil {
			t.Fatalf("Unexpected transition while active: %+v", tr)
		}
	}
	if e.CurrentState() != Washing {
		t.Errorf("Expected to stay in WASHING, got %s", e.CurrentState())
	}
}

func TestDoneNeverTimesOut(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing, Soaping, Rinsing, TowelDrying, Done})

	clock.advance(10 * time.Minute)
	if tr := e.Update(cue.Map{}); tr != nil {
		t.Fatalf("DONE produced a transition: %+v", tr)
	}
	if e.CurrentState() != Done {
		t.Errorf("Expected DONE, got %s", e.CurrentState())
	}
}

func TestDetailLevelCapped(t *testing.T) {
	e, clock := newTestEngine(t)

	for i := 0; i < 4; i++ {
		driveTo(t, e, clock, []State{Washing})
		idle := cue.Map{}
		e.Update(idle)
		clock.advance(6 * time.Second)
		if tr := e.Update(idle); tr == nil || tr.To != Idle {
			t.Fatalf("Expected idle regression on round %d", i)
		}
	}

	if e.DetailLevel() != maxDetailLevel {
		t.Errorf("Expected detail level capped at %d, got %d", maxDetailLevel, e.DetailLevel())
	}
}

func TestScoreOnTowelPath(t *testing.T) {
	e, clock := newTestEngine(t)

	if e.GetScore() != nil {
		t.Fatal("Score must be undefined before DONE")
	}

	driveTo(t, e, clock, []State{Washing, Soaping, Rinsing, TowelDrying, Done})

	score := e.GetScore()
	if score == nil {
		t.Fatal("Expected a score in DONE")
	}
	if score.Total != 73 {
		t.Errorf("Expected total 73 (15+25+8+15+10), got %d", score.Total)
	}
	if score.MaxTotal != 100 {
		t.Errorf("Expected max_total 100, got %d", score.MaxTotal)
	}

	for _, state := range []State{Washing, Soaping, Rinsing, TowelDrying, Done} {
		d := score.Details[state]
		if !d.Completed || d.Points != d.MaxPoints {
			t.Errorf("Expected %s completed with full points, got %+v", state, d)
		}
	}
	for _, state := range []State{RinsingOK, RinsingThorough, ClothesDrying, BlowerDrying} {
		d := score.Details[state]
		if d.Completed || d.Points != 0 {
			t.Errorf("Expected %s not completed, got %+v", state, d)
		}
	}
}

func TestScoreCountsDistinctStatesOnly(t *testing.T) {
	e, clock := newTestEngine(t)

	// Soap twice via the re-soap loop; SOAPING must still score 25 once.
	driveTo(t, e, clock, []State{Washing, Soaping, Rinsing, Soaping, Rinsing, TowelDrying, Done})

	score := e.GetScore()
	if score == nil {
		t.Fatal("Expected a score in DONE")
	}
	if score.Total != 73 {
		t.Errorf("Expected total 73 despite repeat visits, got %d", score.Total)
	}
}

func TestHistoryInvariant(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing, Soaping, Rinsing})

	history := e.History()
	open := 0
	for i, entry := range history {
		if entry.ExitTime == nil {
			open++
			if i != len(history)-1 {
				t.Errorf("Open entry at index %d is not last", i)
			}
		}
	}
	if open != 1 {
		t.Errorf("Expected exactly one open entry, got %d", open)
	}
	if history[len(history)-1].State != Rinsing {
		t.Errorf("Expected open entry to be RINSING, got %s", history[len(history)-1].State)
	}
}

func TestReset(t *testing.T) {
	e, clock := newTestEngine(t)
	driveTo(t, e, clock, []State{Washing, Soaping})

	e.Reset()

	if e.CurrentState() != Idle {
		t.Errorf("Expected IDLE after reset, got %s", e.CurrentState())
	}
	if len(e.History()) != 1 {
		t.Errorf("Expected history length 1 after reset, got %d", len(e.History()))
	}
	if e.DetailLevel() != 0 {
		t.Errorf("Expected detail level 0 after reset, got %d", e.DetailLevel())
	}
	if len(e.condSince) != 0 {
		t.Errorf("Expected no sustained timers after reset, got %d", len(e.condSince))
	}

	// Sustained timers count from zero again: 1.3s must elapse anew.
	cues := cue.Map{cue.HandsUnderWater: 0.8, cue.WaterSound: 0.7}
	e.Update(cues)
	clock.advance(time.Second)
	if tr := e.Update(cues); tr != nil {
		t.Fatalf("Sustained timer survived reset: %+v", tr)
	}
}

func TestLatestCuesClearedOnTransition(t *testing.T) {
	e, clock := newTestEngine(t)

	e.Update(cue.Map{cue.HandsVisible: 0.9})
	if e.LatestCues() == nil {
		t.Fatal("Expected cues buffered after update")
	}

	driveTo(t, e, clock, []State{Washing})
	if e.LatestCues() != nil {
		t.Error("Expected cue buffer cleared on transition")
	}
}
