package guidance

import (
	"strings"
	"testing"
	"time"

	"github.com/washsense/washsense/internal/fsm"
)

func TestEveryTransitionTargetIsKnown(t *testing.T) {
	for tr := range TransitionMessages {
		if _, ok := fsm.States[tr.From]; !ok {
			t.Errorf("transition message from unknown state %s", tr.From)
		}
		if _, ok := fsm.States[tr.To]; !ok {
			t.Errorf("transition message to unknown state %s", tr.To)
		}
	}
}

func TestEveryRuleTransitionHasMessage(t *testing.T) {
	for from, def := range fsm.States {
		for _, rule := range def.Rules {
			tr := fsm.Transition{From: from, To: rule.Target}
			if _, ok := TransitionMessages[tr]; !ok {
				t.Errorf("no message for transition %s -> %s", from, rule.Target)
			}
		}
	}
}

func TestIdleRegressionsHaveMessages(t *testing.T) {
	for _, state := range fsm.Order {
		if state == fsm.Idle || state == fsm.Done {
			continue
		}
		if _, ok := TransitionMessages[fsm.Transition{From: state, To: fsm.Idle}]; !ok {
			t.Errorf("no idle regression message for %s", state)
		}
	}
}

func TestLODGuidanceCoversAllStates(t *testing.T) {
	for _, state := range fsm.Order {
		levels, ok := LODGuidance[state]
		if !ok {
			t.Errorf("no guidance for state %s", state)
			continue
		}
		for i, msg := range levels {
			if msg == "" {
				t.Errorf("state %s guidance level %d is empty", state, i)
			}
		}
		// Higher levels carry more detail.
		if len(levels[2]) <= len(levels[0]) {
			t.Errorf("state %s: level 2 guidance is not more detailed than level 0", state)
		}
	}
}

func TestForStateClampsDetailLevel(t *testing.T) {
	low, _ := ForState(fsm.Soaping, -3)
	base, _ := ForState(fsm.Soaping, 0)
	if low != base {
		t.Error("negative detail level should clamp to 0")
	}
	high, _ := ForState(fsm.Soaping, 99)
	top, _ := ForState(fsm.Soaping, 2)
	if high != top {
		t.Error("oversized detail level should clamp to the highest")
	}
	if _, ok := ForState(fsm.State("UNKNOWN"), 0); ok {
		t.Error("unknown state should return no guidance")
	}
}

func newTestSelector(cooldown time.Duration) (*Selector, *time.Time) {
	s := NewSelector(cooldown)
	base := time.Now()
	s.now = func() time.Time { return base }
	// Reset entry bookkeeping onto the fake clock.
	s.enteredAt = base
	s.lastSpoken = time.Time{}
	return s, &base
}

func TestSelectorTransitionMessage(t *testing.T) {
	s, _ := newTestSelector(0)
	msg, ok := s.OnTransition(fsm.Transition{From: fsm.Idle, To: fsm.Washing})
	if !ok || !strings.Contains(msg, "washing") {
		t.Errorf("OnTransition = (%q, %v), expected a washing announcement", msg, ok)
	}
	if _, ok := s.OnTransition(fsm.Transition{From: fsm.Done, To: fsm.Washing}); ok {
		t.Error("uncatalogued transition should return no message")
	}
}

func TestSelectorWarningsFireOncePerVisit(t *testing.T) {
	s, clock := newTestSelector(0)
	s.OnTransition(fsm.Transition{From: fsm.Idle, To: fsm.WaterNoHands})

	if msg, ok := s.Poll(); ok {
		t.Errorf("warning %q fired before its delay", msg)
	}

	*clock = clock.Add(11 * time.Second)
	msg, ok := s.Poll()
	if !ok || !strings.Contains(msg, "hands under the water") {
		t.Fatalf("Poll = (%q, %v), expected the 10s warning", msg, ok)
	}
	if msg, ok := s.Poll(); ok {
		t.Errorf("warning %q fired twice in one visit", msg)
	}

	// The second-tier warning fires later.
	*clock = clock.Add(10 * time.Second)
	msg, ok = s.Poll()
	if !ok || !strings.Contains(msg, "save water") {
		t.Errorf("Poll = (%q, %v), expected the 20s warning", msg, ok)
	}
}

func TestSelectorWarningsResetOnTransition(t *testing.T) {
	s, clock := newTestSelector(0)
	s.OnTransition(fsm.Transition{From: fsm.Idle, To: fsm.WaterNoHands})
	*clock = clock.Add(11 * time.Second)
	if _, ok := s.Poll(); !ok {
		t.Fatal("expected the dwell warning to fire")
	}

	// Leave and come back: the warning is armed again.
	s.OnTransition(fsm.Transition{From: fsm.WaterNoHands, To: fsm.Washing})
	s.OnTransition(fsm.Transition{From: fsm.Washing, To: fsm.Idle})
	s.OnTransition(fsm.Transition{From: fsm.Idle, To: fsm.WaterNoHands})
	*clock = clock.Add(11 * time.Second)
	if _, ok := s.Poll(); !ok {
		t.Error("expected the warning to fire again on a fresh visit")
	}
}

func TestSelectorCooldown(t *testing.T) {
	s, clock := newTestSelector(15 * time.Second)
	s.OnTransition(fsm.Transition{From: fsm.Idle, To: fsm.WaterNoHands})

	// The transition announcement counts as speech, so the 10s warning is
	// due but held back until the cooldown passes.
	*clock = clock.Add(11 * time.Second)
	if msg, ok := s.Poll(); ok {
		t.Errorf("warning %q fired inside the cooldown", msg)
	}
	*clock = clock.Add(5 * time.Second)
	if _, ok := s.Poll(); !ok {
		t.Error("warning should fire once the cooldown has passed")
	}
}

func TestSelectorGuidanceFollowsState(t *testing.T) {
	s, _ := newTestSelector(0)
	s.OnTransition(fsm.Transition{From: fsm.Idle, To: fsm.Washing})

	msg, ok := s.Guidance(0)
	if !ok || !strings.Contains(msg, "soap") {
		t.Errorf("Guidance = (%q, %v), expected the washing instruction", msg, ok)
	}
}
