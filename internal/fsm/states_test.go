package fsm

import (
	"testing"

	"github.com/washsense/washsense/internal/cue"
)

func TestCatalogueCoversAllStates(t *testing.T) {
	if len(Order) != 12 {
		t.Fatalf("Expected 12 states, got %d", len(Order))
	}
	for _, state := range Order {
		if _, ok := States[state]; !ok {
			t.Errorf("State %s missing from catalogue", state)
		}
	}
	if len(States) != len(Order) {
		t.Errorf("Catalogue has %d states, Order has %d", len(States), len(Order))
	}
}

func TestAllTargetsValid(t *testing.T) {
	for state, def := range States {
		for _, rule := range def.Rules {
			if _, ok := States[rule.Target]; !ok {
				t.Errorf("%s has rule targeting unknown state %s", state, rule.Target)
			}
			if rule.Target == state {
				t.Errorf("%s has a self-targeting rule", state)
			}
		}
	}
}

func TestDoneIsTerminal(t *testing.T) {
	def := States[Done]
	if len(def.Rules) != 0 {
		t.Errorf("DONE must have no outgoing rules, got %d", len(def.Rules))
	}
	if len(def.ActivityCues) != 0 {
		t.Error("DONE must be exempt from the activity check")
	}
}

func TestSustainedRulesHaveTimers(t *testing.T) {
	for state, def := range States {
		for _, rule := range def.Rules {
			if rule.Sustain > 0 && rule.Timer == "" {
				t.Errorf("%s -> %s: sustained rule without a timer name", state, rule.Target)
			}
			if rule.Sustain > 0 && rule.MinTime > 0 {
				t.Errorf("%s -> %s: rule mixes Sustain and MinTime", state, rule.Target)
			}
		}
	}
}

func TestRuleKeysAreKnownCues(t *testing.T) {
	known := make(map[string]bool)
	for _, k := range cue.VisualKeys {
		known[k] = true
	}
	for _, k := range cue.AudioKeys {
		known[k] = true
	}

	for state, def := range States {
		for _, rule := range def.Rules {
			for _, test := range append(append([]CueTest{}, rule.All...), rule.Any...) {
				if !known[test.Key] {
					t.Errorf("%s -> %s tests unknown cue %q", state, rule.Target, test.Key)
				}
			}
		}
		for _, key := range def.ActivityCues {
			if !known[key] {
				t.Errorf("%s lists unknown activity cue %q", state, key)
			}
		}
	}
}

func TestNeutralValuesFailEveryTest(t *testing.T) {
	// 0.5 (fallback) and 0.0 (initial) must fail every threshold in the
	// catalogue, so degraded sensing can never drive a transition.
	fallback := cue.Fallback()
	for state, def := range States {
		for _, rule := range def.Rules {
			for _, test := range rule.All {
				if test.Op == Above && test.holds(fallback) {
					t.Errorf("%s -> %s: fallback 0.5 passes Above(%s, %v)",
						state, rule.Target, test.Key, test.Threshold)
				}
			}
			for _, test := range rule.Any {
				if test.Op == Above && test.holds(fallback) {
					t.Errorf("%s -> %s: fallback 0.5 passes Above(%s, %v)",
						state, rule.Target, test.Key, test.Threshold)
				}
			}
		}
	}
}

func TestScoreTableSumsToMax(t *testing.T) {
	sum := 0
	for _, pts := range scorePoints {
		sum += pts
	}
	if sum != 100 {
		t.Errorf("Score table sums to %d, want 100", sum)
	}
}
