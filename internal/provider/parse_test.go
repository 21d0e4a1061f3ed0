package provider

import (
	"testing"

	"github.com/washsense/washsense/internal/cue"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{
			name:     "bare object",
			input:    `{"hands_visible":0.9}`,
			expected: `{"hands_visible":0.9}`,
			ok:       true,
		},
		{
			name:     "fenced with language tag",
			input:    "```json\n{\"hands_visible\":0.9}\n```",
			expected: `{"hands_visible":0.9}`,
			ok:       true,
		},
		{
			name:     "fenced without language tag",
			input:    "```\n{\"foam_visible\":1}\n```",
			expected: `{"foam_visible":1}`,
			ok:       true,
		},
		{
			name:     "embedded in prose",
			input:    `Sure, here is the result: {"hands_visible":0.2, "foam_visible":0.1} hope that helps`,
			expected: `{"hands_visible":0.2, "foam_visible":0.1}`,
			ok:       true,
		},
		{
			name:     "nested braces",
			input:    `prefix {"a":{"b":1},"c":2} suffix`,
			expected: `{"a":{"b":1},"c":2}`,
			ok:       true,
		},
		{
			name:     "brace inside string literal",
			input:    `{"note":"odd } brace","hands_visible":0.5}`,
			expected: `{"note":"odd } brace","hands_visible":0.5}`,
			ok:       true,
		},
		{
			name:  "no object at all",
			input: "I could not see any hands in the image.",
			ok:    false,
		},
		{
			name:  "unterminated object",
			input: `{"hands_visible":0.9`,
			ok:    false,
		},
		{
			name:  "empty input",
			input: "",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.input)
			if ok != tt.ok {
				t.Fatalf("extractJSON ok = %v, expected %v", ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("extractJSON = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestParseCuesDefaultsAndClamping(t *testing.T) {
	cues, err := parseCues(`{"hands_visible": 1.7, "foam_visible": -0.3}`)
	if err != nil {
		t.Fatalf("parseCues failed: %v", err)
	}

	if got := cues.Get(cue.HandsVisible); got != 1.0 {
		t.Errorf("hands_visible = %v, expected clamp to 1.0", got)
	}
	if got := cues.Get(cue.FoamVisible); got != 0.0 {
		t.Errorf("foam_visible = %v, expected clamp to 0.0", got)
	}
	// Keys the model omitted carry the neutral value.
	for _, key := range []string{cue.HandsUnderWater, cue.TowelDrying, cue.BlowerVisible} {
		if got := cues.Get(key); got != 0.5 {
			t.Errorf("missing key %s = %v, expected 0.5", key, got)
		}
	}
}

func TestParseCuesAllKeysPresent(t *testing.T) {
	cues, err := parseCues(`{
		"hands_visible": 0.9,
		"hands_under_water": 0.8,
		"hands_on_soap": 0.1,
		"foam_visible": 0.2,
		"towel_drying": 0.0,
		"hands_touch_clothes": 0.0,
		"blower_visible": 0.3
	}`)
	if err != nil {
		t.Fatalf("parseCues failed: %v", err)
	}

	if len(cues) != len(cue.VisualKeys) {
		t.Errorf("cue count = %d, expected %d", len(cues), len(cue.VisualKeys))
	}
	if got := cues.Get(cue.HandsUnderWater); got != 0.8 {
		t.Errorf("hands_under_water = %v, expected 0.8", got)
	}
}

func TestParseCuesRejectsNonJSON(t *testing.T) {
	if _, err := parseCues("the hands appear to be visible"); err == nil {
		t.Error("expected error for prose without JSON")
	}
	if _, err := parseCues(`{"hands_visible": "high"}`); err == nil {
		t.Error("expected error for non-numeric cue value")
	}
}
