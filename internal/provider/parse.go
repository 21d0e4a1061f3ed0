package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/washsense/washsense/internal/cue"
)

// fencedJSON matches a markdown code block, optionally tagged as json.
var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON recovers the first well-formed JSON object from model output.
// VLMs frequently wrap the object in a fenced code block or prepend prose,
// so the fence is stripped first and the remainder scanned for the first
// balanced {...} span.
func extractJSON(text string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// parseCues parses VLM output into the seven visual cues. Values are
// clamped to [0, 1]; keys the model failed to report default to the
// neutral 0.5.
func parseCues(text string) (cue.Map, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var data map[string]float64
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("malformed JSON object: %w", err)
	}

	cues := make(cue.Map, len(cue.VisualKeys))
	for _, key := range cue.VisualKeys {
		v, ok := data[key]
		if !ok {
			v = 0.5
		}
		cues[key] = cue.Clamp(v)
	}
	return cues, nil
}
