package memory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)

// decisionPayload is the wire shape an LLM decision service returns
// (spec.md §4.6 step 3).
type decisionPayload struct {
	Operation      string  `json:"operation"`
	Confidence     float64 `json:"confidence"`
	TargetMemoryID string  `json:"targetMemoryId"`
}

// ParseDecisionResponse tolerantly parses an LLM decision response:
// full JSON, then a regex-extracted JSON object, then a keyword
// fallback scan. Returns an error only if none of the three succeed,
// signaling the caller to use the similarity-only fallback.
func ParseDecisionResponse(text string) (Decision, error) {
	if d, err := parseFullJSON(text); err == nil {
		return d, nil
	}
	if d, err := parseExtractedJSON(text); err == nil {
		return d, nil
	}
	if d, ok := parseKeywordFallback(text); ok {
		return d, nil
	}
	return Decision{}, fmt.Errorf("memory: could not parse decision response")
}

func parseFullJSON(text string) (Decision, error) {
	var payload decisionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Decision{}, err
	}
	return toDecision(payload)
}

func parseExtractedJSON(text string) (Decision, error) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return Decision{}, fmt.Errorf("memory: no JSON object found in response")
	}
	var payload decisionPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return Decision{}, err
	}
	return toDecision(payload)
}

func toDecision(payload decisionPayload) (Decision, error) {
	op := Operation(strings.ToUpper(payload.Operation))
	switch op {
	case OpAdd, OpUpdate, OpDelete, OpNone:
	default:
		return Decision{}, fmt.Errorf("memory: unrecognized operation %q", payload.Operation)
	}
	return Decision{Operation: op, Confidence: payload.Confidence, TargetMemoryID: payload.TargetMemoryID}, nil
}

// parseKeywordFallback scans for an operation keyword when the
// response isn't valid JSON in any shape.
func parseKeywordFallback(text string) (Decision, bool) {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "DELETE"):
		return Decision{Operation: OpDelete, Confidence: 0.5}, true
	case strings.Contains(upper, "UPDATE"):
		return Decision{Operation: OpUpdate, Confidence: 0.5}, true
	case strings.Contains(upper, "ADD"):
		return Decision{Operation: OpAdd, Confidence: 0.5}, true
	case strings.Contains(upper, "NONE"):
		return Decision{Operation: OpNone, Confidence: 0.5}, true
	}
	return Decision{}, false
}
