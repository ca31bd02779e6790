package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a completion carries no JSON payload at all.
var ErrNoJSON = errors.New("no JSON found in completion")

// DecodeJSON extracts the JSON payload of a completion into v. Markdown code
// fences and surrounding prose are stripped; malformed JSON is repaired
// before giving up.
func DecodeJSON(content string, v any) error {
	payload := extractJSON(content)
	if payload == "" {
		return ErrNoJSON
	}
	err := json.Unmarshal([]byte(payload), v)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(payload)
	if repairErr != nil {
		return fmt.Errorf("decode completion JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("decode repaired completion JSON: %w", err)
	}
	return nil
}

func extractJSON(content string) string {
	text := strings.TrimSpace(content)
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		// Truncated output: hand the tail to the repairer.
		return text[start:]
	}
	return text[start : end+1]
}
