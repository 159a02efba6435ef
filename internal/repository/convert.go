package repository

import (
	"encoding/json"
	"fmt"
	"time"
)

// toFields flattens an entity into the loose field map the docstore speaks.
func toFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}

	var fields map[string]any
	if err = json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity fields: %w", err)
	}

	return fields, nil
}

// fromFields rebuilds an entity from a docstore field map.
func fromFields(fields map[string]any, out any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	if err = json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	return nil
}

// fieldString reads a string field, tolerating absence.
func fieldString(fields map[string]any, name string) string {
	value, _ := fields[name].(string)
	return value
}

// fieldInt reads a numeric field; JSON numbers decode as float64.
func fieldInt(fields map[string]any, name string) int {
	value, _ := fields[name].(float64)
	return int(value)
}

// fieldTime parses an RFC 3339 timestamp field; the zero time on failure.
func fieldTime(fields map[string]any, name string) time.Time {
	raw, ok := fields[name].(string)
	if !ok {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}
