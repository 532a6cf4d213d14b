package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// marshalDetails converts an event payload to JSON TEXT for storage.
// A nil payload is stored as "{}".
func marshalDetails(details any) (string, error) {
	if details == nil {
		return "{}", nil
	}
	if raw, ok := details.(json.RawMessage); ok {
		if len(raw) == 0 {
			return "{}", nil
		}
		return string(raw), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // error messages keep <, > and & readable
	if err := enc.Encode(details); err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// toMillis converts a time to the stored representation.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// fromMillis converts a stored timestamp back to a UTC time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
