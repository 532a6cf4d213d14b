package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// queryPragma returns the value of a pragma on the store's connection.
func queryPragma(t *testing.T, s *Store, name string) string {
	t.Helper()
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		t.Fatalf("PRAGMA %s failed: %v", name, err)
	}
	return value
}

// enqueueTestItem inserts a PENDING EPUB item for user 1, device 1, book 1.
func enqueueTestItem(t *testing.T, s *Store, id int64, at time.Time) {
	t.Helper()
	err := s.Enqueue(context.Background(), NewItem{
		ID:        id,
		UserID:    1,
		DeviceID:  1,
		BookID:    1,
		Format:    "EPUB",
		CreatedAt: at,
	}, map[string]any{"book_id": 1})
	if err != nil {
		t.Fatalf("Enqueue(%d) failed: %v", id, err)
	}
}

// claimTestItem claims an item and fails the test if the claim is lost.
func claimTestItem(t *testing.T, s *Store, id int64, at time.Time) {
	t.Helper()
	claimed, err := s.Claim(context.Background(), id, at, nil)
	if err != nil {
		t.Fatalf("Claim(%d) failed: %v", id, err)
	}
	if !claimed {
		t.Fatalf("Claim(%d) lost", id)
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}
