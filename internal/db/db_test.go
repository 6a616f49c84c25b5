package db

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, path
}

func TestLogAndQueryEvents(t *testing.T) {
	database, _ := newTestDB(t)

	events := []struct{ eventType, details string }{
		{"transport_started", ""},
		{"companion_started", "wprsc --socket=/run/user/1000/wprsc-abc.sock"},
		{"attach", ""},
	}
	for _, e := range events {
		if err := database.LogSessionEvent("abc123", e.eventType, e.details); err != nil {
			t.Fatalf("failed to log event: %v", err)
		}
	}

	got, err := database.RecentEvents("abc123", 10)
	if err != nil {
		t.Fatalf("failed to query events: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}

	// Newest first
	if got[0].EventType != "attach" || got[2].EventType != "transport_started" {
		t.Errorf("expected newest-first ordering, got %q .. %q", got[0].EventType, got[2].EventType)
	}
	if got[1].Details != events[1].details {
		t.Errorf("expected details to round-trip, got %q", got[1].Details)
	}
}

func TestRecentEvents_Limit(t *testing.T) {
	database, _ := newTestDB(t)

	for range 5 {
		if err := database.LogSessionEvent("abc123", "attach", ""); err != nil {
			t.Fatalf("failed to log event: %v", err)
		}
	}

	got, err := database.RecentEvents("abc123", 2)
	if err != nil {
		t.Fatalf("failed to query events: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected limit to apply, got %d events", len(got))
	}
}

func TestRecentEvents_ScopedToIdentity(t *testing.T) {
	database, _ := newTestDB(t)

	database.LogSessionEvent("aaa", "attach", "")
	database.LogSessionEvent("bbb", "detach", "")

	got, err := database.RecentEvents("aaa", 10)
	if err != nil {
		t.Fatalf("failed to query events: %v", err)
	}
	if len(got) != 1 || got[0].EventType != "attach" {
		t.Errorf("expected only events for the queried identity, got %+v", got)
	}
}

func TestEventsPersistAcrossReopen(t *testing.T) {
	database, path := newTestDB(t)

	if err := database.LogSessionEvent("abc123", "attach", ""); err != nil {
		t.Fatalf("failed to log event: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.RecentEvents("abc123", 10)
	if err != nil {
		t.Fatalf("failed to query events: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected event to persist, got %d events", len(got))
	}
}
