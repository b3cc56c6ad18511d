package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/danhyun/perfrec/internal/history"
)

func TestSendAndReadBack(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	evt := history.Event{
		Type:       history.EventStarted,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			Profile: "Activity Monitor",
			Device:  "udid-1",
			State:   "running",
		},
	}
	if err := sink.Send(context.Background(), evt); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var count int
	row := sink.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM recording_history WHERE profile = ? AND event = ?`,
		"Activity Monitor", "started")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestNewWithFileAndPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist.db")
	sink, err := New("sqlite://" + path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	evt := history.Event{Type: history.EventArchived, OccurredAt: time.Now().UTC(),
		Record: history.Record{Profile: "p", Device: "d", State: "completed", ArchivePath: "/tmp/p.zip"}}
	if err := sink.Send(context.Background(), evt); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestNewEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
