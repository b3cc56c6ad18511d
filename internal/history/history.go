package history

import (
	"context"
	"time"
)

// EventType defines the kind of recording lifecycle event.
type EventType string

const (
	EventStarted         EventType = "started"
	EventCompleted       EventType = "completed"
	EventForceTerminated EventType = "force_terminated"
	EventFailed          EventType = "failed"
	EventArchived        EventType = "archived"
)

// Record is the minimal snapshot of a session attached to an event.
type Record struct {
	Profile     string `json:"profile"`
	Device      string `json:"device"`
	State       string `json:"state"`
	ReportPath  string `json:"report_path,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Event represents a recording lifecycle event exported to audit systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for recording history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
