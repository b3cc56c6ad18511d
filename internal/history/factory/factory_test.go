package factory

import (
	"path/filepath"
	"testing"
)

func TestSQLiteByPath(t *testing.T) {
	sink, err := NewSinkFromDSN(filepath.Join(t.TempDir(), "hist.db"))
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	_ = sink.Close()
}

func TestSQLiteByPrefix(t *testing.T) {
	sink, err := NewSinkFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	_ = sink.Close()
}

func TestEmptyDSN(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestUnsupportedScheme(t *testing.T) {
	if _, err := NewSinkFromDSN("kafka://broker:9092"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
