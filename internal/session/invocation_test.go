package session

import (
	"reflect"
	"testing"
)

func TestToolArgsGrammar(t *testing.T) {
	got := toolArgs("Activity Monitor", "udid-1", "/tmp/perf.trace", 5000, 0)
	want := []string{
		"record",
		"--template", "Activity Monitor",
		"--device", "udid-1",
		"--output", "/tmp/perf.trace",
		"--time-limit", "5000ms",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestToolArgsWithTargetPID(t *testing.T) {
	got := toolArgs("Time Profiler", "udid-2", "/tmp/p.trace", 60000, 1234)
	if got[len(got)-2] != "--attach" || got[len(got)-1] != "1234" {
		t.Fatalf("attach flag missing or misplaced: %v", got)
	}
}

func TestNormalizeReportPath(t *testing.T) {
	cases := map[string]string{
		"/tmp/a":           "/tmp/a.trace",
		"/tmp/a.trace":     "/tmp/a.trace",
		"/tmp/b.TRACE":     "/tmp/b.TRACE",
		"/tmp/c.trace.old": "/tmp/c.trace.old.trace",
	}
	for in, want := range cases {
		if got := normalizeReportPath(in); got != want {
			t.Fatalf("normalizeReportPath(%q) = %q, want %q", in, got, want)
		}
	}
}
