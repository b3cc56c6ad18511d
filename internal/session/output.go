package session

import (
	"strings"
	"sync"
)

// lineWriter adapts the tool's stdout/stderr byte stream into per-line
// callbacks. Assigned to exec.Cmd std streams so cmd.Wait reliably drains
// it before returning. Blank lines are dropped.
type lineWriter struct {
	mu   sync.Mutex
	buf  strings.Builder
	emit func(line string)
}

func newLineWriter(emit func(line string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		if b == '\n' {
			w.emitLocked()
			continue
		}
		w.buf.WriteByte(b)
	}
	return len(p), nil
}

// flush forwards any trailing partial line after the process exits.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emitLocked()
}

func (w *lineWriter) emitLocked() {
	line := strings.TrimRight(w.buf.String(), "\r")
	w.buf.Reset()
	if strings.TrimSpace(line) == "" {
		return
	}
	w.emit(line)
}
