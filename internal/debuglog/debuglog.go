// Package debuglog provides a small append-only debug logger shared by the
// engine and the MCP transport. Logging is off unless a file is opened;
// callers hold a *Logger unconditionally and pay nothing when disabled.
package debuglog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger writes timestamped lines to a single sink. Safe for concurrent use.
type Logger struct {
	mu sync.Mutex
	w  io.WriteCloser
}

var discard = &Logger{}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return discard
}

// Open creates or appends to the debug log file at path.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	return &Logger{w: f}, nil
}

// Printf writes one formatted line with a timestamp prefix.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.w == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}

// Close closes the underlying file, if any.
func (l *Logger) Close() error {
	if l == nil || l.w == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}
