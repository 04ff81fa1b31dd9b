package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArenaDir is the per-project working directory the orchestrator writes to.
const ArenaDir = ".arena"

// Logger appends timestamped lines to .arena/logs/arena.log so a match can
// be inspected after its processes and sockets are gone. It is handed to
// each component at construction; components never reach for global state.
type Logger struct {
	file *os.File
}

// New creates (or reuses) the log file under dir.
func New(dir string) (*Logger, error) {
	logDir := filepath.Join(dir, ArenaDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "arena.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f}, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	timestamp := time.Now().Format(time.RFC3339)
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
}
