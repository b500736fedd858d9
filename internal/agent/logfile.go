package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampFormat prefixes every agent log line.
const TimestampFormat = "2006-01-02 15:04:05"

// LogFile is the agent output log shared by every instance. It is opened
// lazily in append mode.
type LogFile struct {
	mu   sync.Mutex
	path string
	file *os.File
	now  func() time.Time
}

// NewLogFile returns a LogFile writing to path.
func NewLogFile(path string) *LogFile {
	return &LogFile{path: path, now: time.Now}
}

// Path returns the log file path.
func (l *LogFile) Path() string {
	return l.path
}

// Append writes "<timestamp> [stream] line".
func (l *LogFile) Append(stream, line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
			return fmt.Errorf("failed to create agent log directory: %w", err)
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open agent log: %w", err)
		}
		l.file = f
	}

	_, err := fmt.Fprintf(l.file, "%s [%s] %s\n", l.now().Format(TimestampFormat), stream, line)
	return err
}

// Close closes the underlying file. Later appends reopen it.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
