package memory

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Speakers recorded in the log.
const (
	User      = "user"
	Assistant = "assistant"
)

// Turn is one logged utterance.
type Turn struct {
	Speaker string
	Text    string
	Time    time.Time
}

// String renders the turn as a log line without the trailing newline.
func (t Turn) String() string {
	return fmt.Sprintf("[%s] %s: %s", t.Time.Format(timestampLayout), t.Speaker, t.Text)
}

// Log is an append-only conversation log that doubles as the memory window.
type Log struct {
	path  string
	lines int
	now   func() time.Time

	mu sync.Mutex
}

// NewLog returns a log at path whose window holds the last lines entries.
func NewLog(path string, lines int) *Log {
	return &Log{path: path, lines: lines, now: time.Now}
}

// Append writes one turn. Embedded newlines are flattened so one turn is
// always one line.
func (l *Log) Append(speaker, text string) (Turn, error) {
	turn := Turn{Speaker: speaker, Text: flatten(text), Time: l.now()}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return turn, fmt.Errorf("open conversation log: %w", err)
	}
	if _, err := f.WriteString(turn.String() + "\n"); err != nil {
		f.Close()
		return turn, fmt.Errorf("append conversation log: %w", err)
	}
	return turn, f.Close()
}

// Recent returns the last N lines of the log, each with its newline. A
// missing log yields an empty window.
func (l *Log) Recent() (string, error) {
	if l.lines <= 0 {
		return "", nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("open conversation log: %w", err)
	}
	defer f.Close()

	ring := make([]string, 0, l.lines)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == l.lines {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read conversation log: %w", err)
	}
	if len(ring) == 0 {
		return "", nil
	}
	return strings.Join(ring, "\n") + "\n", nil
}

// Count returns the number of logged turns.
func (l *Log) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}

func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
