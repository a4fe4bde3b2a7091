package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLog(t *testing.T, lines int) *Log {
	t.Helper()
	l := NewLog(filepath.Join(t.TempDir(), "conversation_log.txt"), lines)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	return l
}

func TestAppend_WritesFormattedLine(t *testing.T) {
	l := newTestLog(t, 6)
	if _, err := l.Append(User, "what is your\nprivacy policy"); err != nil {
		t.Fatalf("append: %v", err)
	}
	b, err := os.ReadFile(l.path)
	if err != nil {
		t.Fatal(err)
	}
	want := "[2026-03-04 05:06:07] user: what is your privacy policy\n"
	if string(b) != want {
		t.Fatalf("got %q want %q", string(b), want)
	}
}

func TestRecent_MissingLogIsEmpty(t *testing.T) {
	l := newTestLog(t, 6)
	got, err := l.Recent()
	if err != nil || got != "" {
		t.Fatalf("expected empty window, got %q %v", got, err)
	}
	if n, err := l.Count(); err != nil || n != 0 {
		t.Fatalf("expected zero turns, got %d %v", n, err)
	}
}

func TestRecent_HoldsAtMostNLines(t *testing.T) {
	for _, total := range []int{1, 6, 7, 40} {
		t.Run(fmt.Sprint(total), func(t *testing.T) {
			l := newTestLog(t, 6)
			for i := 0; i < total; i++ {
				if _, err := l.Append(User, fmt.Sprintf("message %d", i)); err != nil {
					t.Fatal(err)
				}
			}
			got, err := l.Recent()
			if err != nil {
				t.Fatal(err)
			}
			lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
			want := total
			if want > 6 {
				want = 6
			}
			if len(lines) != want {
				t.Fatalf("expected %d lines, got %d", want, len(lines))
			}
			if !strings.HasSuffix(lines[len(lines)-1], fmt.Sprintf("message %d", total-1)) {
				t.Fatalf("window must end with the newest turn, got %q", lines[len(lines)-1])
			}
			if n, _ := l.Count(); n != total {
				t.Fatalf("log must keep every turn, got %d", n)
			}
		})
	}
}

func TestRecent_ZeroLinesDisablesWindow(t *testing.T) {
	l := newTestLog(t, 0)
	_, _ = l.Append(Assistant, "hi")
	if got, _ := l.Recent(); got != "" {
		t.Fatalf("expected empty window, got %q", got)
	}
}

func TestTurn_String(t *testing.T) {
	turn := Turn{Speaker: Assistant, Text: "Hello.", Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if got := turn.String(); got != "[2026-01-02 03:04:05] assistant: Hello." {
		t.Fatalf("unexpected %q", got)
	}
}
