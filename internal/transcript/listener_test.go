package transcript

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeMic struct {
	mu     sync.Mutex
	opens  int
	closes int
	held   bool
	frame  []byte
	pace   time.Duration
}

func (m *fakeMic) Open(ctx context.Context) (CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return nil, errors.New("device busy")
	}
	m.held = true
	m.opens++
	return &fakeStream{mic: m}, nil
}

func (m *fakeMic) snapshot() (opens, closes int, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes, m.held
}

type fakeStream struct{ mic *fakeMic }

func (s *fakeStream) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.mic.pace):
	}
	if s.mic.frame != nil {
		return s.mic.frame, nil
	}
	return make([]byte, FrameSize), nil
}

func (s *fakeStream) Close() error {
	s.mic.mu.Lock()
	s.mic.held = false
	s.mic.closes++
	s.mic.mu.Unlock()
	return nil
}

func TestListener_ReturnsTranscriptAndReleasesMic(t *testing.T) {
	fake := newFakeDeepgram(t, 3, "Hello There")
	mic := &fakeMic{pace: time.Millisecond}
	l := NewListener(mic, fake.options(), 2*time.Second, 0)

	for i := 0; i < 2; i++ {
		text, err := l.Listen(context.Background())
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		if text != "hello there" {
			t.Fatalf("unexpected transcript %q", text)
		}
		opens, closes, held := mic.snapshot()
		if held || opens != closes {
			t.Fatalf("microphone not released: opens=%d closes=%d held=%v", opens, closes, held)
		}
	}
}

func TestListener_CancelAbortsInFlightSession(t *testing.T) {
	fake := newFakeDeepgram(t, -1)
	mic := &fakeMic{pace: time.Millisecond}
	l := NewListener(mic, fake.options(), 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	start := time.Now()
	text, err := l.Listen(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancel took too long")
	}
	if _, _, held := mic.snapshot(); held {
		t.Fatalf("microphone still held after cancel")
	}
}

func TestListener_MaxSessionResolvesEmpty(t *testing.T) {
	fake := newFakeDeepgram(t, -1)
	mic := &fakeMic{pace: time.Millisecond}
	l := NewListener(mic, fake.options(), 40*time.Millisecond, 0)

	text, err := l.Listen(context.Background())
	if err != nil {
		t.Fatalf("expected no error on session timeout, got %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestListener_IdleTimeoutEndsSilentSession(t *testing.T) {
	fake := newFakeDeepgram(t, -1)
	mic := &fakeMic{pace: time.Millisecond}
	l := NewListener(mic, fake.options(), 5*time.Second, 30*time.Millisecond)

	start := time.Now()
	text, err := l.Listen(context.Background())
	if err != nil || text != "" {
		t.Fatalf("expected empty result, got %q %v", text, err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("idle timeout did not end the session")
	}
}

func TestListener_DialFailureDoesNotOpenMic(t *testing.T) {
	mic := &fakeMic{}
	l := NewListener(mic, Options{}, 0, 0)
	l.dial = func(ctx context.Context, opts Options) (*Session, error) {
		return nil, ErrConnection
	}
	if _, err := l.Listen(context.Background()); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if opens, _, _ := mic.snapshot(); opens != 0 {
		t.Fatalf("microphone opened despite dial failure")
	}
}

func TestHasVoice(t *testing.T) {
	if HasVoice(nil) {
		t.Fatalf("empty buffer has no voice")
	}
	if HasVoice(make([]byte, 320)) {
		t.Fatalf("silence has no voice")
	}
	loud := make([]byte, 320)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(loud[i*2:], 3000)
	}
	if !HasVoice(loud) {
		t.Fatalf("expected voice in loud frame")
	}
}
