package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chadiek/voice-agent/internal/memory"
)

// fakeListener returns scripted utterances and then cancels the run.
type fakeListener struct {
	inputs []string
	errs   []error
	calls  int
	cancel context.CancelFunc
}

func (f *fakeListener) Listen(ctx context.Context) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(f.inputs) == 0 {
		if f.cancel != nil {
			f.cancel()
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	in := f.inputs[0]
	f.inputs = f.inputs[1:]
	return in, nil
}

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeSpeaker struct {
	spoken      []string
	interrupted bool
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) bool {
	f.spoken = append(f.spoken, text)
	return f.interrupted
}

type fakeMemory struct {
	mu     sync.Mutex
	turns  []memory.Turn
	recent string
}

func (f *fakeMemory) Append(speaker, text string) (memory.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := memory.Turn{Speaker: speaker, Text: text, Time: time.Now()}
	f.turns = append(f.turns, t)
	return t, nil
}

func (f *fakeMemory) Recent() (string, error) { return f.recent, nil }

func runLoop(t *testing.T, l *fakeListener, m *fakeLLM, s *fakeSpeaker, mem *fakeMemory) (*Loop, string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.cancel = cancel
	var console bytes.Buffer
	loop := NewLoop(l, m, s, mem, Options{Document: "Deepgram does not store audio.", Console: &console, RetryDelay: time.Millisecond})
	err := loop.Run(ctx)
	return loop, console.String(), err
}

func TestLoop_AnswersAndReturnsToListening(t *testing.T) {
	l := &fakeListener{inputs: []string{"what is your privacy policy"}}
	m := &fakeLLM{reply: "Audio is not stored."}
	s := &fakeSpeaker{}
	mem := &fakeMemory{recent: "[2026-01-01 00:00:00] user: hi\n"}

	loop, _, err := runLoop(t, l, m, s, mem)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected run to end on cancel, got %v", err)
	}
	if len(m.prompts) != 1 {
		t.Fatalf("expected one llm call, got %d", len(m.prompts))
	}
	p := m.prompts[0]
	for _, part := range []string{"Deepgram does not store audio.", "user: hi", "User question: what is your privacy policy"} {
		if !strings.Contains(p, part) {
			t.Fatalf("prompt missing %q:\n%s", part, p)
		}
	}
	if len(s.spoken) != 1 || s.spoken[0] != "Audio is not stored." {
		t.Fatalf("unexpected speech %v", s.spoken)
	}
	if len(mem.turns) != 2 || mem.turns[0].Speaker != memory.User || mem.turns[1].Speaker != memory.Assistant {
		t.Fatalf("unexpected log %+v", mem.turns)
	}
	if l.calls != 2 {
		t.Fatalf("expected loop to listen again, got %d calls", l.calls)
	}
	if loop.Turns() != 1 {
		t.Fatalf("expected 1 turn, got %d", loop.Turns())
	}
}

func TestLoop_ExitWordSpeaksFarewellAndStops(t *testing.T) {
	for _, input := range []string{"goodbye", "please exit now", "stop it", "ok goodbye."} {
		t.Run(input, func(t *testing.T) {
			l := &fakeListener{inputs: []string{input, "should never be heard"}}
			m := &fakeLLM{reply: "unused"}
			s := &fakeSpeaker{interrupted: true}
			mem := &fakeMemory{}

			loop, _, err := runLoop(t, l, m, s, mem)
			if err != nil {
				t.Fatalf("expected clean exit, got %v", err)
			}
			if loop.State() != Done {
				t.Fatalf("expected Done, got %s", loop.State())
			}
			if len(s.spoken) != 1 || s.spoken[0] != "Goodbye!" {
				t.Fatalf("expected farewell, got %v", s.spoken)
			}
			if l.calls != 1 {
				t.Fatalf("expected no listening after exit, got %d calls", l.calls)
			}
			if len(m.prompts) != 0 {
				t.Fatalf("llm must not be called on exit")
			}
			if len(mem.turns) != 1 || mem.turns[0].Text != input {
				t.Fatalf("expected user turn logged, got %+v", mem.turns)
			}
		})
	}
}

func TestLoop_InterruptedReplyRestarts(t *testing.T) {
	l := &fakeListener{inputs: []string{"tell me everything"}}
	m := &fakeLLM{reply: "A very long answer."}
	s := &fakeSpeaker{interrupted: true}

	_, console, _ := runLoop(t, l, m, s, &fakeMemory{})
	if !strings.Contains(console, "Restarting conversation...") {
		t.Fatalf("expected restart notice, got %q", console)
	}
	if l.calls != 2 {
		t.Fatalf("expected immediate return to listening, got %d calls", l.calls)
	}
}

func TestLoop_SilenceSkipsTurn(t *testing.T) {
	l := &fakeListener{inputs: []string{"", ""}}
	m := &fakeLLM{reply: "unused"}
	s := &fakeSpeaker{}
	mem := &fakeMemory{}

	_, _, err := runLoop(t, l, m, s, mem)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected err %v", err)
	}
	if len(mem.turns) != 0 || len(m.prompts) != 0 || len(s.spoken) != 0 {
		t.Fatalf("silence must not log, query or speak")
	}
	if l.calls != 3 {
		t.Fatalf("expected 3 listen cycles, got %d", l.calls)
	}
}

func TestLoop_LLMFailureSkipsTurn(t *testing.T) {
	for _, m := range []*fakeLLM{{err: errors.New("status=500")}, {reply: ""}} {
		l := &fakeListener{inputs: []string{"what data do you keep"}}
		s := &fakeSpeaker{}
		mem := &fakeMemory{}

		_, _, _ = runLoop(t, l, m, s, mem)
		if len(s.spoken) != 0 {
			t.Fatalf("nothing should be spoken, got %v", s.spoken)
		}
		if len(mem.turns) != 1 || mem.turns[0].Speaker != memory.User {
			t.Fatalf("only the user turn should be logged, got %+v", mem.turns)
		}
		if l.calls != 2 {
			t.Fatalf("expected return to listening, got %d calls", l.calls)
		}
	}
}

func TestLoop_ListenErrorStaysListening(t *testing.T) {
	l := &fakeListener{errs: []error{errors.New("stt down")}, inputs: []string{"what is retained"}}
	m := &fakeLLM{reply: "Nothing."}
	s := &fakeSpeaker{}

	_, _, _ = runLoop(t, l, m, s, &fakeMemory{})
	if len(s.spoken) != 1 {
		t.Fatalf("expected the loop to recover and answer, got %v", s.spoken)
	}
}

func TestContainsAny(t *testing.T) {
	words := []string{"exit", "goodbye", "stop"}
	if !containsAny("Non-Stop music", words) {
		t.Fatalf("substring match expected")
	}
	if containsAny("hello there", words) {
		t.Fatalf("no match expected")
	}
}

func TestState_String(t *testing.T) {
	if Speaking.String() != "speaking" || Done.String() != "done" || State(42).String() != "unknown" {
		t.Fatalf("unexpected state names")
	}
}
