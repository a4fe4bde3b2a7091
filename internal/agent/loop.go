package agent

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/voice-agent/internal/logging"
	"github.com/chadiek/voice-agent/internal/memory"
)

// Options configures a Loop.
type Options struct {
	// Document is the reference text every answer is constrained to.
	Document   string
	ExitWords  []string
	Farewell   string
	LLMTimeout time.Duration
	// Console receives the human-facing transcript of the conversation.
	Console io.Writer
	// RetryDelay paces Listening after a failed listen cycle.
	RetryDelay time.Duration
}

// Loop is the conversation state machine. It runs one turn at a time.
type Loop struct {
	listener Listener
	llm      LLM
	speaker  Speaker
	memory   Memory
	opts     Options

	state stateCell
	turns atomic.Int64
}

type stateCell struct{ v atomic.Int32 }

func (s *stateCell) Load() State   { return State(s.v.Load()) }
func (s *stateCell) Store(v State) { s.v.Store(int32(v)) }

func NewLoop(l Listener, m LLM, s Speaker, mem Memory, opts Options) *Loop {
	if len(opts.ExitWords) == 0 {
		opts.ExitWords = []string{"exit", "goodbye", "stop"}
	}
	if opts.Farewell == "" {
		opts.Farewell = "Goodbye!"
	}
	if opts.LLMTimeout == 0 {
		opts.LLMTimeout = 30 * time.Second
	}
	if opts.Console == nil {
		opts.Console = io.Discard
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}
	return &Loop{listener: l, llm: m, speaker: s, memory: mem, opts: opts}
}

// State reports the state the loop is currently in.
func (l *Loop) State() State { return l.state.Load() }

// Turns reports how many assistant replies were spoken.
func (l *Loop) Turns() int64 { return l.turns.Load() }

// Run drives the conversation until an exit word is spoken (nil) or ctx is
// cancelled (ctx.Err()).
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.step(ctx) == Done {
			return nil
		}
	}
}

// step runs one pass from Listening and returns the state it ended in.
func (l *Loop) step(ctx context.Context) State {
	l.state.Store(Listening)
	fmt.Fprintln(l.opts.Console, "\nListening...")
	input, err := l.listener.Listen(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warnw("agent: listen failed", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(l.opts.RetryDelay):
			}
		}
		return Listening
	}
	if input == "" {
		return Listening
	}

	turnID := uuid.NewString()
	l.state.Store(Interpreting)
	fmt.Fprintf(l.opts.Console, "You: %s\n", input)
	logging.Infow("agent: heard", "turn_id", turnID, "text", input)
	if _, err := l.memory.Append(memory.User, input); err != nil {
		logging.Warnw("agent: log user turn failed", "turn_id", turnID, "err", err)
	}

	if containsAny(input, l.opts.ExitWords) {
		l.state.Store(ExitCheck)
		logging.Infow("agent: exit requested", "turn_id", turnID)
		l.speaker.Speak(ctx, l.opts.Farewell)
		l.state.Store(Done)
		return Done
	}

	l.state.Store(Querying)
	reply, ok := l.query(ctx, turnID, input)
	if !ok {
		return Listening
	}
	fmt.Fprintf(l.opts.Console, "Assistant: %s\n", reply)
	if _, err := l.memory.Append(memory.Assistant, reply); err != nil {
		logging.Warnw("agent: log assistant turn failed", "turn_id", turnID, "err", err)
	}

	l.state.Store(Speaking)
	interrupted := l.speaker.Speak(ctx, reply)
	l.turns.Add(1)
	if interrupted {
		fmt.Fprintln(l.opts.Console, "Restarting conversation...")
		logging.Infow("agent: reply interrupted, restarting conversation", "turn_id", turnID)
	}
	return Listening
}

// query asks the LLM; any failure skips the turn.
func (l *Loop) query(ctx context.Context, turnID, input string) (string, bool) {
	recent, err := l.memory.Recent()
	if err != nil {
		logging.Warnw("agent: memory window unavailable", "turn_id", turnID, "err", err)
		recent = ""
	}
	prompt := buildPrompt(l.opts.Document, recent, input)

	ctxLLM, cancel := context.WithTimeout(ctx, l.opts.LLMTimeout)
	defer cancel()
	logging.Debugw("agent: asking llm", "turn_id", turnID, "prompt_chars", len(prompt))
	reply, err := l.llm.Generate(ctxLLM, prompt)
	if err != nil {
		logging.Warnw("agent: llm error", "turn_id", turnID, "err", err)
		return "", false
	}
	if reply == "" {
		return "", false
	}
	return reply, true
}
