package agent

import (
	"context"

	"github.com/chadiek/voice-agent/internal/memory"
)

// Listener returns one normalized user utterance; empty means silence.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// LLM is a minimal interface to generate a single response for a prompt.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Speaker speaks text and reports whether the user interrupted it.
type Speaker interface {
	Speak(ctx context.Context, text string) bool
}

// Memory is the conversation log and the source of the memory window.
type Memory interface {
	Append(speaker, text string) (memory.Turn, error)
	Recent() (string, error)
}

// State is a conversation loop state.
type State int32

const (
	Listening State = iota
	Interpreting
	ExitCheck
	Querying
	Speaking
	Done
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Interpreting:
		return "interpreting"
	case ExitCheck:
		return "exit_check"
	case Querying:
		return "querying"
	case Speaking:
		return "speaking"
	case Done:
		return "done"
	}
	return "unknown"
}
