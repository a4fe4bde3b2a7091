package barge

import "sync/atomic"

// StopSignal is a one-shot flag shared by one playback and one watcher for
// the duration of a single speak action. It is observed by polling.
type StopSignal struct {
	set atomic.Bool
}

func NewStopSignal() *StopSignal { return &StopSignal{} }

// Set raises the flag. It returns true only for the call that raised it.
func (s *StopSignal) Set() bool {
	return s.set.CompareAndSwap(false, true)
}

// IsSet reports whether the flag was raised.
func (s *StopSignal) IsSet() bool {
	return s.set.Load()
}
