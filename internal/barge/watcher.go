package barge

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chadiek/voice-agent/internal/logging"
)

// Listener runs one capture-and-recognize cycle.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Player plays text and halts once stop is raised.
type Player interface {
	Speak(ctx context.Context, text string, stop *StopSignal) bool
}

// Watcher listens for a trigger word while the agent is speaking.
type Watcher struct {
	listener Listener
	trigger  string
	// retryDelay paces cycles after a failed Listen.
	retryDelay time.Duration
}

func NewWatcher(l Listener, trigger string) *Watcher {
	return &Watcher{listener: l, trigger: strings.ToLower(strings.TrimSpace(trigger)), retryDelay: 250 * time.Millisecond}
}

// Matches reports whether text contains the trigger word, ignoring case.
func (w *Watcher) Matches(text string) bool {
	return w.trigger != "" && strings.Contains(strings.ToLower(text), w.trigger)
}

// Run repeats listen cycles until stop is raised or ctx ends. On a trigger
// match it raises stop and returns true. Cancelling ctx aborts the in-flight
// cycle, which releases the microphone.
func (w *Watcher) Run(ctx context.Context, stop *StopSignal) bool {
	for !stop.IsSet() && ctx.Err() == nil {
		phrase, err := w.listener.Listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			logging.Warnw("barge: listen failed", "err", err)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(w.retryDelay):
			}
			continue
		}
		if w.Matches(phrase) {
			if stop.Set() {
				logging.Infow("barge: trigger word detected", "trigger", w.trigger, "phrase", phrase)
			}
			return true
		}
	}
	return false
}

// Speak plays text while w listens for the trigger word. Playback and watcher
// run concurrently; the watcher is cancelled as soon as playback returns and
// both are joined before Speak returns. The result reports whether playback
// was interrupted.
func Speak(ctx context.Context, p Player, w *Watcher, text string) bool {
	stop := NewStopSignal()
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	var interrupted bool
	var g errgroup.Group
	g.Go(func() error {
		defer cancelWatch()
		interrupted = p.Speak(ctx, text, stop)
		return nil
	})
	g.Go(func() error {
		w.Run(watchCtx, stop)
		return nil
	})
	_ = g.Wait()
	return interrupted
}

// Speaker binds a Player to a Watcher so every reply is interruptible.
type Speaker struct {
	player  Player
	watcher *Watcher
}

func NewSpeaker(p Player, w *Watcher) *Speaker {
	return &Speaker{player: p, watcher: w}
}

// Speak reports whether the reply was interrupted by the trigger word.
func (s *Speaker) Speak(ctx context.Context, text string) bool {
	return Speak(ctx, s.player, s.watcher, text)
}
