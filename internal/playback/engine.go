package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chadiek/voice-agent/internal/barge"
	"github.com/chadiek/voice-agent/internal/logging"
	"github.com/chadiek/voice-agent/internal/wavfile"
)

// ErrSynthesis wraps every synthesis, artifact or playback failure.
var ErrSynthesis = errors.New("playback: synthesis failed")

// MaxTextLength is the longest text, in characters, sent to synthesis.
const MaxTextLength = 2000

// Synthesizer renders text to mono PCM16LE at SampleRate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SampleRate() int
}

// Handle is one sound in progress on an output device.
type Handle interface {
	Playing() bool
	Stop() error
}

// Output starts playing PCM16LE without blocking.
type Output interface {
	Play(pcm []byte, sampleRate int) (Handle, error)
}

// Engine synthesizes and plays text, halting when a StopSignal is raised.
type Engine struct {
	synth Synthesizer
	out   Output
	// TempDir holds the transient audio artifact; empty uses os.TempDir.
	TempDir      string
	PollInterval time.Duration
}

func New(s Synthesizer, out Output) *Engine {
	return &Engine{synth: s, out: out, PollInterval: 100 * time.Millisecond}
}

// Truncate cuts text to MaxTextLength characters.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxTextLength {
		return text
	}
	return string(r[:MaxTextLength])
}

// Speak plays text and reports whether playback was halted by stop. Failures
// are logged and reported as not interrupted.
func (e *Engine) Speak(ctx context.Context, text string, stop *barge.StopSignal) bool {
	interrupted, err := e.speak(ctx, text, stop)
	if err != nil {
		logging.Errorw("playback: speak failed", "err", err)
		return false
	}
	return interrupted
}

func (e *Engine) speak(ctx context.Context, text string, stop *barge.StopSignal) (bool, error) {
	text = Truncate(text)

	art, err := newArtifact(e.TempDir)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer art.release()

	pcm, err := e.synth.Synthesize(ctx, text)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if err := wavfile.Write(art.path, pcm, e.synth.SampleRate()); err != nil {
		return false, fmt.Errorf("%w: write artifact: %v", ErrSynthesis, err)
	}
	samples, sampleRate, err := wavfile.Read(art.path)
	if err != nil {
		return false, fmt.Errorf("%w: read artifact: %v", ErrSynthesis, err)
	}

	h, err := e.out.Play(samples, sampleRate)
	if err != nil {
		return false, fmt.Errorf("%w: play: %v", ErrSynthesis, err)
	}
	defer func() {
		if err := h.Stop(); err != nil {
			logging.Debugw("playback: stop failed", "err", err)
		}
	}()

	poll := e.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if stop != nil && stop.IsSet() {
			logging.Infow("playback: interrupted")
			return true, nil
		}
		if !h.Playing() {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

// artifact is a transient file removed on every exit path of speak.
type artifact struct{ path string }

func newArtifact(dir string) (*artifact, error) {
	f, err := os.CreateTemp(dir, "tts-*.wav")
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, err
	}
	return &artifact{path: f.Name()}, nil
}

func (a *artifact) release() {
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warnw("playback: artifact not removed", "path", a.path, "err", err)
	}
}
