package transcript

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chadiek/voice-agent/internal/logging"
)

// voiceRMS is the energy above which a frame counts as voice.
const voiceRMS = 250.0

// CaptureStream yields fixed-size PCM16LE frames from an opened microphone.
type CaptureStream interface {
	// ReadFrame blocks for the next frame or until ctx ends.
	ReadFrame(ctx context.Context) ([]byte, error)
	// Close releases the capture device.
	Close() error
}

// Microphone hands out exclusive capture streams. Open blocks while another
// stream holds the device.
type Microphone interface {
	Open(ctx context.Context) (CaptureStream, error)
}

// Listener runs capture-and-recognize cycles against one microphone.
type Listener struct {
	Mic     Microphone
	Options Options
	// MaxSession caps a whole cycle; zero means unbounded.
	MaxSession time.Duration
	// IdleTimeout ends a cycle when no voice energy was captured for that
	// long; zero disables it.
	IdleTimeout time.Duration

	dial func(ctx context.Context, opts Options) (*Session, error)
}

// NewListener constructs a Listener that dials Deepgram with opts.
func NewListener(mic Microphone, opts Options, maxSession, idleTimeout time.Duration) *Listener {
	return &Listener{Mic: mic, Options: opts, MaxSession: maxSession, IdleTimeout: idleTimeout}
}

// Listen performs one cycle: open a session, stream microphone frames into it
// until it resolves or ctx ends, and return the normalized transcript. The
// capture device is always released before Listen returns.
func (l *Listener) Listen(ctx context.Context) (string, error) {
	if l.MaxSession > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.MaxSession)
		defer cancel()
	}

	dial := l.dial
	if dial == nil {
		dial = Dial
	}
	sess, err := dial(ctx, l.Options)
	if err != nil {
		return "", err
	}
	// ctx may end while the session is idle; make sure it is torn down.
	defer sess.Cancel()

	stream, err := l.Mic.Open(ctx)
	if err != nil {
		sess.Cancel()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("open microphone: %w", err)
	}

	captureCtx, stopCapture := context.WithCancel(ctx)
	captured := make(chan error, 1)
	go func() {
		err := l.capture(captureCtx, sess, stream)
		// release the device before Listen can return
		if cerr := stream.Close(); cerr != nil {
			logging.Warnw("capture: close failed", "session_id", sess.ID(), "err", cerr)
		}
		captured <- err
	}()

	res := sess.Wait(ctx)
	stopCapture()
	if cerr := <-captured; cerr != nil {
		logging.Warnw("capture: stopped with error", "session_id", sess.ID(), "err", cerr)
	}
	if ctx.Err() != nil && res.Text == "" && errors.Is(ctx.Err(), context.Canceled) {
		return "", ctx.Err()
	}
	return res.Text, nil
}

// capture pumps frames until the session closes or ctx ends. It cancels the
// session itself when the idle window elapses without voice.
func (l *Listener) capture(ctx context.Context, sess *Session, stream CaptureStream) error {
	lastVoice := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		default:
		}
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sess.Cancel()
			return err
		}
		if HasVoice(frame) {
			lastVoice = time.Now()
		} else if l.IdleTimeout > 0 && time.Since(lastVoice) > l.IdleTimeout {
			logging.Debugw("capture: idle timeout", "session_id", sess.ID())
			sess.Cancel()
			return nil
		}
		if err := sess.Feed(frame); err != nil {
			return err
		}
	}
}

// HasVoice reports whether a PCM16LE buffer carries voice energy.
func HasVoice(pcm []byte) bool {
	if len(pcm) < 2 {
		return false
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	return math.Sqrt(sumSquares/float64(count)) >= voiceRMS
}
