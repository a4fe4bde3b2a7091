package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"github.com/chadiek/voice-agent/internal/logging"
)

// ErrNoAudio is returned when synthesis finished without producing audio.
var ErrNoAudio = errors.New("deepgram: no audio received")

// DeepgramClient synthesizes linear16 mono PCM with Deepgram's speak websocket.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	// idleWindow ends a synthesis once audio stopped arriving for this long.
	idleWindow time.Duration
	timeout    time.Duration
}

func NewDeepgramClient(apiKey, model string, sampleRate int, timeout time.Duration) *DeepgramClient {
	if model == "" {
		model = "aura-asteria-en"
	}
	if sampleRate == 0 {
		sampleRate = 24000
	}
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &DeepgramClient{apiKey: apiKey, model: model, sampleRate: sampleRate, idleWindow: 400 * time.Millisecond, timeout: timeout}
}

// SampleRate is the rate of the PCM returned by Synthesize.
func (d *DeepgramClient) SampleRate() int { return d.sampleRate }

// Synthesize returns the complete PCM16LE rendering of text.
func (d *DeepgramClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}
	if text == "" {
		return nil, ErrNoAudio
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		pcm      []byte
		lastRecv time.Time
	)
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		mu.Lock()
		pcm = append(pcm, data...)
		lastRecv = time.Now()
		mu.Unlock()
		return nil
	}}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		logging.Warnw("tts: flush failed", "err", err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			got := len(pcm)
			mu.Unlock()
			if got == 0 {
				return nil, fmt.Errorf("deepgram: %w", ctx.Err())
			}
			logging.Warnw("tts: synthesis cut short", "bytes", got, "err", ctx.Err())
			return d.take(&mu, &pcm), nil
		case <-ticker.C:
			mu.Lock()
			idle := !lastRecv.IsZero() && time.Since(lastRecv) > d.idleWindow
			mu.Unlock()
			if idle {
				return d.take(&mu, &pcm), nil
			}
		}
	}
}

func (d *DeepgramClient) take(mu *sync.Mutex, pcm *[]byte) []byte {
	mu.Lock()
	defer mu.Unlock()
	out := *pcm
	// keep whole 16-bit samples only
	return out[:len(out)&^1]
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(w *msginterfaces.WarningResponse) error {
	logging.Warnw("tts: deepgram warning", "warning", w)
	return nil
}
func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	logging.Errorw("tts: deepgram error", "error", e)
	return nil
}
func (s *speakCallback) UnhandledEvent([]byte) error { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
