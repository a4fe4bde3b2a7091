package audio

import (
	"bytes"
	"fmt"

	"github.com/ebitengine/oto/v3"

	"github.com/chadiek/voice-agent/internal/playback"
)

// Speaker plays mono PCM16LE through the default output device at a fixed
// sample rate.
type Speaker struct {
	ctx        *oto.Context
	sampleRate int
}

// NewSpeaker opens the output device. oto allows one context per process, so
// a single Speaker should be shared.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return &Speaker{ctx: otoCtx, sampleRate: sampleRate}, nil
}

// SampleRate is the rate PCM passed to Play must be in.
func (s *Speaker) SampleRate() int { return s.sampleRate }

// Play starts playing pcm and returns immediately.
func (s *Speaker) Play(pcm []byte, sampleRate int) (playback.Handle, error) {
	if sampleRate != s.sampleRate {
		return nil, fmt.Errorf("speaker: sample rate %d does not match device rate %d", sampleRate, s.sampleRate)
	}
	p := s.ctx.NewPlayer(bytes.NewReader(pcm))
	p.Play()
	return &otoPlayback{p: p}, nil
}

type otoPlayback struct{ p *oto.Player }

func (o *otoPlayback) Playing() bool { return o.p.IsPlaying() }

func (o *otoPlayback) Stop() error {
	o.p.Pause()
	return o.p.Close()
}
