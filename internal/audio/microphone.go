package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/chadiek/voice-agent/internal/transcript"
)

// ErrClosed is returned when reading from a closed capture stream.
var ErrClosed = errors.New("audio: capture stream closed")

// Microphone captures mono PCM16LE from the default input device. Only one
// capture stream may be open at a time.
type Microphone struct {
	ctx        malgo.Context
	sampleRate int
	frameSize  int
	// token holds one value while the device is free.
	token chan struct{}
}

// NewMicrophone returns a microphone bound to an initialized malgo context.
func NewMicrophone(ctx malgo.Context, sampleRate, frameSize int) *Microphone {
	m := &Microphone{ctx: ctx, sampleRate: sampleRate, frameSize: frameSize, token: make(chan struct{}, 1)}
	m.token <- struct{}{}
	return m
}

// Open waits for the device to be free, then starts capturing.
func (m *Microphone) Open(ctx context.Context) (transcript.CaptureStream, error) {
	select {
	case <-m.token:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s := &captureStream{
		frames:    make(chan []byte, 64),
		frameSize: m.frameSize,
		stop:      make(chan struct{}),
		release:   func() { m.token <- struct{}{} },
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(m.ctx, deviceConfig, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		s.release()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		s.release()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	s.device = device
	return s, nil
}

type captureStream struct {
	device    *malgo.Device
	frameSize int
	frames    chan []byte

	mu      sync.Mutex
	pending []byte

	stop      chan struct{}
	closeOnce sync.Once
	release   func()
}

// onData runs on the audio thread; it slices input into fixed frames and
// drops frames when the reader falls behind.
func (s *captureStream) onData(_, input []byte, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, input...)
	for len(s.pending) >= s.frameSize {
		frame := make([]byte, s.frameSize)
		copy(frame, s.pending[:s.frameSize])
		s.pending = s.pending[s.frameSize:]
		select {
		case <-s.stop:
			return
		case s.frames <- frame:
		default:
		}
	}
}

func (s *captureStream) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stop:
		return nil, ErrClosed
	case f := <-s.frames:
		return f, nil
	}
}

func (s *captureStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.device != nil {
			err = s.device.Stop()
			s.device.Uninit()
		}
		s.release()
	})
	return err
}
