package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chadiek/voice-agent/internal/logging"
)

// ErrConnection is returned when the recognition channel cannot be opened.
var ErrConnection = errors.New("stt: connection failed")

// DefaultURL is the Deepgram streaming listen endpoint.
const DefaultURL = "wss://api.deepgram.com/v1/listen"

// FrameSize is the number of bytes captured and sent per binary frame.
const FrameSize = 1024

// State is the connection state of a Session.
type State int32

const (
	Connecting State = iota
	Streaming
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Result is the single transcript a Session resolves to.
type Result struct {
	Text    string
	IsFinal bool
}

// Options configures the recognition channel.
type Options struct {
	APIKey         string
	URL            string
	Language       string
	SampleRate     int
	Channels       int
	ConnectTimeout time.Duration
	// ResolveGrace is how long the session stays open after the first
	// transcript so trailing words are not cut from the stream.
	ResolveGrace time.Duration
	Dialer       *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.Language == "" {
		o.Language = "en"
	}
	if o.SampleRate == 0 {
		o.SampleRate = 16000
	}
	if o.Channels == 0 {
		o.Channels = 1
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ResolveGrace == 0 {
		o.ResolveGrace = 500 * time.Millisecond
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

func (o Options) endpoint() (string, error) {
	u, err := url.Parse(o.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("language", o.Language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(o.SampleRate))
	q.Set("channels", strconv.Itoa(o.Channels))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listenResponse is the subset of a Deepgram listen message we read.
type listenResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// Session is one streaming recognition connection. It resolves to at most one
// Result and is closed exactly once.
type Session struct {
	id    string
	opts  Options
	conn  *websocket.Conn
	state atomic.Int32

	writeMu sync.Mutex

	resolveOnce sync.Once
	resolved    atomic.Bool
	result      Result

	closeOnce sync.Once
	done      chan struct{}
	readDone  chan struct{}
}

// Dial opens a recognition channel. It fails with ErrConnection when the
// channel does not open within the connect timeout or ctx ends first.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	s := &Session{
		id:       uuid.NewString(),
		opts:     opts,
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	s.state.Store(int32(Connecting))

	endpoint, err := opts.endpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: bad url: %v", ErrConnection, err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+opts.APIKey)

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	conn, resp, err := opts.Dialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		if resp != nil {
			logging.Warnw("stt: connection rejected", "session_id", s.id, "status", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	s.conn = conn
	s.state.Store(int32(Streaming))
	logging.Debugw("stt: session open", "session_id", s.id)

	go s.readLoop()
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// State reports the connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has fully closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the resolved transcript. It is only meaningful after Done.
func (s *Session) Result() Result {
	<-s.done
	return s.result
}

// Wait blocks until the session closes or ctx ends. On ctx end the session is
// cancelled before returning.
func (s *Session) Wait(ctx context.Context) Result {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.Cancel()
	}
	return s.Result()
}

// Feed forwards one audio frame. It is a no-op once the session resolved or
// started closing.
func (s *Session) Feed(frame []byte) error {
	if s.resolved.Load() || s.State() != Streaming {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.State() != Streaming {
		return nil
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		go s.close()
		return fmt.Errorf("stt: send frame: %w", err)
	}
	return nil
}

// Cancel closes the channel immediately. A session cancelled before any
// transcript arrived resolves to empty text.
func (s *Session) Cancel() {
	s.close()
}

// resolve stores the first transcript; later calls are ignored.
func (s *Session) resolve(text string) bool {
	first := false
	s.resolveOnce.Do(func() {
		s.result = Result{Text: Normalize(text), IsFinal: text != ""}
		s.resolved.Store(true)
		first = true
	})
	return first
}

func (s *Session) readLoop() {
	defer close(s.readDone)
	defer s.close()
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() == Streaming && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logging.Debugw("stt: read ended", "session_id", s.id, "err", err)
			}
			return
		}
		var resp listenResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			logging.Warnw("stt: bad message", "session_id", s.id, "err", err)
			continue
		}
		alts := resp.Channel.Alternatives
		if len(alts) == 0 || strings.TrimSpace(alts[0].Transcript) == "" {
			continue
		}
		if s.resolve(alts[0].Transcript) {
			logging.Debugw("stt: transcript received", "session_id", s.id, "text", s.result.Text)
			select {
			case <-time.After(s.opts.ResolveGrace):
			case <-s.done:
			}
			return
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closing))
		s.resolve("")

		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()
		_ = s.conn.Close()

		s.state.Store(int32(Closed))
		close(s.done)
		logging.Debugw("stt: session closed", "session_id", s.id, "text", s.result.Text)
	})
}

// Normalize lower-cases and trims a transcript.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
