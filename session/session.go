// Package session implements the per-connection state machine of §4.C:
// the streams map, GOAWAY negotiation, inbound frame dispatch, and
// SETTINGS handling. It is grounded on the teacher's serverConn, with
// serverConn's single-goroutine stream map generalized into a
// concurrency-safe Session any number of producer goroutines can drive.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgrr/h2engine"
	"github.com/dgrr/h2engine/flowcontrol"
	"github.com/dgrr/h2engine/stream"
	"golang.org/x/net/http2/hpack"
)

// Session is one HTTP/2 connection's state (§3 "Session state").
type Session struct {
	logger h2engine.Logger
	sink   h2engine.Sink

	isLocalOdd bool // true for client sessions: locally-initiated stream ids are odd

	mu      sync.RWMutex
	streams map[uint32]*stream.Stream
	// priorityStreams holds ids reserved by PUSH_PROMISE that are not
	// yet backed by a full Stream (§3 "priorityStreams").
	priorityStreams map[uint32]struct{}

	lastRemoteStreamID uint32
	remoteOpenCount    int32
	remoteClosingCount int32

	localOpenCount       uint32
	maxLocalStreams      uint32
	totalLocalStreams    uint64
	maxTotalLocalStreams uint64
	localNextID          uint32

	slotMu   sync.Mutex
	slots    []*slot
	draining bool

	fc *flowcontrol.Controller

	closeState  int32 // atomic CloseState
	goAwayMu    sync.Mutex
	goAwaySent  *h2engine.GoAwayFrame
	goAwayRecv  *h2engine.GoAwayFrame
	zeroAction  func()
	closeOnce   sync.Once

	localSettings  h2engine.Settings
	remoteSettings h2engine.Settings

	hp *HPACK

	idleTimeout time.Duration
	idleTimer   *time.Timer

	listener Listener
}

// Option configures a Session at construction time.
type Option func(*Session)

func WithLogger(l h2engine.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

func WithMaxLocalStreams(n uint32) Option {
	return func(s *Session) { s.maxLocalStreams = n }
}

func WithMaxTotalLocalStreams(n uint64) Option {
	return func(s *Session) { s.maxTotalLocalStreams = n }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(s *Session) { s.idleTimeout = d }
}

func WithLocalSettings(st h2engine.Settings) Option {
	return func(s *Session) { s.localSettings = st }
}

// WithHPACK installs the HPACK (de)compressor pair. If omitted, New
// builds one with a no-op field callback.
func WithHPACK(hp *HPACK) Option {
	return func(s *Session) { s.hp = hp }
}

// New builds a Session. isLocalOdd selects the parity of locally
// initiated stream ids: true for a client (odd ids, starting at 1),
// false for a server (even ids, starting at 2) — "parity fixed at
// construction" per §3.
func New(isLocalOdd bool, sink h2engine.Sink, opts ...Option) *Session {
	s := &Session{
		sink:                 sink,
		isLocalOdd:           isLocalOdd,
		streams:              make(map[uint32]*stream.Stream),
		priorityStreams:      make(map[uint32]struct{}),
		maxLocalStreams:      h2engine.DefaultMaxConcurrentStreams,
		maxTotalLocalStreams: 1 << 30, // §3 "bounded by 2^31/2"
		localSettings:        h2engine.DefaultSettings(),
		remoteSettings:       h2engine.DefaultSettings(),
		logger:               h2engine.NopLogger,
	}
	if isLocalOdd {
		s.localNextID = 1
	} else {
		s.localNextID = 2
	}
	s.fc = flowcontrol.NewController(int32(s.localSettings.InitialWindowSize))

	for _, opt := range opts {
		opt(s)
	}

	if s.hp == nil {
		s.hp = NewHPACK(func(hpack.HeaderField) {})
	}

	if s.idleTimeout > 0 {
		s.armIdleTimer()
	}

	return s
}

// CloseState returns the current connection close-state.
func (s *Session) CloseState() CloseState {
	return CloseState(atomic.LoadInt32(&s.closeState))
}

func (s *Session) setCloseState(cs CloseState) {
	atomic.StoreInt32(&s.closeState, int32(cs))
}

// LastRemoteStreamID returns the highest stream id ever observed from
// the peer.
func (s *Session) LastRemoteStreamID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRemoteStreamID
}

// Stream looks up an existing stream by id.
func (s *Session) Stream(id uint32) (*stream.Stream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[id]
	return st, ok
}

// StreamCount returns the number of streams currently tracked (open or
// closing), used to detect the "streams == 0" transition of §4.C.
func (s *Session) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

func (s *Session) touchIdle() {
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.idleTimeout)
	}
}

func (s *Session) armIdleTimer() {
	s.idleTimer = time.AfterFunc(s.idleTimeout, s.onIdleTimeout)
}

// onIdleTimeout drives §5 "Session idle timeout": first a GOAWAY(NO_ERROR)
// through SendGoAway, whose last-stream-id is the last remote stream id
// (so it is not a graceful GOAWAY in the GoAwayFrame.Graceful sense),
// then — once idleTimeout elapses again — Terminate, which sends a second
// GOAWAY and closes the session.
func (s *Session) onIdleTimeout() {
	if s.CloseState() == NotClosed {
		s.logger.Printf("h2engine/session: idle timeout, sending GOAWAY")
		s.SendGoAway(h2engine.NoError, "idle timeout")
		s.idleTimer.Reset(s.idleTimeout)
		return
	}
	s.logger.Printf("h2engine/session: still idle after grace period, terminating")
	s.Terminate(h2engine.NoError, "idle timeout")
}

// registerRemoteStream installs a newly accepted remote stream,
// enforcing the monotonic id rule (§3 invariant 1) and the concurrent
// stream cap (§4.C HEADERS handling).
func (s *Session) registerRemoteStream(id uint32, st *stream.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id <= s.lastRemoteStreamID {
		return h2engine.NewConnError(h2engine.ProtocolError, "stream id not monotonically increasing")
	}
	if _, exists := s.streams[id]; exists {
		return h2engine.NewConnError(h2engine.ProtocolError, "duplicate stream id")
	}
	if uint32(s.remoteOpenCount) >= s.localSettings.MaxConcurrentStreams {
		return h2engine.NewStreamError(id, h2engine.RefusedStream, "max concurrent streams exceeded")
	}

	s.lastRemoteStreamID = id
	s.streams[id] = st
	s.remoteOpenCount++

	return nil
}

// removeStream drops a stream from the map once UpdateClose reports it
// fully closed, and runs zeroAction if the drained count just hit zero
// while the session is draining (§4.C "zeroStreamsAction").
func (s *Session) removeStream(id uint32) {
	s.mu.Lock()
	delete(s.streams, id)
	remaining := len(s.streams)
	s.mu.Unlock()

	if remaining == 0 && s.CloseState().Draining() {
		s.goAwayMu.Lock()
		action := s.zeroAction
		s.goAwayMu.Unlock()
		if action != nil {
			s.closeOnce.Do(action)
		}
	}
}

// Terminate forcibly closes the session, failing every stream's pending
// work, used for idle timeout and fatal connection errors alike.
func (s *Session) Terminate(code h2engine.ErrorCode, reason string) {
	prior := s.CloseState()
	s.setCloseState(Closed)

	s.mu.Lock()
	streams := make([]*stream.Stream, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	s.streams = make(map[uint32]*stream.Stream)
	s.mu.Unlock()

	for _, st := range streams {
		st.Reset(code)
	}

	if prior != Closing {
		s.SendGoAway(code, reason)
	}

	if s.listener.OnClose != nil {
		s.listener.OnClose()
	}
}
