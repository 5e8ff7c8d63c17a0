// Package stream implements the per-stream lifecycle state machine of
// §4.B: the RFC 7540 §5.1 state transitions expressed as a compact
// two-bit (local-closed, remote-closed) bitmap, plus idle timeout and
// data ingress bookkeeping.
package stream

import (
	"sync"
	"time"

	"github.com/dgrr/h2engine"
	"github.com/dgrr/h2engine/flowcontrol"
)

// State is the RFC 7540 §5.1 stream state, derived from the
// (localClosed, remoteClosed) bitmap rather than stored redundantly.
type State uint8

const (
	StateIdle State = iota
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpen:
		return "OPEN"
	case StateHalfClosedLocal:
		return "HALF_CLOSED_LOCAL"
	case StateHalfClosedRemote:
		return "HALF_CLOSED_REMOTE"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// CloseEvent is the trigger passed to UpdateClose (§4.B).
type CloseEvent int

const (
	// BeforeSend fires when we are about to send a frame carrying
	// END_STREAM, before the flusher has actually written it.
	BeforeSend CloseEvent = iota
	// AfterSend fires once that frame has actually been flushed.
	AfterSend
	// Received fires when we observe a frame from the peer; only one
	// carrying END_STREAM changes the close state. RST_STREAM is handled
	// by Reset, not by UpdateClose.
	Received
)

// Listener is the capability record a Stream notifies of lifecycle and
// data events (§9 "replace listener polymorphism with a capability
// record").
type Listener struct {
	OnData      func(data []byte, endStream bool)
	OnHeaders   func(headerBlock []byte, endStream bool)
	OnReset     func(code h2engine.ErrorCode)
	OnClosed    func()
	OnIdleTimeout func(err error)
}

// Stream is one HTTP/2 request/response exchange, per §3's Stream state
// and §4.B's operations.
type Stream struct {
	id      uint32
	isLocal bool

	sendWindow *flowcontrol.Window
	recvWindow *flowcontrol.Window

	mu            sync.Mutex
	localClosed   bool
	remoteClosed  bool
	committed     bool
	resetOrFailed bool

	idleTimeout  time.Duration
	idleTimer    *time.Timer

	listener Listener

	pending []pendingWrite
}

type pendingWrite struct {
	done func(error)
}

// New builds a Stream with the given id, parity, initial windows and
// idle timeout. idleTimeout of zero disables the idle timer.
func New(id uint32, isLocal bool, initialSendWindow, initialRecvWindow int32, idleTimeout time.Duration, l Listener) *Stream {
	s := &Stream{
		id:          id,
		isLocal:     isLocal,
		sendWindow:  flowcontrol.NewWindow(initialSendWindow),
		recvWindow:  flowcontrol.NewWindow(initialRecvWindow),
		idleTimeout: idleTimeout,
		listener:    l,
	}
	s.armIdleTimer()
	return s
}

func (s *Stream) ID() uint32                       { return s.id }
func (s *Stream) IsLocal() bool                    { return s.isLocal }
func (s *Stream) SendWindow() *flowcontrol.Window  { return s.sendWindow }
func (s *Stream) RecvWindow() *flowcontrol.Window  { return s.recvWindow }

// Committed reports whether at least one frame has been flushed for this
// stream to the transport (§3 glossary "Committed").
func (s *Stream) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// MarkCommitted records that the flusher has successfully written this
// stream's first frame.
func (s *Stream) MarkCommitted() {
	s.mu.Lock()
	s.committed = true
	s.mu.Unlock()
}

// ResetOrFailed reports whether Reset or OnIdleTimeout has already run.
func (s *Stream) ResetOrFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetOrFailed
}

// State derives the RFC 7540 state from the close bitmap.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Stream) stateLocked() State {
	switch {
	case s.localClosed && s.remoteClosed:
		return StateClosed
	case s.localClosed:
		return StateHalfClosedLocal
	case s.remoteClosed:
		return StateHalfClosedRemote
	default:
		return StateOpen
	}
}

// UpdateClose transitions the relevant close flag for the given event
// and reports whether this transition fully closed the stream (§4.B).
// The caller must remove the stream from the session's map when true is
// returned.
func (s *Stream) UpdateClose(endStream bool, event CloseEvent) bool {
	if !endStream && event != Received {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wasClosed := s.localClosed && s.remoteClosed

	switch event {
	case BeforeSend, AfterSend:
		if endStream {
			s.localClosed = true
		}
	case Received:
		// The peer's END_STREAM closes the remote half; a RST_STREAM
		// closes both halves through Reset instead (§4.B "any -> CLOSED").
		if endStream {
			s.remoteClosed = true
		}
	}

	nowClosed := s.localClosed && s.remoteClosed
	return nowClosed && !wasClosed
}

// Reset sends (conceptually — the caller's flusher actually writes it)
// RST_STREAM(code), marks the stream failed, and fails any pending
// callbacks (§4.B "reset(code)").
//
// ShouldSuppressFrame reports whether the caller must skip writing the
// RST_STREAM: a never-committed local stream's reset is dropped because
// the peer never saw the stream (§4.B tie-break).
func (s *Stream) Reset(code h2engine.ErrorCode) (shouldSuppressFrame bool) {
	s.mu.Lock()
	s.resetOrFailed = true
	s.localClosed = true
	s.remoteClosed = true
	suppress := s.isLocal && !s.committed
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.failPending(pending, &h2engine.StreamError{StreamID: s.id, Code: code, Reason: "stream reset"})

	if s.listener.OnReset != nil {
		s.listener.OnReset(code)
	}
	s.stopIdleTimer()
	if s.listener.OnClosed != nil {
		s.listener.OnClosed()
	}
	return suppress
}

// OnIdleTimeout fails pending data and resets the stream with
// CANCEL_STREAM_ERROR (§4.B).
func (s *Stream) OnIdleTimeout(err error) {
	if s.listener.OnIdleTimeout != nil {
		s.listener.OnIdleTimeout(err)
	}
	s.Reset(h2engine.CancelError)
}

func (s *Stream) armIdleTimer() {
	if s.idleTimeout <= 0 {
		return
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.OnIdleTimeout(errIdleTimeout)
	})
}

// Touch resets the idle deadline; called whenever a frame for this
// stream is processed (§3 "idleDeadline").
func (s *Stream) Touch() {
	s.mu.Lock()
	timer := s.idleTimer
	timeout := s.idleTimeout
	s.mu.Unlock()
	if timer != nil && timeout > 0 {
		timer.Reset(timeout)
	}
}

func (s *Stream) stopIdleTimer() {
	s.mu.Lock()
	timer := s.idleTimer
	s.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

// AddPending registers a completion callback to be invoked exactly once,
// either on success elsewhere in the caller or via failPending here
// (§3 invariant 5, §8 property 3).
func (s *Stream) AddPending(done func(error)) {
	s.mu.Lock()
	if s.resetOrFailed {
		s.mu.Unlock()
		done(errStreamFailed)
		return
	}
	s.pending = append(s.pending, pendingWrite{done: done})
	s.mu.Unlock()
}

func (s *Stream) failPending(pending []pendingWrite, err error) {
	for _, p := range pending {
		p.done(err)
	}
}

// OnDataFrame delivers inbound DATA bytes to the listener and touches
// the idle deadline (§4.B process()).
func (s *Stream) OnDataFrame(data []byte, endStream bool) {
	s.Touch()
	if s.listener.OnData != nil {
		s.listener.OnData(data, endStream)
	}
}

// OnHeadersFrame delivers an inbound (partial) header block.
func (s *Stream) OnHeadersFrame(headerBlock []byte, endStream bool) {
	s.Touch()
	if s.listener.OnHeaders != nil {
		s.listener.OnHeaders(headerBlock, endStream)
	}
}

var (
	errIdleTimeout  = idleTimeoutError{}
	errStreamFailed = streamFailedError{}
)

type idleTimeoutError struct{}

func (idleTimeoutError) Error() string { return "stream: idle timeout" }

type streamFailedError struct{}

func (streamFailedError) Error() string { return "stream: already reset or failed" }
