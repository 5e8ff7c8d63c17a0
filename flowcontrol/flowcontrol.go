// Package flowcontrol implements the credit-based send/receive window
// bookkeeping of §4.A: a Window type for the signed 32-bit counters, and
// a Controller that applies the session+stream dual-layer rules.
package flowcontrol

import (
	"fmt"
	"sync"
)

// MaxWindow is the largest legal window value (2^31-1).
const MaxWindow = 1<<31 - 1

// Window is a signed flow-control credit counter. Positive means credit
// remaining; it must never be driven below the protocol's legal floor.
type Window struct {
	mu sync.Mutex
	n  int64
}

// NewWindow returns a Window initialized to n.
func NewWindow(n int32) *Window {
	return &Window{n: int64(n)}
}

// Value returns the current credit.
func (w *Window) Value() int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int32(w.n)
}

// Consume subtracts n (a DATA frame length) from the window. It is legal
// for the result to go negative only transiently during concurrent
// accounting; callers detect genuine protocol underflow via Underflowed.
func (w *Window) Consume(n int32) int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.n -= int64(n)
	return int32(w.n)
}

// Underflowed reports whether the window has gone negative, the signal
// for a FLOW_CONTROL_ERROR (§4.A onDataReceived).
func (w *Window) Underflowed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n < 0
}

// ErrWindowOverflow is returned by Add when crediting would push the
// window above MaxWindow (§4.A windowUpdate, §8 boundary behavior).
var ErrWindowOverflow = fmt.Errorf("flowcontrol: window update overflows 2^31-1")

// Add credits delta to the window (a WINDOW_UPDATE), rejecting the
// update if it would overflow past MaxWindow.
func (w *Window) Add(delta int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.n + int64(delta)
	if next > MaxWindow {
		return ErrWindowOverflow
	}
	w.n = next
	return nil
}

// ApplyInitialWindowDelta shifts the window by delta in response to a
// SETTINGS_INITIAL_WINDOW_SIZE change (§4.A updateInitialStreamWindow).
// It uses the same overflow rule as Add since the result must still fit
// in the legal window range.
func (w *Window) ApplyInitialWindowDelta(delta int32) error {
	return w.Add(delta)
}

// Strategy decides when a receiver should emit a WINDOW_UPDATE as data
// is consumed by the application (§4.A "two strategies should be
// pluggable").
type Strategy interface {
	// OnDataConsumed is called after the application has finished with n
	// bytes of previously-received data. It reports the increment to
	// send (if any) and whether to emit it now.
	OnDataConsumed(n int) (increment uint32, emit bool)

	// OnIngress is called as each DATA frame arrives, before the
	// application consumes it, letting a strategy track totals.
	OnIngress(n int)
}

// SimpleStrategy emits a WINDOW_UPDATE once at least half of the
// initial window has been consumed without replenishment.
type SimpleStrategy struct {
	mu        sync.Mutex
	initial   uint32
	consumed  uint32
}

// NewSimpleStrategy builds a SimpleStrategy for a window whose initial
// size is initial.
func NewSimpleStrategy(initial uint32) *SimpleStrategy {
	return &SimpleStrategy{initial: initial}
}

func (s *SimpleStrategy) OnIngress(int) {}

func (s *SimpleStrategy) OnDataConsumed(n int) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed += uint32(n)
	if s.initial != 0 && s.consumed >= s.initial/2 {
		inc := s.consumed
		s.consumed = 0
		return inc, true
	}
	return 0, false
}

// BufferedStrategy only emits a WINDOW_UPDATE when the application
// explicitly signals DataConsumed; useful when the receiver wants to
// bound memory rather than window size.
type BufferedStrategy struct {
	mu       sync.Mutex
	buffered uint32
}

func (s *BufferedStrategy) OnIngress(n int) {
	s.mu.Lock()
	s.buffered += uint32(n)
	s.mu.Unlock()
}

// OnDataConsumed is a no-op for BufferedStrategy: use DataConsumed.
func (s *BufferedStrategy) OnDataConsumed(int) (uint32, bool) { return 0, false }

// DataConsumed is the explicit consumption signal (§4.A "buffered ...
// only emits after the receiving application signals dataConsumed").
func (s *BufferedStrategy) DataConsumed(n int) (increment uint32, emit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return 0, false
	}
	if uint32(n) > s.buffered {
		n = int(s.buffered)
	}
	s.buffered -= uint32(n)
	return uint32(n), n > 0
}

// Streamer is the minimal capability a Controller needs from a stream,
// kept narrow to avoid an import cycle between flowcontrol and stream
// (§9 "avoid back-pointers").
type Streamer interface {
	ID() uint32
	IsLocal() bool
	SendWindow() *Window
	RecvWindow() *Window
}

// Scope distinguishes a session-level failure from a stream-level one,
// needed because flow-control underflow is scoped differently depending
// on which window actually underflowed (§4.A).
type Scope int

const (
	ScopeStream Scope = iota
	ScopeSession
)

// Error reports a flow-control violation together with the scope at
// which it must be signaled.
type Error struct {
	Scope    Scope
	StreamID uint32
	Reason   string
}

func (e *Error) Error() string {
	if e.Scope == ScopeSession {
		return fmt.Sprintf("flow control error (session): %s", e.Reason)
	}
	return fmt.Sprintf("flow control error (stream=%d): %s", e.StreamID, e.Reason)
}

// Controller tracks the session-level send/recv windows and applies the
// dual-layer (session+stream) rules of §4.A to each DATA/WINDOW_UPDATE
// event.
type Controller struct {
	SessionSend *Window
	SessionRecv *Window
}

// NewController builds a Controller with both session windows seeded at
// initial.
func NewController(initial int32) *Controller {
	return &Controller{
		SessionSend: NewWindow(initial),
		SessionRecv: NewWindow(initial),
	}
}

// OnDataReceived applies an inbound DATA frame of n bytes to the session
// window and, when strm is non-nil, the stream window, returning a
// scoped *Error on underflow (§4.A onDataReceived).
//
// The session window is always credited even when the stream is absent,
// matching §4.C DATA dispatch ("always credit the session recvWindow").
func (c *Controller) OnDataReceived(strm Streamer, n int32) error {
	c.SessionRecv.Consume(n)

	if strm == nil {
		if c.SessionRecv.Underflowed() {
			return &Error{Scope: ScopeSession, Reason: "session receive window underflowed"}
		}
		return nil
	}

	strm.RecvWindow().Consume(n)

	switch {
	case strm.RecvWindow().Underflowed() && !c.SessionRecv.Underflowed():
		return &Error{Scope: ScopeStream, StreamID: strm.ID(), Reason: "stream receive window underflowed"}
	case c.SessionRecv.Underflowed():
		return &Error{Scope: ScopeSession, Reason: "session receive window underflowed"}
	}
	return nil
}

// OnDataSending reserves n bytes of outbound credit ahead of a write.
func (c *Controller) OnDataSending(strm Streamer, n int32) {
	c.SessionSend.Consume(n)
	if strm != nil {
		strm.SendWindow().Consume(n)
	}
}

// WindowUpdate credits delta to the session window (streamID==0) or the
// given stream's window, reporting overflow at the matching scope
// (§4.A windowUpdate, §8 "WINDOW_UPDATE that would make sendWindow =
// INT32_MAX exactly → allowed; one larger → FLOW_CONTROL_ERROR").
func (c *Controller) WindowUpdate(strm Streamer, delta int32) error {
	if strm == nil {
		if err := c.SessionSend.Add(delta); err != nil {
			return &Error{Scope: ScopeSession, Reason: err.Error()}
		}
		return nil
	}
	if err := strm.SendWindow().Add(delta); err != nil {
		return &Error{Scope: ScopeStream, StreamID: strm.ID(), Reason: err.Error()}
	}
	return nil
}

// UpdateInitialStreamWindow applies delta to every currently open
// stream's window: the remote-sourced send window if local (this side
// changed SETTINGS_INITIAL_WINDOW_SIZE for streams it receives data on)
// is not touched here — per §4.A, a local SETTINGS change shifts peers'
// view of streams opened locally (recv windows), and a remote SETTINGS
// change shifts the streams' send windows. `local` selects which.
func UpdateInitialStreamWindow(streams []Streamer, delta int32, local bool) error {
	for _, s := range streams {
		var w *Window
		if local {
			w = s.RecvWindow()
		} else {
			w = s.SendWindow()
		}
		if err := w.ApplyInitialWindowDelta(delta); err != nil {
			return &Error{Scope: ScopeSession, StreamID: s.ID(), Reason: err.Error()}
		}
	}
	return nil
}

// DataSendLength computes how many bytes of a pending DATA entry may be
// sent right now: min(dataRemaining, session.sendWindow, stream.sendWindow)
// (§4.D "Data framing and flow control").
func DataSendLength(dataRemaining int, sessionSend, streamSend *Window) int {
	length := dataRemaining
	if sw := int(sessionSend.Value()); sw < length {
		length = sw
	}
	if sw := int(streamSend.Value()); sw < length {
		length = sw
	}
	if length < 0 {
		length = 0
	}
	return length
}
