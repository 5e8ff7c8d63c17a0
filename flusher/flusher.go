// Package flusher implements the Frame Flusher of §4.D: a
// single-consumer serial queue that gather-writes outbound frames,
// applies flow control to DATA entries as they are generated, and
// enforces per-frame/per-message write timeouts. It is grounded on the
// teacher's serverConn.writeLoop (batched sequential writes over a
// channel of *FrameHeader), generalized into an explicit queue so PING
// can be prepended and DATA can be split across flow-control-limited
// chunks.
package flusher

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dgrr/h2engine"
	"github.com/dgrr/h2engine/flowcontrol"
	"github.com/valyala/bytebufferpool"
)

// Endpoint is the transport contract the flusher writes to (§6
// "Endpoint contract"), narrowed to the write/close half — reads belong
// to the session's own read loop.
type Endpoint interface {
	// Write performs a gather write, returning only once every byte
	// across every buffer has been accepted or an error occurs; there is
	// no partial success (§6).
	Write(buffers net.Buffers) error

	// Close idempotently tears the transport down. cause is nil for a
	// clean shutdown.
	Close(cause error) error
}

// State is the flusher loop's outcome after one drain pass (§4.D "State
// transitions").
type State int32

const (
	StateIdle State = iota
	StateScheduled
	StateSucceeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateScheduled:
		return "SCHEDULED"
	case StateSucceeded:
		return "SUCCEEDED"
	}
	return "UNKNOWN"
}

const defaultMaxGather = 64

// defaultBatchThreshold is the largest single entry's wire size that is
// worth copying into the shared batch buffer rather than referencing
// directly (§4.D "small payload ... batch hint set").
const defaultBatchThreshold = 512

// Option configures a Flusher at construction.
type Option func(*Flusher)

func WithMaxGather(n int) Option {
	return func(f *Flusher) { f.maxGather = n }
}

func WithFrameTimeout(d time.Duration) Option {
	return func(f *Flusher) { f.frameTimeout = d }
}

func WithMessageTimeout(d time.Duration) Option {
	return func(f *Flusher) { f.messageTimeout = d }
}

func WithLogger(l h2engine.Logger) Option {
	return func(f *Flusher) { f.logger = l }
}

// Flusher is the serial outbound writer described by §4.D. It satisfies
// h2engine.Sink, so a Session can Enqueue into it without either package
// importing the other's concrete type.
type Flusher struct {
	endpoint Endpoint
	logger   h2engine.Logger

	maxGather      int
	frameTimeout   time.Duration
	messageTimeout time.Duration

	mu       sync.Mutex
	queue    []*entry
	running  bool
	closed   bool
	timeouts timeoutHeap

	currentMessageDeadline time.Time

	timeoutTimer *time.Timer
}

// New builds a Flusher writing to endpoint.
func New(endpoint Endpoint, opts ...Option) *Flusher {
	f := &Flusher{
		endpoint:  endpoint,
		logger:    h2engine.NopLogger,
		maxGather: defaultMaxGather,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ h2engine.Sink = (*Flusher)(nil)

// Enqueue implements h2engine.Sink (§4.D "Queue discipline").
func (f *Flusher) Enqueue(oe *h2engine.OutboundEntry) {
	now := time.Now()
	e := &entry{OutboundEntry: oe, heapIndex: -1}

	frameTimeout := time.Duration(oe.FrameTimeoutNanos)
	if frameTimeout == 0 {
		frameTimeout = f.frameTimeout
	}
	if frameTimeout > 0 {
		e.frameDeadline = now.Add(frameTimeout)
	}

	messageTimeout := time.Duration(oe.MessageTimeoutNanos)
	if messageTimeout == 0 {
		messageTimeout = f.messageTimeout
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		e.complete(errFlusherClosed)
		return
	}

	if messageTimeout > 0 {
		if oe.Data != nil && !f.currentMessageDeadline.IsZero() {
			// CONTINUATION/subsequent DATA of an in-flight message
			// inherits the message's existing deadline rather than
			// starting a fresh one (§4.D "Timeout computation").
			e.messageDeadline = f.currentMessageDeadline
		} else {
			e.messageDeadline = now.Add(messageTimeout)
			if oe.Data != nil {
				f.currentMessageDeadline = e.messageDeadline
			}
		}
	}

	if e.hasDeadline() && e.expired(now) {
		f.mu.Unlock()
		e.complete(timeoutError(e))
		return
	}

	if oe.Prepend {
		f.queue = append([]*entry{e}, f.queue...)
	} else {
		f.queue = append(f.queue, e)
	}
	if e.hasDeadline() {
		f.timeouts.push(e)
	}
	f.mu.Unlock()

	f.rearmTimeout()
	f.kick()
}

// Kick re-runs the drain loop; callers trigger this after a WINDOW_UPDATE
// unstalls a DATA entry (§4.D "re-kicked by ... window update").
func (f *Flusher) Kick() { f.kick() }

// kick is the "iterating callback" of §5: any goroutine may attempt to
// start the loop, but only one succeeds at a time, mirroring
// session.drainSlots' single-entrant pattern.
func (f *Flusher) kick() {
	f.mu.Lock()
	if f.running || f.closed {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	for {
		state := f.runOnce()
		if state != StateSucceeded {
			break
		}
	}

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

// runOnce drains up to maxGather entries, issues one gather write, and
// reports the resulting state.
func (f *Flusher) runOnce() State {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return StateIdle
	}

	batch, buffers, stalled := f.collectLocked()
	f.mu.Unlock()

	// A stalled DATA entry may still have produced wire bytes from
	// chunks before it stalled (or even from itself, if it is not yet
	// complete), which must go out even though nothing in batch
	// completed this pass.
	if len(buffers) == 0 {
		return StateIdle
	}

	err := f.endpoint.Write(buffers)

	for _, e := range batch {
		if err == nil {
			e.complete(nil)
		} else {
			e.complete(err)
		}
	}

	if err != nil {
		f.abort(err)
		return StateIdle
	}

	if stalled {
		return StateIdle
	}
	return StateSucceeded
}

// collectLocked builds one gather-write window per §4.D "Gather-write
// batching": batchable entries are copied into a shared buffer (flushed
// as a single net.Buffers element whenever a non-batchable entry is hit
// or the window ends), the rest reference their own generated bytes
// directly. Caller must hold f.mu on entry; it is still held on return
// (briefly released around each e.complete call, never across a write).
func (f *Flusher) collectLocked() (batch []*entry, buffers net.Buffers, stalled bool) {
	batchBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(batchBuf)

	flushBatch := func() {
		if batchBuf.Len() > 0 {
			buffers = append(buffers, append([]byte(nil), batchBuf.B...))
			batchBuf.Reset()
		}
	}

	for len(f.queue) > 0 && len(batch) < f.maxGather {
		e := f.queue[0]

		if e.shouldDrop() {
			f.queue = f.queue[1:]
			f.removeTimeoutLocked(e)
			f.mu.Unlock()
			e.complete(errDropped)
			f.mu.Lock()
			continue
		}

		var wire []byte
		var err error
		complete := true
		if e.isData() {
			wire, err = generateDataChunk(e)
			if wire == nil && err == nil {
				// Stalled: no sendable window right now. Leave it at
				// the head and stop collecting for this pass.
				stalled = true
				break
			}
			complete = err != nil || e.DataRemaining == 0
		} else {
			wire, err = serializeControl(e)
		}

		if complete {
			f.queue = f.queue[1:]
			f.removeTimeoutLocked(e)
		}

		if err != nil {
			f.mu.Unlock()
			e.complete(err)
			f.mu.Lock()
			continue
		}

		if len(wire) <= defaultBatchThreshold && !e.Prepend {
			batchBuf.Write(wire)
		} else {
			// Once a non-batchable frame is hit, whatever's accumulated
			// so far must be flushed first to preserve wire order.
			flushBatch()
			buffers = append(buffers, wire)
		}

		if !complete {
			// A DATA entry with more chunks queued behind it stays at the
			// head of f.queue; its bytes go out now, but its completion
			// callback only fires once the whole entry has been written,
			// so it is not added to batch this round.
			continue
		}
		batch = append(batch, e)
	}

	flushBatch()

	return batch, buffers, stalled
}

// generateDataChunk computes the flow-control- and max-frame-size-limited
// chunk for a DATA entry and serializes it, or returns (nil, nil) if
// currently stalled (§4.D "Data framing and flow control"). It mutates
// e.Data/e.DataRemaining in place; the caller pops e from the queue only
// once e.DataRemaining reaches zero.
func generateDataChunk(e *entry) ([]byte, error) {
	length := e.DataRemaining
	if e.SessionSendWindow != nil && e.StreamSendWindow != nil {
		length = flowcontrol.DataSendLength(e.DataRemaining, e.SessionSendWindow, e.StreamSendWindow)
	}
	if e.MaxFrameSize > 0 && length > e.MaxFrameSize {
		length = e.MaxFrameSize
	}

	if length == 0 && e.DataRemaining > 0 {
		return nil, nil
	}

	chunk := e.Data[:length]
	e.Data = e.Data[length:]
	e.DataRemaining -= length

	if e.SessionSendWindow != nil {
		e.SessionSendWindow.Consume(int32(length))
	}
	if e.StreamSendWindow != nil {
		e.StreamSendWindow.Consume(int32(length))
	}

	df := h2engine.AcquireFrame(h2engine.FrameData).(*h2engine.DataFrame)
	df.SetData(chunk)
	df.SetEndStream(e.DataRemaining == 0 && e.EndStream)

	frh := h2engine.AcquireFrameHeader()
	frh.SetStream(e.StreamID)
	frh.SetBody(df)

	var buf bytes.Buffer
	if _, err := frh.WriteTo(&buf); err != nil {
		h2engine.ReleaseFrameHeader(frh)
		return nil, err
	}
	h2engine.ReleaseFrameHeader(frh)

	return buf.Bytes(), nil
}

func serializeControl(e *entry) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.Frame.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// abort implements §4.D's WriteTimeoutException / write-failure path:
// every queued and in-flight entry fails and the endpoint closes.
func (f *Flusher) abort(cause error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	pending := f.queue
	f.queue = nil
	f.timeouts = nil
	if f.timeoutTimer != nil {
		f.timeoutTimer.Stop()
	}
	f.mu.Unlock()

	for _, e := range pending {
		e.complete(cause)
	}

	if err := f.endpoint.Close(cause); err != nil {
		f.logger.Printf("h2engine/flusher: close after abort: %s\n", err)
	}
}

// Fail drains and fails every pending entry without writing anything
// further (§5 "fail(session) drains and fails all pending entries
// atomically").
func (f *Flusher) Fail(cause error) { f.abort(cause) }

func (f *Flusher) removeTimeoutLocked(e *entry) {
	if e.heapIndex >= 0 {
		f.timeouts.removeAt(e.heapIndex)
	}
}

func (f *Flusher) rearmTimeout() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timeoutTimer != nil {
		f.timeoutTimer.Stop()
		f.timeoutTimer = nil
	}

	next := f.timeouts.peek()
	if next == nil {
		return
	}
	d := time.Until(next.deadline())
	if d < 0 {
		d = 0
	}
	f.timeoutTimer = time.AfterFunc(d, f.checkTimeouts)
}

func (f *Flusher) checkTimeouts() {
	now := time.Now()

	f.mu.Lock()
	e := f.timeouts.peek()
	expired := e != nil && e.expired(now)
	f.mu.Unlock()

	if !expired {
		f.rearmTimeout()
		return
	}

	f.abort(timeoutError(e))
}

var (
	errFlusherClosed = fmt.Errorf("flusher: closed")
	errDropped       = fmt.Errorf("flusher: entry dropped (stream reset)")
)

// timeoutError reports which of the two deadline classes fired, reusing
// the engine-wide WriteTimeoutError type rather than a package-local one.
func timeoutError(e *entry) error {
	if !e.frameDeadline.IsZero() && (e.messageDeadline.IsZero() || e.frameDeadline.Before(e.messageDeadline) || e.frameDeadline.Equal(e.messageDeadline)) {
		return &h2engine.WriteTimeoutError{Message: "per-frame deadline exceeded"}
	}
	return &h2engine.WriteTimeoutError{Message: "per-message deadline exceeded"}
}
