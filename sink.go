package h2engine

import "github.com/dgrr/h2engine/flowcontrol"

// Sink is how a Session hands outbound frames to a Frame Flusher (§4.D)
// without the Session package importing the Flusher package directly,
// avoiding the Session↔Flusher object-graph cycle called out in §9's
// design notes: the Flusher only ever sees this narrow capability.
type Sink interface {
	// Enqueue appends e to the flusher's queue, or inserts it at the
	// head when e.Prepend is set (PING replies and other high-priority
	// control frames, §4.D "Queue discipline").
	Enqueue(e *OutboundEntry)

	// Kick re-runs the flusher's drain loop without enqueuing anything
	// new. The session calls this after crediting an inbound
	// WINDOW_UPDATE, since §4.D lists a window update as one of the
	// three events ("new enqueue", "write completion", "window update")
	// that must resume a stalled DataEntry.
	Kick()
}

// OutboundEntry is one Frame Flusher queue entry (§3 "Flusher Entry").
type OutboundEntry struct {
	Frame    *FrameHeader
	StreamID uint32
	Prepend  bool

	// Data, when non-nil, marks this as a DataEntry: the flusher slices
	// off up to DataSendLength bytes per iteration and builds a fresh
	// DATA frame for each slice, rather than writing Frame verbatim
	// (§4.D "Data framing and flow control"). EndStream applies only to
	// the final slice, once the whole of Data has been written.
	Data      []byte
	EndStream bool

	// DataRemaining is the number of still-unsent payload bytes for a
	// DATA entry; zero for control frames, which are single-shot.
	DataRemaining int

	// MaxFrameSize caps each generated DATA chunk at the peer's
	// negotiated SETTINGS_MAX_FRAME_SIZE. Zero means no cap beyond the
	// flow-control window.
	MaxFrameSize int

	// SessionSendWindow/StreamSendWindow, when both are non-nil, are
	// consulted by the flusher to compute how many bytes of a DATA entry
	// may be written right now (§4.D "Data framing and flow control").
	// Each non-nil window is charged for every chunk written.
	SessionSendWindow *flowcontrol.Window
	StreamSendWindow  *flowcontrol.Window

	// FrameTimeoutNanos/MessageTimeoutNanos are the two timeout classes
	// of §4.D "Timeouts"; zero means the flusher's own configured
	// timeout applies, which is unbounded unless set.
	FrameTimeoutNanos   int64
	MessageTimeoutNanos int64

	// ShouldDrop reports whether this entry must be skipped at
	// generation time rather than written, because its stream was reset
	// or failed after it was enqueued (§5 "Cancellation").
	ShouldDrop func() bool

	// OnComplete fires exactly once, after a successful write or with a
	// failure (§3 invariant 5).
	OnComplete func(error)
}
