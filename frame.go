package h2engine

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/dgrr/h2engine/internal/wireutil"
)

// FrameType is the one-byte frame type field of the 9-byte frame header
// (https://httpwg.org/specs/rfc7540.html#FrameHeader).
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameResetStream  FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9

	// FramePreface and FrameDisconnect are pseudo-frames the session uses
	// internally to drive the dispatch switch for the two events that
	// aren't really wire frames (§3 Frame tagged variant).
	FramePreface    FrameType = 0xfe
	FrameDisconnect FrameType = 0xff
)

func (ft FrameType) String() string {
	switch ft {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameResetStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GO_AWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	case FramePreface:
		return "PREFACE"
	case FrameDisconnect:
		return "DISCONNECT"
	}
	return "UNKNOWN"
}

// FrameFlags is the one-byte flags field.
type FrameFlags uint8

const (
	FlagAck        FrameFlags = 0x1
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20
)

func (f FrameFlags) Has(flag FrameFlags) bool { return f&flag == flag }
func (f FrameFlags) Add(flag FrameFlags) FrameFlags { return f | flag }

// Frame is the tagged-variant payload every concrete frame type
// implements (§9 "deep inheritance of frame types" → single-match tagged
// variant).
type Frame interface {
	Type() FrameType
	Reset()
	Serialize(fr *FrameHeader)
	Deserialize(fr *FrameHeader) error
}

const (
	// DefaultFrameSize is the 9-byte wire frame header size.
	DefaultFrameSize = 9
	defaultMaxLen    = 1 << 14

	// Preface is the 24-byte HTTP/2 connection preface (§6).
	Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"
)

var (
	ErrUnknownFrameType = fmt.Errorf("unknown frame type")
	ErrMissingBytes     = fmt.Errorf("not enough bytes to decode frame")
	ErrPayloadExceeds   = fmt.Errorf("frame payload exceeds the negotiated maximum size")
)

var framePool = [FrameContinuation + 1]sync.Pool{
	FrameData:         {New: func() interface{} { return &DataFrame{} }},
	FrameHeaders:      {New: func() interface{} { return &HeadersFrame{} }},
	FramePriority:     {New: func() interface{} { return &PriorityFrame{} }},
	FrameResetStream:  {New: func() interface{} { return &RstStreamFrame{} }},
	FrameSettings:     {New: func() interface{} { return &SettingsFrame{} }},
	FramePushPromise:  {New: func() interface{} { return &PushPromiseFrame{} }},
	FramePing:         {New: func() interface{} { return &PingFrame{} }},
	FrameGoAway:       {New: func() interface{} { return &GoAwayFrame{} }},
	FrameWindowUpdate: {New: func() interface{} { return &WindowUpdateFrame{} }},
	FrameContinuation: {New: func() interface{} { return &ContinuationFrame{} }},
}

// AcquireFrame returns a pooled, reset Frame value of the given type.
func AcquireFrame(t FrameType) Frame {
	if t > FrameContinuation {
		return nil
	}
	fr := framePool[t].Get().(Frame)
	fr.Reset()
	return fr
}

// ReleaseFrame returns fr to its type pool.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}
	t := fr.Type()
	if t > FrameContinuation {
		return
	}
	framePool[t].Put(fr)
}

var frameHeaderPool = sync.Pool{New: func() interface{} { return &FrameHeader{} }}

// FrameHeader is the 9-byte frame header plus its typed payload, the unit
// the frame codec (§1, an external collaborator) produces and consumes.
//
// A FrameHeader instance MUST NOT be used from more than one goroutine at
// a time.
type FrameHeader struct {
	length int
	kind   FrameType
	flags  FrameFlags
	stream uint32

	maxLen uint32

	rawHeader [DefaultFrameSize]byte
	payload   []byte

	fr Frame
}

// AcquireFrameHeader returns a pooled, reset FrameHeader.
func AcquireFrameHeader() *FrameHeader {
	fr := frameHeaderPool.Get().(*FrameHeader)
	fr.Reset()
	return fr
}

// ReleaseFrameHeader releases fr's body frame and returns fr to the pool.
func ReleaseFrameHeader(fr *FrameHeader) {
	ReleaseFrame(fr.fr)
	fr.fr = nil
	frameHeaderPool.Put(fr)
}

func (frh *FrameHeader) Reset() {
	frh.kind = 0
	frh.flags = 0
	frh.stream = 0
	frh.length = 0
	frh.maxLen = defaultMaxLen
	frh.fr = nil
	frh.payload = frh.payload[:0]
}

func (frh *FrameHeader) Type() FrameType     { return frh.kind }
func (frh *FrameHeader) Flags() FrameFlags   { return frh.flags }
func (frh *FrameHeader) SetFlags(f FrameFlags) { frh.flags = f }
func (frh *FrameHeader) Stream() uint32      { return frh.stream }
func (frh *FrameHeader) SetStream(id uint32) { frh.stream = id & (1<<31 - 1) }
func (frh *FrameHeader) Len() int            { return frh.length }
func (frh *FrameHeader) MaxLen() uint32      { return frh.maxLen }
func (frh *FrameHeader) SetMaxLen(n uint32)  { frh.maxLen = n }

// FlowControlLength is DATA's payload+padding length, the quantity that
// counts against flow-control windows (§3).
func (frh *FrameHeader) FlowControlLength() int {
	if frh.kind != FrameData {
		return 0
	}
	return frh.length
}

func (frh *FrameHeader) Body() Frame { return frh.fr }

func (frh *FrameHeader) SetBody(fr Frame) {
	if fr == nil {
		panic("h2engine: frame body cannot be nil")
	}
	frh.kind = fr.Type()
	frh.fr = fr
}

func (frh *FrameHeader) setPayload(b []byte) {
	frh.payload = append(frh.payload[:0], b...)
}

func (frh *FrameHeader) Payload() []byte { return frh.payload }

func (frh *FrameHeader) checkLen() error {
	if frh.maxLen != 0 && frh.length > int(frh.maxLen) {
		return ErrPayloadExceeds
	}
	return nil
}

func (frh *FrameHeader) parseValues(header []byte) {
	frh.length = int(wireutil.BytesToUint24(header[:3]))
	frh.kind = FrameType(header[3])
	frh.flags = FrameFlags(header[4])
	frh.stream = wireutil.BytesToUint32(header[5:]) & (1<<31 - 1)
}

func (frh *FrameHeader) buildHeader(header []byte) {
	wireutil.Uint24ToBytes(header[:3], uint32(frh.length))
	header[3] = byte(frh.kind)
	header[4] = byte(frh.flags)
	wireutil.Uint32ToBytes(header[5:], frh.stream)
}

// ReadFrameFrom reads one frame (header + payload) from br, enforcing the
// negotiated max frame size.
func ReadFrameFrom(br *bufio.Reader, maxFrameSize uint32) (*FrameHeader, error) {
	frh := AcquireFrameHeader()
	frh.maxLen = maxFrameSize
	if _, err := frh.readFrom(br); err != nil {
		ReleaseFrameHeader(frh)
		return nil, err
	}
	return frh, nil
}

func (frh *FrameHeader) readFrom(br *bufio.Reader) (int64, error) {
	header, err := br.Peek(DefaultFrameSize)
	if err != nil {
		return -1, err
	}
	_, _ = br.Discard(DefaultFrameSize)

	rn := int64(DefaultFrameSize)

	frh.parseValues(header)
	if err := frh.checkLen(); err != nil {
		return rn, err
	}

	if frh.kind > FrameContinuation {
		_, _ = br.Discard(frh.length)
		return rn, ErrUnknownFrameType
	}
	frh.fr = AcquireFrame(frh.kind)

	if frh.length > 0 {
		frh.payload = wireutil.Resize(frh.payload, frh.length)
		n, err := io.ReadFull(br, frh.payload)
		rn += int64(n)
		if err != nil {
			return rn, err
		}
	}

	return rn, frh.fr.Deserialize(frh)
}

// WriteTo serializes the body frame and writes the wire bytes to w.
func (frh *FrameHeader) WriteTo(w io.Writer) (int64, error) {
	frh.fr.Serialize(frh)
	frh.length = len(frh.payload)
	frh.buildHeader(frh.rawHeader[:])

	var wb int64
	n, err := w.Write(frh.rawHeader[:])
	wb += int64(n)
	if err != nil {
		return wb, err
	}
	n, err = w.Write(frh.payload)
	wb += int64(n)
	return wb, err
}
