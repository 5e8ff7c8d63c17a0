package h2engine

import "github.com/dgrr/h2engine/internal/wireutil"

// MaxStreamID is the last admissible stream id (§8 boundary behavior).
const MaxStreamID uint32 = 1<<31 - 1

// GoAwayFrame announces the highest stream-id the sender will process.
// A *graceful* GoAwayFrame has LastStreamID == MaxStreamID and
// Code == NoError (§4.C close-state machine).
// https://tools.ietf.org/html/rfc7540#section-6.8
type GoAwayFrame struct {
	lastStreamID uint32
	code         ErrorCode
	debugData    []byte
}

func (g *GoAwayFrame) Type() FrameType { return FrameGoAway }

func (g *GoAwayFrame) Reset() {
	g.lastStreamID = 0
	g.code = 0
	g.debugData = g.debugData[:0]
}

func (g *GoAwayFrame) LastStreamID() uint32    { return g.lastStreamID }
func (g *GoAwayFrame) SetLastStreamID(id uint32) { g.lastStreamID = id & (1<<31 - 1) }
func (g *GoAwayFrame) Code() ErrorCode         { return g.code }
func (g *GoAwayFrame) SetCode(c ErrorCode)     { g.code = c }
func (g *GoAwayFrame) DebugData() []byte       { return g.debugData }
func (g *GoAwayFrame) SetDebugData(b []byte)   { g.debugData = append(g.debugData[:0], b...) }

// Graceful reports whether this GOAWAY is the "no more new streams, let
// existing finish" announcement rather than the terminal one.
func (g *GoAwayFrame) Graceful() bool {
	return g.lastStreamID == MaxStreamID && g.code == NoError
}

func (g *GoAwayFrame) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 8 {
		return ErrMissingBytes
	}
	g.lastStreamID = wireutil.BytesToUint32(fr.payload) & (1<<31 - 1)
	g.code = ErrorCode(wireutil.BytesToUint32(fr.payload[4:]))
	if len(fr.payload) > 8 {
		g.debugData = append(g.debugData[:0], fr.payload[8:]...)
	}
	return nil
}

func (g *GoAwayFrame) Serialize(fr *FrameHeader) {
	fr.payload = wireutil.AppendUint32Bytes(fr.payload[:0], g.lastStreamID)
	fr.payload = wireutil.AppendUint32Bytes(fr.payload, uint32(g.code))
	fr.payload = append(fr.payload, g.debugData...)
}
