package h2engine

import "github.com/dgrr/h2engine/internal/wireutil"

// WindowUpdateFrame credits a session- or stream-level flow-control
// window. https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdateFrame struct {
	increment uint32
}

func (w *WindowUpdateFrame) Type() FrameType        { return FrameWindowUpdate }
func (w *WindowUpdateFrame) Reset()                 { w.increment = 0 }
func (w *WindowUpdateFrame) Increment() uint32       { return w.increment }
func (w *WindowUpdateFrame) SetIncrement(n uint32)   { w.increment = n & (1<<31 - 1) }

func (w *WindowUpdateFrame) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		return ErrMissingBytes
	}
	w.increment = wireutil.BytesToUint32(fr.payload) & (1<<31 - 1)
	return nil
}

func (w *WindowUpdateFrame) Serialize(fr *FrameHeader) {
	fr.payload = wireutil.AppendUint32Bytes(fr.payload[:0], w.increment)
}
