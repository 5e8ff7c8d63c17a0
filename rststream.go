package h2engine

import "github.com/dgrr/h2engine/internal/wireutil"

// RstStreamFrame abruptly terminates a stream.
// https://tools.ietf.org/html/rfc7540#section-6.4
type RstStreamFrame struct {
	code ErrorCode
}

func (r *RstStreamFrame) Type() FrameType   { return FrameResetStream }
func (r *RstStreamFrame) Reset()            { r.code = 0 }
func (r *RstStreamFrame) Code() ErrorCode   { return r.code }
func (r *RstStreamFrame) SetCode(c ErrorCode) { r.code = c }

func (r *RstStreamFrame) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		return ErrMissingBytes
	}
	r.code = ErrorCode(wireutil.BytesToUint32(fr.payload))
	return nil
}

func (r *RstStreamFrame) Serialize(fr *FrameHeader) {
	fr.payload = wireutil.AppendUint32Bytes(fr.payload[:0], uint32(r.code))
}
