// Package wireutil holds the small big-endian encode/decode helpers the
// frame codec needs; kept separate from the frame types themselves since
// every frame file needs them.
package wireutil

import "crypto/rand"

func Uint24ToBytes(b []byte, n uint32) {
	_ = b[2]
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

func BytesToUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func Uint32ToBytes(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

func AppendUint32Bytes(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func BytesToUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Resize grows b (reusing its backing array when possible) to neededLen.
func Resize(b []byte, neededLen int) []byte {
	b = b[:cap(b)]
	if n := neededLen - len(b); n > 0 {
		b = append(b, make([]byte, n)...)
	}
	return b[:neededLen]
}

// CutPadding strips a PADDED frame's leading pad-length byte and trailing
// pad bytes, returning the real payload.
func CutPadding(payload []byte, length int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errShortPadding
	}
	pad := int(payload[0])
	if length-pad-1 < 0 || len(payload) < length-pad {
		return nil, errShortPadding
	}
	return payload[1 : length-pad], nil
}

// AddPadding prepends a random pad length in [1, 256) and appends that many
// zero-valued pad bytes, mirroring the teacher's demo padding behavior but
// without leaking uninitialized memory.
func AddPadding(b []byte) []byte {
	var lenByte [1]byte
	_, _ = rand.Read(lenByte[:])
	n := int(lenByte[0])%255 + 1

	out := make([]byte, 0, len(b)+n+1)
	out = append(out, byte(n))
	out = append(out, b...)
	out = append(out, make([]byte, n)...)
	return out
}

var errShortPadding = shortPaddingError{}

type shortPaddingError struct{}

func (shortPaddingError) Error() string { return "padding exceeds frame length" }
