package session

import (
	"bytes"
	"sync"

	"golang.org/x/net/http2/hpack"
)

// HPACK wraps golang.org/x/net/http2/hpack's encoder/decoder pair as the
// opaque field (de)compressor §1/§6 describe HPACK as ("HPACK encoder/
// decoder (assumed correct, exposed as an opaque field (de)compressor)").
// The core never reimplements header compression; it only resizes the
// dynamic tables. The session applies the peer's SETTINGS_HEADER_TABLE_SIZE
// to the encoder (SetEncoderMaxDynamicTableSize).
type HPACK struct {
	mu  sync.Mutex
	buf bytes.Buffer
	enc *hpack.Encoder
	dec *hpack.Decoder
}

// NewHPACK builds an HPACK compressor pair. onField is invoked by the
// decoder for every header field as it streams in.
func NewHPACK(onField func(hpack.HeaderField)) *HPACK {
	h := &HPACK{}
	h.enc = hpack.NewEncoder(&h.buf)
	h.dec = hpack.NewDecoder(4096, onField)
	return h
}

// EncodeField returns one field's HPACK encoding as a fresh slice; the
// caller appends it to the header block it is building.
func (h *HPACK) EncodeField(f hpack.HeaderField) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf.Reset()
	if err := h.enc.WriteField(f); err != nil {
		return nil, err
	}
	out := make([]byte, h.buf.Len())
	copy(out, h.buf.Bytes())
	return out, nil
}

// Decode feeds a (possibly partial) header block fragment to the
// decoder; field callbacks fire synchronously from inside Write.
func (h *HPACK) Decode(headerBlock []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.dec.Write(headerBlock)
	return err
}

// Close finalizes a decode pass at END_HEADERS, surfacing any
// incomplete-field error as a COMPRESSION_ERROR candidate.
func (h *HPACK) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dec.Close()
}

// SetMaxDynamicTableSize applies SETTINGS_HEADER_TABLE_SIZE to the
// decoder (§4.C SETTINGS "HEADER_TABLE_SIZE → HPACK decoder capacity").
func (h *HPACK) SetMaxDynamicTableSize(n uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dec.SetMaxDynamicTableSize(n)
}

// SetEncoderMaxDynamicTableSize bounds how large a table the encoder
// will build when told the peer's HEADER_TABLE_SIZE.
func (h *HPACK) SetEncoderMaxDynamicTableSize(n uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enc.SetMaxDynamicTableSize(n)
}
