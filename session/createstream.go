package session

import (
	"github.com/dgrr/h2engine"
	"github.com/dgrr/h2engine/stream"
	"golang.org/x/net/http2/hpack"
)

// Header is one outbound header field, encoded through the session's
// HPACK encoder exactly as the wire decoder on the other end will see it
// (name/value pairs only — indexing decisions are the encoder's).
type Header = hpack.HeaderField

// OpenStream implements §4.C "Outbound stream creation (slot protocol)"
// end to end: it reserves a slot (guaranteeing id ordering), builds the
// new Stream, HPACK-encodes headers into one HEADERS frame followed by
// as many CONTINUATIONs as the negotiated max frame size demands, and
// fills the slot so the frames reach the sink in strict stream-id order
// even under concurrent callers.
//
// endStream marks the request as having no body (§4.B "open a
// locally-initiated stream").
func (s *Session) OpenStream(headers []Header, endStream bool, l stream.Listener) (*stream.Stream, error) {
	slot, err := s.ReserveSlot()
	if err != nil {
		return nil, err
	}

	st := stream.New(slot.ID(), true, int32(s.remoteSettings.InitialWindowSize), int32(s.localSettings.InitialWindowSize), s.idleTimeout, l)

	s.mu.Lock()
	s.streams[slot.ID()] = st
	s.mu.Unlock()

	entries, err := s.buildHeaderEntries(slot.ID(), headers, endStream)
	if err != nil {
		s.mu.Lock()
		delete(s.streams, slot.ID())
		s.mu.Unlock()
		slot.Fill(nil)
		return nil, err
	}

	slot.Fill(entries)

	return st, nil
}

// buildHeaderEntries HPACK-encodes headers into a HEADERS frame plus any
// CONTINUATION frames required to stay within the peer's
// SETTINGS_MAX_FRAME_SIZE (§3 invariant 3: "a HEADERS' CONTINUATIONs
// must be contiguous").
func (s *Session) buildHeaderEntries(id uint32, headers []Header, endStream bool) ([]*h2engine.OutboundEntry, error) {
	var block []byte
	for _, hf := range headers {
		enc, err := s.hp.EncodeField(hf)
		if err != nil {
			return nil, h2engine.NewStreamError(id, h2engine.CompressionError, "failed to encode header field")
		}
		block = append(block, enc...)
	}

	maxFrame := int(s.remoteSettings.MaxFrameSize)
	if maxFrame <= 0 {
		maxFrame = int(h2engine.DefaultMaxFrameSize)
	}

	first := block
	rest := []byte(nil)
	if len(first) > maxFrame {
		first, rest = block[:maxFrame], block[maxFrame:]
	}

	hf := h2engine.AcquireFrame(h2engine.FrameHeaders).(*h2engine.HeadersFrame)
	hf.SetHeaderBlock(first)
	hf.SetEndStream(endStream)
	hf.SetEndHeaders(len(rest) == 0)

	frh := h2engine.AcquireFrameHeader()
	frh.SetStream(id)
	frh.SetBody(hf)

	entries := []*h2engine.OutboundEntry{{Frame: frh, StreamID: id}}

	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > maxFrame {
			chunk = rest[:maxFrame]
		}
		rest = rest[len(chunk):]

		cf := h2engine.AcquireFrame(h2engine.FrameContinuation).(*h2engine.ContinuationFrame)
		cf.SetHeaderBlock(chunk)
		cf.SetEndHeaders(len(rest) == 0)

		cfrh := h2engine.AcquireFrameHeader()
		cfrh.SetStream(id)
		cfrh.SetBody(cf)

		entries = append(entries, &h2engine.OutboundEntry{Frame: cfrh, StreamID: id})
	}

	return entries, nil
}
