package h2engine

import "github.com/dgrr/h2engine/internal/wireutil"

// HeadersFrame carries a (possibly partial, continued in CONTINUATION)
// HPACK header block fragment. https://tools.ietf.org/html/rfc7540#section-6.2
type HeadersFrame struct {
	padded        bool
	priorityDep   uint32
	weight        uint8
	hasPriority   bool
	endStream     bool
	endHeaders    bool
	rawHeaders    []byte
}

func (h *HeadersFrame) Type() FrameType { return FrameHeaders }

func (h *HeadersFrame) Reset() {
	h.padded = false
	h.priorityDep = 0
	h.weight = 0
	h.hasPriority = false
	h.endStream = false
	h.endHeaders = false
	h.rawHeaders = h.rawHeaders[:0]
}

func (h *HeadersFrame) HeaderBlock() []byte        { return h.rawHeaders }
func (h *HeadersFrame) SetHeaderBlock(b []byte)     { h.rawHeaders = append(h.rawHeaders[:0], b...) }
func (h *HeadersFrame) AppendHeaderBlock(b []byte)   { h.rawHeaders = append(h.rawHeaders, b...) }
func (h *HeadersFrame) EndStream() bool             { return h.endStream }
func (h *HeadersFrame) SetEndStream(v bool)         { h.endStream = v }
func (h *HeadersFrame) EndHeaders() bool            { return h.endHeaders }
func (h *HeadersFrame) SetEndHeaders(v bool)        { h.endHeaders = v }
func (h *HeadersFrame) PriorityDependency() uint32  { return h.priorityDep }
func (h *HeadersFrame) Weight() uint8               { return h.weight }

func (h *HeadersFrame) SetPriority(dep uint32, weight uint8) {
	h.hasPriority = true
	h.priorityDep = dep
	h.weight = weight
}

func (h *HeadersFrame) Padded() bool     { return h.padded }
func (h *HeadersFrame) SetPadded(v bool) { h.padded = v }

func (h *HeadersFrame) Deserialize(fr *FrameHeader) error {
	flags := fr.Flags()
	payload := fr.payload

	if flags.Has(FlagPadded) {
		cut, err := wireutil.CutPadding(payload, len(payload))
		if err != nil {
			return err
		}
		payload = cut
		h.padded = true
	}

	if flags.Has(FlagPriority) {
		if len(payload) < 5 {
			return ErrMissingBytes
		}
		h.hasPriority = true
		h.priorityDep = wireutil.BytesToUint32(payload) & (1<<31 - 1)
		h.weight = payload[4]
		payload = payload[5:]
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.rawHeaders = append(h.rawHeaders[:0], payload...)

	return nil
}

func (h *HeadersFrame) Serialize(fr *FrameHeader) {
	if h.endStream {
		fr.SetFlags(fr.Flags().Add(FlagEndStream))
	}
	if h.endHeaders {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}

	payload := fr.payload[:0]
	if h.hasPriority {
		fr.SetFlags(fr.Flags().Add(FlagPriority))
		payload = wireutil.AppendUint32Bytes(payload, h.priorityDep)
		payload = append(payload, h.weight)
	}
	payload = append(payload, h.rawHeaders...)

	if h.padded {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		payload = wireutil.AddPadding(payload)
	}

	fr.setPayload(payload)
}
