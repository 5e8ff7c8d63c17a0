package h2engine

// ContinuationFrame carries the remainder of a header block fragment
// that didn't fit in the preceding HEADERS or PUSH_PROMISE frame. It
// must be contiguous with that frame per stream-id (§3 invariant 3).
// https://tools.ietf.org/html/rfc7540#section-6.10
type ContinuationFrame struct {
	endHeaders bool
	rawHeaders []byte
}

func (c *ContinuationFrame) Type() FrameType { return FrameContinuation }

func (c *ContinuationFrame) Reset() {
	c.endHeaders = false
	c.rawHeaders = c.rawHeaders[:0]
}

func (c *ContinuationFrame) HeaderBlock() []byte      { return c.rawHeaders }
func (c *ContinuationFrame) SetHeaderBlock(b []byte)   { c.rawHeaders = append(c.rawHeaders[:0], b...) }
func (c *ContinuationFrame) EndHeaders() bool          { return c.endHeaders }
func (c *ContinuationFrame) SetEndHeaders(v bool)      { c.endHeaders = v }

func (c *ContinuationFrame) Deserialize(fr *FrameHeader) error {
	c.endHeaders = fr.Flags().Has(FlagEndHeaders)
	c.rawHeaders = append(c.rawHeaders[:0], fr.payload...)
	return nil
}

func (c *ContinuationFrame) Serialize(fr *FrameHeader) {
	if c.endHeaders {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}
	fr.setPayload(c.rawHeaders)
}
