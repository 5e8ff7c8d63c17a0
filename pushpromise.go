package h2engine

import "github.com/dgrr/h2engine/internal/wireutil"

// PushPromiseFrame reserves a stream id the server intends to push a
// response on. https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromiseFrame struct {
	padded       bool
	endHeaders   bool
	promisedID   uint32
	rawHeaders   []byte
}

func (pp *PushPromiseFrame) Type() FrameType { return FramePushPromise }

func (pp *PushPromiseFrame) Reset() {
	pp.padded = false
	pp.endHeaders = false
	pp.promisedID = 0
	pp.rawHeaders = pp.rawHeaders[:0]
}

func (pp *PushPromiseFrame) PromisedStreamID() uint32    { return pp.promisedID }
func (pp *PushPromiseFrame) SetPromisedStreamID(id uint32) { pp.promisedID = id & (1<<31 - 1) }
func (pp *PushPromiseFrame) HeaderBlock() []byte          { return pp.rawHeaders }
func (pp *PushPromiseFrame) SetHeaderBlock(b []byte)       { pp.rawHeaders = append(pp.rawHeaders[:0], b...) }
func (pp *PushPromiseFrame) EndHeaders() bool              { return pp.endHeaders }
func (pp *PushPromiseFrame) SetEndHeaders(v bool)          { pp.endHeaders = v }

func (pp *PushPromiseFrame) Deserialize(fr *FrameHeader) error {
	payload := fr.payload
	if fr.Flags().Has(FlagPadded) {
		cut, err := wireutil.CutPadding(payload, fr.Len())
		if err != nil {
			return err
		}
		payload = cut
		pp.padded = true
	}
	if len(payload) < 4 {
		return ErrMissingBytes
	}
	pp.promisedID = wireutil.BytesToUint32(payload) & (1<<31 - 1)
	pp.rawHeaders = append(pp.rawHeaders[:0], payload[4:]...)
	pp.endHeaders = fr.Flags().Has(FlagEndHeaders)
	return nil
}

func (pp *PushPromiseFrame) Serialize(fr *FrameHeader) {
	if pp.endHeaders {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}
	payload := wireutil.AppendUint32Bytes(fr.payload[:0], pp.promisedID)
	payload = append(payload, pp.rawHeaders...)
	if pp.padded {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		payload = wireutil.AddPadding(payload)
	}
	fr.setPayload(payload)
}
