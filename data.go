package h2engine

import "github.com/dgrr/h2engine/internal/wireutil"

// DataFrame carries application data (§3 "DATA.flowControlLength =
// payload + padding"). https://tools.ietf.org/html/rfc7540#section-6.1
type DataFrame struct {
	endStream bool
	padded    bool
	b         []byte
}

func (d *DataFrame) Type() FrameType { return FrameData }

func (d *DataFrame) Reset() {
	d.endStream = false
	d.padded = false
	d.b = d.b[:0]
}

func (d *DataFrame) EndStream() bool        { return d.endStream }
func (d *DataFrame) SetEndStream(v bool)    { d.endStream = v }
func (d *DataFrame) Data() []byte           { return d.b }
func (d *DataFrame) SetData(b []byte)       { d.b = append(d.b[:0], b...) }
func (d *DataFrame) Append(b []byte)        { d.b = append(d.b, b...) }
func (d *DataFrame) Len() int               { return len(d.b) }
func (d *DataFrame) Padded() bool           { return d.padded }
func (d *DataFrame) SetPadded(v bool)       { d.padded = v }

func (d *DataFrame) Deserialize(fr *FrameHeader) error {
	payload := fr.payload
	if fr.Flags().Has(FlagPadded) {
		cut, err := wireutil.CutPadding(payload, fr.Len())
		if err != nil {
			return err
		}
		payload = cut
	}
	d.endStream = fr.Flags().Has(FlagEndStream)
	d.b = append(d.b[:0], payload...)
	return nil
}

func (d *DataFrame) Serialize(fr *FrameHeader) {
	if d.endStream {
		fr.SetFlags(fr.Flags().Add(FlagEndStream))
	}
	if d.padded {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		d.b = wireutil.AddPadding(d.b)
	}
	fr.setPayload(d.b)
}
