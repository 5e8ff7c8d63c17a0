package h2engine

import "github.com/dgrr/h2engine/internal/wireutil"

// PriorityFrame expresses a stream priority hint; the session only
// notifies listeners of it (§4.C "no other required action").
// https://tools.ietf.org/html/rfc7540#section-6.3
type PriorityFrame struct {
	streamDep uint32
	exclusive bool
	weight    uint8
}

func (p *PriorityFrame) Type() FrameType { return FramePriority }

func (p *PriorityFrame) Reset() {
	p.streamDep = 0
	p.exclusive = false
	p.weight = 0
}

func (p *PriorityFrame) StreamDependency() uint32 { return p.streamDep }
func (p *PriorityFrame) Exclusive() bool          { return p.exclusive }
func (p *PriorityFrame) Weight() uint8            { return p.weight }

func (p *PriorityFrame) SetStreamDependency(id uint32) { p.streamDep = id & (1<<31 - 1) }
func (p *PriorityFrame) SetExclusive(v bool)           { p.exclusive = v }
func (p *PriorityFrame) SetWeight(w uint8)             { p.weight = w }

func (p *PriorityFrame) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 5 {
		return ErrMissingBytes
	}
	raw := wireutil.BytesToUint32(fr.payload)
	p.exclusive = raw&(1<<31) != 0
	p.streamDep = raw & (1<<31 - 1)
	p.weight = fr.payload[4]
	return nil
}

func (p *PriorityFrame) Serialize(fr *FrameHeader) {
	raw := p.streamDep & (1<<31 - 1)
	if p.exclusive {
		raw |= 1 << 31
	}
	fr.payload = wireutil.AppendUint32Bytes(fr.payload[:0], raw)
	fr.payload = append(fr.payload, p.weight)
}
