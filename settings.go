package h2engine

import "github.com/dgrr/h2engine/internal/wireutil"

// Setting identifiers (https://httpwg.org/specs/rfc7540.html#SettingValues),
// extended with RFC 8441's ENABLE_CONNECT_PROTOCOL since §4.C names it.
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
	SettingEnableConnectProto   uint16 = 0x8
)

// SettingPair is one (identifier, value) entry of a SETTINGS frame.
type SettingPair struct {
	ID    uint16
	Value uint32
}

// SettingsFrame carries zero or more SettingPair entries, or is an
// acknowledgement of a previously received SETTINGS frame.
// https://tools.ietf.org/html/rfc7540#section-6.5
type SettingsFrame struct {
	ack     bool
	entries []SettingPair
}

func (s *SettingsFrame) Type() FrameType { return FrameSettings }

func (s *SettingsFrame) Reset() {
	s.ack = false
	s.entries = s.entries[:0]
}

func (s *SettingsFrame) Ack() bool     { return s.ack }
func (s *SettingsFrame) SetAck(v bool) { s.ack = v }
func (s *SettingsFrame) Entries() []SettingPair { return s.entries }

func (s *SettingsFrame) Add(id uint16, value uint32) {
	s.entries = append(s.entries, SettingPair{ID: id, Value: value})
}

func (s *SettingsFrame) Deserialize(fr *FrameHeader) error {
	s.ack = fr.Flags().Has(FlagAck)
	if s.ack {
		return nil
	}
	payload := fr.payload
	if len(payload)%6 != 0 {
		return ErrMissingBytes
	}
	s.entries = s.entries[:0]
	for i := 0; i+6 <= len(payload); i += 6 {
		id := uint16(payload[i])<<8 | uint16(payload[i+1])
		value := wireutil.BytesToUint32(payload[i+2:])
		s.entries = append(s.entries, SettingPair{ID: id, Value: value})
	}
	return nil
}

func (s *SettingsFrame) Serialize(fr *FrameHeader) {
	if s.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		fr.setPayload(nil)
		return
	}
	payload := fr.payload[:0]
	for _, e := range s.entries {
		payload = append(payload, byte(e.ID>>8), byte(e.ID))
		payload = wireutil.AppendUint32Bytes(payload, e.Value)
	}
	fr.setPayload(payload)
}
