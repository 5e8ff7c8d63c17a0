package h2engine

// Settings is the humanized, negotiated-parameters view of a SETTINGS
// frame's entries (§6 "Settings identifiers and their defaults follow
// §11.3 of the RFC"), grounded on the teacher's settings.go.
type Settings struct {
	// HeaderTableSize bounds the HPACK decoder's dynamic table size.
	// Default 4096.
	HeaderTableSize uint32

	// DisablePush, when true, means ENABLE_PUSH=0: the peer must not
	// send PUSH_PROMISE frames.
	DisablePush bool

	// MaxConcurrentStreams bounds the number of concurrently open
	// streams the sender allows. Default 100.
	MaxConcurrentStreams uint32

	// InitialWindowSize is the sender's per-stream initial flow-control
	// window. Default 65535, max 2^31-1.
	InitialWindowSize uint32

	// MaxFrameSize bounds the largest frame payload the sender accepts.
	// Default 16384, max 2^24-1.
	MaxFrameSize uint32

	// MaxHeaderListSize advises the peer of the largest uncompressed
	// header list the sender will accept. 0 means unlimited.
	MaxHeaderListSize uint32

	// EnableConnectProtocol turns on RFC 8441 extended CONNECT.
	EnableConnectProtocol bool
}

const (
	DefaultHeaderTableSize      uint32 = 4096
	DefaultMaxConcurrentStreams uint32 = 100
	DefaultInitialWindowSize    uint32 = 1<<16 - 1
	DefaultMaxFrameSize         uint32 = 1 << 14

	MaxWindowSize uint32 = 1<<31 - 1
	MaxFrameSize  uint32 = 1<<24 - 1
)

// DefaultSettings returns the RFC 7540 §11.3 default parameter set,
// except that MaxConcurrentStreams is 100 rather than unlimited.
func DefaultSettings() Settings {
	return Settings{
		HeaderTableSize:      DefaultHeaderTableSize,
		MaxConcurrentStreams: DefaultMaxConcurrentStreams,
		InitialWindowSize:    DefaultInitialWindowSize,
		MaxFrameSize:         DefaultMaxFrameSize,
	}
}

// Clone returns an independent copy of st.
func (st Settings) Clone() Settings { return st }

// ApplyPair folds one decoded SettingPair into st, reporting whether the
// identifier was recognized.
func (st *Settings) ApplyPair(p SettingPair) bool {
	switch p.ID {
	case SettingHeaderTableSize:
		st.HeaderTableSize = p.Value
	case SettingEnablePush:
		st.DisablePush = p.Value == 0
	case SettingMaxConcurrentStreams:
		st.MaxConcurrentStreams = p.Value
	case SettingInitialWindowSize:
		st.InitialWindowSize = p.Value
	case SettingMaxFrameSize:
		st.MaxFrameSize = p.Value
	case SettingMaxHeaderListSize:
		st.MaxHeaderListSize = p.Value
	case SettingEnableConnectProto:
		st.EnableConnectProtocol = p.Value != 0
	default:
		return false
	}
	return true
}

// ToFrame renders st as the wire entries of an outbound SETTINGS frame.
func (st Settings) ToFrame() *SettingsFrame {
	fr := AcquireFrame(FrameSettings).(*SettingsFrame)
	if st.HeaderTableSize != 0 {
		fr.Add(SettingHeaderTableSize, st.HeaderTableSize)
	}
	if st.DisablePush {
		fr.Add(SettingEnablePush, 0)
	} else {
		fr.Add(SettingEnablePush, 1)
	}
	if st.MaxConcurrentStreams != 0 {
		fr.Add(SettingMaxConcurrentStreams, st.MaxConcurrentStreams)
	}
	if st.InitialWindowSize != 0 {
		fr.Add(SettingInitialWindowSize, st.InitialWindowSize)
	}
	if st.MaxFrameSize != 0 {
		fr.Add(SettingMaxFrameSize, st.MaxFrameSize)
	}
	if st.MaxHeaderListSize != 0 {
		fr.Add(SettingMaxHeaderListSize, st.MaxHeaderListSize)
	}
	if st.EnableConnectProtocol {
		fr.Add(SettingEnableConnectProto, 1)
	}
	return fr
}

// Option configures a Settings value, the same functional-option idiom
// the teacher's configure.go uses to build a fasthttp.Server.
type Option func(*Settings)

func WithMaxConcurrentStreams(n uint32) Option {
	return func(st *Settings) { st.MaxConcurrentStreams = n }
}

func WithInitialWindowSize(n uint32) Option {
	return func(st *Settings) { st.InitialWindowSize = n }
}

func WithMaxFrameSize(n uint32) Option {
	return func(st *Settings) { st.MaxFrameSize = n }
}

func WithHeaderTableSize(n uint32) Option {
	return func(st *Settings) { st.HeaderTableSize = n }
}

func WithPushDisabled() Option {
	return func(st *Settings) { st.DisablePush = true }
}

func WithConnectProtocolEnabled() Option {
	return func(st *Settings) { st.EnableConnectProtocol = true }
}

// NewSettings builds a Settings from defaults plus opts.
func NewSettings(opts ...Option) Settings {
	st := DefaultSettings()
	for _, opt := range opts {
		opt(&st)
	}
	return st
}
