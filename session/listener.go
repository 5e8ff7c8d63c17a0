package session

import "github.com/dgrr/h2engine"

// Listener is the capability record a Session notifies of connection
// lifecycle events (§9 "replace listener polymorphism with a capability
// record"). Any field may be nil.
type Listener struct {
	// OnNewStream fires when a remote HEADERS creates a stream.
	OnNewStream func(streamID uint32)

	// OnFrame fires for every inbound frame before dispatch (§4.C
	// "notify incoming-frame listeners").
	OnFrame func(fr *h2engine.FrameHeader)

	// OnGoAway fires when either side's GOAWAY is recorded.
	OnGoAway func(fr *h2engine.GoAwayFrame, local bool)

	// OnFailure surfaces session closure: cause is either a decoded wire
	// error or a transport error. The caller must invoke done before the
	// transport is closed (§7 "User-visible failure").
	OnFailure func(cause error, done func())

	// OnClose fires exactly once when the session reaches CLOSED.
	OnClose func()
}
