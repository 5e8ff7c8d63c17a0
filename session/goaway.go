package session

import (
	"github.com/dgrr/h2engine"
	"github.com/dgrr/h2engine/stream"
)

// SendGoAway emits a GOAWAY announcing lastStreamID = our
// lastRemoteStreamID seen so far (we keep serving everything we've
// already accepted) and transitions the close-state machine:
// NOT_CLOSED -> LOCALLY_CLOSED, or if already REMOTELY_CLOSED -> CLOSING.
func (s *Session) SendGoAway(code h2engine.ErrorCode, reason string) {
	ga := h2engine.AcquireFrame(h2engine.FrameGoAway).(*h2engine.GoAwayFrame)
	ga.SetLastStreamID(s.LastRemoteStreamID())
	ga.SetCode(code)
	if reason != "" {
		ga.SetDebugData([]byte(reason))
	}

	s.goAwayMu.Lock()
	s.goAwaySent = ga
	s.goAwayMu.Unlock()

	switch s.CloseState() {
	case NotClosed:
		s.setCloseState(LocallyClosed)
	case RemotelyClosed:
		s.setCloseState(Closing)
	}

	s.armZeroStreamsAction(code, reason)

	frh := h2engine.AcquireFrameHeader()
	frh.SetBody(ga)
	s.sink.Enqueue(&h2engine.OutboundEntry{Frame: frh, Prepend: true})

	if s.listener.OnGoAway != nil {
		s.listener.OnGoAway(ga, true)
	}

	if s.StreamCount() == 0 && s.CloseState().Draining() {
		s.closeOnce.Do(func() { s.finalizeGoAway(code, reason) })
	}
}

// armZeroStreamsAction captures the callback §4.C's zeroStreamsAction
// describes: triggered exactly once when the stream count reaches zero
// while draining, it sends the final non-graceful GOAWAY and tears the
// connection down.
func (s *Session) armZeroStreamsAction(code h2engine.ErrorCode, reason string) {
	s.goAwayMu.Lock()
	if s.zeroAction == nil {
		s.zeroAction = func() { s.finalizeGoAway(code, reason) }
	}
	s.goAwayMu.Unlock()
}

func (s *Session) finalizeGoAway(code h2engine.ErrorCode, reason string) {
	s.setCloseState(Closed)

	ga := h2engine.AcquireFrame(h2engine.FrameGoAway).(*h2engine.GoAwayFrame)
	ga.SetLastStreamID(s.LastRemoteStreamID())
	ga.SetCode(code)
	if reason != "" {
		ga.SetDebugData([]byte(reason))
	}
	frh := h2engine.AcquireFrameHeader()
	frh.SetBody(ga)
	s.sink.Enqueue(&h2engine.OutboundEntry{Frame: frh, Prepend: true})

	if s.listener.OnClose != nil {
		s.listener.OnClose()
	}
}

// HandleGoAway processes an inbound GOAWAY frame per §4.C's close-state
// machine. A graceful GOAWAY (lastStreamId == MaxStreamID, NO_ERROR)
// means "no new streams, let existing finish"; a later non-graceful one
// from the same peer overrides it even if its lastStreamId is smaller,
// per the Open Question in §9 ("the spec follows the source's lenient
// behavior").
func (s *Session) HandleGoAway(fr *h2engine.GoAwayFrame) {
	s.goAwayMu.Lock()
	s.goAwayRecv = fr
	s.goAwayMu.Unlock()

	if s.listener.OnGoAway != nil {
		s.listener.OnGoAway(fr, false)
	}

	switch s.CloseState() {
	case NotClosed:
		if fr.Graceful() {
			s.setCloseState(RemotelyClosed)
		} else {
			s.setCloseState(Closing)
		}
	case LocallyClosed:
		s.setCloseState(Closing)
	case RemotelyClosed:
		if !fr.Graceful() {
			s.setCloseState(Closing)
		}
	}

	if s.CloseState().Draining() {
		s.armZeroStreamsAction(h2engine.NoError, "peer goaway drained")
	}

	s.failStreamsAbove(fr.LastStreamID())
}

// failStreamsAbove fails every locally-initiated stream with id greater
// than lastStreamID, since the peer has guaranteed it will never process
// them (§4.C, §7, §8 scenario 3): each is reset with REFUSED_STREAM and a
// retryable *StreamError for it is reported through the session
// listener's OnFailure.
func (s *Session) failStreamsAbove(lastStreamID uint32) {
	s.mu.RLock()
	var victims []*stream.Stream
	for id, st := range s.streams {
		if st.IsLocal() && id > lastStreamID {
			victims = append(victims, st)
		}
	}
	s.mu.RUnlock()

	for _, st := range victims {
		retryErr := h2engine.NewRetryableStreamError(st.ID(), "stream above peer's GOAWAY last-stream-id")
		st.Reset(h2engine.RefusedStream)
		s.removeStream(st.ID())
		if s.listener.OnFailure != nil {
			s.listener.OnFailure(retryErr, func() {})
		}
	}
}
