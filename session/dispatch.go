package session

import (
	"github.com/dgrr/h2engine"
	"github.com/dgrr/h2engine/stream"
)

// Dispatch is the entry point the caller's read loop invokes for every
// inbound frame (§4.C "Inbound dispatch"). It performs the two
// cross-cutting pre-steps — notify frame listeners, refresh the idle
// deadline — then routes to the per-type handler.
func (s *Session) Dispatch(frh *h2engine.FrameHeader) error {
	if s.listener.OnFrame != nil {
		s.listener.OnFrame(frh)
	}
	s.touchIdle()

	switch frh.Type() {
	case h2engine.FrameData:
		return s.handleData(frh)
	case h2engine.FrameHeaders:
		return s.handleHeaders(frh)
	case h2engine.FrameSettings:
		return s.handleSettings(frh.Body().(*h2engine.SettingsFrame))
	case h2engine.FrameWindowUpdate:
		return s.handleWindowUpdate(frh)
	case h2engine.FrameResetStream:
		return s.handleRstStream(frh)
	case h2engine.FramePing:
		return s.handlePing(frh.Body().(*h2engine.PingFrame))
	case h2engine.FrameGoAway:
		s.HandleGoAway(frh.Body().(*h2engine.GoAwayFrame))
		return nil
	case h2engine.FramePushPromise:
		return s.handlePushPromise(frh)
	case h2engine.FramePriority:
		return nil // notify only; §4.C "no other required action"
	}

	return h2engine.NewConnError(h2engine.ProtocolError, "unhandled frame type")
}

func (s *Session) handleData(frh *h2engine.FrameHeader) error {
	df := frh.Body().(*h2engine.DataFrame)
	st, _ := s.Stream(frh.Stream())

	var fcErr error
	if st != nil {
		fcErr = s.fc.OnDataReceived(st, int32(frh.FlowControlLength()))
	} else {
		fcErr = s.fc.OnDataReceived(nil, int32(frh.FlowControlLength()))
	}
	if fcErr != nil {
		return h2engine.NewConnError(h2engine.FlowControlError, fcErr.Error())
	}

	if st == nil {
		// §4.C DATA: session window is credited regardless; with no
		// stream to deliver to, there's nothing further to do.
		return nil
	}

	st.OnDataFrame(df.Data(), df.EndStream())
	if st.UpdateClose(df.EndStream(), stream.Received) {
		s.removeStream(st.ID())
	}
	return nil
}

func (s *Session) handleHeaders(frh *h2engine.FrameHeader) error {
	hf := frh.Body().(*h2engine.HeadersFrame)
	id := frh.Stream()

	st, existing := s.Stream(id)
	if !existing {
		if id <= s.LastRemoteStreamID() {
			// Could be a late frame for an already-closed stream, or a
			// genuine protocol violation; §4.C treats duplicate/old
			// stream ids as a connection error.
			if s.CloseState() != NotClosed && s.CloseState() != RemotelyClosed {
				// Once we are closing, a late HEADERS for an old id is
				// dropped rather than failing the connection.
				return nil
			}
			return h2engine.NewConnError(h2engine.ProtocolError, "stream id not monotonically increasing")
		}

		s.goAwayMu.Lock()
		sent := s.goAwaySent
		s.goAwayMu.Unlock()
		if sent != nil && id > sent.LastStreamID() {
			// Past our own GOAWAY's last-stream-id: drop without creating
			// a stream (§4.B tie-break).
			return nil
		}

		newStream := stream.New(id, false, int32(s.remoteSettings.InitialWindowSize), int32(s.localSettings.InitialWindowSize), s.idleTimeout, stream.Listener{})
		if err := s.registerRemoteStream(id, newStream); err != nil {
			if se, ok := err.(*h2engine.StreamError); ok {
				newStream.Reset(se.Code)
				return nil
			}
			return err
		}
		st = newStream

		if s.listener.OnNewStream != nil {
			s.listener.OnNewStream(id)
		}
	}

	st.OnHeadersFrame(hf.HeaderBlock(), hf.EndStream())
	if st.UpdateClose(hf.EndStream(), stream.Received) {
		s.removeStream(id)
	}
	return nil
}

// handleWindowUpdate credits the session or stream send window directly
// here in the session, not through the flusher's queue, and then
// re-kicks the flusher's drain loop. Without the Kick, a DataEntry the
// flusher stalled for lack of credit would never resume (§4.D "re-kicked
// by ... window update", §8 scenario 2).
func (s *Session) handleWindowUpdate(frh *h2engine.FrameHeader) error {
	wu := frh.Body().(*h2engine.WindowUpdateFrame)
	if frh.Stream() == 0 {
		if err := s.fc.WindowUpdate(nil, int32(wu.Increment())); err != nil {
			return h2engine.NewConnError(h2engine.FlowControlError, err.Error())
		}
		s.sink.Kick()
		return nil
	}

	st, ok := s.Stream(frh.Stream())
	if !ok {
		return nil // stream already gone; nothing to credit
	}
	if err := s.fc.WindowUpdate(st, int32(wu.Increment())); err != nil {
		return h2engine.NewStreamError(frh.Stream(), h2engine.FlowControlError, err.Error())
	}
	s.sink.Kick()
	return nil
}

func (s *Session) handleRstStream(frh *h2engine.FrameHeader) error {
	rst := frh.Body().(*h2engine.RstStreamFrame)
	st, ok := s.Stream(frh.Stream())
	if !ok {
		// No such stream: the RST is ignored. It is not reported to the
		// listener and is not treated as a connection error, whether the
		// id belongs to a closed stream or to one never opened.
		return nil
	}
	st.Reset(rst.Code())
	s.removeStream(st.ID())
	return nil
}

func (s *Session) handlePing(p *h2engine.PingFrame) error {
	if p.Ack() {
		return nil
	}
	reply := h2engine.AcquireFrame(h2engine.FramePing).(*h2engine.PingFrame)
	reply.SetAck(true)
	reply.SetData(p.Data())

	frh := h2engine.AcquireFrameHeader()
	frh.SetBody(reply)
	s.sink.Enqueue(&h2engine.OutboundEntry{Frame: frh, Prepend: true})
	return nil
}

func (s *Session) handlePushPromise(frh *h2engine.FrameHeader) error {
	if s.localSettings.DisablePush {
		return h2engine.NewConnError(h2engine.ProtocolError, "push received but disabled")
	}
	pp := frh.Body().(*h2engine.PushPromiseFrame)

	s.mu.Lock()
	s.priorityStreams[pp.PromisedStreamID()] = struct{}{}
	s.mu.Unlock()

	return nil
}

func (s *Session) handleSettings(st *h2engine.SettingsFrame) error {
	if st.Ack() {
		return nil
	}

	prevInitialWindow := s.remoteSettings.InitialWindowSize
	prevHeaderTableSize := s.remoteSettings.HeaderTableSize
	for _, p := range st.Entries() {
		s.remoteSettings.ApplyPair(p)
	}

	if s.remoteSettings.HeaderTableSize != prevHeaderTableSize {
		// The peer is telling us the size of *our* encoder's dynamic
		// table as it will be honored on their decoder.
		s.hp.SetEncoderMaxDynamicTableSize(s.remoteSettings.HeaderTableSize)
	}

	if newVal := s.remoteSettings.InitialWindowSize; newVal != prevInitialWindow {
		delta := int32(newVal) - int32(prevInitialWindow)
		s.mu.RLock()
		streams := make([]*stream.Stream, 0, len(s.streams))
		for _, st := range s.streams {
			streams = append(streams, st)
		}
		s.mu.RUnlock()
		for _, st := range streams {
			if err := st.SendWindow().ApplyInitialWindowDelta(delta); err != nil {
				return h2engine.NewConnError(h2engine.FlowControlError, "initial window update overflowed a stream window")
			}
		}
	}

	ack := h2engine.AcquireFrame(h2engine.FrameSettings).(*h2engine.SettingsFrame)
	ack.SetAck(true)
	frh := h2engine.AcquireFrameHeader()
	frh.SetBody(ack)
	s.sink.Enqueue(&h2engine.OutboundEntry{Frame: frh})

	return nil
}
