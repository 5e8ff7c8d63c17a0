package session

import "github.com/dgrr/h2engine"

// slot is a reservation token in the stream-creation FIFO, guaranteeing
// that HEADERS/PUSH_PROMISE for locally-initiated streams reach the
// flusher in strictly increasing stream-id order even when multiple
// goroutines race to open streams concurrently (§4.C "Outbound stream
// creation (slot protocol)").
type slot struct {
	id      uint32
	entries []*h2engine.OutboundEntry // nil until the owning goroutine fills it in
}

// Slot is the handle returned to the goroutine that reserved it.
type Slot struct {
	s    *slot
	sess *Session
}

// ID is the stream id this slot reserved.
func (h Slot) ID() uint32 { return h.s.id }

// Fill stores the frames to emit for this slot and kicks the drain
// loop. It must be called exactly once per reserved Slot.
func (h Slot) Fill(entries []*h2engine.OutboundEntry) {
	if entries == nil {
		// A nil slot reads as "not yet filled"; an empty one releases
		// the FIFO without emitting anything.
		entries = []*h2engine.OutboundEntry{}
	}
	h.sess.slotMu.Lock()
	h.s.entries = entries
	h.sess.slotMu.Unlock()

	h.sess.drainSlots()
}

// ReserveSlot atomically allocates the next local stream id and appends
// an empty slot to the FIFO, returning both. Concurrent callers get
// strictly increasing ids even though each may take an arbitrary amount
// of time to Fill its slot (§4.C steps 1-2).
func (s *Session) ReserveSlot() (Slot, error) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	if cs := s.CloseState(); cs != NotClosed && cs != RemotelyClosed {
		return Slot{}, h2engine.NewConnError(h2engine.ProtocolError, "session closed to new streams")
	}

	if s.totalLocalStreams >= s.maxTotalLocalStreams {
		return Slot{}, errMaxTotalStreams
	}
	if s.localOpenCount >= s.maxLocalStreams {
		return Slot{}, errMaxConcurrentStreams
	}
	if s.localNextID > h2engine.MaxStreamID {
		return Slot{}, errStreamIDOverflow
	}

	id := s.localNextID
	s.localNextID += 2
	s.totalLocalStreams++
	s.localOpenCount++

	sl := &slot{id: id}
	s.slots = append(s.slots, sl)

	return Slot{s: sl, sess: s}, nil
}

// drainSlots is the single-entrant FIFO drain of §4.C step 3: one
// goroutine at a time pops filled slots from the head and appends their
// entries to the sink in order; an unfilled slot halts the drain until
// its owner calls Fill (a later call to drainSlots, from that Fill,
// continues it).
func (s *Session) drainSlots() {
	s.slotMu.Lock()
	if s.draining {
		s.slotMu.Unlock()
		return
	}
	s.draining = true

	for {
		if len(s.slots) == 0 {
			s.draining = false
			s.slotMu.Unlock()
			return
		}
		front := s.slots[0]
		if front.entries == nil {
			s.draining = false
			s.slotMu.Unlock()
			return
		}
		entries := front.entries
		s.slots = s.slots[1:]
		s.slotMu.Unlock()

		for _, e := range entries {
			s.sink.Enqueue(e)
		}

		s.slotMu.Lock()
	}
}

var (
	errMaxTotalStreams      = connErr("maximum total local streams exceeded")
	errMaxConcurrentStreams = connErr("maximum concurrent local streams exceeded")
	errStreamIDOverflow     = connErr("local stream id space exhausted")
)

type connErr string

func (e connErr) Error() string { return string(e) }
