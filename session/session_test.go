package session

import (
	"sync"
	"testing"

	"github.com/dgrr/h2engine"
	"github.com/dgrr/h2engine/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	streamIDs []uint32
	kicks    int
}

func (f *fakeSink) Enqueue(e *h2engine.OutboundEntry) {
	f.mu.Lock()
	f.streamIDs = append(f.streamIDs, e.StreamID)
	f.mu.Unlock()
}

func (f *fakeSink) Kick() {
	f.mu.Lock()
	f.kicks++
	f.mu.Unlock()
}

func (f *fakeSink) ids() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.streamIDs...)
}

func TestReserveSlotAssignsMonotonicOddIDsForClient(t *testing.T) {
	sink := &fakeSink{}
	s := New(true, sink)

	slot1, err := s.ReserveSlot()
	require.NoError(t, err)
	slot2, err := s.ReserveSlot()
	require.NoError(t, err)

	assert.EqualValues(t, 1, slot1.ID())
	assert.EqualValues(t, 3, slot2.ID())
}

func TestReserveSlotAssignsEvenIDsForServer(t *testing.T) {
	sink := &fakeSink{}
	s := New(false, sink)

	slot, err := s.ReserveSlot()
	require.NoError(t, err)
	assert.EqualValues(t, 2, slot.ID())
}

// TestDrainSlotsPreservesFIFOOrderUnderOutOfOrderFill reserves three
// slots and fills them out of order, asserting the sink still sees
// strictly increasing stream ids (§4.C "slot protocol").
func TestDrainSlotsPreservesFIFOOrderUnderOutOfOrderFill(t *testing.T) {
	sink := &fakeSink{}
	s := New(true, sink)

	slot1, err := s.ReserveSlot()
	require.NoError(t, err)
	slot2, err := s.ReserveSlot()
	require.NoError(t, err)
	slot3, err := s.ReserveSlot()
	require.NoError(t, err)

	entry := func(id uint32) []*h2engine.OutboundEntry {
		return []*h2engine.OutboundEntry{{StreamID: id}}
	}

	slot3.Fill(entry(slot3.ID()))
	slot2.Fill(entry(slot2.ID()))
	assert.Empty(t, sink.ids(), "nothing may drain until the head of the FIFO is filled")

	slot1.Fill(entry(slot1.ID()))

	assert.Equal(t, []uint32{slot1.ID(), slot2.ID(), slot3.ID()}, sink.ids())
}

func TestReserveSlotRejectsAfterClosed(t *testing.T) {
	sink := &fakeSink{}
	s := New(true, sink)
	s.Terminate(h2engine.NoError, "test shutdown")

	_, err := s.ReserveSlot()
	require.Error(t, err)
	var connErr *h2engine.ConnError
	require.ErrorAs(t, err, &connErr)
}

func TestSendGoAwayTransitionsNotClosedToLocallyClosed(t *testing.T) {
	sink := &fakeSink{}
	s := New(false, sink)

	s.SendGoAway(h2engine.NoError, "graceful")
	assert.Equal(t, LocallyClosed, s.CloseState())
}

func TestHandleGoAwayGracefulTransitionsToRemotelyClosed(t *testing.T) {
	sink := &fakeSink{}
	s := New(false, sink)

	ga := h2engine.AcquireFrame(h2engine.FrameGoAway).(*h2engine.GoAwayFrame)
	ga.SetLastStreamID(h2engine.MaxStreamID)
	ga.SetCode(h2engine.NoError)

	s.HandleGoAway(ga)
	assert.Equal(t, RemotelyClosed, s.CloseState())
}

func TestHandleGoAwayNonGracefulGoesStraightToClosing(t *testing.T) {
	sink := &fakeSink{}
	s := New(false, sink)

	ga := h2engine.AcquireFrame(h2engine.FrameGoAway).(*h2engine.GoAwayFrame)
	ga.SetLastStreamID(0)
	ga.SetCode(h2engine.ProtocolError)

	s.HandleGoAway(ga)
	assert.Equal(t, Closing, s.CloseState())
}

// TestHandleWindowUpdateKicksSink asserts that crediting a connection-level
// WINDOW_UPDATE re-kicks the flusher, the missing step that left a stalled
// DataEntry stuck after the peer replenished the window (§4.D "re-kicked
// by ... window update", §8 scenario 2).
func TestHandleWindowUpdateKicksSink(t *testing.T) {
	sink := &fakeSink{}
	s := New(false, sink)

	wu := h2engine.AcquireFrame(h2engine.FrameWindowUpdate).(*h2engine.WindowUpdateFrame)
	wu.SetIncrement(1)
	frh := h2engine.AcquireFrameHeader()
	frh.SetBody(wu)

	require.NoError(t, s.Dispatch(frh))
	assert.Equal(t, 1, sink.kicks)
}

// TestHandleWindowUpdateStreamScopeKicksSink covers the stream-scoped
// branch of the same handler.
func TestHandleWindowUpdateStreamScopeKicksSink(t *testing.T) {
	sink := &fakeSink{}
	s := New(false, sink)

	st := stream.New(1, false, 65535, 65535, 0, stream.Listener{})
	s.mu.Lock()
	s.streams[1] = st
	s.mu.Unlock()

	wu := h2engine.AcquireFrame(h2engine.FrameWindowUpdate).(*h2engine.WindowUpdateFrame)
	wu.SetIncrement(1)
	frh := h2engine.AcquireFrameHeader()
	frh.SetStream(1)
	frh.SetBody(wu)

	require.NoError(t, s.Dispatch(frh))
	assert.Equal(t, 1, sink.kicks)
}
