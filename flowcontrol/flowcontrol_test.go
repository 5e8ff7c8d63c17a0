package flowcontrol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowConsumeAndAdd(t *testing.T) {
	w := NewWindow(65535)
	assert.EqualValues(t, 65535, w.Value())

	assert.EqualValues(t, 65535-100, w.Consume(100))
	assert.False(t, w.Underflowed())

	require.NoError(t, w.Add(100))
	assert.EqualValues(t, 65535, w.Value())
}

func TestWindowUnderflow(t *testing.T) {
	w := NewWindow(10)
	w.Consume(20)
	assert.True(t, w.Underflowed())
}

func TestWindowAddOverflow(t *testing.T) {
	w := NewWindow(MaxWindow)
	err := w.Add(1)
	assert.ErrorIs(t, err, ErrWindowOverflow)
}

func TestWindowAddToExactMax(t *testing.T) {
	w := NewWindow(MaxWindow - 1)
	require.NoError(t, w.Add(1))
	assert.EqualValues(t, MaxWindow, w.Value())
}

type fakeStream struct {
	id       uint32
	local    bool
	send     *Window
	recv     *Window
}

func (s *fakeStream) ID() uint32        { return s.id }
func (s *fakeStream) IsLocal() bool     { return s.local }
func (s *fakeStream) SendWindow() *Window { return s.send }
func (s *fakeStream) RecvWindow() *Window { return s.recv }

func newFakeStream(id uint32, initial int32) *fakeStream {
	return &fakeStream{id: id, send: NewWindow(initial), recv: NewWindow(initial)}
}

func TestControllerOnDataReceivedCreditsSessionAlways(t *testing.T) {
	c := NewController(100)
	require.NoError(t, c.OnDataReceived(nil, 40))
	assert.EqualValues(t, 60, c.SessionRecv.Value())
}

func TestControllerOnDataReceivedStreamUnderflow(t *testing.T) {
	c := NewController(1000)
	s := newFakeStream(1, 10)

	err := c.OnDataReceived(s, 20)
	require.Error(t, err)

	var fcErr *Error
	require.ErrorAs(t, err, &fcErr)
	assert.Equal(t, ScopeStream, fcErr.Scope)
	assert.EqualValues(t, 1, fcErr.StreamID)
}

func TestControllerOnDataReceivedSessionUnderflow(t *testing.T) {
	c := NewController(10)
	s := newFakeStream(1, 1000)

	err := c.OnDataReceived(s, 20)
	require.Error(t, err)

	var fcErr *Error
	require.ErrorAs(t, err, &fcErr)
	assert.Equal(t, ScopeSession, fcErr.Scope)
}

func TestControllerWindowUpdateScopes(t *testing.T) {
	c := NewController(0)
	s := newFakeStream(3, 0)

	require.NoError(t, c.WindowUpdate(nil, 100))
	assert.EqualValues(t, 100, c.SessionSend.Value())

	require.NoError(t, c.WindowUpdate(s, 50))
	assert.EqualValues(t, 50, s.SendWindow().Value())

	err := c.WindowUpdate(s, MaxWindow)
	require.Error(t, err)
	var fcErr *Error
	require.ErrorAs(t, err, &fcErr)
	assert.Equal(t, ScopeStream, fcErr.Scope)
}

func TestUpdateInitialStreamWindow(t *testing.T) {
	streams := []Streamer{newFakeStream(1, 100), newFakeStream(3, 100)}
	require.NoError(t, UpdateInitialStreamWindow(streams, 50, true))
	for _, s := range streams {
		assert.EqualValues(t, 150, s.RecvWindow().Value())
		assert.EqualValues(t, 100, s.SendWindow().Value())
	}
}

func TestDataSendLength(t *testing.T) {
	session := NewWindow(1000)
	stream := NewWindow(10)
	assert.Equal(t, 10, DataSendLength(100, session, stream))
	assert.Equal(t, 0, DataSendLength(0, session, stream))

	stream2 := NewWindow(-5)
	assert.Equal(t, 0, DataSendLength(100, session, stream2))
}

func TestSimpleStrategyEmitsAtHalfConsumed(t *testing.T) {
	s := NewSimpleStrategy(100)
	inc, emit := s.OnDataConsumed(40)
	assert.False(t, emit)
	assert.Zero(t, inc)

	inc, emit = s.OnDataConsumed(20)
	assert.True(t, emit)
	assert.EqualValues(t, 60, inc)
}

func TestBufferedStrategyExplicitConsumption(t *testing.T) {
	s := &BufferedStrategy{}
	s.OnIngress(100)

	inc, emit := s.DataConsumed(40)
	assert.True(t, emit)
	assert.EqualValues(t, 40, inc)

	inc, emit = s.DataConsumed(1000)
	assert.True(t, emit)
	assert.EqualValues(t, 60, inc)

	inc, emit = s.DataConsumed(1)
	assert.False(t, emit)
	assert.Zero(t, inc)
}
