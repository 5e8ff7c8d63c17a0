package stream

import (
	"testing"
	"time"

	"github.com/dgrr/h2engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStream(l Listener) *Stream {
	return New(1, true, 65535, 65535, 0, l)
}

func TestStreamStateTransitions(t *testing.T) {
	s := newTestStream(Listener{})
	assert.Equal(t, StateOpen, s.State())

	closed := s.UpdateClose(true, BeforeSend)
	assert.False(t, closed)
	assert.Equal(t, StateHalfClosedLocal, s.State())

	closed = s.UpdateClose(true, Received)
	assert.True(t, closed)
	assert.Equal(t, StateClosed, s.State())
}

func TestStreamUpdateCloseIgnoresNonEndStreamExceptReceived(t *testing.T) {
	s := newTestStream(Listener{})
	closed := s.UpdateClose(false, BeforeSend)
	assert.False(t, closed)
	assert.Equal(t, StateOpen, s.State())
}

func TestStreamResetSuppressesUncommittedLocal(t *testing.T) {
	var resetCode h2engine.ErrorCode
	var gotReset, gotClosed bool
	s := newTestStream(Listener{
		OnReset:  func(c h2engine.ErrorCode) { resetCode = c; gotReset = true },
		OnClosed: func() { gotClosed = true },
	})

	suppress := s.Reset(h2engine.CancelError)
	assert.True(t, suppress, "uncommitted local stream reset must be suppressed on the wire")
	assert.True(t, gotReset)
	assert.True(t, gotClosed)
	assert.Equal(t, h2engine.CancelError, resetCode)
	assert.Equal(t, StateClosed, s.State())
}

func TestStreamResetDoesNotSuppressCommitted(t *testing.T) {
	s := newTestStream(Listener{})
	s.MarkCommitted()
	assert.False(t, s.Reset(h2engine.CancelError))
}

func TestStreamResetFailsPendingWrites(t *testing.T) {
	s := newTestStream(Listener{})

	var gotErr error
	s.AddPending(func(err error) { gotErr = err })
	s.Reset(h2engine.InternalError)

	require.Error(t, gotErr)
	var streamErr *h2engine.StreamError
	require.ErrorAs(t, gotErr, &streamErr)
	assert.Equal(t, h2engine.InternalError, streamErr.Code)
}

func TestStreamAddPendingAfterResetFailsImmediately(t *testing.T) {
	s := newTestStream(Listener{})
	s.Reset(h2engine.CancelError)

	var gotErr error
	s.AddPending(func(err error) { gotErr = err })
	assert.Error(t, gotErr)
}

func TestStreamIdleTimeoutResetsAsCancel(t *testing.T) {
	done := make(chan h2engine.ErrorCode, 1)
	s := New(3, false, 65535, 65535, 10*time.Millisecond, Listener{
		OnReset: func(c h2engine.ErrorCode) { done <- c },
	})
	defer s.Reset(h2engine.NoError)

	select {
	case c := <-done:
		assert.Equal(t, h2engine.CancelError, c)
	case <-time.After(time.Second):
		t.Fatal("idle timeout never fired")
	}
}

func TestStreamOnDataFrameInvokesListener(t *testing.T) {
	var gotData []byte
	var gotEnd bool
	s := newTestStream(Listener{
		OnData: func(data []byte, endStream bool) { gotData = data; gotEnd = endStream },
	})

	s.OnDataFrame([]byte("payload"), true)
	assert.Equal(t, []byte("payload"), gotData)
	assert.True(t, gotEnd)
}
