package flusher

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dgrr/h2engine"
	"github.com/dgrr/h2engine/flowcontrol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	mu      sync.Mutex
	writes  [][]byte
	closed  bool
	closeCause error
	writeErr error
}

func (e *fakeEndpoint) Write(buffers net.Buffers) error {
	if e.writeErr != nil {
		return e.writeErr
	}
	e.mu.Lock()
	for _, b := range buffers {
		e.writes = append(e.writes, append([]byte(nil), b...))
	}
	e.mu.Unlock()
	return nil
}

func (e *fakeEndpoint) Close(cause error) error {
	e.mu.Lock()
	e.closed = true
	e.closeCause = cause
	e.mu.Unlock()
	return nil
}

func (e *fakeEndpoint) writeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.writes)
}

func pingFrame() *h2engine.FrameHeader {
	pf := h2engine.AcquireFrame(h2engine.FramePing).(*h2engine.PingFrame)
	frh := h2engine.AcquireFrameHeader()
	frh.SetBody(pf)
	return frh
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestFlusherWritesEnqueuedControlFrame(t *testing.T) {
	ep := &fakeEndpoint{}
	f := New(ep)

	var completed bool
	f.Enqueue(&h2engine.OutboundEntry{
		Frame:      pingFrame(),
		StreamID:   0,
		OnComplete: func(error) { completed = true },
	})

	waitFor(t, func() bool { return ep.writeCount() > 0 })
	assert.True(t, completed)
}

func TestFlusherSplitsDataAcrossFlowControlWindow(t *testing.T) {
	ep := &fakeEndpoint{}
	f := New(ep)

	sessionWindow := flowcontrol.NewWindow(10)
	streamWindow := flowcontrol.NewWindow(10)

	data := make([]byte, 25)
	f.Enqueue(&h2engine.OutboundEntry{
		StreamID:          1,
		Data:              data,
		DataRemaining:     len(data),
		EndStream:         true,
		SessionSendWindow: sessionWindow,
		StreamSendWindow:  streamWindow,
	})

	// 25 bytes over a 10-byte window can only emit the first 10-byte
	// chunk before stalling; the entry never completes in this test,
	// since even after the single re-credit below 5 bytes remain unsent.
	waitFor(t, func() bool { return ep.writeCount() > 0 })
	assert.EqualValues(t, 0, sessionWindow.Value())
	assert.EqualValues(t, 0, streamWindow.Value())

	// Crediting the window and kicking again must resume exactly where
	// the entry left off rather than resend or drop bytes.
	require.NoError(t, sessionWindow.Add(10))
	require.NoError(t, streamWindow.Add(10))
	f.Kick()
	waitFor(t, func() bool { return ep.writeCount() > 1 })
	assert.EqualValues(t, 0, sessionWindow.Value())
	assert.EqualValues(t, 0, streamWindow.Value())
}

func TestFlusherPrependSkipsAheadOfQueuedEntries(t *testing.T) {
	ep := &fakeEndpoint{writeErr: nil}
	f := New(ep, WithMaxGather(1))

	var order []string
	var mu sync.Mutex
	record := func(name string) func(error) {
		return func(error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	f.mu.Lock()
	f.running = true // pause the drain loop so both entries queue up first
	f.mu.Unlock()

	f.Enqueue(&h2engine.OutboundEntry{Frame: pingFrame(), OnComplete: record("normal")})
	f.Enqueue(&h2engine.OutboundEntry{Frame: pingFrame(), Prepend: true, OnComplete: record("prepended")})

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.kick()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"prepended", "normal"}, order)
}

func TestFlusherAbortFailsPendingEntries(t *testing.T) {
	ep := &fakeEndpoint{}
	f := New(ep)

	var gotErr error
	done := make(chan struct{})

	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	f.Enqueue(&h2engine.OutboundEntry{
		Frame: pingFrame(),
		OnComplete: func(err error) {
			gotErr = err
			close(done)
		},
	})

	cause := &h2engine.WriteTimeoutError{Message: "test abort"}
	f.Fail(cause)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aborted entry never completed")
	}
	assert.Equal(t, cause, gotErr)
	assert.True(t, ep.closed)
}

func TestFlusherDropsShouldDropEntries(t *testing.T) {
	ep := &fakeEndpoint{}
	f := New(ep)

	var gotErr error
	done := make(chan struct{})
	f.Enqueue(&h2engine.OutboundEntry{
		StreamID:      5,
		Data:          []byte("hello"),
		DataRemaining: 5,
		ShouldDrop:    func() bool { return true },
		OnComplete: func(err error) {
			gotErr = err
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dropped entry never completed")
	}
	assert.Error(t, gotErr)
	assert.Zero(t, ep.writeCount())
}
