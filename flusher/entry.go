package flusher

import (
	"time"

	"github.com/dgrr/h2engine"
)

// entry wraps a queued OutboundEntry with the bookkeeping the flusher's
// timeout heap and drain loop need that callers shouldn't see.
type entry struct {
	*h2engine.OutboundEntry

	frameDeadline   time.Time
	messageDeadline time.Time

	heapIndex int
}

func (e *entry) hasDeadline() bool {
	return !e.frameDeadline.IsZero() || !e.messageDeadline.IsZero()
}

// deadline returns the earlier of the two active deadlines.
func (e *entry) deadline() time.Time {
	switch {
	case e.frameDeadline.IsZero():
		return e.messageDeadline
	case e.messageDeadline.IsZero():
		return e.frameDeadline
	case e.frameDeadline.Before(e.messageDeadline):
		return e.frameDeadline
	default:
		return e.messageDeadline
	}
}

func (e *entry) expired(now time.Time) bool {
	return e.hasDeadline() && !now.Before(e.deadline())
}

func (e *entry) complete(err error) {
	if e.OnComplete != nil {
		e.OnComplete(err)
	}
	if e.Frame != nil {
		h2engine.ReleaseFrameHeader(e.Frame)
	}
}

func (e *entry) isData() bool { return e.Data != nil }

func (e *entry) shouldDrop() bool {
	return e.ShouldDrop != nil && e.ShouldDrop()
}
