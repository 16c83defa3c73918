/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

import (
	"github.com/Seednode/doodlebox/event"
)

// DefaultHistorySize is the number of events kept for late joiners.
const DefaultHistorySize = 5000

// History is a bounded ring of events. Once full, each append overwrites the
// oldest entry. It is not safe for concurrent use; the Relay guards it.
type History struct {
	entries  []event.Event
	head     int // next write position
	count    int
	capacity int
}

// NewHistory returns an empty history holding at most capacity events.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}

	return &History{
		entries:  make([]event.Event, capacity),
		capacity: capacity,
	}
}

// Append adds e at the tail, evicting the head when full.
func (h *History) Append(e event.Event) {
	h.entries[h.head] = e
	h.head = (h.head + 1) % h.capacity

	if h.count < h.capacity {
		h.count++
	}
}

// Snapshot returns a copy of the events, oldest first.
func (h *History) Snapshot() event.History {
	out := make(event.History, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.entries[(h.head-h.count+i+h.capacity)%h.capacity]
	}

	return out
}

func (h *History) Len() int {
	return h.count
}

func (h *History) Cap() int {
	return h.capacity
}
