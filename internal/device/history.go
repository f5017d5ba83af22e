package device

import "time"

// HistoryCapacity is the number of events kept per device.
const HistoryCapacity = 100

// EventKind distinguishes the first observation of a device from later ones.
type EventKind string

const (
	EventInitial EventKind = "initial"
	EventCheck   EventKind = "check"
)

// Event is one entry in a device's history.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Status  Status    `json:"status"`
	Message string    `json:"message"`
}

// History is a fixed-capacity ring of events, oldest evicted first.
// The zero value is an empty ring with HistoryCapacity slots.
type History struct {
	buf   []Event
	start int
	size  int
}

// Append adds e as the most recent event, evicting the oldest when full.
func (h *History) Append(e Event) {
	if h.buf == nil {
		h.buf = make([]Event, HistoryCapacity)
	}
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = e
		h.size++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of events held.
func (h *History) Len() int {
	return h.size
}

// Events returns the events oldest first. The slice is a copy.
func (h *History) Events() []Event {
	out := make([]Event, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Last returns the most recent event.
func (h *History) Last() (Event, bool) {
	if h.size == 0 {
		return Event{}, false
	}
	return h.buf[(h.start+h.size-1)%len(h.buf)], true
}

// Clone returns an independent copy of the ring.
func (h History) Clone() History {
	if h.buf == nil {
		return History{}
	}
	buf := make([]Event, len(h.buf))
	copy(buf, h.buf)
	return History{buf: buf, start: h.start, size: h.size}
}
