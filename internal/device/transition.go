package device

import (
	"fmt"
	"time"
)

// EventTimeLayout is the timestamp format embedded in event messages.
const EventTimeLayout = "2006-01-02 15:04:05"

// Transition decides the new status and the event to record for one probe.
//
// The first observation of a device (previous == StatusUnknown) yields an
// initial-status event. Every later probe yields a check event, whether or
// not the status changed.
func Transition(previous Status, reachable bool, address string, now time.Time) (Status, Event) {
	next := StatusFromReachable(reachable)
	stamp := now.Format(EventTimeLayout)

	if previous == StatusUnknown {
		return next, Event{
			Time:    now,
			Kind:    EventInitial,
			Status:  next,
			Message: fmt.Sprintf("[%s] initial status: %s", stamp, next),
		}
	}

	return next, Event{
		Time:    now,
		Kind:    EventCheck,
		Status:  next,
		Message: fmt.Sprintf("[%s] Device %s is %s", stamp, address, next),
	}
}
