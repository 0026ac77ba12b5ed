package poller

import "time"

// State of one operation as seen by the poller.
//
//	Submitted -> Polling -> Polling ... -> Done | Failed | TimedOut | Cancelled
type State int

const (
	StateSubmitted State = iota
	StatePolling
	StateDone
	StateFailed
	StateTimedOut
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further status checks follow this state.
func (s State) Terminal() bool {
	return s >= StateDone
}

// Transition is reported for every state change and for each Polling self-loop.
type Transition struct {
	Operation string
	From      State
	To        State
	// Attempt is the number of status checks issued so far
	Attempt int
	Elapsed time.Duration
}
