// Package trigger runs one hold-to-record state machine per profile and
// coordinates them from a single event-handling goroutine.
//
// A press arms the profile's capture. A release stops it, converts the
// samples to the canonical format and dispatches one transcription. The
// result is rewritten by the alias table and delivered from the worker
// goroutine. Every path ends back in Idle.
package trigger

import "fmt"

// State is a profile's position in its recording cycle.
type State int

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
