// Package streamvalidate implements the pure, I/O-free event-order state
// machine that every normalized event stream must satisfy. It runs in O(1)
// per event and O(k) memory, where k is the number of open tool calls.
package streamvalidate

import (
	"github.com/sidedotdev/inferencecore/event"
	"github.com/sidedotdev/inferencecore/sdkerr"
)

type state int

const (
	stateIdle state = iota
	stateStarted
	stateEnded
)

// Validator is an incremental event-order state machine. The zero value
// is ready to use.
type Validator struct {
	state         state
	openToolCalls map[string]struct{}
}

// Feed advances the state machine by one event, returning a
// StreamInvariantViolation if the event is not valid in the current state.
func (v *Validator) Feed(e event.Event) error {
	switch v.state {
	case stateIdle:
		if e.Kind != event.MessageStart {
			return sdkerr.NewStreamInvariantViolation("event before MessageStart")
		}
		v.state = stateStarted
		v.openToolCalls = make(map[string]struct{})
		return nil

	case stateStarted:
		switch e.Kind {
		case event.MessageStart:
			return sdkerr.NewStreamInvariantViolation("duplicate MessageStart")
		case event.MessageDelta, event.ThinkingDelta:
			return nil
		case event.ToolCallStart:
			if _, open := v.openToolCalls[e.ToolCallID]; open {
				return sdkerr.NewStreamInvariantViolation("duplicate ToolCallStart id: " + e.ToolCallID)
			}
			v.openToolCalls[e.ToolCallID] = struct{}{}
			return nil
		case event.ToolCallDelta:
			if _, open := v.openToolCalls[e.ToolCallID]; !open {
				return sdkerr.NewStreamInvariantViolation("ToolCallDelta for unknown id: " + e.ToolCallID)
			}
			return nil
		case event.MessageEnd:
			v.state = stateEnded
			return nil
		default:
			return sdkerr.NewStreamInvariantViolation("unknown event kind")
		}

	case stateEnded:
		return sdkerr.NewStreamInvariantViolation("event after MessageEnd")

	default:
		return sdkerr.NewStreamInvariantViolation("unknown validator state")
	}
}

// Finish must be called once the stream has ended (no more events will
// arrive). It reports a violation if the stream never reached MessageEnd.
func (v *Validator) Finish() error {
	if v.state != stateEnded {
		return sdkerr.NewStreamInvariantViolation("stream ended without MessageEnd")
	}
	return nil
}

// ValidateEventSequence is the one-shot equivalent of feeding a Validator
// incrementally; both must agree.
func ValidateEventSequence(events []event.Event) error {
	var v Validator
	for _, e := range events {
		if err := v.Feed(e); err != nil {
			return err
		}
	}
	return v.Finish()
}
