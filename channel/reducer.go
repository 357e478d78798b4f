package channel

import (
	"fmt"
)

// Result is the outcome of folding an event stream through Reduce.
type Result struct {
	Channel *Channel // nil if the stream was empty

	IsInvalid     bool
	InvalidReason string

	LatestEvent       *Event
	LatestIntentEvent *Event
	LatestChainEvent  *Event
}

// requiredStates lists the channel.State values an event type may be
// applied from, in the order spec §4.5's table lists them, for building the
// "should be X[ or Y]" message.
var requiredStates = map[EventType][]State{
	DidCreateChannel: {StateNone},
	DidDeposit:       {StateOpen},
	DidStartSettle:   {StateOpen},
	DidSettle:        {StateOpen, StateSettling},
}

func stateLabel(s State) string {
	if s == StateNone {
		return "NULL"
	}
	return "CS_" + string(s)
}

func satisfies(actual State, allowed []State) bool {
	for _, s := range allowed {
		if actual == s {
			return true
		}
	}
	return false
}

func invalidStateReason(evtType EventType, actual State, allowed []State) string {
	labels := make([]string, len(allowed))
	for i, s := range allowed {
		labels[i] = stateLabel(s)
	}
	expected := labels[0]
	if len(labels) > 1 {
		expected = labels[0] + " or " + labels[1]
	}
	return fmt.Sprintf("invalid channel state for event %s: got %s but should be %s",
		evtType, stateLabel(actual), expected)
}

// Reduce pure-folds an ordered event stream into a Channel aggregate per
// spec §4.5. The caller is responsible for presenting events already sorted
// by the canonical ordering key (block_number, block_hash NULLS FIRST, ts)
// and already filtered to valid chain events plus (optionally) uncorrelated
// intents, per §4.3/§4.6.
//
// Reduce returns a non-nil error only for a malformed event (an unknown
// event type, or a required field missing for the event's type); a logical
// precondition violation is
// not an error — it is reported via Result.IsInvalid/InvalidReason, and the
// fold halts without applying that event or any event after it.
func Reduce(events []Event) (Result, error) {
	var result Result
	var ch *Channel

	for i := range events {
		evt := &events[i]

		if evt.IsIntent {
			result.LatestIntentEvent = evt
		} else {
			result.LatestChainEvent = evt
		}
		result.LatestEvent = evt

		state := StateNone
		if ch != nil {
			state = ch.State
		}
		allowed, known := requiredStates[evt.EventType]
		if !known {
			return Result{}, fmt.Errorf("channel: unknown event type %q", evt.EventType)
		}
		if !satisfies(state, allowed) {
			result.IsInvalid = true
			result.InvalidReason = invalidStateReason(evt.EventType, state, allowed)
			break
		}

		next, err := apply(ch, evt)
		if err != nil {
			return Result{}, err
		}
		ch = next

		if evt.BlockHash == nil {
			ch.StateIsIntent = true
		}
	}

	result.Channel = ch
	return result, nil
}

func apply(ch *Channel, evt *Event) (*Channel, error) {
	if ch == nil {
		ch = &Channel{
			Key:           evt.Key,
			StateIsIntent: false,
		}
	} else {
		cloned := ch.Clone()
		ch = cloned
	}

	switch evt.EventType {
	case DidCreateChannel:
		if evt.Fields.Sender == nil {
			return nil, missing("sender")
		}
		if evt.Fields.Receiver == nil {
			return nil, missing("receiver")
		}
		if evt.Fields.SettlementPeriod == nil {
			return nil, missing("settlement_period")
		}
		if evt.Fields.Until == nil {
			return nil, missing("until")
		}
		if evt.Fields.Value == nil {
			return nil, missing("value")
		}
		ch.State = StateOpen
		ch.Sender = *evt.Fields.Sender
		ch.Receiver = *evt.Fields.Receiver
		ch.SettlementPeriod = *evt.Fields.SettlementPeriod
		ch.Until = *evt.Fields.Until
		ch.Value = *evt.Fields.Value
		ch.OpenedOn = evt.Ts

	case DidDeposit:
		if evt.Fields.Value == nil {
			return nil, missing("value")
		}
		ch.Value = ch.Value.Add(*evt.Fields.Value)

	case DidStartSettle:
		if evt.Fields.Payment == nil {
			return nil, missing("payment")
		}
		ch.State = StateSettling
		ch.SettlementStartedOn = evt.Ts
		ch.Until = evt.Ts.Unix() + ch.SettlementPeriod
		ch.Payment = *evt.Fields.Payment

	case DidSettle:
		if evt.Fields.Payment == nil {
			return nil, missing("payment")
		}
		if evt.Fields.OddValue == nil {
			return nil, missing("odd_value")
		}
		ch.State = StateSettled
		ch.SettlementFinalizedOn = evt.Ts
		ch.Payment = *evt.Fields.Payment
		ch.OddValue = *evt.Fields.OddValue

	default:
		return nil, fmt.Errorf("channel: unknown event type %q", evt.EventType)
	}

	return ch, nil
}
