// Package ledger implements the ten public operations spec §6 defines,
// composing the pure channel/intents/reorg packages with a pluggable Store
// and an injectable signature verifier. Wire-shaped request/response types
// live here so callers (cmd/paychctl, tests) can decode/encode spec's JSON
// documents directly.
package ledger

import (
	"fmt"
	"time"

	"paychledger/address"
	"paychledger/channel"
	"paychledger/wei"
)

// ChannelKey is the wire form of a channel's composite key.
type ChannelKey struct {
	ChainID    *int64  `json:"chain_id"`
	ContractID *string `json:"contract_id"`
	ChannelID  *string `json:"channel_id"`
}

// Resolve validates and converts a wire ChannelKey into the internal type,
// per spec §6's "<field> must not be null" rule for GetLatestState and every
// other operation keyed on a channel.
func (k ChannelKey) Resolve() (channel.Key, error) {
	if k.ChainID == nil {
		return channel.Key{}, fmt.Errorf("chain_id must not be null")
	}
	if k.ContractID == nil {
		return channel.Key{}, fmt.Errorf("contract_id must not be null")
	}
	if k.ChannelID == nil {
		return channel.Key{}, fmt.Errorf("channel_id must not be null")
	}
	contract, err := address.ParseAddress(*k.ContractID)
	if err != nil {
		return channel.Key{}, err
	}
	ch, err := address.ParseHash(*k.ChannelID)
	if err != nil {
		return channel.Key{}, err
	}
	return channel.Key{ChainID: *k.ChainID, ContractID: contract, ChannelID: ch}, nil
}

// FieldsWire is the wire shape of an event's typed payload: every field is
// optional on the wire, and which ones are required depends on EventType
// (spec §3's per-event-type field list, enforced by the reducer at fold
// time rather than here, per §4.5's "missing-but-required fields ... raise
// a distinct error").
type FieldsWire struct {
	Sender           *string `json:"sender,omitempty"`
	Receiver         *string `json:"receiver,omitempty"`
	SettlementPeriod *int64  `json:"settlement_period,omitempty"`
	Until            *int64  `json:"until,omitempty"`
	Value            *string `json:"value,omitempty"`
	Payment          *string `json:"payment,omitempty"`
	OddValue         *string `json:"odd_value,omitempty"`
}

// Resolve converts the wire payload into the internal Fields type,
// validating any amount strings that are present (absence is legal here;
// the reducer decides whether absence is fatal for a given event type).
func (f FieldsWire) Resolve() (channel.Fields, error) {
	var out channel.Fields
	if f.Sender != nil {
		a, err := address.ParseAddress(*f.Sender)
		if err != nil {
			return channel.Fields{}, err
		}
		out.Sender = &a
	}
	if f.Receiver != nil {
		a, err := address.ParseAddress(*f.Receiver)
		if err != nil {
			return channel.Fields{}, err
		}
		out.Receiver = &a
	}
	out.SettlementPeriod = f.SettlementPeriod
	out.Until = f.Until
	if f.Value != nil {
		v, err := wei.ParseString(*f.Value)
		if err != nil {
			return channel.Fields{}, err
		}
		out.Value = &v
	}
	if f.Payment != nil {
		v, err := wei.ParseString(*f.Payment)
		if err != nil {
			return channel.Fields{}, err
		}
		out.Payment = &v
	}
	if f.OddValue != nil {
		v, err := wei.ParseString(*f.OddValue)
		if err != nil {
			return channel.Fields{}, err
		}
		out.OddValue = &v
	}
	return out, nil
}

// ChannelEventInput is the wire request for insert_channel_event.
type ChannelEventInput struct {
	ChannelKey
	Ts          int64            `json:"ts"`
	BlockNumber int64            `json:"block_number"`
	BlockHash   string           `json:"block_hash"`
	Sender      string           `json:"sender"`
	EventType   channel.EventType `json:"event_type"`
	Fields      FieldsWire       `json:"fields"`
}

// ChannelIntentInput is the wire request for insert_channel_intent. Unlike
// a chain event, it carries no block_hash — it is the caller's anticipation
// of one, per spec §3.
type ChannelIntentInput struct {
	ChannelKey
	BlockNumber int64            `json:"block_number"`
	Sender      string           `json:"sender"`
	EventType   channel.EventType `json:"event_type"`
	Fields      FieldsWire       `json:"fields"`
}

// StateUpdateInput is the wire request for insert_state_update and
// get_state_update_status.
type StateUpdateInput struct {
	ChannelKey
	Amount    interface{} `json:"amount"` // must decode as string; see wei.DecodeSignedWireValue
	Signature string      `json:"signature"`
}

func resolveTs(unixSeconds int64) time.Time {
	return time.Unix(unixSeconds, 0).UTC()
}
