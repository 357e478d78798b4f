// Package channel holds the event-sourced domain types for a single
// payment channel — state updates, channel events, channel intents, the
// derived Channel aggregate — and the pure reducer that folds an ordered
// event stream into that aggregate (spec §3, §4.5).
package channel

import (
	"time"

	"paychledger/address"
	"paychledger/wei"
)

// Key identifies a channel by its three-part composite key.
type Key struct {
	ChainID    int64
	ContractID address.Address
	ChannelID  address.Hash
}

// EventType enumerates the on-chain occurrences the reducer understands.
type EventType string

const (
	DidCreateChannel EventType = "DidCreateChannel"
	DidDeposit       EventType = "DidDeposit"
	DidStartSettle   EventType = "DidStartSettle"
	DidSettle        EventType = "DidSettle"
)

// State is a channel's lifecycle phase.
type State string

const (
	StateNone     State = "" // no event observed yet; NULL in spec terms
	StateOpen     State = "OPEN"
	StateSettling State = "SETTLING"
	StateSettled  State = "SETTLED"
)

// Fields is the typed payload carried by a ChannelEvent or ChannelIntent.
// Exactly the subset relevant to its EventType is populated; the reducer
// reads fields by event type and raises a MissingFieldError for any field
// required by that type but left nil.
type Fields struct {
	Sender           *address.Address `json:"sender,omitempty"`
	Receiver         *address.Address `json:"receiver,omitempty"`
	SettlementPeriod *int64           `json:"settlement_period,omitempty"` // seconds
	Until            *int64           `json:"until,omitempty"`             // unix epoch seconds
	Value            *wei.Amount      `json:"value,omitempty"`
	Payment          *wei.Amount      `json:"payment,omitempty"`
	OddValue         *wei.Amount      `json:"odd_value,omitempty"`
}

// MissingFieldError reports a required field absent from an event payload.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string { return e.Field + " must not be null" }

func missing(field string) error { return &MissingFieldError{Field: field} }

// Event is the minimal shape the reducer folds over: a chain event or an
// intent event, distinguished by whether BlockHash is present. Ordering
// among events is the caller's responsibility (spec's ordering key,
// applied by the store before the slice reaches Reduce).
type Event struct {
	Key       Key
	Ts        time.Time
	Block     int64
	BlockHash *address.Hash // nil for an uncorrelated intent
	Sender    address.Address
	EventType EventType
	Fields    Fields

	// IsIntent is true when this row originated from channel_intents,
	// independent of whether BlockHash has since been correlated. The
	// reducer uses it to sort events into LatestIntentEvent vs.
	// LatestChainEvent; state_is_intent flips on a nil BlockHash instead
	// (spec §4.5).
	IsIntent bool
}

// StateUpdate is a signed off-chain payment declaration (spec §3).
type StateUpdate struct {
	Key       Key
	Ts        time.Time
	Amount    wei.Amount
	Signature address.Signature
}

// ChannelIntent mirrors ChannelEvent but with a nullable correlated hash.
type ChannelIntent struct {
	ID        string // uuid
	Key       Key
	Ts        time.Time
	Block     int64
	BlockHash *address.Hash
	Sender    address.Address
	EventType EventType
	Fields    Fields
}

// ChannelEvent is an observed on-chain occurrence (spec §3).
type ChannelEvent struct {
	ID            string // uuid
	Key           Key
	Ts            time.Time
	Block         int64
	BlockHash     address.Hash
	BlockIsValid  bool
	Sender        address.Address
	EventType     EventType
	Fields        Fields
}

// Channel is the derived, never-persisted aggregate a channel folds to.
type Channel struct {
	Key Key

	Sender           address.Address
	Receiver         address.Address
	Value            wei.Amount
	SettlementPeriod int64
	Until            int64
	Payment          wei.Amount
	OddValue         wei.Amount

	State         State
	StateIsIntent bool

	OpenedOn              time.Time
	SettlementStartedOn   time.Time
	SettlementFinalizedOn time.Time
}

// Clone returns a deep copy so callers mutating the result cannot corrupt
// cached state, mirroring the teacher's Escrow.Clone() convention.
func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
