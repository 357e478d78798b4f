package ledger

import (
	"fmt"
	"math/big"
	"time"

	"paychledger/address"
	"paychledger/channel"
	"paychledger/wei"
)

// DupeStatus classifies a state update against the channel's existing rows,
// per spec §4.7 step 1. Conflict is declared but never produced by the
// current rule — see DESIGN.md's Open Question decision.
type DupeStatus string

const (
	DupeStatusDistinct DupeStatus = "distinct"
	DupeStatusDupe     DupeStatus = "dupe"
	DupeStatusConflict DupeStatus = "conflict"
)

// StateUpdateStatus is the object get_state_update_status returns, and the
// snapshot quarantined alongside a rejected update.
type StateUpdateStatus struct {
	SignatureValid bool        `json:"signature_valid"`
	IsLatest       bool        `json:"is_latest"`
	AddedAmount    *big.Int    `json:"added_amount"`
	DupeStatus     DupeStatus  `json:"dupe_status"`
	Latest         *channel.StateUpdate `json:"latest"`
}

// ChannelStatus is the document get_channel_status (and, by extension,
// insert_channel_event/insert_channel_intent/set_recent_blocks) returns.
type ChannelStatus struct {
	Channel                 *channel.Channel `json:"channel"`
	LatestState             *channel.StateUpdate `json:"latest_state"`
	CurrentPayment          *wei.Amount      `json:"current_payment"`
	CurrentRemainingBalance *wei.Amount      `json:"current_remaining_balance"`
	LatestEvent             *channel.Event   `json:"latest_event"`
	LatestIntentEvent       *channel.Event   `json:"latest_intent_event"`
	LatestChainEvent        *channel.Event   `json:"latest_chain_event"`
	IsInvalid               bool             `json:"is_invalid"`
	IsInvalidReason         string           `json:"is_invalid_reason,omitempty"`
}

// AdmitResult is the success shape insert_state_update returns (spec §4.7
// step 6).
type AdmitResult struct {
	ID                      string               `json:"id"`
	Created                 bool                 `json:"created"`
	Status                  StateUpdateStatus    `json:"status"`
	IsLatest                bool                 `json:"is_latest"`
	LatestState             *channel.StateUpdate `json:"latest_state"`
	AddedAmount             *big.Int             `json:"added_amount"`
	ChannelPayment          *big.Int             `json:"channel_payment"`
	ChannelRemainingBalance *big.Int             `json:"channel_remaining_balance"`
}

// RecentBlocksResult is set_recent_blocks's return shape.
type RecentBlocksResult struct {
	UpdatedEventCount int             `json:"updated_event_count"`
	UpdatedChannels   []ChannelStatus `json:"updated_channels"`
}

// QuarantineReason enumerates the reasons a state update is logged to
// invalid_state_updates instead of being admitted (spec §7).
type QuarantineReason string

const (
	ReasonSignatureInvalid QuarantineReason = "signature_invalid"
	ReasonConflict         QuarantineReason = "conflict"
	ReasonNegativeAmount   QuarantineReason = "negative_amount"
	ReasonInvalidState     QuarantineReason = "invalid_state"
)

// QuarantineError is returned by AdmitStateUpdate's storage step for every
// rejection spec §4.7 steps 2-5 describe; it carries the status snapshot the
// caller must echo back in the {error:true, reason, status} wire shape.
type QuarantineError struct {
	Reason QuarantineReason
	Detail string // populated for ReasonInvalidState's "<underlying message>"
	Status StateUpdateStatus
}

func (e *QuarantineError) Error() string {
	if e.Detail != "" {
		return string(e.Reason) + ": " + e.Detail
	}
	return string(e.Reason)
}

// ValidationError is a rejected-before-any-row-written input-shape failure
// (spec §7's "Validation" kind): "<field> must not be null", "must be text",
// or a domain-check failure. It is returned as-is, with no row written
// anywhere, including invalid_state_updates.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ChannelEventRow and ChannelIntentRow are the store-facing insert payloads,
// already validated and resolved to internal types; they exist separately
// from channel.ChannelEvent/ChannelIntent so Store implementations decide
// their own surrogate-id and server-timestamp conventions.
type ChannelEventRow struct {
	Key       channel.Key
	Ts        time.Time
	Block     int64
	BlockHash address.Hash
	Sender    address.Address
	EventType channel.EventType
	Fields    channel.Fields
}

type ChannelIntentRow struct {
	Key       channel.Key
	Block     int64
	Sender    address.Address
	EventType channel.EventType
	Fields    channel.Fields
}
