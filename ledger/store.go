package ledger

import (
	"context"
	"math/big"
	"time"

	"paychledger/address"
	"paychledger/channel"
)

// Store is the transactional persistence boundary the Ledger composes
// against. storage/postgres.Store is the production implementation; tests
// substitute a fake that satisfies the same per-channel serialization
// contract spec §5 requires.
type Store interface {
	// SetupDatabase idempotently installs the schema.
	SetupDatabase(ctx context.Context) error

	// Ping reports whether the store is reachable, backing selftest().
	Ping(ctx context.Context) error

	// InsertChannelEvent appends a chain event, rebinds any intents whose
	// block floor it satisfies (spec §4.3), and returns the new row's id.
	InsertChannelEvent(ctx context.Context, evt ChannelEventRow) (id string, err error)

	// InsertChannelIntent appends an intent, immediately correlates it
	// against existing chain events (spec §4.3), and returns the new row's
	// id.
	InsertChannelIntent(ctx context.Context, intent ChannelIntentRow) (id string, err error)

	// SetRecentBlocks flips block_is_valid per spec §4.4, lets the
	// intent-correlation engine react, and returns the count of flipped
	// rows plus the distinct touched channel keys in first-flip order.
	SetRecentBlocks(ctx context.Context, chainID, firstBlockNum int64, hashes []address.Hash) (updatedCount int, touched []channel.Key, err error)

	// LoadChannelEvents returns every row feeding the reducer for key,
	// already filtered to valid chain events plus (if includeIntents)
	// uncorrelated intents, sorted per the canonical ordering key.
	LoadChannelEvents(ctx context.Context, key channel.Key, includeIntents bool) ([]channel.Event, error)

	// LoadLatestState returns the channel's state update with the greatest
	// amount, or nil if none exists.
	LoadLatestState(ctx context.Context, key channel.Key) (*channel.StateUpdate, error)

	// AdmitStateUpdate executes spec §4.7 steps 1-6's transactional core:
	// given the already-computed signatureValid flag (the caller owns the
	// pure digest/verify step, since that needs no database access), it
	// locks the channel, looks up the latest state-update by max amount,
	// classifies dupe/distinct, and branches per spec §4.7 steps 2-5,
	// mutating state_updates or invalid_state_updates as appropriate. On a
	// quarantine branch it returns a *QuarantineError carrying the status
	// snapshot; on success it returns the created row's id (empty if the
	// update was a no-op dupe) and whether a new row was actually written.
	AdmitStateUpdate(ctx context.Context, key channel.Key, amount *big.Int, sig address.Signature, ts time.Time, signatureValid bool) (id string, created bool, status StateUpdateStatus, err error)
}
