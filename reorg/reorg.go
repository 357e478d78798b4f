// Package reorg implements the pure computation behind set_recent_blocks
// (spec §4.4): given the canonical suffix of block hashes a chain client has
// asserted, decide which previously-observed chain events are still valid.
package reorg

import "paychledger/address"

// sentinelHash can never equal a real block hash, so any block number past
// the asserted hash list is always invalidated (spec §4.4 edge case).
var sentinelHash = address.Hash{}

// EventRef is the minimal view of a stored ChannelEvent the processor needs:
// its position on chain and current validity flag.
type EventRef struct {
	ID           string
	Key          interface{} // opaque channel key, round-tripped for the caller's grouping
	Block        int64
	BlockHash    address.Hash
	BlockIsValid bool
}

// Flip describes one event whose validity changed.
type Flip struct {
	Event   EventRef
	NewValid bool
}

// Compute evaluates spec §4.4 against the supplied events (already filtered
// to chain_id and block_number >= firstBlockNum by the caller) and the
// asserted canonical hash list starting at firstBlockNum. It returns only
// the events whose block_is_valid actually changes, in input order; the
// caller is responsible for translating that into updated_event_count and
// the distinct-channels-ordered-by-first-flip contract of §4.4, since that
// requires store-side channel identity the pure computation does not carry.
func Compute(firstBlockNum int64, hashes []address.Hash, events []EventRef) []Flip {
	var flips []Flip
	for _, evt := range events {
		if evt.Block < firstBlockNum {
			continue
		}
		idx := evt.Block - firstBlockNum
		expected := sentinelHash
		if idx >= 0 && int(idx) < len(hashes) {
			expected = hashes[idx]
		}
		newValid := expected.Equal(evt.BlockHash)
		if newValid != evt.BlockIsValid {
			flips = append(flips, Flip{Event: evt, NewValid: newValid})
		}
	}
	return flips
}
