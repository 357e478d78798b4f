// Package intents implements the pure correlation predicate behind the
// intent-correlation engine (spec §4.3): for a given intent, pick the
// chain event it should currently be bound to, or report that none
// qualifies. The store-side triggers (insert/update/delete of a chain
// event) are responsible for calling this after re-querying candidates;
// this package carries no storage dependency so the matching rule itself
// stays independently testable.
package intents

import "paychledger/address"

// Candidate is one chain event eligible to correlate against an intent: it
// already satisfies chain_id/contract_id/channel_id/sender/event_type/
// fields equality (the caller filters on those after loading the rows), and
// is currently valid (block_is_valid = true).
type Candidate struct {
	BlockHash address.Hash
	Block     int64
	InsertSeq int64 // monotonic insertion order; higher = more recent
}

// Correlate implements spec §4.3's invariant: the candidate with the
// greatest InsertSeq among those whose Block is >= the intent's floor,
// or nil if no candidate qualifies.
func Correlate(intentBlockFloor int64, candidates []Candidate) *address.Hash {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Block < intentBlockFloor {
			continue
		}
		if best == nil || c.InsertSeq > best.InsertSeq {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	h := best.BlockHash
	return &h
}

// AppliesOnInsert reports whether a newly-inserted chain event at
// insertedBlock should (re)bind an intent whose floor is intentBlockFloor,
// per spec §4.3's insert trigger: "all matching intents with block_number
// <= inserted.block_number have their block_hash set to the new event's
// hash" — an intent declares a block floor, not a ceiling.
func AppliesOnInsert(intentBlockFloor, insertedBlock int64) bool {
	return intentBlockFloor <= insertedBlock
}
