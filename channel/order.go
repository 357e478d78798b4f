package channel

import "sort"

// SortKey returns the three-part ordering tuple spec §3 defines for events
// within a channel: (block_number, block_hash NULLS FIRST, ts). Intents
// (nil BlockHash) sort before chain events at the same block number.
type SortKey struct {
	Block     int64
	HasHash   bool // false sorts first (NULLS FIRST)
	Hash      string
	Ts        int64
	InsertSeq int64 // stable tiebreaker, matches insertion-id semantics
}

func (e *Event) sortKey(seq int64) SortKey {
	k := SortKey{Block: e.Block, Ts: e.Ts.UnixNano(), InsertSeq: seq}
	if e.BlockHash != nil {
		k.HasHash = true
		k.Hash = e.BlockHash.String()
	}
	return k
}

func less(a, b SortKey) bool {
	if a.Block != b.Block {
		return a.Block < b.Block
	}
	if a.HasHash != b.HasHash {
		return !a.HasHash // no hash (intent) sorts first
	}
	if a.Hash != b.Hash {
		return a.Hash < b.Hash
	}
	if a.Ts != b.Ts {
		return a.Ts < b.Ts
	}
	return a.InsertSeq < b.InsertSeq
}

// Sort orders events in place per the canonical ordering key. InsertSeq
// should reflect each event's storage insertion order (e.g. a monotonic
// sequence or surrogate id ordering) so ties resolve deterministically, per
// spec §5's "insertion-id tie-breakers" guarantee.
func Sort(events []Event, insertSeq func(*Event) int64) {
	type keyed struct {
		key SortKey
		evt Event
	}
	rows := make([]keyed, len(events))
	for i := range events {
		seq := int64(i)
		if insertSeq != nil {
			seq = insertSeq(&events[i])
		}
		rows[i] = keyed{key: events[i].sortKey(seq), evt: events[i]}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return less(rows[i].key, rows[j].key)
	})
	for i := range rows {
		events[i] = rows[i].evt
	}
}
