package channel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paychledger/address"
	"paychledger/channel"
)

func TestSortOrdersByBlockThenNullsFirstThenTs(t *testing.T) {
	hashA := mustHash("aaaa222233334444555566667777888899990000111122223333444455556677")
	hashB := mustHash("bbbb222233334444555566667777888899990000111122223333444455556677")
	base := time.Unix(1_700_000_000, 0)

	events := []channel.Event{
		{Block: 2, BlockHash: &hashB, Ts: base}, // chain event at block 2
		{Block: 1, BlockHash: &hashA, Ts: base}, // chain event at block 1
		{Block: 1, BlockHash: nil, Ts: base},    // intent at block 1, sorts before the chain event
		{Block: 2, BlockHash: nil, Ts: base.Add(-time.Hour)},
	}

	channel.Sort(events, nil)

	require.Equal(t, int64(1), events[0].Block)
	require.Nil(t, events[0].BlockHash)
	require.Equal(t, int64(1), events[1].Block)
	require.NotNil(t, events[1].BlockHash)
	require.Equal(t, int64(2), events[2].Block)
	require.Nil(t, events[2].BlockHash)
	require.Equal(t, int64(2), events[3].Block)
	require.NotNil(t, events[3].BlockHash)
}

func TestSortUsesInsertSeqAsStableTiebreaker(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []channel.Event{
		{Block: 1, Ts: base, Sender: address1()},
		{Block: 1, Ts: base, Sender: address2()},
	}
	// originally [address1, address2] both tie on block/hash/ts; assign the
	// second event the smaller InsertSeq so it must sort first.
	seqs := []int64{5, 1}
	next := 0
	channel.Sort(events, func(*channel.Event) int64 {
		seq := seqs[next]
		next++
		return seq
	})

	require.True(t, events[0].Sender.Equal(address2()))
	require.True(t, events[1].Sender.Equal(address1()))
}

func address1() address.Address { return address.MustParseAddress("1111111111111111111111111111111111111111") }
func address2() address.Address { return address.MustParseAddress("2222222222222222222222222222222222222222") }
