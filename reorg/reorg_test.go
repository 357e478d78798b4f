package reorg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"paychledger/address"
	"paychledger/reorg"
)

func hashOf(b byte) address.Hash {
	hex := ""
	for i := 0; i < 32; i++ {
		hex += "00"
	}
	h, err := address.ParseHash(hex[:62] + byteHex(b))
	if err != nil {
		panic(err)
	}
	return h
}

func byteHex(b byte) string {
	const hexDigits = "0123456789abcdef"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0f]})
}

func TestComputeNoChangeWhenHashesMatch(t *testing.T) {
	events := []reorg.EventRef{
		{ID: "a", Block: 10, BlockHash: hashOf(1), BlockIsValid: true},
		{ID: "b", Block: 11, BlockHash: hashOf(2), BlockIsValid: true},
	}
	flips := reorg.Compute(10, []address.Hash{hashOf(1), hashOf(2)}, events)
	require.Empty(t, flips)
}

func TestComputeFlipsInvalidatedEvent(t *testing.T) {
	events := []reorg.EventRef{
		{ID: "a", Block: 10, BlockHash: hashOf(1), BlockIsValid: true},
		{ID: "b", Block: 11, BlockHash: hashOf(99), BlockIsValid: true},
	}
	flips := reorg.Compute(10, []address.Hash{hashOf(1), hashOf(2)}, events)
	require.Len(t, flips, 1)
	require.Equal(t, "b", flips[0].Event.ID)
	require.False(t, flips[0].NewValid)
}

func TestComputeRevalidatesPreviouslyInvalidEvent(t *testing.T) {
	events := []reorg.EventRef{
		{ID: "a", Block: 10, BlockHash: hashOf(1), BlockIsValid: false},
	}
	flips := reorg.Compute(10, []address.Hash{hashOf(1)}, events)
	require.Len(t, flips, 1)
	require.True(t, flips[0].NewValid)
}

func TestComputeInvalidatesEventsPastAssertedSuffix(t *testing.T) {
	events := []reorg.EventRef{
		{ID: "a", Block: 20, BlockHash: hashOf(1), BlockIsValid: true},
	}
	// Only block 10 was asserted; block 20 is beyond the supplied suffix and
	// can never match the sentinel, so it must flip to invalid.
	flips := reorg.Compute(10, []address.Hash{hashOf(9)}, events)
	require.Len(t, flips, 1)
	require.False(t, flips[0].NewValid)
}

func TestComputeSkipsEventsBeforeFirstBlockNum(t *testing.T) {
	events := []reorg.EventRef{
		{ID: "a", Block: 5, BlockHash: hashOf(1), BlockIsValid: true},
	}
	flips := reorg.Compute(10, []address.Hash{hashOf(1)}, events)
	require.Empty(t, flips)
}
