package channel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"paychledger/channel"
)

func TestFieldsEqualTreatsMatchingPayloadsAsEqual(t *testing.T) {
	a := channel.Fields{
		Sender: addr("1111111111111111111111111111111111111111"),
		Value:  amt(1000),
	}
	b := channel.Fields{
		Sender: addr("1111111111111111111111111111111111111111"),
		Value:  amt(1000),
	}
	require.True(t, channel.FieldsEqual(a, b))
}

func TestFieldsEqualDetectsValueMismatch(t *testing.T) {
	a := channel.Fields{Value: amt(1000)}
	b := channel.Fields{Value: amt(1001)}
	require.False(t, channel.FieldsEqual(a, b))
}

func TestFieldsEqualDetectsNilVsPresentMismatch(t *testing.T) {
	a := channel.Fields{Value: amt(1000)}
	b := channel.Fields{}
	require.False(t, channel.FieldsEqual(a, b))
}

func TestFieldsEqualTreatsBothNilAsEqual(t *testing.T) {
	require.True(t, channel.FieldsEqual(channel.Fields{}, channel.Fields{}))
}
