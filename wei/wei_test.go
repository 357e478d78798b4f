package wei_test

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"paychledger/wei"
)

func TestParseStringRejectsSignAndFraction(t *testing.T) {
	_, err := wei.ParseString("-5")
	require.Error(t, err)

	_, err = wei.ParseString("5.5")
	require.Error(t, err)

	_, err = wei.ParseString("")
	require.Error(t, err)

	amount, err := wei.ParseString("12345678901234567890")
	require.NoError(t, err)
	require.Equal(t, "12345678901234567890", amount.String())
}

func TestParseStringRejectsTooManyDigits(t *testing.T) {
	tooLong := strings.Repeat("9", wei.MaxDigits+1)
	_, err := wei.ParseString(tooLong)
	require.Error(t, err)
}

func TestParseSignedStringAllowsNegative(t *testing.T) {
	v, err := wei.ParseSignedString("-42")
	require.NoError(t, err)
	require.Equal(t, -1, v.Sign())
	require.Equal(t, "42", new(big.Int).Abs(v).String())

	_, err = wei.ParseSignedString("-")
	require.Error(t, err)
}

func TestDecodeWireValueRejectsNonString(t *testing.T) {
	_, err := wei.DecodeWireValue(float64(5))
	require.Error(t, err)

	amount, err := wei.DecodeWireValue("100")
	require.NoError(t, err)
	require.True(t, amount.Cmp(wei.FromInt64(100)) == 0)
}

func TestAmountArithmetic(t *testing.T) {
	a := wei.FromInt64(10)
	b := wei.FromInt64(3)

	require.Equal(t, "13", a.Add(b).String())
	require.Equal(t, "7", a.Sub(b).String())
	require.True(t, a.Cmp(b) > 0)
	require.False(t, wei.Zero().IsZero() == false)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	v := big.NewInt(1234567890)
	packed, err := wei.Pack(32, v)
	require.NoError(t, err)
	require.Len(t, packed, 64)

	unpacked, err := wei.Unpack(32, packed)
	require.NoError(t, err)
	require.Equal(t, 0, v.Cmp(unpacked))
}

func TestPackRejectsOversizedValue(t *testing.T) {
	v := new(big.Int).Lsh(big.NewInt(1), 40) // needs 6 bytes
	_, err := wei.Pack(4, v)
	require.Error(t, err)
}

func TestPackRejectsNegative(t *testing.T) {
	_, err := wei.Pack(4, big.NewInt(-1))
	require.Error(t, err)
}

func TestFromBigIntRejectsNegative(t *testing.T) {
	_, err := wei.FromBigInt(big.NewInt(-1))
	require.Error(t, err)
}
