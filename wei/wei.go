// Package wei implements the arbitrary-precision non-negative integer type
// used for every on-chain and off-chain monetary amount in the ledger, and
// the big-endian byte packer used to build signature digests. Amounts travel
// on the wire as decimal strings with up to 1000 digits and must never
// collapse to a fixed-width integer.
package wei

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDigits bounds the decimal-string length accepted from the wire, per the
// spec's "up to 1000 decimal digits" requirement.
const MaxDigits = 1000

// Amount is a non-negative arbitrary-precision integer, the Go-side
// representation of a wei value.
type Amount struct {
	v *big.Int
}

// Zero is the additive identity.
func Zero() Amount { return Amount{v: big.NewInt(0)} }

// FromBigInt wraps an existing big.Int, cloning it so the caller cannot
// mutate the Amount after construction.
func FromBigInt(v *big.Int) (Amount, error) {
	if v == nil {
		return Zero(), nil
	}
	if v.Sign() < 0 {
		return Amount{}, errors.New("wei: amount must be non-negative")
	}
	return Amount{v: new(big.Int).Set(v)}, nil
}

// FromInt64 is a small-value constructor, primarily for tests and fixtures.
func FromInt64(v int64) Amount {
	return Amount{v: big.NewInt(v)}
}

// ParseString parses a decimal-string wei amount as it arrives on the wire.
// A value with a fractional part, a sign, or more than MaxDigits digits is
// rejected; the caller must have already verified the JSON value was a
// string, not a number (see DecodeWireValue for that check).
func ParseString(s string) (Amount, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Amount{}, errors.New("wei: amount must not be empty")
	}
	if len(trimmed) > MaxDigits {
		return Amount{}, fmt.Errorf("wei: amount exceeds %d decimal digits", MaxDigits)
	}
	for _, c := range trimmed {
		if c < '0' || c > '9' {
			return Amount{}, fmt.Errorf("wei: %q is not a non-negative integer", s)
		}
	}
	// shopspring/decimal mirrors how the pack's own DECIMAL(38,0) wei
	// columns are validated before touching math/big arithmetic.
	if _, err := decimal.NewFromString(trimmed); err != nil {
		return Amount{}, fmt.Errorf("wei: %q is not a valid decimal integer: %w", s, err)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return Amount{}, fmt.Errorf("wei: %q is not a valid integer", s)
	}
	return Amount{v: v}, nil
}

// ParseSignedString parses a decimal-string amount that is allowed to carry
// a leading '-'. It exists solely for the state-update admission path
// (spec §4.7 step 4), which must distinguish "well-formed but negative"
// (quarantined with reason negative_amount) from "not an integer at all"
// (a hard validation error) — every other amount in the system goes
// through ParseString instead, which rejects a sign outright.
func ParseSignedString(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.New("wei: amount must not be empty")
	}
	body := trimmed
	if strings.HasPrefix(body, "-") {
		body = body[1:]
	}
	if body == "" || len(body) > MaxDigits {
		return nil, fmt.Errorf("wei: %q is not a valid integer", s)
	}
	for _, c := range body {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("wei: %q is not a valid integer", s)
		}
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("wei: %q is not a valid integer", s)
	}
	return v, nil
}

// DecodeSignedWireValue is ParseSignedString preceded by the same
// "must be text" shape check DecodeWireValue performs.
func DecodeSignedWireValue(raw interface{}) (*big.Int, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errors.New("wei: amount must be text")
	}
	return ParseSignedString(s)
}

// DecodeWireValue validates the shape spec §3 requires of wei values on the
// wire: the JSON value must already have been decoded as a Go string, never
// a json.Number/float64. Callers that decode into interface{} first should
// call this; callers decoding directly into a string field get the same
// guarantee from the type system and can call ParseString.
func DecodeWireValue(raw interface{}) (Amount, error) {
	s, ok := raw.(string)
	if !ok {
		return Amount{}, errors.New("wei: amount must be text")
	}
	return ParseString(s)
}

// String renders the canonical decimal-string wire form.
func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

// BigInt returns a defensive copy of the underlying integer, mirroring the
// teacher's Clone()-on-read convention for monetary fields.
func (a Amount) BigInt() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.v)
}

// Cmp compares two amounts the way big.Int.Cmp does.
func (a Amount) Cmp(b Amount) int { return a.BigInt().Cmp(b.BigInt()) }

// Add returns a + b as a new Amount.
func (a Amount) Add(b Amount) Amount { return Amount{v: new(big.Int).Add(a.BigInt(), b.BigInt())} }

// Sub returns a - b as a new Amount. The caller is responsible for ensuring
// the result is meant to be non-negative; Sub does not itself enforce it,
// since reducer math sometimes needs the signed difference transiently.
func (a Amount) Sub(b Amount) Amount { return Amount{v: new(big.Int).Sub(a.BigInt(), b.BigInt())} }

// Sign reports -1, 0, or 1 as for big.Int.Sign.
func (a Amount) Sign() int { return a.BigInt().Sign() }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.Sign() == 0 }

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(b []byte) error {
	parsed, err := ParseString(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Pack produces the fixed-width big-endian hex encoding of v, left-padded
// with zeros to exactly 2*nBytes hex characters. It is part of the wire
// contract because it is used to build the digest wallets sign (spec §4.2)
// and so its behaviour must stay identical for bounded and arbitrary
// precision inputs.
func Pack(nBytes int, v *big.Int) (string, error) {
	if nBytes <= 0 {
		return "", fmt.Errorf("wei: pack width must be positive, got %d", nBytes)
	}
	if v == nil {
		v = big.NewInt(0)
	}
	if v.Sign() < 0 {
		return "", errors.New("wei: pack value must not be negative")
	}
	raw := v.Bytes()
	if len(raw) > nBytes {
		return "", fmt.Errorf("wei: value does not fit in %d bytes", nBytes)
	}
	padded := make([]byte, nBytes)
	copy(padded[nBytes-len(raw):], raw)
	return hex.EncodeToString(padded), nil
}

// PackAmount is a convenience wrapper over Pack for Amount values.
func PackAmount(nBytes int, a Amount) (string, error) {
	return Pack(nBytes, a.BigInt())
}

// Unpack parses a big-endian hex string of exactly 2*nBytes characters back
// into a big.Int. It is the left inverse of Pack: Unpack(nBytes, Pack(nBytes, v)) == v
// for any v that fits in nBytes bytes.
func Unpack(nBytes int, s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != nBytes*2 {
		return nil, fmt.Errorf("wei: expected %d hex characters, got %d", nBytes*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("wei: invalid hex: %w", err)
	}
	return new(big.Int).SetBytes(b), nil
}
