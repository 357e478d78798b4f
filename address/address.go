// Package address implements the validated fixed-length hex domain types
// used throughout the ledger: 20-byte addresses, 32-byte hashes, and 65-byte
// signatures. Each type mirrors the Postgres domain it is persisted under,
// down to the check-constraint error text, so callers see the same message
// whether the violation is caught in Go or by the database.
package address

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Lengths, in raw bytes, of the three domains this package validates.
const (
	AddressLen   = 20
	HashLen      = 32
	SignatureLen = 65
)

// Address is a validated lowercase-hex Ethereum-style account address,
// stored without a 0x prefix.
type Address struct {
	raw [AddressLen]byte
}

// Hash is a validated lowercase-hex 32-byte digest, such as a block hash.
type Hash struct {
	raw [HashLen]byte
}

// Signature is a validated lowercase-hex 65-byte recoverable ECDSA
// signature (r || s || v).
type Signature struct {
	raw [SignatureLen]byte
}

func domainError(domain string) error {
	return fmt.Errorf("value for domain %s violates check constraint", domain)
}

func decodeFixed(domain, s string, n int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != n*2 {
		return nil, domainError(domain)
	}
	for _, c := range s {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isHex {
			return nil, domainError(domain)
		}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, domainError(domain)
	}
	return b, nil
}

// ParseAddress validates and decodes a 40-character lowercase hex string.
func ParseAddress(s string) (Address, error) {
	b, err := decodeFixed("eth_address", s, AddressLen)
	if err != nil {
		return Address{}, err
	}
	var a Address
	copy(a.raw[:], b)
	return a, nil
}

// ParseHash validates and decodes a 64-character lowercase hex string.
func ParseHash(s string) (Hash, error) {
	b, err := decodeFixed("eth_hash", s, HashLen)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h.raw[:], b)
	return h, nil
}

// ParseSignature validates and decodes a 130-character lowercase hex string.
func ParseSignature(s string) (Signature, error) {
	b, err := decodeFixed("eth_signature", s, SignatureLen)
	if err != nil {
		return Signature{}, err
	}
	var sig Signature
	copy(sig.raw[:], b)
	return sig, nil
}

// MustParseAddress is a test/fixture helper that panics on invalid input,
// mirroring the teacher's NewAddress panic-on-malformed-length convention.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return hex.EncodeToString(a.raw[:]) }
func (h Hash) String() string    { return hex.EncodeToString(h.raw[:]) }
func (s Signature) String() string { return hex.EncodeToString(s.raw[:]) }

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLen)
	copy(out, a.raw[:])
	return out
}

func (h Hash) Bytes() []byte {
	out := make([]byte, HashLen)
	copy(out, h.raw[:])
	return out
}

func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureLen)
	copy(out, s.raw[:])
	return out
}

// IsZero reports whether the address is the all-zero value (never assigned).
func (a Address) IsZero() bool { return a.raw == [AddressLen]byte{} }

// IsZero reports whether the hash is the all-zero value.
func (h Hash) IsZero() bool { return h.raw == [HashLen]byte{} }

// Equal reports byte-for-byte equality.
func (a Address) Equal(o Address) bool { return a.raw == o.raw }

// Equal reports byte-for-byte equality.
func (h Hash) Equal(o Hash) bool { return h.raw == o.raw }

// MarshalText implements encoding.TextMarshaler for JSON wire encoding.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler for JSON wire decoding.
func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for JSON wire encoding.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler for JSON wire decoding.
func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for JSON wire encoding.
func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler for JSON wire decoding.
func (s *Signature) UnmarshalText(b []byte) error {
	parsed, err := ParseSignature(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// R returns the first 32 bytes of the signature.
func (s Signature) R() []byte { return append([]byte(nil), s.raw[0:32]...) }

// S returns bytes 32..64 of the signature.
func (s Signature) S() []byte { return append([]byte(nil), s.raw[32:64]...) }

// V returns the recovery byte.
func (s Signature) V() byte { return s.raw[64] }
