// Package sign provides the injectable ecdsa_verify capability the core
// consumes (spec §1, §9): signature verification is treated as an external
// capability so tests can stub it to always-true, while production recovers
// the secp256k1 public key from a SHA-256 digest and compares the derived
// address to the claimed sender, the same recover-then-compare shape the
// teacher uses to authenticate price proofs and vouchers.
package sign

import (
	"crypto/sha256"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"paychledger/address"
)

// Verifier answers whether sig is a valid secp256k1/SHA-256 signature by
// sender over digest.
type Verifier func(sender address.Address, digest []byte, sig address.Signature) bool

// ECDSAVerify is the production Verifier: it hashes digest with SHA-256 (the
// spec's hash_alg, distinct from go-ethereum's default keccak256), recovers
// the signer's public key from the 65-byte recoverable signature, derives
// the address, and compares it to sender.
func ECDSAVerify(sender address.Address, digest []byte, sig address.Signature) bool {
	hashed := sha256.Sum256(digest)
	pub, err := ethcrypto.SigToPub(hashed[:], sig.Bytes())
	if err != nil {
		return false
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	expected := ethcommon.BytesToAddress(sender.Bytes())
	return recovered == expected
}

// AlwaysValid is a stub Verifier for tests that want signature checks to
// always pass, mirroring the spec's explicit "stub to always-true" allowance.
func AlwaysValid(address.Address, []byte, address.Signature) bool { return true }

// AlwaysInvalid is the complementary stub, useful for exercising the
// signature_invalid quarantine path without a real key pair.
func AlwaysInvalid(address.Address, []byte, address.Signature) bool { return false }
