package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"paychledger/address"
	"paychledger/channel"
	"paychledger/wei"
)

// weiScale is the 10^18 factor spec §4.7 step 1 applies to amount before
// packing it into the signature digest — the digest is computed over the
// wallet's native-token units, not the raw wei integer stored in the ledger.
var weiScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// digest builds the byte string signed by the sender's wallet: the
// concatenation of the big-endian packings of chain_id (4 bytes), contract_id
// (20 bytes), channel_id (32 bytes), and amount·10^18 (32 bytes).
//
// A negative amount has no legitimate digest — no wallet ever signs over a
// negative payment — so rather than surfacing wei.Pack's "must not be
// negative" error here (which would abort before admission ever classifies
// the update), the magnitude is packed instead. That digest can never match
// a real signature, which is exactly the outcome wanted: verification fails
// (or is bypassed by a stub verifier in tests), and the negative amount
// itself reaches AdmitStateUpdate's own check and is quarantined with
// reason "negative_amount" rather than erroring out before admission.
func digest(key channel.Key, amount *big.Int) ([]byte, error) {
	chainIDPacked, err := wei.Pack(4, big.NewInt(key.ChainID))
	if err != nil {
		return nil, err
	}
	contractPacked, err := wei.Pack(address.AddressLen, new(big.Int).SetBytes(key.ContractID.Bytes()))
	if err != nil {
		return nil, err
	}
	channelPacked, err := wei.Pack(address.HashLen, new(big.Int).SetBytes(key.ChannelID.Bytes()))
	if err != nil {
		return nil, err
	}
	scaled := new(big.Int).Abs(new(big.Int).Mul(amount, weiScale))
	amountPacked, err := wei.Pack(32, scaled)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+address.AddressLen+address.HashLen+32)
	for _, hexPart := range []string{chainIDPacked, contractPacked, channelPacked, amountPacked} {
		b, err := hex.DecodeString(hexPart)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// idempotencyKey hashes the raw (pre-parse) amount/signature strings a
// state update was submitted with, alongside its channel, to let an
// operator grep logs for identical-bytes re-submission independent of
// spec §4.7's amount-based dupe/conflict classification. It is logged
// only, exactly as it's computed here — nothing about admission reads it.
func idempotencyKey(key channel.Key, rawAmount, rawSignature string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s|%s",
		key.ChainID, key.ContractID, key.ChannelID, rawAmount, rawSignature)))
	return hex.EncodeToString(sum[:])
}
