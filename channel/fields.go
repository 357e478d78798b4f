package channel

import (
	"paychledger/address"
	"paychledger/wei"
)

// FieldsEqual reports deep equality between two field payloads, the
// correlation predicate spec §4.3 calls "deep equality over the JSON
// payload". Comparing the typed struct field-by-field is equivalent to (and
// cheaper than) round-tripping through JSON, since Fields only ever holds
// the handful of scalar pointers each event type populates.
func FieldsEqual(a, b Fields) bool {
	if !addrEqual(a.Sender, b.Sender) {
		return false
	}
	if !addrEqual(a.Receiver, b.Receiver) {
		return false
	}
	if !int64PtrEqual(a.SettlementPeriod, b.SettlementPeriod) {
		return false
	}
	if !int64PtrEqual(a.Until, b.Until) {
		return false
	}
	if !amountPtrEqual(a.Value, b.Value) {
		return false
	}
	if !amountPtrEqual(a.Payment, b.Payment) {
		return false
	}
	if !amountPtrEqual(a.OddValue, b.OddValue) {
		return false
	}
	return true
}

func addrEqual(a, b *address.Address) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Equal(*b)
}

func int64PtrEqual(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return *a == *b
}

func amountPtrEqual(a, b *wei.Amount) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Cmp(*b) == 0
}
