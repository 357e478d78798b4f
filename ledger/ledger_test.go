package ledger_test

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paychledger/address"
	"paychledger/channel"
	"paychledger/ledger"
	"paychledger/sign"
	"paychledger/wei"
)

// fakeStore is an in-memory ledger.Store used to exercise Ledger's
// validation and orchestration logic without a database, mirroring the
// teacher's in-memory mock collaborators in tests/payoutd.
type fakeStore struct {
	events      map[string][]channel.Event
	latestState map[string]*channel.StateUpdate
	admitCalls  int
}

func keyStr(k channel.Key) string {
	return k.ContractID.String() + ":" + k.ChannelID.String()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:      map[string][]channel.Event{},
		latestState: map[string]*channel.StateUpdate{},
	}
}

func (f *fakeStore) SetupDatabase(context.Context) error { return nil }
func (f *fakeStore) Ping(context.Context) error          { return nil }

func (f *fakeStore) InsertChannelEvent(ctx context.Context, evt ledger.ChannelEventRow) (string, error) {
	k := keyStr(evt.Key)
	bh := evt.BlockHash
	f.events[k] = append(f.events[k], channel.Event{
		Key: evt.Key, Ts: evt.Ts, Block: evt.Block, BlockHash: &bh,
		Sender: evt.Sender, EventType: evt.EventType, Fields: evt.Fields,
	})
	return "evt-id", nil
}

func (f *fakeStore) InsertChannelIntent(ctx context.Context, intent ledger.ChannelIntentRow) (string, error) {
	k := keyStr(intent.Key)
	f.events[k] = append(f.events[k], channel.Event{
		Key: intent.Key, Block: intent.Block, BlockHash: nil,
		Sender: intent.Sender, EventType: intent.EventType, Fields: intent.Fields, IsIntent: true,
	})
	return "intent-id", nil
}

func (f *fakeStore) SetRecentBlocks(ctx context.Context, chainID, firstBlockNum int64, hashes []address.Hash) (int, []channel.Key, error) {
	return 0, nil, nil
}

func (f *fakeStore) LoadChannelEvents(ctx context.Context, key channel.Key, includeIntents bool) ([]channel.Event, error) {
	rows := f.events[keyStr(key)]
	out := make([]channel.Event, 0, len(rows))
	for _, r := range rows {
		if r.IsIntent && !includeIntents {
			continue
		}
		out = append(out, r)
	}
	channel.Sort(out, nil)
	return out, nil
}

func (f *fakeStore) LoadLatestState(ctx context.Context, key channel.Key) (*channel.StateUpdate, error) {
	return f.latestState[keyStr(key)], nil
}

func (f *fakeStore) AdmitStateUpdate(ctx context.Context, key channel.Key, amount *big.Int, sig address.Signature, ts time.Time, signatureValid bool) (string, bool, ledger.StateUpdateStatus, error) {
	f.admitCalls++
	if !signatureValid {
		return "", false, ledger.StateUpdateStatus{SignatureValid: false}, &ledger.QuarantineError{
			Reason: ledger.ReasonSignatureInvalid,
			Status: ledger.StateUpdateStatus{SignatureValid: false},
		}
	}
	if amount.Sign() < 0 {
		return "", false, ledger.StateUpdateStatus{}, &ledger.QuarantineError{Reason: ledger.ReasonNegativeAmount}
	}

	existing := f.latestState[keyStr(key)]
	if existing != nil && amount.Cmp(existing.Amount.BigInt()) == 0 {
		return "", false, ledger.StateUpdateStatus{IsLatest: true, DupeStatus: ledger.DupeStatusDupe, SignatureValid: true}, nil
	}

	amt, err := wei.FromBigInt(amount)
	if err != nil {
		return "", false, ledger.StateUpdateStatus{}, err
	}
	update := &channel.StateUpdate{Key: key, Ts: ts, Amount: amt, Signature: sig}
	f.latestState[keyStr(key)] = update
	return "state-id", true, ledger.StateUpdateStatus{IsLatest: true, SignatureValid: true, AddedAmount: amount}, nil
}

func testKey() channel.Key {
	return channel.Key{
		ChainID:    7,
		ContractID: address.MustParseAddress("1111111111111111111111111111111111111111"),
		ChannelID:  mustHash("2222222222222222222222222222222222222222222222222222222222222222"[:64]),
	}
}

func mustHash(s string) address.Hash {
	h, err := address.ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

func wireKey(k channel.Key) ledger.ChannelKey {
	chainID := k.ChainID
	contract := k.ContractID.String()
	ch := k.ChannelID.String()
	return ledger.ChannelKey{ChainID: &chainID, ContractID: &contract, ChannelID: &ch}
}

func TestInsertChannelEventThenGetChannelStatus(t *testing.T) {
	store := newFakeStore()
	l := ledger.New(store, sign.AlwaysValid)
	key := testKey()

	in := ledger.ChannelEventInput{
		ChannelKey:  wireKey(key),
		Ts:          1_700_000_000,
		BlockNumber: 1,
		BlockHash:   "3333333333333333333333333333333333333333333333333333333333333333"[:64],
		Sender:      "4444444444444444444444444444444444444444",
		EventType:   channel.DidCreateChannel,
		Fields: ledger.FieldsWire{
			Sender:           strPtr("4444444444444444444444444444444444444444"),
			Receiver:         strPtr("5555555555555555555555555555555555555555"),
			SettlementPeriod: int64Ptr(3600),
			Until:            int64Ptr(1_700_003_600),
			Value:            strPtr("1000"),
		},
	}

	status, err := l.InsertChannelEvent(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, status.Channel)
	require.Equal(t, channel.StateOpen, status.Channel.State)
	require.Equal(t, "1000", status.Channel.Value.String())
}

func TestInsertChannelEventRejectsNullChainID(t *testing.T) {
	store := newFakeStore()
	l := ledger.New(store, sign.AlwaysValid)

	in := ledger.ChannelEventInput{
		ChannelKey: ledger.ChannelKey{}, // everything nil
	}
	_, err := l.InsertChannelEvent(context.Background(), in)
	require.Error(t, err)
	var valErr *ledger.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Contains(t, valErr.Error(), "must not be null")
}

func TestInsertStateUpdateQuarantinesOnBadSignature(t *testing.T) {
	store := newFakeStore()
	l := ledger.New(store, sign.AlwaysInvalid)
	key := testKey()

	in := ledger.StateUpdateInput{
		ChannelKey: wireKey(key),
		Amount:     "100",
		Signature:  strings.Repeat("66", 65),
	}
	_, err := l.InsertStateUpdate(context.Background(), in)
	require.Error(t, err)
	var qErr *ledger.QuarantineError
	require.ErrorAs(t, err, &qErr)
	require.Equal(t, ledger.ReasonSignatureInvalid, qErr.Reason)
}

func TestInsertStateUpdateAdmitsValidPayment(t *testing.T) {
	store := newFakeStore()
	l := ledger.New(store, sign.AlwaysValid)
	key := testKey()

	in := ledger.StateUpdateInput{
		ChannelKey: wireKey(key),
		Amount:     "100",
		Signature:  strings.Repeat("66", 65),
	}
	result, err := l.InsertStateUpdate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.Created)
	require.True(t, result.IsLatest)
	require.Equal(t, 1, store.admitCalls)
}

func TestInsertStateUpdateQuarantinesNegativeAmount(t *testing.T) {
	store := newFakeStore()
	l := ledger.New(store, sign.AlwaysValid)
	key := testKey()

	in := ledger.StateUpdateInput{
		ChannelKey: wireKey(key),
		Amount:     "-1",
		Signature:  strings.Repeat("66", 65),
	}
	_, err := l.InsertStateUpdate(context.Background(), in)
	require.Error(t, err)
	var qErr *ledger.QuarantineError
	require.ErrorAs(t, err, &qErr)
	require.Equal(t, ledger.ReasonNegativeAmount, qErr.Reason)
	require.Equal(t, 1, store.admitCalls)
}

func TestGetStateUpdateStatusToleratesNegativeAmountWithoutError(t *testing.T) {
	store := newFakeStore()
	l := ledger.New(store, sign.AlwaysValid)
	key := testKey()

	in := ledger.StateUpdateInput{
		ChannelKey: wireKey(key),
		Amount:     "-1",
		Signature:  strings.Repeat("66", 65),
	}
	status, err := l.GetStateUpdateStatus(context.Background(), in)
	require.NoError(t, err)
	require.True(t, status.SignatureValid)
}

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }
