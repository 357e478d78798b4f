package ledger

import (
	"context"
	"errors"
	"log"
	"math/big"
	"time"

	"paychledger/address"
	"paychledger/channel"
	"paychledger/sign"
	"paychledger/wei"
)

// Ledger composes a Store with an injected signature verifier to implement
// the ten public operations spec §6 defines. It holds no state of its own
// beyond those two collaborators.
type Ledger struct {
	store  Store
	verify sign.Verifier
	now    func() time.Time
}

// New constructs a Ledger. verify defaults to sign.ECDSAVerify when nil.
func New(store Store, verify sign.Verifier) *Ledger {
	if verify == nil {
		verify = sign.ECDSAVerify
	}
	return &Ledger{store: store, verify: verify, now: time.Now}
}

// SelftestResult is selftest()'s return shape.
type SelftestResult struct {
	VersionInfo string `json:"version_info"`
}

// Version is stamped at build time in production binaries; tests and the
// zero-value Ledger see the fallback.
var Version = "dev"

// SetupDatabase idempotently installs the schema.
func (l *Ledger) SetupDatabase(ctx context.Context) error {
	return l.store.SetupDatabase(ctx)
}

// Selftest reports liveness and version information.
func (l *Ledger) Selftest(ctx context.Context) (SelftestResult, error) {
	if err := l.store.Ping(ctx); err != nil {
		return SelftestResult{}, err
	}
	return SelftestResult{VersionInfo: Version}, nil
}

// GetLatestState returns the channel's highest-amount state update, or nil.
func (l *Ledger) GetLatestState(ctx context.Context, wireKey ChannelKey) (*channel.StateUpdate, error) {
	key, err := wireKey.Resolve()
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return l.store.LoadLatestState(ctx, key)
}

// GetChannelEvents returns the ordered event stream feeding the reducer.
func (l *Ledger) GetChannelEvents(ctx context.Context, wireKey ChannelKey, includeIntents bool) ([]channel.Event, error) {
	key, err := wireKey.Resolve()
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return l.store.LoadChannelEvents(ctx, key, includeIntents)
}

// GetChannelStatus implements spec §4.6: fold the channel's event stream
// through the reducer and attach the latest state-update-derived figures.
func (l *Ledger) GetChannelStatus(ctx context.Context, key channel.Key, includeIntents bool) (ChannelStatus, error) {
	events, err := l.store.LoadChannelEvents(ctx, key, includeIntents)
	if err != nil {
		return ChannelStatus{}, err
	}
	result, err := channel.Reduce(events)
	if err != nil {
		return ChannelStatus{}, err
	}
	latest, err := l.store.LoadLatestState(ctx, key)
	if err != nil {
		return ChannelStatus{}, err
	}

	status := ChannelStatus{
		Channel:           result.Channel,
		LatestState:       latest,
		LatestEvent:       result.LatestEvent,
		LatestIntentEvent: result.LatestIntentEvent,
		LatestChainEvent:  result.LatestChainEvent,
		IsInvalid:         result.IsInvalid,
		IsInvalidReason:   result.InvalidReason,
	}
	if latest != nil {
		payment := latest.Amount
		status.CurrentPayment = &payment
		if result.Channel != nil {
			remaining := result.Channel.Value.Sub(latest.Amount)
			status.CurrentRemainingBalance = &remaining
		}
	}
	return status, nil
}

// InsertChannelEvent validates and stores a chain event, then returns the
// resulting channel status with intents included (spec §6).
func (l *Ledger) InsertChannelEvent(ctx context.Context, in ChannelEventInput) (ChannelStatus, error) {
	key, err := in.ChannelKey.Resolve()
	if err != nil {
		return ChannelStatus{}, &ValidationError{Message: err.Error()}
	}
	blockHash, err := address.ParseHash(in.BlockHash)
	if err != nil {
		return ChannelStatus{}, &ValidationError{Message: err.Error()}
	}
	sender, err := address.ParseAddress(in.Sender)
	if err != nil {
		return ChannelStatus{}, &ValidationError{Message: err.Error()}
	}
	fields, err := in.Fields.Resolve()
	if err != nil {
		return ChannelStatus{}, &ValidationError{Message: err.Error()}
	}

	row := ChannelEventRow{
		Key:       key,
		Ts:        resolveTs(in.Ts),
		Block:     in.BlockNumber,
		BlockHash: blockHash,
		Sender:    sender,
		EventType: in.EventType,
		Fields:    fields,
	}
	if _, err := l.store.InsertChannelEvent(ctx, row); err != nil {
		return ChannelStatus{}, err
	}
	status, err := l.GetChannelStatus(ctx, key, true)
	if err == nil {
		logIfInvalid("insert_channel_event", key, status)
	}
	return status, err
}

// InsertChannelIntent validates and stores an intent event, then returns
// the resulting channel status with intents included (spec §6).
func (l *Ledger) InsertChannelIntent(ctx context.Context, in ChannelIntentInput) (ChannelStatus, error) {
	key, err := in.ChannelKey.Resolve()
	if err != nil {
		return ChannelStatus{}, &ValidationError{Message: err.Error()}
	}
	sender, err := address.ParseAddress(in.Sender)
	if err != nil {
		return ChannelStatus{}, &ValidationError{Message: err.Error()}
	}
	fields, err := in.Fields.Resolve()
	if err != nil {
		return ChannelStatus{}, &ValidationError{Message: err.Error()}
	}

	row := ChannelIntentRow{
		Key:       key,
		Block:     in.BlockNumber,
		Sender:    sender,
		EventType: in.EventType,
		Fields:    fields,
	}
	if _, err := l.store.InsertChannelIntent(ctx, row); err != nil {
		return ChannelStatus{}, err
	}
	status, err := l.GetChannelStatus(ctx, key, true)
	if err == nil {
		logIfInvalid("insert_channel_intent", key, status)
	}
	return status, err
}

// SetRecentBlocks implements spec §4.4/§6: flip validity on the affected
// chain events and render every touched channel's full status.
func (l *Ledger) SetRecentBlocks(ctx context.Context, chainID, firstBlockNum int64, hashesHex []string) (RecentBlocksResult, error) {
	hashes := make([]address.Hash, len(hashesHex))
	for i, h := range hashesHex {
		parsed, err := address.ParseHash(h)
		if err != nil {
			return RecentBlocksResult{}, &ValidationError{Message: err.Error()}
		}
		hashes[i] = parsed
	}

	count, touched, err := l.store.SetRecentBlocks(ctx, chainID, firstBlockNum, hashes)
	if err != nil {
		return RecentBlocksResult{}, err
	}

	statuses := make([]ChannelStatus, 0, len(touched))
	for _, key := range touched {
		status, err := l.GetChannelStatus(ctx, key, true)
		if err != nil {
			return RecentBlocksResult{}, err
		}
		logIfInvalid("set_recent_blocks", key, status)
		statuses = append(statuses, status)
	}
	return RecentBlocksResult{UpdatedEventCount: count, UpdatedChannels: statuses}, nil
}

// logIfInvalid emits the single quarantine/logical-invalid log line spec's
// ambient logging section requires for mutating operations; happy-path
// writes stay silent.
func logIfInvalid(op string, key channel.Key, status ChannelStatus) {
	if status.IsInvalid {
		log.Printf("paychledger: %s left channel %d/%s/%s logically invalid: %s",
			op, key.ChainID, key.ContractID, key.ChannelID, status.IsInvalidReason)
	}
}

// GetStateUpdateStatus implements spec §4.7 step 1 on its own, for callers
// that want to preview admission without committing it.
func (l *Ledger) GetStateUpdateStatus(ctx context.Context, in StateUpdateInput) (StateUpdateStatus, error) {
	key, amount, sig, err := l.resolveStateUpdate(in)
	if err != nil {
		return StateUpdateStatus{}, err
	}
	return l.computeStatus(ctx, key, amount, sig)
}

// InsertStateUpdate implements spec §4.7 in full.
func (l *Ledger) InsertStateUpdate(ctx context.Context, in StateUpdateInput) (AdmitResult, error) {
	key, amount, sig, err := l.resolveStateUpdate(in)
	if err != nil {
		return AdmitResult{}, err
	}

	d, err := digest(key, amount)
	if err != nil {
		return AdmitResult{}, err
	}
	channelSender, err := l.expectedSender(ctx, key)
	if err != nil {
		return AdmitResult{}, err
	}
	signatureValid := l.verify(channelSender, d, sig)

	id, created, status, err := l.store.AdmitStateUpdate(ctx, key, amount, sig, l.now(), signatureValid)
	if err != nil {
		var qErr *QuarantineError
		if errors.As(err, &qErr) {
			log.Printf("paychledger: insert_state_update quarantined channel %d/%s/%s reason=%s idempotency_key=%s",
				key.ChainID, key.ContractID, key.ChannelID, qErr.Reason, idempotencyKey(key, in.Amount.(string), in.Signature))
		}
		return AdmitResult{}, err
	}

	latest, err := l.store.LoadLatestState(ctx, key)
	if err != nil {
		return AdmitResult{}, err
	}
	chStatus, err := l.GetChannelStatus(ctx, key, true)
	if err != nil {
		return AdmitResult{}, err
	}
	logIfInvalid("insert_state_update", key, chStatus)

	result := AdmitResult{
		ID:          id,
		Created:     created,
		Status:      status,
		IsLatest:    status.IsLatest,
		LatestState: latest,
		AddedAmount: status.AddedAmount,
	}
	if latest != nil {
		result.ChannelPayment = latest.Amount.BigInt()
		if chStatus.Channel != nil {
			result.ChannelRemainingBalance = chStatus.Channel.Value.Sub(latest.Amount).BigInt()
		}
	}
	return result, nil
}

// resolveStateUpdate validates a StateUpdateInput's wire shape, returning
// the internal key, signed amount, and signature. It deliberately allows a
// negative amount through (spec §4.7 step 4 quarantines it rather than
// rejecting it at this layer) while still rejecting a non-string amount
// with the "must be text" phrase spec §3 requires.
func (l *Ledger) resolveStateUpdate(in StateUpdateInput) (channel.Key, *big.Int, address.Signature, error) {
	key, err := in.ChannelKey.Resolve()
	if err != nil {
		return channel.Key{}, nil, address.Signature{}, &ValidationError{Message: err.Error()}
	}
	amount, err := wei.DecodeSignedWireValue(in.Amount)
	if err != nil {
		return channel.Key{}, nil, address.Signature{}, &ValidationError{Message: err.Error()}
	}
	sig, err := address.ParseSignature(in.Signature)
	if err != nil {
		return channel.Key{}, nil, address.Signature{}, &ValidationError{Message: err.Error()}
	}
	return key, amount, sig, nil
}

// expectedSender resolves the sender a state update for key must be signed
// by: the channel's sender field from the reducer's current aggregate.
// A never-seen channel has no known sender, so verification deterministically
// fails against the zero address, landing the update in signature_invalid
// quarantine.
func (l *Ledger) expectedSender(ctx context.Context, key channel.Key) (address.Address, error) {
	status, err := l.GetChannelStatus(ctx, key, true)
	if err != nil {
		return address.Address{}, err
	}
	if status.Channel == nil {
		return address.Address{}, nil
	}
	return status.Channel.Sender, nil
}

// computeStatus implements spec §4.7 step 1 without touching anything
// beyond the read path: signature verification plus dupe/distinct/latest
// classification against the current latest state update.
func (l *Ledger) computeStatus(ctx context.Context, key channel.Key, amount *big.Int, sig address.Signature) (StateUpdateStatus, error) {
	d, err := digest(key, amount)
	if err != nil {
		return StateUpdateStatus{}, err
	}
	sender, err := l.expectedSender(ctx, key)
	if err != nil {
		return StateUpdateStatus{}, err
	}
	signatureValid := l.verify(sender, d, sig)

	latest, err := l.store.LoadLatestState(ctx, key)
	if err != nil {
		return StateUpdateStatus{}, err
	}

	status := StateUpdateStatus{SignatureValid: signatureValid, Latest: latest, DupeStatus: DupeStatusDistinct}
	if latest == nil {
		status.IsLatest = true
		status.AddedAmount = amount
	} else {
		latestAmount := latest.Amount.BigInt()
		status.IsLatest = amount.Cmp(latestAmount) >= 0
		if status.IsLatest {
			status.AddedAmount = new(big.Int).Sub(amount, latestAmount)
		}
		if amount.Cmp(latestAmount) == 0 {
			status.DupeStatus = DupeStatusDupe
		}
	}
	return status, nil
}
