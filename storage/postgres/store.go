package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/big"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"paychledger/address"
	"paychledger/channel"
	"paychledger/intents"
	"paychledger/ledger"
	"paychledger/reorg"
	"paychledger/wei"
)

// Store is the production ledger.Store: three append-only logs plus a
// quarantine log on Postgres, using advisory locks to serialize admission
// per channel since a brand-new channel has no backing row to lock.
type Store struct {
	db *sql.DB
}

// Open opens the backing Postgres connection pool. dsn is any DSN
// github.com/jackc/pgx/v5/stdlib accepts.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("postgres: dsn must be configured")
	}
	db, err := sql.Open("pgx", trimmed)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetupDatabase idempotently installs the schema.
func (s *Store) SetupDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// advisoryLockKey derives a deterministic int64 key for a channel's
// composite identity, for pg_advisory_xact_lock — a new channel has no row
// to SELECT ... FOR UPDATE, so the lock is taken on the logical key itself.
func advisoryLockKey(key channel.Key) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s:%s", key.ChainID, key.ContractID.String(), key.ChannelID.String())
	return int64(h.Sum64())
}

// InsertChannelEvent appends a chain event and lets the intent-correlation
// engine react (spec §4.3's insert trigger).
func (s *Store) InsertChannelEvent(ctx context.Context, evt ledger.ChannelEventRow) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(evt.Key)); err != nil {
		return "", err
	}

	fieldsJSON, err := json.Marshal(evt.Fields)
	if err != nil {
		return "", err
	}
	var id string
	err = tx.QueryRowContext(ctx, `
        INSERT INTO channel_events
            (chain_id, contract_id, channel_id, ts, block_number, block_hash, sender, event_type, fields)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `, evt.Key.ChainID, evt.Key.ContractID.String(), evt.Key.ChannelID.String(), evt.Ts,
		evt.Block, evt.BlockHash.String(), evt.Sender.String(), string(evt.EventType), fieldsJSON).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("postgres: insert channel event: %w", err)
	}

	if err := recorrelateChannelIntents(ctx, tx, evt.Key); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// InsertChannelIntent appends an intent and immediately correlates it.
func (s *Store) InsertChannelIntent(ctx context.Context, intent ledger.ChannelIntentRow) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(intent.Key)); err != nil {
		return "", err
	}

	fieldsJSON, err := json.Marshal(intent.Fields)
	if err != nil {
		return "", err
	}
	var id string
	err = tx.QueryRowContext(ctx, `
        INSERT INTO channel_intents
            (chain_id, contract_id, channel_id, ts, block_number, sender, event_type, fields)
        VALUES ($1, $2, $3, now(), $4, $5, $6, $7)
        RETURNING id
    `, intent.Key.ChainID, intent.Key.ContractID.String(), intent.Key.ChannelID.String(),
		intent.Block, intent.Sender.String(), string(intent.EventType), fieldsJSON).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("postgres: insert channel intent: %w", err)
	}

	if err := recorrelateChannelIntents(ctx, tx, intent.Key); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// eventCandidate is one valid chain event loaded for matching against every
// intent on the same channel: the identity fields a candidate must share
// with an intent (sender/event_type/fields), plus the intents.Candidate the
// correlation predicate actually consumes.
type eventCandidate struct {
	sender    string
	eventType string
	fields    string
	candidate intents.Candidate
}

// recorrelateChannelIntents re-derives block_hash for every intent on key,
// implementing spec §4.3's invariant by loading both sides and delegating
// the matching rule itself to intents.Correlate/AppliesOnInsert rather than
// re-encoding it as SQL — the predicate that is unit-tested in isolation is
// the same one that runs in production. Running this after every chain-event
// insert and every validity flip covers all three triggers spec §4.3 names
// (insert, update, delete never happens here since chain events are
// append-only).
func recorrelateChannelIntents(ctx context.Context, tx *sql.Tx, key channel.Key) error {
	eventRows, err := tx.QueryContext(ctx, `
        SELECT sender, event_type, fields, block_number, block_hash, insert_seq
        FROM channel_events
        WHERE chain_id = $1 AND contract_id = $2 AND channel_id = $3 AND block_is_valid
    `, key.ChainID, key.ContractID.String(), key.ChannelID.String())
	if err != nil {
		return err
	}
	var candidates []eventCandidate
	for eventRows.Next() {
		var c eventCandidate
		var blockHashHex string
		if err := eventRows.Scan(&c.sender, &c.eventType, &c.fields, &c.candidate.Block, &blockHashHex, &c.candidate.InsertSeq); err != nil {
			eventRows.Close()
			return err
		}
		h, err := address.ParseHash(blockHashHex)
		if err != nil {
			eventRows.Close()
			return err
		}
		c.candidate.BlockHash = h
		candidates = append(candidates, c)
	}
	if err := eventRows.Err(); err != nil {
		return err
	}
	eventRows.Close()

	intentRows, err := tx.QueryContext(ctx, `
        SELECT id, sender, event_type, fields, block_number, block_hash
        FROM channel_intents
        WHERE chain_id = $1 AND contract_id = $2 AND channel_id = $3
    `, key.ChainID, key.ContractID.String(), key.ChannelID.String())
	if err != nil {
		return err
	}
	type intentRow struct {
		id        string
		sender    string
		eventType string
		fields    string
		block     int64
		blockHash *string
	}
	var rows []intentRow
	for intentRows.Next() {
		var r intentRow
		if err := intentRows.Scan(&r.id, &r.sender, &r.eventType, &r.fields, &r.block, &r.blockHash); err != nil {
			intentRows.Close()
			return err
		}
		rows = append(rows, r)
	}
	if err := intentRows.Err(); err != nil {
		return err
	}
	intentRows.Close()

	for _, r := range rows {
		rFields, err := decodeFields(r.fields)
		if err != nil {
			return err
		}
		var qualifying []intents.Candidate
		for _, c := range candidates {
			if c.sender != r.sender || c.eventType != r.eventType {
				continue
			}
			cFields, err := decodeFields(c.fields)
			if err != nil {
				return err
			}
			if !channel.FieldsEqual(cFields, rFields) {
				continue
			}
			if !intents.AppliesOnInsert(r.block, c.candidate.Block) {
				continue
			}
			qualifying = append(qualifying, c.candidate)
		}
		resolved := intents.Correlate(r.block, qualifying)

		changed := (resolved == nil) != (r.blockHash == nil)
		if !changed && resolved != nil {
			changed = resolved.String() != *r.blockHash
		}
		if !changed {
			continue
		}
		var newHash any
		if resolved != nil {
			newHash = resolved.String()
		}
		if _, err := tx.ExecContext(ctx, `UPDATE channel_intents SET block_hash = $1 WHERE id = $2`, newHash, r.id); err != nil {
			return err
		}
	}
	return nil
}

// decodeFields unmarshals a fields JSONB column's text into channel.Fields
// so matching goes through channel.FieldsEqual's typed comparison instead
// of raw JSON-text equality, which would false-negative on key reordering
// or whitespace differences between how an event and an intent were encoded.
func decodeFields(raw string) (channel.Fields, error) {
	var f channel.Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return channel.Fields{}, fmt.Errorf("postgres: decode fields: %w", err)
	}
	return f, nil
}

// SetRecentBlocks implements spec §4.4 inside a SERIALIZABLE transaction so
// updated_channels reflects an exact post-update snapshot.
func (s *Store) SetRecentBlocks(ctx context.Context, chainID, firstBlockNum int64, hashes []address.Hash) (int, []channel.Key, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
        SELECT id, contract_id, channel_id, block_number, block_hash, block_is_valid
        FROM channel_events
        WHERE chain_id = $1 AND block_number >= $2
        ORDER BY insert_seq
    `, chainID, firstBlockNum)
	if err != nil {
		return 0, nil, err
	}

	type row struct {
		id           string
		contractID   string
		channelID    string
		block        int64
		blockHash    string
		blockIsValid bool
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.contractID, &r.channelID, &r.block, &r.blockHash, &r.blockIsValid); err != nil {
			rows.Close()
			return 0, nil, err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	rows.Close()

	refs := make([]reorg.EventRef, len(all))
	for i, r := range all {
		contract, err := address.ParseAddress(r.contractID)
		if err != nil {
			return 0, nil, err
		}
		ch, err := address.ParseHash(r.channelID)
		if err != nil {
			return 0, nil, err
		}
		bh, err := address.ParseHash(r.blockHash)
		if err != nil {
			return 0, nil, err
		}
		refs[i] = reorg.EventRef{
			ID:           r.id,
			Key:          channel.Key{ChainID: chainID, ContractID: contract, ChannelID: ch},
			Block:        r.block,
			BlockHash:    bh,
			BlockIsValid: r.blockIsValid,
		}
	}
	flips := reorg.Compute(firstBlockNum, hashes, refs)

	touchedOrder := make([]channel.Key, 0)
	seen := make(map[string]bool)
	for _, flip := range flips {
		if _, err := tx.ExecContext(ctx, `UPDATE channel_events SET block_is_valid = $1 WHERE id = $2`, flip.NewValid, flip.Event.ID); err != nil {
			return 0, nil, err
		}
		key := flip.Event.Key.(channel.Key)
		k := fmt.Sprintf("%d:%s:%s", key.ChainID, key.ContractID.String(), key.ChannelID.String())
		if !seen[k] {
			seen[k] = true
			touchedOrder = append(touchedOrder, key)
		}
	}

	for _, key := range touchedOrder {
		if err := recorrelateChannelIntents(ctx, tx, key); err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	return len(flips), touchedOrder, nil
}

// LoadChannelEvents returns the reducer's input stream for key: valid chain
// events, plus (if includeIntents) intents still uncorrelated, sorted per
// the canonical ordering key with insertion order as the tiebreaker.
func (s *Store) LoadChannelEvents(ctx context.Context, key channel.Key, includeIntents bool) ([]channel.Event, error) {
	var events []channel.Event
	var seqs []int64

	chainRows, err := s.db.QueryContext(ctx, `
        SELECT ts, block_number, block_hash, sender, event_type, fields, insert_seq
        FROM channel_events
        WHERE chain_id = $1 AND contract_id = $2 AND channel_id = $3 AND block_is_valid
        ORDER BY insert_seq
    `, key.ChainID, key.ContractID.String(), key.ChannelID.String())
	if err != nil {
		return nil, err
	}
	for chainRows.Next() {
		var ts time.Time
		var block int64
		var blockHashHex, senderHex, eventType string
		var fieldsRaw []byte
		var seq int64
		if err := chainRows.Scan(&ts, &block, &blockHashHex, &senderHex, &eventType, &fieldsRaw, &seq); err != nil {
			chainRows.Close()
			return nil, err
		}
		evt, err := decodeEvent(key, ts, block, &blockHashHex, senderHex, eventType, fieldsRaw, false)
		if err != nil {
			chainRows.Close()
			return nil, err
		}
		events = append(events, evt)
		seqs = append(seqs, seq)
	}
	if err := chainRows.Err(); err != nil {
		return nil, err
	}
	chainRows.Close()

	if includeIntents {
		intentRows, err := s.db.QueryContext(ctx, `
            SELECT ts, block_number, sender, event_type, fields, insert_seq
            FROM channel_intents
            WHERE chain_id = $1 AND contract_id = $2 AND channel_id = $3 AND block_hash IS NULL
            ORDER BY insert_seq
        `, key.ChainID, key.ContractID.String(), key.ChannelID.String())
		if err != nil {
			return nil, err
		}
		for intentRows.Next() {
			var ts time.Time
			var block int64
			var senderHex, eventType string
			var fieldsRaw []byte
			var seq int64
			if err := intentRows.Scan(&ts, &block, &senderHex, &eventType, &fieldsRaw, &seq); err != nil {
				intentRows.Close()
				return nil, err
			}
			evt, err := decodeEvent(key, ts, block, nil, senderHex, eventType, fieldsRaw, true)
			if err != nil {
				intentRows.Close()
				return nil, err
			}
			events = append(events, evt)
			seqs = append(seqs, seq)
		}
		if err := intentRows.Err(); err != nil {
			return nil, err
		}
		intentRows.Close()
	}

	// Sort calls insertSeq once per element, in original slice order, before
	// permuting anything — so a simple positional counter reproduces each
	// event's own insert_seq without needing pointer identity.
	next := 0
	channel.Sort(events, func(*channel.Event) int64 {
		seq := seqs[next]
		next++
		return seq
	})
	return events, nil
}

func decodeEvent(key channel.Key, ts time.Time, block int64, blockHashHex *string, senderHex, eventType string, fieldsRaw []byte, isIntent bool) (channel.Event, error) {
	sender, err := address.ParseAddress(senderHex)
	if err != nil {
		return channel.Event{}, err
	}
	var fields channel.Fields
	if err := json.Unmarshal(fieldsRaw, &fields); err != nil {
		return channel.Event{}, err
	}
	evt := channel.Event{
		Key:       key,
		Ts:        ts,
		Block:     block,
		Sender:    sender,
		EventType: channel.EventType(eventType),
		Fields:    fields,
		IsIntent:  isIntent,
	}
	if blockHashHex != nil {
		h, err := address.ParseHash(*blockHashHex)
		if err != nil {
			return channel.Event{}, err
		}
		evt.BlockHash = &h
	}
	return evt, nil
}

// LoadLatestState returns the channel's highest-amount state update.
func (s *Store) LoadLatestState(ctx context.Context, key channel.Key) (*channel.StateUpdate, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT ts, amount, signature
        FROM state_updates
        WHERE chain_id = $1 AND contract_id = $2 AND channel_id = $3
        ORDER BY amount DESC
        LIMIT 1
    `, key.ChainID, key.ContractID.String(), key.ChannelID.String())
	return scanStateUpdate(row, key)
}

func scanStateUpdate(row *sql.Row, key channel.Key) (*channel.StateUpdate, error) {
	var ts time.Time
	var amountText, sigHex string
	if err := row.Scan(&ts, &amountText, &sigHex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	amount, err := wei.ParseString(amountText)
	if err != nil {
		return nil, err
	}
	sig, err := address.ParseSignature(sigHex)
	if err != nil {
		return nil, err
	}
	return &channel.StateUpdate{Key: key, Ts: ts, Amount: amount, Signature: sig}, nil
}

// AdmitStateUpdate implements spec §4.7 steps 1 (dupe/latest classification)
// through 5 (insert or quarantine) atomically: the caller has already
// computed signatureValid, since that is a pure check with no database
// dependency.
func (s *Store) AdmitStateUpdate(ctx context.Context, key channel.Key, amount *big.Int, sig address.Signature, ts time.Time, signatureValid bool) (string, bool, ledger.StateUpdateStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, ledger.StateUpdateStatus{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(key)); err != nil {
		return "", false, ledger.StateUpdateStatus{}, err
	}

	latest, err := loadLatestStateTx(ctx, tx, key)
	if err != nil {
		return "", false, ledger.StateUpdateStatus{}, err
	}

	status := ledger.StateUpdateStatus{SignatureValid: signatureValid, Latest: latest, DupeStatus: ledger.DupeStatusDistinct}
	if latest == nil {
		status.IsLatest = true
		status.AddedAmount = amount
	} else {
		latestBig := latest.Amount.BigInt()
		status.IsLatest = amount.Cmp(latestBig) >= 0
		if status.IsLatest {
			status.AddedAmount = new(big.Int).Sub(amount, latestBig)
		}
		if amount.Cmp(latestBig) == 0 {
			status.DupeStatus = ledger.DupeStatusDupe
		}
	}

	quarantine := func(reason ledger.QuarantineReason, detail string) error {
		statusJSON, err := json.Marshal(status)
		if err != nil {
			return err
		}
		rawJSON, err := json.Marshal(struct {
			ChainID    int64  `json:"chain_id"`
			ContractID string `json:"contract_id"`
			ChannelID  string `json:"channel_id"`
			Amount     string `json:"amount"`
			Signature  string `json:"signature"`
		}{key.ChainID, key.ContractID.String(), key.ChannelID.String(), amount.String(), sig.String()})
		if err != nil {
			return err
		}
		reasonText := string(reason)
		if detail != "" {
			reasonText = reasonText + ": " + detail
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO invalid_state_updates (chain_id, contract_id, channel_id, reason, status, raw)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, key.ChainID, key.ContractID.String(), key.ChannelID.String(), reasonText, statusJSON, rawJSON); err != nil {
			return err
		}
		return tx.Commit()
	}

	if !signatureValid {
		if err := quarantine(ledger.ReasonSignatureInvalid, ""); err != nil {
			return "", false, status, err
		}
		return "", false, status, &ledger.QuarantineError{Reason: ledger.ReasonSignatureInvalid, Status: status}
	}
	if status.DupeStatus == ledger.DupeStatusConflict {
		if err := quarantine(ledger.ReasonConflict, ""); err != nil {
			return "", false, status, err
		}
		return "", false, status, &ledger.QuarantineError{Reason: ledger.ReasonConflict, Status: status}
	}
	if amount.Sign() < 0 {
		if err := quarantine(ledger.ReasonNegativeAmount, ""); err != nil {
			return "", false, status, err
		}
		return "", false, status, &ledger.QuarantineError{Reason: ledger.ReasonNegativeAmount, Status: status}
	}

	if status.DupeStatus == ledger.DupeStatusDupe {
		if err := tx.Commit(); err != nil {
			return "", false, status, err
		}
		return "", false, status, nil
	}

	var id string
	err = tx.QueryRowContext(ctx, `
        INSERT INTO state_updates (chain_id, contract_id, channel_id, ts, amount, signature)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `, key.ChainID, key.ContractID.String(), key.ChannelID.String(), ts, amount.String(), sig.String()).Scan(&id)
	if err != nil {
		detail := err.Error()
		if err := quarantine(ledger.ReasonInvalidState, detail); err != nil {
			return "", false, status, err
		}
		return "", false, status, &ledger.QuarantineError{Reason: ledger.ReasonInvalidState, Detail: detail, Status: status}
	}

	if err := tx.Commit(); err != nil {
		return "", false, status, err
	}
	return id, true, status, nil
}

func loadLatestStateTx(ctx context.Context, tx *sql.Tx, key channel.Key) (*channel.StateUpdate, error) {
	row := tx.QueryRowContext(ctx, `
        SELECT ts, amount, signature
        FROM state_updates
        WHERE chain_id = $1 AND contract_id = $2 AND channel_id = $3
        ORDER BY amount DESC
        LIMIT 1
        FOR UPDATE
    `, key.ChainID, key.ContractID.String(), key.ChannelID.String())
	return scanStateUpdate(row, key)
}
