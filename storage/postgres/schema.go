// Package postgres is the production Store implementation: three
// append-only logs plus a quarantine log, backed by Postgres domains for
// the fixed-width hex types and NUMERIC(1000,0) for wei amounts, exactly
// mirroring the entity table in spec §3.
package postgres

// schema is applied idempotently by SetupDatabase. Domains give every hex
// column the same check-constraint error text address.ParseAddress et al.
// produce in Go, so a row inserted straight by SQL (migrations, backfills)
// fails the same way a Go-side validation failure would.
const schema = `
DO $$ BEGIN
    CREATE DOMAIN eth_address AS TEXT CHECK (VALUE ~ '^[0-9a-f]{40}$');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;
DO $$ BEGIN
    CREATE DOMAIN eth_hash AS TEXT CHECK (VALUE ~ '^[0-9a-f]{64}$');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;
DO $$ BEGIN
    CREATE DOMAIN eth_signature AS TEXT CHECK (VALUE ~ '^[0-9a-f]{130}$');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;
DO $$ BEGIN
    CREATE DOMAIN wei_amount AS NUMERIC(1000, 0) CHECK (VALUE >= 0);
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;

CREATE TABLE IF NOT EXISTS channel_events (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    insert_seq BIGSERIAL NOT NULL,
    chain_id BIGINT NOT NULL,
    contract_id eth_address NOT NULL,
    channel_id eth_hash NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    block_number BIGINT NOT NULL,
    block_hash eth_hash NOT NULL,
    block_is_valid BOOLEAN NOT NULL DEFAULT TRUE,
    sender eth_address NOT NULL,
    event_type TEXT NOT NULL,
    fields JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_channel_events_order
    ON channel_events (chain_id, contract_id, channel_id, block_number, block_hash, ts);
CREATE INDEX IF NOT EXISTS idx_channel_events_correlation
    ON channel_events (chain_id, contract_id, channel_id, sender, event_type, block_number);

CREATE TABLE IF NOT EXISTS channel_intents (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    insert_seq BIGSERIAL NOT NULL,
    chain_id BIGINT NOT NULL,
    contract_id eth_address NOT NULL,
    channel_id eth_hash NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    block_number BIGINT NOT NULL,
    block_hash eth_hash,
    sender eth_address NOT NULL,
    event_type TEXT NOT NULL,
    fields JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_channel_intents_order
    ON channel_intents (chain_id, contract_id, channel_id, block_number, block_hash, ts);

CREATE TABLE IF NOT EXISTS state_updates (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    chain_id BIGINT NOT NULL,
    contract_id eth_address NOT NULL,
    channel_id eth_hash NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    amount wei_amount NOT NULL,
    signature eth_signature NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_state_updates_unique
    ON state_updates (chain_id, contract_id, channel_id, amount);

CREATE TABLE IF NOT EXISTS invalid_state_updates (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    chain_id BIGINT NOT NULL,
    contract_id eth_address NOT NULL,
    channel_id eth_hash NOT NULL,
    reason TEXT NOT NULL,
    status JSONB NOT NULL,
    raw JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invalid_state_updates_channel
    ON invalid_state_updates (chain_id, contract_id, channel_id, recorded_at);
`
