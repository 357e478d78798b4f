// Package adminmodels is a read-only GORM mapping over the quarantine log,
// used by administrative tooling that wants to page through rejected state
// updates without going through the ledger's write path. The write path
// (storage/postgres.Store.AdmitStateUpdate) inserts into the same table with
// raw SQL inside the advisory-locked transaction, since that insert must
// commit atomically with the lock it holds; GORM's own connection pooling
// makes it unsuitable for that transaction but is a natural fit for
// independent, ordinary reporting queries.
package adminmodels

import (
	"time"

	"gorm.io/gorm"
)

// InvalidStateUpdate mirrors the invalid_state_updates table's columns.
type InvalidStateUpdate struct {
	ID         string    `gorm:"column:id;primaryKey"`
	RecordedAt time.Time `gorm:"column:recorded_at"`
	ChainID    int64     `gorm:"column:chain_id"`
	ContractID string    `gorm:"column:contract_id"`
	ChannelID  string    `gorm:"column:channel_id"`
	Reason     string    `gorm:"column:reason"`
	Status     string    `gorm:"column:status"`
	Raw        string    `gorm:"column:raw"`
}

func (InvalidStateUpdate) TableName() string { return "invalid_state_updates" }

// AutoMigrate installs the GORM-visible shape of the quarantine log. It is
// idempotent with the raw-SQL schema in storage/postgres/schema.go, which
// remains the source of truth for the table's DDL; this call exists so
// sqlite-backed admin tests can stand the table up without the Postgres
// schema constant.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&InvalidStateUpdate{})
}

// Reader pages through quarantined state updates for a channel, newest
// first, for admin tooling that needs to explain why a payment was rejected.
type Reader struct {
	db *gorm.DB
}

// NewReader wraps an already-open GORM connection.
func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

// ListByChannel returns up to limit quarantined rows for the given channel,
// most recent first.
func (r *Reader) ListByChannel(chainID int64, contractID, channelID string, limit int) ([]InvalidStateUpdate, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []InvalidStateUpdate
	err := r.db.
		Where("chain_id = ? AND contract_id = ? AND channel_id = ?", chainID, contractID, channelID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListByReason returns up to limit quarantined rows sharing reason, most
// recent first, useful for spotting a systemic signing bug across channels.
func (r *Reader) ListByReason(reason string, limit int) ([]InvalidStateUpdate, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []InvalidStateUpdate
	err := r.db.
		Where("reason = ?", reason).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
