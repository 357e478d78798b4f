package adminmodels

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestReaderListByChannel(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	rows := []InvalidStateUpdate{
		{ID: uuid.NewString(), RecordedAt: now.Add(-2 * time.Minute), ChainID: 1, ContractID: "0xaa", ChannelID: "0xbb", Reason: "signature_invalid", Status: "{}", Raw: "{}"},
		{ID: uuid.NewString(), RecordedAt: now.Add(-1 * time.Minute), ChainID: 1, ContractID: "0xaa", ChannelID: "0xbb", Reason: "negative_amount", Status: "{}", Raw: "{}"},
		{ID: uuid.NewString(), RecordedAt: now, ChainID: 1, ContractID: "0xaa", ChannelID: "0xcc", Reason: "signature_invalid", Status: "{}", Raw: "{}"},
	}
	for _, row := range rows {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed row: %v", err)
		}
	}

	reader := NewReader(db)
	got, err := reader.ListByChannel(1, "0xaa", "0xbb", 10)
	if err != nil {
		t.Fatalf("ListByChannel: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Reason != "negative_amount" {
		t.Fatalf("expected most recent row first, got reason %q", got[0].Reason)
	}
}

func TestReaderListByReason(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		row := InvalidStateUpdate{
			ID:         uuid.NewString(),
			RecordedAt: now.Add(time.Duration(i) * time.Minute),
			ChainID:    1,
			ContractID: "0xaa",
			ChannelID:  "0xbb",
			Reason:     "signature_invalid",
			Status:     "{}",
			Raw:        "{}",
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed row: %v", err)
		}
	}

	reader := NewReader(db)
	got, err := reader.ListByReason("signature_invalid", 2)
	if err != nil {
		t.Fatalf("ListByReason: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(got))
	}
}
