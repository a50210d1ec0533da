package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-prompt-manager/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestPromptsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, _, _, err := PromptsStats(context.Background(), db, "u1")
	if err == nil {
		t.Fatalf("expected error due to missing prompts table")
	}
}

func TestPromptsStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Prompt{})
	count, maxID, maxAt, err := PromptsStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("PromptsStats error: %v", err)
	}
	if count != 0 || maxID != 0 || maxAt != nil {
		t.Fatalf("expected (0, 0, nil), got (%d, %d, %v)", count, maxID, maxAt)
	}
}

func TestPromptsStats_ScopedToOwner(t *testing.T) {
	db := newTestDB(t, &domain.Prompt{})
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []domain.Prompt{
		{OwnerID: "u1", CreatedAt: base, UpdatedAt: base},
		{OwnerID: "u1", CreatedAt: base, UpdatedAt: base.Add(2 * time.Hour)},
		{OwnerID: "u2", CreatedAt: base, UpdatedAt: base.Add(5 * time.Hour)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	count, maxID, maxAt, err := PromptsStats(ctx, db, "u1")
	if err != nil {
		t.Fatalf("PromptsStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count=2, got %d", count)
	}
	if maxID != rows[1].ID {
		t.Fatalf("expected maxID=%d, got %d", rows[1].ID, maxID)
	}
	if maxAt == nil || !maxAt.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("expected maxUpdatedAt=%v, got %v", base.Add(2*time.Hour), maxAt)
	}
}
