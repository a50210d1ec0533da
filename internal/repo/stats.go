// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-prompt-manager/internal/domain"
)

// PromptsStats returns aggregate metadata for an owner's prompts: the total
// number of rows, the largest id, and the maximum UpdatedAt among those rows.
// Together they change whenever a prompt is created, updated or deleted.
//
// When the owner has no prompts, count and maxID are 0 and maxUpdatedAt is nil.
func PromptsStats(ctx context.Context, db *gorm.DB, ownerID string) (count int64, maxID uint, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Prompt{}).Where("owner_id = ?", ownerID)

	if err = q.Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}

	// Latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Prompt{}).
		Where("owner_id = ?", ownerID).
		Select("updated_at").Order("updated_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	var idRow struct {
		ID uint
	}
	if err = db.WithContext(ctx).Model(&domain.Prompt{}).
		Where("owner_id = ?", ownerID).
		Select("id").Order("id DESC").Limit(1).
		Scan(&idRow).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, idRow.ID, &row.UpdatedAt, nil
}
