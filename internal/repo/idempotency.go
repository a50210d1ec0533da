// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores Idempotency-Key records so a retried
// create returns the prompt made by the first attempt.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-prompt-manager/internal/domain"
)

// ErrDuplicate indicates that a live record already exists for the
// (user_id, key) pair.
var ErrDuplicate = errors.New("duplicate")

// idemScope narrows a query to one caller's key.
func idemScope(db *gorm.DB, userID, key string) *gorm.DB {
	return db.Model(&domain.Idempotency{}).Where("user_id = ? AND key = ?", userID, key)
}

// GetIdempotency returns the record for (userID, key) that is still live at
// now, or ErrNotFound. Blank arguments never match.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	switch err := idemScope(db.WithContext(ctx), userID, key).
		Where("expires_at > ?", now).
		Take(&rec).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency records that key produced promptID with the given status.
// A stale record for the same pair is replaced, so keys become reusable once
// their TTL has elapsed; a live one yields ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, key string, promptID uint, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		PromptID:  promptID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := idemScope(tx, userID, key).
			Where("expires_at <= ?", now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	switch {
	case err == nil:
		return rec, nil
	case isUniqueViolation(err):
		return nil, ErrDuplicate
	default:
		return nil, err
	}
}

// RepointIdempotency moves the live record for (userID, key) to promptID and
// restarts its TTL. Used when the prompt a key produced has since been
// deleted. Returns ErrNotFound when no live record exists.
func RepointIdempotency(ctx context.Context, db *gorm.DB, userID, key string, promptID uint, ttl time.Duration) error {
	now := time.Now().UTC()
	res := idemScope(db.WithContext(ctx), userID, key).
		Where("expires_at > ?", now).
		Updates(map[string]any{"prompt_id": promptID, "expires_at": now.Add(ttl)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredIdempotency deletes every record that expired at or before now
// and reports how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation recognizes unique-index failures from both backends.
// The SQLite driver only reports them as text unless error translation is on.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unique constraint failed", "constraint failed: unique", "duplicate key"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
