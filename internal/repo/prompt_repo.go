// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the ownership-scoped repository
// functions for the Prompt model.
//
// Every function takes the caller's identity (ownerID) as an explicit
// argument and binds it into the statement's WHERE clause. A single round
// trip is therefore both the authorization check and the data operation:
// there is no "fetch, compare owner, then mutate" sequence anywhere.
//
// Error semantics:
//   - When no row matches (id, owner_id), functions return ErrNotFound
//     (gorm.ErrRecordNotFound). A missing id and an id owned by someone else
//     are deliberately indistinguishable.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - ListPrompts(ctx, db, ownerID) -> []domain.Prompt, error
//     All prompts of ownerID, newest first (created_at DESC, id DESC).
//
//   - GetPrompt(ctx, db, ownerID, id) -> *domain.Prompt, error
//     Point read with the (id, owner_id) predicate.
//
//   - CreatePrompt(ctx, db, ownerID, in) -> *domain.Prompt, error
//     Single INSERT; created_at == updated_at.
//
//   - UpdatePrompt(ctx, db, ownerID, id, in) -> *domain.Prompt, error
//     Single UPDATE ... WHERE id AND owner_id RETURNING *.
//
//   - DeletePrompt(ctx, db, ownerID, id) -> *domain.Prompt, error
//     Single DELETE ... WHERE id AND owner_id RETURNING *; yields the row as
//     it was immediately before removal.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-prompt-manager/internal/domain"
)

// ErrNotFound is returned when no row matches the requested predicate.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// nowFunc is the clock used for created_at/updated_at. Tests replace it.
var nowFunc = func() time.Time { return time.Now().UTC() }

// ownedBy is the compound predicate shared by every point operation.
const ownedBy = "id = ? AND owner_id = ?"

// ListPrompts returns all prompts owned by ownerID ordered by creation time
// descending, with id as a deterministic tiebreak. It returns an empty slice
// when the owner has no prompts.
func ListPrompts(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Prompt, error) {
	out := []domain.Prompt{}
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Order("id desc").
		Find(&out).Error
	return out, err
}

// GetPrompt fetches a single prompt by id, scoped to ownerID. If the prompt
// does not exist or belongs to another owner, it returns ErrNotFound.
func GetPrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint) (*domain.Prompt, error) {
	var p domain.Prompt
	err := db.WithContext(ctx).
		Where(ownedBy, id, ownerID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePrompt inserts a new prompt owned by ownerID. The id is assigned by
// the database; created_at and updated_at are set to the same instant.
func CreatePrompt(ctx context.Context, db *gorm.DB, ownerID string, in domain.PromptInput) (*domain.Prompt, error) {
	now := nowFunc()
	p := &domain.Prompt{
		OwnerID:     ownerID,
		Name:        in.Name,
		Description: in.Description,
		Content:     in.Content,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePrompt replaces name, description and content of the prompt matching
// (id, ownerID) and refreshes updated_at, returning the row as stored. If no
// row matches, nothing is written and ErrNotFound is returned.
func UpdatePrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint, in domain.PromptInput) (*domain.Prompt, error) {
	var p domain.Prompt
	res := db.WithContext(ctx).
		Model(&p).
		Clauses(clause.Returning{}).
		Where(ownedBy, id, ownerID).
		Updates(map[string]any{
			"name":        in.Name,
			"description": in.Description,
			"content":     in.Content,
			"updated_at":  nowFunc(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &p, nil
}

// DeletePrompt removes the prompt matching (id, ownerID) and returns the row
// as it existed immediately before removal. If no row matches, ErrNotFound is
// returned.
func DeletePrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint) (*domain.Prompt, error) {
	var p domain.Prompt
	res := db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where(ownedBy, id, ownerID).
		Delete(&p)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &p, nil
}
