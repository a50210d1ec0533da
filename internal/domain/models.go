// Package domain defines the persistence models for prompts. These types are
// mapped with GORM and form the core data layer of the prompt manager.
package domain

import "time"

// Prompt is a named block of text owned by exactly one principal.
//
// Fields:
//   - ID: auto-increment primary key assigned by the database.
//   - OwnerID: opaque identity of the creator; indexed, never reassigned.
//   - Name / Description / Content: required text columns. Empty strings are
//     valid values; only NULL is rejected.
//   - CreatedAt: set once at insert.
//   - UpdatedAt: equal to CreatedAt at insert, refreshed on every update.
//
// There is no DeletedAt: deletes are hard deletes.
type Prompt struct {
	ID          uint      `json:"id"          gorm:"primaryKey;autoIncrement"`
	OwnerID     string    `json:"owner_id"    gorm:"type:varchar(191);not null;index:idx_owner_prompts,priority:1"`
	Name        string    `json:"name"        gorm:"type:text;not null"`
	Description string    `json:"description" gorm:"type:text;not null"`
	Content     string    `json:"content"     gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"  gorm:"not null;index:idx_owner_prompts,priority:2"`
	UpdatedAt   time.Time `json:"updated_at"  gorm:"not null"`
}

// TableName returns the database table name for Prompt.
func (Prompt) TableName() string { return "prompts" }

// PromptInput carries the caller-editable fields of a Prompt. It is used for
// both create and update; update replaces all three fields.
type PromptInput struct {
	Name        string
	Description string
	Content     string
}
