package domain

import "time"

// Idempotency maps a caller's Idempotency-Key to the prompt its first create
// produced. The pair (UserID, Key) is unique while the row lives; expired
// rows are replaced on the next create with the same key.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_idem_user_key,priority:1"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_user_key,priority:2"`
	PromptID  uint      `gorm:"not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName pins the table name used by migrations and raw queries.
func (Idempotency) TableName() string { return "idempotency" }
