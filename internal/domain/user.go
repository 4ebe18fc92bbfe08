package domain

import (
	"database/sql"
	"time"
)

// User 用户领域模型（对应 users 表）
type User struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"` // unique
	PasswordHash string         `db:"password_hash"`
	FirstName    string         `db:"first_name"`
	LastName     string         `db:"last_name"`
	Role         Role           `db:"role"`
	Phone        sql.NullString `db:"phone"`     // nullable
	IsActive     bool           `db:"is_active"` // soft delete flag
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}
