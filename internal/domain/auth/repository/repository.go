package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/collections-portal/internal/domain/common"
)

var (
	ErrStaffNotFound = errors.New("staff member not found")
	ErrEmailTaken    = errors.New("email already registered")
)

// Staff is a CRM user row from the users table.
type Staff struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	Email        string      `db:"email" json:"email"`
	PasswordHash string      `db:"password_hash" json:"-"`
	DisplayName  *string     `db:"display_name" json:"display_name,omitempty"`
	Role         common.Role `db:"role" json:"role"`
	ClientID     *uuid.UUID  `db:"client_id" json:"client_id,omitempty"`
	IsActive     bool        `db:"is_active" json:"is_active"`
	LastLoginAt  *time.Time  `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

type AuthRepository interface {
	CreateStaff(ctx context.Context, s *Staff) error
	GetStaffByEmail(ctx context.Context, email string) (*Staff, error)
	GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	CountStaff(ctx context.Context) (int, error)
}
