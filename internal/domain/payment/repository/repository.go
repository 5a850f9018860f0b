// Package repository stores payments and their sealed method details.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrUnknownAccount  = errors.New("account does not exist")
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDeclined  = "declined"

	TypeCard  = "card"
	TypeCheck = "check"
)

// Payment is a recorded payment joined with its account.
type Payment struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	AccountID       uuid.UUID       `db:"account_id" json:"account_id"`
	ClientID        uuid.UUID       `db:"client_id" json:"client_id"`
	AccountNumber   string          `db:"account_number" json:"account_number"`
	DebtorName      string          `db:"debtor_name" json:"debtor_name"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	PaymentType     string          `db:"payment_type" json:"payment_type"`
	MethodEncrypted string          `db:"payment_method_encrypted" json:"-"`
	MethodIV        string          `db:"payment_method_iv" json:"-"`
	Status          string          `db:"status" json:"status"`
	PostDate        *time.Time      `db:"post_date" json:"post_date,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ListFilter narrows List; nil fields match everything.
type ListFilter struct {
	ClientID  *uuid.UUID
	AccountID *uuid.UUID
	Status    *string
	Limit     int
}

type PaymentRepository interface {
	// Create inserts p as pending and fills its id and timestamps. A non-nil
	// scope requires the account to belong to that client.
	Create(ctx context.Context, scope *uuid.UUID, p *Payment) error
	Get(ctx context.Context, id uuid.UUID) (*Payment, error)
	List(ctx context.Context, f ListFilter) ([]*Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}
