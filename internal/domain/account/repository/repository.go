// Package repository provides data access for clients, accounts and their
// phone numbers.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrClientExists    = errors.New("a client with this email already exists")
)

// Client is a creditor whose accounts are worked in the CRM.
type Client struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type PhoneNumber struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	AccountID  uuid.UUID  `db:"account_id" json:"account_id"`
	Number     string     `db:"number" json:"number"`
	Status     string     `db:"status" json:"status"`
	LastCalled *time.Time `db:"last_called" json:"last_called,omitempty"`
}

// Account is one debt as stored, joined with its client's name.
type Account struct {
	ID                    uuid.UUID        `db:"id" json:"id"`
	ClientID              uuid.UUID        `db:"client_id" json:"client_id"`
	ClientName            string           `db:"client_name" json:"client_name"`
	AccountNumber         string           `db:"account_number" json:"account_number"`
	OriginalAccountNumber *string          `db:"original_account_number" json:"original_account_number,omitempty"`
	DebtorName            string           `db:"debtor_name" json:"debtor_name"`
	DebtorFirstName       *string          `db:"debtor_first_name" json:"debtor_first_name,omitempty"`
	DebtorMiddleName      *string          `db:"debtor_middle_name" json:"debtor_middle_name,omitempty"`
	DebtorLastName        *string          `db:"debtor_last_name" json:"debtor_last_name,omitempty"`
	SSN                   *string          `db:"ssn" json:"ssn,omitempty"`
	DateOfBirth           *time.Time       `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Email                 *string          `db:"email" json:"email,omitempty"`
	Address               *string          `db:"address" json:"address,omitempty"`
	City                  *string          `db:"city" json:"city,omitempty"`
	State                 *string          `db:"state" json:"state,omitempty"`
	ZipCode               *string          `db:"zip_code" json:"zip_code,omitempty"`
	CurrentBalance        *decimal.Decimal `db:"current_balance" json:"current_balance,omitempty"`
	OriginalCreditor      *string          `db:"original_creditor" json:"original_creditor,omitempty"`
	OpenDate              *time.Time       `db:"open_date" json:"open_date,omitempty"`
	ChargeOffDate         *time.Time       `db:"charge_off_date" json:"charge_off_date,omitempty"`
	CreditScore           *int             `db:"credit_score" json:"credit_score,omitempty"`
	ImportantNotes        *string          `db:"important_notes" json:"important_notes,omitempty"`
	Status                string           `db:"status" json:"status"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`
	Phones                []PhoneNumber    `db:"-" json:"phone_numbers"`
}

// SSNLastFour returns the final four digits of the stored SSN, or "".
func (a *Account) SSNLastFour() string {
	if a.SSN == nil {
		return ""
	}
	digits := make([]byte, 0, 9)
	for i := 0; i < len(*a.SSN); i++ {
		if c := (*a.SSN)[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

// AccountRepository defines data access operations for the CRM.
type AccountRepository interface {
	// SearchByPhone returns accounts with a phone number containing digits.
	SearchByPhone(ctx context.Context, digits string, clientID *uuid.UUID, limit int) ([]*Account, error)
	// Search matches term against account number, SSN and debtor name.
	Search(ctx context.Context, term string, clientID *uuid.UUID, limit int) ([]*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*Account, error)
	// FindByPhoneNumbers returns accounts with a phone stored exactly as one of numbers.
	FindByPhoneNumbers(ctx context.Context, numbers []string) ([]*Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error

	ListClients(ctx context.Context, clientID *uuid.UUID) ([]*Client, error)
	CreateClient(ctx context.Context, c *Client) error
}
