package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/collections-portal/internal/domain/common"
	"github.com/FACorreiaa/collections-portal/internal/domain/payment/repository"
	"github.com/FACorreiaa/collections-portal/pkg/crypto"
	"github.com/FACorreiaa/collections-portal/pkg/observability"
)

var (
	ErrInvalidAmount      = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidType        = errors.New("payment type must be card or check")
	ErrMissingMethod      = errors.New("payment method details do not match the payment type")
	ErrInvalidStatus      = errors.New("payment status can only be set to processed or declined")
	ErrDetailsUnavailable = errors.New("payment method details could not be decrypted")
)

// Channel records where a payment was taken.
type Channel string

const (
	ChannelCRM    Channel = "crm"
	ChannelPortal Channel = "portal"
)

type CardDetails struct {
	CardholderName string `json:"cardholder_name" validate:"required,max=100"`
	Number         string `json:"number" validate:"required,credit_card"`
	ExpMonth       int    `json:"exp_month" validate:"required,min=1,max=12"`
	ExpYear        int    `json:"exp_year" validate:"required,min=2000,max=2100"`
	CVV            string `json:"cvv" validate:"required,numeric,min=3,max=4"`
}

type CheckDetails struct {
	AccountHolder string `json:"account_holder" validate:"required,max=100"`
	BankName      string `json:"bank_name,omitempty" validate:"max=100"`
	RoutingNumber string `json:"routing_number" validate:"required,numeric,len=9"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=4,max=17"`
	CheckNumber   string `json:"check_number,omitempty" validate:"omitempty,numeric"`
}

// MethodDetails is the sealed payload; exactly one side is set.
type MethodDetails struct {
	Card  *CardDetails  `json:"card,omitempty"`
	Check *CheckDetails `json:"check,omitempty"`
}

type CreateParams struct {
	// Scope restricts AccountID to one client's accounts; nil allows any.
	Scope       *uuid.UUID
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	PaymentType string
	Method      MethodDetails
	PostDate    *time.Time
	Channel     Channel
}

type PaymentService struct {
	repo   repository.PaymentRepository
	sealer crypto.Sealer
	logger *slog.Logger
}

func NewPaymentService(repo repository.PaymentRepository, sealer crypto.Sealer, logger *slog.Logger) *PaymentService {
	return &PaymentService{repo: repo, sealer: sealer, logger: logger}
}

// ValidateAmount rejects zero, negative and sub-cent amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

func (p CreateParams) validate() error {
	if err := ValidateAmount(p.Amount); err != nil {
		return err
	}
	var method any
	switch p.PaymentType {
	case repository.TypeCard:
		if p.Method.Card == nil || p.Method.Check != nil {
			return ErrMissingMethod
		}
		method = p.Method.Card
	case repository.TypeCheck:
		if p.Method.Check == nil || p.Method.Card != nil {
			return ErrMissingMethod
		}
		method = p.Method.Check
	default:
		return ErrInvalidType
	}
	return common.Validate(method)
}

// Create seals the method details and records a pending payment.
func (s *PaymentService) Create(ctx context.Context, p CreateParams) (*repository.Payment, error) {
	l := s.logger.With(slog.String("method", "Create"), slog.String("account_id", p.AccountID.String()))

	if err := p.validate(); err != nil {
		return nil, err
	}

	plain, err := json.Marshal(p.Method)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment method: %w", err)
	}
	sealed, nonce, err := s.sealer.Seal(plain)
	if err != nil {
		l.ErrorContext(ctx, "failed to seal payment method", slog.Any("error", err))
		return nil, fmt.Errorf("failed to seal payment method: %w", err)
	}

	payment := &repository.Payment{
		AccountID:       p.AccountID,
		Amount:          p.Amount,
		PaymentType:     p.PaymentType,
		MethodEncrypted: sealed,
		MethodIV:        nonce,
		PostDate:        p.PostDate,
	}
	if err := s.repo.Create(ctx, p.Scope, payment); err != nil {
		l.ErrorContext(ctx, "failed to record payment", slog.Any("error", err))
		return nil, err
	}

	channel := p.Channel
	if channel == "" {
		channel = ChannelCRM
	}
	observability.PaymentsTotal.WithLabelValues(string(channel)).Inc()
	l.InfoContext(ctx, "payment recorded",
		slog.String("payment_id", payment.ID.String()), slog.String("channel", string(channel)))
	return payment, nil
}

// List returns payments visible to scope, newest first.
func (s *PaymentService) List(ctx context.Context, scope *uuid.UUID, f repository.ListFilter) ([]*repository.Payment, error) {
	if scope != nil {
		f.ClientID = scope
	}
	return s.repo.List(ctx, f)
}

func (s *PaymentService) get(ctx context.Context, scope *uuid.UUID, id uuid.UUID) (*repository.Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope != nil && *scope != p.ClientID {
		return nil, repository.ErrPaymentNotFound
	}
	return p, nil
}

// Details opens the sealed method details of one payment.
func (s *PaymentService) Details(ctx context.Context, scope *uuid.UUID, id uuid.UUID) (*MethodDetails, error) {
	p, err := s.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	plain, err := s.sealer.Open(p.MethodEncrypted, p.MethodIV)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to open payment method",
			slog.String("payment_id", id.String()), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrDetailsUnavailable, err)
	}
	var details MethodDetails
	if err := json.Unmarshal(plain, &details); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetailsUnavailable, err)
	}
	return &details, nil
}

// UpdateStatus moves a payment to processed or declined.
func (s *PaymentService) UpdateStatus(ctx context.Context, scope *uuid.UUID, id uuid.UUID, status string) error {
	if status != repository.StatusProcessed && status != repository.StatusDeclined {
		return ErrInvalidStatus
	}
	if _, err := s.get(ctx, scope, id); err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, id, status)
}
