// Package service implements the consumer self-service portal: finding an
// account by phone, proving ownership, and paying toward the balance.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	accountrepo "github.com/FACorreiaa/collections-portal/internal/domain/account/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/normalizer"
	paymentrepo "github.com/FACorreiaa/collections-portal/internal/domain/payment/repository"
	paymentsvc "github.com/FACorreiaa/collections-portal/internal/domain/payment/service"
)

var (
	ErrInvalidPhone       = errors.New("phone number must have 10 digits")
	ErrVerificationFailed = errors.New("account number or SSN does not match our records")
	ErrExceedsBalance     = errors.New("payment amount exceeds the current balance")
	ErrNothingOwed        = errors.New("this account has no balance due")
)

type AccountFinder interface {
	FindByPhoneNumbers(ctx context.Context, numbers []string) ([]*accountrepo.Account, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*accountrepo.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*accountrepo.Account, error)
}

type PaymentCreator interface {
	Create(ctx context.Context, p paymentsvc.CreateParams) (*paymentrepo.Payment, error)
}

// Summary is what an unverified visitor may see about a matched account.
type Summary struct {
	AccountNumber string `json:"account_number"`
	Creditor      string `json:"creditor"`
	FirstName     string `json:"first_name,omitempty"`
}

// Balance is shown only after verification.
type Balance struct {
	AccountID      uuid.UUID       `json:"account_id"`
	AccountNumber  string          `json:"account_number"`
	DebtorName     string          `json:"debtor_name"`
	Creditor       string          `json:"creditor"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Status         string          `json:"status"`
}

type PortalService struct {
	accounts AccountFinder
	payments PaymentCreator
	logger   *slog.Logger
}

func NewPortalService(accounts AccountFinder, payments PaymentCreator, logger *slog.Logger) *PortalService {
	return &PortalService{accounts: accounts, payments: payments, logger: logger}
}

// PhoneVariants returns the stored spellings a 10 digit US number may have.
func PhoneVariants(raw string) ([]string, error) {
	d := normalizer.DigitsOnly(raw)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return nil, ErrInvalidPhone
	}
	return []string{d, "1" + d, "+1" + d}, nil
}

// Lookup finds accounts reachable at phone, one summary per account number.
func (s *PortalService) Lookup(ctx context.Context, phone string) ([]Summary, error) {
	l := s.logger.With(slog.String("method", "Lookup"))

	variants, err := PhoneVariants(phone)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.FindByPhoneNumbers(ctx, variants)
	if err != nil {
		l.ErrorContext(ctx, "phone lookup failed", slog.Any("error", err))
		return nil, err
	}

	seen := make(map[string]struct{}, len(accounts))
	out := make([]Summary, 0, len(accounts))
	for _, a := range accounts {
		if _, dup := seen[a.AccountNumber]; dup {
			continue
		}
		seen[a.AccountNumber] = struct{}{}
		out = append(out, summarize(a))
	}

	l.InfoContext(ctx, "consumer lookup", slog.String("phone", MaskTail(variants[0], 4)), slog.Int("matches", len(out)))
	return out, nil
}

func summarize(a *accountrepo.Account) Summary {
	s := Summary{
		AccountNumber: MaskTail(a.AccountNumber, 4),
		Creditor:      creditor(a),
	}
	if a.DebtorFirstName != nil {
		s.FirstName = *a.DebtorFirstName
	} else if first, _, _ := normalizer.SplitName(a.DebtorName); first != "" {
		s.FirstName = first
	}
	return s
}

func creditor(a *accountrepo.Account) string {
	if a.OriginalCreditor != nil && *a.OriginalCreditor != "" {
		return *a.OriginalCreditor
	}
	return a.ClientName
}

// MaskTail replaces all but the last n characters with '*'.
func MaskTail(v string, n int) string {
	if len(v) <= n {
		return v
	}
	return strings.Repeat("*", len(v)-n) + v[len(v)-n:]
}

// Verify proves the visitor holds the account: the account number must
// exist and the stored SSN must end in ssnLastFour.
func (s *PortalService) Verify(ctx context.Context, accountNumber, ssnLastFour string) (*Balance, error) {
	l := s.logger.With(slog.String("method", "Verify"))

	a, err := s.accounts.GetByAccountNumber(ctx, strings.TrimSpace(accountNumber))
	if errors.Is(err, accountrepo.ErrAccountNotFound) {
		return nil, ErrVerificationFailed
	}
	if err != nil {
		l.ErrorContext(ctx, "account lookup failed", slog.Any("error", err))
		return nil, err
	}

	stored := a.SSNLastFour()
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(ssnLastFour)) != 1 {
		l.WarnContext(ctx, "consumer verification failed", slog.String("account_id", a.ID.String()))
		return nil, ErrVerificationFailed
	}

	l.InfoContext(ctx, "consumer verified", slog.String("account_id", a.ID.String()))
	return toBalance(a), nil
}

// Balance reloads a verified account.
func (s *PortalService) Balance(ctx context.Context, accountID uuid.UUID) (*Balance, error) {
	a, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return toBalance(a), nil
}

func toBalance(a *accountrepo.Account) *Balance {
	b := &Balance{
		AccountID:     a.ID,
		AccountNumber: a.AccountNumber,
		DebtorName:    a.DebtorName,
		Creditor:      creditor(a),
		Status:        a.Status,
	}
	if a.CurrentBalance != nil {
		b.CurrentBalance = *a.CurrentBalance
	}
	return b
}

// Pay records a pending portal payment against the verified account. The
// amount may not exceed the current balance.
func (s *PortalService) Pay(ctx context.Context, accountID uuid.UUID, p paymentsvc.CreateParams) (*paymentrepo.Payment, error) {
	l := s.logger.With(slog.String("method", "Pay"), slog.String("account_id", accountID.String()))

	if err := paymentsvc.ValidateAmount(p.Amount); err != nil {
		return nil, err
	}

	bal, err := s.Balance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !bal.CurrentBalance.IsPositive() {
		return nil, ErrNothingOwed
	}
	if p.Amount.GreaterThan(bal.CurrentBalance) {
		return nil, fmt.Errorf("%w: balance is %s", ErrExceedsBalance, bal.CurrentBalance.StringFixed(2))
	}

	// the session already proved ownership of accountID
	p.Scope = nil
	p.AccountID = accountID
	p.Channel = paymentsvc.ChannelPortal
	payment, err := s.payments.Create(ctx, p)
	if err != nil {
		return nil, err
	}

	l.InfoContext(ctx, "portal payment recorded", slog.String("payment_id", payment.ID.String()))
	return payment, nil
}
