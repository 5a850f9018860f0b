package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/collections-portal/internal/domain/account/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/normalizer"
)

var (
	ErrEmptySearch   = errors.New("search term is required")
	ErrInvalidStatus = errors.New("unknown account status")
)

const (
	searchLimit = 50
	// phoneSearchDigits is the digit count at which a term is treated as a phone number.
	phoneSearchDigits = 7
)

// Statuses lists the values an account's status may take. Imports create
// accounts as "New".
var Statuses = []string{
	"New",
	"[Open] - Online Login No Pay",
	"Paid",
	"Settled",
	"Uncollectible",
	"In Progress",
	"Legal",
	"Disputed",
}

// AccountService handles CRM account lookups. Every method takes the
// caller's client scope; nil means all clients.
type AccountService struct {
	repo   repository.AccountRepository
	logger *slog.Logger
}

func NewAccountService(repo repository.AccountRepository, logger *slog.Logger) *AccountService {
	return &AccountService{repo: repo, logger: logger}
}

// Search looks a term up as a phone number first when it carries enough
// digits, then falls back to account number, SSN and debtor name.
func (s *AccountService) Search(ctx context.Context, scope *uuid.UUID, term string) ([]*repository.Account, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptySearch
	}
	l := s.logger.With(slog.String("method", "Search"))

	if digits := normalizer.DigitsOnly(term); len(digits) >= phoneSearchDigits {
		accounts, err := s.repo.SearchByPhone(ctx, digits, scope, searchLimit)
		if err != nil {
			l.ErrorContext(ctx, "phone search failed", slog.Any("error", err))
			return nil, err
		}
		if len(accounts) > 0 {
			return accounts, nil
		}
	}

	accounts, err := s.repo.Search(ctx, term, scope, searchLimit)
	if err != nil {
		l.ErrorContext(ctx, "account search failed", slog.Any("error", err))
		return nil, err
	}
	return accounts, nil
}

// GetAccount hides accounts outside the caller's scope as not found.
func (s *AccountService) GetAccount(ctx context.Context, scope *uuid.UUID, id uuid.UUID) (*repository.Account, error) {
	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope != nil && *scope != a.ClientID {
		return nil, repository.ErrAccountNotFound
	}
	return a, nil
}

func (s *AccountService) UpdateStatus(ctx context.Context, scope *uuid.UUID, id uuid.UUID, status string) error {
	if !slices.Contains(Statuses, status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if _, err := s.GetAccount(ctx, scope, id); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account status updated",
		slog.String("account_id", id.String()), slog.String("status", status))
	return nil
}

func (s *AccountService) ListClients(ctx context.Context, scope *uuid.UUID) ([]*repository.Client, error) {
	return s.repo.ListClients(ctx, scope)
}

func (s *AccountService) CreateClient(ctx context.Context, name, email string) (*repository.Client, error) {
	c := &repository.Client{
		Name:  strings.TrimSpace(name),
		Email: strings.ToLower(strings.TrimSpace(email)),
	}
	if err := s.repo.CreateClient(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
