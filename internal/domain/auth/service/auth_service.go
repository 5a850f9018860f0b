// Package service verifies staff credentials and issues CRM access tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/collections-portal/internal/domain/auth/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/common"
)

const minPasswordLength = 12

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidRole        = errors.New("invalid role")
	ErrClientRequired     = errors.New("client roles require a client_id")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// Authenticator checks staff credentials against the backing store.
type Authenticator interface {
	VerifyCredentials(ctx context.Context, email, password string) (*repository.Staff, error)
}

var _ Authenticator = (*AuthService)(nil)

type AuthService struct {
	repo   repository.AuthRepository
	tokens *TokenManager
	logger *slog.Logger
	// compared against when the email is unknown so both paths cost a bcrypt round
	dummyHash []byte
}

func NewAuthService(repo repository.AuthRepository, tokens *TokenManager, logger *slog.Logger) *AuthService {
	dummy, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	return &AuthService{repo: repo, tokens: tokens, logger: logger, dummyHash: dummy}
}

func (s *AuthService) VerifyCredentials(ctx context.Context, email, password string) (*repository.Staff, error) {
	l := s.logger.With(slog.String("method", "VerifyCredentials"))

	staff, err := s.repo.GetStaffByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrStaffNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		l.ErrorContext(ctx, "failed to load staff member", slog.Any("error", err))
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !staff.IsActive {
		return nil, ErrAccountDisabled
	}
	return staff, nil
}

// Login verifies credentials and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*common.LoginResponse, error) {
	l := s.logger.With(slog.String("method", "Login"))

	staff, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, _, err := s.tokens.Issue(staff)
	if err != nil {
		l.ErrorContext(ctx, "failed to issue token", slog.Any("error", err))
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, staff.ID); err != nil {
		l.WarnContext(ctx, "failed to record last login", slog.Any("error", err))
	}

	l.InfoContext(ctx, "staff login", slog.String("user_id", staff.ID.String()), slog.String("role", string(staff.Role)))
	return &common.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.tokens.ttl / time.Second),
		UserID:      staff.ID.String(),
		Email:       staff.Email,
		Role:        staff.Role,
	}, nil
}

type CreateStaffParams struct {
	Email       string
	Password    string
	DisplayName string
	Role        common.Role
	ClientID    *uuid.UUID
}

// CreateStaff hashes the password and stores a new active staff member.
func (s *AuthService) CreateStaff(ctx context.Context, p CreateStaffParams) (*repository.Staff, error) {
	l := s.logger.With(slog.String("method", "CreateStaff"))

	if !p.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if (p.Role == common.RoleClientAdmin || p.Role == common.RoleClientUser) && p.ClientID == nil {
		return nil, ErrClientRequired
	}
	if len(p.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	staff := &repository.Staff{
		Email:        strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash: string(hash),
		Role:         p.Role,
		ClientID:     p.ClientID,
		IsActive:     true,
	}
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		staff.DisplayName = &name
	}
	if p.Role == common.RoleSiteAdmin || p.Role == common.RoleCRMAdmin {
		staff.ClientID = nil
	}

	if err := s.repo.CreateStaff(ctx, staff); err != nil {
		if !errors.Is(err, repository.ErrEmailTaken) {
			l.ErrorContext(ctx, "failed to create staff member", slog.Any("error", err))
		}
		return nil, err
	}

	l.InfoContext(ctx, "staff member created", slog.String("user_id", staff.ID.String()), slog.String("role", string(staff.Role)))
	return staff, nil
}

// Bootstrap creates the first site admin from operator-supplied
// credentials. It does nothing once any staff member exists.
func (s *AuthService) Bootstrap(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := s.repo.CountStaff(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.CreateStaff(ctx, CreateStaffParams{Email: email, Password: password, Role: common.RoleSiteAdmin})
	return err
}

// Parse exposes token verification to the HTTP auth middleware.
func (s *AuthService) Parse(token string) (*common.Claims, error) {
	return s.tokens.Parse(token)
}
