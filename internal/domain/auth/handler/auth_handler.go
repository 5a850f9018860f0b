package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/collections-portal/internal/domain/auth/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/auth/service"
	"github.com/FACorreiaa/collections-portal/internal/domain/common"
)

type Service interface {
	Login(ctx context.Context, email, password string) (*common.LoginResponse, error)
	CreateStaff(ctx context.Context, p service.CreateStaffParams) (*repository.Staff, error)
}

var _ Service = (*service.AuthService)(nil)

// AuthHandler serves staff login and account provisioning.
type AuthHandler struct {
	service Service
	logger  *slog.Logger
}

func NewAuthHandler(svc Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/login", h.Login)
}

// Login authenticates a staff member and returns an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req common.LoginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, resp)
}

type createStaffRequest struct {
	Email       string      `json:"email" validate:"required,email"`
	Password    string      `json:"password" validate:"required"`
	DisplayName string      `json:"display_name" validate:"max=200"`
	Role        common.Role `json:"role" validate:"required"`
	ClientID    *uuid.UUID  `json:"client_id"`
}

// CreateStaff provisions a CRM user. Mounted behind an admin role check.
func (h *AuthHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req createStaffRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	staff, err := h.service.CreateStaff(r.Context(), service.CreateStaffParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		ClientID:    req.ClientID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusCreated, staff)
}

// Me echoes the verified token claims.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := common.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthenticated)
		return
	}
	common.WriteData(w, http.StatusOK, map[string]any{
		"user_id":   claims.UserID,
		"email":     claims.Email,
		"role":      claims.Role,
		"client_id": claims.ClientID,
	})
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrAccountDisabled):
		status = http.StatusUnauthorized
		err = service.ErrInvalidCredentials
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrClientRequired), errors.Is(err, service.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrEmailTaken):
		status = http.StatusConflict
	default:
		status = common.StatusFor(err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "auth request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	common.WriteStatus(w, status, err)
}
