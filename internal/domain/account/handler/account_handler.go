package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/collections-portal/internal/domain/account/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/account/service"
	"github.com/FACorreiaa/collections-portal/internal/domain/common"
)

type Service interface {
	Search(ctx context.Context, scope *uuid.UUID, term string) ([]*repository.Account, error)
	GetAccount(ctx context.Context, scope *uuid.UUID, id uuid.UUID) (*repository.Account, error)
	UpdateStatus(ctx context.Context, scope *uuid.UUID, id uuid.UUID, status string) error
	ListClients(ctx context.Context, scope *uuid.UUID) ([]*repository.Client, error)
	CreateClient(ctx context.Context, name, email string) (*repository.Client, error)
}

var _ Service = (*service.AccountService)(nil)

type AccountHandler struct {
	service Service
	logger  *slog.Logger
}

func NewAccountHandler(svc Service, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: svc, logger: logger}
}

// Routes mounts the read and status endpoints. Client creation is mounted
// separately so the router can restrict it to admins.
func (h *AccountHandler) Routes(r chi.Router) {
	r.Get("/clients", h.ListClients)
	r.Get("/accounts", h.Search)
	r.Get("/accounts/statuses", h.Statuses)
	r.Get("/accounts/{id}", h.GetAccount)
	r.Patch("/accounts/{id}/status", h.UpdateStatus)
}

func (h *AccountHandler) Search(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Search(r.Context(), scopeOf(r), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, accounts)
}

func (h *AccountHandler) Statuses(w http.ResponseWriter, _ *http.Request) {
	common.WriteData(w, http.StatusOK, service.Statuses)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid id", common.ErrBadRequest))
		return
	}
	a, err := h.service.GetAccount(r.Context(), scopeOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, a)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid id", common.ErrBadRequest))
		return
	}
	var req updateStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.service.UpdateStatus(r.Context(), scopeOf(r), id, req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, common.Response{Success: true, Message: "status updated"})
}

func (h *AccountHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context(), scopeOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, clients)
}

type createClientRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
}

func (h *AccountHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.service.CreateClient(r.Context(), req.Name, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusCreated, c)
}

func scopeOf(r *http.Request) *uuid.UUID {
	if claims, ok := common.ClaimsFromContext(r.Context()); ok {
		return claims.ClientScope()
	}
	none := uuid.Nil
	return &none
}

func (h *AccountHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrEmptySearch), errors.Is(err, service.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrClientExists):
		status = http.StatusConflict
	default:
		status = common.StatusFor(err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "account request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	common.WriteStatus(w, status, err)
}
