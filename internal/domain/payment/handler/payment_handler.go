package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/collections-portal/internal/domain/common"
	"github.com/FACorreiaa/collections-portal/internal/domain/payment/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/payment/service"
	"github.com/FACorreiaa/collections-portal/pkg/crypto"
)

type Service interface {
	Create(ctx context.Context, p service.CreateParams) (*repository.Payment, error)
	List(ctx context.Context, scope *uuid.UUID, f repository.ListFilter) ([]*repository.Payment, error)
	Details(ctx context.Context, scope *uuid.UUID, id uuid.UUID) (*service.MethodDetails, error)
	UpdateStatus(ctx context.Context, scope *uuid.UUID, id uuid.UUID, status string) error
}

var _ Service = (*service.PaymentService)(nil)

type PaymentHandler struct {
	service Service
	logger  *slog.Logger
}

func NewPaymentHandler(svc Service, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: svc, logger: logger}
}

func (h *PaymentHandler) Routes(r chi.Router) {
	r.Get("/payments", h.List)
	r.Post("/payments", h.Create)
	r.Get("/payments/{id}/details", h.Details)
	r.Patch("/payments/{id}/status", h.UpdateStatus)
}

// CreateRequest is shared with the consumer portal, which fills AccountID
// from its session.
type CreateRequest struct {
	AccountID   uuid.UUID             `json:"account_id"`
	Amount      decimal.Decimal       `json:"amount"`
	PaymentType string                `json:"payment_type" validate:"required,oneof=card check"`
	Card        *service.CardDetails  `json:"card,omitempty"`
	Check       *service.CheckDetails `json:"check,omitempty"`
	PostDate    string                `json:"post_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Params converts the request for the service.
func (req CreateRequest) Params(channel service.Channel) service.CreateParams {
	p := service.CreateParams{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		PaymentType: req.PaymentType,
		Method:      service.MethodDetails{Card: req.Card, Check: req.Check},
		Channel:     channel,
	}
	if req.PostDate != "" {
		if d, err := time.Parse(time.DateOnly, req.PostDate); err == nil {
			p.PostDate = &d
		}
	}
	return p
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.AccountID == uuid.Nil {
		h.writeError(w, r, fmt.Errorf("%w: account_id is required", common.ErrBadRequest))
		return
	}
	params := req.Params(service.ChannelCRM)
	params.Scope = scopeOf(r)
	p, err := h.service.Create(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusCreated, p)
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f repository.ListFilter
	if raw := q.Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: invalid account_id", common.ErrBadRequest))
			return
		}
		f.AccountID = &id
	}
	if status := q.Get("status"); status != "" {
		f.Status = &status
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	payments, err := h.service.List(r.Context(), scopeOf(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, payments)
}

func (h *PaymentHandler) Details(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid id", common.ErrBadRequest))
		return
	}
	details, err := h.service.Details(r.Context(), scopeOf(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, details)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *PaymentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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
	common.WriteJSON(w, http.StatusOK, common.Response{Success: true, Message: "payment " + req.Status})
}

func scopeOf(r *http.Request) *uuid.UUID {
	if claims, ok := common.ClaimsFromContext(r.Context()); ok {
		return claims.ClientScope()
	}
	none := uuid.Nil
	return &none
}

// StatusFor maps payment errors onto HTTP codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidType),
		errors.Is(err, service.ErrMissingMethod),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, repository.ErrUnknownAccount):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDetailsUnavailable), errors.Is(err, crypto.ErrAuthenticationTag):
		return http.StatusUnprocessableEntity
	default:
		return common.StatusFor(err)
	}
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "payment request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	if status == http.StatusUnprocessableEntity {
		err = service.ErrDetailsUnavailable
	}
	common.WriteStatus(w, status, err)
}
