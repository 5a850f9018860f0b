package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	accountrepo "github.com/FACorreiaa/collections-portal/internal/domain/account/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/common"
	paymenthandler "github.com/FACorreiaa/collections-portal/internal/domain/payment/handler"
	paymentrepo "github.com/FACorreiaa/collections-portal/internal/domain/payment/repository"
	paymentsvc "github.com/FACorreiaa/collections-portal/internal/domain/payment/service"
	"github.com/FACorreiaa/collections-portal/internal/domain/portal/service"
)

const (
	sessionName     = "consumer_portal"
	sessionAccount  = "account_id"
	sessionLifetime = 15 * 60
)

var ErrNotVerified = errors.New("verify your account before continuing")

type Service interface {
	Lookup(ctx context.Context, phone string) ([]service.Summary, error)
	Verify(ctx context.Context, accountNumber, ssnLastFour string) (*service.Balance, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*service.Balance, error)
	Pay(ctx context.Context, accountID uuid.UUID, p paymentsvc.CreateParams) (*paymentrepo.Payment, error)
}

var _ Service = (*service.PortalService)(nil)

// NewSessionStore returns the signed cookie store holding verified accounts.
func NewSessionStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/api/consumer",
		MaxAge:   sessionLifetime,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	return store
}

type PortalHandler struct {
	service Service
	store   sessions.Store
	logger  *slog.Logger
}

func NewPortalHandler(svc Service, store sessions.Store, logger *slog.Logger) *PortalHandler {
	return &PortalHandler{service: svc, store: store, logger: logger}
}

// Limits throttles the unauthenticated portal endpoints. A nil field leaves
// that route unthrottled.
type Limits struct {
	Lookup func(http.Handler) http.Handler
	Verify func(http.Handler) http.Handler
}

// Routes mounts the portal.
func (h *PortalHandler) Routes(r chi.Router, limits Limits) {
	limited(r, limits.Lookup).Post("/lookup", h.Lookup)
	limited(r, limits.Verify).Post("/verify", h.Verify)
	r.Post("/logout", h.Logout)
	r.Get("/account", h.Account)
	r.Post("/payments", h.Pay)
}

func limited(r chi.Router, mw func(http.Handler) http.Handler) chi.Router {
	if mw == nil {
		return r
	}
	return r.With(mw)
}

type lookupRequest struct {
	Phone string `json:"phone" validate:"required"`
}

func (h *PortalHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	summaries, err := h.service.Lookup(r.Context(), req.Phone)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, summaries)
}

type verifyRequest struct {
	AccountNumber string `json:"account_number" validate:"required,max=64"`
	SSNLastFour   string `json:"ssn_last4" validate:"required,len=4,numeric"`
}

// Verify checks ownership and starts a portal session for the account.
func (h *PortalHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	bal, err := h.service.Verify(r.Context(), req.AccountNumber, req.SSNLastFour)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sess, _ := h.store.Get(r, sessionName)
	sess.Values[sessionAccount] = bal.AccountID.String()
	if err := sess.Save(r, w); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to save session: %w", err))
		return
	}
	common.WriteData(w, http.StatusOK, bal)
}

func (h *PortalHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.store.Get(r, sessionName)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to clear session: %w", err))
		return
	}
	common.WriteJSON(w, http.StatusOK, common.Response{Success: true, Message: "signed out"})
}

func (h *PortalHandler) Account(w http.ResponseWriter, r *http.Request) {
	id, err := h.verifiedAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bal, err := h.service.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, bal)
}

// Pay takes the same body as the CRM payment endpoint; account_id is
// ignored in favour of the verified session.
func (h *PortalHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := h.verifiedAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req paymenthandler.CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.service.Pay(r.Context(), id, req.Params(paymentsvc.ChannelPortal))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusCreated, p)
}

func (h *PortalHandler) verifiedAccount(r *http.Request) (uuid.UUID, error) {
	sess, err := h.store.Get(r, sessionName)
	if err != nil {
		return uuid.Nil, ErrNotVerified
	}
	raw, _ := sess.Values[sessionAccount].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrNotVerified
	}
	return id, nil
}

func (h *PortalHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrExceedsBalance),
		errors.Is(err, service.ErrNothingOwed):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrVerificationFailed), errors.Is(err, ErrNotVerified):
		status = http.StatusUnauthorized
	case errors.Is(err, accountrepo.ErrAccountNotFound):
		status = http.StatusNotFound
	default:
		status = paymenthandler.StatusFor(err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "portal request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	common.WriteStatus(w, status, err)
}
