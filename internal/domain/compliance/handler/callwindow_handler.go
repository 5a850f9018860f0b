package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/collections-portal/internal/domain/common"
	"github.com/FACorreiaa/collections-portal/internal/domain/compliance"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/normalizer"
)

type CallWindowHandler struct {
	calc   *compliance.Calculator
	logger *slog.Logger
}

func NewCallWindowHandler(calc *compliance.Calculator, logger *slog.Logger) *CallWindowHandler {
	return &CallWindowHandler{calc: calc, logger: logger}
}

func (h *CallWindowHandler) Routes(r chi.Router) {
	r.Get("/call-window", h.Check)
}

// Check answers whether a number may be dialed now.
func (h *CallWindowHandler) Check(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if normalizer.NormalizePhone(phone) == "" {
		common.WriteError(w, fmt.Errorf("%w: phone must have at least 10 digits", common.ErrBadRequest))
		return
	}
	st := h.calc.Check(phone)
	h.logger.DebugContext(r.Context(), "call window checked",
		slog.String("timezone", st.Timezone), slog.Bool("allowed", st.Allowed))
	common.WriteData(w, http.StatusOK, st)
}
