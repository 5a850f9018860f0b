package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/collections-portal/internal/domain/common"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/mapping"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/service"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/sniffer"
)

// Service is the part of service.ImportService the handler needs.
type Service interface {
	AIEnabled() bool
	AnalyzeFile(ctx context.Context, p service.AnalyzeParams) (*service.AnalyzeResult, error)
	ImportAccounts(ctx context.Context, p service.ImportParams) (*service.ImportResult, error)
	RollbackImport(ctx context.Context, batchID uuid.UUID) (*service.RollbackResult, error)
	ListImports(ctx context.Context, clientID *uuid.UUID, limit int) ([]*repository.ImportBatch, error)
	GetImport(ctx context.Context, batchID uuid.UUID) (*repository.ImportBatch, error)
	SaveTemplate(ctx context.Context, clientID uuid.UUID, name, fingerprint string, m mapping.HeaderMapping) (*repository.MappingTemplate, error)
	ListTemplates(ctx context.Context, clientID uuid.UUID) ([]*repository.MappingTemplate, error)
	DeleteTemplate(ctx context.Context, scope *uuid.UUID, id uuid.UUID) error
}

var _ Service = (*service.ImportService)(nil)

// ImportHandler serves the CRM import endpoints.
type ImportHandler struct {
	service   Service
	maxUpload int64
	logger    *slog.Logger
}

// NewImportHandler constructs a new handler.
func NewImportHandler(svc Service, maxUpload int64, logger *slog.Logger) *ImportHandler {
	if maxUpload <= 0 {
		maxUpload = sniffer.MaxFileSize
	}
	return &ImportHandler{service: svc, maxUpload: maxUpload, logger: logger}
}

// Routes mounts the import and template endpoints.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Get("/imports/config", h.Config)
	r.Post("/imports/analyze", h.Analyze)
	r.Post("/imports", h.Import)
	r.Get("/imports", h.ListImports)
	r.Get("/imports/{id}", h.GetImport)
	r.Post("/imports/{id}/rollback", h.Rollback)

	r.Get("/templates", h.ListTemplates)
	r.Post("/templates", h.SaveTemplate)
	r.Delete("/templates/{id}", h.DeleteTemplate)
}

// Config tells the upload form what the server accepts.
func (h *ImportHandler) Config(w http.ResponseWriter, _ *http.Request) {
	common.WriteData(w, http.StatusOK, map[string]any{
		"ai_enabled":       h.service.AIEnabled(),
		"max_upload_bytes": h.maxUpload,
	})
}

// Analyze sniffs an uploaded file and proposes a mapping.
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	data, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	clientID, err := optionalUUID(r.FormValue("client_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if clientID != nil {
		if err := authorizeClient(r.Context(), *clientID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	useAI, _ := strconv.ParseBool(r.FormValue("ai"))
	res, err := h.service.AnalyzeFile(r.Context(), service.AnalyzeParams{
		ClientID: clientID,
		Data:     data,
		UseAI:    useAI,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, res)
}

// Import runs an import with a finalized mapping.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	if err := authorizeImports(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	clientID, err := uuid.Parse(r.FormValue("client_id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: client_id is required", common.ErrBadRequest))
		return
	}
	if err := authorizeClient(r.Context(), clientID); err != nil {
		h.writeError(w, r, err)
		return
	}

	var m mapping.HeaderMapping
	if err := json.Unmarshal([]byte(r.FormValue("mapping")), &m); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: mapping must be JSON: %v", common.ErrBadRequest, err))
		return
	}

	var createdBy *uuid.UUID
	if claims, ok := common.ClaimsFromContext(r.Context()); ok {
		createdBy = claims.UserUUID()
	}

	res, err := h.service.ImportAccounts(r.Context(), service.ImportParams{
		ClientID:  clientID,
		CreatedBy: createdBy,
		Data:      data,
		Mapping:   m,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusCreated, res)
}

// ListImports returns recent batches, scoped to the caller's client.
func (h *ImportHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	clientID, err := optionalUUID(r.URL.Query().Get("client_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if claims, ok := common.ClaimsFromContext(r.Context()); ok {
		if scope := claims.ClientScope(); scope != nil {
			clientID = scope
		}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	batches, err := h.service.ListImports(r.Context(), clientID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, batches)
}

// GetImport returns one batch.
func (h *ImportHandler) GetImport(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	batch, err := h.service.GetImport(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := authorizeClient(r.Context(), batch.ClientID); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, batch)
}

// Rollback deletes a batch and its accounts.
func (h *ImportHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	if err := authorizeImports(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := pathUUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if claims, ok := common.ClaimsFromContext(r.Context()); ok && claims.ClientScope() != nil {
		batch, err := h.service.GetImport(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := authorizeClient(r.Context(), batch.ClientID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	res, err := h.service.RollbackImport(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, res)
}

// ListTemplates returns a client's saved templates.
func (h *ImportHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	clientID, err := uuid.Parse(r.URL.Query().Get("client_id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: client_id is required", common.ErrBadRequest))
		return
	}
	if err := authorizeClient(r.Context(), clientID); err != nil {
		h.writeError(w, r, err)
		return
	}

	templates, err := h.service.ListTemplates(r.Context(), clientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, templates)
}

type saveTemplateRequest struct {
	ClientID    uuid.UUID             `json:"client_id" validate:"required"`
	Name        string                `json:"name" validate:"required,max=100"`
	Fingerprint string                `json:"fingerprint" validate:"required"`
	Mapping     mapping.HeaderMapping `json:"mapping" validate:"required,min=1"`
}

// SaveTemplate stores a mapping for reuse.
func (h *ImportHandler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := authorizeClient(r.Context(), req.ClientID); err != nil {
		h.writeError(w, r, err)
		return
	}

	tpl, err := h.service.SaveTemplate(r.Context(), req.ClientID, req.Name, req.Fingerprint, req.Mapping)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusCreated, tpl)
}

// DeleteTemplate removes a template. Scoped staff can only delete their own
// client's templates; anything else is reported as not found.
func (h *ImportHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	claims, ok := common.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthenticated)
		return
	}
	if err := h.service.DeleteTemplate(r.Context(), claims.ClientScope(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readUpload returns the bytes of the "file" part, bounded by maxUpload.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, sniffer.ErrFileTooLarge
		}
		return nil, fmt.Errorf("%w: expected multipart form: %v", common.ErrBadRequest, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: file is required", common.ErrBadRequest)
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		return nil, sniffer.ErrFileTooLarge
	}
	if !acceptedUpload(header.Filename) {
		return nil, fmt.Errorf("%w: only .csv, .tsv and .txt files are accepted", common.ErrBadRequest)
	}
	return io.ReadAll(io.LimitReader(file, h.maxUpload+1))
}

func acceptedUpload(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".txt")
}

func authorizeClient(ctx context.Context, clientID uuid.UUID) error {
	claims, ok := common.ClaimsFromContext(ctx)
	if !ok {
		return common.ErrUnauthenticated
	}
	if !claims.CanAccessClient(clientID) {
		return fmt.Errorf("%w: client %s", common.ErrForbidden, clientID)
	}
	return nil
}

// authorizeImports rejects roles that may only read import history.
func authorizeImports(ctx context.Context) error {
	claims, ok := common.ClaimsFromContext(ctx)
	if !ok {
		return common.ErrUnauthenticated
	}
	if !claims.Role.CanManageImports() {
		return fmt.Errorf("%w: role %s cannot import or roll back accounts", common.ErrForbidden, claims.Role)
	}
	return nil
}

func pathUUID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", common.ErrBadRequest)
	}
	return id, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid client_id", common.ErrBadRequest)
	}
	return &id, nil
}

func (h *ImportHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		common.WriteStatus(w, status, err)
		return
	}

	h.logger.ErrorContext(r.Context(), "import request failed",
		slog.String("path", r.URL.Path), slog.Any("error", err))

	var importErr *service.ImportError
	var rejected *repository.RollbackRejectedError
	var rbErr *service.RollbackError
	switch {
	case errors.As(err, &importErr):
		common.WriteJSON(w, status, common.Response{Error: "import failed, no accounts were saved"})
	case errors.As(err, &rejected):
		common.WriteJSON(w, status, common.Response{Error: "rollback failed, the import was left unchanged: " + rejected.Message})
	case errors.As(err, &rbErr):
		common.WriteJSON(w, status, common.Response{Error: "rollback failed, the import was left unchanged"})
	default:
		common.WriteStatus(w, status, err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sniffer.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrInvalidFile),
		errors.Is(err, service.ErrHeaderNotInFile),
		errors.Is(err, service.ErrTemplateNameMissing),
		errors.Is(err, mapping.ErrEmptyHeader),
		errors.Is(err, mapping.ErrDuplicateHeader),
		errors.Is(err, mapping.ErrUnknownField),
		errors.Is(err, mapping.ErrFieldConflict),
		errors.Is(err, mapping.ErrNoRows),
		errors.Is(err, mapping.ErrDuplicateAccountNumber),
		errors.Is(err, repository.ErrUnknownClient):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrBatchNotFound),
		errors.Is(err, repository.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrAccountNumberConflict),
		errors.Is(err, repository.ErrTemplateExists):
		return http.StatusConflict
	default:
		return common.StatusFor(err)
	}
}
