// Package service provides the import orchestration logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/analyzer"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/fields"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/mapping"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/matcher"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/repository"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/sniffer"
	"github.com/FACorreiaa/collections-portal/pkg/observability"
)

var (
	ErrInvalidFile         = errors.New("invalid import file")
	ErrHeaderNotInFile     = errors.New("mapped column is not in the file")
	ErrTemplateNameMissing = errors.New("template name is required")
)

// ImportError reports a persistence failure; nothing from the batch was kept.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string { return "import failed: " + e.Err.Error() }
func (e *ImportError) Unwrap() error { return e.Err }

// RollbackError reports a rollback that did not happen; the batch and its
// accounts are unchanged.
type RollbackError struct {
	BatchID uuid.UUID
	Err     error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback of import %s failed: %v", e.BatchID, e.Err)
}
func (e *RollbackError) Unwrap() error { return e.Err }

// Suggester proposes a mapping from headers and one sample row.
type Suggester interface {
	Enabled() bool
	Suggest(ctx context.Context, headers []string, sample map[string]string) (mapping.HeaderMapping, analyzer.Outcome)
}

// AnalyzeParams selects the client whose templates apply and whether the
// language model should be consulted.
type AnalyzeParams struct {
	ClientID *uuid.UUID
	Data     []byte
	UseAI    bool
}

// AnalyzeResult contains the result of analyzing an uploaded file
type AnalyzeResult struct {
	File        *sniffer.FileConfig         `json:"file"`
	Suggestions []matcher.Suggestion        `json:"suggestions"`
	Template    *repository.MappingTemplate `json:"template,omitempty"`
	AIOutcome   analyzer.Outcome            `json:"ai_outcome,omitempty"`
	AISuggested mapping.HeaderMapping       `json:"ai_suggested,omitempty"`
	Mapping     mapping.HeaderMapping       `json:"mapping"`
	Unmapped    []string                    `json:"unmapped"`
	Targets     []fields.Field              `json:"targets"`
}

// ImportParams is one import request.
type ImportParams struct {
	ClientID  uuid.UUID
	CreatedBy *uuid.UUID
	Data      []byte
	Mapping   mapping.HeaderMapping
}

// ImportResult contains the result of an import operation
type ImportResult struct {
	Batch    *repository.ImportBatch `json:"batch"`
	RowsRead int                     `json:"rows_read"`
	Phones   int                     `json:"phone_numbers"`
}

// RollbackResult reports what a rollback removed.
type RollbackResult struct {
	BatchID         uuid.UUID `json:"batch_id"`
	AccountsDeleted int       `json:"accounts_deleted"`
}

// ImportService orchestrates file analysis and import operations
type ImportService struct {
	repo    repository.ImportRepository
	ai      Suggester
	applier *mapping.Applier
	logger  *slog.Logger
}

// NewImportService creates a new import service
func NewImportService(repo repository.ImportRepository, ai Suggester, applier *mapping.Applier, logger *slog.Logger) *ImportService {
	if applier == nil {
		applier = mapping.NewApplier(logger)
	}
	return &ImportService{
		repo:    repo,
		ai:      ai,
		applier: applier,
		logger:  logger,
	}
}

// AIEnabled reports whether model suggestions are available.
func (s *ImportService) AIEnabled() bool {
	return s.ai != nil && s.ai.Enabled()
}

// AnalyzeFile sniffs the file and proposes a mapping. A saved template with
// the same header fingerprint wins; otherwise keyword matches are used and,
// when requested, the model fills the columns the matcher left open.
func (s *ImportService) AnalyzeFile(ctx context.Context, p AnalyzeParams) (*AnalyzeResult, error) {
	l := s.logger.With(slog.String("method", "AnalyzeFile"))

	cfg, err := sniffer.DetectConfig(p.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	sample := cfg.Sample()

	result := &AnalyzeResult{
		File:        cfg,
		Suggestions: matcher.SuggestAll(cfg.Headers, sample),
		Targets:     targets(),
	}

	tpl, err := s.repo.GetTemplateByFingerprint(ctx, p.ClientID, cfg.Fingerprint)
	if err != nil {
		l.WarnContext(ctx, "template lookup failed", slog.Any("error", err))
	}
	if tpl != nil {
		result.Template = tpl
		result.Mapping = restrictToHeaders(tpl.Mapping, cfg.Headers)
		result.Unmapped = unmapped(cfg.Headers, result.Mapping)
		l.InfoContext(ctx, "template matched", slog.String("template", tpl.Name))
		return result, nil
	}

	proposed := make(map[string]string, len(result.Suggestions))
	for _, sg := range result.Suggestions {
		proposed[sg.Header] = string(sg.Field)
	}

	if p.UseAI && s.ai != nil {
		suggested, outcome := s.ai.Suggest(ctx, cfg.Headers, sample)
		observability.FieldSuggestions.WithLabelValues(string(outcome)).Inc()
		result.AIOutcome = outcome
		result.AISuggested = suggested
		mergeSuggestions(proposed, suggested, cfg.Headers)
	}

	result.Mapping = mapping.FromMap(cfg.Headers, proposed)
	result.Unmapped = unmapped(cfg.Headers, result.Mapping)

	l.InfoContext(ctx, "file analyzed",
		slog.Int("headers", len(cfg.Headers)),
		slog.Int("mapped", len(result.Mapping)),
		slog.String("ai_outcome", string(result.AIOutcome)))
	return result, nil
}

// mergeSuggestions adds model proposals for headers the matcher left open,
// keeping the one-column-per-field rule.
func mergeSuggestions(proposed map[string]string, suggested mapping.HeaderMapping, headers []string) {
	used := mapping.FromMap(headers, proposed).Used()
	for _, e := range suggested {
		if _, taken := proposed[e.Header]; taken {
			continue
		}
		if used[e.Field] && !e.Field.AllowsFanIn() {
			continue
		}
		proposed[e.Header] = string(e.Field)
		used[e.Field] = true
	}
}

// ImportAccounts parses the whole file, builds records with the shared
// mapping routine and inserts them as one batch.
func (s *ImportService) ImportAccounts(ctx context.Context, p ImportParams) (*ImportResult, error) {
	l := s.logger.With(slog.String("method", "ImportAccounts"), slog.String("client_id", p.ClientID.String()))

	cfg, rows, err := sniffer.Rows(p.Data)
	if err != nil {
		observability.ImportsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if err := checkHeaders(p.Mapping, cfg.Headers); err != nil {
		observability.ImportsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	// object-shaped mappings arrive unordered; phones and notes follow the file
	batch, err := s.applier.Apply(rows, p.Mapping.InFileOrder(cfg.Headers), p.ClientID)
	if err != nil {
		observability.ImportsTotal.WithLabelValues("invalid").Inc()
		l.WarnContext(ctx, "rows rejected", slog.Any("error", err))
		return nil, err
	}

	saved, err := s.repo.InsertBatch(ctx, batch, p.ClientID, p.CreatedBy)
	if err != nil {
		observability.ImportsTotal.WithLabelValues("failed").Inc()
		l.ErrorContext(ctx, "batch insert failed", slog.Any("error", err))
		return nil, &ImportError{Err: err}
	}

	observability.ImportsTotal.WithLabelValues("success").Inc()
	observability.AccountsImported.Add(float64(saved.AccountCount))
	l.InfoContext(ctx, "import complete",
		slog.String("batch_id", saved.ID.String()),
		slog.Int("accounts", saved.AccountCount),
		slog.Int("phone_numbers", saved.PhoneCount))

	return &ImportResult{Batch: saved, RowsRead: len(rows), Phones: saved.PhoneCount}, nil
}

// RollbackImport removes a batch and every account it created.
func (s *ImportService) RollbackImport(ctx context.Context, batchID uuid.UUID) (*RollbackResult, error) {
	l := s.logger.With(slog.String("method", "RollbackImport"), slog.String("batch_id", batchID.String()))

	deleted, err := s.repo.RollbackImport(ctx, batchID)
	if err != nil {
		observability.RollbacksTotal.WithLabelValues("failed").Inc()
		l.ErrorContext(ctx, "rollback failed", slog.Any("error", err))
		return nil, &RollbackError{BatchID: batchID, Err: err}
	}

	observability.RollbacksTotal.WithLabelValues("success").Inc()
	l.InfoContext(ctx, "import rolled back", slog.Int("accounts_deleted", deleted))
	return &RollbackResult{BatchID: batchID, AccountsDeleted: deleted}, nil
}

// ListImports returns recent batches, newest first.
func (s *ImportService) ListImports(ctx context.Context, clientID *uuid.UUID, limit int) ([]*repository.ImportBatch, error) {
	batches, err := s.repo.ListBatches(ctx, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing imports: %w", err)
	}
	return batches, nil
}

// GetImport returns one batch.
func (s *ImportService) GetImport(ctx context.Context, batchID uuid.UUID) (*repository.ImportBatch, error) {
	return s.repo.GetBatch(ctx, batchID)
}

// SaveTemplate stores a validated mapping under a name for later uploads
// with the same header layout.
func (s *ImportService) SaveTemplate(ctx context.Context, clientID uuid.UUID, name, fingerprint string, m mapping.HeaderMapping) (*repository.MappingTemplate, error) {
	l := s.logger.With(slog.String("method", "SaveTemplate"), slog.String("client_id", clientID.String()))

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTemplateNameMissing
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	tpl := &repository.MappingTemplate{
		ClientID:    clientID,
		Name:        name,
		Fingerprint: fingerprint,
		Mapping:     m,
	}
	if err := s.repo.CreateTemplate(ctx, tpl); err != nil {
		l.ErrorContext(ctx, "failed to save template", slog.Any("error", err))
		return nil, err
	}

	l.InfoContext(ctx, "template saved", slog.String("template_id", tpl.ID.String()))
	return tpl, nil
}

// ListTemplates returns a client's saved templates.
func (s *ImportService) ListTemplates(ctx context.Context, clientID uuid.UUID) ([]*repository.MappingTemplate, error) {
	return s.repo.ListTemplates(ctx, clientID)
}

// DeleteTemplate removes a saved template. scope limits the delete to one
// client's templates; nil allows any.
func (s *ImportService) DeleteTemplate(ctx context.Context, scope *uuid.UUID, id uuid.UUID) error {
	return s.repo.DeleteTemplate(ctx, scope, id)
}

func checkHeaders(m mapping.HeaderMapping, headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	for _, e := range m {
		if !present[e.Header] {
			return fmt.Errorf("%w: %q", ErrHeaderNotInFile, e.Header)
		}
	}
	return nil
}

func restrictToHeaders(m mapping.HeaderMapping, headers []string) mapping.HeaderMapping {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	out := make(mapping.HeaderMapping, 0, len(m))
	for _, e := range m {
		if present[e.Header] {
			out = append(out, e)
		}
	}
	return out
}

func unmapped(headers []string, m mapping.HeaderMapping) []string {
	out := []string{}
	for _, h := range headers {
		if _, ok := m.Lookup(h); !ok {
			out = append(out, h)
		}
	}
	return out
}

// targets lists what a column can be mapped to, for pickers.
func targets() []fields.Field {
	out := []fields.Field{fields.Skip, fields.DebtorName}
	return append(out, fields.All()...)
}
