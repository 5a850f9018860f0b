package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/mapping"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNoDataFound         = "P0002"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	pool PgxPool
}

// NewPostgresImportRepository creates a new PostgreSQL-backed import repository
func NewPostgresImportRepository(pool PgxPool) *PostgresImportRepository {
	return &PostgresImportRepository{pool: pool}
}

var accountColumns = []string{
	"id", "client_id", "account_number", "original_account_number", "debtor_name",
	"debtor_first_name", "debtor_middle_name", "debtor_last_name", "ssn", "date_of_birth",
	"email", "address", "city", "state", "zip_code", "current_balance", "original_creditor",
	"open_date", "charge_off_date", "credit_score", "important_notes", "status",
}

var phoneColumns = []string{"id", "account_id", "number", "status"}

const (
	newAccountStatus = "New"
	newPhoneStatus   = "unknown"
)

const insertHistoryQuery = `
		INSERT INTO import_history (client_id, account_count, account_ids, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

// InsertBatch copies all accounts first; phone numbers are only written once
// every account row is in, and the history row last. Any failure rolls the
// whole transaction back.
func (r *PostgresImportRepository) InsertBatch(ctx context.Context, batch *mapping.Batch, clientID uuid.UUID, createdBy *uuid.UUID) (result *ImportBatch, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ids := make([]uuid.UUID, len(batch.Records))
	byNumber := make(map[string]uuid.UUID, len(batch.Records))
	for i, rec := range batch.Records {
		ids[i] = uuid.New()
		byNumber[rec.AccountNumber] = ids[i]
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"accounts"},
		accountColumns,
		pgx.CopyFromSlice(len(batch.Records), func(i int) ([]any, error) {
			rec := batch.Records[i]
			return []any{
				ids[i], clientID, rec.AccountNumber, rec.OriginalAccountNumber, rec.DebtorName,
				rec.FirstName, rec.MiddleName, rec.LastName, rec.SSN, rec.DateOfBirth,
				rec.Email, rec.Address, rec.City, rec.State, rec.ZipCode, rec.CurrentBalance, rec.OriginalCreditor,
				rec.OpenDate, rec.ChargeOffDate, rec.CreditScore, rec.ImportantNotes, newAccountStatus,
			}, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert accounts: %w", translate(err))
	}
	if int(copied) != len(batch.Records) {
		return nil, fmt.Errorf("failed to insert accounts: wrote %d of %d rows", copied, len(batch.Records))
	}

	phones := phoneRows(batch, byNumber)
	if len(phones) > 0 {
		if _, err = tx.CopyFrom(ctx, pgx.Identifier{"phone_numbers"}, phoneColumns, pgx.CopyFromRows(phones)); err != nil {
			return nil, fmt.Errorf("failed to insert phone numbers: %w", translate(err))
		}
	}

	result = &ImportBatch{
		ClientID:     clientID,
		AccountCount: len(ids),
		AccountIDs:   ids,
		PhoneCount:   len(phones),
		CreatedBy:    createdBy,
	}
	err = tx.QueryRow(ctx, insertHistoryQuery, clientID, len(ids), ids, createdBy).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record import history: %w", translate(err))
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return result, nil
}

// phoneRows keeps the record order so inserts are deterministic.
func phoneRows(batch *mapping.Batch, byNumber map[string]uuid.UUID) [][]any {
	rows := make([][]any, 0, batch.Phones.Count())
	for _, rec := range batch.Records {
		for _, number := range batch.Phones[rec.AccountNumber] {
			rows = append(rows, []any{uuid.New(), byNumber[rec.AccountNumber], number, newPhoneStatus})
		}
	}
	return rows
}

// RollbackImport delegates to the rollback_import function so the account
// deletes and the history delete commit together.
func (r *PostgresImportRepository) RollbackImport(ctx context.Context, batchID uuid.UUID) (int, error) {
	var deleted int32
	err := r.pool.QueryRow(ctx, `SELECT rollback_import($1)`, batchID).Scan(&deleted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgNoDataFound {
				return 0, ErrBatchNotFound
			}
			return 0, &RollbackRejectedError{Message: pgErr.Message, Err: err}
		}
		return 0, fmt.Errorf("failed to rollback import: %w", err)
	}
	return int(deleted), nil
}

const batchSelect = `
		SELECT h.id, h.client_id, c.name AS client_name, h.account_count, h.account_ids,
		       h.created_by, h.created_at
		FROM import_history h
		JOIN clients c ON c.id = h.client_id
	`

// ListBatches returns the newest batches first, optionally for one client.
func (r *PostgresImportRepository) ListBatches(ctx context.Context, clientID *uuid.UUID, limit int) ([]*ImportBatch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := batchSelect + `
		WHERE ($1::uuid IS NULL OR h.client_id = $1)
		ORDER BY h.created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import batches: %w", err)
	}

	batches, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[ImportBatch])
	if err != nil {
		return nil, fmt.Errorf("failed to scan import batch: %w", err)
	}
	return batches, nil
}

// GetBatch retrieves one batch by ID.
func (r *PostgresImportRepository) GetBatch(ctx context.Context, batchID uuid.UUID) (*ImportBatch, error) {
	rows, err := r.pool.Query(ctx, batchSelect+` WHERE h.id = $1`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get import batch: %w", err)
	}

	batch, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[ImportBatch])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan import batch: %w", err)
	}
	return batch, nil
}

type templateRow struct {
	ID          uuid.UUID `db:"id"`
	ClientID    uuid.UUID `db:"client_id"`
	Name        string    `db:"name"`
	Fingerprint string    `db:"fingerprint"`
	Mapping     []byte    `db:"mapping"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row templateRow) toTemplate() (*MappingTemplate, error) {
	t := &MappingTemplate{
		ID:          row.ID,
		ClientID:    row.ClientID,
		Name:        row.Name,
		Fingerprint: row.Fingerprint,
		CreatedAt:   row.CreatedAt,
	}
	if err := json.Unmarshal(row.Mapping, &t.Mapping); err != nil {
		return nil, fmt.Errorf("failed to decode template %s mapping: %w", row.ID, err)
	}
	return t, nil
}

// CreateTemplate inserts a template; names are unique per client.
func (r *PostgresImportRepository) CreateTemplate(ctx context.Context, t *MappingTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	raw, err := json.Marshal(t.Mapping)
	if err != nil {
		return fmt.Errorf("failed to encode template mapping: %w", err)
	}

	query := `
		INSERT INTO mapping_templates (id, client_id, name, fingerprint, mapping)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err = r.pool.QueryRow(ctx, query, t.ID, t.ClientID, t.Name, t.Fingerprint, raw).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrTemplateExists
		}
		return fmt.Errorf("failed to create mapping template: %w", translate(err))
	}
	return nil
}

const templateSelect = `
		SELECT id, client_id, name, fingerprint, mapping, created_at
		FROM mapping_templates
	`

// ListTemplates returns a client's templates by name.
func (r *PostgresImportRepository) ListTemplates(ctx context.Context, clientID uuid.UUID) ([]*MappingTemplate, error) {
	rows, err := r.pool.Query(ctx, templateSelect+` WHERE client_id = $1 ORDER BY name`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping templates: %w", err)
	}

	raw, err := pgx.CollectRows(rows, pgx.RowToStructByName[templateRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan mapping template: %w", err)
	}

	templates := make([]*MappingTemplate, 0, len(raw))
	for _, row := range raw {
		t, err := row.toTemplate()
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// GetTemplateByFingerprint returns the newest template whose headers match,
// or nil when none is saved.
func (r *PostgresImportRepository) GetTemplateByFingerprint(ctx context.Context, clientID *uuid.UUID, fingerprint string) (*MappingTemplate, error) {
	query := templateSelect + `
		WHERE fingerprint = $1 AND ($2::uuid IS NULL OR client_id = $2)
		ORDER BY created_at DESC
		LIMIT 1
	`
	rows, err := r.pool.Query(ctx, query, fingerprint, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping template: %w", err)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[templateRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mapping template: %w", err)
	}
	return row.toTemplate()
}

// DeleteTemplate removes a template by ID. A non-nil clientID restricts the
// delete to that client's templates; a foreign template reads as not found.
func (r *PostgresImportRepository) DeleteTemplate(ctx context.Context, clientID *uuid.UUID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteTemplateQuery, id, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete mapping template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

const deleteTemplateQuery = `
		DELETE FROM mapping_templates
		WHERE id = $1 AND ($2::uuid IS NULL OR client_id = $2)
	`

// translate maps constraint violations onto repository errors, keeping the
// driver error in the chain.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "accounts_account_number_key":
		return fmt.Errorf("%w: %w", ErrAccountNumberConflict, err)
	case pgErr.Code == pgForeignKeyViolation && strings.HasSuffix(pgErr.ConstraintName, "client_id_fkey"):
		return fmt.Errorf("%w: %w", ErrUnknownClient, err)
	}
	return err
}
