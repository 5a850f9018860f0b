package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const pgUniqueViolation = "23505"

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

var _ AccountRepository = (*PostgresAccountRepository)(nil)

type PostgresAccountRepository struct {
	pool PgxPool
}

func NewPostgresAccountRepository(pool PgxPool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

const accountSelect = `
		SELECT a.id, a.client_id, c.name AS client_name, a.account_number, a.original_account_number,
		       a.debtor_name, a.debtor_first_name, a.debtor_middle_name, a.debtor_last_name,
		       a.ssn, a.date_of_birth, a.email, a.address, a.city, a.state, a.zip_code,
		       a.current_balance, a.original_creditor, a.open_date, a.charge_off_date,
		       a.credit_score, a.important_notes, a.status, a.created_at, a.updated_at
		FROM accounts a
		JOIN clients c ON c.id = a.client_id`

const phonesQuery = `
		SELECT id, account_id, number, status, last_called
		FROM phone_numbers
		WHERE account_id = ANY($1)
		ORDER BY created_at, number`

func (r *PostgresAccountRepository) startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return otel.Tracer("AccountRepo").Start(ctx, name, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", "accounts"),
	))
}

func (r *PostgresAccountRepository) SearchByPhone(ctx context.Context, digits string, clientID *uuid.UUID, limit int) ([]*Account, error) {
	ctx, span := r.startSpan(ctx, "SearchByPhone", "SELECT")
	defer span.End()

	query := accountSelect + `
		WHERE a.id IN (SELECT account_id FROM phone_numbers WHERE number LIKE $1)
		  AND ($2::uuid IS NULL OR a.client_id = $2)
		ORDER BY a.created_at DESC
		LIMIT $3`

	accounts, err := r.queryAccounts(ctx, query, "%"+escapeLike(digits)+"%", clientID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "phone search failed")
		return nil, fmt.Errorf("failed to search accounts by phone: %w", err)
	}
	span.SetAttributes(attribute.Int("result.count", len(accounts)))
	return accounts, nil
}

func (r *PostgresAccountRepository) Search(ctx context.Context, term string, clientID *uuid.UUID, limit int) ([]*Account, error) {
	ctx, span := r.startSpan(ctx, "Search", "SELECT")
	defer span.End()

	query := accountSelect + `
		WHERE (a.account_number ILIKE $1 OR a.ssn ILIKE $1 OR a.debtor_name ILIKE $1)
		  AND ($2::uuid IS NULL OR a.client_id = $2)
		ORDER BY a.created_at DESC
		LIMIT $3`

	accounts, err := r.queryAccounts(ctx, query, "%"+escapeLike(term)+"%", clientID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("failed to search accounts: %w", err)
	}
	span.SetAttributes(attribute.Int("result.count", len(accounts)))
	return accounts, nil
}

func (r *PostgresAccountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	accounts, err := r.queryAccounts(ctx, accountSelect+" WHERE a.id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrAccountNotFound
	}
	return accounts[0], nil
}

func (r *PostgresAccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*Account, error) {
	accounts, err := r.queryAccounts(ctx, accountSelect+" WHERE a.account_number = $1", accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get account by number: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrAccountNotFound
	}
	return accounts[0], nil
}

func (r *PostgresAccountRepository) FindByPhoneNumbers(ctx context.Context, numbers []string) ([]*Account, error) {
	query := accountSelect + `
		WHERE a.id IN (SELECT account_id FROM phone_numbers WHERE number = ANY($1))
		ORDER BY a.account_number`

	accounts, err := r.queryAccounts(ctx, query, numbers)
	if err != nil {
		return nil, fmt.Errorf("failed to find accounts by phone: %w", err)
	}
	return accounts, nil
}

func (r *PostgresAccountRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	ctx, span := r.startSpan(ctx, "UpdateStatus", "UPDATE")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		"UPDATE accounts SET status = $1, updated_at = now() WHERE id = $2",
		status, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return fmt.Errorf("failed to update account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "account not found")
		return ErrAccountNotFound
	}
	span.SetStatus(codes.Ok, "status updated")
	return nil
}

func (r *PostgresAccountRepository) ListClients(ctx context.Context, clientID *uuid.UUID) ([]*Client, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, created_at
		FROM clients
		WHERE ($1::uuid IS NULL OR id = $1)
		ORDER BY name`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	clients, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Client])
	if err != nil {
		return nil, fmt.Errorf("failed to scan clients: %w", err)
	}
	return clients, nil
}

func (r *PostgresAccountRepository) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	rows, err := r.pool.Query(ctx,
		"INSERT INTO clients (id, name, email) VALUES ($1, $2, $3) RETURNING created_at",
		c.ID, c.Name, c.Email)
	if err == nil {
		c.CreatedAt, err = pgx.CollectOneRow(rows, pgx.RowTo[time.Time])
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrClientExists
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// queryAccounts runs an account select and attaches each account's phones.
func (r *PostgresAccountRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]*Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	accounts, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Account])
	if err != nil {
		return nil, err
	}
	if err := r.attachPhones(ctx, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *PostgresAccountRepository) attachPhones(ctx context.Context, accounts []*Account) error {
	if len(accounts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(accounts))
	byID := make(map[uuid.UUID]*Account, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
		a.Phones = []PhoneNumber{}
		byID[a.ID] = a
	}

	rows, err := r.pool.Query(ctx, phonesQuery, ids)
	if err != nil {
		return fmt.Errorf("failed to load phone numbers: %w", err)
	}
	phones, err := pgx.CollectRows(rows, pgx.RowToStructByName[PhoneNumber])
	if err != nil {
		return fmt.Errorf("failed to scan phone numbers: %w", err)
	}
	for _, p := range phones {
		if a, ok := byID[p.AccountID]; ok {
			a.Phones = append(a.Phones, p)
		}
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
