package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgForeignKeyViolation = "23503"

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

var _ PaymentRepository = (*PostgresPaymentRepository)(nil)

type PostgresPaymentRepository struct {
	pool PgxPool
}

func NewPostgresPaymentRepository(pool PgxPool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

const paymentSelect = `
		SELECT p.id, p.account_id, a.client_id, a.account_number, a.debtor_name,
		       p.amount, p.payment_type, p.payment_method_encrypted, p.payment_method_iv,
		       p.status, p.post_date, p.created_at, p.updated_at
		FROM payments p
		JOIN accounts a ON a.id = p.account_id`

type insertedRow struct {
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// The insert selects the account row so a scoped caller cannot attach a
// payment to another client's account.
const createPaymentQuery = `
		INSERT INTO payments (id, account_id, amount, payment_type, payment_method_encrypted, payment_method_iv, status, post_date)
		SELECT $1, a.id, $3::numeric, $4::text, $5::text, $6::text, $7::text, $8::date
		FROM accounts a
		WHERE a.id = $2 AND ($9::uuid IS NULL OR a.client_id = $9)
		RETURNING status, created_at, updated_at`

func (r *PostgresPaymentRepository) Create(ctx context.Context, scope *uuid.UUID, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	rows, err := r.pool.Query(ctx, createPaymentQuery,
		p.ID, p.AccountID, p.Amount, p.PaymentType, p.MethodEncrypted, p.MethodIV, StatusPending, p.PostDate, scope)
	var row insertedRow
	if err == nil {
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[insertedRow])
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUnknownAccount
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrUnknownAccount
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	p.Status, p.CreatedAt, p.UpdatedAt = row.Status, row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *PostgresPaymentRepository) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	rows, err := r.pool.Query(ctx, paymentSelect+" WHERE p.id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Payment])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentRepository) List(ctx context.Context, f ListFilter) ([]*Payment, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	rows, err := r.pool.Query(ctx, paymentSelect+`
		WHERE ($1::uuid IS NULL OR a.client_id = $1)
		  AND ($2::uuid IS NULL OR p.account_id = $2)
		  AND ($3::text IS NULL OR p.status = $3)
		ORDER BY p.created_at DESC
		LIMIT $4`,
		f.ClientID, f.AccountID, f.Status, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Payment])
	if err != nil {
		return nil, fmt.Errorf("failed to scan payments: %w", err)
	}
	return payments, nil
}

func (r *PostgresPaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE payments SET status = $1, updated_at = now() WHERE id = $2",
		status, id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
