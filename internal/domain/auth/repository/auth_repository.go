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

const pgUniqueViolation = "23505"

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

var _ AuthRepository = (*PostgresAuthRepository)(nil)

// PostgresAuthRepository handles database operations for staff authentication
type PostgresAuthRepository struct {
	pgpool PgxPool
}

func NewPostgresAuthRepository(pgpool PgxPool) *PostgresAuthRepository {
	return &PostgresAuthRepository{pgpool: pgpool}
}

const (
	createStaffQuery = `
		INSERT INTO users (id, email, password_hash, display_name, role, client_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	staffColumns = `
		SELECT id, email, password_hash, display_name, role, client_id,
		       is_active, last_login_at, created_at, updated_at
		FROM users
	`
	getStaffByEmailQuery = staffColumns + `WHERE lower(email) = lower($1)`
	getStaffByIDQuery    = staffColumns + `WHERE id = $1`
	updateLastLoginQuery = `UPDATE users SET last_login_at = $1 WHERE id = $2`
	countStaffQuery      = `SELECT count(*) FROM users`
)

type staffInsertRow struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CreateStaff inserts s, assigning its id and timestamps.
func (r *PostgresAuthRepository) CreateStaff(ctx context.Context, s *Staff) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	rows, err := r.pgpool.Query(ctx, createStaffQuery,
		s.ID, s.Email, s.PasswordHash, s.DisplayName, s.Role, s.ClientID, s.IsActive)
	if err != nil {
		return wrapInsertErr(err)
	}

	dbRow, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[staffInsertRow])
	if err != nil {
		return wrapInsertErr(err)
	}
	s.CreatedAt = dbRow.CreatedAt
	s.UpdatedAt = dbRow.UpdatedAt
	return nil
}

func wrapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrEmailTaken
	}
	return fmt.Errorf("failed to create staff member: %w", err)
}

// GetStaffByEmail matches email case-insensitively.
func (r *PostgresAuthRepository) GetStaffByEmail(ctx context.Context, email string) (*Staff, error) {
	return r.getOne(ctx, getStaffByEmailQuery, email)
}

func (r *PostgresAuthRepository) GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return r.getOne(ctx, getStaffByIDQuery, id)
}

func (r *PostgresAuthRepository) getOne(ctx context.Context, query string, arg any) (*Staff, error) {
	rows, err := r.pgpool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}

	staff, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Staff])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaffNotFound
	}
	if err != nil {
		return nil, err
	}
	return staff, nil
}

// UpdateLastLogin updates the staff member's last login timestamp
func (r *PostgresAuthRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pgpool.Exec(ctx, updateLastLoginQuery, time.Now(), id)
	return err
}

func (r *PostgresAuthRepository) CountStaff(ctx context.Context) (int, error) {
	rows, err := r.pgpool.Query(ctx, countStaffQuery)
	if err != nil {
		return 0, err
	}
	n, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		return 0, fmt.Errorf("failed to count staff: %w", err)
	}
	return n, nil
}
