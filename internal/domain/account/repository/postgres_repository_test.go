package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
)

var accountCols = []string{
	"id", "client_id", "client_name", "account_number", "original_account_number",
	"debtor_name", "debtor_first_name", "debtor_middle_name", "debtor_last_name",
	"ssn", "date_of_birth", "email", "address", "city", "state", "zip_code",
	"current_balance", "original_creditor", "open_date", "charge_off_date",
	"credit_score", "important_notes", "status", "created_at", "updated_at",
}

var phoneCols = []string{"id", "account_id", "number", "status", "last_called"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func ptr[T any](v T) *T { return &v }

func accountRow(rows *pgxmock.Rows, id, clientID uuid.UUID, number, name string, ssn *string, balance *decimal.Decimal) *pgxmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, clientID, "Acme Bank", number, nil,
		name, nil, nil, nil,
		ssn, nil, nil, nil, nil, nil, nil,
		balance, nil, nil, nil,
		nil, nil, "New", now, now,
	)
}

func TestPostgresAccountRepository_SearchByPhone(t *testing.T) {
	mock := newMock(t)
	clientID := uuid.New()
	a1, a2 := uuid.New(), uuid.New()

	rows := pgxmock.NewRows(accountCols)
	accountRow(rows, a1, clientID, "A-1", "John Public", ptr("123-45-6789"), ptr(decimal.RequireFromString("1234.56")))
	accountRow(rows, a2, clientID, "A-2", "Jane Doe", nil, nil)

	mock.ExpectQuery("FROM accounts a").
		WithArgs("%5551234%", &clientID, 50).
		WillReturnRows(rows)
	mock.ExpectQuery("WHERE account_id = ANY").
		WithArgs([]uuid.UUID{a1, a2}).
		WillReturnRows(pgxmock.NewRows(phoneCols).
			AddRow(uuid.New(), a1, "5551234567", "unknown", nil).
			AddRow(uuid.New(), a1, "5551234999", "unknown", nil))

	repo := NewPostgresAccountRepository(mock)
	got, err := repo.SearchByPhone(context.Background(), "5551234", &clientID, 50)
	if err != nil {
		t.Fatalf("SearchByPhone: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(got))
	}
	if len(got[0].Phones) != 2 || len(got[1].Phones) != 0 || got[1].Phones == nil {
		t.Fatalf("phones not attached: %+v / %+v", got[0].Phones, got[1].Phones)
	}
	if got[0].CurrentBalance == nil || got[0].CurrentBalance.String() != "1234.56" {
		t.Fatalf("unexpected balance: %v", got[0].CurrentBalance)
	}
	if got[0].SSNLastFour() != "6789" || got[1].SSNLastFour() != "" {
		t.Fatalf("unexpected ssn last four")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresAccountRepository_Search_EscapesWildcards(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery("ILIKE").
		WithArgs(`%100\%\_off%`, (*uuid.UUID)(nil), 50).
		WillReturnRows(pgxmock.NewRows(accountCols))

	repo := NewPostgresAccountRepository(mock)
	got, err := repo.Search(context.Background(), "100%_off", nil, 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no accounts, got %d", len(got))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresAccountRepository_GetAccount_NotFound(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery("WHERE a.id =").WithArgs(id).WillReturnRows(pgxmock.NewRows(accountCols))

	repo := NewPostgresAccountRepository(mock)
	_, err := repo.GetAccount(context.Background(), id)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPostgresAccountRepository_FindByPhoneNumbers(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()
	numbers := []string{"2125550100", "12125550100", "+12125550100"}

	mock.ExpectQuery("number = ANY").
		WithArgs(numbers).
		WillReturnRows(accountRow(pgxmock.NewRows(accountCols), id, uuid.New(), "A-9", "Pat Smith", nil, nil))
	mock.ExpectQuery("WHERE account_id = ANY").
		WithArgs([]uuid.UUID{id}).
		WillReturnRows(pgxmock.NewRows(phoneCols).AddRow(uuid.New(), id, "+12125550100", "unknown", nil))

	repo := NewPostgresAccountRepository(mock)
	got, err := repo.FindByPhoneNumbers(context.Background(), numbers)
	if err != nil {
		t.Fatalf("FindByPhoneNumbers: %v", err)
	}
	if len(got) != 1 || got[0].AccountNumber != "A-9" || len(got[0].Phones) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestPostgresAccountRepository_UpdateStatus(t *testing.T) {
	mock := newMock(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE accounts SET status").
		WithArgs("Paid", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE accounts SET status").
		WithArgs("Paid", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPostgresAccountRepository(mock)
	if err := repo.UpdateStatus(context.Background(), id, "Paid"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := repo.UpdateStatus(context.Background(), id, "Paid"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPostgresAccountRepository_Clients(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	scope := uuid.New()

	mock.ExpectQuery("FROM clients").
		WithArgs(&scope).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email", "created_at"}).
			AddRow(scope, "Acme Bank", "ops@acme.test", now))
	mock.ExpectQuery("INSERT INTO clients").
		WithArgs(pgxmock.AnyArg(), "Globex", "ar@globex.test").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO clients").
		WithArgs(pgxmock.AnyArg(), "Globex", "ar@globex.test").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	repo := NewPostgresAccountRepository(mock)
	clients, err := repo.ListClients(context.Background(), &scope)
	if err != nil || len(clients) != 1 || clients[0].Name != "Acme Bank" {
		t.Fatalf("ListClients: %v %+v", err, clients)
	}

	c := &Client{Name: "Globex", Email: "ar@globex.test"}
	if err := repo.CreateClient(context.Background(), c); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if c.ID == uuid.Nil || !c.CreatedAt.Equal(now) {
		t.Fatalf("client not populated: %+v", c)
	}

	err = repo.CreateClient(context.Background(), &Client{Name: "Globex", Email: "ar@globex.test"})
	if !errors.Is(err, ErrClientExists) {
		t.Fatalf("expected ErrClientExists, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
