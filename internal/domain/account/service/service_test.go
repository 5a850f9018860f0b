package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/collections-portal/internal/domain/account/repository"
)

type MockAccountRepo struct {
	mock.Mock
}

func (m *MockAccountRepo) accounts(args mock.Arguments) ([]*repository.Account, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Account), args.Error(1)
}

func (m *MockAccountRepo) SearchByPhone(ctx context.Context, digits string, clientID *uuid.UUID, limit int) ([]*repository.Account, error) {
	return m.accounts(m.Called(ctx, digits, clientID, limit))
}

func (m *MockAccountRepo) Search(ctx context.Context, term string, clientID *uuid.UUID, limit int) ([]*repository.Account, error) {
	return m.accounts(m.Called(ctx, term, clientID, limit))
}

func (m *MockAccountRepo) GetAccount(ctx context.Context, id uuid.UUID) (*repository.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Account), args.Error(1)
}

func (m *MockAccountRepo) GetByAccountNumber(ctx context.Context, accountNumber string) (*repository.Account, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Account), args.Error(1)
}

func (m *MockAccountRepo) FindByPhoneNumbers(ctx context.Context, numbers []string) ([]*repository.Account, error) {
	return m.accounts(m.Called(ctx, numbers))
}

func (m *MockAccountRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockAccountRepo) ListClients(ctx context.Context, clientID *uuid.UUID) ([]*repository.Client, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Client), args.Error(1)
}

func (m *MockAccountRepo) CreateClient(ctx context.Context, c *repository.Client) error {
	return m.Called(ctx, c).Error(0)
}

func newService(repo repository.AccountRepository) *AccountService {
	return NewAccountService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAccountService_Search(t *testing.T) {
	ctx := context.Background()
	found := []*repository.Account{{AccountNumber: "A-1"}}

	t.Run("phone hit skips text search", func(t *testing.T) {
		repo := new(MockAccountRepo)
		repo.On("SearchByPhone", ctx, "5551234567", (*uuid.UUID)(nil), 50).Return(found, nil).Once()

		got, err := newService(repo).Search(ctx, nil, "(555) 123-4567")
		require.NoError(t, err)
		assert.Equal(t, found, got)
		repo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("phone miss falls back to text", func(t *testing.T) {
		repo := new(MockAccountRepo)
		repo.On("SearchByPhone", ctx, "1234567", (*uuid.UUID)(nil), 50).Return([]*repository.Account{}, nil).Once()
		repo.On("Search", ctx, "1234567", (*uuid.UUID)(nil), 50).Return(found, nil).Once()

		got, err := newService(repo).Search(ctx, nil, " 1234567 ")
		require.NoError(t, err)
		assert.Len(t, got, 1)
		repo.AssertExpectations(t)
	})

	t.Run("short term is text only", func(t *testing.T) {
		repo := new(MockAccountRepo)
		scope := uuid.New()
		repo.On("Search", ctx, "Doe", &scope, 50).Return(found, nil).Once()

		_, err := newService(repo).Search(ctx, &scope, "Doe")
		require.NoError(t, err)
		repo.AssertNotCalled(t, "SearchByPhone", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := newService(new(MockAccountRepo)).Search(ctx, nil, "   ")
		assert.ErrorIs(t, err, ErrEmptySearch)
	})
}

func TestAccountService_GetAccount_Scope(t *testing.T) {
	ctx := context.Background()
	id, owner := uuid.New(), uuid.New()
	repo := new(MockAccountRepo)
	repo.On("GetAccount", ctx, id).Return(&repository.Account{ID: id, ClientID: owner}, nil)

	svc := newService(repo)

	got, err := svc.GetAccount(ctx, &owner, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	other := uuid.New()
	_, err = svc.GetAccount(ctx, &other, id)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	_, err = svc.GetAccount(ctx, nil, id)
	assert.NoError(t, err)
}

func TestAccountService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("valid", func(t *testing.T) {
		repo := new(MockAccountRepo)
		repo.On("GetAccount", ctx, id).Return(&repository.Account{ID: id}, nil).Once()
		repo.On("UpdateStatus", ctx, id, "Settled").Return(nil).Once()

		require.NoError(t, newService(repo).UpdateStatus(ctx, nil, id, "Settled"))
		repo.AssertExpectations(t)
	})

	t.Run("unknown status", func(t *testing.T) {
		repo := new(MockAccountRepo)
		err := newService(repo).UpdateStatus(ctx, nil, id, "Closed")
		assert.ErrorIs(t, err, ErrInvalidStatus)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing account", func(t *testing.T) {
		repo := new(MockAccountRepo)
		repo.On("GetAccount", ctx, id).Return(nil, repository.ErrAccountNotFound).Once()
		err := newService(repo).UpdateStatus(ctx, nil, id, "Paid")
		assert.True(t, errors.Is(err, repository.ErrAccountNotFound))
	})
}

func TestAccountService_CreateClient(t *testing.T) {
	ctx := context.Background()
	repo := new(MockAccountRepo)
	repo.On("CreateClient", ctx, mock.MatchedBy(func(c *repository.Client) bool {
		return c.Name == "Acme Bank" && c.Email == "ops@acme.test"
	})).Return(nil).Once()

	c, err := newService(repo).CreateClient(ctx, " Acme Bank ", "OPS@acme.test ")
	require.NoError(t, err)
	assert.Equal(t, "ops@acme.test", c.Email)
}
