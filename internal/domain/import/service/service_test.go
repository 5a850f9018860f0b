package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/analyzer"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/fields"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/mapping"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/repository"
)

// MockImportRepo is a mock implementation of repository.ImportRepository
type MockImportRepo struct {
	mock.Mock
}

func (m *MockImportRepo) InsertBatch(ctx context.Context, batch *mapping.Batch, clientID uuid.UUID, createdBy *uuid.UUID) (*repository.ImportBatch, error) {
	args := m.Called(ctx, batch, clientID, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ImportBatch), args.Error(1)
}

func (m *MockImportRepo) RollbackImport(ctx context.Context, batchID uuid.UUID) (int, error) {
	args := m.Called(ctx, batchID)
	return args.Int(0), args.Error(1)
}

func (m *MockImportRepo) ListBatches(ctx context.Context, clientID *uuid.UUID, limit int) ([]*repository.ImportBatch, error) {
	args := m.Called(ctx, clientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.ImportBatch), args.Error(1)
}

func (m *MockImportRepo) GetBatch(ctx context.Context, batchID uuid.UUID) (*repository.ImportBatch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ImportBatch), args.Error(1)
}

func (m *MockImportRepo) CreateTemplate(ctx context.Context, t *repository.MappingTemplate) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockImportRepo) ListTemplates(ctx context.Context, clientID uuid.UUID) ([]*repository.MappingTemplate, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.MappingTemplate), args.Error(1)
}

func (m *MockImportRepo) GetTemplateByFingerprint(ctx context.Context, clientID *uuid.UUID, fingerprint string) (*repository.MappingTemplate, error) {
	args := m.Called(ctx, clientID, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.MappingTemplate), args.Error(1)
}

func (m *MockImportRepo) DeleteTemplate(ctx context.Context, clientID *uuid.UUID, id uuid.UUID) error {
	args := m.Called(ctx, clientID, id)
	return args.Error(0)
}

type stubSuggester struct {
	suggested mapping.HeaderMapping
	outcome   analyzer.Outcome
	calls     int
}

func (s *stubSuggester) Enabled() bool { return true }

func (s *stubSuggester) Suggest(context.Context, []string, map[string]string) (mapping.HeaderMapping, analyzer.Outcome) {
	s.calls++
	return s.suggested, s.outcome
}

const accountsCSV = `Acct #,First Name,Last Name,Phone1,Balance,Mystery
A-100,John,Public,(555) 123-4567,"$1,234.56",Acme Bank
A-101,Jane,Doe,212-555-0100,$99.00,Globex
`

func setupImportServiceTest(ai Suggester) (*ImportService, *MockImportRepo) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := new(MockImportRepo)
	applier := mapping.NewApplier(logger, mapping.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	return NewImportService(repo, ai, applier, logger), repo
}

func TestImportService_AnalyzeFile_KeywordMatches(t *testing.T) {
	svc, repo := setupImportServiceTest(nil)
	ctx := context.Background()

	repo.On("GetTemplateByFingerprint", ctx, (*uuid.UUID)(nil), mock.AnythingOfType("string")).Return(nil, nil).Once()

	res, err := svc.AnalyzeFile(ctx, AnalyzeParams{Data: []byte(accountsCSV)})
	require.NoError(t, err)

	assert.Len(t, res.File.SampleRows, 2)
	assert.Equal(t, []string{"Mystery"}, res.Unmapped)

	f, ok := res.Mapping.Lookup("Acct #")
	assert.True(t, ok)
	assert.Equal(t, fields.AccountNumber, f)
	f, _ = res.Mapping.Lookup("Phone1")
	assert.Equal(t, fields.PhoneNumber, f)
	assert.Empty(t, res.AIOutcome)
	assert.Contains(t, res.Targets, fields.Skip)
	repo.AssertExpectations(t)
}

func TestImportService_AnalyzeFile_TemplateWins(t *testing.T) {
	ai := &stubSuggester{outcome: analyzer.OutcomeOK}
	svc, repo := setupImportServiceTest(ai)
	ctx := context.Background()
	clientID := uuid.New()

	tpl := &repository.MappingTemplate{
		ID:   uuid.New(),
		Name: "DRA monthly",
		Mapping: mapping.HeaderMapping{
			{Header: "Acct #", Field: fields.AccountNumber},
			{Header: "Mystery", Field: fields.OriginalCreditor},
			{Header: "Gone", Field: fields.City},
		},
	}
	repo.On("GetTemplateByFingerprint", ctx, &clientID, mock.AnythingOfType("string")).Return(tpl, nil).Once()

	res, err := svc.AnalyzeFile(ctx, AnalyzeParams{ClientID: &clientID, Data: []byte(accountsCSV), UseAI: true})
	require.NoError(t, err)

	assert.Equal(t, tpl, res.Template)
	assert.Len(t, res.Mapping, 2, "columns missing from the file are dropped")
	assert.Equal(t, []string{"First Name", "Last Name", "Phone1", "Balance"}, res.Unmapped)
	assert.Zero(t, ai.calls)
	repo.AssertExpectations(t)
}

func TestImportService_AnalyzeFile_AIFillsGaps(t *testing.T) {
	ai := &stubSuggester{
		outcome: analyzer.OutcomeOK,
		suggested: mapping.HeaderMapping{
			{Header: "Acct #", Field: fields.OriginalAccountNumber},
			{Header: "Mystery", Field: fields.OriginalCreditor},
		},
	}
	svc, repo := setupImportServiceTest(ai)
	ctx := context.Background()

	repo.On("GetTemplateByFingerprint", ctx, (*uuid.UUID)(nil), mock.Anything).Return(nil, nil).Once()

	res, err := svc.AnalyzeFile(ctx, AnalyzeParams{Data: []byte(accountsCSV), UseAI: true})
	require.NoError(t, err)

	assert.Equal(t, analyzer.OutcomeOK, res.AIOutcome)
	assert.Empty(t, res.Unmapped)
	f, _ := res.Mapping.Lookup("Acct #")
	assert.Equal(t, fields.AccountNumber, f, "keyword match is kept over the model")
	f, _ = res.Mapping.Lookup("Mystery")
	assert.Equal(t, fields.OriginalCreditor, f)
	assert.NoError(t, res.Mapping.Validate())
}

func TestImportService_AnalyzeFile_TemplateLookupFailureIsNotFatal(t *testing.T) {
	svc, repo := setupImportServiceTest(nil)
	ctx := context.Background()

	repo.On("GetTemplateByFingerprint", ctx, (*uuid.UUID)(nil), mock.Anything).Return(nil, errors.New("db down")).Once()

	res, err := svc.AnalyzeFile(ctx, AnalyzeParams{Data: []byte(accountsCSV)})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Mapping)
}

func TestImportService_AnalyzeFile_InvalidFile(t *testing.T) {
	svc, _ := setupImportServiceTest(nil)

	_, err := svc.AnalyzeFile(context.Background(), AnalyzeParams{Data: []byte("  \n")})
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func importMapping() mapping.HeaderMapping {
	return mapping.HeaderMapping{
		{Header: "Acct #", Field: fields.AccountNumber},
		{Header: "First Name", Field: fields.FirstName},
		{Header: "Last Name", Field: fields.LastName},
		{Header: "Phone1", Field: fields.PhoneNumber},
		{Header: "Balance", Field: fields.CurrentBalance},
		{Header: "Mystery", Field: fields.Skip},
	}
}

func TestImportService_ImportAccounts(t *testing.T) {
	svc, repo := setupImportServiceTest(nil)
	ctx := context.Background()
	clientID := uuid.New()
	userID := uuid.New()

	saved := &repository.ImportBatch{ID: uuid.New(), ClientID: clientID, AccountCount: 2, PhoneCount: 2}
	repo.On("InsertBatch", ctx, mock.MatchedBy(func(b *mapping.Batch) bool {
		return len(b.Records) == 2 &&
			b.Records[0].AccountNumber == "A-100" &&
			b.Records[1].DebtorName == "Jane Doe" &&
			b.Phones["A-101"][0] == "2125550100"
	}), clientID, &userID).Return(saved, nil).Once()

	res, err := svc.ImportAccounts(ctx, ImportParams{
		ClientID:  clientID,
		CreatedBy: &userID,
		Data:      []byte(accountsCSV),
		Mapping:   importMapping(),
	})
	require.NoError(t, err)

	assert.Equal(t, saved, res.Batch)
	assert.Equal(t, 2, res.RowsRead)
	assert.Equal(t, 2, res.Phones)
	repo.AssertExpectations(t)
}

func TestImportService_ImportAccounts_ObjectMappingFollowsFileOrder(t *testing.T) {
	svc, repo := setupImportServiceTest(nil)
	ctx := context.Background()
	clientID := uuid.New()

	data := "Acct #,Work Phone,Notes B,Cell,Notes A\nA-1,2125550100,first,3125550199,second\n"

	var m mapping.HeaderMapping
	require.NoError(t, json.Unmarshal([]byte(`{
		"Acct #": "account_number",
		"Work Phone": "phone_number",
		"Notes B": "important_notes",
		"Cell": "phone_number",
		"Notes A": "important_notes"
	}`), &m))

	var got *mapping.Batch
	repo.On("InsertBatch", ctx, mock.AnythingOfType("*mapping.Batch"), clientID, (*uuid.UUID)(nil)).
		Run(func(args mock.Arguments) { got = args.Get(1).(*mapping.Batch) }).
		Return(&repository.ImportBatch{ID: uuid.New(), ClientID: clientID, AccountCount: 1, PhoneCount: 2}, nil).Once()

	_, err := svc.ImportAccounts(ctx, ImportParams{ClientID: clientID, Data: []byte(data), Mapping: m})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, []string{"2125550100", "3125550199"}, got.Phones["A-1"])
	require.NotNil(t, got.Records[0].ImportantNotes)
	assert.Equal(t, "Notes B: first\nNotes A: second", *got.Records[0].ImportantNotes)
}

func TestImportService_ImportAccounts_BackendFailure(t *testing.T) {
	svc, repo := setupImportServiceTest(nil)
	ctx := context.Background()

	cause := repository.ErrAccountNumberConflict
	repo.On("InsertBatch", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil, cause).Once()

	_, err := svc.ImportAccounts(ctx, ImportParams{ClientID: uuid.New(), Data: []byte(accountsCSV), Mapping: importMapping()})

	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.ErrorIs(t, err, cause)
	repo.AssertExpectations(t)
}

func TestImportService_ImportAccounts_RejectedBeforeInsert(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		mapping mapping.HeaderMapping
		wantErr error
	}{
		{
			name:    "empty file",
			data:    "",
			mapping: importMapping(),
			wantErr: ErrInvalidFile,
		},
		{
			name:    "column not in file",
			data:    accountsCSV,
			mapping: mapping.HeaderMapping{{Header: "Cell", Field: fields.PhoneNumber}},
			wantErr: ErrHeaderNotInFile,
		},
		{
			name: "fan-out",
			data: accountsCSV,
			mapping: mapping.HeaderMapping{
				{Header: "First Name", Field: fields.City},
				{Header: "Last Name", Field: fields.City},
			},
			wantErr: mapping.ErrFieldConflict,
		},
		{
			name:    "header only",
			data:    "Acct #,Balance\n",
			mapping: mapping.HeaderMapping{{Header: "Acct #", Field: fields.AccountNumber}},
			wantErr: mapping.ErrNoRows,
		},
		{
			name:    "duplicate account numbers",
			data:    "Acct #\nA-1\nA-1\n",
			mapping: mapping.HeaderMapping{{Header: "Acct #", Field: fields.AccountNumber}},
			wantErr: mapping.ErrDuplicateAccountNumber,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := setupImportServiceTest(nil)

			_, err := svc.ImportAccounts(context.Background(), ImportParams{
				ClientID: uuid.New(),
				Data:     []byte(tt.data),
				Mapping:  tt.mapping,
			})
			assert.ErrorIs(t, err, tt.wantErr)

			var importErr *ImportError
			assert.False(t, errors.As(err, &importErr), "validation failures are not backend failures")
			repo.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestImportService_RollbackImport(t *testing.T) {
	svc, repo := setupImportServiceTest(nil)
	ctx := context.Background()
	batchID := uuid.New()

	t.Run("success", func(t *testing.T) {
		repo.On("RollbackImport", ctx, batchID).Return(3, nil).Once()

		res, err := svc.RollbackImport(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, 3, res.AccountsDeleted)
		assert.Equal(t, batchID, res.BatchID)
	})

	t.Run("failure surfaces RollbackError", func(t *testing.T) {
		repo.On("RollbackImport", ctx, batchID).Return(0, repository.ErrBatchNotFound).Once()

		_, err := svc.RollbackImport(ctx, batchID)
		var rbErr *RollbackError
		require.ErrorAs(t, err, &rbErr)
		assert.Equal(t, batchID, rbErr.BatchID)
		assert.ErrorIs(t, err, repository.ErrBatchNotFound)
	})

	repo.AssertExpectations(t)
}

func TestImportService_SaveTemplate(t *testing.T) {
	svc, repo := setupImportServiceTest(nil)
	ctx := context.Background()
	clientID := uuid.New()

	t.Run("success", func(t *testing.T) {
		repo.On("CreateTemplate", ctx, mock.MatchedBy(func(tpl *repository.MappingTemplate) bool {
			return tpl.Name == "Weekly" && tpl.ClientID == clientID && tpl.Fingerprint == "fp"
		})).Return(nil).Once()

		tpl, err := svc.SaveTemplate(ctx, clientID, "  Weekly ", "fp", importMapping())
		require.NoError(t, err)
		assert.Equal(t, "Weekly", tpl.Name)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := svc.SaveTemplate(ctx, clientID, " ", "fp", importMapping())
		assert.ErrorIs(t, err, ErrTemplateNameMissing)
	})

	t.Run("invalid mapping", func(t *testing.T) {
		_, err := svc.SaveTemplate(ctx, clientID, "Bad", "fp", mapping.HeaderMapping{{Header: "X", Field: "nope"}})
		assert.ErrorIs(t, err, mapping.ErrUnknownField)
	})

	repo.AssertExpectations(t)
}

func TestMergeSuggestions(t *testing.T) {
	headers := []string{"Acct", "Cell", "Home", "Mail", "Mail2"}
	proposed := map[string]string{"Acct": "account_number", "Cell": "phone_number"}

	mergeSuggestions(proposed, mapping.HeaderMapping{
		{Header: "Home", Field: fields.PhoneNumber},
		{Header: "Mail", Field: fields.Email},
		{Header: "Mail2", Field: fields.Email},
		{Header: "Acct", Field: fields.Email},
	}, headers)

	assert.Equal(t, map[string]string{
		"Acct": "account_number",
		"Cell": "phone_number",
		"Home": "phone_number",
		"Mail": "email",
	}, proposed)
}
