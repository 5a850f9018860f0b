package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/fields"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/normalizer"
)

var (
	ErrNoRows                 = errors.New("no rows to import")
	ErrDuplicateAccountNumber = errors.New("duplicate account number in file")
)

const accountSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// AccountRecord is one cleaned row ready for insertion.
type AccountRecord struct {
	ClientID              uuid.UUID        `json:"client_id"`
	AccountNumber         string           `json:"account_number"`
	OriginalAccountNumber *string          `json:"original_account_number,omitempty"`
	DebtorName            string           `json:"debtor_name"`
	FirstName             *string          `json:"debtor_first_name,omitempty"`
	MiddleName            *string          `json:"debtor_middle_name,omitempty"`
	LastName              *string          `json:"debtor_last_name,omitempty"`
	SSN                   *string          `json:"ssn,omitempty"`
	DateOfBirth           *time.Time       `json:"date_of_birth,omitempty"`
	Email                 *string          `json:"email,omitempty"`
	Address               *string          `json:"address,omitempty"`
	City                  *string          `json:"city,omitempty"`
	State                 *string          `json:"state,omitempty"`
	ZipCode               *string          `json:"zip_code,omitempty"`
	CurrentBalance        *decimal.Decimal `json:"current_balance,omitempty"`
	OriginalCreditor      *string          `json:"original_creditor,omitempty"`
	OpenDate              *time.Time       `json:"open_date,omitempty"`
	ChargeOffDate         *time.Time       `json:"charge_off_date,omitempty"`
	CreditScore           *int             `json:"credit_score,omitempty"`
	ImportantNotes        *string          `json:"important_notes,omitempty"`
}

// PhoneNumberSet holds digit-only numbers per account number, in column order.
type PhoneNumberSet map[string][]string

// Count returns the total number of phone numbers across accounts.
func (p PhoneNumberSet) Count() int {
	n := 0
	for _, nums := range p {
		n += len(nums)
	}
	return n
}

// Batch is the output of Apply.
type Batch struct {
	Records []AccountRecord
	Phones  PhoneNumberSet
}

// Applier converts raw rows into records.
type Applier struct {
	logger *slog.Logger
	now    func() time.Time
	suffix func() (string, error)
}

type Option func(*Applier)

// WithClock overrides the time source used for generated account numbers.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) { a.now = now }
}

// WithSuffix overrides the random suffix of generated account numbers.
func WithSuffix(fn func() (string, error)) Option {
	return func(a *Applier) { a.suffix = fn }
}

func NewApplier(logger *slog.Logger, opts ...Option) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Applier{
		logger: logger,
		now:    time.Now,
		suffix: func() (string, error) { return gonanoid.Generate(accountSuffixAlphabet, 10) },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply validates m and builds one record per row. Field values that fail
// their format rule are stored as nil; the row itself is kept.
func (a *Applier) Apply(rows []map[string]string, m HeaderMapping, clientID uuid.UUID) (*Batch, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	batch := &Batch{
		Records: make([]AccountRecord, 0, len(rows)),
		Phones:  make(PhoneNumberSet, len(rows)),
	}
	seen := make(map[string]int, len(rows))

	for i, row := range rows {
		b := newRecordBuilder(clientID, a.logger)
		for _, e := range m {
			b.set(e.Field, e.Header, row[e.Header])
		}

		rec, phones, err := b.build(a.generateAccountNumber)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if prev, dup := seen[rec.AccountNumber]; dup {
			return nil, fmt.Errorf("%w: %q on rows %d and %d", ErrDuplicateAccountNumber, rec.AccountNumber, prev, i+1)
		}
		seen[rec.AccountNumber] = i + 1

		batch.Records = append(batch.Records, rec)
		if len(phones) > 0 {
			batch.Phones[rec.AccountNumber] = phones
		}
	}
	return batch, nil
}

// generateAccountNumber yields ACC-<unix millis>-<random base36>.
func (a *Applier) generateAccountNumber() (string, error) {
	suffix, err := a.suffix()
	if err != nil {
		return "", fmt.Errorf("failed to generate account number: %w", err)
	}
	return fmt.Sprintf("ACC-%d-%s", a.now().UnixMilli(), suffix), nil
}

type recordBuilder struct {
	rec      AccountRecord
	logger   *slog.Logger
	phones   []string
	notes    []string
	fullName string
}

func newRecordBuilder(clientID uuid.UUID, logger *slog.Logger) *recordBuilder {
	return &recordBuilder{rec: AccountRecord{ClientID: clientID}, logger: logger}
}

func (b *recordBuilder) set(f fields.Field, column, raw string) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return
	}

	r := &b.rec
	switch f {
	case fields.Skip:
	case fields.PhoneNumber:
		if p := normalizer.NormalizePhone(value); p != "" {
			b.phones = append(b.phones, p)
		}
	case fields.ImportantNotes:
		b.notes = append(b.notes, column+": "+value)
	case fields.DebtorName:
		b.fullName = value
	case fields.AccountNumber:
		r.AccountNumber = value
	case fields.OriginalAccountNumber:
		r.OriginalAccountNumber = normalizer.CleanText(value)
	case fields.FirstName:
		r.FirstName = normalizer.CleanText(value)
	case fields.MiddleName:
		r.MiddleName = normalizer.CleanText(value)
	case fields.LastName:
		r.LastName = normalizer.CleanText(value)
	case fields.SSN:
		r.SSN = normalizer.NormalizeSSN(value)
	case fields.DateOfBirth:
		r.DateOfBirth = normalizer.CleanDate(value, b.logger)
	case fields.Email:
		r.Email = normalizer.NormalizeEmail(value)
	case fields.Address:
		r.Address = normalizer.CleanText(value)
	case fields.City:
		r.City = normalizer.CleanText(value)
	case fields.State:
		r.State = normalizer.NormalizeState(value)
	case fields.ZipCode:
		r.ZipCode = normalizer.NormalizeZip(value)
	case fields.CurrentBalance:
		r.CurrentBalance = normalizer.CleanCurrency(value)
	case fields.OriginalCreditor:
		r.OriginalCreditor = normalizer.CleanText(value)
	case fields.OpenDate:
		r.OpenDate = normalizer.CleanDate(value, b.logger)
	case fields.ChargeOffDate:
		r.ChargeOffDate = normalizer.CleanDate(value, b.logger)
	case fields.CreditScore:
		r.CreditScore = normalizer.CleanCreditScore(value)
	}
}

func (b *recordBuilder) build(nextAccountNumber func() (string, error)) (AccountRecord, []string, error) {
	r := b.rec

	// Explicit name columns win over parts split from a full-name column.
	if b.fullName != "" {
		first, middle, last := normalizer.SplitName(b.fullName)
		if r.FirstName == nil {
			r.FirstName = normalizer.CleanText(first)
		}
		if r.MiddleName == nil {
			r.MiddleName = normalizer.CleanText(middle)
		}
		if r.LastName == nil {
			r.LastName = normalizer.CleanText(last)
		}
	}
	r.DebtorName = normalizer.CombineName(deref(r.FirstName), deref(r.MiddleName), deref(r.LastName))

	if len(b.notes) > 0 {
		notes := strings.Join(b.notes, "\n")
		r.ImportantNotes = &notes
	}

	if r.AccountNumber == "" {
		n, err := nextAccountNumber()
		if err != nil {
			return AccountRecord{}, nil, err
		}
		r.AccountNumber = n
	}

	return r, b.phones, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
