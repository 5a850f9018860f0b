// Package fields defines the closed set of account fields that CSV columns map onto,
// plus the per-field sample validators shared by manual and AI-assisted mapping.
package fields

import (
	"strconv"
	"strings"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/normalizer"
)

// Field names a canonical account attribute a file column can map to.
type Field string

const (
	AccountNumber         Field = "account_number"
	OriginalAccountNumber Field = "original_account_number"
	FirstName             Field = "debtor_first_name"
	MiddleName            Field = "debtor_middle_name"
	LastName              Field = "debtor_last_name"
	SSN                   Field = "ssn"
	DateOfBirth           Field = "date_of_birth"
	PhoneNumber           Field = "phone_number"
	Email                 Field = "email"
	Address               Field = "address"
	City                  Field = "city"
	State                 Field = "state"
	ZipCode               Field = "zip_code"
	CurrentBalance        Field = "current_balance"
	OriginalCreditor      Field = "original_creditor"
	OpenDate              Field = "open_date"
	ChargeOffDate         Field = "charge_off_date"
	CreditScore           Field = "credit_score"
	ImportantNotes        Field = "important_notes"
)

const (
	// Skip marks a column that is deliberately left out of the import.
	Skip Field = "skip"
	// DebtorName is a full-name column; it is split into first, middle and last.
	DebtorName Field = "debtor_name"
)

var canonical = []Field{
	AccountNumber, OriginalAccountNumber, FirstName, MiddleName, LastName, SSN, DateOfBirth,
	PhoneNumber, Email, Address, City, State, ZipCode, CurrentBalance, OriginalCreditor,
	OpenDate, ChargeOffDate, CreditScore, ImportantNotes,
}

var labels = map[Field]string{
	AccountNumber:         "Account Number",
	OriginalAccountNumber: "Original Account Number",
	FirstName:             "First Name",
	MiddleName:            "Middle Name",
	LastName:              "Last Name",
	SSN:                   "SSN",
	DateOfBirth:           "Date of Birth",
	PhoneNumber:           "Phone Number",
	Email:                 "Email",
	Address:               "Address",
	City:                  "City",
	State:                 "State",
	ZipCode:               "ZIP Code",
	CurrentBalance:        "Current Balance",
	OriginalCreditor:      "Original Creditor",
	OpenDate:              "Open Date",
	ChargeOffDate:         "Charge-off Date",
	CreditScore:           "Credit Score",
	ImportantNotes:        "Important Notes",
	DebtorName:            "Full Name",
	Skip:                  "Skip",
}

// All returns the canonical fields in display order.
func All() []Field {
	out := make([]Field, len(canonical))
	copy(out, canonical)
	return out
}

// String returns the wire name, e.g. "account_number".
func (f Field) String() string { return string(f) }

// Label returns the display name, falling back to the wire name.
func (f Field) Label() string {
	if l, ok := labels[f]; ok {
		return l
	}
	return string(f)
}

// IsCanonical reports membership in the closed field set.
func (f Field) IsCanonical() bool {
	for _, c := range canonical {
		if c == f {
			return true
		}
	}
	return false
}

// IsTarget reports whether f may appear on the right side of a header mapping.
func (f Field) IsTarget() bool {
	return f == Skip || f == DebtorName || f.IsCanonical()
}

// AllowsFanIn reports whether several source columns may map onto f.
func (f Field) AllowsFanIn() bool {
	return f == PhoneNumber || f == ImportantNotes || f == Skip
}

// Parse normalizes s and returns the matching mapping target.
func Parse(s string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return "", false
	}
	return f, f.IsTarget()
}

// Validate checks a sample value against the format rule for f.
// Empty samples are always valid.
func Validate(f Field, sample string) bool {
	v := strings.TrimSpace(sample)
	if v == "" {
		return true
	}

	switch f {
	case SSN:
		return len(normalizer.DigitsOnly(v)) == 9
	case PhoneNumber:
		return len(normalizer.DigitsOnly(v)) >= 10
	case Email:
		return normalizer.NormalizeEmail(v) != nil
	case State:
		return normalizer.NormalizeState(v) != nil
	case ZipCode:
		n := len(normalizer.DigitsOnly(v))
		return n == 5 || n == 9
	case CurrentBalance:
		_, err := normalizer.ParseAmount(v)
		return err == nil
	case CreditScore:
		n, err := strconv.Atoi(v)
		return err == nil && n >= 300 && n <= 850
	case OpenDate, ChargeOffDate, DateOfBirth:
		_, err := normalizer.ParseDate(v)
		return err == nil
	default:
		return true
	}
}
