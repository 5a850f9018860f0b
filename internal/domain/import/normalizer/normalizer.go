// Package normalizer cleans raw CSV cell values into the typed forms stored on accounts.
// Every cleaner is lenient: unparsable input yields nil rather than an error.
package normalizer

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount format")
	ErrInvalidDate   = errors.New("invalid date format")
)

var (
	spacePattern = regexp.MustCompile(`\s+`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ParseAmount strips currency symbols and thousands separators and parses
// what is left, e.g. "$1,234.56" -> 1234.56.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)

	if cleaned == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// CleanCurrency returns nil for empty or unparsable input.
func CleanCurrency(raw string) *decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := ParseAmount(raw)
	if err != nil {
		return nil
	}
	return &d
}

// isoLayouts are tried before the numeric month/day/year fallback.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
}

// ParseDate tries ISO-compatible layouts first, then MM/DD/YYYY or MM-DD-YYYY.
// Dates without a zone are interpreted as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == '-' })
	if len(parts) != 3 {
		return time.Time{}, ErrInvalidDate
	}

	month, errM := strconv.Atoi(parts[0])
	day, errD := strconv.Atoi(parts[1])
	year, errY := strconv.Atoi(parts[2])
	if errM != nil || errD != nil || errY != nil || len(parts[2]) != 4 {
		return time.Time{}, ErrInvalidDate
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, ErrInvalidDate
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 31 into March; reject the overflow.
	if t.Day() != day {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// CleanDate returns nil and logs a warning when no strategy parses raw.
func CleanDate(raw string, logger *slog.Logger) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("invalid date format", slog.String("value", raw))
		return nil
	}
	return &t
}

// DigitsOnly drops every non-digit rune.
func DigitsOnly(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}

// NormalizeSSN formats nine digits as NNN-NN-NNNN.
func NormalizeSSN(raw string) *string {
	d := DigitsOnly(raw)
	if len(d) != 9 {
		return nil
	}
	s := d[:3] + "-" + d[3:5] + "-" + d[5:]
	return &s
}

// NormalizeState accepts a two letter code or a full state name.
func NormalizeState(raw string) *string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}
	if len(s) == 2 && isLetters(s) {
		return &s
	}
	if code, ok := stateCodes[spacePattern.ReplaceAllString(s, " ")]; ok {
		return &code
	}
	return nil
}

// NormalizeZip keeps digits and hyphens, truncated to ten characters.
func NormalizeZip(raw string) *string {
	z := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, raw)
	if len(z) > 10 {
		z = z[:10]
	}
	if DigitsOnly(z) == "" {
		return nil
	}
	return &z
}

func NormalizeEmail(raw string) *string {
	e := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(e) {
		return nil
	}
	return &e
}

// NormalizePhone returns the digit string, or "" when fewer than ten digits remain.
func NormalizePhone(raw string) string {
	d := DigitsOnly(raw)
	if len(d) < 10 {
		return ""
	}
	return d
}

// CleanCreditScore parses an integer score within 300..850.
func CleanCreditScore(raw string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 300 || n > 850 {
		return nil
	}
	return &n
}

// CleanText trims and collapses runs of whitespace; empty input yields nil.
func CleanText(raw string) *string {
	s := spacePattern.ReplaceAllString(strings.TrimSpace(raw), " ")
	if s == "" {
		return nil
	}
	return &s
}

// CombineName joins the non-empty name parts with single spaces.
func CombineName(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// SplitName breaks a full name into first, middle and last parts. A single
// token is a first name; everything between first and last is the middle name.
func SplitName(full string) (first, middle, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", "", ""
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], "", parts[1]
	default:
		return parts[0], strings.Join(parts[1:len(parts)-1], " "), parts[len(parts)-1]
	}
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

var stateCodes = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR", "CALIFORNIA": "CA",
	"COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE", "DISTRICT OF COLUMBIA": "DC",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID", "ILLINOIS": "IL",
	"INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS", "KENTUCKY": "KY", "LOUISIANA": "LA",
	"MAINE": "ME", "MARYLAND": "MD", "MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN",
	"MISSISSIPPI": "MS", "MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY",
	"NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK", "OREGON": "OR",
	"PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC", "SOUTH DAKOTA": "SD",
	"TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT", "VERMONT": "VT", "VIRGINIA": "VA",
	"WASHINGTON": "WA", "WEST VIRGINIA": "WV", "WISCONSIN": "WI", "WYOMING": "WY",
}
