package sniffer

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const sampleAccountsCSV = `Acct #,First Name,Last Name,Phone1,Phone2,Balance,Notes
A-100,John,Public,(555) 123-4567,,"$1,234.56",prefers email
A-101,Jane,Doe,555-987-6543,212-555-0100,$99.00,

A-102,Sam,Smith,,,$0.00,"said ""call later"""
`

const sampleSemicolonCSV = "\ufeffAccount;Name;Balance\r\nX1;Ana Silva;10,00\r\nX2;Rui Costa;20,00\r\n"

const sampleTSV = "Account\tDebtor\tPhone\nT1\tTina Turner\t5551112222\n"

func TestDetectConfig_CommaCSV(t *testing.T) {
	config, err := DetectConfig([]byte(sampleAccountsCSV))
	if err != nil {
		t.Fatalf("DetectConfig failed: %v", err)
	}

	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter ',', got '%c'", config.Delimiter)
	}

	expected := []string{"Acct #", "First Name", "Last Name", "Phone1", "Phone2", "Balance", "Notes"}
	if strings.Join(config.Headers, "|") != strings.Join(expected, "|") {
		t.Errorf("Headers = %v, want %v", config.Headers, expected)
	}

	if len(config.SampleRows) != 3 {
		t.Fatalf("Expected 3 sample rows (blank line skipped), got %d", len(config.SampleRows))
	}
	if got := config.SampleRows[0]["Balance"]; got != "$1,234.56" {
		t.Errorf("quoted balance = %q", got)
	}
	if got := config.SampleRows[2]["Notes"]; got != `said "call later"` {
		t.Errorf("escaped quote = %q", got)
	}
	if got := config.Sample()["Phone1"]; got != "(555) 123-4567" {
		t.Errorf("Sample()[Phone1] = %q", got)
	}
	if len(config.Fingerprint) != 64 {
		t.Errorf("Expected sha256 hex fingerprint, got %q", config.Fingerprint)
	}
}

func TestDetectConfig_SemicolonWithBOM(t *testing.T) {
	config, err := DetectConfig([]byte(sampleSemicolonCSV))
	if err != nil {
		t.Fatalf("DetectConfig failed: %v", err)
	}
	if config.Delimiter != ';' {
		t.Errorf("Expected delimiter ';', got '%c'", config.Delimiter)
	}
	if config.Headers[0] != "Account" {
		t.Errorf("BOM not stripped: %q", config.Headers[0])
	}
	if got := config.SampleRows[1]["Balance"]; got != "20,00" {
		t.Errorf("Balance = %q", got)
	}
}

func TestDetectConfig_TSV(t *testing.T) {
	config, err := DetectConfig([]byte(sampleTSV))
	if err != nil {
		t.Fatalf("DetectConfig failed: %v", err)
	}
	if config.Delimiter != '\t' {
		t.Errorf("Expected tab delimiter, got '%c'", config.Delimiter)
	}
	if config.SampleRows[0]["Debtor"] != "Tina Turner" {
		t.Errorf("Debtor = %q", config.SampleRows[0]["Debtor"])
	}
}

func TestDetectConfig_SkipsLeadingBlankLines(t *testing.T) {
	config, err := DetectConfig([]byte("\n\nAccount,City\nA1,Austin\n"))
	if err != nil {
		t.Fatalf("DetectConfig failed: %v", err)
	}
	if config.SkipLines != 2 {
		t.Errorf("SkipLines = %d, want 2", config.SkipLines)
	}
	if config.SampleRows[0]["City"] != "Austin" {
		t.Errorf("City = %q", config.SampleRows[0]["City"])
	}
}

func TestDetectConfig_Errors(t *testing.T) {
	if _, err := DetectConfig(nil); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("nil data: got %v", err)
	}
	if _, err := DetectConfig([]byte("  \n \n")); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("blank data: got %v", err)
	}
	big := bytes.Repeat([]byte("a"), MaxFileSize+1)
	if _, err := DetectConfig(big); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("big data: got %v", err)
	}
}

func TestCleanHeaders(t *testing.T) {
	got := cleanHeaders([]string{" Phone ", "Phone", "", "Phone"})
	want := []string{"Phone", "Phone (2)", "Column 3", "Phone (3)"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("cleanHeaders = %v, want %v", got, want)
	}
}

func TestRows_AllDataAndShortRows(t *testing.T) {
	data := "Account,City,State\nA1,Austin,TX\nA2,Boston\n"
	cfg, rows, err := Rows([]byte(data))
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(cfg.Headers) != 3 || len(rows) != 2 {
		t.Fatalf("got %d headers, %d rows", len(cfg.Headers), len(rows))
	}
	if v, ok := rows[1]["State"]; !ok || v != "" {
		t.Errorf("short row should pad State, got %q (present=%v)", v, ok)
	}
}

func TestEach_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("enough")
	calls := 0
	err := Each([]byte(sampleAccountsCSV), func(line int, row map[string]string) error {
		calls++
		if line != 2 {
			t.Errorf("first data row line = %d, want 2", line)
		}
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Each returned %v after %d calls", err, calls)
	}
}

func TestGenerateFingerprint_StableAcrossFormatting(t *testing.T) {
	a := generateFingerprint([]string{"Acct #", "First Name"})
	b := generateFingerprint([]string{"ACCT", "first_name"})
	if a != b {
		t.Errorf("fingerprints differ: %s vs %s", a, b)
	}
	if a == generateFingerprint([]string{"First Name", "Acct #"}) {
		t.Error("fingerprint should depend on column order")
	}
}
