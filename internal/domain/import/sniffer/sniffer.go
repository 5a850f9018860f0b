// Package sniffer detects the layout of uploaded account files: delimiter,
// header row, a fingerprint for template lookup, and a handful of sample rows.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// MaxFileSize is the largest upload accepted for analysis or import.
const MaxFileSize = 10 << 20

// SampleSize is the number of data rows returned for preview.
const SampleSize = 5

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FileConfig holds the detected configuration for a CSV/TSV file
type FileConfig struct {
	Delimiter   rune                `json:"-"`
	SkipLines   int                 `json:"skip_lines"`  // blank lines before the header
	Headers     []string            `json:"headers"`     // trimmed, de-duplicated
	Fingerprint string              `json:"fingerprint"` // SHA256 of normalized headers
	SampleRows  []map[string]string `json:"sample_rows"`
}

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find a header row")
	ErrFileTooLarge   = errors.New("file exceeds maximum size")
	ErrMalformedRow   = errors.New("malformed row")
)

// DetectConfig analyzes a CSV/TSV file and returns its configuration.
func DetectConfig(data []byte) (*FileConfig, error) {
	data, err := prepare(data)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	skip := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			skip = i
			break
		}
	}
	if skip < 0 {
		return nil, ErrEmptyFile
	}

	delimiter := detectDelimiter(lines[skip])

	reader := csv.NewReader(strings.NewReader(lines[skip]))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	raw, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoHeadersFound, err)
	}
	headers := cleanHeaders(raw)

	cfg := &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skip,
		Headers:     headers,
		Fingerprint: generateFingerprint(headers),
	}

	err = each(data, cfg, func(_ int, row map[string]string) error {
		cfg.SampleRows = append(cfg.SampleRows, row)
		if len(cfg.SampleRows) >= SampleSize {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return cfg, nil
}

// Rows parses every data row of the file keyed by header.
func Rows(data []byte) (*FileConfig, []map[string]string, error) {
	cfg, err := DetectConfig(data)
	if err != nil {
		return nil, nil, err
	}

	data, _ = prepare(data)
	var rows []map[string]string
	err = each(data, cfg, func(_ int, row map[string]string) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, rows, nil
}

// Each streams data rows to fn. It stops at the first error fn returns.
func Each(data []byte, fn func(line int, row map[string]string) error) error {
	cfg, err := DetectConfig(data)
	if err != nil {
		return err
	}
	data, _ = prepare(data)
	return each(data, cfg, fn)
}

// Sample returns the first data row, used as the representative values for
// matching and AI analysis.
func (c *FileConfig) Sample() map[string]string {
	if len(c.SampleRows) == 0 {
		return map[string]string{}
	}
	return c.SampleRows[0]
}

var errStop = errors.New("stop")

func prepare(data []byte) ([]byte, error) {
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

func each(data []byte, cfg *FileConfig, fn func(line int, row map[string]string) error) error {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = cfg.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Allow variable fields

	headerSeen := false
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return fmt.Errorf("%w at line %d: %v", ErrMalformedRow, pe.Line, pe.Err)
			}
			return fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
		if blank(record) {
			continue
		}
		if !headerSeen {
			headerSeen = true
			continue
		}
		line, _ := reader.FieldPos(0)

		row := make(map[string]string, len(cfg.Headers))
		for i, h := range cfg.Headers {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			} else {
				row[h] = ""
			}
		}
		if err := fn(line, row); err != nil {
			return err
		}
	}
}

// detectDelimiter picks the most frequent candidate outside quotes.
func detectDelimiter(line string) rune {
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		count, inQuotes := 0, false
		for _, r := range line {
			switch {
			case r == '"':
				inQuotes = !inQuotes
			case r == d && !inQuotes:
				count++
			}
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

// cleanHeaders trims names, fills blanks and suffixes duplicates so every
// header can key a row map.
func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))

	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		headers[i] = h
	}
	return headers
}

// generateFingerprint creates a stable hash from header names
func generateFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	joined := strings.Join(normalized, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
