// Package analyzer asks a language model for a header mapping and keeps only
// the pairs that survive the same validation as manual mappings.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/fields"
	"github.com/FACorreiaa/collections-portal/internal/domain/import/mapping"
)

// Outcome labels how a suggestion request ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDisabled Outcome = "disabled"
	OutcomeFailed   Outcome = "failed"
	OutcomeInvalid  Outcome = "invalid_response"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultSampleMax = 100
)

const systemPrompt = "You are a data mapping assistant. Respond only with a valid JSON object mapping CSV fields to database fields."

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

type Analyzer struct {
	gen       Generator
	timeout   time.Duration
	sampleMax int
	logger    *slog.Logger
}

// New returns an analyzer; a nil Generator disables suggestions.
func New(gen Generator, timeout time.Duration, sampleMax int, logger *slog.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if sampleMax <= 0 {
		sampleMax = DefaultSampleMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gen: gen, timeout: timeout, sampleMax: sampleMax, logger: logger}
}

// Enabled reports whether a model is configured.
func (a *Analyzer) Enabled() bool {
	return a.gen != nil
}

// Suggest never fails: transport, timeout and parse problems all yield an
// empty mapping so the user can finish mapping by hand.
func (a *Analyzer) Suggest(ctx context.Context, headers []string, sample map[string]string) (mapping.HeaderMapping, Outcome) {
	l := a.logger.With(slog.String("method", "Suggest"), slog.Int("headers", len(headers)))

	if a.gen == nil {
		return mapping.HeaderMapping{}, OutcomeDisabled
	}
	if len(headers) == 0 {
		return mapping.HeaderMapping{}, OutcomeOK
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	reply, err := a.gen.Generate(ctx, systemPrompt, a.buildPrompt(headers, sample))
	if err != nil {
		l.WarnContext(ctx, "field analysis request failed", slog.Any("error", err))
		return mapping.HeaderMapping{}, OutcomeFailed
	}

	proposed, err := parseReply(reply)
	if err != nil {
		l.WarnContext(ctx, "field analysis reply unusable", slog.Any("error", err))
		return mapping.HeaderMapping{}, OutcomeInvalid
	}

	m := Sanitize(headers, sample, proposed)
	l.InfoContext(ctx, "field analysis complete",
		slog.Int("proposed", len(proposed)),
		slog.Int("accepted", len(m)))
	return m, OutcomeOK
}

// Sanitize drops proposals for unknown headers, non-canonical targets and
// samples that fail the field's format rule, then resolves fan-out by keeping
// the first column in header order.
func Sanitize(headers []string, sample map[string]string, proposed map[string]string) mapping.HeaderMapping {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	accepted := make(map[string]string, len(proposed))
	for header, target := range proposed {
		if !known[header] {
			continue
		}
		f, ok := fields.Parse(target)
		if !ok || f == fields.Skip {
			continue
		}
		if !fields.Validate(f, sample[header]) {
			continue
		}
		accepted[header] = string(f)
	}

	ordered := mapping.FromMap(headers, accepted)
	out := make(mapping.HeaderMapping, 0, len(ordered))
	taken := make(map[fields.Field]bool, len(ordered))
	for _, e := range ordered {
		if !e.Field.AllowsFanIn() && taken[e.Field] {
			continue
		}
		taken[e.Field] = true
		out = append(out, e)
	}
	return out
}

func (a *Analyzer) buildPrompt(headers []string, sample map[string]string) string {
	var b strings.Builder

	b.WriteString("Analyze these CSV fields and map them to our database fields. Return ONLY a JSON object with mappings.\n\n")
	b.WriteString("CSV Fields with sample data:\n")
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\n", h, truncate(sample[h], a.sampleMax))
	}

	b.WriteString("\nTarget Database Fields:\n")
	for _, f := range targetFields() {
		fmt.Fprintf(&b, "- %s (%s)\n", f, f.Label())
	}

	b.WriteString(`
Common Field Name Variations:
- Account: acc, acct, account_no, id, number, #
- Name: customer, debtor, borrower, client
- Phone: tel, mobile, cell, contact, phone1, phone2
- Address: addr, street, location, address1
- Balance: amount, debt, due, owed, principal
- Notes: comments, remarks, description, memo

Rules:
1. Map phone_number for ANY field containing phone numbers
2. Map important_notes for ANY field with notes/comments
3. Use sample data to validate field types
4. Skip fields that don't clearly match
5. Map multiple phone fields to phone_number
6. Prefer exact matches over partial matches

Example response format:
{
  "account_no": "account_number",
  "customer_name": "debtor_name",
  "phone1": "phone_number",
  "phone2": "phone_number"
}`)
	return b.String()
}

func targetFields() []fields.Field {
	all := fields.All()
	out := make([]fields.Field, 0, len(all)+1)
	out = append(out, all[0], fields.DebtorName)
	return append(out, all[1:]...)
}

// parseReply extracts the first {...} span and decodes string values.
func parseReply(reply string) (map[string]string, error) {
	raw := jsonObject.FindString(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse mapping JSON: %w", err)
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
