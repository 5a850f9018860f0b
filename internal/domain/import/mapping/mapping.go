// Package mapping holds the header-to-field mapping and turns raw CSV rows into
// typed account records. Manual and AI-suggested mappings share this path.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/FACorreiaa/collections-portal/internal/domain/import/fields"
)

var (
	ErrEmptyHeader     = errors.New("mapping contains an empty header")
	ErrDuplicateHeader = errors.New("header mapped more than once")
	ErrUnknownField    = errors.New("unknown target field")
	ErrFieldConflict   = errors.New("field receives more than one column")
)

// Entry maps one source column onto a target field.
type Entry struct {
	Header string       `json:"header"`
	Field  fields.Field `json:"field"`
}

// HeaderMapping is ordered by source column position.
type HeaderMapping []Entry

// FromMap orders an unordered header->field object by the given header list.
// Headers missing from m are left out; keys of m not in headers are appended
// in sorted order so nothing is silently lost before validation.
func FromMap(headers []string, m map[string]string) HeaderMapping {
	out := make(HeaderMapping, 0, len(m))
	seen := make(map[string]bool, len(m))

	for _, h := range headers {
		if target, ok := m[h]; ok {
			out = append(out, Entry{Header: h, Field: fields.Field(strings.TrimSpace(target))})
			seen[h] = true
		}
	}

	var rest []string
	for h := range m {
		if !seen[h] {
			rest = append(rest, h)
		}
	}
	slices.Sort(rest)
	for _, h := range rest {
		out = append(out, Entry{Header: h, Field: fields.Field(strings.TrimSpace(m[h]))})
	}
	return out
}

// Validate enforces unique headers, known targets, and that only phone_number,
// important_notes and skip receive more than one column.
func (m HeaderMapping) Validate() error {
	headers := make(map[string]bool, len(m))
	targets := make(map[fields.Field]string, len(m))

	for _, e := range m {
		if strings.TrimSpace(e.Header) == "" {
			return ErrEmptyHeader
		}
		if headers[e.Header] {
			return fmt.Errorf("%w: %q", ErrDuplicateHeader, e.Header)
		}
		headers[e.Header] = true

		if !e.Field.IsTarget() {
			return fmt.Errorf("%w: %q for column %q", ErrUnknownField, e.Field, e.Header)
		}
		if e.Field.AllowsFanIn() {
			continue
		}
		if prev, ok := targets[e.Field]; ok {
			return fmt.Errorf("%w: %s from %q and %q", ErrFieldConflict, e.Field, prev, e.Header)
		}
		targets[e.Field] = e.Header
	}
	return nil
}

// Lookup returns the target for header.
func (m HeaderMapping) Lookup(header string) (fields.Field, bool) {
	for _, e := range m {
		if e.Header == header {
			return e.Field, true
		}
	}
	return "", false
}

// Used returns the set of targets already taken, skip excluded.
func (m HeaderMapping) Used() map[fields.Field]bool {
	used := make(map[fields.Field]bool, len(m))
	for _, e := range m {
		if e.Field != fields.Skip {
			used[e.Field] = true
		}
	}
	return used
}

// Without returns a copy with entries for the given headers removed.
func (m HeaderMapping) Without(headers ...string) HeaderMapping {
	drop := make(map[string]bool, len(headers))
	for _, h := range headers {
		drop[h] = true
	}
	out := make(HeaderMapping, 0, len(m))
	for _, e := range m {
		if !drop[e.Header] {
			out = append(out, e)
		}
	}
	return out
}

// InFileOrder returns a copy sorted by each header's column position.
// Headers absent from headers keep their relative order at the end.
func (m HeaderMapping) InFileOrder(headers []string) HeaderMapping {
	pos := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	at := func(h string) int {
		if i, ok := pos[h]; ok {
			return i
		}
		return len(headers)
	}

	out := slices.Clone(m)
	slices.SortStableFunc(out, func(a, b Entry) int { return at(a.Header) - at(b.Header) })
	return out
}

// ToMap flattens the mapping into the header->field object shape used by
// templates and the AI service.
func (m HeaderMapping) ToMap() map[string]string {
	out := make(map[string]string, len(m))
	for _, e := range m {
		out[e.Header] = string(e.Field)
	}
	return out
}

// UnmarshalJSON accepts either the ordered array form or a plain object.
func (m *HeaderMapping) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err == nil {
		*m = entries
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("mapping must be an array of {header, field} or an object: %w", err)
	}
	*m = FromMap(nil, obj)
	return nil
}
