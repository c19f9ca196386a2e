// Package normalize turns raw exported record sets into typed tables and
// extracts the domain entities the derivation engine works on.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trial-progress-dashboard/internal/domain"
)

var separatorRun = regexp.MustCompile(`[^a-z0-9]+`)

// CleanFieldName lower-cases a source field name and collapses every run of
// separators into a single underscore.
func CleanFieldName(name string) string {
	s := separatorRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(s, "_")
}

// IsTestRecord reports whether an identifier carries the test marker.
func IsTestRecord(id string) bool {
	return strings.Contains(strings.ToLower(id), "test")
}

var (
	timestampLayouts = []string{
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02T15:04:05",
		"01/02/2006 15:04",
		"1/2/2006 15:04",
	}
	dateLayouts = []string{
		"2006-01-02",
		"01/02/2006",
		"1/2/2006",
	}
)

// ParseTimestamp parses date+hour:minute text. A bare date is accepted as
// midnight.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return ParseDate(s)
}

// ParseDate parses calendar date text.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Row is one normalized record.
type Row struct {
	ID    string
	Event string
	text  map[string]string
	times map[string]time.Time
}

// Text returns the trimmed raw value of a field.
func (r Row) Text(field string) string {
	return strings.TrimSpace(r.text[field])
}

// Time returns a parsed timestamp or date field.
func (r Row) Time(field string) *time.Time {
	t, ok := r.times[field]
	if !ok {
		return nil
	}
	return &t
}

// Bool reads a yes/no or checkbox field. Blank and unrecognised values are
// missing.
func (r Row) Bool(field string) *bool {
	var v bool
	switch strings.ToLower(r.Text(field)) {
	case "1", "true", "yes", "y", "checked":
		v = true
	case "0", "false", "no", "n", "unchecked":
		v = false
	default:
		return nil
	}
	return &v
}

// Float reads a numeric field.
func (r Row) Float(field string) *float64 {
	f, err := strconv.ParseFloat(r.Text(field), 64)
	if err != nil {
		return nil
	}
	return &f
}

// Table is a normalized record set.
type Table struct {
	Name   string
	Fields []string
	Rows   []Row
	has    map[string]bool
}

// Has reports whether the field is part of the table schema.
func (t *Table) Has(field string) bool {
	return t.has[field]
}

// FieldsWithPrefix returns schema fields starting with prefix, in schema
// order.
func (t *Table) FieldsWithPrefix(prefix string) []string {
	var out []string
	for _, f := range t.Fields {
		if strings.HasPrefix(f, prefix) {
			out = append(out, f)
		}
	}
	return out
}

// Require returns a SchemaError when a required field is absent.
func (t *Table) Require(fields ...string) error {
	return domain.RequireFields(t.Name, t.has, fields...)
}

// Report counts the noise recovered while normalizing one table.
type Report struct {
	Table           string   `json:"table"`
	InputRows       int      `json:"input_rows"`
	DroppedTestRows int      `json:"dropped_test_rows"`
	Unparsable      int      `json:"unparsable_dates"`
	MergedFields    []string `json:"merged_fields,omitempty"`
}

// Normalize cleans field names, drops test records and parses date and
// timestamp fields. Source fields that clean to the same name are merged in
// source field order: the first non-blank value wins. Each "X_dttm" field gets a derived "X_date" companion
// unless the source already carries one. Unparsable dates are left missing
// and counted.
func Normalize(name string, raw *domain.RawRecords, idField string) (*Table, Report, error) {
	rep := Report{Table: name, InputRows: len(raw.Rows)}

	t := &Table{Name: name, has: make(map[string]bool)}
	for _, f := range raw.Fields {
		clean := CleanFieldName(f)
		if t.has[clean] {
			rep.MergedFields = appendOnce(rep.MergedFields, clean)
			continue
		}
		t.has[clean] = true
		t.Fields = append(t.Fields, clean)
	}
	if err := t.Require(idField); err != nil {
		return nil, rep, err
	}

	var companions []string
	for _, f := range t.Fields {
		if strings.HasSuffix(f, domain.SuffixTimestamp) {
			c := strings.TrimSuffix(f, domain.SuffixTimestamp) + domain.SuffixDate
			if !t.has[c] {
				companions = append(companions, c)
			}
		}
	}
	for _, c := range companions {
		t.has[c] = true
		t.Fields = append(t.Fields, c)
	}

	for _, in := range raw.Rows {
		row := Row{text: make(map[string]string, len(in)), times: make(map[string]time.Time)}
		for _, k := range sourceOrder(raw.Fields, in) {
			clean := CleanFieldName(k)
			if cur, ok := row.text[clean]; ok && strings.TrimSpace(cur) != "" {
				continue
			}
			row.text[clean] = in[k]
		}
		row.ID = row.Text(idField)
		if IsTestRecord(row.ID) {
			rep.DroppedTestRows++
			continue
		}
		row.Event = row.Text(domain.FieldEventName)

		for _, f := range sortedKeys(row.text) {
			raw := strings.TrimSpace(row.text[f])
			if raw == "" {
				continue
			}
			switch {
			case strings.HasSuffix(f, domain.SuffixTimestamp):
				ts, ok := ParseTimestamp(raw)
				if !ok {
					rep.Unparsable++
					continue
				}
				row.times[f] = ts
				c := strings.TrimSuffix(f, domain.SuffixTimestamp) + domain.SuffixDate
				if _, exists := row.text[c]; !exists {
					row.times[c] = domain.Day(ts)
				}
			case strings.HasSuffix(f, domain.SuffixDate):
				d, ok := ParseDate(raw)
				if !ok {
					rep.Unparsable++
					continue
				}
				row.times[f] = d
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rep, nil
}

// sourceOrder lists a row's keys in declared field order, followed by any
// undeclared keys sorted by name.
func sourceOrder(fields []string, row map[string]string) []string {
	out := make([]string, 0, len(row))
	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f] = true
		if _, ok := row[f]; ok {
			out = append(out, f)
		}
	}
	var extra []string
	for k := range row {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func appendOnce(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
