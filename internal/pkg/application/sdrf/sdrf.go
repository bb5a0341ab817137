package sdrf

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
)

// Columns in a sample sheet are named using a prefix[Field Name] convention
// for three namespaces. Each namespace maps to its own output field prefix.
var namespacePrefixes = []struct {
	column string
	field  string
}{
	{"characteristics[", "sdrf_"},
	{"comment[", "tech_"},
	{"factor value[", "factor_"},
}

// When a column holds more than this many distinct values, the summary
// collapses to a count instead of enumerating them.
const maxEnumeratedValues = 10

// Summary is the flattened form of one per-sample sheet: one output field
// per distinct bracketed column name, plus the number of sample rows.
type Summary struct {
	SampleCount int
	Fields      map[string]string
}

// Parse reads a tab-separated sample sheet and flattens it. Unrecognized
// columns are ignored; a sheet without a header row is a parse failure.
func Parse(r io.Reader) (*Summary, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read sample sheet: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("sample sheet has no header row")
	}

	header := rows[0]
	dataRows := rows[1:]

	type column struct {
		index int
		field string
	}

	columns := []column{}
	for i, name := range header {
		if field, ok := fieldNameFor(name); ok {
			columns = append(columns, column{i, field})
		}
	}

	summary := &Summary{
		SampleCount: len(dataRows),
		Fields:      map[string]string{},
	}

	for _, col := range columns {
		values := make([]string, 0, len(dataRows))
		for _, row := range dataRows {
			if col.index < len(row) {
				values = append(values, row[col.index])
			}
		}

		joined := domain.JoinValues(values)
		distinct := len(domain.SplitValues(joined))

		if distinct > maxEnumeratedValues {
			summary.Fields[col.field] = fmt.Sprintf("%d unique values", distinct)
		} else if distinct > 0 {
			summary.Fields[col.field] = joined
		}
	}

	return summary, nil
}

func fieldNameFor(columnName string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(columnName))

	for _, ns := range namespacePrefixes {
		if strings.HasPrefix(lower, ns.column) && strings.HasSuffix(lower, "]") {
			bracketed := strings.TrimSuffix(strings.TrimPrefix(lower, ns.column), "]")
			return ns.field + bracketed, true
		}
	}

	return "", false
}

// MergeIntoRecord attaches the summary fields to the record and gap-fills
// the biological fields the sheet can contribute to. Resolved values are
// left alone.
func MergeIntoRecord(r *domain.DatasetRecord, s *Summary) {
	r.HasSDRF = true
	r.SampleCount = s.SampleCount

	for name, value := range s.Fields {
		r.SetExtra(name, value)
	}

	if domain.IsUnresolved(r.Diseases) {
		if v := s.Fields["sdrf_disease"]; v != "" {
			r.Diseases = v
		}
	}

	if domain.IsUnresolved(r.Tissues) {
		if v := s.Fields["sdrf_organism part"]; v != "" {
			r.Tissues = v
		}
	}

	if domain.IsUnresolved(r.CellTypes) {
		if v := s.Fields["sdrf_cell type"]; v != "" {
			r.CellTypes = v
		}
	}

	if domain.IsUnresolved(r.CellLine) {
		if v := s.Fields["sdrf_cell line"]; v != "" {
			r.CellLine = v
		}
	}

	if domain.IsUnresolved(r.Age) {
		if v := s.Fields["sdrf_age"]; v != "" {
			r.Age = v
		}
	}

	if domain.IsUnresolved(r.Sex) {
		if v := s.Fields["sdrf_sex"]; v != "" {
			r.Sex = v
		}
	}
}
