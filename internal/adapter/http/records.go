package http

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

// field is one key with its value already encoded as JSON.
type field struct {
	key   string
	value string
}

// record is a result row that marshals as a JSON object in column order.
type record []field

func (r record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// toRecords converts rows of table to JSON objects. Numeric schema columns and
// the appended coordinate and prediction columns become numbers; empty cells
// become null.
func toRecords(d domain.Domain, table domain.Table, rows [][]string) []record {
	numeric := make([]bool, len(table.Header))
	schema, err := domain.SchemaFor(d)
	for i, h := range table.Header {
		switch h {
		case domain.ColumnLat, domain.ColumnLon, domain.ColumnPredicted:
			numeric[i] = true
			continue
		}
		if err == nil {
			if k, ok := schema.Kind(h); ok && k == domain.KindNumeric {
				numeric[i] = true
			}
		}
	}

	out := make([]record, len(rows))
	for i, row := range rows {
		rec := make(record, 0, len(table.Header))
		for j, h := range table.Header {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			v := stringValue(cell)
			if numeric[j] {
				v = numberValue(cell)
			}
			rec = append(rec, field{key: h, value: v})
		}
		out[i] = rec
	}
	return out
}

func stringValue(cell string) string {
	if strings.TrimSpace(cell) == "" {
		return "null"
	}
	b, _ := json.Marshal(cell) //nolint:errcheck // strings always marshal
	return string(b)
}

func numberValue(cell string) string {
	s := strings.TrimSpace(cell)
	if s == "" {
		return "null"
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return stringValue(cell)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
