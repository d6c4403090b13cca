package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Table is a header plus rows of raw cell text, the in-memory form of every
// CSV the service reads or writes.
type Table struct {
	Header []string
	Rows   [][]string
}

// ColumnIndex returns the position of name in the header.
func (t Table) ColumnIndex(name string) (int, bool) {
	for i, h := range t.Header {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

// RawRecord is one input row. Cells keeps the original text in header order
// so the result table reproduces the input exactly.
type RawRecord struct {
	Line   int // 1-based line in the source file (header is line 1)
	ID     string
	City   string
	Cells  []string
	values map[string]string
}

// Value returns the trimmed cell of the named column.
func (r RawRecord) Value(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Number parses the named column as a float.
func (r RawRecord) Number(column string) (float64, error) {
	v, ok := r.values[column]
	if !ok {
		return 0, &MalformedInputError{Line: r.Line, Column: column, Reason: "column missing"}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &MalformedInputError{Line: r.Line, Column: column, Reason: fmt.Sprintf("not a number: %q", v)}
	}
	return f, nil
}

// ParseRecords validates a raw table against the schema and returns one record
// per row. Any violation is a *MalformedInputError: missing required column,
// repeated header name, reserved output column present, blank or duplicate
// identifier, ragged row, or a numeric column that does not parse.
func ParseRecords(s Schema, t Table) ([]RawRecord, error) {
	if len(t.Header) == 0 {
		return nil, &MalformedInputError{Reason: "empty table"}
	}
	headers := make(map[string]struct{}, len(t.Header))
	for _, h := range t.Header {
		if _, dup := headers[h]; dup {
			return nil, &MalformedInputError{Line: 1, Column: h, Reason: "duplicate column"}
		}
		headers[h] = struct{}{}
	}
	for _, c := range s.Columns {
		if _, ok := t.ColumnIndex(c.Name); !ok {
			return nil, &MalformedInputError{Line: 1, Column: c.Name, Reason: "required column missing"}
		}
	}
	for _, reserved := range OutputColumns() {
		if _, ok := t.ColumnIndex(reserved); ok {
			return nil, &MalformedInputError{Line: 1, Column: reserved, Reason: "reserved output column in input"}
		}
	}

	idCol, cityCol := s.IDColumn(), s.CityColumn()
	seen := make(map[string]int, len(t.Rows))
	records := make([]RawRecord, 0, len(t.Rows))

	for i, row := range t.Rows {
		line := i + 2
		if len(row) != len(t.Header) {
			return nil, &MalformedInputError{Line: line, Reason: fmt.Sprintf("expected %d cells, got %d", len(t.Header), len(row))}
		}
		values := make(map[string]string, len(row))
		for j, h := range t.Header {
			values[h] = strings.TrimSpace(row[j])
		}
		rec := RawRecord{
			Line:   line,
			ID:     values[idCol],
			City:   values[cityCol],
			Cells:  row,
			values: values,
		}
		if rec.ID == "" {
			return nil, &MalformedInputError{Line: line, Column: idCol, Reason: "blank identifier"}
		}
		if prev, dup := seen[rec.ID]; dup {
			return nil, &MalformedInputError{Line: line, Column: idCol, Reason: fmt.Sprintf("duplicate identifier %q (first on line %d)", rec.ID, prev)}
		}
		seen[rec.ID] = line

		for _, c := range s.Columns {
			if c.Kind != KindNumeric {
				continue
			}
			if _, err := rec.Number(c.Name); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Status is the classification of a predicted emission.
type Status string

const (
	StatusHigh Status = "HIGH"
	StatusSafe Status = "SAFE"
)

// Geocoordinate is a WGS-84 point. Valid is false for the missing-coordinate marker.
type Geocoordinate struct {
	Lat   float64
	Lon   float64
	Valid bool
}

// MissingCoordinate is the marker attached to records whose city could not be resolved.
var MissingCoordinate = Geocoordinate{}

// ScoredRecord is a raw record with its coordinate, prediction and status.
type ScoredRecord struct {
	Record       RawRecord
	Coord        Geocoordinate
	PredictedCO2 float64
	Status       Status
}

// BuildResultTable appends lat, lon, Predicted_CO2 and Status to every raw row.
// Missing coordinates are written as empty cells.
func BuildResultTable(header []string, scored []ScoredRecord) Table {
	out := Table{
		Header: append(append([]string{}, header...), OutputColumns()...),
		Rows:   make([][]string, 0, len(scored)),
	}
	for _, s := range scored {
		row := make([]string, 0, len(out.Header))
		row = append(row, s.Record.Cells...)
		lat, lon := FormatCoordinate(s.Coord)
		row = append(row, lat, lon, FormatCO2(s.PredictedCO2), string(s.Status))
		out.Rows = append(out.Rows, row)
	}
	return out
}

// FormatCO2 renders a prediction with the shortest representation that parses back exactly.
func FormatCO2(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatCoordinate renders a coordinate with 6 decimals, or two empty cells for the missing marker.
func FormatCoordinate(c Geocoordinate) (lat, lon string) {
	if !c.Valid {
		return "", ""
	}
	return strconv.FormatFloat(c.Lat, 'f', 6, 64), strconv.FormatFloat(c.Lon, 'f', 6, 64)
}
