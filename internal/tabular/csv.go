// Package tabular reads and writes domain tables as CSV and exports result
// tables as parquet.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read decodes a CSV document into a table. The first record is the header.
// Row widths are not checked here; schema validation reports ragged rows with
// their line number.
func Read(r io.Reader) (domain.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.Table{}, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.Table{}, &domain.MalformedInputError{Reason: "empty file"}
	}
	if err != nil {
		return domain.Table{}, malformed(err)
	}

	t := domain.Table{Header: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Table{}, malformed(err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadFile reads the CSV file at path. A missing file is malformed input.
func ReadFile(path string) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, &domain.MalformedInputError{Path: path, Reason: err.Error()}
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		var m *domain.MalformedInputError
		if errors.As(err, &m) {
			m.Path = path
		}
		return domain.Table{}, err
	}
	return t, nil
}

// Write encodes the table as CSV with "\n" line endings.
func Write(w io.Writer, t domain.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// Encode returns the CSV bytes of t.
func Encode(t domain.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func malformed(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &domain.MalformedInputError{Line: pe.Line, Reason: pe.Err.Error()}
	}
	return &domain.MalformedInputError{Reason: err.Error()}
}
