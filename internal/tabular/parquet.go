package tabular

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

// numericColumns are written as DOUBLE; everything else is UTF8 text.
var numericColumns = map[string]bool{
	domain.ColumnLat:       true,
	domain.ColumnLon:       true,
	domain.ColumnPredicted: true,
}

// WriteParquet writes a result table as a parquet file. Empty cells become
// nulls. Column names are rewritten by ParquetColumnNames.
func WriteParquet(w io.Writer, t domain.Table) error {
	names := ParquetColumnNames(t.Header)
	md := make([]string, len(t.Header))
	for i, name := range t.Header {
		typ := "type=BYTE_ARRAY, convertedtype=UTF8"
		if numericColumns[name] {
			typ = "type=DOUBLE"
		}
		md[i] = fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", names[i], typ)
	}

	pw, err := writer.NewCSVWriter(md, writerfile.NewWriterFile(w), 4)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return fmt.Errorf("write parquet row %d: expected %d cells, got %d", i, len(t.Header), len(row))
		}
		rec := make([]*string, len(row))
		for j := range row {
			if row[j] != "" {
				rec[j] = &row[j]
			}
		}
		if err := pw.WriteString(rec); err != nil {
			return fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet: %w", err)
	}
	return nil
}

// ParquetColumnNames maps header names to names the parquet schema tag
// accepts: letters, digits and underscores only, unique, never empty.
func ParquetColumnNames(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
				return r
			default:
				return '_'
			}
		}, strings.TrimSpace(h))
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}
