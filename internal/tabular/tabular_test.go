package tabular

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	in := "\xEF\xBB\xBFvehicle_no,City\nTN10AB1234,Chennai\n\"TN11,X\",\"New Delhi\"\n"
	tbl, err := Read(strings.NewReader(in))
	require.NoError(t, err)

	want := domain.Table{
		Header: []string{"vehicle_no", "City"},
		Rows:   [][]string{{"TN10AB1234", "Chennai"}, {"TN11,X", "New Delhi"}},
	}
	if diff := cmp.Diff(want, tbl); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_RaggedRowsPassThrough(t *testing.T) {
	tbl, err := Read(strings.NewReader("a,b\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, tbl.Rows)
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrInputMalformed)
}

func TestRead_BadQuote(t *testing.T) {
	_, err := Read(strings.NewReader("a,b\n\"unterminated,1\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInputMalformed)
}

func TestReadFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.csv")
	_, err := ReadFile(path)
	require.Error(t, err)

	var m *domain.MalformedInputError
	require.True(t, errors.As(err, &m))
	assert.Equal(t, path, m.Path)
}

func TestReadFile_SetsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := ReadFile(path)
	var m *domain.MalformedInputError
	require.True(t, errors.As(err, &m))
	assert.Equal(t, path, m.Path)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	tbl := domain.Table{
		Header: []string{"Industry_Name", "City", "lat", "Predicted_CO2"},
		Rows: [][]string{
			{"Industry_1", "Chennai", "13.082700", "730"},
			{"Industry \"2\"", "", "", "80.25"},
		},
	}
	data, err := Encode(tbl)
	require.NoError(t, err)

	got, err := Read(bytes.NewReader(data))
	require.NoError(t, err)
	if diff := cmp.Diff(tbl, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	tbl := domain.Table{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}, {"3", ""}}}
	a, err := Encode(tbl)
	require.NoError(t, err)
	b, err := Encode(tbl)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "a,b\n1,2\n3,\n", string(a))
}

func TestWriteParquet(t *testing.T) {
	tbl := domain.Table{
		Header: []string{"vehicle_no", "City", "lat", "lon", "Predicted_CO2", "Status"},
		Rows: [][]string{
			{"TN10AB1234", "Chennai", "13.082700", "80.270700", "150", "HIGH"},
			{"TN11AB5678", "Atlantis", "", "", "80.25", "SAFE"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, tbl))

	out := buf.Bytes()
	require.Greater(t, len(out), 8)
	assert.Equal(t, "PAR1", string(out[:4]))
	assert.Equal(t, "PAR1", string(out[len(out)-4:]))
}

func TestWriteParquet_UnsafeColumnNames(t *testing.T) {
	tbl := domain.Table{
		Header: []string{"vehicle_no", "notes, misc", "a=b", "Predicted_CO2"},
		Rows:   [][]string{{"TN10AB1234", "x", "y", "150"}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, tbl))
	assert.Equal(t, "PAR1", string(buf.Bytes()[:4]))
}

func TestWriteParquet_RaggedRow(t *testing.T) {
	tbl := domain.Table{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2", "3"}}}
	var buf bytes.Buffer
	require.Error(t, WriteParquet(&buf, tbl))
}

func TestParquetColumnNames(t *testing.T) {
	got := ParquetColumnNames([]string{"Predicted_CO2", "notes, misc", "a=b", "notes__misc", " ", "lat"})
	assert.Equal(t, []string{"Predicted_CO2", "notes__misc", "a_b", "notes__misc_2", "column_5", "lat"}, got)
}
