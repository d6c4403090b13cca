package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, Paths) {
	t.Helper()
	dir := t.TempDir()
	p := Paths{
		Input:   filepath.Join(dir, "new_vehicle_data.csv"),
		Results: filepath.Join(dir, "out", "vehicle_results.csv"),
	}
	return New(map[domain.Domain]Paths{domain.Vehicle: p}), p
}

func TestReadResults_NoResultsYet(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.ReadResults(domain.Vehicle)
	assert.ErrorIs(t, err, domain.ErrNoResults)
}

func TestWriteResults_ThenRead(t *testing.T) {
	s, p := newTestStore(t)
	tbl := domain.Table{Header: []string{"vehicle_no", "Status"}, Rows: [][]string{{"V1", "HIGH"}}}

	require.NoError(t, s.WriteResults(domain.Vehicle, tbl))

	got, err := s.ReadResults(domain.Vehicle)
	require.NoError(t, err)
	assert.Equal(t, tbl, got)

	data, err := os.ReadFile(p.Results)
	require.NoError(t, err)
	assert.Equal(t, "vehicle_no,Status\nV1,HIGH\n", string(data))
}

func TestWriteResults_ReplacesAndLeavesNoTempFiles(t *testing.T) {
	s, p := newTestStore(t)

	require.NoError(t, s.WriteResults(domain.Vehicle, domain.Table{Header: []string{"a"}, Rows: [][]string{{"1"}}}))
	require.NoError(t, s.WriteResults(domain.Vehicle, domain.Table{Header: []string{"a"}, Rows: [][]string{{"2"}}}))

	got, err := s.ReadResults(domain.Vehicle)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2"}}, got.Rows)

	entries, err := os.ReadDir(filepath.Dir(p.Results))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vehicle_results.csv", entries[0].Name())
}

func TestReadRaw(t *testing.T) {
	s, p := newTestStore(t)

	_, err := s.ReadRaw(domain.Vehicle)
	assert.ErrorIs(t, err, domain.ErrInputMalformed)

	require.NoError(t, os.WriteFile(p.Input, []byte("vehicle_no,City\nV1,Chennai\n"), 0o644))
	tbl, err := s.ReadRaw(domain.Vehicle)
	require.NoError(t, err)
	assert.Equal(t, []string{"vehicle_no", "City"}, tbl.Header)
}

func TestUnconfiguredDomain(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.ReadResults(domain.Industry)
	assert.ErrorIs(t, err, domain.ErrUnknownDomain)
	assert.ErrorIs(t, s.WriteResults(domain.Industry, domain.Table{}), domain.ErrUnknownDomain)
}
