// Package filestore keeps raw input tables and per-domain result tables as CSV
// files on local disk.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/tabular"
)

// Paths locates the files of one domain.
type Paths struct {
	Input   string
	Results string
}

// Store reads raw tables and replaces result tables atomically.
type Store struct {
	paths map[domain.Domain]Paths
}

// New creates a store over the given per-domain paths.
func New(paths map[domain.Domain]Paths) *Store {
	cp := make(map[domain.Domain]Paths, len(paths))
	for d, p := range paths {
		cp[d] = p
	}
	return &Store{paths: cp}
}

func (s *Store) pathsFor(d domain.Domain) (Paths, error) {
	p, ok := s.paths[d]
	if !ok {
		return Paths{}, fmt.Errorf("%w: no paths configured for %q", domain.ErrUnknownDomain, d)
	}
	return p, nil
}

// ReadRaw loads the raw input table of d.
func (s *Store) ReadRaw(d domain.Domain) (domain.Table, error) {
	p, err := s.pathsFor(d)
	if err != nil {
		return domain.Table{}, err
	}
	return tabular.ReadFile(p.Input)
}

// ReadResults loads the last committed result table of d, or ErrNoResults.
func (s *Store) ReadResults(d domain.Domain) (domain.Table, error) {
	p, err := s.pathsFor(d)
	if err != nil {
		return domain.Table{}, err
	}
	f, err := os.Open(p.Results)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Table{}, fmt.Errorf("%s: %w", d, domain.ErrNoResults)
	}
	if err != nil {
		return domain.Table{}, fmt.Errorf("open results %s: %w", p.Results, err)
	}
	defer f.Close()

	t, err := tabular.Read(f)
	if err != nil {
		return domain.Table{}, fmt.Errorf("read results %s: %w", p.Results, err)
	}
	return t, nil
}

// ResultsPath is the file the results of d are committed to.
func (s *Store) ResultsPath(d domain.Domain) (string, error) {
	p, err := s.pathsFor(d)
	if err != nil {
		return "", err
	}
	return p.Results, nil
}

// WriteResults replaces the result table of d. The table is written to a
// temporary file in the same directory, synced, and renamed over the previous
// file, so readers see either the old table or the new one.
func (s *Store) WriteResults(d domain.Domain, t domain.Table) error {
	p, err := s.pathsFor(d)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.Results)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.Results)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp results: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tabular.Write(tmp, t); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp results: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp results: %w", err)
	}
	if err := os.Rename(tmpName, p.Results); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	committed = true
	return nil
}
