// Package model loads trained emission regressors and scores feature vectors.
//
// A model is loaded once from a JSON artifact and is immutable afterwards, so
// a single *Model may be shared by concurrent runs.
package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/encoding"
)

type estimator interface {
	predictBatch(rows [][]float64) []float64
}

// Model is a loaded artifact: feature layout, encoding tables and estimator.
type Model struct {
	name     string
	version  string
	domain   domain.Domain
	target   string
	checksum string
	features []FeatureSpec
	encoders encoding.Table
	est      estimator
}

// Info describes a loaded model.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Domain    domain.Domain `json:"domain"`
	Target    string        `json:"target"`
	Estimator string        `json:"estimator"`
	Features  []string      `json:"features"`
	Checksum  string        `json:"checksum"`
}

// Load reads and validates the artifact at path for domain d.
func Load(path string, d domain.Domain) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	m, err := Parse(data, d)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates an artifact document.
func Parse(data []byte, d domain.Domain) (*Model, error) {
	var a Artifact
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %v: %w", err, domain.ErrSchemaMismatch)
	}
	m, err := New(a, d)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	m.checksum = hex.EncodeToString(sum[:])
	return m, nil
}

// New builds a model from an in-memory artifact.
func New(a Artifact, d domain.Domain) (*Model, error) {
	if err := a.validate(d); err != nil {
		return nil, err
	}
	encoders, err := encoding.NewTable(a.Encodings)
	if err != nil {
		return nil, fmt.Errorf("encodings: %v: %w", err, domain.ErrSchemaMismatch)
	}

	var est estimator
	switch a.Estimator.Type {
	case estimatorLinear:
		est = newLinear(a.Estimator.Intercept, a.Estimator.Coefficients)
	case estimatorForest:
		est = newForest(a.Estimator.Trees)
	}

	return &Model{
		name:     a.Name,
		version:  a.Version,
		domain:   a.Domain,
		target:   a.Target,
		features: append([]FeatureSpec(nil), a.Features...),
		encoders: encoders,
		est:      est,
	}, nil
}

// Dim is the feature vector width.
func (m *Model) Dim() int { return len(m.features) }

// Info returns the model's metadata.
func (m *Model) Info() Info {
	names := make([]string, len(m.features))
	for i, f := range m.features {
		names[i] = f.Name
	}
	est := estimatorLinear
	if _, ok := m.est.(*forest); ok {
		est = estimatorForest
	}
	return Info{
		Name:      m.name,
		Version:   m.version,
		Domain:    m.domain,
		Target:    m.target,
		Estimator: est,
		Features:  names,
		Checksum:  m.checksum,
	}
}

// Vectorize assembles the feature vector of rec in training-time order.
// Unknown categorical values yield a *domain.UnknownCategoryError carrying the
// record's line. A missing coordinate uses the feature's missing value.
func (m *Model) Vectorize(rec domain.RawRecord, coord domain.Geocoordinate) ([]float64, error) {
	x := make([]float64, len(m.features))
	for i, f := range m.features {
		switch f.Kind {
		case KindNumeric:
			v, err := rec.Number(f.Column)
			if err != nil {
				return nil, err
			}
			x[i] = v
		case KindCategorical:
			v, _ := rec.Value(f.Column)
			code, err := m.encoders.Encode(f.Column, v)
			if err != nil {
				var uce *domain.UnknownCategoryError
				if errors.As(err, &uce) {
					uce.Line = rec.Line
				}
				return nil, err
			}
			x[i] = float64(code)
		case KindBoolean:
			v, _ := rec.Value(f.Column)
			mapped, ok := f.Mapping[v]
			if !ok {
				return nil, &domain.UnknownCategoryError{Column: f.Column, Value: v, Line: rec.Line}
			}
			x[i] = mapped
		case KindLatitude:
			x[i] = f.MissingValue
			if coord.Valid {
				x[i] = coord.Lat
			}
		case KindLongitude:
			x[i] = f.MissingValue
			if coord.Valid {
				x[i] = coord.Lon
			}
		}
	}
	return x, nil
}

// Predict scores one feature vector.
func (m *Model) Predict(x []float64) (float64, error) {
	out, err := m.PredictBatch([][]float64{x})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// PredictBatch scores every row. Each row must have Dim() values.
func (m *Model) PredictBatch(rows [][]float64) ([]float64, error) {
	for i, r := range rows {
		if len(r) != len(m.features) {
			return nil, mismatch("row %d has %d features, model expects %d", i, len(r), len(m.features))
		}
	}
	if len(rows) == 0 {
		return []float64{}, nil
	}
	return m.est.predictBatch(rows), nil
}
