package model

import (
	"fmt"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

// FormatVersion is the artifact layout this package reads.
const FormatVersion = 1

// FeatureKind says how a feature value is derived from a record.
type FeatureKind string

const (
	KindNumeric     FeatureKind = "numeric"
	KindCategorical FeatureKind = "categorical"
	KindBoolean     FeatureKind = "boolean"
	KindLatitude    FeatureKind = "latitude"
	KindLongitude   FeatureKind = "longitude"
)

// Artifact is the serialized form of a trained model. Feature order is the
// training-time column order and defines the layout of every feature vector.
type Artifact struct {
	FormatVersion int                 `json:"format_version"`
	Name          string              `json:"name"`
	Version       string              `json:"version"`
	Domain        domain.Domain       `json:"domain"`
	Target        string              `json:"target"`
	Features      []FeatureSpec       `json:"features"`
	Encodings     map[string][]string `json:"encodings"`
	Estimator     EstimatorSpec       `json:"estimator"`
}

// FeatureSpec describes one position of the feature vector.
type FeatureSpec struct {
	Name   string      `json:"name"`
	Column string      `json:"column,omitempty"`
	Kind   FeatureKind `json:"kind"`
	// Mapping converts the cell text of a boolean feature to a number.
	Mapping map[string]float64 `json:"mapping,omitempty"`
	// MissingValue is used for latitude/longitude when the city could not be geocoded.
	MissingValue float64 `json:"missing_value,omitempty"`
}

// EstimatorSpec holds the fitted parameters. Type selects which fields apply.
type EstimatorSpec struct {
	Type         string     `json:"type"`
	Intercept    float64    `json:"intercept,omitempty"`
	Coefficients []float64  `json:"coefficients,omitempty"`
	Trees        []TreeSpec `json:"trees,omitempty"`
}

// TreeSpec is one regression tree in flat node arrays. Node 0 is the root.
// A node whose Left child is -1 is a leaf and predicts Value. Otherwise a
// sample goes left when x[Feature] <= Threshold.
type TreeSpec struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

const (
	estimatorLinear = "linear"
	estimatorForest = "forest"
)

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrSchemaMismatch)
}

// validate checks the artifact against the raw schema of d.
func (a *Artifact) validate(d domain.Domain) error {
	if a.FormatVersion != FormatVersion {
		return mismatch("unsupported format_version %d", a.FormatVersion)
	}
	if a.Domain != d {
		return mismatch("artifact is for domain %q, not %q", a.Domain, d)
	}
	if len(a.Features) == 0 {
		return mismatch("artifact has no features")
	}
	schema, err := domain.SchemaFor(d)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(a.Features))
	for i, f := range a.Features {
		if f.Name == "" {
			return mismatch("feature %d has no name", i)
		}
		if seen[f.Name] {
			return mismatch("duplicate feature %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case KindLatitude, KindLongitude:
			continue
		case KindNumeric, KindCategorical, KindBoolean:
		default:
			return mismatch("feature %q has unknown kind %q", f.Name, f.Kind)
		}

		kind, ok := schema.Kind(f.Column)
		if !ok {
			return mismatch("feature %q reads column %q which is not in the %s schema", f.Name, f.Column, d)
		}
		switch f.Kind {
		case KindNumeric:
			if kind != domain.KindNumeric {
				return mismatch("feature %q: column %q is %s, not numeric", f.Name, f.Column, kind)
			}
		case KindCategorical:
			if kind != domain.KindCategorical {
				return mismatch("feature %q: column %q is %s, not categorical", f.Name, f.Column, kind)
			}
			if len(a.Encodings[f.Column]) == 0 {
				return mismatch("feature %q: no encoding table for column %q", f.Name, f.Column)
			}
		case KindBoolean:
			if kind != domain.KindCategorical {
				return mismatch("feature %q: column %q is %s, not categorical", f.Name, f.Column, kind)
			}
			if len(f.Mapping) == 0 {
				return mismatch("feature %q: boolean feature without mapping", f.Name)
			}
		}
	}

	dim := len(a.Features)
	switch a.Estimator.Type {
	case estimatorLinear:
		if len(a.Estimator.Coefficients) != dim {
			return mismatch("linear estimator has %d coefficients for %d features", len(a.Estimator.Coefficients), dim)
		}
	case estimatorForest:
		if len(a.Estimator.Trees) == 0 {
			return mismatch("forest estimator has no trees")
		}
		for i, t := range a.Estimator.Trees {
			if err := t.validate(dim); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	default:
		return mismatch("unknown estimator type %q", a.Estimator.Type)
	}
	return nil
}

func (t TreeSpec) validate(dim int) error {
	n := len(t.Left)
	if n == 0 {
		return mismatch("empty tree")
	}
	if len(t.Right) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return mismatch("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		if t.Left[i] == -1 {
			continue
		}
		if t.Feature[i] < 0 || t.Feature[i] >= dim {
			return mismatch("node %d splits on feature %d, model has %d", i, t.Feature[i], dim)
		}
		// Children always follow their parent, so traversal terminates.
		if t.Left[i] <= i || t.Left[i] >= n || t.Right[i] <= i || t.Right[i] >= n {
			return mismatch("node %d has invalid children", i)
		}
	}
	return nil
}
