// Package encoding maps categorical column values to the integer codes a model
// was trained with. Encoders are built from the class lists persisted in a
// model artifact and never learn new classes at scoring time.
package encoding

import (
	"fmt"
	"sort"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

// Encoder is the code table of one categorical column. The code of a class is
// its index in the class list.
type Encoder struct {
	column  string
	classes []string
	codes   map[string]int
}

// NewEncoder builds an encoder from an ordered class list.
func NewEncoder(column string, classes []string) (*Encoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("encoder %s: no classes", column)
	}
	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := codes[c]; dup {
			return nil, fmt.Errorf("encoder %s: duplicate class %q", column, c)
		}
		codes[c] = i
	}
	return &Encoder{
		column:  column,
		classes: append([]string(nil), classes...),
		codes:   codes,
	}, nil
}

// Fit builds an encoder from observed values the way the training side does:
// distinct values in lexical order.
func Fit(column string, values []string) (*Encoder, error) {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	classes := make([]string, 0, len(set))
	for v := range set {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return NewEncoder(column, classes)
}

// Column is the name of the encoded column.
func (e *Encoder) Column() string { return e.column }

// Classes returns a copy of the class list in code order.
func (e *Encoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Encode returns the code of value. Values outside the class list yield a
// *domain.UnknownCategoryError.
func (e *Encoder) Encode(value string) (int, error) {
	code, ok := e.codes[value]
	if !ok {
		return 0, &domain.UnknownCategoryError{Column: e.column, Value: value}
	}
	return code, nil
}

// Decode returns the class of code.
func (e *Encoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.classes) {
		return "", fmt.Errorf("encoder %s: code %d out of range [0,%d)", e.column, code, len(e.classes))
	}
	return e.classes[code], nil
}

// Table holds the encoders of every categorical column of a model.
type Table map[string]*Encoder

// NewTable builds a table from column → class list.
func NewTable(classes map[string][]string) (Table, error) {
	t := make(Table, len(classes))
	for col, cls := range classes {
		enc, err := NewEncoder(col, cls)
		if err != nil {
			return nil, err
		}
		t[col] = enc
	}
	return t, nil
}

// FitTable fits one encoder per column from its observed values.
func FitTable(values map[string][]string) (Table, error) {
	t := make(Table, len(values))
	for col, vals := range values {
		enc, err := Fit(col, vals)
		if err != nil {
			return nil, err
		}
		t[col] = enc
	}
	return t, nil
}

// Encode encodes value with the encoder of column.
func (t Table) Encode(column, value string) (int, error) {
	enc, ok := t[column]
	if !ok {
		return 0, fmt.Errorf("no encoder for column %s: %w", column, domain.ErrSchemaMismatch)
	}
	return enc.Encode(value)
}

// Classes exports the table back to column → class list.
func (t Table) Classes() map[string][]string {
	out := make(map[string][]string, len(t))
	for col, enc := range t {
		out[col] = enc.Classes()
	}
	return out
}
