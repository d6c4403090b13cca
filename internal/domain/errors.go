package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Lower layers report these; only the pipeline decides whether
// a condition aborts the run or drops a single record.
var (
	// ErrInputMalformed: raw table missing, unreadable or violating its schema. Fatal to the run.
	ErrInputMalformed = errors.New("input missing or malformed")

	// ErrUnknownCategory: a categorical value absent from the training-time encoding table.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrGeocodeNotFound: the provider has no match for the city.
	ErrGeocodeNotFound = errors.New("geocode: city not found")

	// ErrGeocodeUnavailable: the provider could not be reached or answered with an error.
	ErrGeocodeUnavailable = errors.New("geocode: provider unavailable")

	// ErrSchemaMismatch: model artifact and feature layout disagree. Never scored past.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrNoResults: the result store has never been written for the domain.
	ErrNoResults = errors.New("no results yet")

	// ErrRunInProgress: a run for the same domain is already executing.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrUnknownDomain: the domain name is not vehicle or industry.
	ErrUnknownDomain = errors.New("unknown domain")
)

// UnknownCategoryError names the column and value that failed to encode.
// Line is the 1-based data line when known, 0 otherwise.
type UnknownCategoryError struct {
	Column string
	Value  string
	Line   int
}

func (e *UnknownCategoryError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("unknown category %q in column %s (line %d)", e.Value, e.Column, e.Line)
	}
	return fmt.Sprintf("unknown category %q in column %s", e.Value, e.Column)
}

func (e *UnknownCategoryError) Unwrap() error { return ErrUnknownCategory }

// MalformedInputError locates a problem in a raw input table.
type MalformedInputError struct {
	Path   string
	Line   int
	Column string
	Reason string
}

func (e *MalformedInputError) Error() string {
	msg := "malformed input"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(": line %d", e.Line)
	}
	if e.Column != "" {
		msg += ": column " + e.Column
	}
	return msg + ": " + e.Reason
}

func (e *MalformedInputError) Unwrap() error { return ErrInputMalformed }
