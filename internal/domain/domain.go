package domain

import (
	"fmt"
	"strings"
)

// Domain identifies one family of scored entities. Each domain has its own
// raw schema, model artifact, threshold and result table.
type Domain string

const (
	Vehicle  Domain = "vehicle"
	Industry Domain = "industry"
)

// All returns every domain in run order.
func All() []Domain {
	return []Domain{Vehicle, Industry}
}

// ParseDomain accepts the singular or plural domain name, case-insensitively.
func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vehicle", "vehicles":
		return Vehicle, nil
	case "industry", "industries":
		return Industry, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
	}
}

// Plural is the collection name used by the HTTP routes ("vehicles", "industries").
func (d Domain) Plural() string {
	switch d {
	case Vehicle:
		return "vehicles"
	case Industry:
		return "industries"
	default:
		return string(d)
	}
}

// ColumnKind classifies a raw column.
type ColumnKind int

const (
	KindID ColumnKind = iota
	KindCategorical
	KindNumeric
	KindCity
)

func (k ColumnKind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindCategorical:
		return "categorical"
	case KindNumeric:
		return "numeric"
	case KindCity:
		return "city"
	default:
		return "unknown"
	}
}

// Column is one required raw input column.
type Column struct {
	Name string
	Kind ColumnKind
}

// Schema is the fixed raw column layout of a domain. Column order is the
// order the generator writes; readers locate columns by header name.
type Schema struct {
	Domain  Domain
	Columns []Column
}

// Output columns appended to every result row.
const (
	ColumnLat       = "lat"
	ColumnLon       = "lon"
	ColumnPredicted = "Predicted_CO2"
	ColumnStatus    = "Status"
)

// OutputColumns lists the columns the pipeline appends, in order.
func OutputColumns() []string {
	return []string{ColumnLat, ColumnLon, ColumnPredicted, ColumnStatus}
}

var schemas = map[Domain]Schema{
	Vehicle: {
		Domain: Vehicle,
		Columns: []Column{
			{Name: "vehicle_no", Kind: KindID},
			{Name: "vehicle_type", Kind: KindCategorical},
			{Name: "fuel_type", Kind: KindCategorical},
			{Name: "vehicle_age", Kind: KindNumeric},
			{Name: "engine_cc", Kind: KindNumeric},
			{Name: "mileage", Kind: KindNumeric},
			{Name: "monthly_distance", Kind: KindNumeric},
			{Name: "last_service_months", Kind: KindNumeric},
			{Name: "engine_condition", Kind: KindNumeric},
			{Name: "fuel_monthly", Kind: KindNumeric},
			{Name: "City", Kind: KindCity},
		},
	},
	Industry: {
		Domain: Industry,
		Columns: []Column{
			{Name: "Industry_Name", Kind: KindID},
			{Name: "Industry_Type", Kind: KindCategorical},
			{Name: "Fuel_Used", Kind: KindCategorical},
			{Name: "Electricity_kWh", Kind: KindNumeric},
			{Name: "Production_Tons", Kind: KindNumeric},
			{Name: "Waste_Tons", Kind: KindNumeric},
			{Name: "Fuel_Consumption", Kind: KindNumeric},
			{Name: "Operating_Hours", Kind: KindNumeric},
			{Name: "Machinery_Age", Kind: KindNumeric},
			{Name: "Pollution_Control", Kind: KindCategorical},
			{Name: "City", Kind: KindCity},
		},
	},
}

// SchemaFor returns the raw schema of d.
func SchemaFor(d Domain) (Schema, error) {
	s, ok := schemas[d]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownDomain, d)
	}
	return s, nil
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Kind reports the kind of the named column.
func (s Schema) Kind(name string) (ColumnKind, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c.Kind, true
		}
	}
	return 0, false
}

// IDColumn is the name of the identifier column.
func (s Schema) IDColumn() string { return s.firstOfKind(KindID) }

// CityColumn is the name of the city column.
func (s Schema) CityColumn() string { return s.firstOfKind(KindCity) }

func (s Schema) firstOfKind(k ColumnKind) string {
	for _, c := range s.Columns {
		if c.Kind == k {
			return c.Name
		}
	}
	return ""
}
