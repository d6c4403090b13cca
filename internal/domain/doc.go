// Package domain models vehicle and industrial-facility emission records.
//
// # Raw tables
//
// Each domain reads one CSV with a fixed set of required columns (see
// [SchemaFor]). Extra columns are allowed and are carried through to the
// result table untouched. Columns are located by header name, never by
// position.
//
//	vehicle:  vehicle_no, vehicle_type, fuel_type, vehicle_age, engine_cc,
//	          mileage, monthly_distance, last_service_months,
//	          engine_condition, fuel_monthly, City
//	industry: Industry_Name, Industry_Type, Fuel_Used, Electricity_kWh,
//	          Production_Tons, Waste_Tons, Fuel_Consumption, Operating_Hours,
//	          Machinery_Age, Pollution_Control, City
//
// The identifier column must be non-blank and unique within a file. There is
// no identity across files.
//
// # Result tables
//
// A result row is the raw row, cell for cell, followed by lat, lon,
// Predicted_CO2 and Status. A city that could not be geocoded leaves lat and
// lon empty; that is the missing-coordinate marker, not an error.
//
// Status is HIGH when Predicted_CO2 is strictly greater than the domain
// threshold and SAFE otherwise, so a prediction equal to the threshold is SAFE.
//
// # Errors
//
// Lower layers report conditions with the sentinel errors in errors.go and
// never choose a strategy. The pipeline alone decides between aborting a run
// (malformed input, schema mismatch, unknown category by default) and
// degrading a single record (geocoding failure).
package domain
