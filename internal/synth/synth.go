// Package synth generates synthetic raw input tables for both domains, with
// the same categories, value ranges and emission formulas the bundled models
// were fitted on.
package synth

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"

	"github.com/jaswdr/faker"
	"github.com/schollz/progressbar/v3"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

// DefaultCount is the number of records generated when Options.Count is zero.
const DefaultCount = 200

// maxVehicles is the number of distinct TNxxABxxxx registration numbers.
const maxVehicles = 90 * 9000

// Target column names written when Options.WithTarget is set.
const (
	VehicleTarget  = "co2_emission"
	IndustryTarget = "CO2_Emission"
)

var (
	vehicleTypes   = []string{"Car", "Bike", "SUV", "Truck", "Bus"}
	vehicleFuels   = []string{"Petrol", "Diesel", "CNG"}
	engineSizes    = []int{125, 150, 1000, 1200, 1500, 2000, 5000, 6000}
	industryTypes  = []string{"Cement", "Steel", "Textile", "Power", "Chemical", "Food", "Paper"}
	industryFuels  = []string{"Coal", "Gas", "Oil", "Biomass", "Electricity"}
	pollutionFlags = []string{"Yes", "No"}
)

// Options controls a generation run.
type Options struct {
	Count      int
	Seed       int64
	WithTarget bool      // append the ground-truth emission column
	Cities     []string  // City values are drawn from this list
	Progress   io.Writer // progress bar output; nil disables it
}

// Generate builds a raw table for d. The same options always produce the
// same table.
func Generate(d domain.Domain, opts Options) (domain.Table, error) {
	if opts.Count < 0 {
		return domain.Table{}, fmt.Errorf("count must not be negative, got %d", opts.Count)
	}
	if opts.Count == 0 {
		opts.Count = DefaultCount
	}
	if len(opts.Cities) == 0 {
		return domain.Table{}, errors.New("at least one city is required")
	}
	schema, err := domain.SchemaFor(d)
	if err != nil {
		return domain.Table{}, err
	}
	if d == domain.Vehicle && opts.Count > maxVehicles {
		return domain.Table{}, fmt.Errorf("at most %d vehicles have distinct numbers, got %d", maxVehicles, opts.Count)
	}

	g := &generator{
		fake:   faker.NewWithSeed(rand.NewSource(opts.Seed)),
		cities: opts.Cities,
		seen:   make(map[string]struct{}, opts.Count),
	}
	header := schema.Names()
	row := g.vehicle
	target := VehicleTarget
	if d == domain.Industry {
		row = g.industry
		target = IndustryTarget
	}
	if opts.WithTarget {
		header = append(header, target)
	}

	bar := newBar(opts.Progress, opts.Count, d)
	rows := make([][]string, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		cells, co2 := row(i)
		if opts.WithTarget {
			cells = append(cells, formatFloat(round2(co2)))
		}
		rows = append(rows, cells)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return domain.Table{Header: header, Rows: rows}, nil
}

type generator struct {
	fake   faker.Faker
	cities []string
	seen   map[string]struct{}
}

// vehicle returns the cells of one vehicle in schema order and its emission.
func (g *generator) vehicle(_ int) ([]string, float64) {
	id := g.vehicleNumber()
	vehicleType := g.fake.RandomStringElement(vehicleTypes)
	fuel := g.fake.RandomStringElement(vehicleFuels)
	age := g.fake.IntBetween(1, 12)
	cc := engineSizes[g.fake.IntBetween(0, len(engineSizes)-1)]
	mileage := round2(g.fake.Float64(2, 5, 50))
	distance := g.fake.IntBetween(400, 3000)
	lastService := g.fake.IntBetween(1, 12)
	condition := g.fake.IntBetween(4, 10)
	fuelMonthly := float64(distance) / mileage
	city := g.fake.RandomStringElement(g.cities)

	co2 := float64(cc)*0.02 + float64(age)*2 + (50-mileage)*1.5 + fuelMonthly*0.5

	return []string{
		id,
		vehicleType,
		fuel,
		strconv.Itoa(age),
		strconv.Itoa(cc),
		formatFloat(mileage),
		strconv.Itoa(distance),
		strconv.Itoa(lastService),
		strconv.Itoa(condition),
		formatFloat(round2(fuelMonthly)),
		city,
	}, co2
}

// industry returns the cells of one facility in schema order and its emission.
func (g *generator) industry(i int) ([]string, float64) {
	industryType := g.fake.RandomStringElement(industryTypes)
	fuel := g.fake.RandomStringElement(industryFuels)
	electricity := g.fake.IntBetween(5000, 200000)
	production := g.fake.IntBetween(200, 6000)
	waste := g.fake.IntBetween(5, 400)
	consumption := g.fake.IntBetween(50, 1000)
	hours := g.fake.IntBetween(400, 750)
	age := g.fake.IntBetween(2, 25)
	pollution := g.fake.RandomStringElement(pollutionFlags)
	city := g.fake.RandomStringElement(g.cities)

	co2 := float64(electricity)*0.002 + float64(consumption)*0.8 + float64(age)*3 + float64(waste)*0.5

	return []string{
		fmt.Sprintf("Industry_%d", i+1),
		industryType,
		fuel,
		strconv.Itoa(electricity),
		strconv.Itoa(production),
		strconv.Itoa(waste),
		strconv.Itoa(consumption),
		strconv.Itoa(hours),
		strconv.Itoa(age),
		pollution,
		city,
	}, co2
}

// vehicleNumber draws registration numbers until it finds an unused one.
func (g *generator) vehicleNumber() string {
	for {
		id := fmt.Sprintf("TN%dAB%d", g.fake.IntBetween(10, 99), g.fake.IntBetween(1000, 9999))
		if _, dup := g.seen[id]; !dup {
			g.seen[id] = struct{}{}
			return id
		}
	}
}

func newBar(w io.Writer, n int, d domain.Domain) *progressbar.ProgressBar {
	if w == nil {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("generating "+d.Plural()),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
