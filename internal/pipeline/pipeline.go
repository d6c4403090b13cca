// Package pipeline orchestrates a scoring run: load the raw table, encode,
// geocode, predict, classify, then replace the result table and notify sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lucsky/cuid"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/observability"
)

// ErrNonFinitePrediction is returned when the model scores a record as NaN or Inf.
var ErrNonFinitePrediction = errors.New("non-finite prediction")

const sinkTimeout = 30 * time.Second

// Store reads raw tables and atomically replaces result tables.
type Store interface {
	ReadRaw(d domain.Domain) (domain.Table, error)
	WriteResults(d domain.Domain, t domain.Table) error
}

// Scorer turns a record into a feature vector and scores vectors in bulk.
// *model.Model implements it.
type Scorer interface {
	Vectorize(rec domain.RawRecord, coord domain.Geocoordinate) ([]float64, error)
	PredictBatch(rows [][]float64) ([]float64, error)
}

// Policy decides what an unknown categorical value does to a run.
type Policy string

const (
	PolicyFail Policy = "fail"
	PolicySkip Policy = "skip"
)

// ParsePolicy accepts "fail" or "skip".
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFail, PolicySkip:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown category policy %q (want fail or skip)", s)
	}
}

// DomainConfig is the model and threshold of one domain.
type DomainConfig struct {
	Scorer    Scorer
	Threshold float64
}

// Config wires a Pipeline.
type Config struct {
	Domains            map[domain.Domain]DomainConfig
	Store              Store
	Geocoder           domain.Geocoder // nil disables geocoding
	GeocodeConcurrency int
	UnknownCategory    Policy
	Sinks              []domain.ResultSink
	Clock              clockwork.Clock
	Logger             *slog.Logger
	Metrics            *observability.Metrics
}

// RunResult summarizes one completed run.
type RunResult struct {
	Domain          domain.Domain           `json:"domain"`
	RunID           string                  `json:"run_id"`
	StartedAt       time.Time               `json:"started_at"`
	CompletedAt     time.Time               `json:"completed_at"`
	Records         int                     `json:"records"`
	High            int                     `json:"high"`
	Safe            int                     `json:"safe"`
	Skipped         int                     `json:"skipped"`
	GeocodeFailures []domain.GeocodeFailure `json:"-"`
}

// Pipeline runs load, encode, geocode, predict, classify and store for one
// domain at a time. Runs of different domains may execute concurrently; a
// second run of the same domain is rejected with domain.ErrRunInProgress.
type Pipeline struct {
	domains     map[domain.Domain]DomainConfig
	store       Store
	geocoder    domain.Geocoder
	concurrency int
	policy      Policy
	sinks       []domain.ResultSink
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics

	locks  map[domain.Domain]*sync.Mutex
	status *statusTracker
}

// New creates a Pipeline. Missing clock, policy and concurrency take defaults.
func New(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.UnknownCategory == "" {
		cfg.UnknownCategory = PolicyFail
	}
	if cfg.GeocodeConcurrency < 1 {
		cfg.GeocodeConcurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetricsForTesting()
	}

	var names []domain.Domain
	locks := make(map[domain.Domain]*sync.Mutex, len(cfg.Domains))
	for _, d := range domain.All() {
		if _, ok := cfg.Domains[d]; ok {
			names = append(names, d)
			locks[d] = &sync.Mutex{}
		}
	}

	cfg.Metrics.GeocodeEnabled.Set(0)
	if cfg.Geocoder != nil {
		cfg.Metrics.GeocodeEnabled.Set(1)
	}

	return &Pipeline{
		domains:     cfg.Domains,
		store:       cfg.Store,
		geocoder:    cfg.Geocoder,
		concurrency: cfg.GeocodeConcurrency,
		policy:      cfg.UnknownCategory,
		sinks:       cfg.Sinks,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		locks:       locks,
		status:      newStatusTracker(names),
	}
}

// Domains lists the configured domains in run order.
func (p *Pipeline) Domains() []domain.Domain {
	var out []domain.Domain
	for _, d := range domain.All() {
		if _, ok := p.domains[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// CheckReadiness returns nil once every configured domain has a loaded model.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if len(p.domains) == 0 {
		return errors.New("no domains configured")
	}
	for d, dc := range p.domains {
		if dc.Scorer == nil {
			return fmt.Errorf("model for %s not loaded", d)
		}
	}
	return nil
}

// Status returns the last known run of d.
func (p *Pipeline) Status(d domain.Domain) (RunStatus, error) {
	s, ok := p.status.get(d)
	if !ok {
		return RunStatus{}, fmt.Errorf("%w: %q is not configured", domain.ErrUnknownDomain, d)
	}
	return s, nil
}

// RunAll runs every configured domain in order. A failing domain does not
// stop the others; the failures are joined.
func (p *Pipeline) RunAll(ctx context.Context) ([]RunResult, error) {
	var (
		results []RunResult
		errs    []error
	)
	for _, d := range p.Domains() {
		res, err := p.Run(ctx, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Run scores the raw table of d and replaces its result table. The result
// store is written only after every record has been scored, so a failed run
// leaves the previous table in place.
func (p *Pipeline) Run(ctx context.Context, d domain.Domain) (RunResult, error) {
	dc, ok := p.domains[d]
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %q is not configured", domain.ErrUnknownDomain, d)
	}
	lock := p.locks[d]
	if !lock.TryLock() {
		p.metrics.RunsTotal.WithLabelValues(string(d), "rejected").Inc()
		return RunResult{}, fmt.Errorf("run %s: %w", d, domain.ErrRunInProgress)
	}
	defer lock.Unlock()

	runID := cuid.New()
	started := p.clock.Now()
	logger := p.logger.With("domain", d, "run_id", runID)

	p.status.start(d, runID, started)
	p.metrics.RunInProgress.WithLabelValues(string(d)).Set(1)
	defer p.metrics.RunInProgress.WithLabelValues(string(d)).Set(0)

	logger.Info("run started")
	res, batch, err := p.execute(ctx, d, dc, logger)
	if err != nil {
		// Nothing was committed, so nothing counts as scored.
		res.Records, res.High, res.Safe = 0, 0, 0
	}
	res.Domain = d
	res.RunID = runID
	res.StartedAt = started
	res.CompletedAt = p.clock.Now()

	p.status.finish(d, res, res.CompletedAt, err)
	p.metrics.RunDuration.WithLabelValues(string(d)).Observe(res.CompletedAt.Sub(started).Seconds())

	if err != nil {
		p.metrics.RunsTotal.WithLabelValues(string(d), "failed").Inc()
		logger.Error("run failed", "error", err)
		return res, fmt.Errorf("run %s: %w", d, err)
	}

	p.metrics.RunsTotal.WithLabelValues(string(d), "succeeded").Inc()
	p.metrics.LastSuccess.WithLabelValues(string(d)).Set(float64(res.CompletedAt.Unix()))
	p.metrics.RecordsScored.WithLabelValues(string(d), string(domain.StatusHigh)).Add(float64(res.High))
	p.metrics.RecordsScored.WithLabelValues(string(d), string(domain.StatusSafe)).Add(float64(res.Safe))
	logger.Info("run succeeded",
		"records", res.Records,
		"high", res.High,
		"safe", res.Safe,
		"skipped", res.Skipped,
		"geocode_failures", len(res.GeocodeFailures),
	)

	batch.Domain = d
	batch.RunID = runID
	batch.CompletedAt = res.CompletedAt
	p.publish(ctx, batch, logger)
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, d domain.Domain, dc DomainConfig, logger *slog.Logger) (RunResult, domain.ResultBatch, error) {
	var res RunResult

	schema, err := domain.SchemaFor(d)
	if err != nil {
		return res, domain.ResultBatch{}, err
	}
	raw, err := p.store.ReadRaw(d)
	if err != nil {
		return res, domain.ResultBatch{}, fmt.Errorf("load raw table: %w", err)
	}
	records, err := domain.ParseRecords(schema, raw)
	if err != nil {
		return res, domain.ResultBatch{}, fmt.Errorf("validate raw table: %w", err)
	}

	// Encode every record before any geocoding request is sent.
	kept, skipped, err := p.admit(d, dc.Scorer, records, logger)
	if err != nil {
		return res, domain.ResultBatch{}, err
	}
	res.Skipped = skipped

	cities := make([]string, len(kept))
	for i, rec := range kept {
		cities[i] = rec.City
	}
	coords, failures, err := domain.ResolveCities(ctx, p.geocoder, cities, p.concurrency, logger)
	if err != nil {
		return res, domain.ResultBatch{}, err
	}
	res.GeocodeFailures = failures

	rows := make([][]float64, len(kept))
	for i, rec := range kept {
		x, err := dc.Scorer.Vectorize(rec, coords[rec.City])
		if err != nil {
			return res, domain.ResultBatch{}, fmt.Errorf("assemble features: %w", err)
		}
		rows[i] = x
	}
	preds, err := dc.Scorer.PredictBatch(rows)
	if err != nil {
		return res, domain.ResultBatch{}, fmt.Errorf("predict: %w", err)
	}
	if len(preds) != len(kept) {
		return res, domain.ResultBatch{}, fmt.Errorf("predict: %d predictions for %d records: %w", len(preds), len(kept), domain.ErrSchemaMismatch)
	}

	scored := make([]domain.ScoredRecord, len(kept))
	high := 0
	for i, rec := range kept {
		if math.IsNaN(preds[i]) || math.IsInf(preds[i], 0) {
			return res, domain.ResultBatch{}, fmt.Errorf("record %s (line %d): %w", rec.ID, rec.Line, ErrNonFinitePrediction)
		}
		status := domain.Classify(preds[i], dc.Threshold)
		if status == domain.StatusHigh {
			high++
		}
		scored[i] = domain.ScoredRecord{
			Record:       rec,
			Coord:        coords[rec.City],
			PredictedCO2: preds[i],
			Status:       status,
		}
	}
	res.Records = len(scored)
	res.High, res.Safe = high, len(scored)-high

	if err := ctx.Err(); err != nil {
		return res, domain.ResultBatch{}, err
	}
	table := domain.BuildResultTable(raw.Header, scored)
	if err := p.store.WriteResults(d, table); err != nil {
		return res, domain.ResultBatch{}, fmt.Errorf("store results: %w", err)
	}
	return res, domain.ResultBatch{Table: table, Records: scored}, nil
}

// admit applies the unknown-category policy. Any other vectorization error is fatal.
func (p *Pipeline) admit(d domain.Domain, sc Scorer, records []domain.RawRecord, logger *slog.Logger) ([]domain.RawRecord, int, error) {
	kept := make([]domain.RawRecord, 0, len(records))
	skipped := 0
	for _, rec := range records {
		_, err := sc.Vectorize(rec, domain.MissingCoordinate)
		switch {
		case err == nil:
			kept = append(kept, rec)
		case errors.Is(err, domain.ErrUnknownCategory) && p.policy == PolicySkip:
			skipped++
			p.metrics.RecordsSkipped.WithLabelValues(string(d), "unknown_category").Inc()
			logger.Warn("record skipped", "id", rec.ID, "line", rec.Line, "error", err)
		default:
			return nil, 0, fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
	}
	return kept, skipped, nil
}

// publish fans the committed batch out to every sink. Failures are logged and
// counted; the run has already succeeded.
func (p *Pipeline) publish(ctx context.Context, batch domain.ResultBatch, logger *slog.Logger) {
	if len(p.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	for _, s := range p.sinks {
		if err := s.Publish(ctx, batch); err != nil {
			p.metrics.SinkWrites.WithLabelValues(s.Name(), "error").Inc()
			logger.Warn("result sink failed", "sink", s.Name(), "error", err)
			continue
		}
		p.metrics.SinkWrites.WithLabelValues(s.Name(), "success").Inc()
	}
}
