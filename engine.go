// Package grading computes letter grades, points, aggregates, divisions and
// cohort ranks for O-Level and A-Level result sets. It is a pure, stateless
// library: callers feed it in-memory subject results and render whatever it
// returns; persistence and transport live elsewhere.
package grading

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/shuleplus/grading-engine/internal/models"
	"github.com/shuleplus/grading-engine/internal/service"
	"github.com/shuleplus/grading-engine/pkg/config"
	"github.com/shuleplus/grading-engine/pkg/logger"
)

// Re-exported domain types; the internal packages are not importable.
type (
	EducationLevel   = models.EducationLevel
	Grade            = models.Grade
	Division         = models.Division
	SubjectResult    = models.SubjectResult
	StudentAggregate = models.StudentAggregate
	CohortEntry      = models.CohortEntry
	GradingScheme    = models.GradingScheme
	GradeBand        = models.GradeBand
	DivisionBand     = models.DivisionBand

	AggregateOptions = service.AggregateOptions
)

// Domain constants.
const (
	OLevel = models.OLevel
	ALevel = models.ALevel

	GradeA = models.GradeA
	GradeB = models.GradeB
	GradeC = models.GradeC
	GradeD = models.GradeD
	GradeE = models.GradeE
	GradeS = models.GradeS
	GradeF = models.GradeF

	DivisionI    = models.DivisionI
	DivisionII   = models.DivisionII
	DivisionIII  = models.DivisionIII
	DivisionIV   = models.DivisionIV
	DivisionV    = models.DivisionV
	DivisionZero = models.DivisionZero
	DivisionNA   = models.DivisionNA
)

// Engine bundles the computation services behind one construction point.
type Engine struct {
	schemes     *service.SchemeService
	grading     *service.GradingService
	aggregation *service.AggregationService
	ranking     *service.RankingService
	metrics     *service.MetricsService

	// opts carries the configured aggregation defaults; zero-valued caller
	// options fall back to them.
	opts AggregateOptions

	logger *zap.Logger
}

// New builds an Engine from configuration. A nil config uses environment
// defaults; a nil logger is built from the config's log settings.
func New(cfg *config.Config, log *zap.Logger) (*Engine, error) {
	var err error
	if cfg == nil {
		cfg, err = config.Load()
		if err != nil {
			return nil, err
		}
	}
	if log == nil {
		log, err = logger.New(cfg)
		if err != nil {
			return nil, err
		}
	}

	validate := validator.New()

	var metrics *service.MetricsService
	if cfg.Grading.MetricsEnabled {
		metrics = service.NewMetricsService()
	}

	schemes := service.NewSchemeService(validate, log)
	if cfg.Grading.SchemeDir != "" {
		if _, err := schemes.LoadDir(cfg.Grading.SchemeDir); err != nil {
			return nil, err
		}
	}

	grading := service.NewGradingService(log, metrics)
	ranking := service.NewRankingService(log)
	aggregation := service.NewAggregationService(grading, ranking, validate, log, metrics, cfg.Grading.BatchWorkers)

	return &Engine{
		schemes:     schemes,
		grading:     grading,
		aggregation: aggregation,
		ranking:     ranking,
		metrics:     metrics,
		opts: AggregateOptions{
			BestPrincipalCount: cfg.Grading.BestPrincipalCount,
			DefaultMaxMarks:    cfg.Grading.DefaultMaxMarks,
		},
		logger: log,
	}, nil
}

// fillOptions backfills zero-valued caller options with the configured
// engine defaults.
func (e *Engine) fillOptions(opts AggregateOptions) AggregateOptions {
	if opts.BestPrincipalCount <= 0 {
		opts.BestPrincipalCount = e.opts.BestPrincipalCount
	}
	if opts.DefaultMaxMarks <= 0 {
		opts.DefaultMaxMarks = e.opts.DefaultMaxMarks
	}
	return opts
}

// NewDefault builds an Engine with built-in schemes, a no-op logger and no
// metrics. Suitable for tests and embedded use.
func NewDefault() *Engine {
	engine, err := New(&config.Config{
		Grading: config.GradingConfig{BestPrincipalCount: 3, DefaultMaxMarks: service.DefaultMaxMarks, BatchWorkers: 4},
	}, zap.NewNop())
	if err != nil {
		// Only configuration I/O can fail, and this path performs none.
		panic(err)
	}
	return engine
}

// Scheme returns the active scheme for a level.
func (e *Engine) Scheme(level EducationLevel) (*GradingScheme, error) {
	return e.schemes.Default(level)
}

// RegisterScheme validates and registers a custom scheme version.
func (e *Engine) RegisterScheme(scheme *GradingScheme) error {
	return e.schemes.Register(scheme)
}

// SetDefaultScheme points a level at a registered scheme.
func (e *Engine) SetDefaultScheme(level EducationLevel, name string) error {
	return e.schemes.SetDefault(level, name)
}

// Classify maps raw marks onto a letter grade under the level's active
// scheme. Nil marks yield a nil grade.
func (e *Engine) Classify(marks *float64, maxMarks float64, level EducationLevel) (*Grade, error) {
	scheme, err := e.schemes.Default(level)
	if err != nil {
		return nil, err
	}
	return e.grading.Classify(marks, maxMarks, scheme)
}

// ToPoints maps a letter grade onto its point value under the level's active
// scheme. Nil grades yield nil points.
func (e *Engine) ToPoints(grade *Grade, level EducationLevel) (*int, error) {
	scheme, err := e.schemes.Default(level)
	if err != nil {
		return nil, err
	}
	return e.grading.ToPoints(grade, scheme)
}

// Aggregate computes one student's summary under the level's active scheme.
func (e *Engine) Aggregate(studentID string, results []SubjectResult, level EducationLevel, opts AggregateOptions) (*StudentAggregate, error) {
	scheme, err := e.schemes.Default(level)
	if err != nil {
		return nil, err
	}
	return e.aggregation.Aggregate(studentID, results, scheme, e.fillOptions(opts))
}

// ClassifyDivision maps an aggregate onto its division band.
func (e *Engine) ClassifyDivision(agg *StudentAggregate, level EducationLevel) (Division, error) {
	scheme, err := e.schemes.Default(level)
	if err != nil {
		return DivisionNA, err
	}
	return e.aggregation.ClassifyDivision(agg, scheme)
}

// AssignRanks orders a cohort and assigns dense ranks in place.
func (e *Engine) AssignRanks(aggregates []*StudentAggregate, level EducationLevel) ([]*StudentAggregate, error) {
	scheme, err := e.schemes.Default(level)
	if err != nil {
		return nil, err
	}
	return e.ranking.AssignRanks(aggregates, scheme)
}

// AggregateCohort aggregates many students concurrently, preserving order.
func (e *Engine) AggregateCohort(ctx context.Context, entries []CohortEntry, level EducationLevel, opts AggregateOptions) ([]*StudentAggregate, error) {
	scheme, err := e.schemes.Default(level)
	if err != nil {
		return nil, err
	}
	return e.aggregation.AggregateCohort(ctx, entries, scheme, e.fillOptions(opts))
}

// AggregateAndRank runs the full cohort pipeline: per-student aggregation
// followed by dense ranking.
func (e *Engine) AggregateAndRank(ctx context.Context, entries []CohortEntry, level EducationLevel, opts AggregateOptions) ([]*StudentAggregate, error) {
	scheme, err := e.schemes.Default(level)
	if err != nil {
		return nil, err
	}
	return e.aggregation.AggregateAndRank(ctx, entries, scheme, e.fillOptions(opts))
}

// MetricsHandler serves the engine's Prometheus scrape endpoint, or nil when
// metrics are disabled. Mounting it is the embedding application's business.
func (e *Engine) MetricsHandler() http.Handler {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.Handler()
}

// MetricsRegistry exposes the engine's collector registry, or nil when
// metrics are disabled.
func (e *Engine) MetricsRegistry() *prometheus.Registry {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.Registry()
}
