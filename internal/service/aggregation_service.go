package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shuleplus/grading-engine/internal/models"
	"github.com/shuleplus/grading-engine/pkg/batch"
	appErrors "github.com/shuleplus/grading-engine/pkg/errors"
)

// DefaultMaxMarks applies when a subject result carries no max marks of its
// own and the caller sets no override.
const DefaultMaxMarks = 100

// AggregateOptions tunes a single aggregation call. Zero values fall back to
// the scheme's best-principal count and the package default max marks.
type AggregateOptions struct {
	BestPrincipalCount int
	DefaultMaxMarks    float64
}

// AggregationService computes per-student summaries: totals, averages,
// points, the A-Level best-N principal selection and the division. It is a
// pure function over its inputs; input slices are never mutated.
type AggregationService struct {
	grading  *GradingService
	ranking  *RankingService
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *MetricsService
	workers  int
}

// NewAggregationService constructs AggregationService. workers bounds cohort
// batch concurrency.
func NewAggregationService(grading *GradingService, ranking *RankingService, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, workers int) *AggregationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	if grading == nil {
		grading = NewGradingService(logger, metrics)
	}
	if ranking == nil {
		ranking = NewRankingService(logger)
	}
	return &AggregationService{
		grading:  grading,
		ranking:  ranking,
		validate: validate,
		logger:   logger,
		metrics:  metrics,
		workers:  workers,
	}
}

// Aggregate grades every subject and folds the results into a
// StudentAggregate. Subjects with nil marks stay in the breakdown with nil
// grade and points but are excluded from every sum and denominator.
func (s *AggregationService) Aggregate(studentID string, results []models.SubjectResult, scheme *models.GradingScheme, opts AggregateOptions) (*models.StudentAggregate, error) {
	start := time.Now()
	if scheme == nil {
		return nil, appErrors.Clone(appErrors.ErrSchemeInvalid, "scheme is required")
	}
	if !scheme.Level.Valid() {
		return nil, appErrors.Clone(appErrors.ErrSchemeInvalid, fmt.Sprintf("scheme %s has unknown level %q", scheme.Name, scheme.Level))
	}

	defaultMax := opts.DefaultMaxMarks
	if defaultMax <= 0 {
		defaultMax = DefaultMaxMarks
	}

	seen := make(map[string]bool, len(results))
	graded := make([]models.SubjectResult, len(results))
	copy(graded, results)

	agg := &models.StudentAggregate{
		StudentID: studentID,
		Level:     scheme.Level,
	}

	totalPoints := 0
	gradedPoints := 0
	for i := range graded {
		r := &graded[i]
		if err := s.validate.Struct(r); err != nil {
			s.metrics.ObserveValidationError()
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, fmt.Sprintf("invalid result for subject %q", r.SubjectCode))
		}
		if seen[r.SubjectCode] {
			s.metrics.ObserveValidationError()
			return nil, appErrors.Clone(appErrors.ErrDuplicateSubject, fmt.Sprintf("subject %s appears twice", r.SubjectCode))
		}
		seen[r.SubjectCode] = true

		if r.MaxMarks <= 0 {
			r.MaxMarks = defaultMax
		}
		grade, err := s.grading.Classify(r.MarksObtained, r.MaxMarks, scheme)
		if err != nil {
			return nil, err
		}
		r.Grade = grade
		points, err := s.grading.ToPoints(grade, scheme)
		if err != nil {
			return nil, err
		}
		r.Points = points

		if r.MarksObtained != nil {
			agg.TotalMarks += *r.MarksObtained
			agg.GradedSubjects++
		}
		if points != nil {
			totalPoints += *points
			gradedPoints++
		}
	}
	agg.SubjectResults = graded

	if agg.GradedSubjects > 0 {
		agg.AverageMarks = agg.TotalMarks / float64(agg.GradedSubjects)
	}
	if gradedPoints > 0 {
		agg.TotalPoints = &totalPoints
	}

	switch scheme.Level {
	case models.ALevel:
		agg.BestPrincipalPoints = bestPrincipalPoints(graded, bestCount(opts, scheme))
	case models.OLevel:
		if gradedPoints > 0 {
			avg := float64(totalPoints) / float64(gradedPoints)
			agg.AveragePoints = &avg
		}
	}

	division, err := s.ClassifyDivision(agg, scheme)
	if err != nil {
		return nil, err
	}
	agg.Division = division

	s.metrics.ObserveAggregation(scheme.Level, time.Since(start))
	return agg, nil
}

// ClassifyDivision maps an aggregate's points metric onto the scheme's
// division table. A-Level runs on the best-principal sum, O-Level on average
// points per graded subject. Values outside the table, including undefined
// ones, classify as N/A rather than the nearest band.
func (s *AggregationService) ClassifyDivision(agg *models.StudentAggregate, scheme *models.GradingScheme) (models.Division, error) {
	if scheme == nil {
		return models.DivisionNA, appErrors.Clone(appErrors.ErrSchemeInvalid, "scheme is required")
	}
	if agg == nil {
		return models.DivisionNA, appErrors.Clone(appErrors.ErrValidation, "aggregate is required")
	}
	if agg.Level != "" && agg.Level != scheme.Level {
		s.metrics.ObserveValidationError()
		return models.DivisionNA, appErrors.Clone(appErrors.ErrSchemeMismatch,
			fmt.Sprintf("aggregate level %s does not match scheme level %s", agg.Level, scheme.Level))
	}

	var value float64
	switch scheme.Level {
	case models.ALevel:
		if agg.BestPrincipalPoints == nil {
			s.metrics.ObserveDivision(scheme.Level, models.DivisionNA)
			return models.DivisionNA, nil
		}
		value = float64(*agg.BestPrincipalPoints)
	case models.OLevel:
		if agg.GradedSubjects == 0 || agg.AveragePoints == nil {
			s.metrics.ObserveDivision(scheme.Level, models.DivisionNA)
			return models.DivisionNA, nil
		}
		value = *agg.AveragePoints
	default:
		return models.DivisionNA, appErrors.Clone(appErrors.ErrSchemeInvalid, fmt.Sprintf("unknown level %q", scheme.Level))
	}

	division := classifyBands(value, scheme.DivisionBands)
	s.metrics.ObserveDivision(scheme.Level, division)
	return division, nil
}

// AggregateCohort aggregates many students on a bounded worker pool,
// preserving input order. Individual aggregations are independent, so the
// fan-out is safe; the first validation error aborts the batch.
func (s *AggregationService) AggregateCohort(ctx context.Context, entries []models.CohortEntry, scheme *models.GradingScheme, opts AggregateOptions) ([]*models.StudentAggregate, error) {
	if scheme == nil {
		return nil, appErrors.Clone(appErrors.ErrSchemeInvalid, "scheme is required")
	}
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if err := s.validate.Struct(entry); err != nil {
			s.metrics.ObserveValidationError()
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid cohort entry")
		}
		if seen[entry.StudentID] {
			s.metrics.ObserveValidationError()
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears twice in cohort", entry.StudentID))
		}
		seen[entry.StudentID] = true
	}

	batchID := uuid.New().String()
	start := time.Now()
	aggregates, err := batch.Run(ctx, entries, s.workers, s.logger, func(ctx context.Context, entry models.CohortEntry) (*models.StudentAggregate, error) {
		return s.Aggregate(entry.StudentID, entry.Results, scheme, opts)
	})
	if err != nil {
		s.logger.Warn("cohort aggregation failed",
			zap.String("batch_id", batchID),
			zap.Int("cohort_size", len(entries)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("cohort aggregated",
		zap.String("batch_id", batchID),
		zap.String("scheme", scheme.Name),
		zap.Int("cohort_size", len(entries)),
		zap.Duration("elapsed", time.Since(start)))
	return aggregates, nil
}

// AggregateAndRank runs the full cohort pipeline: aggregate every student,
// then assign dense ranks across the cohort.
func (s *AggregationService) AggregateAndRank(ctx context.Context, entries []models.CohortEntry, scheme *models.GradingScheme, opts AggregateOptions) ([]*models.StudentAggregate, error) {
	aggregates, err := s.AggregateCohort(ctx, entries, scheme, opts)
	if err != nil {
		return nil, err
	}
	return s.ranking.AssignRanks(aggregates, scheme)
}

func bestCount(opts AggregateOptions, scheme *models.GradingScheme) int {
	if opts.BestPrincipalCount > 0 {
		return opts.BestPrincipalCount
	}
	if scheme.BestPrincipalCount > 0 {
		return scheme.BestPrincipalCount
	}
	return 3
}

// bestPrincipalPoints sums the lowest-point principal subjects, ties broken
// by subject code for determinism. Fewer graded principals than requested
// yields nil: the division cannot be computed over a partial combination.
func bestPrincipalPoints(results []models.SubjectResult, count int) *int {
	type principal struct {
		code   string
		points int
	}
	principals := make([]principal, 0, len(results))
	for _, r := range results {
		if r.IsPrincipal && r.Points != nil {
			principals = append(principals, principal{code: r.SubjectCode, points: *r.Points})
		}
	}
	if len(principals) < count {
		return nil
	}
	sort.Slice(principals, func(i, j int) bool {
		if principals[i].points != principals[j].points {
			return principals[i].points < principals[j].points
		}
		return principals[i].code < principals[j].code
	})
	sum := 0
	for _, p := range principals[:count] {
		sum += p.points
	}
	return &sum
}

// classifyBands walks the ascending division table. Values below the table
// floor or above its ceiling have no division.
func classifyBands(value float64, bands []models.DivisionBand) models.Division {
	if len(bands) == 0 {
		return models.DivisionNA
	}
	if value < bands[0].Min || value > bands[len(bands)-1].Max {
		return models.DivisionNA
	}
	for _, band := range bands {
		if value <= band.Max {
			return band.Division
		}
	}
	return models.DivisionNA
}
