package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shuleplus/grading-engine/internal/models"
	appErrors "github.com/shuleplus/grading-engine/pkg/errors"
)

// GradingService converts raw marks into letter grades and letter grades
// into point values under an explicit scheme. Both directions propagate nil
// ("not assessed") instead of defaulting.
type GradingService struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewGradingService constructs GradingService.
func NewGradingService(logger *zap.Logger, metrics *MetricsService) *GradingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingService{logger: logger, metrics: metrics}
}

// Classify maps a raw mark onto the scheme's letter grade. Marks are
// normalised to a 0-100 scale before thresholds apply, so non-100 max marks
// are supported. Band lower bounds are inclusive; out-of-range marks are an
// error, never clamped.
func (s *GradingService) Classify(marks *float64, maxMarks float64, scheme *models.GradingScheme) (*models.Grade, error) {
	if scheme == nil {
		return nil, appErrors.Clone(appErrors.ErrSchemeInvalid, "scheme is required")
	}
	if marks == nil {
		return nil, nil
	}
	if maxMarks <= 0 {
		s.metrics.ObserveValidationError()
		return nil, appErrors.Clone(appErrors.ErrMarksOutOfRange, fmt.Sprintf("max marks %.2f must be positive", maxMarks))
	}
	if *marks < 0 || *marks > maxMarks {
		s.metrics.ObserveValidationError()
		return nil, appErrors.Clone(appErrors.ErrMarksOutOfRange,
			fmt.Sprintf("marks %.2f outside 0..%.2f", *marks, maxMarks))
	}

	percent := *marks / maxMarks * 100
	grade := scheme.FallbackGrade
	for _, band := range scheme.GradeBands {
		if percent >= band.MinPercent {
			grade = band.Grade
			break
		}
	}

	s.metrics.ObserveClassification(scheme.Level, grade)
	return &grade, nil
}

// ToPoints maps a letter grade onto the scheme's point value. Lower points
// mean better performance. An unknown letter is an error, not a default.
func (s *GradingService) ToPoints(grade *models.Grade, scheme *models.GradingScheme) (*int, error) {
	if scheme == nil {
		return nil, appErrors.Clone(appErrors.ErrSchemeInvalid, "scheme is required")
	}
	if grade == nil {
		return nil, nil
	}
	points, ok := scheme.Points[*grade]
	if !ok {
		s.metrics.ObserveValidationError()
		return nil, appErrors.Clone(appErrors.ErrUnknownGrade,
			fmt.Sprintf("grade %q not part of scheme %s", *grade, scheme.Name))
	}
	return &points, nil
}
