package service

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/shuleplus/grading-engine/internal/models"
	appErrors "github.com/shuleplus/grading-engine/pkg/errors"
)

// RankingService orders a cohort of aggregates and assigns dense ranks: ties
// share a rank and the next distinct value takes rank+1, which is what the
// "rank N of M" report rows expect.
type RankingService struct {
	logger *zap.Logger
}

// NewRankingService constructs RankingService.
func NewRankingService(logger *zap.Logger) *RankingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankingService{logger: logger}
}

// rankKey is the comparable ordering metric for one aggregate. Students
// without a primary metric sort after everyone with one and order among
// themselves by total points.
type rankKey struct {
	undefined bool
	primary   float64
	secondary float64
}

func (k rankKey) less(other rankKey) bool {
	if k.undefined != other.undefined {
		return !k.undefined
	}
	if k.primary != other.primary {
		return k.primary < other.primary
	}
	return k.secondary < other.secondary
}

// equal decides rank ties. Defined students tie on the primary metric alone;
// the secondary key orders them for display without splitting the rank.
// Undefined students tie on the secondary, the only metric they have.
func (k rankKey) equal(other rankKey) bool {
	if k.undefined != other.undefined {
		return false
	}
	if k.undefined {
		return k.secondary == other.secondary
	}
	return k.primary == other.primary
}

// AssignRanks populates Rank in place and returns the aggregates sorted by
// ranking order. The caller passes exactly the cohort to rank; Form 5 and
// Form 6 never meet in one call.
func (s *RankingService) AssignRanks(aggregates []*models.StudentAggregate, scheme *models.GradingScheme) ([]*models.StudentAggregate, error) {
	if scheme == nil {
		return nil, appErrors.Clone(appErrors.ErrSchemeInvalid, "scheme is required")
	}
	for _, agg := range aggregates {
		if agg == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cohort contains a nil aggregate")
		}
		if agg.Level != scheme.Level {
			return nil, appErrors.Clone(appErrors.ErrSchemeMismatch,
				fmt.Sprintf("student %s aggregated under level %s, cohort scheme is %s", agg.StudentID, agg.Level, scheme.Level))
		}
	}

	ranked := append([]*models.StudentAggregate(nil), aggregates...)
	keys := make(map[*models.StudentAggregate]rankKey, len(ranked))
	for _, agg := range ranked {
		keys[agg] = keyFor(agg, scheme.Level)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		ki, kj := keys[ranked[i]], keys[ranked[j]]
		if ki == kj {
			return ranked[i].StudentID < ranked[j].StudentID
		}
		return ki.less(kj)
	})

	rank := 0
	for i, agg := range ranked {
		if i == 0 || !keys[agg].equal(keys[ranked[i-1]]) {
			rank++
		}
		r := rank
		agg.Rank = &r
	}

	s.logger.Debug("cohort ranked",
		zap.String("level", string(scheme.Level)),
		zap.Int("cohort_size", len(ranked)))
	return ranked, nil
}

func keyFor(agg *models.StudentAggregate, level models.EducationLevel) rankKey {
	key := rankKey{undefined: true, secondary: math.MaxFloat64}
	if agg.TotalPoints != nil {
		key.secondary = float64(*agg.TotalPoints)
	}
	switch level {
	case models.ALevel:
		if agg.BestPrincipalPoints != nil {
			key.undefined = false
			key.primary = float64(*agg.BestPrincipalPoints)
		}
	case models.OLevel:
		if agg.AveragePoints != nil {
			key.undefined = false
			key.primary = *agg.AveragePoints
		}
	}
	return key
}
