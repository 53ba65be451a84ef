package service

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shuleplus/grading-engine/internal/models"
	appErrors "github.com/shuleplus/grading-engine/pkg/errors"
)

// Built-in scheme names. The thresholds are the consolidated tables used
// across the legacy report screens; school-specific variants are registered
// from scheme files.
const (
	SchemeOLevelDefault = "O_LEVEL_DEFAULT"
	SchemeALevelDefault = "A_LEVEL_DEFAULT"
)

func defaultOLevelScheme() *models.GradingScheme {
	return &models.GradingScheme{
		Name:  SchemeOLevelDefault,
		Level: models.OLevel,
		GradeBands: []models.GradeBand{
			{MinPercent: 80, Grade: models.GradeA},
			{MinPercent: 65, Grade: models.GradeB},
			{MinPercent: 50, Grade: models.GradeC},
			{MinPercent: 40, Grade: models.GradeD},
		},
		FallbackGrade: models.GradeF,
		Points: map[models.Grade]int{
			models.GradeA: 1,
			models.GradeB: 2,
			models.GradeC: 3,
			models.GradeD: 4,
			models.GradeF: 5,
		},
		// O-Level divisions run on average points per graded subject.
		DivisionBands: []models.DivisionBand{
			{Min: 1.0, Max: 1.4, Division: models.DivisionI},
			{Min: 1.5, Max: 2.4, Division: models.DivisionII},
			{Min: 2.5, Max: 3.4, Division: models.DivisionIII},
			{Min: 3.5, Max: 4.4, Division: models.DivisionIV},
			{Min: 4.5, Max: 5.0, Division: models.DivisionZero},
		},
	}
}

func defaultALevelScheme() *models.GradingScheme {
	return &models.GradingScheme{
		Name:  SchemeALevelDefault,
		Level: models.ALevel,
		GradeBands: []models.GradeBand{
			{MinPercent: 80, Grade: models.GradeA},
			{MinPercent: 70, Grade: models.GradeB},
			{MinPercent: 60, Grade: models.GradeC},
			{MinPercent: 50, Grade: models.GradeD},
			{MinPercent: 40, Grade: models.GradeE},
			{MinPercent: 35, Grade: models.GradeS},
		},
		FallbackGrade: models.GradeF,
		Points: map[models.Grade]int{
			models.GradeA: 1,
			models.GradeB: 2,
			models.GradeC: 3,
			models.GradeD: 4,
			models.GradeE: 5,
			models.GradeS: 6,
			models.GradeF: 7,
		},
		// A-Level divisions run on the best-3 principal points sum.
		DivisionBands: []models.DivisionBand{
			{Min: 3, Max: 9, Division: models.DivisionI},
			{Min: 10, Max: 12, Division: models.DivisionII},
			{Min: 13, Max: 17, Division: models.DivisionIII},
			{Min: 18, Max: 19, Division: models.DivisionIV},
			{Min: 20, Max: 21, Division: models.DivisionV},
		},
		BestPrincipalCount: 3,
	}
}

// SchemeService holds validated grading schemes and hands out immutable
// copies. Every scheme passes Validate before it can be served; that is the
// guard against overlapping or gapped band tables.
type SchemeService struct {
	validate *validator.Validate
	logger   *zap.Logger

	mu       sync.RWMutex
	schemes  map[string]*models.GradingScheme
	defaults map[models.EducationLevel]string
}

// NewSchemeService constructs a registry pre-seeded with the built-in
// O-Level and A-Level schemes.
func NewSchemeService(validate *validator.Validate, logger *zap.Logger) *SchemeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SchemeService{
		validate: validate,
		logger:   logger,
		schemes:  make(map[string]*models.GradingScheme),
		defaults: make(map[models.EducationLevel]string),
	}
	for _, scheme := range []*models.GradingScheme{defaultOLevelScheme(), defaultALevelScheme()} {
		if err := s.Register(scheme); err != nil {
			// Built-ins are fixed tables; a failure here is a programming error.
			panic(err)
		}
		s.defaults[scheme.Level] = scheme.Name
	}
	return s
}

// Default returns the scheme currently serving a level.
func (s *SchemeService) Default(level models.EducationLevel) (*models.GradingScheme, error) {
	if !level.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown education level %q", level))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.defaults[level]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrSchemeNotFound, fmt.Sprintf("no default scheme for level %s", level))
	}
	return s.schemes[name].Clone(), nil
}

// Get returns a registered scheme by name.
func (s *SchemeService) Get(name string) (*models.GradingScheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scheme, ok := s.schemes[name]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrSchemeNotFound, fmt.Sprintf("scheme %q not registered", name))
	}
	return scheme.Clone(), nil
}

// Register validates and stores a scheme version under its name.
func (s *SchemeService) Register(scheme *models.GradingScheme) error {
	if err := s.Validate(scheme); err != nil {
		return err
	}
	s.mu.Lock()
	s.schemes[scheme.Name] = scheme.Clone()
	s.mu.Unlock()
	s.logger.Info("grading scheme registered",
		zap.String("scheme", scheme.Name),
		zap.String("level", string(scheme.Level)))
	return nil
}

// SetDefault points a level at a previously registered scheme.
func (s *SchemeService) SetDefault(level models.EducationLevel, name string) error {
	if !level.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown education level %q", level))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scheme, ok := s.schemes[name]
	if !ok {
		return appErrors.Clone(appErrors.ErrSchemeNotFound, fmt.Sprintf("scheme %q not registered", name))
	}
	if scheme.Level != level {
		return appErrors.Clone(appErrors.ErrSchemeMismatch, fmt.Sprintf("scheme %q targets level %s", name, scheme.Level))
	}
	s.defaults[level] = name
	return nil
}

// Validate checks a scheme's internal consistency: descending grade bands,
// a complete monotonic points map and closed, ascending division bands that
// neither overlap nor leave gaps between them. A gapped table would let
// classification skip silently into the next band, so it is rejected here.
func (s *SchemeService) Validate(scheme *models.GradingScheme) error {
	if scheme == nil {
		return appErrors.Clone(appErrors.ErrSchemeInvalid, "scheme is nil")
	}
	if err := s.validate.Struct(scheme); err != nil {
		return appErrors.Wrap(err, appErrors.ErrSchemeInvalid.Code, "scheme failed field validation")
	}

	bands := scheme.GradeBands
	for i, band := range bands {
		if i > 0 && band.MinPercent >= bands[i-1].MinPercent {
			return appErrors.Clone(appErrors.ErrSchemeInvalid,
				fmt.Sprintf("grade bands must descend: %s (%.2f) after %s (%.2f)",
					band.Grade, band.MinPercent, bands[i-1].Grade, bands[i-1].MinPercent))
		}
		if _, ok := scheme.Points[band.Grade]; !ok {
			return appErrors.Clone(appErrors.ErrSchemeInvalid,
				fmt.Sprintf("grade %s has no points mapping", band.Grade))
		}
	}
	if _, ok := scheme.Points[scheme.FallbackGrade]; !ok {
		return appErrors.Clone(appErrors.ErrSchemeInvalid,
			fmt.Sprintf("fallback grade %s has no points mapping", scheme.FallbackGrade))
	}

	// Better grades must carry strictly fewer points; ranking depends on it.
	order := make([]models.Grade, 0, len(bands)+1)
	for _, band := range bands {
		order = append(order, band.Grade)
	}
	order = append(order, scheme.FallbackGrade)
	for i := 1; i < len(order); i++ {
		if scheme.Points[order[i]] <= scheme.Points[order[i-1]] {
			return appErrors.Clone(appErrors.ErrSchemeInvalid,
				fmt.Sprintf("points must increase from %s to %s", order[i-1], order[i]))
		}
	}

	divs := scheme.DivisionBands
	step := bandStep(divs)
	for i, band := range divs {
		if band.Max < band.Min {
			return appErrors.Clone(appErrors.ErrSchemeInvalid,
				fmt.Sprintf("division %s has max %.2f below min %.2f", band.Division, band.Max, band.Min))
		}
		if i == 0 {
			continue
		}
		if band.Min <= divs[i-1].Max {
			return appErrors.Clone(appErrors.ErrSchemeInvalid,
				fmt.Sprintf("division bands overlap: %s starts at %.2f inside %s ending at %.2f",
					band.Division, band.Min, divs[i-1].Division, divs[i-1].Max))
		}
		if band.Min-divs[i-1].Max > step+stepEpsilon {
			return appErrors.Clone(appErrors.ErrSchemeInvalid,
				fmt.Sprintf("division bands leave a gap: %s ends at %.2f but %s starts at %.2f",
					divs[i-1].Division, divs[i-1].Max, band.Division, band.Min))
		}
	}

	if scheme.Level == models.ALevel && scheme.BestPrincipalCount < 1 {
		return appErrors.Clone(appErrors.ErrSchemeInvalid,
			"A-Level schemes need a best-principal count of at least 1")
	}

	return nil
}

const stepEpsilon = 1e-9

// bandStep returns the coarsest power-of-ten step that expresses every bound
// in a division table exactly: 1 for whole-point tables, 0.1 for tables
// stated in tenths. Consecutive bands must be exactly one step apart.
func bandStep(bands []models.DivisionBand) float64 {
	step := 1.0
	for _, band := range bands {
		for _, v := range []float64{band.Min, band.Max} {
			for step > stepEpsilon {
				scaled := v / step
				if math.Abs(scaled-math.Round(scaled)) < stepEpsilon {
					break
				}
				step /= 10
			}
		}
	}
	return step
}

// LoadFile reads, validates and registers a scheme from a YAML file.
func (s *SchemeService) LoadFile(path string) (*models.GradingScheme, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSchemeInvalid.Code, fmt.Sprintf("failed to read scheme file %s", path))
	}
	scheme := &models.GradingScheme{}
	if err := v.Unmarshal(scheme); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSchemeInvalid.Code, fmt.Sprintf("failed to decode scheme file %s", path))
	}
	// viper lowercases map keys; letter grades are canonically upper case.
	points := make(map[models.Grade]int, len(scheme.Points))
	for grade, value := range scheme.Points {
		points[models.Grade(strings.ToUpper(string(grade)))] = value
	}
	scheme.Points = points
	if err := s.Register(scheme); err != nil {
		return nil, err
	}
	return scheme.Clone(), nil
}

// LoadDir registers every YAML scheme in a directory, in name order.
func (s *SchemeService) LoadDir(dir string) ([]*models.GradingScheme, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSchemeInvalid.Code, "failed to scan scheme directory")
	}
	more, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSchemeInvalid.Code, "failed to scan scheme directory")
	}
	matches = append(matches, more...)
	sort.Strings(matches)

	schemes := make([]*models.GradingScheme, 0, len(matches))
	for _, path := range matches {
		scheme, err := s.LoadFile(path)
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, scheme)
	}
	return schemes, nil
}
