package models

// GradeBand maps a minimum percentage (inclusive) to a letter grade. Bands
// are evaluated best-first; the first threshold at or below the normalised
// mark wins.
type GradeBand struct {
	MinPercent float64 `json:"min_percent" mapstructure:"min_percent" validate:"gte=0,lte=100"`
	Grade      Grade   `json:"grade" mapstructure:"grade" validate:"required"`
}

// DivisionBand maps a closed aggregate-points range onto a division. Bands
// are evaluated in ascending order; a value at or below Max (and at or above
// the scheme floor, the first band's Min) falls into the first matching band.
type DivisionBand struct {
	Min      float64  `json:"min" mapstructure:"min"`
	Max      float64  `json:"max" mapstructure:"max" validate:"gtefield=Min"`
	Division Division `json:"division" mapstructure:"division" validate:"required"`
}

// GradingScheme is the versioned rule set for one education level: grade
// bands, the grade-to-points map and the division table. It is passed
// explicitly to every engine call; there is no module-level default.
type GradingScheme struct {
	Name  string         `json:"name" mapstructure:"name" validate:"required"`
	Level EducationLevel `json:"level" mapstructure:"level" validate:"required,oneof=O_LEVEL A_LEVEL"`

	GradeBands []GradeBand `json:"grade_bands" mapstructure:"grade_bands" validate:"required,min=1,dive"`
	// FallbackGrade applies below the lowest band threshold.
	FallbackGrade Grade `json:"fallback_grade" mapstructure:"fallback_grade" validate:"required"`

	// Points maps letter grades to point values. Lower is better; every
	// best-N selection and ranking key relies on that inversion.
	Points map[Grade]int `json:"points" mapstructure:"points" validate:"required,min=1"`

	DivisionBands []DivisionBand `json:"division_bands" mapstructure:"division_bands" validate:"required,min=1,dive"`

	// BestPrincipalCount is the number of principal subjects summed into the
	// A-Level division aggregate. A-Level schemes require at least 1;
	// O-Level schemes leave it zero because their division runs on average
	// points.
	BestPrincipalCount int `json:"best_principal_count" mapstructure:"best_principal_count" validate:"gte=0"`
}

// Clone returns a deep copy so registered schemes stay immutable.
func (s *GradingScheme) Clone() *GradingScheme {
	if s == nil {
		return nil
	}
	clone := *s
	clone.GradeBands = append([]GradeBand(nil), s.GradeBands...)
	clone.DivisionBands = append([]DivisionBand(nil), s.DivisionBands...)
	clone.Points = make(map[Grade]int, len(s.Points))
	for g, p := range s.Points {
		clone.Points[g] = p
	}
	return &clone
}
