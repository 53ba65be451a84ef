package models

// EducationLevel selects which grading scheme applies to a result set.
type EducationLevel string

// Supported education tracks.
const (
	OLevel EducationLevel = "O_LEVEL"
	ALevel EducationLevel = "A_LEVEL"
)

// Valid reports whether the level is a known track.
func (l EducationLevel) Valid() bool {
	return l == OLevel || l == ALevel
}

// Grade is a letter grade produced by the classifier.
type Grade string

// Letter grades across both tracks. E and S exist only under A-Level.
const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
	GradeS Grade = "S"
	GradeF Grade = "F"
)

// Division is the coarse performance band derived from aggregate points.
// DivisionZero is the O-Level fail band; DivisionNA marks an undefined
// classification (insufficient data or out-of-range points).
type Division string

const (
	DivisionI    Division = "I"
	DivisionII   Division = "II"
	DivisionIII  Division = "III"
	DivisionIV   Division = "IV"
	DivisionV    Division = "V"
	DivisionZero Division = "0"
	DivisionNA   Division = "N/A"
)
