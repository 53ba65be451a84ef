package models

// SubjectResult is one student's performance in one subject for one exam.
// A nil MarksObtained means the subject was not assessed; that state
// propagates through grading rather than defaulting to the lowest grade.
type SubjectResult struct {
	SubjectCode   string   `json:"subject_code" validate:"required"`
	MarksObtained *float64 `json:"marks_obtained,omitempty"`
	MaxMarks      float64  `json:"max_marks" validate:"gte=0"`
	// IsPrincipal is meaningful only under the A-Level scale.
	IsPrincipal bool `json:"is_principal"`

	// Derived by the engine, never supplied by callers.
	Grade  *Grade `json:"grade,omitempty"`
	Points *int   `json:"points,omitempty"`
}

// StudentAggregate is one student's computed summary for one exam.
// Pointer fields are nil when the underlying value is undefined, e.g. no
// graded subjects or fewer graded principals than the best-N count.
type StudentAggregate struct {
	StudentID      string          `json:"student_id"`
	Level          EducationLevel  `json:"level"`
	SubjectResults []SubjectResult `json:"subject_results"`

	TotalMarks     float64 `json:"total_marks"`
	AverageMarks   float64 `json:"average_marks"`
	GradedSubjects int     `json:"graded_subjects"`

	TotalPoints *int `json:"total_points,omitempty"`
	// AveragePoints drives the O-Level division and ranking key.
	AveragePoints *float64 `json:"average_points,omitempty"`
	// BestPrincipalPoints drives the A-Level division and ranking key.
	BestPrincipalPoints *int `json:"best_principal_points,omitempty"`

	Division Division `json:"division"`
	// Rank is populated only within a cohort; see RankingService.
	Rank *int `json:"rank,omitempty"`
}

// CohortEntry pairs a student with their raw results for batch aggregation.
// The caller decides cohort boundaries (class, form-level group); the engine
// ranks exactly what it is given.
type CohortEntry struct {
	StudentID string          `json:"student_id" validate:"required"`
	Results   []SubjectResult `json:"results"`
}
