package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuleplus/grading-engine/internal/models"
	appErrors "github.com/shuleplus/grading-engine/pkg/errors"
)

func newAggregationService() *AggregationService {
	return NewAggregationService(nil, nil, nil, nil, nil, 2)
}

func result(code string, marks *float64, principal bool) models.SubjectResult {
	return models.SubjectResult{SubjectCode: code, MarksObtained: marks, MaxMarks: 100, IsPrincipal: principal}
}

func TestAggregateALevelEndToEnd(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.ALevel)

	results := []models.SubjectResult{
		result("PHY", fptr(78), true),
		result("CHE", fptr(65), true),
		result("MAT", fptr(72), true),
		result("GS", fptr(68), false),
		result("BAM", fptr(55), false),
	}

	agg, err := svc.Aggregate("S001", results, scheme, AggregateOptions{})
	require.NoError(t, err)

	assert.Equal(t, 338.0, agg.TotalMarks)
	assert.InDelta(t, 67.6, agg.AverageMarks, 1e-9)
	assert.Equal(t, 5, agg.GradedSubjects)
	require.NotNil(t, agg.TotalPoints)
	assert.Equal(t, 14, *agg.TotalPoints)
	require.NotNil(t, agg.BestPrincipalPoints)
	assert.Equal(t, 7, *agg.BestPrincipalPoints)
	assert.Equal(t, models.DivisionI, agg.Division)

	wantGrades := map[string]models.Grade{
		"PHY": models.GradeB,
		"CHE": models.GradeC,
		"MAT": models.GradeB,
		"GS":  models.GradeC,
		"BAM": models.GradeD,
	}
	for _, r := range agg.SubjectResults {
		require.NotNil(t, r.Grade, r.SubjectCode)
		assert.Equal(t, wantGrades[r.SubjectCode], *r.Grade, r.SubjectCode)
	}
}

func TestAggregateBestPrincipalSelection(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.ALevel)

	// Marks chosen to land on points 4, 1, 3, 2; best three sum to 6.
	results := []models.SubjectResult{
		result("HIS", fptr(52), true),
		result("MAT", fptr(85), true),
		result("GEO", fptr(63), true),
		result("ECO", fptr(74), true),
	}

	agg, err := svc.Aggregate("S002", results, scheme, AggregateOptions{})
	require.NoError(t, err)
	require.NotNil(t, agg.BestPrincipalPoints)
	assert.Equal(t, 6, *agg.BestPrincipalPoints)
	assert.Equal(t, models.DivisionI, agg.Division)
}

func TestAggregateInsufficientPrincipals(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.ALevel)

	results := []models.SubjectResult{
		result("PHY", fptr(78), true),
		result("MAT", fptr(72), true),
		result("GS", fptr(68), false),
	}

	agg, err := svc.Aggregate("S003", results, scheme, AggregateOptions{})
	require.NoError(t, err)
	assert.Nil(t, agg.BestPrincipalPoints)
	assert.Equal(t, models.DivisionNA, agg.Division)

	// An ungraded principal does not count toward the best-N pool either.
	results = append(results, result("CHE", nil, true))
	agg, err = svc.Aggregate("S003", results, scheme, AggregateOptions{})
	require.NoError(t, err)
	assert.Nil(t, agg.BestPrincipalPoints)
	assert.Equal(t, models.DivisionNA, agg.Division)
}

func TestAggregateExcludesNilMarks(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.OLevel)

	results := []models.SubjectResult{
		result("ENG", fptr(80), false),
		result("BIO", nil, false),
		result("MAT", fptr(60), false),
	}

	agg, err := svc.Aggregate("S004", results, scheme, AggregateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, agg.GradedSubjects)
	assert.Equal(t, 140.0, agg.TotalMarks)
	assert.InDelta(t, 70.0, agg.AverageMarks, 1e-9)
	require.Len(t, agg.SubjectResults, 3)
	assert.Nil(t, agg.SubjectResults[1].Grade)
	assert.Nil(t, agg.SubjectResults[1].Points)
}

func TestAggregateOLevelDivisions(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.OLevel)

	cases := []struct {
		name  string
		marks float64
		want  models.Division
	}{
		{"all distinctions", 90, models.DivisionI},
		{"all credits", 55, models.DivisionIII},
		{"all passes", 42, models.DivisionIV},
		{"all failures", 20, models.DivisionZero},
	}
	for _, tc := range cases {
		results := []models.SubjectResult{
			result("ENG", fptr(tc.marks), false),
			result("MAT", fptr(tc.marks), false),
			result("BIO", fptr(tc.marks), false),
			result("CHE", fptr(tc.marks), false),
		}
		agg, err := svc.Aggregate("S005", results, scheme, AggregateOptions{})
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, agg.Division, tc.name)
	}

	// No graded subjects at all: undefined, not a division.
	agg, err := svc.Aggregate("S005", []models.SubjectResult{result("ENG", nil, false)}, scheme, AggregateOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.DivisionNA, agg.Division)
	assert.Nil(t, agg.AveragePoints)
}

func TestClassifyDivisionALevelBands(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.ALevel)

	cases := []struct {
		points int
		want   models.Division
	}{
		{3, models.DivisionI},
		{9, models.DivisionI},
		{10, models.DivisionII},
		{13, models.DivisionIII},
		{18, models.DivisionIV},
		{21, models.DivisionV},
		{22, models.DivisionNA},
	}
	for _, tc := range cases {
		p := tc.points
		agg := &models.StudentAggregate{StudentID: "S006", Level: models.ALevel, BestPrincipalPoints: &p}
		division, err := svc.ClassifyDivision(agg, scheme)
		require.NoError(t, err)
		assert.Equal(t, tc.want, division, "points %d", tc.points)
	}

	division, err := svc.ClassifyDivision(&models.StudentAggregate{StudentID: "S006", Level: models.ALevel}, scheme)
	require.NoError(t, err)
	assert.Equal(t, models.DivisionNA, division)
}

func TestClassifyDivisionLevelMismatch(t *testing.T) {
	svc := newAggregationService()

	agg := &models.StudentAggregate{StudentID: "S007", Level: models.OLevel}
	_, err := svc.ClassifyDivision(agg, mustScheme(t, models.ALevel))
	require.ErrorIs(t, err, appErrors.ErrSchemeMismatch)
}

func TestAggregateRejectsDuplicateSubject(t *testing.T) {
	svc := newAggregationService()

	results := []models.SubjectResult{
		result("MAT", fptr(50), false),
		result("MAT", fptr(60), false),
	}
	_, err := svc.Aggregate("S008", results, mustScheme(t, models.OLevel), AggregateOptions{})
	require.ErrorIs(t, err, appErrors.ErrDuplicateSubject)
}

func TestAggregateRejectsOutOfRangeMarks(t *testing.T) {
	svc := newAggregationService()

	results := []models.SubjectResult{result("MAT", fptr(120), false)}
	_, err := svc.Aggregate("S009", results, mustScheme(t, models.OLevel), AggregateOptions{})
	require.ErrorIs(t, err, appErrors.ErrMarksOutOfRange)
}

func TestAggregateIsDeterministic(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.ALevel)

	results := []models.SubjectResult{
		result("PHY", fptr(78), true),
		result("CHE", fptr(65), true),
		result("MAT", fptr(72), true),
		result("GS", fptr(68), false),
	}

	first, err := svc.Aggregate("S010", results, scheme, AggregateOptions{})
	require.NoError(t, err)
	second, err := svc.Aggregate("S010", results, scheme, AggregateOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateCohortPreservesOrder(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.OLevel)

	entries := []models.CohortEntry{
		{StudentID: "S101", Results: []models.SubjectResult{result("MAT", fptr(90), false)}},
		{StudentID: "S102", Results: []models.SubjectResult{result("MAT", fptr(45), false)}},
		{StudentID: "S103", Results: []models.SubjectResult{result("MAT", fptr(70), false)}},
	}

	aggregates, err := svc.AggregateCohort(context.Background(), entries, scheme, AggregateOptions{})
	require.NoError(t, err)
	require.Len(t, aggregates, 3)
	for i, entry := range entries {
		assert.Equal(t, entry.StudentID, aggregates[i].StudentID)
	}
}

func TestAggregateCohortRejectsDuplicateStudent(t *testing.T) {
	svc := newAggregationService()

	entries := []models.CohortEntry{
		{StudentID: "S101", Results: []models.SubjectResult{result("MAT", fptr(90), false)}},
		{StudentID: "S101", Results: []models.SubjectResult{result("MAT", fptr(45), false)}},
	}
	_, err := svc.AggregateCohort(context.Background(), entries, mustScheme(t, models.OLevel), AggregateOptions{})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAggregateCohortAbortsOnInvalidMarks(t *testing.T) {
	svc := newAggregationService()

	entries := []models.CohortEntry{
		{StudentID: "S101", Results: []models.SubjectResult{result("MAT", fptr(90), false)}},
		{StudentID: "S102", Results: []models.SubjectResult{result("MAT", fptr(130), false)}},
	}
	_, err := svc.AggregateCohort(context.Background(), entries, mustScheme(t, models.OLevel), AggregateOptions{})
	require.ErrorIs(t, err, appErrors.ErrMarksOutOfRange)
}

func TestAggregateAndRank(t *testing.T) {
	svc := newAggregationService()
	scheme := mustScheme(t, models.ALevel)

	principals := func(a, b, c float64) []models.SubjectResult {
		return []models.SubjectResult{
			result("PHY", fptr(a), true),
			result("CHE", fptr(b), true),
			result("MAT", fptr(c), true),
		}
	}
	entries := []models.CohortEntry{
		{StudentID: "S201", Results: principals(55, 55, 55)},
		{StudentID: "S202", Results: principals(85, 85, 85)},
		{StudentID: "S203", Results: principals(72, 72, 72)},
	}

	ranked, err := svc.AggregateAndRank(context.Background(), entries, scheme, AggregateOptions{})
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "S202", ranked[0].StudentID)
	assert.Equal(t, "S203", ranked[1].StudentID)
	assert.Equal(t, "S201", ranked[2].StudentID)
	for i, agg := range ranked {
		require.NotNil(t, agg.Rank)
		assert.Equal(t, i+1, *agg.Rank)
	}
}
