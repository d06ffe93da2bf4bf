package grade

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
)

func cat(name string) *course.Category {
	return course.CategoryPtr(name)
}

func graded(assignmentID string, grade float64) course.Submission {
	return course.Submission{AssignmentID: assignmentID, Grade: core.Float64Ptr(grade)}
}

func ungraded(assignmentID string) course.Submission {
	return course.Submission{AssignmentID: assignmentID}
}

func attempt(quizID string, points float64) course.Attempt {
	return course.Attempt{QuizID: quizID, PointsEarned: core.Float64Ptr(points)}
}

var letterScale = []course.ScaleBand{
	{Label: "C", MinPercentage: 70},
	{Label: "A", MinPercentage: 90},
	{Label: "B", MinPercentage: 80},
}

func TestCompute(t *testing.T) {
	weighted := course.Course{GradingWeights: map[course.Category]float64{"homework": 0.4, "exams": 0.6}}

	tests := []struct {
		name string
		in   Input
		want Result
	}{
		{
			name: "no items",
			in:   Input{},
			want: Result{Percentage: 0, LetterGrade: NotAvailable},
		},
		{
			name: "no items with scale",
			in:   Input{Course: course.Course{GradingScale: letterScale}},
			want: Result{Percentage: 0, LetterGrade: "C"},
		},
		{
			name: "flat",
			in: Input{
				Assignments: []course.Assignment{{ID: "a1", MaxPoints: 100}, {ID: "a2", MaxPoints: 50}},
				Submissions: []course.Submission{graded("a1", 90), graded("a2", 40)},
			},
			want: Result{Percentage: 86.7, LetterGrade: NotAvailable},
		},
		{
			name: "flat: ungraded items are left out",
			in: Input{
				Assignments: []course.Assignment{{ID: "a1", MaxPoints: 100}, {ID: "a2", MaxPoints: 100}, {ID: "a3", MaxPoints: 100}},
				Submissions: []course.Submission{graded("a1", 80), ungraded("a2")},
			},
			want: Result{Percentage: 80},
		},
		{
			name: "flat: nothing graded",
			in: Input{
				Assignments: []course.Assignment{{ID: "a1", MaxPoints: 100}},
				Submissions: []course.Submission{ungraded("a1")},
			},
			want: Result{Percentage: 0},
		},
		{
			name: "flat: categories are ignored",
			in: Input{
				Assignments: []course.Assignment{{ID: "a1", MaxPoints: 10, Category: cat("homework")}, {ID: "a2", MaxPoints: 10}},
				Submissions: []course.Submission{graded("a1", 10), graded("a2", 5)},
			},
			want: Result{Percentage: 75},
		},
		{
			name: "flat: empty weights",
			in: Input{
				Course:      course.Course{GradingWeights: map[course.Category]float64{}},
				Assignments: []course.Assignment{{ID: "a1", MaxPoints: 4}},
				Submissions: []course.Submission{graded("a1", 3)},
			},
			want: Result{Percentage: 75},
		},
		{
			name: "weighted",
			in: Input{
				Course: weighted,
				Assignments: []course.Assignment{
					{ID: "hw1", MaxPoints: 10, Category: cat("homework")},
					{ID: "ex1", MaxPoints: 100, Category: cat("exams")},
				},
				Submissions: []course.Submission{graded("hw1", 10), graded("ex1", 50)},
			},
			want: Result{Percentage: 70, IsWeighted: true},
		},
		{
			name: "weighted: category without graded items is skipped",
			in: Input{
				Course: weighted,
				Assignments: []course.Assignment{
					{ID: "hw1", MaxPoints: 10, Category: cat("homework")},
					{ID: "ex1", MaxPoints: 100, Category: cat("exams")},
				},
				Submissions: []course.Submission{graded("hw1", 9), ungraded("ex1")},
			},
			want: Result{Percentage: 90, IsWeighted: true},
		},
		{
			name: "weighted: uncategorized and unweighted items are left out",
			in: Input{
				Course: weighted,
				Assignments: []course.Assignment{
					{ID: "hw1", MaxPoints: 10, Category: cat("homework")},
					{ID: "x1", MaxPoints: 10},
					{ID: "p1", MaxPoints: 10, Category: cat("projects")},
				},
				Submissions: []course.Submission{graded("hw1", 5), graded("x1", 10), graded("p1", 10)},
			},
			want: Result{Percentage: 50, IsWeighted: true},
		},
		{
			name: "weighted: nothing graded",
			in: Input{
				Course:      weighted,
				Assignments: []course.Assignment{{ID: "hw1", MaxPoints: 10, Category: cat("homework")}},
			},
			want: Result{Percentage: 0, IsWeighted: true},
		},
		{
			name: "weighted: assignments and quizzes share categories",
			in: Input{
				Course: weighted,
				Assignments: []course.Assignment{
					{ID: "hw1", MaxPoints: 10, Category: cat("homework")},
					{ID: "ex1", MaxPoints: 100, Category: cat("exams")},
				},
				Quizzes:       []course.Quiz{{ID: "q1", Category: cat("homework")}},
				QuizMaxPoints: map[string]float64{"q1": 10},
				Submissions:   []course.Submission{graded("hw1", 10), graded("ex1", 80)},
				Attempts:      []course.Attempt{attempt("q1", 5)},
			},
			// homework: 15/20 = 75%, exams: 80% => 75*.4 + 80*.6 = 78
			want: Result{Percentage: 78, IsWeighted: true},
		},
		{
			name: "quiz: best attempt counts",
			in: Input{
				Quizzes:       []course.Quiz{{ID: "q1"}},
				QuizMaxPoints: map[string]float64{"q1": 10},
				Attempts:      []course.Attempt{attempt("q1", 5), attempt("q1", 9), attempt("q1", 7)},
			},
			want: Result{Percentage: 90},
		},
		{
			name: "quiz: unscored attempts are left out",
			in: Input{
				Quizzes:       []course.Quiz{{ID: "q1"}, {ID: "q2"}},
				QuizMaxPoints: map[string]float64{"q1": 10, "q2": 10},
				Attempts:      []course.Attempt{{QuizID: "q1"}, attempt("q2", 4)},
			},
			want: Result{Percentage: 40},
		},
		{
			name: "submissions of unknown assignments are ignored",
			in: Input{
				Assignments: []course.Assignment{{ID: "a1", MaxPoints: 10}},
				Submissions: []course.Submission{graded("a1", 10), graded("gone", 0)},
			},
			want: Result{Percentage: 100},
		},
		{
			name: "letter grade",
			in: Input{
				Course:      course.Course{GradingScale: letterScale},
				Assignments: []course.Assignment{{ID: "a1", MaxPoints: 100}},
				Submissions: []course.Submission{graded("a1", 85)},
			},
			want: Result{Percentage: 85, LetterGrade: "B"},
		},
		{
			name: "letter grade uses the unrounded percentage",
			in: Input{
				Course:      course.Course{GradingScale: letterScale},
				Assignments: []course.Assignment{{ID: "a1", MaxPoints: 1000}},
				Submissions: []course.Submission{graded("a1", 799.6)},
			},
			want: Result{Percentage: 80, LetterGrade: "C"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.in)
			assert.Equal(t, tt.want.Percentage, got.Percentage)
			assert.Equal(t, tt.want.IsWeighted, got.IsWeighted)
			if tt.want.LetterGrade == "" {
				tt.want.LetterGrade = NotAvailable
			}
			assert.Equal(t, tt.want.LetterGrade, got.LetterGrade)
		})
	}
}

func TestCompute_Idempotent(t *testing.T) {
	in := Input{
		Course: course.Course{
			GradingWeights: map[course.Category]float64{"a": 0.1, "b": 0.2, "c": 0.3, "d": 0.4},
			GradingScale:   letterScale,
		},
		Assignments: []course.Assignment{
			{ID: "1", MaxPoints: 7, Category: cat("a")},
			{ID: "2", MaxPoints: 13, Category: cat("b")},
			{ID: "3", MaxPoints: 17, Category: cat("c")},
			{ID: "4", MaxPoints: 19, Category: cat("d")},
		},
		Submissions: []course.Submission{graded("1", 3), graded("2", 11), graded("3", 5.5), graded("4", 18)},
	}
	want := Compute(in)

	var wg sync.WaitGroup
	results := make([]Result, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Compute(in)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestLetterFor(t *testing.T) {
	tests := []struct {
		name  string
		scale []course.ScaleBand
		pct   float64
		want  string
	}{
		{name: "no scale", pct: 95, want: NotAvailable},
		{name: "top band", scale: letterScale, pct: 95, want: "A"},
		{name: "middle band", scale: letterScale, pct: 85, want: "B"},
		{name: "band minimum is inclusive", scale: letterScale, pct: 80, want: "B"},
		{name: "just below a band", scale: letterScale, pct: 79.99, want: "C"},
		{name: "below every band falls back to the lowest", scale: letterScale, pct: 65, want: "C"},
		{name: "zero", scale: letterScale, pct: 0, want: "C"},
		{name: "single band", scale: []course.ScaleBand{{Label: "P", MinPercentage: 50}}, pct: 10, want: "P"},
		{name: "hundred", scale: []course.ScaleBand{{Label: "A+", MinPercentage: 100}, {Label: "A", MinPercentage: 90}}, pct: 100, want: "A+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LetterFor(tt.scale, tt.pct))
		})
	}

	// the scale is not reordered in place
	assert.Equal(t, "C", letterScale[0].Label)
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{in: 0, want: 0},
		{in: 86.666666, want: 86.7},
		{in: 86.64, want: 86.6},
		{in: 70, want: 70},
		{in: 99.95, want: 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round1(tt.in))
	}
}
