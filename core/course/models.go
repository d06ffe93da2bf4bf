package course

import (
	"sort"
	"time"

	"github.com/trezcool/shule/core"
)

// Category is a grading category of a course, e.g. "homework" or "exams".
// A course's categories are the keys of its grading weights; assignments and quizzes may only
// reference one of them.
type Category string

func NewCategory(s string) Category {
	return Category(core.CleanString(s, true /* lower */))
}

// CategoryPtr returns nil for an empty name.
func CategoryPtr(s string) *Category {
	cat := NewCategory(s)
	if cat == "" {
		return nil
	}
	return &cat
}

// ScaleBand maps every percentage >= MinPercentage (and below the next band) to Label.
type ScaleBand struct {
	Label         string  `json:"label"`
	MinPercentage float64 `json:"min_percentage"`
}

type Course struct {
	ID             string               `json:"id"`
	SchoolID       string               `json:"school_id"`
	TeacherID      string               `json:"teacher_id"`
	Code           string               `json:"code"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	GradingWeights map[Category]float64 `json:"grading_weights"` // nil: flat grading
	GradingScale   []ScaleBand          `json:"grading_scale"`   // nil: no letter grades
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// IsWeighted reports whether the course grades by weighted categories.
func (c Course) IsWeighted() bool {
	return len(c.GradingWeights) > 0
}

func (c Course) HasCategory(cat Category) bool {
	_, ok := c.GradingWeights[cat]
	return ok
}

// Categories returns the course's grading categories, sorted.
func (c Course) Categories() []Category {
	cats := make([]Category, 0, len(c.GradingWeights))
	for cat := range c.GradingWeights {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

type Enrollment struct {
	CourseID  string    `json:"course_id"`
	StudentID string    `json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Assignment struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	MaxPoints   float64    `json:"max_points"`
	Category    *Category  `json:"category"`
	DueAt       *time.Time `json:"due_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Question struct {
	ID       string  `json:"id"`
	Position int     `json:"position"`
	Prompt   string  `json:"prompt"`
	Points   float64 `json:"points"`
}

type Quiz struct {
	ID        string     `json:"id"`
	CourseID  string     `json:"course_id"`
	Title     string     `json:"title"`
	Category  *Category  `json:"category"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// MaxPoints is the sum of the quiz's question points.
func (q Quiz) MaxPoints() float64 {
	var total float64
	for _, qn := range q.Questions {
		total += qn.Points
	}
	return total
}

// Submission is a student's work on an assignment. Grade is nil until graded.
type Submission struct {
	ID           string     `json:"id"`
	AssignmentID string     `json:"assignment_id"`
	StudentID    string     `json:"student_id"`
	Content      string     `json:"content"`
	Grade        *float64   `json:"grade"`
	Feedback     string     `json:"feedback"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	GradedAt     *time.Time `json:"graded_at"`
}

// Attempt is a student's try at a quiz. PointsEarned is nil until scored.
type Attempt struct {
	ID           string     `json:"id"`
	QuizID       string     `json:"quiz_id"`
	StudentID    string     `json:"student_id"`
	PointsEarned *float64   `json:"points_earned"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

// GradeAudit records a change of a submission's grade.
type GradeAudit struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	GraderID     string    `json:"grader_id"`
	OldGrade     *float64  `json:"old_grade"`
	NewGrade     *float64  `json:"new_grade"`
	CreatedAt    time.Time `json:"created_at"`
}

type GetFilter struct {
	ID       string
	SchoolID string
}

type QueryFilter struct {
	SchoolID  string `query:"-"`
	TeacherID string `query:"teacher_id"`
	StudentID string `query:"student_id"`
	Search    string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.StudentID = core.CleanString(qf.StudentID)
}

// OrderingFields lists the fields courses can be ordered by.
var OrderingFields = []string{"code", "title", "created_at", "updated_at"}

type SubmissionFilter struct {
	CourseID     string
	AssignmentID string
	StudentIDs   []string
}

type AttemptFilter struct {
	CourseID   string
	QuizID     string
	StudentIDs []string
}
