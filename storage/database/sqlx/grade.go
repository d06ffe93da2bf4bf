// Package sqlxrepos holds the read-heavy gradebook queries, written with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/grade"
)

type (
	itemRow struct {
		ID        string      `db:"id"`
		CourseID  string      `db:"course_id"`
		Title     string      `db:"title"`
		Category  null.String `db:"category"`
		MaxPoints float64     `db:"max_points"`
		CreatedAt time.Time   `db:"created_at"`
	}

	submissionRow struct {
		ID           string       `db:"id"`
		AssignmentID string       `db:"assignment_id"`
		StudentID    string       `db:"student_id"`
		Grade        null.Float64 `db:"grade"`
		SubmittedAt  time.Time    `db:"submitted_at"`
		GradedAt     null.Time    `db:"graded_at"`
	}

	attemptRow struct {
		ID           string       `db:"id"`
		QuizID       string       `db:"quiz_id"`
		StudentID    string       `db:"student_id"`
		PointsEarned null.Float64 `db:"points_earned"`
		StartedAt    time.Time    `db:"started_at"`
		FinishedAt   null.Time    `db:"finished_at"`
	}
)

const (
	assignmentsQuery = `SELECT id, course_id, title, category, max_points, created_at
		FROM assignment WHERE course_id = $1 ORDER BY created_at, id`

	// a quiz's max points is the sum of its question points
	quizzesQuery = `SELECT q.id, q.course_id, q.title, q.category, COALESCE(SUM(qq.points), 0) AS max_points, q.created_at
		FROM quiz q LEFT JOIN quiz_question qq ON qq.quiz_id = q.id
		WHERE q.course_id = $1
		GROUP BY q.id
		ORDER BY q.created_at, q.id`

	submissionsQuery = `SELECT s.id, s.assignment_id, s.student_id, s.grade, s.submitted_at, s.graded_at
		FROM submission s JOIN assignment a ON a.id = s.assignment_id
		WHERE a.course_id = ? AND s.student_id IN (?)
		ORDER BY s.submitted_at, s.id`

	attemptsQuery = `SELECT t.id, t.quiz_id, t.student_id, t.points_earned, t.started_at, t.finished_at
		FROM quiz_attempt t JOIN quiz q ON q.id = t.quiz_id
		WHERE q.course_id = ? AND t.student_id IN (?)
		ORDER BY t.started_at, t.id`
)

type gradeLoader struct {
	db *sqlx.DB
}

var _ grade.InputLoader = (*gradeLoader)(nil) // interface compliance check

// NewGradeLoader returns a grade.InputLoader reading from a postgres db.
func NewGradeLoader(db *sql.DB) grade.InputLoader {
	return &gradeLoader{db: sqlx.NewDb(db, "postgres")}
}

func (l *gradeLoader) LoadItems(ctx context.Context, courseID string) (grade.Items, error) {
	var aRows []itemRow
	if err := l.db.SelectContext(ctx, &aRows, assignmentsQuery, courseID); err != nil {
		return grade.Items{}, errors.Wrap(err, "loading assignments")
	}
	var qRows []itemRow
	if err := l.db.SelectContext(ctx, &qRows, quizzesQuery, courseID); err != nil {
		return grade.Items{}, errors.Wrap(err, "loading quizzes")
	}

	items := grade.Items{
		Assignments:   make([]course.Assignment, 0, len(aRows)),
		Quizzes:       make([]course.Quiz, 0, len(qRows)),
		QuizMaxPoints: make(map[string]float64, len(qRows)),
	}
	for _, row := range aRows {
		items.Assignments = append(items.Assignments, course.Assignment{
			ID:        row.ID,
			CourseID:  row.CourseID,
			Title:     row.Title,
			MaxPoints: row.MaxPoints,
			Category:  categoryFrom(row.Category),
			CreatedAt: row.CreatedAt,
		})
	}
	for _, row := range qRows {
		items.Quizzes = append(items.Quizzes, course.Quiz{
			ID:        row.ID,
			CourseID:  row.CourseID,
			Title:     row.Title,
			Category:  categoryFrom(row.Category),
			CreatedAt: row.CreatedAt,
		})
		items.QuizMaxPoints[row.ID] = row.MaxPoints
	}
	return items, nil
}

func (l *gradeLoader) LoadWork(ctx context.Context, courseID string, studentIDs []string) ([]course.Submission, []course.Attempt, error) {
	if len(studentIDs) == 0 {
		return []course.Submission{}, []course.Attempt{}, nil
	}

	var sRows []submissionRow
	if err := l.selectIn(ctx, &sRows, submissionsQuery, courseID, studentIDs); err != nil {
		return nil, nil, errors.Wrap(err, "loading submissions")
	}
	var aRows []attemptRow
	if err := l.selectIn(ctx, &aRows, attemptsQuery, courseID, studentIDs); err != nil {
		return nil, nil, errors.Wrap(err, "loading attempts")
	}

	subs := make([]course.Submission, 0, len(sRows))
	for _, row := range sRows {
		subs = append(subs, course.Submission{
			ID:           row.ID,
			AssignmentID: row.AssignmentID,
			StudentID:    row.StudentID,
			Grade:        row.Grade.Ptr(),
			SubmittedAt:  row.SubmittedAt,
			GradedAt:     row.GradedAt.Ptr(),
		})
	}
	attempts := make([]course.Attempt, 0, len(aRows))
	for _, row := range aRows {
		attempts = append(attempts, course.Attempt{
			ID:           row.ID,
			QuizID:       row.QuizID,
			StudentID:    row.StudentID,
			PointsEarned: row.PointsEarned.Ptr(),
			StartedAt:    row.StartedAt,
			FinishedAt:   row.FinishedAt.Ptr(),
		})
	}
	return subs, attempts, nil
}

// selectIn expands the IN (?) clause of query then rebinds it for postgres.
func (l *gradeLoader) selectIn(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return l.db.SelectContext(ctx, dest, l.db.Rebind(query), args...)
}

func categoryFrom(s null.String) *course.Category {
	if !s.Valid {
		return nil
	}
	return course.CategoryPtr(s.String)
}
