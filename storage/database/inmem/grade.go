package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/grade"
)

type gradeLoader struct {
	repo *courseRepository
}

var _ grade.InputLoader = (*gradeLoader)(nil) // interface compliance check

func NewGradeLoader(db *DB) grade.InputLoader {
	return &gradeLoader{repo: &courseRepository{db: db.course}}
}

func (l *gradeLoader) LoadItems(ctx context.Context, courseID string) (grade.Items, error) {
	l.repo.db.RLock()
	defer l.repo.db.RUnlock()

	items := grade.Items{
		Assignments: l.repo.queryAssignments(courseID),
		Quizzes:     l.repo.queryQuizzes(courseID),
	}
	items.QuizMaxPoints = make(map[string]float64, len(items.Quizzes))
	for _, q := range items.Quizzes {
		items.QuizMaxPoints[q.ID] = q.MaxPoints()
	}
	return items, nil
}

func (l *gradeLoader) LoadWork(ctx context.Context, courseID string, studentIDs []string) ([]course.Submission, []course.Attempt, error) {
	l.repo.db.RLock()
	defer l.repo.db.RUnlock()

	if studentIDs == nil {
		studentIDs = []string{}
	}
	subs := l.repo.querySubmissions(course.SubmissionFilter{CourseID: courseID, StudentIDs: studentIDs})
	attempts := l.repo.queryAttempts(course.AttemptFilter{CourseID: courseID, StudentIDs: studentIDs})
	return subs, attempts, nil
}
