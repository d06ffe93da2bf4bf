package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
)

type courseRepository struct {
	db *courseTables
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

func copyCourse(c course.Course) course.Course {
	if c.GradingWeights != nil {
		weights := make(map[course.Category]float64, len(c.GradingWeights))
		for cat, w := range c.GradingWeights {
			weights[cat] = w
		}
		c.GradingWeights = weights
	}
	if c.GradingScale != nil {
		c.GradingScale = append([]course.ScaleBand(nil), c.GradingScale...)
	}
	return c
}

func copyAssignment(a course.Assignment) course.Assignment {
	a.Category = copyCategory(a.Category)
	if a.DueAt != nil {
		t := *a.DueAt
		a.DueAt = &t
	}
	return a
}

func copyQuiz(q course.Quiz) course.Quiz {
	q.Category = copyCategory(q.Category)
	q.Questions = append([]course.Question(nil), q.Questions...)
	return q
}

func copySubmission(s course.Submission) course.Submission {
	s.Grade = copyFloat(s.Grade)
	if s.GradedAt != nil {
		t := *s.GradedAt
		s.GradedAt = &t
	}
	return s
}

func copyAttempt(a course.Attempt) course.Attempt {
	a.PointsEarned = copyFloat(a.PointsEarned)
	if a.FinishedAt != nil {
		t := *a.FinishedAt
		a.FinishedAt = &t
	}
	return a
}

func (repo *courseRepository) codeTaken(c course.Course) bool {
	for _, other := range repo.db.courses {
		if other.ID != c.ID && other.SchoolID == c.SchoolID && other.Code == c.Code {
			return true
		}
	}
	return false
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = uuid.New().String()
	if repo.codeTaken(c) {
		return course.Course{}, course.ErrCodeExists
	}
	c = copyCourse(c)
	repo.db.courses[c.ID] = &c
	return copyCourse(c), nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.GetFilter, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	c, ok := repo.db.courses[filter.ID]
	if !ok || (filter.SchoolID != "" && c.SchoolID != filter.SchoolID) {
		return course.Course{}, course.ErrNotFound
	}
	return copyCourse(*c), nil
}

func compareCourses(a, b course.Course, field string) int {
	switch field {
	case "code":
		return strings.Compare(a.Code, b.Code)
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "created_at":
		return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "updated_at":
		return compareTimes(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	}
	return 0
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, c := range repo.db.courses {
		if filter != nil {
			if filter.SchoolID != "" && c.SchoolID != filter.SchoolID {
				continue
			}
			if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
				continue
			}
			if filter.StudentID != "" {
				if _, ok := repo.db.enrollments[enrollmentKey{c.ID, filter.StudentID}]; !ok {
					continue
				}
			}
			if filter.Search != "" {
				search := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(c.Code), search) && !strings.Contains(strings.ToLower(c.Title), search) {
					continue
				}
			}
		}
		courses = append(courses, copyCourse(*c))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "code", Ascending: true}}
	}
	sort.SliceStable(courses, func(i, j int) bool {
		for _, ord := range ordering {
			if cmp := compareCourses(courses[i], courses[j], ord.Field); cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return courses[i].ID < courses[j].ID
	})
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	if repo.codeTaken(c) {
		return course.Course{}, course.ErrCodeExists
	}
	c = copyCourse(c)
	repo.db.courses[c.ID] = &c
	return copyCourse(c), nil
}

func (repo *courseRepository) deleteAssignment(id string) {
	delete(repo.db.assignments, id)
	for sid, s := range repo.db.submissions {
		if s.AssignmentID != id {
			continue
		}
		delete(repo.db.submissions, sid)
		for aid, audit := range repo.db.audits {
			if audit.SubmissionID == sid {
				delete(repo.db.audits, aid)
			}
		}
	}
}

func (repo *courseRepository) deleteQuiz(id string) {
	delete(repo.db.quizzes, id)
	for aid, a := range repo.db.attempts {
		if a.QuizID == id {
			delete(repo.db.attempts, aid)
		}
	}
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.courses, id)
	for key := range repo.db.enrollments {
		if key.courseID == id {
			delete(repo.db.enrollments, key)
		}
	}
	for aid, a := range repo.db.assignments {
		if a.CourseID == id {
			repo.deleteAssignment(aid)
		}
	}
	for qid, q := range repo.db.quizzes {
		if q.CourseID == id {
			repo.deleteQuiz(qid)
		}
	}
	return nil
}

func (repo *courseRepository) CategoriesInUse(ctx context.Context, courseID string, _ ...core.DBExecutor) ([]course.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[course.Category]struct{})
	for _, a := range repo.db.assignments {
		if a.CourseID == courseID && a.Category != nil {
			seen[*a.Category] = struct{}{}
		}
	}
	for _, q := range repo.db.quizzes {
		if q.CourseID == courseID && q.Category != nil {
			seen[*q.Category] = struct{}{}
		}
	}

	cats := make([]course.Category, 0, len(seen))
	for cat := range seen {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats, nil
}

func (repo *courseRepository) CreateEnrollment(ctx context.Context, e course.Enrollment, _ ...core.DBExecutor) (course.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[e.CourseID]; !ok {
		return course.Enrollment{}, course.ErrNotFound
	}
	key := enrollmentKey{e.CourseID, e.StudentID}
	if _, ok := repo.db.enrollments[key]; ok {
		return course.Enrollment{}, course.ErrAlreadyEnrolled
	}
	repo.db.enrollments[key] = e
	return e, nil
}

func (repo *courseRepository) DeleteEnrollment(ctx context.Context, courseID, studentID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := enrollmentKey{courseID, studentID}
	if _, ok := repo.db.enrollments[key]; !ok {
		return course.ErrNotEnrolled
	}
	delete(repo.db.enrollments, key)
	return nil
}

func (repo *courseRepository) IsEnrolled(ctx context.Context, courseID, studentID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.enrollments[enrollmentKey{courseID, studentID}]
	return ok, nil
}

func (repo *courseRepository) QueryEnrollments(ctx context.Context, courseID string, _ ...core.DBExecutor) ([]course.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrollments := make([]course.Enrollment, 0)
	for key, e := range repo.db.enrollments {
		if key.courseID == courseID {
			enrollments = append(enrollments, e)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool {
		if enrollments[i].CreatedAt.Equal(enrollments[j].CreatedAt) {
			return enrollments[i].StudentID < enrollments[j].StudentID
		}
		return enrollments[i].CreatedAt.Before(enrollments[j].CreatedAt)
	})
	return enrollments, nil
}

func (repo *courseRepository) CreateAssignment(ctx context.Context, a course.Assignment, _ ...core.DBExecutor) (course.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[a.CourseID]; !ok {
		return course.Assignment{}, course.ErrNotFound
	}
	a = copyAssignment(a)
	a.ID = uuid.New().String()
	repo.db.assignments[a.ID] = &a
	return copyAssignment(a), nil
}

func (repo *courseRepository) GetAssignment(ctx context.Context, id string, _ ...core.DBExecutor) (course.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return copyAssignment(*a), nil
	}
	return course.Assignment{}, course.ErrAssignmentNotFound
}

func (repo *courseRepository) queryAssignments(courseID string) []course.Assignment {
	assignments := make([]course.Assignment, 0)
	for _, a := range repo.db.assignments {
		if a.CourseID == courseID {
			assignments = append(assignments, copyAssignment(*a))
		}
	}
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].CreatedAt.Equal(assignments[j].CreatedAt) {
			return assignments[i].ID < assignments[j].ID
		}
		return assignments[i].CreatedAt.Before(assignments[j].CreatedAt)
	})
	return assignments
}

func (repo *courseRepository) QueryAssignments(ctx context.Context, courseID string, _ ...core.DBExecutor) ([]course.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.queryAssignments(courseID), nil
}

func (repo *courseRepository) UpdateAssignment(ctx context.Context, a course.Assignment, _ ...core.DBExecutor) (course.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.assignments[a.ID]; !ok {
		return course.Assignment{}, course.ErrAssignmentNotFound
	}
	a = copyAssignment(a)
	repo.db.assignments[a.ID] = &a
	return copyAssignment(a), nil
}

func (repo *courseRepository) DeleteAssignment(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return course.ErrAssignmentNotFound
	}
	repo.deleteAssignment(id)
	return nil
}

func (repo *courseRepository) CreateQuiz(ctx context.Context, q course.Quiz, _ ...core.DBExecutor) (course.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[q.CourseID]; !ok {
		return course.Quiz{}, course.ErrNotFound
	}
	q = copyQuiz(q)
	q.ID = uuid.New().String()
	for i := range q.Questions {
		q.Questions[i].ID = uuid.New().String()
	}
	repo.db.quizzes[q.ID] = &q
	return copyQuiz(q), nil
}

func (repo *courseRepository) GetQuiz(ctx context.Context, id string, _ ...core.DBExecutor) (course.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if q, ok := repo.db.quizzes[id]; ok {
		return copyQuiz(*q), nil
	}
	return course.Quiz{}, course.ErrQuizNotFound
}

func (repo *courseRepository) queryQuizzes(courseID string) []course.Quiz {
	quizzes := make([]course.Quiz, 0)
	for _, q := range repo.db.quizzes {
		if q.CourseID == courseID {
			quizzes = append(quizzes, copyQuiz(*q))
		}
	}
	sort.Slice(quizzes, func(i, j int) bool {
		if quizzes[i].CreatedAt.Equal(quizzes[j].CreatedAt) {
			return quizzes[i].ID < quizzes[j].ID
		}
		return quizzes[i].CreatedAt.Before(quizzes[j].CreatedAt)
	})
	return quizzes
}

func (repo *courseRepository) QueryQuizzes(ctx context.Context, courseID string, _ ...core.DBExecutor) ([]course.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.queryQuizzes(courseID), nil
}

func (repo *courseRepository) UpdateQuiz(ctx context.Context, q course.Quiz, _ ...core.DBExecutor) (course.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.quizzes[q.ID]
	if !ok {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	// questions are immutable
	q = copyQuiz(q)
	q.Questions = append([]course.Question(nil), orig.Questions...)
	repo.db.quizzes[q.ID] = &q
	return copyQuiz(q), nil
}

func (repo *courseRepository) DeleteQuiz(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.quizzes[id]; !ok {
		return course.ErrQuizNotFound
	}
	repo.deleteQuiz(id)
	return nil
}

func (repo *courseRepository) SaveSubmission(ctx context.Context, s course.Submission, _ ...core.DBExecutor) (course.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.assignments[s.AssignmentID]; !ok {
		return course.Submission{}, course.ErrAssignmentNotFound
	}
	for _, existing := range repo.db.submissions {
		if existing.AssignmentID == s.AssignmentID && existing.StudentID == s.StudentID {
			existing.Content = s.Content
			existing.SubmittedAt = s.SubmittedAt
			return copySubmission(*existing), nil
		}
	}

	s = copySubmission(s)
	s.ID = uuid.New().String()
	repo.db.submissions[s.ID] = &s
	return copySubmission(s), nil
}

func (repo *courseRepository) GetSubmission(ctx context.Context, id string, _ ...core.DBExecutor) (course.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.submissions[id]; ok {
		return copySubmission(*s), nil
	}
	return course.Submission{}, course.ErrSubmissionNotFound
}

func containsString(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}

func (repo *courseRepository) querySubmissions(filter course.SubmissionFilter) []course.Submission {
	subs := make([]course.Submission, 0)
	for _, s := range repo.db.submissions {
		if filter.AssignmentID != "" && s.AssignmentID != filter.AssignmentID {
			continue
		}
		if filter.CourseID != "" {
			a, ok := repo.db.assignments[s.AssignmentID]
			if !ok || a.CourseID != filter.CourseID {
				continue
			}
		}
		if filter.StudentIDs != nil && !containsString(filter.StudentIDs, s.StudentID) {
			continue
		}
		subs = append(subs, copySubmission(*s))
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
	})
	return subs
}

func (repo *courseRepository) QuerySubmissions(ctx context.Context, filter course.SubmissionFilter, _ ...core.DBExecutor) ([]course.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.querySubmissions(filter), nil
}

func (repo *courseRepository) UpdateSubmissionGrade(ctx context.Context, s course.Submission, _ ...core.DBExecutor) (course.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing, ok := repo.db.submissions[s.ID]
	if !ok {
		return course.Submission{}, course.ErrSubmissionNotFound
	}
	s = copySubmission(s)
	existing.Grade = s.Grade
	existing.Feedback = s.Feedback
	existing.GradedAt = s.GradedAt
	return copySubmission(*existing), nil
}

func (repo *courseRepository) CreateAttempt(ctx context.Context, a course.Attempt, _ ...core.DBExecutor) (course.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.quizzes[a.QuizID]; !ok {
		return course.Attempt{}, course.ErrQuizNotFound
	}
	a = copyAttempt(a)
	a.ID = uuid.New().String()
	repo.db.attempts[a.ID] = &a
	return copyAttempt(a), nil
}

func (repo *courseRepository) GetAttempt(ctx context.Context, id string, _ ...core.DBExecutor) (course.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.attempts[id]; ok {
		return copyAttempt(*a), nil
	}
	return course.Attempt{}, course.ErrAttemptNotFound
}

func (repo *courseRepository) queryAttempts(filter course.AttemptFilter) []course.Attempt {
	attempts := make([]course.Attempt, 0)
	for _, a := range repo.db.attempts {
		if filter.QuizID != "" && a.QuizID != filter.QuizID {
			continue
		}
		if filter.CourseID != "" {
			q, ok := repo.db.quizzes[a.QuizID]
			if !ok || q.CourseID != filter.CourseID {
				continue
			}
		}
		if filter.StudentIDs != nil && !containsString(filter.StudentIDs, a.StudentID) {
			continue
		}
		attempts = append(attempts, copyAttempt(*a))
	}
	sort.Slice(attempts, func(i, j int) bool {
		if attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].ID < attempts[j].ID
		}
		return attempts[i].StartedAt.Before(attempts[j].StartedAt)
	})
	return attempts
}

func (repo *courseRepository) QueryAttempts(ctx context.Context, filter course.AttemptFilter, _ ...core.DBExecutor) ([]course.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.queryAttempts(filter), nil
}

func (repo *courseRepository) UpdateAttempt(ctx context.Context, a course.Attempt, _ ...core.DBExecutor) (course.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing, ok := repo.db.attempts[a.ID]
	if !ok {
		return course.Attempt{}, course.ErrAttemptNotFound
	}
	a = copyAttempt(a)
	existing.PointsEarned = a.PointsEarned
	existing.FinishedAt = a.FinishedAt
	return copyAttempt(*existing), nil
}

func (repo *courseRepository) CreateGradeAudit(ctx context.Context, audit course.GradeAudit, _ ...core.DBExecutor) (course.GradeAudit, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	audit.ID = uuid.New().String()
	audit.OldGrade = copyFloat(audit.OldGrade)
	audit.NewGrade = copyFloat(audit.NewGrade)
	repo.db.audits[audit.ID] = &audit
	return audit, nil
}

func (repo *courseRepository) QueryGradeAudits(ctx context.Context, submissionID string, _ ...core.DBExecutor) ([]course.GradeAudit, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	audits := make([]course.GradeAudit, 0)
	for _, audit := range repo.db.audits {
		if audit.SubmissionID == submissionID {
			a := *audit
			a.OldGrade = copyFloat(a.OldGrade)
			a.NewGrade = copyFloat(a.NewGrade)
			audits = append(audits, a)
		}
	}
	sort.Slice(audits, func(i, j int) bool {
		if audits[i].CreatedAt.Equal(audits[j].CreatedAt) {
			return audits[i].ID < audits[j].ID
		}
		return audits[i].CreatedAt.Before(audits[j].CreatedAt)
	})
	return audits, nil
}
