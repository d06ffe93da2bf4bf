package boiledrepos

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
)

var (
	courseColumns     = []string{"id", "school_id", "teacher_id", "code", "title", "description", "created_at", "updated_at"}
	assignmentColumns = []string{"id", "course_id", "title", "description", "max_points", "category", "due_at", "created_at"}
	quizColumns       = []string{"id", "course_id", "title", "category", "created_at"}
	questionColumns   = []string{"id", "quiz_id", "position", "prompt", "points"}
	submissionColumns = []string{"id", "assignment_id", "student_id", "content", "grade", "feedback", "submitted_at", "graded_at"}
	attemptColumns    = []string{"id", "quiz_id", "student_id", "points_earned", "started_at", "finished_at"}
	auditColumns      = []string{"id", "submission_id", "grader_id", "old_grade", "new_grade", "created_at"}
)

type (
	courseRow struct {
		ID          string    `boil:"id"`
		SchoolID    string    `boil:"school_id"`
		TeacherID   string    `boil:"teacher_id"`
		Code        string    `boil:"code"`
		Title       string    `boil:"title"`
		Description string    `boil:"description"`
		CreatedAt   time.Time `boil:"created_at"`
		UpdatedAt   time.Time `boil:"updated_at"`
	}

	categoryRow struct {
		CourseID string  `boil:"course_id"`
		Name     string  `boil:"name"`
		Weight   float64 `boil:"weight"`
	}

	bandRow struct {
		CourseID      string  `boil:"course_id"`
		Label         string  `boil:"label"`
		MinPercentage float64 `boil:"min_percentage"`
	}

	enrollmentRow struct {
		CourseID  string    `boil:"course_id"`
		StudentID string    `boil:"student_id"`
		CreatedAt time.Time `boil:"created_at"`
	}

	assignmentRow struct {
		ID          string      `boil:"id"`
		CourseID    string      `boil:"course_id"`
		Title       string      `boil:"title"`
		Description string      `boil:"description"`
		MaxPoints   float64     `boil:"max_points"`
		Category    null.String `boil:"category"`
		DueAt       null.Time   `boil:"due_at"`
		CreatedAt   time.Time   `boil:"created_at"`
	}

	quizRow struct {
		ID        string      `boil:"id"`
		CourseID  string      `boil:"course_id"`
		Title     string      `boil:"title"`
		Category  null.String `boil:"category"`
		CreatedAt time.Time   `boil:"created_at"`
	}

	questionRow struct {
		ID       string  `boil:"id"`
		QuizID   string  `boil:"quiz_id"`
		Position int     `boil:"position"`
		Prompt   string  `boil:"prompt"`
		Points   float64 `boil:"points"`
	}

	submissionRow struct {
		ID           string       `boil:"id"`
		AssignmentID string       `boil:"assignment_id"`
		StudentID    string       `boil:"student_id"`
		Content      string       `boil:"content"`
		Grade        null.Float64 `boil:"grade"`
		Feedback     string       `boil:"feedback"`
		SubmittedAt  time.Time    `boil:"submitted_at"`
		GradedAt     null.Time    `boil:"graded_at"`
	}

	attemptRow struct {
		ID           string       `boil:"id"`
		QuizID       string       `boil:"quiz_id"`
		StudentID    string       `boil:"student_id"`
		PointsEarned null.Float64 `boil:"points_earned"`
		StartedAt    time.Time    `boil:"started_at"`
		FinishedAt   null.Time    `boil:"finished_at"`
	}

	auditRow struct {
		ID           string       `boil:"id"`
		SubmissionID string       `boil:"submission_id"`
		GraderID     null.String  `boil:"grader_id"`
		OldGrade     null.Float64 `boil:"old_grade"`
		NewGrade     null.Float64 `boil:"new_grade"`
		CreatedAt    time.Time    `boil:"created_at"`
	}
)

func categoryFrom(s null.String) *course.Category {
	if !s.Valid {
		return nil
	}
	return course.CategoryPtr(s.String)
}

func nullCategory(c *course.Category) null.String {
	if c == nil {
		return null.String{}
	}
	return null.StringFrom(string(*c))
}

func nullTimePtr(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func (row courseRow) unboil() course.Course {
	return course.Course{
		ID:          row.ID,
		SchoolID:    row.SchoolID,
		TeacherID:   row.TeacherID,
		Code:        row.Code,
		Title:       row.Title,
		Description: row.Description,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func (row assignmentRow) unboil() course.Assignment {
	return course.Assignment{
		ID:          row.ID,
		CourseID:    row.CourseID,
		Title:       row.Title,
		Description: row.Description,
		MaxPoints:   row.MaxPoints,
		Category:    categoryFrom(row.Category),
		DueAt:       row.DueAt.Ptr(),
		CreatedAt:   row.CreatedAt,
	}
}

func (row submissionRow) unboil() course.Submission {
	return course.Submission{
		ID:           row.ID,
		AssignmentID: row.AssignmentID,
		StudentID:    row.StudentID,
		Content:      row.Content,
		Grade:        row.Grade.Ptr(),
		Feedback:     row.Feedback,
		SubmittedAt:  row.SubmittedAt,
		GradedAt:     row.GradedAt.Ptr(),
	}
}

func (row attemptRow) unboil() course.Attempt {
	return course.Attempt{
		ID:           row.ID,
		QuizID:       row.QuizID,
		StudentID:    row.StudentID,
		PointsEarned: row.PointsEarned.Ptr(),
		StartedAt:    row.StartedAt,
		FinishedAt:   row.FinishedAt.Ptr(),
	}
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type courseRepository struct {
	baseRepository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) course.Repository {
	return &courseRepository{baseRepository{exec: exec}}
}

// inTx runs fn in a transaction unless exec already is one.
func (repo courseRepository) inTx(ctx context.Context, exec []core.DBExecutor, fn func(exec core.DBExecutor) error) error {
	exe := repo.getExec(exec)
	if db, ok := exe.(core.DB); ok {
		return core.RunInTx(ctx, db, fn)
	}
	return fn(exe)
}

// loadGrading fills the grading weights and scale of courses.
func (repo courseRepository) loadGrading(ctx context.Context, exec core.DBExecutor, courses []course.Course) error {
	if len(courses) == 0 {
		return nil
	}
	ids := make([]string, len(courses))
	idx := make(map[string]int, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
		idx[c.ID] = i
	}

	var cats []categoryRow
	err := NewQuery(
		qm.Select("course_id", "name", "weight"),
		qm.From("grading_category"),
		qm.WhereIn("course_id IN ?", interfaces(ids)...),
	).Bind(ctx, exec, &cats)
	if err != nil {
		return errors.Wrap(err, "loading grading categories")
	}
	for _, row := range cats {
		c := &courses[idx[row.CourseID]]
		if c.GradingWeights == nil {
			c.GradingWeights = make(map[course.Category]float64)
		}
		c.GradingWeights[course.Category(row.Name)] = row.Weight
	}

	var bands []bandRow
	err = NewQuery(
		qm.Select("course_id", "label", "min_percentage"),
		qm.From("grading_scale_band"),
		qm.WhereIn("course_id IN ?", interfaces(ids)...),
		qm.OrderBy("min_percentage DESC, label"),
	).Bind(ctx, exec, &bands)
	if err != nil {
		return errors.Wrap(err, "loading grading scale")
	}
	for _, row := range bands {
		c := &courses[idx[row.CourseID]]
		c.GradingScale = append(c.GradingScale, course.ScaleBand{Label: row.Label, MinPercentage: row.MinPercentage})
	}
	return nil
}

// saveGrading replaces the course's grading scale and weights.
// Categories are upserted first so the ones referenced by items are never deleted.
func (repo courseRepository) saveGrading(ctx context.Context, exec core.DBExecutor, c course.Course) error {
	names := make([]string, 0, len(c.GradingWeights))
	for _, cat := range c.Categories() {
		_, err := queries.Raw(
			`INSERT INTO grading_category (course_id, name, weight) VALUES ($1, $2, $3)
			ON CONFLICT (course_id, name) DO UPDATE SET weight = EXCLUDED.weight`,
			c.ID, string(cat), c.GradingWeights[cat],
		).ExecContext(ctx, exec)
		if err != nil {
			return errors.Wrap(err, "saving grading category")
		}
		names = append(names, string(cat))
	}

	mods := []qm.QueryMod{qm.From("grading_category"), qm.Where("course_id = ?", c.ID)}
	if len(names) > 0 {
		mods = append(mods, qm.WhereIn("name NOT IN ?", interfaces(names)...))
	}
	if _, err := deleteAll(ctx, exec, mods...); err != nil {
		return errors.Wrap(err, "deleting grading categories")
	}

	if _, err := deleteAll(ctx, exec, qm.From("grading_scale_band"), qm.Where("course_id = ?", c.ID)); err != nil {
		return errors.Wrap(err, "deleting grading scale")
	}
	for _, band := range c.GradingScale {
		_, err := queries.Raw(
			"INSERT INTO grading_scale_band (course_id, label, min_percentage) VALUES ($1, $2, $3)",
			c.ID, band.Label, band.MinPercentage,
		).ExecContext(ctx, exec)
		if err != nil {
			return errors.Wrap(err, "saving grading scale band")
		}
	}
	return nil
}

func trapCourseErr(err error, msg string) error {
	if constraint, ok := violatedConstraint(err); ok && constraint == "course_school_id_code_key" {
		return course.ErrCodeExists
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	c.ID = uuid.New().String()
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		_, err := queries.Raw(
			`INSERT INTO course (id, school_id, teacher_id, code, title, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.SchoolID, c.TeacherID, c.Code, c.Title, c.Description, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
		).ExecContext(ctx, exe)
		if err != nil {
			return trapCourseErr(err, "inserting course")
		}
		return repo.saveGrading(ctx, exe, c)
	})
	if err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, filter course.GetFilter, exec ...core.DBExecutor) (course.Course, error) {
	if !isUUID(filter.ID) {
		return course.Course{}, course.ErrNotFound
	}
	mods := []qm.QueryMod{qm.Select(courseColumns...), qm.From("course"), qm.Where("id = ?", filter.ID)}
	if filter.SchoolID != "" {
		mods = append(mods, qm.Where("school_id = ?", filter.SchoolID))
	}

	exe := repo.getExec(exec)
	var row courseRow
	if err := NewQuery(mods...).Bind(ctx, exe, &row); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	courses := []course.Course{row.unboil()}
	if err := repo.loadGrading(ctx, exe, courses); err != nil {
		return course.Course{}, err
	}
	return courses[0], nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	mods := []qm.QueryMod{qm.Select(courseColumns...), qm.From("course")}
	if filter != nil {
		if filter.SchoolID != "" {
			mods = append(mods, qm.Where("school_id = ?", filter.SchoolID))
		}
		if filter.TeacherID != "" {
			if !isUUID(filter.TeacherID) {
				return []course.Course{}, nil
			}
			mods = append(mods, qm.Where("teacher_id = ?", filter.TeacherID))
		}
		if filter.StudentID != "" {
			if !isUUID(filter.StudentID) {
				return []course.Course{}, nil
			}
			mods = append(mods, qm.Where("id IN (SELECT course_id FROM enrollment WHERE student_id = ?)", filter.StudentID))
		}
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			mods = append(mods, qm.Expr(qm.Where("code ILIKE ? OR title ILIKE ?", val, val)))
		}
	}
	mods = append(mods, orderByMod(ordering, "code"))

	exe := repo.getExec(exec)
	var rows []courseRow
	if err := NewQuery(mods...).Bind(ctx, exe, &rows); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.unboil())
	}
	if err := repo.loadGrading(ctx, exe, courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		affected, err := update(ctx, exe, map[string]interface{}{
			"teacher_id":  c.TeacherID,
			"code":        c.Code,
			"title":       c.Title,
			"description": c.Description,
			"updated_at":  c.UpdatedAt.UTC(),
		}, qm.From("course"), qm.Where("id = ?", c.ID))
		if err != nil {
			return trapCourseErr(err, "updating course")
		}
		if affected == 0 {
			return course.ErrNotFound
		}
		return repo.saveGrading(ctx, exe, c)
	})
	if err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return course.ErrNotFound
	}
	cnt, err := deleteAll(ctx, repo.getExec(exec), qm.From("course"), qm.Where("id = ?", id))
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if cnt == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo courseRepository) CategoriesInUse(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Category, error) {
	var rows []struct {
		Category string `boil:"category"`
	}
	err := queries.Raw(
		`SELECT category FROM assignment WHERE course_id = $1 AND category IS NOT NULL
		UNION
		SELECT category FROM quiz WHERE course_id = $1 AND category IS NOT NULL`,
		courseID,
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "listing categories in use")
	}

	cats := make([]course.Category, 0, len(rows))
	for _, row := range rows {
		cats = append(cats, course.Category(row.Category))
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats, nil
}

func (repo courseRepository) CreateEnrollment(ctx context.Context, e course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	_, err := queries.Raw(
		"INSERT INTO enrollment (course_id, student_id, created_at) VALUES ($1, $2, $3)",
		e.CourseID, e.StudentID, e.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		if _, ok := violatedConstraint(err); ok {
			return course.Enrollment{}, course.ErrAlreadyEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo courseRepository) DeleteEnrollment(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) error {
	if !isUUID(studentID) {
		return course.ErrNotEnrolled
	}
	cnt, err := deleteAll(ctx, repo.getExec(exec),
		qm.From("enrollment"),
		qm.Where("course_id = ?", courseID),
		qm.Where("student_id = ?", studentID),
	)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	if cnt == 0 {
		return course.ErrNotEnrolled
	}
	return nil
}

func (repo courseRepository) IsEnrolled(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(courseID) || !isUUID(studentID) {
		return false, nil
	}
	cnt, err := count(ctx, repo.getExec(exec),
		qm.From("enrollment"),
		qm.Where("course_id = ?", courseID),
		qm.Where("student_id = ?", studentID),
	)
	if err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return cnt > 0, nil
}

func (repo courseRepository) QueryEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	var rows []enrollmentRow
	err := NewQuery(
		qm.Select("course_id", "student_id", "created_at"),
		qm.From("enrollment"),
		qm.Where("course_id = ?", courseID),
		qm.OrderBy("created_at, student_id"),
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, course.Enrollment(row))
	}
	return enrollments, nil
}

func (repo courseRepository) CreateAssignment(ctx context.Context, a course.Assignment, exec ...core.DBExecutor) (course.Assignment, error) {
	a.ID = uuid.New().String()
	_, err := queries.Raw(
		`INSERT INTO assignment (id, course_id, title, description, max_points, category, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CourseID, a.Title, a.Description, a.MaxPoints, nullCategory(a.Category), nullTimePtr(a.DueAt), a.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return course.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo courseRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (course.Assignment, error) {
	if !isUUID(id) {
		return course.Assignment{}, course.ErrAssignmentNotFound
	}
	var row assignmentRow
	err := NewQuery(
		qm.Select(assignmentColumns...),
		qm.From("assignment"),
		qm.Where("id = ?", id),
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Assignment{}, course.ErrAssignmentNotFound
		}
		return course.Assignment{}, errors.Wrap(err, "finding assignment")
	}
	return row.unboil(), nil
}

func (repo courseRepository) QueryAssignments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Assignment, error) {
	var rows []assignmentRow
	err := NewQuery(
		qm.Select(assignmentColumns...),
		qm.From("assignment"),
		qm.Where("course_id = ?", courseID),
		qm.OrderBy("created_at, id"),
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]course.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.unboil())
	}
	return assignments, nil
}

func (repo courseRepository) UpdateAssignment(ctx context.Context, a course.Assignment, exec ...core.DBExecutor) (course.Assignment, error) {
	affected, err := update(ctx, repo.getExec(exec), map[string]interface{}{
		"title":       a.Title,
		"description": a.Description,
		"max_points":  a.MaxPoints,
		"category":    nullCategory(a.Category),
		"due_at":      nullTimePtr(a.DueAt),
	}, qm.From("assignment"), qm.Where("id = ?", a.ID))
	if err != nil {
		return course.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if affected == 0 {
		return course.Assignment{}, course.ErrAssignmentNotFound
	}
	return a, nil
}

func (repo courseRepository) DeleteAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return course.ErrAssignmentNotFound
	}
	cnt, err := deleteAll(ctx, repo.getExec(exec), qm.From("assignment"), qm.Where("id = ?", id))
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if cnt == 0 {
		return course.ErrAssignmentNotFound
	}
	return nil
}

func (repo courseRepository) CreateQuiz(ctx context.Context, q course.Quiz, exec ...core.DBExecutor) (course.Quiz, error) {
	q.ID = uuid.New().String()
	q.Questions = append([]course.Question(nil), q.Questions...)
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		_, err := queries.Raw(
			"INSERT INTO quiz (id, course_id, title, category, created_at) VALUES ($1, $2, $3, $4, $5)",
			q.ID, q.CourseID, q.Title, nullCategory(q.Category), q.CreatedAt.UTC(),
		).ExecContext(ctx, exe)
		if err != nil {
			return errors.Wrap(err, "inserting quiz")
		}
		for i := range q.Questions {
			qn := &q.Questions[i]
			qn.ID = uuid.New().String()
			_, err = queries.Raw(
				"INSERT INTO quiz_question (id, quiz_id, position, prompt, points) VALUES ($1, $2, $3, $4, $5)",
				qn.ID, q.ID, qn.Position, qn.Prompt, qn.Points,
			).ExecContext(ctx, exe)
			if err != nil {
				return errors.Wrap(err, "inserting quiz question")
			}
		}
		return nil
	})
	if err != nil {
		return course.Quiz{}, err
	}
	return q, nil
}

// loadQuizzes builds the quizzes of rows with their questions.
func (repo courseRepository) loadQuizzes(ctx context.Context, exec core.DBExecutor, rows []quizRow) ([]course.Quiz, error) {
	quizzes := make([]course.Quiz, 0, len(rows))
	if len(rows) == 0 {
		return quizzes, nil
	}
	ids := make([]string, len(rows))
	idx := make(map[string]int, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		idx[row.ID] = i
		quizzes = append(quizzes, course.Quiz{
			ID:        row.ID,
			CourseID:  row.CourseID,
			Title:     row.Title,
			Category:  categoryFrom(row.Category),
			Questions: []course.Question{},
			CreatedAt: row.CreatedAt,
		})
	}

	var questions []questionRow
	err := NewQuery(
		qm.Select(questionColumns...),
		qm.From("quiz_question"),
		qm.WhereIn("quiz_id IN ?", interfaces(ids)...),
		qm.OrderBy("quiz_id, position"),
	).Bind(ctx, exec, &questions)
	if err != nil {
		return nil, errors.Wrap(err, "loading quiz questions")
	}
	for _, qn := range questions {
		q := &quizzes[idx[qn.QuizID]]
		q.Questions = append(q.Questions, course.Question{ID: qn.ID, Position: qn.Position, Prompt: qn.Prompt, Points: qn.Points})
	}
	return quizzes, nil
}

func (repo courseRepository) GetQuiz(ctx context.Context, id string, exec ...core.DBExecutor) (course.Quiz, error) {
	if !isUUID(id) {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	exe := repo.getExec(exec)
	var row quizRow
	err := NewQuery(qm.Select(quizColumns...), qm.From("quiz"), qm.Where("id = ?", id)).Bind(ctx, exe, &row)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Quiz{}, course.ErrQuizNotFound
		}
		return course.Quiz{}, errors.Wrap(err, "finding quiz")
	}
	quizzes, err := repo.loadQuizzes(ctx, exe, []quizRow{row})
	if err != nil {
		return course.Quiz{}, err
	}
	return quizzes[0], nil
}

func (repo courseRepository) QueryQuizzes(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Quiz, error) {
	exe := repo.getExec(exec)
	var rows []quizRow
	err := NewQuery(
		qm.Select(quizColumns...),
		qm.From("quiz"),
		qm.Where("course_id = ?", courseID),
		qm.OrderBy("created_at, id"),
	).Bind(ctx, exe, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying quizzes")
	}
	return repo.loadQuizzes(ctx, exe, rows)
}

func (repo courseRepository) UpdateQuiz(ctx context.Context, q course.Quiz, exec ...core.DBExecutor) (course.Quiz, error) {
	affected, err := update(ctx, repo.getExec(exec), map[string]interface{}{
		"title":    q.Title,
		"category": nullCategory(q.Category),
	}, qm.From("quiz"), qm.Where("id = ?", q.ID))
	if err != nil {
		return course.Quiz{}, errors.Wrap(err, "updating quiz")
	}
	if affected == 0 {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	return q, nil
}

func (repo courseRepository) DeleteQuiz(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return course.ErrQuizNotFound
	}
	cnt, err := deleteAll(ctx, repo.getExec(exec), qm.From("quiz"), qm.Where("id = ?", id))
	if err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	if cnt == 0 {
		return course.ErrQuizNotFound
	}
	return nil
}

func (repo courseRepository) SaveSubmission(ctx context.Context, s course.Submission, exec ...core.DBExecutor) (course.Submission, error) {
	var row submissionRow
	err := queries.Raw(
		`INSERT INTO submission (id, assignment_id, student_id, content, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (assignment_id, student_id) DO UPDATE
		SET content = EXCLUDED.content, submitted_at = EXCLUDED.submitted_at
		RETURNING id, assignment_id, student_id, content, grade, feedback, submitted_at, graded_at`,
		uuid.New().String(), s.AssignmentID, s.StudentID, s.Content, s.SubmittedAt.UTC(),
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return course.Submission{}, errors.Wrap(err, "saving submission")
	}
	return row.unboil(), nil
}

func (repo courseRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (course.Submission, error) {
	if !isUUID(id) {
		return course.Submission{}, course.ErrSubmissionNotFound
	}
	var row submissionRow
	err := NewQuery(
		qm.Select(submissionColumns...),
		qm.From("submission"),
		qm.Where("id = ?", id),
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Submission{}, course.ErrSubmissionNotFound
		}
		return course.Submission{}, errors.Wrap(err, "finding submission")
	}
	return row.unboil(), nil
}

func (repo courseRepository) QuerySubmissions(ctx context.Context, filter course.SubmissionFilter, exec ...core.DBExecutor) ([]course.Submission, error) {
	mods := []qm.QueryMod{qm.Select(submissionColumns...), qm.From("submission")}
	if filter.AssignmentID != "" {
		mods = append(mods, qm.Where("assignment_id = ?", filter.AssignmentID))
	}
	if filter.CourseID != "" {
		mods = append(mods, qm.Where("assignment_id IN (SELECT id FROM assignment WHERE course_id = ?)", filter.CourseID))
	}
	if filter.StudentIDs != nil {
		if len(filter.StudentIDs) == 0 {
			return []course.Submission{}, nil
		}
		mods = append(mods, qm.WhereIn("student_id IN ?", interfaces(filter.StudentIDs)...))
	}
	mods = append(mods, qm.OrderBy("submitted_at, id"))

	var rows []submissionRow
	if err := NewQuery(mods...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]course.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.unboil())
	}
	return subs, nil
}

func (repo courseRepository) UpdateSubmissionGrade(ctx context.Context, s course.Submission, exec ...core.DBExecutor) (course.Submission, error) {
	affected, err := update(ctx, repo.getExec(exec), map[string]interface{}{
		"grade":     null.Float64FromPtr(s.Grade),
		"feedback":  s.Feedback,
		"graded_at": nullTimePtr(s.GradedAt),
	}, qm.From("submission"), qm.Where("id = ?", s.ID))
	if err != nil {
		return course.Submission{}, errors.Wrap(err, "updating submission grade")
	}
	if affected == 0 {
		return course.Submission{}, course.ErrSubmissionNotFound
	}
	return s, nil
}

func (repo courseRepository) CreateAttempt(ctx context.Context, a course.Attempt, exec ...core.DBExecutor) (course.Attempt, error) {
	a.ID = uuid.New().String()
	_, err := queries.Raw(
		`INSERT INTO quiz_attempt (id, quiz_id, student_id, points_earned, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.QuizID, a.StudentID, null.Float64FromPtr(a.PointsEarned), a.StartedAt.UTC(), nullTimePtr(a.FinishedAt),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return course.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return a, nil
}

func (repo courseRepository) GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (course.Attempt, error) {
	if !isUUID(id) {
		return course.Attempt{}, course.ErrAttemptNotFound
	}
	var row attemptRow
	err := NewQuery(
		qm.Select(attemptColumns...),
		qm.From("quiz_attempt"),
		qm.Where("id = ?", id),
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Attempt{}, course.ErrAttemptNotFound
		}
		return course.Attempt{}, errors.Wrap(err, "finding attempt")
	}
	return row.unboil(), nil
}

func (repo courseRepository) QueryAttempts(ctx context.Context, filter course.AttemptFilter, exec ...core.DBExecutor) ([]course.Attempt, error) {
	mods := []qm.QueryMod{qm.Select(attemptColumns...), qm.From("quiz_attempt")}
	if filter.QuizID != "" {
		mods = append(mods, qm.Where("quiz_id = ?", filter.QuizID))
	}
	if filter.CourseID != "" {
		mods = append(mods, qm.Where("quiz_id IN (SELECT id FROM quiz WHERE course_id = ?)", filter.CourseID))
	}
	if filter.StudentIDs != nil {
		if len(filter.StudentIDs) == 0 {
			return []course.Attempt{}, nil
		}
		mods = append(mods, qm.WhereIn("student_id IN ?", interfaces(filter.StudentIDs)...))
	}
	mods = append(mods, qm.OrderBy("started_at, id"))

	var rows []attemptRow
	if err := NewQuery(mods...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]course.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.unboil())
	}
	return attempts, nil
}

func (repo courseRepository) UpdateAttempt(ctx context.Context, a course.Attempt, exec ...core.DBExecutor) (course.Attempt, error) {
	affected, err := update(ctx, repo.getExec(exec), map[string]interface{}{
		"points_earned": null.Float64FromPtr(a.PointsEarned),
		"finished_at":   nullTimePtr(a.FinishedAt),
	}, qm.From("quiz_attempt"), qm.Where("id = ?", a.ID))
	if err != nil {
		return course.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	if affected == 0 {
		return course.Attempt{}, course.ErrAttemptNotFound
	}
	return a, nil
}

func (repo courseRepository) CreateGradeAudit(ctx context.Context, a course.GradeAudit, exec ...core.DBExecutor) (course.GradeAudit, error) {
	a.ID = uuid.New().String()
	_, err := queries.Raw(
		`INSERT INTO grade_audit (id, submission_id, grader_id, old_grade, new_grade, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.SubmissionID, null.NewString(a.GraderID, a.GraderID != ""),
		null.Float64FromPtr(a.OldGrade), null.Float64FromPtr(a.NewGrade), a.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return course.GradeAudit{}, errors.Wrap(err, "inserting grade audit")
	}
	return a, nil
}

func (repo courseRepository) QueryGradeAudits(ctx context.Context, submissionID string, exec ...core.DBExecutor) ([]course.GradeAudit, error) {
	if !isUUID(submissionID) {
		return []course.GradeAudit{}, nil
	}
	var rows []auditRow
	err := NewQuery(
		qm.Select(auditColumns...),
		qm.From("grade_audit"),
		qm.Where("submission_id = ?", submissionID),
		qm.OrderBy("created_at, id"),
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying grade audits")
	}
	audits := make([]course.GradeAudit, 0, len(rows))
	for _, row := range rows {
		audits = append(audits, course.GradeAudit{
			ID:           row.ID,
			SubmissionID: row.SubmissionID,
			GraderID:     row.GraderID.String,
			OldGrade:     row.OldGrade.Ptr(),
			NewGrade:     row.NewGrade.Ptr(),
			CreatedAt:    row.CreatedAt,
		})
	}
	return audits, nil
}
