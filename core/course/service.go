package course

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("course not found")
	ErrAssignmentNotFound = core.NewNotFoundError("assignment not found")
	ErrQuizNotFound       = core.NewNotFoundError("quiz not found")
	ErrSubmissionNotFound = core.NewNotFoundError("submission not found")
	ErrAttemptNotFound    = core.NewNotFoundError("attempt not found")
	ErrNotEnrolled        = core.NewNotFoundError("student is not enrolled in this course")
	ErrAlreadyEnrolled    = errors.New("student is already enrolled in this course")
	ErrCodeExists         = errors.New("a course with this code already exists")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		// GetCourse returns the course with its grading weights and scale.
		GetCourse(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		// UpdateCourse saves the course's fields and replaces its grading weights and scale.
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
		// CategoriesInUse lists the distinct categories referenced by the course's assignments and quizzes.
		CategoriesInUse(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Category, error)

		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		DeleteEnrollment(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) error
		IsEnrolled(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error)
		QueryEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Enrollment, error)

		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error)
		QueryAssignments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error

		// CreateQuiz saves the quiz with its questions.
		CreateQuiz(ctx context.Context, q Quiz, exec ...core.DBExecutor) (Quiz, error)
		GetQuiz(ctx context.Context, id string, exec ...core.DBExecutor) (Quiz, error)
		QueryQuizzes(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Quiz, error)
		// UpdateQuiz saves the quiz's title and category; questions are immutable.
		UpdateQuiz(ctx context.Context, q Quiz, exec ...core.DBExecutor) (Quiz, error)
		DeleteQuiz(ctx context.Context, id string, exec ...core.DBExecutor) error

		// SaveSubmission creates or replaces the student's submission for the assignment.
		SaveSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (Submission, error)
		QuerySubmissions(ctx context.Context, filter SubmissionFilter, exec ...core.DBExecutor) ([]Submission, error)
		UpdateSubmissionGrade(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)

		CreateAttempt(ctx context.Context, a Attempt, exec ...core.DBExecutor) (Attempt, error)
		GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (Attempt, error)
		QueryAttempts(ctx context.Context, filter AttemptFilter, exec ...core.DBExecutor) ([]Attempt, error)
		UpdateAttempt(ctx context.Context, a Attempt, exec ...core.DBExecutor) (Attempt, error)

		CreateGradeAudit(ctx context.Context, a GradeAudit, exec ...core.DBExecutor) (GradeAudit, error)
		QueryGradeAudits(ctx context.Context, submissionID string, exec ...core.DBExecutor) ([]GradeAudit, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse, creator user.User) (Course, error)
		Get(ctx context.Context, schoolID, id string) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error)
		UpdateGrading(ctx context.Context, c Course, gc GradingConfig) (Course, error)
		Delete(ctx context.Context, c Course) error

		Enroll(ctx context.Context, c Course, ne NewEnrollment) (Enrollment, error)
		Unenroll(ctx context.Context, c Course, studentID string) error
		IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
		ListStudents(ctx context.Context, c Course) ([]user.User, error)

		CreateAssignment(ctx context.Context, c Course, na NewAssignment) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		ListAssignments(ctx context.Context, c Course) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, c Course, a Assignment, ui UpdateItem) (Assignment, error)
		DeleteAssignment(ctx context.Context, a Assignment) error

		CreateQuiz(ctx context.Context, c Course, nq NewQuiz) (Quiz, error)
		GetQuiz(ctx context.Context, id string) (Quiz, error)
		ListQuizzes(ctx context.Context, c Course) ([]Quiz, error)
		UpdateQuiz(ctx context.Context, c Course, q Quiz, ui UpdateItem) (Quiz, error)
		DeleteQuiz(ctx context.Context, q Quiz) error

		Submit(ctx context.Context, a Assignment, student user.User, ns NewSubmission) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
		GradeSubmission(ctx context.Context, c Course, a Assignment, s Submission, grader user.User, gs GradeSubmission) (Submission, error)
		ListGradeAudits(ctx context.Context, s Submission) ([]GradeAudit, error)

		RecordAttempt(ctx context.Context, q Quiz, na NewAttempt) (Attempt, error)
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error)
		ScoreAttempt(ctx context.Context, q Quiz, a Attempt, sa ScoreAttempt) (Attempt, error)
	}

	service struct {
		db      core.DB
		repo    Repository
		usrRepo user.Repository
		mailSvc core.EmailService
		logger  core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

// NewService returns the course Service. A nil db runs multi-step writes without a transaction.
func NewService(db core.DB, repo Repository, usrRepo user.Repository, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{
		db:      db,
		repo:    repo,
		usrRepo: usrRepo,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// checkCategory makes sure cat, when set, is one of the course's grading categories.
func checkCategory(c Course, cat *Category) error {
	if cat == nil {
		return nil
	}
	if !c.IsWeighted() {
		return core.NewFieldError("category", noCategoriesText)
	}
	if !c.HasCategory(*cat) {
		return core.NewFieldError("category", unknownCategoryText)
	}
	return nil
}

func (svc *service) getSchoolUser(ctx context.Context, schoolID, id string) (user.User, error) {
	usr, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: id})
	if err != nil {
		return user.User{}, err
	}
	if usr.SchoolID != schoolID {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (svc *service) Create(ctx context.Context, nc NewCourse, creator user.User) (Course, error) {
	teacherID := nc.TeacherID
	if teacherID == "" {
		teacherID = creator.ID
	}
	teacher, err := svc.getSchoolUser(ctx, nc.SchoolID, teacherID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return Course{}, errors.Wrap(err, "finding teacher")
	}
	if err != nil || !(teacher.IsTeacher() || teacher.IsAdmin()) {
		return Course{}, core.NewFieldError("teacher_id", notATeacherText)
	}

	now := time.Now().UTC()
	c, err := svc.repo.CreateCourse(ctx, Course{
		SchoolID:       nc.SchoolID,
		TeacherID:      teacher.ID,
		Code:           nc.Code,
		Title:          nc.Title,
		Description:    nc.Description,
		GradingWeights: nc.weights(),
		GradingScale:   nc.scale(),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if errors.Cause(err) == ErrCodeExists {
		return Course{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
	}
	return c, err
}

func (svc *service) Get(ctx context.Context, schoolID, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, GetFilter{ID: id, SchoolID: schoolID})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, core.CleanOrderings(ordering, OrderingFields...))
}

func (svc *service) Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error) {
	if uc.Code != "" {
		c.Code = uc.Code
	}
	if uc.Title != "" {
		c.Title = uc.Title
	}
	if uc.Description != "" {
		c.Description = uc.Description
	}
	c.UpdatedAt = time.Now().UTC()

	c, err := svc.repo.UpdateCourse(ctx, c)
	if errors.Cause(err) == ErrCodeExists {
		return Course{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
	}
	return c, err
}

// UpdateGrading replaces the course's grading weights and scale.
// Categories still referenced by assignments or quizzes cannot be dropped.
func (svc *service) UpdateGrading(ctx context.Context, c Course, gc GradingConfig) (Course, error) {
	c.GradingWeights = gc.weights()
	c.GradingScale = gc.scale()
	c.UpdatedAt = time.Now().UTC()

	var updated Course
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		inUse, err := svc.repo.CategoriesInUse(ctx, c.ID, exec)
		if err != nil {
			return errors.Wrap(err, "listing categories in use")
		}
		var missing []string
		for _, cat := range inUse {
			if !c.HasCategory(cat) {
				missing = append(missing, strconv.Quote(string(cat)))
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return core.NewFieldError(
				"grading_weights",
				fmt.Sprintf("categories still used by assignments or quizzes: %s", strings.Join(missing, ", ")),
			)
		}

		updated, err = svc.repo.UpdateCourse(ctx, c, exec)
		return errors.Wrap(err, "updating course")
	})
	return updated, err
}

func (svc *service) Delete(ctx context.Context, c Course) error {
	return svc.repo.DeleteCourse(ctx, c.ID)
}

func (svc *service) Enroll(ctx context.Context, c Course, ne NewEnrollment) (Enrollment, error) {
	student, err := svc.getSchoolUser(ctx, c.SchoolID, ne.StudentID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return Enrollment{}, errors.Wrap(err, "finding student")
	}
	if err != nil || !student.IsStudent() {
		return Enrollment{}, core.NewFieldError("student_id", notAStudentText)
	}

	e, err := svc.repo.CreateEnrollment(ctx, Enrollment{CourseID: c.ID, StudentID: student.ID, CreatedAt: time.Now().UTC()})
	if errors.Cause(err) == ErrAlreadyEnrolled {
		return Enrollment{}, core.NewFieldError("student_id", alreadyEnrolledText)
	}
	return e, err
}

func (svc *service) Unenroll(ctx context.Context, c Course, studentID string) error {
	return svc.repo.DeleteEnrollment(ctx, c.ID, studentID)
}

func (svc *service) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	return svc.repo.IsEnrolled(ctx, courseID, studentID)
}

// ListStudents returns the students enrolled in the course, sorted by name.
func (svc *service) ListStudents(ctx context.Context, c Course) ([]user.User, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}

	students := make([]user.User, 0, len(enrollments))
	for _, e := range enrollments {
		usr, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: e.StudentID})
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return nil, errors.Wrap(err, "finding student")
		}
		students = append(students, usr)
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (svc *service) CreateAssignment(ctx context.Context, c Course, na NewAssignment) (Assignment, error) {
	cat := CategoryPtr(na.Category)
	if err := checkCategory(c, cat); err != nil {
		return Assignment{}, err
	}
	var dueAt *time.Time
	if na.DueAt != nil {
		t := na.DueAt.UTC()
		dueAt = &t
	}
	return svc.repo.CreateAssignment(ctx, Assignment{
		CourseID:    c.ID,
		Title:       na.Title,
		Description: na.Description,
		MaxPoints:   na.MaxPoints,
		Category:    cat,
		DueAt:       dueAt,
		CreatedAt:   time.Now().UTC(),
	})
}

func (svc *service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *service) ListAssignments(ctx context.Context, c Course) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, c.ID)
}

func (svc *service) UpdateAssignment(ctx context.Context, c Course, a Assignment, ui UpdateItem) (Assignment, error) {
	if ui.Title != "" {
		a.Title = ui.Title
	}
	if ui.Category != nil {
		cat := CategoryPtr(*ui.Category)
		if err := checkCategory(c, cat); err != nil {
			return Assignment{}, err
		}
		a.Category = cat
	}
	return svc.repo.UpdateAssignment(ctx, a)
}

func (svc *service) DeleteAssignment(ctx context.Context, a Assignment) error {
	return svc.repo.DeleteAssignment(ctx, a.ID)
}

func (svc *service) CreateQuiz(ctx context.Context, c Course, nq NewQuiz) (Quiz, error) {
	cat := CategoryPtr(nq.Category)
	if err := checkCategory(c, cat); err != nil {
		return Quiz{}, err
	}

	questions := make([]Question, 0, len(nq.Questions))
	for i, qn := range nq.Questions {
		questions = append(questions, Question{Position: i + 1, Prompt: qn.Prompt, Points: qn.Points})
	}
	return svc.repo.CreateQuiz(ctx, Quiz{
		CourseID:  c.ID,
		Title:     nq.Title,
		Category:  cat,
		Questions: questions,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return svc.repo.GetQuiz(ctx, id)
}

func (svc *service) ListQuizzes(ctx context.Context, c Course) ([]Quiz, error) {
	return svc.repo.QueryQuizzes(ctx, c.ID)
}

func (svc *service) UpdateQuiz(ctx context.Context, c Course, q Quiz, ui UpdateItem) (Quiz, error) {
	if ui.Title != "" {
		q.Title = ui.Title
	}
	if ui.Category != nil {
		cat := CategoryPtr(*ui.Category)
		if err := checkCategory(c, cat); err != nil {
			return Quiz{}, err
		}
		q.Category = cat
	}
	return svc.repo.UpdateQuiz(ctx, q)
}

func (svc *service) DeleteQuiz(ctx context.Context, q Quiz) error {
	return svc.repo.DeleteQuiz(ctx, q.ID)
}

// Submit saves the student's work on the assignment. Resubmitting replaces the content
// until the submission gets graded.
func (svc *service) Submit(ctx context.Context, a Assignment, student user.User, ns NewSubmission) (Submission, error) {
	enrolled, err := svc.repo.IsEnrolled(ctx, a.CourseID, student.ID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Submission{}, ErrNotEnrolled
	}

	existing, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{AssignmentID: a.ID, StudentIDs: []string{student.ID}})
	if err != nil {
		return Submission{}, errors.Wrap(err, "querying submissions")
	}
	if len(existing) > 0 && existing[0].Grade != nil {
		return Submission{}, core.NewValidationError(errors.New(alreadyGradedText))
	}

	return svc.repo.SaveSubmission(ctx, Submission{
		AssignmentID: a.ID,
		StudentID:    student.ID,
		Content:      ns.Content,
		SubmittedAt:  time.Now().UTC(),
	})
}

func (svc *service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *service) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, filter)
}

// GradeSubmission sets the submission's grade and records a GradeAudit in the same transaction.
// The student is notified by email once graded.
func (svc *service) GradeSubmission(
	ctx context.Context,
	c Course,
	a Assignment,
	s Submission,
	grader user.User,
	gs GradeSubmission,
) (Submission, error) {
	if gs.Grade != nil && *gs.Grade > a.MaxPoints {
		return Submission{}, core.NewFieldError("grade", fmt.Sprintf("grade must be %v or less", a.MaxPoints))
	}

	now := time.Now().UTC()
	oldGrade := s.Grade
	s.Grade = gs.Grade
	s.Feedback = gs.Feedback
	if s.Grade != nil {
		s.GradedAt = &now
	} else {
		s.GradedAt = nil
	}

	var graded Submission
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if graded, err = svc.repo.UpdateSubmissionGrade(ctx, s, exec); err != nil {
			return errors.Wrap(err, "updating submission grade")
		}
		_, err = svc.repo.CreateGradeAudit(ctx, GradeAudit{
			SubmissionID: s.ID,
			GraderID:     grader.ID,
			OldGrade:     oldGrade,
			NewGrade:     s.Grade,
			CreatedAt:    now,
		}, exec)
		return errors.Wrap(err, "creating grade audit")
	})
	if err != nil {
		return Submission{}, err
	}

	if graded.Grade != nil {
		svc.notifyGraded(ctx, c, a, graded)
	}
	return graded, nil
}

func (svc *service) notifyGraded(ctx context.Context, c Course, a Assignment, s Submission) {
	student, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: s.StudentID})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding student to notify: %v", err), err)
		return
	}
	if student.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Submission Graded",
		TemplateName: "submission_graded",
		TemplateData: map[string]interface{}{
			"Name":       student.Name,
			"Course":     c.Title,
			"CourseID":   c.ID,
			"Assignment": a.Title,
			"Grade":      *s.Grade,
			"MaxPoints":  a.MaxPoints,
			"Feedback":   s.Feedback,
		},
	})
}

func (svc *service) ListGradeAudits(ctx context.Context, s Submission) ([]GradeAudit, error) {
	return svc.repo.QueryGradeAudits(ctx, s.ID)
}

func (svc *service) checkAttemptPoints(q Quiz, points *float64) error {
	if points != nil && *points > q.MaxPoints() {
		return core.NewFieldError("points_earned", fmt.Sprintf("points earned must be %v or less", q.MaxPoints()))
	}
	return nil
}

func (svc *service) RecordAttempt(ctx context.Context, q Quiz, na NewAttempt) (Attempt, error) {
	if err := svc.checkAttemptPoints(q, na.PointsEarned); err != nil {
		return Attempt{}, err
	}
	enrolled, err := svc.repo.IsEnrolled(ctx, q.CourseID, na.StudentID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Attempt{}, core.NewFieldError("student_id", notEnrolledText)
	}

	now := time.Now().UTC()
	startedAt := na.StartedAt.UTC()
	if na.StartedAt.IsZero() {
		startedAt = now
	}
	var finishedAt *time.Time
	if na.FinishedAt != nil {
		t := na.FinishedAt.UTC()
		finishedAt = &t
	} else if na.PointsEarned != nil {
		finishedAt = &now
	}

	return svc.repo.CreateAttempt(ctx, Attempt{
		QuizID:       q.ID,
		StudentID:    na.StudentID,
		PointsEarned: na.PointsEarned,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	})
}

func (svc *service) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return svc.repo.GetAttempt(ctx, id)
}

func (svc *service) ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, filter)
}

func (svc *service) ScoreAttempt(ctx context.Context, q Quiz, a Attempt, sa ScoreAttempt) (Attempt, error) {
	if err := svc.checkAttemptPoints(q, sa.PointsEarned); err != nil {
		return Attempt{}, err
	}
	a.PointsEarned = sa.PointsEarned
	if a.FinishedAt == nil && a.PointsEarned != nil {
		now := time.Now().UTC()
		a.FinishedAt = &now
	}
	return svc.repo.UpdateAttempt(ctx, a)
}
