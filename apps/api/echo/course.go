package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

type courseAPI struct {
	svc      course.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := courseAPI{
		svc:      deps.CourseSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}
	staff := courseStaffMiddleware()

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, teacherOrAdminMiddleware())

	dg := cg.Group("/:id", courseMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staff)
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.PUT("/grading", api.updateGrading, staff)
	dg.GET("/enrollments", api.queryStudents, staff)
	dg.POST("/enrollments", api.enroll, staff)
	dg.DELETE("/enrollments", api.unenroll, staff)
	dg.GET("/assignments", api.queryAssignments)
	dg.POST("/assignments", api.createAssignment, staff)
	dg.GET("/quizzes", api.queryQuizzes)
	dg.POST("/quizzes", api.createQuiz, staff)

	ag := g.Group("/assignments/:id", jwt, assignmentMiddleware(api.svc))
	ag.GET("", api.retrieveAssignment)
	ag.PUT("", api.updateAssignment, staff)
	ag.DELETE("", api.destroyAssignment, staff)
	ag.POST("/submissions", api.submit, studentMiddleware())
	ag.GET("/submissions", api.querySubmissions, staff)

	sg := g.Group("/submissions/:id", jwt, submissionMiddleware(api.svc))
	sg.GET("", api.retrieveSubmission)
	sg.PUT("/grade", api.gradeSubmission, staff)
	sg.GET("/audits", api.queryGradeAudits, staff)

	qg := g.Group("/quizzes/:id", jwt, quizMiddleware(api.svc))
	qg.GET("", api.retrieveQuiz)
	qg.PUT("", api.updateQuiz, staff)
	qg.DELETE("", api.destroyQuiz, staff)
	qg.POST("/attempts", api.recordAttempt)
	qg.GET("/attempts", api.queryAttempts)

	tg := g.Group("/attempts/:id", jwt, attemptMiddleware(api.svc))
	tg.GET("", api.retrieveAttempt)
	tg.PUT("", api.scoreAttempt, staff)
}

// Courses

func (api *courseAPI) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	data.SchoolID = ctxUsr.SchoolID

	c, err := api.svc.Create(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

// query lists the courses of the context user's school. Students only see the courses they are enrolled in.
func (api *courseAPI) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	filter.SchoolID = claims.SchoolID
	if !(claims.IsAdmin || claims.IsTeacher) {
		filter.StudentID = claims.Subject
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseAPI) retrieve(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseAPI) update(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err = api.svc.Update(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseAPI) updateGrading(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.GradingConfig
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradingConfig")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err = api.svc.UpdateGrading(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating course grading")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseAPI) destroy(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), c); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Enrollments

func (api *courseAPI) queryStudents(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.ListStudents(ctx.Request().Context(), c)
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *courseAPI) enroll(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.NewEnrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	e, err := api.svc.Enroll(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *courseAPI) unenroll(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	var query EnrollmentQuery
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to EnrollmentQuery")
	}
	if query.StudentID == "" {
		return errHttpNotFound
	}

	if err = api.svc.Unenroll(ctx.Request().Context(), c, query.StudentID); err != nil {
		return errors.Wrap(err, "unenrolling student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Assignments

func (api *courseAPI) queryAssignments(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	assignments, err := api.svc.ListAssignments(ctx.Request().Context(), c)
	if err != nil {
		return errors.Wrap(err, "listing assignments")
	}
	if assignments == nil {
		assignments = []course.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *courseAPI) createAssignment(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.NewAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.CreateAssignment(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func getContextAssignment(ctx echo.Context) (course.Assignment, error) {
	a, ok := ctx.Get(assignmentContextKey).(course.Assignment)
	if !ok {
		return course.Assignment{}, errors.Wrap(errObjNotFoundInCtx, "retrieving assignment from context")
	}
	return a, nil
}

func (api *courseAPI) retrieveAssignment(ctx echo.Context) error {
	a, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseAPI) updateAssignment(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	a, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateItem")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err = api.svc.UpdateAssignment(ctx.Request().Context(), c, a, data)
	if err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseAPI) destroyAssignment(ctx echo.Context) error {
	a, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAssignment(ctx.Request().Context(), a); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Submissions

func (api *courseAPI) submit(ctx echo.Context) error {
	a, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}

	var data course.NewSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	s, err := api.svc.Submit(ctx.Request().Context(), a, ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *courseAPI) querySubmissions(ctx echo.Context) error {
	a, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.ListSubmissions(ctx.Request().Context(), course.SubmissionFilter{AssignmentID: a.ID})
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	if subs == nil {
		subs = []course.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func getContextSubmission(ctx echo.Context) (course.Submission, error) {
	s, ok := ctx.Get(submissionContextKey).(course.Submission)
	if !ok {
		return course.Submission{}, errors.Wrap(errObjNotFoundInCtx, "retrieving submission from context")
	}
	return s, nil
}

func (api *courseAPI) retrieveSubmission(ctx echo.Context) error {
	s, err := getContextSubmission(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *courseAPI) gradeSubmission(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	a, err := getContextAssignment(ctx)
	if err != nil {
		return err
	}
	s, err := getContextSubmission(ctx)
	if err != nil {
		return err
	}

	var data course.GradeSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeSubmission")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	grader, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	s, err = api.svc.GradeSubmission(ctx.Request().Context(), c, a, s, grader, data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *courseAPI) queryGradeAudits(ctx echo.Context) error {
	s, err := getContextSubmission(ctx)
	if err != nil {
		return err
	}
	audits, err := api.svc.ListGradeAudits(ctx.Request().Context(), s)
	if err != nil {
		return errors.Wrap(err, "listing grade audits")
	}
	if audits == nil {
		audits = []course.GradeAudit{}
	}
	return ctx.JSON(http.StatusOK, audits)
}

// Quizzes

func (api *courseAPI) queryQuizzes(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	quizzes, err := api.svc.ListQuizzes(ctx.Request().Context(), c)
	if err != nil {
		return errors.Wrap(err, "listing quizzes")
	}
	if quizzes == nil {
		quizzes = []course.Quiz{}
	}
	return ctx.JSON(http.StatusOK, quizzes)
}

func (api *courseAPI) createQuiz(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.NewQuiz
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuiz")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.CreateQuiz(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "creating quiz")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func getContextQuiz(ctx echo.Context) (course.Quiz, error) {
	q, ok := ctx.Get(quizContextKey).(course.Quiz)
	if !ok {
		return course.Quiz{}, errors.Wrap(errObjNotFoundInCtx, "retrieving quiz from context")
	}
	return q, nil
}

func (api *courseAPI) retrieveQuiz(ctx echo.Context) error {
	q, err := getContextQuiz(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *courseAPI) updateQuiz(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	q, err := getContextQuiz(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateItem")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	q, err = api.svc.UpdateQuiz(ctx.Request().Context(), c, q, data)
	if err != nil {
		return errors.Wrap(err, "updating quiz")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *courseAPI) destroyQuiz(ctx echo.Context) error {
	q, err := getContextQuiz(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteQuiz(ctx.Request().Context(), q); err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Attempts

// recordAttempt records a quiz attempt. Students can only record their own attempts.
func (api *courseAPI) recordAttempt(ctx echo.Context) error {
	q, err := getContextQuiz(ctx)
	if err != nil {
		return err
	}

	var data course.NewAttempt
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttempt")
	}
	if !isCourseStaff(ctx) {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		data.StudentID = claims.Subject
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.RecordAttempt(ctx.Request().Context(), q, data)
	if err != nil {
		return errors.Wrap(err, "recording attempt")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *courseAPI) queryAttempts(ctx echo.Context) error {
	q, err := getContextQuiz(ctx)
	if err != nil {
		return err
	}

	filter := course.AttemptFilter{QuizID: q.ID}
	if !isCourseStaff(ctx) {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		filter.StudentIDs = []string{claims.Subject}
	}

	attempts, err := api.svc.ListAttempts(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing attempts")
	}
	if attempts == nil {
		attempts = []course.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func getContextAttempt(ctx echo.Context) (course.Attempt, error) {
	a, ok := ctx.Get(attemptContextKey).(course.Attempt)
	if !ok {
		return course.Attempt{}, errors.Wrap(errObjNotFoundInCtx, "retrieving attempt from context")
	}
	return a, nil
}

func (api *courseAPI) retrieveAttempt(ctx echo.Context) error {
	a, err := getContextAttempt(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseAPI) scoreAttempt(ctx echo.Context) error {
	q, err := getContextQuiz(ctx)
	if err != nil {
		return err
	}
	a, err := getContextAttempt(ctx)
	if err != nil {
		return err
	}

	var data course.ScoreAttempt
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScoreAttempt")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err = api.svc.ScoreAttempt(ctx.Request().Context(), q, a, data)
	if err != nil {
		return errors.Wrap(err, "scoring attempt")
	}
	return ctx.JSON(http.StatusOK, a)
}
