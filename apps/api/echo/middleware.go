package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/course"
)

const (
	courseContextKey     = "course"
	courseStaffKey       = "courseStaff"
	assignmentContextKey = "assignment"
	quizContextKey       = "quiz"
	submissionContextKey = "submission"
	attemptContextKey    = "attempt"
)

var errObjNotFoundInCtx = errors.New("object not found in echo.Context")

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// teacherOrAdminMiddleware lets teachers and admins through.
func teacherOrAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsTeacher || claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func studentMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsStudent {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// setContextCourse loads the course of the context user's school and checks that the user is
// a member of it: its teacher, an admin, or an enrolled student.
func setContextCourse(ctx echo.Context, svc course.Service, id string) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	c, err := svc.Get(ctx.Request().Context(), claims.SchoolID, id)
	if err != nil {
		return errors.Wrap(err, "finding course")
	}

	staff := claims.IsAdmin || c.TeacherID == claims.Subject
	if !staff {
		if !claims.IsStudent {
			return errHttpForbidden
		}
		enrolled, err := svc.IsEnrolled(ctx.Request().Context(), c.ID, claims.Subject)
		if err != nil {
			return errors.Wrap(err, "checking enrollment")
		}
		if !enrolled {
			return errHttpForbidden
		}
	}

	ctx.Set(courseContextKey, c)
	ctx.Set(courseStaffKey, staff)
	return nil
}

func getContextCourse(ctx echo.Context) (course.Course, error) {
	c, ok := ctx.Get(courseContextKey).(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errObjNotFoundInCtx, "retrieving course from context")
	}
	return c, nil
}

// isCourseStaff reports whether the context user teaches the context course or administers its school.
func isCourseStaff(ctx echo.Context) bool {
	staff, _ := ctx.Get(courseStaffKey).(bool)
	return staff
}

func courseMiddleware(svc course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := setContextCourse(ctx, svc, ctx.Param("id")); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// courseStaffMiddleware must run after one of the course loading middlewares.
func courseStaffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if isCourseStaff(ctx) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func assignmentMiddleware(svc course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			a, err := svc.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding assignment")
			}
			if err = setContextCourse(ctx, svc, a.CourseID); err != nil {
				return err
			}
			ctx.Set(assignmentContextKey, a)
			return next(ctx)
		}
	}
}

func quizMiddleware(svc course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			q, err := svc.GetQuiz(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding quiz")
			}
			if err = setContextCourse(ctx, svc, q.CourseID); err != nil {
				return err
			}
			ctx.Set(quizContextKey, q)
			return next(ctx)
		}
	}
}

// submissionMiddleware loads a submission with its assignment and course.
// Students only see their own submissions.
func submissionMiddleware(svc course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			s, err := svc.GetSubmission(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding submission")
			}
			a, err := svc.GetAssignment(ctx.Request().Context(), s.AssignmentID)
			if err != nil {
				return errors.Wrap(err, "finding assignment")
			}
			if err = setContextCourse(ctx, svc, a.CourseID); err != nil {
				return err
			}
			if !isCourseStaff(ctx) {
				claims, _ := getContextClaims(ctx)
				if s.StudentID != claims.Subject {
					return errHttpNotFound
				}
			}
			ctx.Set(assignmentContextKey, a)
			ctx.Set(submissionContextKey, s)
			return next(ctx)
		}
	}
}

func attemptMiddleware(svc course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			a, err := svc.GetAttempt(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding attempt")
			}
			q, err := svc.GetQuiz(ctx.Request().Context(), a.QuizID)
			if err != nil {
				return errors.Wrap(err, "finding quiz")
			}
			if err = setContextCourse(ctx, svc, q.CourseID); err != nil {
				return err
			}
			if !isCourseStaff(ctx) {
				claims, _ := getContextClaims(ctx)
				if a.StudentID != claims.Subject {
					return errHttpNotFound
				}
			}
			ctx.Set(quizContextKey, q)
			ctx.Set(attemptContextKey, a)
			return next(ctx)
		}
	}
}
