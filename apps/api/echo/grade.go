package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/user"
)

const meParam = "me"

type gradeAPI struct {
	svc    grade.Service
	usrSvc user.Service
}

func registerGradeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := gradeAPI{
		svc:    deps.GradeSvc,
		usrSvc: deps.UserSvc,
	}
	loadCourse := courseMiddleware(deps.CourseSvc)
	staff := courseStaffMiddleware()

	// route level middlewares: the "/courses/:id" group is owned by the course API
	g.GET("/courses/:id/grades/:student_id", api.studentGrade, jwt, loadCourse)
	g.GET("/courses/:id/gradebook", api.gradebook, jwt, loadCourse, staff)
	g.GET("/courses/:id/gradebook/export", api.exportGradebook, jwt, loadCourse, staff)
	g.POST("/courses/:id/gradebook/email", api.emailGradebook, jwt, loadCourse, staff)
}

// studentGrade returns a student's current grade in the course.
// Students can only see their own grade, which "me" stands for.
func (api *gradeAPI) studentGrade(ctx echo.Context) error {
	c, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	studentID := ctx.Param("student_id")
	if studentID == meParam {
		studentID = claims.Subject
	}
	if !isCourseStaff(ctx) && studentID != claims.Subject {
		return errHttpForbidden
	}

	res, err := api.svc.StudentGrade(ctx.Request().Context(), claims.SchoolID, c.ID, studentID)
	if err != nil {
		return errors.Wrap(err, "computing student grade")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gradeAPI) getGradebook(ctx echo.Context) (grade.Gradebook, error) {
	c, err := getContextCourse(ctx)
	if err != nil {
		return grade.Gradebook{}, err
	}
	gb, err := api.svc.Gradebook(ctx.Request().Context(), c.SchoolID, c.ID)
	return gb, errors.Wrap(err, "computing gradebook")
}

func (api *gradeAPI) gradebook(ctx echo.Context) error {
	gb, err := api.getGradebook(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, gb)
}

// exportGradebook downloads the gradebook as CSV (default) or XLSX.
func (api *gradeAPI) exportGradebook(ctx echo.Context) error {
	var query ExportQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to ExportQuery")
	}
	if query.Format == "" {
		query.Format = grade.FormatCSV
	}
	contentType, err := grade.ContentType(query.Format)
	if err != nil {
		return core.NewFieldError("format", fmt.Sprintf("format must be one of %q, %q", grade.FormatCSV, grade.FormatXLSX))
	}

	gb, err := api.getGradebook(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = grade.Export(&buf, gb, query.Format); err != nil {
		return errors.Wrap(err, "exporting gradebook")
	}
	ctx.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", grade.ExportFilename(gb, query.Format)),
	)
	return ctx.Blob(http.StatusOK, contentType, buf.Bytes())
}

// emailGradebook sends the gradebook to the context user.
func (api *gradeAPI) emailGradebook(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	gb, err := api.getGradebook(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.EmailGradebook(ctx.Request().Context(), gb, ctxUsr); err != nil {
		return errors.Wrap(err, "emailing gradebook")
	}
	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: "The gradebook will arrive in your inbox shortly."})
}
