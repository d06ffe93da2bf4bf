package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

type courseFixture struct {
	testApp
	admin    user.User
	teacher  user.User
	teacher2 user.User
	students []user.User
	outsider user.User // admin of another school
	course   course.Course
}

// newCourseFixture sets up a course taught by teacher, with students[0] and students[1] enrolled.
func newCourseFixture(t *testing.T) courseFixture {
	app := setup(t)
	f := courseFixture{
		testApp:  app,
		admin:    app.createUser(t, "Admin", "admin", user.RoleAdmin),
		teacher:  app.createUser(t, "Teacher", "teacher", user.RoleTeacher),
		teacher2: app.createUser(t, "Teacher 2", "teacher2", user.RoleTeacher),
		students: testutil.CreateStudents(t, app.usrRepo, app.school.ID, 3),
	}
	other := testutil.CreateSchool(t, app.usrRepo, "Institut Mapendo")
	f.outsider = testutil.CreateUser(t, app.usrRepo, other.ID, "Outsider", "outsider", "out@other.com", "", []string{user.RoleAdmin}, true)

	f.course = testutil.CreateCourse(t, app.courseRepo, app.school.ID, f.teacher.ID, "MATH101",
		map[course.Category]float64{"homework": 0.4, "exams": 0.6},
		[]course.ScaleBand{{Label: "P", MinPercentage: 50}, {Label: "F", MinPercentage: 0}},
	)
	testutil.Enroll(t, app.courseRepo, f.course.ID, f.students[0], f.students[1])
	return f
}

func Test_courseAPI_create(t *testing.T) {
	f := newCourseFixture(t)

	body := marshallObj(t, map[string]interface{}{
		"code":            "phys 201",
		"title":           "Physics",
		"grading_weights": map[string]float64{"Labs": 0.5, "exams": 0.5},
	})

	tests := []httpTest{
		{name: "auth required", body: body, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "students cannot create courses", body: body, token: f.token(t, f.students[0]),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "missing fields", body: []byte(`{}`), token: f.token(t, f.teacher), wantCode: http.StatusBadRequest},
		{
			name: "invalid weights", body: []byte(`{"code": "X1", "title": "X", "grading_weights": {"homework": 1.5}}`),
			token: f.token(t, f.teacher), wantCode: http.StatusBadRequest,
		},
		{
			name: "duplicate code", body: []byte(`{"code": "math101", "title": "Algebra"}`), token: f.token(t, f.teacher),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"code": course.ErrCodeExists.Error()}),
		},
		{name: "created", body: body, token: f.token(t, f.teacher), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/courses"

		t.Run(tt.name, func(t *testing.T) {
			rec := f.run(t, tt)
			if tt.wantCode != http.StatusCreated {
				return
			}
			var c course.Course
			unmarshall(t, rec, &c)
			assert.Equal(t, "PHYS 201", c.Code)
			assert.Equal(t, f.school.ID, c.SchoolID)
			assert.Equal(t, f.teacher.ID, c.TeacherID)
			assert.Equal(t, map[course.Category]float64{"labs": 0.5, "exams": 0.5}, c.GradingWeights)
		})
	}
}

func Test_courseAPI_query(t *testing.T) {
	f := newCourseFixture(t)
	c2 := testutil.CreateCourse(t, f.courseRepo, f.school.ID, f.teacher2.ID, "CHEM101", nil, nil)
	other := testutil.CreateCourse(t, f.courseRepo, f.outsider.SchoolID, f.outsider.ID, "BIO101", nil, nil)
	_ = other

	tests := []httpTest{
		{name: "auth required", path: "/api/courses", wantCode: http.StatusUnauthorized},
		{name: "teachers see the school's courses", path: "/api/courses?ordering=code", token: f.token(t, f.teacher2), wantData: marshallList(t, c2, f.course)},
		{name: "admins see the school's courses", path: "/api/courses?ordering=-code", token: f.token(t, f.admin), wantData: marshallList(t, f.course, c2)},
		{name: "students see their courses", path: "/api/courses", token: f.token(t, f.students[0]), wantData: marshallList(t, f.course)},
		{name: "students not enrolled", path: "/api/courses", token: f.token(t, f.students[2]), wantData: marshallList(t)},
		{name: "search", path: "/api/courses?search=chem", token: f.token(t, f.admin), wantData: marshallList(t, c2)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}
}

func Test_courseAPI_retrieve(t *testing.T) {
	f := newCourseFixture(t)
	path := "/api/courses/" + f.course.ID

	tests := []httpTest{
		{name: "teacher", token: f.token(t, f.teacher), wantCode: http.StatusOK, wantData: marshallObj(t, f.course)},
		{name: "admin", token: f.token(t, f.admin), wantCode: http.StatusOK, wantData: marshallObj(t, f.course)},
		{name: "enrolled student", token: f.token(t, f.students[1]), wantCode: http.StatusOK, wantData: marshallObj(t, f.course)},
		{name: "student not enrolled", token: f.token(t, f.students[2]), wantCode: http.StatusForbidden},
		{name: "other teacher", token: f.token(t, f.teacher2), wantCode: http.StatusForbidden},
		{
			name: "other school", token: f.token(t, f.outsider),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: course.ErrNotFound.Error()}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = path

		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}
}

func Test_courseAPI_updateGrading(t *testing.T) {
	f := newCourseFixture(t)
	testutil.CreateAssignment(t, f.courseRepo, f.course.ID, "Homework 1", 10, "homework")
	path := "/api/courses/" + f.course.ID + "/grading"

	tests := []httpTest{
		{name: "not the course teacher", body: []byte(`{}`), token: f.token(t, f.teacher2), wantCode: http.StatusForbidden},
		{name: "students cannot update", body: []byte(`{}`), token: f.token(t, f.students[0]), wantCode: http.StatusForbidden},
		{
			name: "invalid scale", body: []byte(`{"grading_scale": [{"label": "A", "min_percentage": 101}]}`),
			token: f.token(t, f.teacher), wantCode: http.StatusBadRequest,
		},
		{
			name: "category in use", body: []byte(`{"grading_weights": {"exams": 1}}`), token: f.token(t, f.teacher),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"grading_weights": `categories still used by assignments or quizzes: "homework"`}),
		},
		{
			name: "updated", body: []byte(`{"grading_weights": {"homework": 0.5, "Exams": 0.5}}`),
			token: f.token(t, f.admin), wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.path = path

		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}

	c, err := f.courseRepo.GetCourse(context.Background(), course.GetFilter{ID: f.course.ID})
	require.NoError(t, err)
	assert.Equal(t, map[course.Category]float64{"homework": 0.5, "exams": 0.5}, c.GradingWeights)
	assert.Nil(t, c.GradingScale)
}

func Test_courseAPI_enrollments(t *testing.T) {
	f := newCourseFixture(t)
	path := "/api/courses/" + f.course.ID + "/enrollments"
	teacherToken := f.token(t, f.teacher)

	enroll := func(studentID string) []byte {
		return marshallObj(t, course.NewEnrollment{StudentID: studentID})
	}

	tests := []httpTest{
		{name: "list (student)", method: http.MethodGet, path: path, token: f.token(t, f.students[0]), wantCode: http.StatusForbidden},
		{
			name: "list", method: http.MethodGet, path: path, token: teacherToken,
			wantCode: http.StatusOK, wantData: marshallList(t, f.students[0], f.students[1]),
		},
		{
			name: "enroll a teacher", method: http.MethodPost, path: path, body: enroll(f.teacher2.ID), token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"student_id": "user is not a student of this school"}),
		},
		{
			name: "already enrolled", method: http.MethodPost, path: path, body: enroll(f.students[0].ID), token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"student_id": "student is already enrolled in this course"}),
		},
		{name: "enroll", method: http.MethodPost, path: path, body: enroll(f.students[2].ID), token: teacherToken, wantCode: http.StatusCreated},
		{name: "unenroll", method: http.MethodDelete, path: path + "?student_id=" + f.students[0].ID, token: teacherToken, wantCode: http.StatusNoContent},
		{
			name: "unenroll (not enrolled)", method: http.MethodDelete, path: path + "?student_id=" + f.students[0].ID, token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: course.ErrNotEnrolled.Error()}),
		},
		{
			name: "list (updated)", method: http.MethodGet, path: path, token: teacherToken,
			wantCode: http.StatusOK, wantData: marshallList(t, f.students[1], f.students[2]),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}
}

func Test_courseAPI_items(t *testing.T) {
	f := newCourseFixture(t)
	path := "/api/courses/" + f.course.ID
	teacherToken := f.token(t, f.teacher)

	t.Run("create assignment (student)", func(t *testing.T) {
		f.run(t, httpTest{
			method: http.MethodPost, path: path + "/assignments", token: f.token(t, f.students[0]),
			body: []byte(`{"title": "HW", "max_points": 10}`), wantCode: http.StatusForbidden,
		})
	})

	t.Run("create assignment (unknown category)", func(t *testing.T) {
		f.run(t, httpTest{
			method: http.MethodPost, path: path + "/assignments", token: teacherToken,
			body:     []byte(`{"title": "HW", "max_points": 10, "category": "labs"}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"category": "unknown grading category"}),
		})
	})

	var a course.Assignment
	t.Run("create assignment", func(t *testing.T) {
		rec := f.run(t, httpTest{
			method: http.MethodPost, path: path + "/assignments", token: teacherToken,
			body: []byte(`{"title": "HW 1", "max_points": 10, "category": "Homework"}`), wantCode: http.StatusCreated,
		})
		unmarshall(t, rec, &a)
		require.NotNil(t, a.Category)
		assert.Equal(t, course.Category("homework"), *a.Category)
	})

	var q course.Quiz
	t.Run("create quiz", func(t *testing.T) {
		rec := f.run(t, httpTest{
			method: http.MethodPost, path: path + "/quizzes", token: teacherToken,
			body:     []byte(`{"title": "Quiz 1", "category": "exams", "questions": [{"prompt": "1+1?", "points": 2}, {"prompt": "2+2?", "points": 3}]}`),
			wantCode: http.StatusCreated,
		})
		unmarshall(t, rec, &q)
		assert.Equal(t, 5.0, q.MaxPoints())
	})

	t.Run("list (enrolled student)", func(t *testing.T) {
		studentToken := f.token(t, f.students[0])
		f.run(t, httpTest{method: http.MethodGet, path: path + "/assignments", token: studentToken, wantCode: http.StatusOK, wantData: marshallList(t, a)})
		f.run(t, httpTest{method: http.MethodGet, path: path + "/quizzes", token: studentToken, wantCode: http.StatusOK, wantData: marshallList(t, q)})
	})

	t.Run("update assignment", func(t *testing.T) {
		rec := f.run(t, httpTest{
			method: http.MethodPut, path: "/api/assignments/" + a.ID, token: teacherToken,
			body: []byte(`{"title": "Homework 1", "category": ""}`), wantCode: http.StatusOK,
		})
		var updated course.Assignment
		unmarshall(t, rec, &updated)
		assert.Equal(t, "Homework 1", updated.Title)
		assert.Nil(t, updated.Category)
	})

	t.Run("update quiz (other teacher)", func(t *testing.T) {
		f.run(t, httpTest{
			method: http.MethodPut, path: "/api/quizzes/" + q.ID, token: f.token(t, f.teacher2),
			body: []byte(`{"title": "Nope"}`), wantCode: http.StatusForbidden,
		})
	})

	t.Run("delete quiz", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodDelete, path: "/api/quizzes/" + q.ID, token: teacherToken, wantCode: http.StatusNoContent})
		f.run(t, httpTest{method: http.MethodGet, path: "/api/quizzes/" + q.ID, token: teacherToken, wantCode: http.StatusNotFound})
	})
}

func Test_courseAPI_submissions(t *testing.T) {
	f := newCourseFixture(t)
	a := testutil.CreateAssignment(t, f.courseRepo, f.course.ID, "Homework 1", 10, "homework")
	teacherToken := f.token(t, f.teacher)
	studentToken := f.token(t, f.students[0])
	submitPath := "/api/assignments/" + a.ID + "/submissions"

	t.Run("teachers cannot submit", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodPost, path: submitPath, token: teacherToken, body: []byte(`{"content": "x"}`), wantCode: http.StatusForbidden})
	})

	t.Run("students not enrolled cannot submit", func(t *testing.T) {
		f.run(t, httpTest{
			method: http.MethodPost, path: submitPath, token: f.token(t, f.students[2]),
			body: []byte(`{"content": "x"}`), wantCode: http.StatusForbidden,
		})
	})

	var s course.Submission
	t.Run("submit", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodPost, path: submitPath, token: studentToken, body: []byte(`{"content": "draft"}`), wantCode: http.StatusCreated})
		rec := f.run(t, httpTest{method: http.MethodPost, path: submitPath, token: studentToken, body: []byte(`{"content": "final"}`), wantCode: http.StatusCreated})
		unmarshall(t, rec, &s)
		assert.Equal(t, "final", s.Content)
		assert.Nil(t, s.Grade)
	})
	subPath := "/api/submissions/" + s.ID

	t.Run("list", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodGet, path: submitPath, token: studentToken, wantCode: http.StatusForbidden})
		f.run(t, httpTest{method: http.MethodGet, path: submitPath, token: teacherToken, wantCode: http.StatusOK, wantData: marshallList(t, s)})
	})

	t.Run("retrieve", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodGet, path: subPath, token: studentToken, wantCode: http.StatusOK, wantData: marshallObj(t, s)})
		f.run(t, httpTest{method: http.MethodGet, path: subPath, token: f.token(t, f.students[1]), wantCode: http.StatusNotFound})
	})

	t.Run("students cannot grade", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodPut, path: subPath + "/grade", token: studentToken, body: []byte(`{"grade": 10}`), wantCode: http.StatusForbidden})
	})

	t.Run("grade above max points", func(t *testing.T) {
		f.run(t, httpTest{
			method: http.MethodPut, path: subPath + "/grade", token: teacherToken, body: []byte(`{"grade": 11}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"grade": "grade must be 10 or less"}),
		})
	})

	t.Run("grade", func(t *testing.T) {
		rec := f.run(t, httpTest{
			method: http.MethodPut, path: subPath + "/grade", token: teacherToken,
			body: []byte(`{"grade": 8.5, "feedback": "Good job"}`), wantCode: http.StatusOK,
		})
		var graded course.Submission
		unmarshall(t, rec, &graded)
		require.NotNil(t, graded.Grade)
		assert.Equal(t, 8.5, *graded.Grade)
		assert.NotNil(t, graded.GradedAt)

		sent := f.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, f.students[0].Email, sent[0].To[0].Address)
	})

	t.Run("resubmit after grading", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodPost, path: submitPath, token: studentToken, body: []byte(`{"content": "v3"}`), wantCode: http.StatusBadRequest})
	})

	t.Run("audits", func(t *testing.T) {
		rec := f.run(t, httpTest{method: http.MethodGet, path: subPath + "/audits", token: teacherToken, wantCode: http.StatusOK})
		var audits []course.GradeAudit
		unmarshall(t, rec, &audits)
		require.Len(t, audits, 1)
		assert.Equal(t, f.teacher.ID, audits[0].GraderID)
		assert.Nil(t, audits[0].OldGrade)
		assert.Equal(t, core.Float64Ptr(8.5), audits[0].NewGrade)
	})
}

func Test_courseAPI_attempts(t *testing.T) {
	f := newCourseFixture(t)
	q := testutil.CreateQuiz(t, f.courseRepo, f.course.ID, "Quiz 1", "exams", 5, 5)
	path := "/api/quizzes/" + q.ID + "/attempts"
	teacherToken := f.token(t, f.teacher)

	var own course.Attempt
	t.Run("students record their own attempts", func(t *testing.T) {
		body := marshallObj(t, course.NewAttempt{StudentID: f.students[1].ID})
		rec := f.run(t, httpTest{method: http.MethodPost, path: path, token: f.token(t, f.students[0]), body: body, wantCode: http.StatusCreated})
		unmarshall(t, rec, &own)
		assert.Equal(t, f.students[0].ID, own.StudentID)
		assert.Nil(t, own.PointsEarned)
		assert.Nil(t, own.FinishedAt)
	})

	t.Run("staff record for students", func(t *testing.T) {
		body := marshallObj(t, course.NewAttempt{StudentID: f.students[1].ID, PointsEarned: core.Float64Ptr(7)})
		rec := f.run(t, httpTest{method: http.MethodPost, path: path, token: teacherToken, body: body, wantCode: http.StatusCreated})
		var a course.Attempt
		unmarshall(t, rec, &a)
		assert.Equal(t, f.students[1].ID, a.StudentID)
		assert.NotNil(t, a.FinishedAt)
	})

	t.Run("points above max", func(t *testing.T) {
		body := marshallObj(t, course.NewAttempt{StudentID: f.students[1].ID, PointsEarned: core.Float64Ptr(11)})
		f.run(t, httpTest{method: http.MethodPost, path: path, token: teacherToken, body: body, wantCode: http.StatusBadRequest})
	})

	t.Run("list", func(t *testing.T) {
		rec := f.run(t, httpTest{method: http.MethodGet, path: path, token: teacherToken, wantCode: http.StatusOK})
		var all []course.Attempt
		unmarshall(t, rec, &all)
		assert.Len(t, all, 2)

		rec = f.run(t, httpTest{method: http.MethodGet, path: path, token: f.token(t, f.students[0]), wantCode: http.StatusOK})
		var mine []course.Attempt
		unmarshall(t, rec, &mine)
		require.Len(t, mine, 1)
		assert.Equal(t, own.ID, mine[0].ID)
	})

	t.Run("score", func(t *testing.T) {
		f.run(t, httpTest{
			method: http.MethodPut, path: "/api/attempts/" + own.ID, token: f.token(t, f.students[0]),
			body: []byte(`{"points_earned": 10}`), wantCode: http.StatusForbidden,
		})
		rec := f.run(t, httpTest{
			method: http.MethodPut, path: "/api/attempts/" + own.ID, token: teacherToken,
			body: []byte(`{"points_earned": 9}`), wantCode: http.StatusOK,
		})
		var scored course.Attempt
		unmarshall(t, rec, &scored)
		assert.Equal(t, core.Float64Ptr(9), scored.PointsEarned)
		assert.NotNil(t, scored.FinishedAt)
	})
}
