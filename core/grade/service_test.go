package grade_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(logsvc.NewNopLogger(), true)
	m.Run()
}

func ptr(f float64) *float64 { return &f }

type fixture struct {
	svc      grade.Service
	mailSvc  *emailsvc.ConsoleServiceMock
	school   user.School
	teacher  user.User
	students []user.User
	course   course.Course
}

// newFixture sets up a flat graded course of 40 points with 3 enrolled students.
// Student 1 has 9/10, 18/20 and a best quiz attempt of 10/10 (92.5%).
// Student 2 has 5/10 and an ungraded submission (50%).
// Student 3 has nothing graded.
func newFixture(t *testing.T) fixture {
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logsvc.NewNopLogger())

	school := testutil.CreateSchool(t, usrRepo, "Lycée Wima")
	teacher := testutil.CreateUser(
		t, usrRepo, school.ID, "Mr Teacher", "teacher", "teacher@school.com", "", []string{user.RoleTeacher}, true,
	)
	students := testutil.CreateStudents(t, usrRepo, school.ID, 3)
	c := testutil.CreateCourse(t, courseRepo, school.ID, teacher.ID, "MATH101", nil, []course.ScaleBand{
		{Label: "A", MinPercentage: 90},
		{Label: "B", MinPercentage: 80},
		{Label: "C", MinPercentage: 70},
		{Label: "F", MinPercentage: 0},
	})
	testutil.Enroll(t, courseRepo, c.ID, students...)

	a1 := testutil.CreateAssignment(t, courseRepo, c.ID, "Homework 1", 10, "")
	a2 := testutil.CreateAssignment(t, courseRepo, c.ID, "Homework 2", 20, "")
	q := testutil.CreateQuiz(t, courseRepo, c.ID, "Quiz 1", "", 5, 5)

	testutil.Submit(t, courseRepo, a1, students[0], ptr(9))
	testutil.Submit(t, courseRepo, a2, students[0], ptr(18))
	testutil.RecordAttempt(t, courseRepo, q, students[0], ptr(7))
	testutil.RecordAttempt(t, courseRepo, q, students[0], ptr(10))
	testutil.RecordAttempt(t, courseRepo, q, students[0], nil)

	testutil.Submit(t, courseRepo, a1, students[1], ptr(5))
	testutil.Submit(t, courseRepo, a2, students[1], nil)

	return fixture{
		svc:      grade.NewService(inmemdb.NewGradeLoader(db), courseRepo, usrRepo, mailSvc),
		mailSvc:  mailSvc,
		school:   school,
		teacher:  teacher,
		students: students,
		course:   c,
	}
}

func TestService_StudentGrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		schoolID  string
		courseID  string
		studentID string
		want      grade.Result
		wantErr   error
	}{
		{"all graded", f.school.ID, f.course.ID, f.students[0].ID, grade.Result{Percentage: 92.5, LetterGrade: "A"}, nil},
		{"ungraded work left out", f.school.ID, f.course.ID, f.students[1].ID, grade.Result{Percentage: 50, LetterGrade: "F"}, nil},
		{"nothing graded", f.school.ID, f.course.ID, f.students[2].ID, grade.Result{Percentage: 0, LetterGrade: "F"}, nil},
		{"not enrolled", f.school.ID, f.course.ID, f.teacher.ID, grade.Result{}, course.ErrNotEnrolled},
		{"unknown course", f.school.ID, "nope", f.students[0].ID, grade.Result{}, course.ErrNotFound},
		{"other school", "other-school", f.course.ID, f.students[0].ID, grade.Result{}, course.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.StudentGrade(ctx, tt.schoolID, tt.courseID, tt.studentID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Gradebook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gb, err := f.svc.Gradebook(ctx, f.school.ID, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, f.course.ID, gb.Course.ID)
	assert.False(t, gb.GeneratedAt.IsZero())

	want := []grade.Row{
		{StudentID: f.students[0].ID, Name: "Student 1", Username: "student1", Result: grade.Result{Percentage: 92.5, LetterGrade: "A"}},
		{StudentID: f.students[1].ID, Name: "Student 2", Username: "student2", Result: grade.Result{Percentage: 50, LetterGrade: "F"}},
		{StudentID: f.students[2].ID, Name: "Student 3", Username: "student3", Result: grade.Result{Percentage: 0, LetterGrade: "F"}},
	}
	assert.Equal(t, want, gb.Rows)

	// rows agree with single student grades
	for _, row := range gb.Rows {
		res, err := f.svc.StudentGrade(ctx, f.school.ID, f.course.ID, row.StudentID)
		require.NoError(t, err)
		assert.Equal(t, res, row.Result)
	}

	_, err = f.svc.Gradebook(ctx, "other-school", f.course.ID)
	assert.Equal(t, course.ErrNotFound, err)
}

func TestService_Gradebook_EmptyCourse(t *testing.T) {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	svc := grade.NewService(inmemdb.NewGradeLoader(db), courseRepo, usrRepo, nil)

	school := testutil.CreateSchool(t, usrRepo, "Empty School")
	teacher := testutil.CreateUser(t, usrRepo, school.ID, "T", "t", "t@school.com", "", []string{user.RoleTeacher}, true)
	c := testutil.CreateCourse(t, courseRepo, school.ID, teacher.ID, "EMPTY1", nil, nil)

	gb, err := svc.Gradebook(context.Background(), school.ID, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, gb.Rows)
	assert.Empty(t, gb.Rows)
}

func TestService_EmailGradebook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gb, err := f.svc.Gradebook(ctx, f.school.ID, f.course.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.EmailGradebook(ctx, gb, f.teacher))
	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "teacher@school.com", msg.To[0].Address)
	assert.Equal(t, "Gradebook: Course MATH101", msg.Subject)
	assert.Contains(t, msg.TextContent, "(3 students)")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, grade.ExportFilename(gb, grade.FormatXLSX), msg.Attachments[0].Filename)
	assert.Equal(t, grade.XLSXContentType, msg.Attachments[0].ContentType)

	f.mailSvc.Reset()
	noEmail := f.teacher
	noEmail.Email = ""
	err = f.svc.EmailGradebook(ctx, gb, noEmail)
	require.Error(t, err)
	assert.IsType(t, &core.ValidationError{}, err)
	assert.Empty(t, f.mailSvc.SentMessages())
}
