package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/user"
)

func userIDs(users []user.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

// RunUserRepositoryTests checks the behaviour every user.Repository implementation must have.
func RunUserRepositoryTests(t *testing.T, repo user.Repository) {
	ctx := context.Background()
	school := CreateSchool(t, repo, "Lycée Wima")
	other := CreateSchool(t, repo, "Institut Kasavubu")

	admin := CreateUser(t, repo, school.ID, "Admin", "admin", "admin@wima.cd", "pwd", user.AdminRoles, true)
	teacher := CreateUser(t, repo, school.ID, "Mr Teacher", "teacher", "teacher@wima.cd", "", user.TeacherRoles, true)
	inactive := CreateUser(t, repo, school.ID, "Gone", "gone", "gone@wima.cd", "", user.StudentRoles, false)
	outsider := CreateUser(t, repo, other.ID, "Outsider", "outsider", "outsider@kasavubu.cd", "", user.AdminRoles, true)

	t.Run("schools", func(t *testing.T) {
		_, err := repo.CreateSchool(ctx, user.School{Name: school.Name})
		assert.Equal(t, user.ErrSchoolExists, errors.Cause(err))

		got, err := repo.GetSchool(ctx, school.ID)
		require.NoError(t, err)
		assert.Equal(t, school.Name, got.Name)

		_, err = repo.GetSchool(ctx, uuid.New().String())
		assert.Equal(t, user.ErrSchoolNotFound, errors.Cause(err))
	})

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, errors.Cause(repo.CheckUsernameUniqueness(ctx, "admin", "new@wima.cd", nil)))
		assert.Equal(t, user.ErrEmailExists, errors.Cause(repo.CheckUsernameUniqueness(ctx, "new", "admin@wima.cd", nil)))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "admin", "admin@wima.cd", []user.User{admin}))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "new", "new@wima.cd", nil))
	})

	t.Run("get", func(t *testing.T) {
		tests := []struct {
			name   string
			filter user.GetFilter
			wantID string
		}{
			{name: "by ID", filter: user.GetFilter{ID: teacher.ID}, wantID: teacher.ID},
			{name: "by username", filter: user.GetFilter{Username: "teacher"}, wantID: teacher.ID},
			{name: "by email", filter: user.GetFilter{Email: "admin@wima.cd"}, wantID: admin.ID},
			{name: "username or email (username)", filter: user.GetFilter{UsernameOrEmail: []string{"gone"}}, wantID: inactive.ID},
			{name: "username or email (email)", filter: user.GetFilter{UsernameOrEmail: []string{"gone@wima.cd"}}, wantID: inactive.ID},
			{name: "unknown ID", filter: user.GetFilter{ID: uuid.New().String()}},
			{name: "invalid ID", filter: user.GetFilter{ID: "lol"}},
			{name: "empty filter"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.GetUser(ctx, tt.filter)
				if tt.wantID == "" {
					assert.Equal(t, user.ErrNotFound, errors.Cause(err))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, got.ID)
			})
		}

		got, err := repo.GetUser(ctx, user.GetFilter{ID: admin.ID})
		require.NoError(t, err)
		assert.Equal(t, school.ID, got.SchoolID)
		assert.Equal(t, user.AdminRoles, got.Roles)
		assert.NoError(t, got.CheckPassword("pwd"))
	})

	t.Run("query", func(t *testing.T) {
		tests := []struct {
			name   string
			filter *user.QueryFilter
			want   []user.User
		}{
			{name: "school", filter: &user.QueryFilter{SchoolID: school.ID}, want: []user.User{admin, inactive, teacher}},
			{name: "search", filter: &user.QueryFilter{SchoolID: school.ID, Search: "TEACH"}, want: []user.User{teacher}},
			{name: "role", filter: &user.QueryFilter{SchoolID: school.ID, Roles: []string{user.RoleAdmin}}, want: []user.User{admin}},
			{name: "inactive", filter: &user.QueryFilter{SchoolID: school.ID, IsActive: core.BoolPtr(false)}, want: []user.User{inactive}},
			{name: "other school", filter: &user.QueryFilter{SchoolID: other.ID}, want: []user.User{outsider}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.QueryUsers(ctx, tt.filter, []core.DBOrdering{{Field: "username", Ascending: true}})
				require.NoError(t, err)
				assert.Equal(t, userIDs(tt.want), userIDs(got))
			})
		}
	})

	t.Run("update", func(t *testing.T) {
		usr := teacher
		usr.Name = "Mrs Teacher"
		usr.SetActive(false)
		_, err := repo.UpdateOrCreateUser(ctx, usr)
		require.NoError(t, err)

		got, err := repo.GetUser(ctx, user.GetFilter{ID: teacher.ID})
		require.NoError(t, err)
		assert.Equal(t, "Mrs Teacher", got.Name)
		assert.False(t, got.Active())
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := repo.DeleteUsersByID(ctx, school.ID, []string{inactive.ID, outsider.ID, "lol"})
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		_, err = repo.GetUser(ctx, user.GetFilter{ID: inactive.ID})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
		_, err = repo.GetUser(ctx, user.GetFilter{ID: outsider.ID})
		assert.NoError(t, err)
	})
}

// RunCourseRepositoryTests checks the behaviour every course.Repository and grade.InputLoader pair must have.
func RunCourseRepositoryTests(t *testing.T, usrRepo user.Repository, repo course.Repository, loader grade.InputLoader) {
	ctx := context.Background()
	school := CreateSchool(t, usrRepo, "Lycée Wima")
	teacher := CreateUser(t, usrRepo, school.ID, "Teacher", "teacher", "teacher@wima.cd", "", user.TeacherRoles, true)
	students := CreateStudents(t, usrRepo, school.ID, 3)

	c := CreateCourse(t, repo, school.ID, teacher.ID, "MATH101",
		map[course.Category]float64{"homework": 0.4, "exams": 0.6},
		[]course.ScaleBand{{Label: "P", MinPercentage: 50}, {Label: "F", MinPercentage: 0}},
	)
	chem := CreateCourse(t, repo, school.ID, teacher.ID, "CHEM101", nil, nil)

	t.Run("courses", func(t *testing.T) {
		_, err := repo.CreateCourse(ctx, course.Course{SchoolID: school.ID, TeacherID: teacher.ID, Code: "MATH101", Title: "Again"})
		assert.Equal(t, course.ErrCodeExists, errors.Cause(err))

		got, err := repo.GetCourse(ctx, course.GetFilter{ID: c.ID, SchoolID: school.ID})
		require.NoError(t, err)
		assert.Equal(t, c.GradingWeights, got.GradingWeights)
		assert.Equal(t, c.GradingScale, got.GradingScale)

		_, err = repo.GetCourse(ctx, course.GetFilter{ID: c.ID, SchoolID: uuid.New().String()})
		assert.Equal(t, course.ErrNotFound, errors.Cause(err))

		got.GradingWeights = map[course.Category]float64{"homework": 0.5, "exams": 0.5}
		_, err = repo.UpdateCourse(ctx, got)
		require.NoError(t, err)
		got, err = repo.GetCourse(ctx, course.GetFilter{ID: c.ID})
		require.NoError(t, err)
		assert.Equal(t, 0.5, got.GradingWeights["homework"])
	})

	t.Run("enrollments", func(t *testing.T) {
		Enroll(t, repo, c.ID, students[0], students[1])
		Enroll(t, repo, chem.ID, students[2])

		_, err := repo.CreateEnrollment(ctx, course.Enrollment{CourseID: c.ID, StudentID: students[0].ID})
		assert.Equal(t, course.ErrAlreadyEnrolled, errors.Cause(err))

		enrolled, err := repo.IsEnrolled(ctx, c.ID, students[1].ID)
		require.NoError(t, err)
		assert.True(t, enrolled)
		enrolled, err = repo.IsEnrolled(ctx, c.ID, students[2].ID)
		require.NoError(t, err)
		assert.False(t, enrolled)

		courses, err := repo.QueryCourses(ctx, &course.QueryFilter{SchoolID: school.ID, StudentID: students[2].ID}, nil)
		require.NoError(t, err)
		require.Len(t, courses, 1)
		assert.Equal(t, chem.ID, courses[0].ID)

		assert.Equal(t, course.ErrNotEnrolled, errors.Cause(repo.DeleteEnrollment(ctx, c.ID, students[2].ID)))
		require.NoError(t, repo.DeleteEnrollment(ctx, chem.ID, students[2].ID))
	})

	hw := CreateAssignment(t, repo, c.ID, "Homework 1", 10, "homework")
	quiz := CreateQuiz(t, repo, c.ID, "Quiz 1", "exams", 2, 3)

	t.Run("items", func(t *testing.T) {
		got, err := repo.GetQuiz(ctx, quiz.ID)
		require.NoError(t, err)
		assert.Len(t, got.Questions, 2)
		assert.Equal(t, 5.0, got.MaxPoints())

		cats, err := repo.CategoriesInUse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []course.Category{"exams", "homework"}, cats)
	})

	t.Run("submissions and attempts", func(t *testing.T) {
		first := Submit(t, repo, hw, students[0], nil)
		again := Submit(t, repo, hw, students[0], core.Float64Ptr(9))
		assert.Equal(t, first.ID, again.ID)
		RecordAttempt(t, repo, quiz, students[0], core.Float64Ptr(4))
		RecordAttempt(t, repo, quiz, students[1], nil)

		subs, err := repo.QuerySubmissions(ctx, course.SubmissionFilter{AssignmentID: hw.ID})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, 9.0, *subs[0].Grade)
	})

	t.Run("grade loader", func(t *testing.T) {
		items, err := loader.LoadItems(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, items.Assignments, 1)
		require.Len(t, items.Quizzes, 1)
		assert.Equal(t, 5.0, items.QuizMaxPoints[quiz.ID])

		subs, attempts, err := loader.LoadWork(ctx, c.ID, []string{students[0].ID})
		require.NoError(t, err)
		assert.Len(t, subs, 1)
		require.Len(t, attempts, 1)
		assert.Equal(t, 4.0, *attempts[0].PointsEarned)

		subs, attempts, err = loader.LoadWork(ctx, c.ID, nil)
		require.NoError(t, err)
		assert.Empty(t, subs)
		assert.Empty(t, attempts)
	})

	t.Run("delete course", func(t *testing.T) {
		require.NoError(t, repo.DeleteCourse(ctx, c.ID))
		_, err := repo.GetCourse(ctx, course.GetFilter{ID: c.ID})
		assert.Equal(t, course.ErrNotFound, errors.Cause(err))
		_, err = repo.GetAssignment(ctx, hw.ID)
		assert.Equal(t, course.ErrAssignmentNotFound, errors.Cause(err))
	})
}
