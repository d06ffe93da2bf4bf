package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database"
)

// PrepareDB opens and migrates the test database, and truncates its tables once the test is done.
// The test is skipped when no database is reachable.
func PrepareDB(t *testing.T, conf *core.Config) *sql.DB {
	t.Helper()

	db, err := database.Open(conf)
	if err != nil {
		t.Skipf("opening test database: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("test database unreachable: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}

	t.Cleanup(func() {
		if _, err := db.Exec(`TRUNCATE school, "user", course CASCADE`); err != nil {
			t.Errorf("truncating tables: %v", err)
		}
		_ = db.Close()
	})
	return db
}

func CreateSchool(t *testing.T, repo user.Repository, name string) user.School {
	t.Helper()
	school, err := repo.CreateSchool(context.Background(), user.School{Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return school
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudents creates n active students named "Student 1" to "Student n".
func CreateStudents(t *testing.T, repo user.Repository, schoolID string, n int) []user.User {
	t.Helper()
	students := make([]user.User, 0, n)
	for i := 1; i <= n; i++ {
		students = append(students, CreateUser(
			t, repo, schoolID,
			fmt.Sprintf("Student %d", i),
			fmt.Sprintf("student%d", i),
			fmt.Sprintf("student%d@school.com", i),
			"", []string{user.RoleStudent}, true,
		))
	}
	return students
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	schoolID, teacherID, code string,
	weights map[course.Category]float64,
	scale []course.ScaleBand,
) course.Course {
	t.Helper()
	now := time.Now().UTC()
	c, err := repo.CreateCourse(context.Background(), course.Course{
		SchoolID:       schoolID,
		TeacherID:      teacherID,
		Code:           code,
		Title:          "Course " + code,
		GradingWeights: weights,
		GradingScale:   scale,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func Enroll(t *testing.T, repo course.Repository, courseID string, students ...user.User) {
	t.Helper()
	for _, s := range students {
		if _, err := repo.CreateEnrollment(
			context.Background(),
			course.Enrollment{CourseID: courseID, StudentID: s.ID, CreatedAt: time.Now().UTC()},
		); err != nil {
			t.Fatalf("Enroll() failed: %v", err)
		}
	}
}

func CreateAssignment(t *testing.T, repo course.Repository, courseID, title string, maxPoints float64, category string) course.Assignment {
	t.Helper()
	a, err := repo.CreateAssignment(context.Background(), course.Assignment{
		CourseID:  courseID,
		Title:     title,
		MaxPoints: maxPoints,
		Category:  course.CategoryPtr(category),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}

// CreateQuiz creates a quiz with one question per points value.
func CreateQuiz(t *testing.T, repo course.Repository, courseID, title, category string, points ...float64) course.Quiz {
	t.Helper()
	questions := make([]course.Question, 0, len(points))
	for i, p := range points {
		questions = append(questions, course.Question{Position: i + 1, Prompt: fmt.Sprintf("Question %d", i+1), Points: p})
	}
	q, err := repo.CreateQuiz(context.Background(), course.Quiz{
		CourseID:  courseID,
		Title:     title,
		Category:  course.CategoryPtr(category),
		Questions: questions,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateQuiz() failed: %v", err)
	}
	return q
}

// Submit saves a submission of the student, graded when grade is not nil.
func Submit(t *testing.T, repo course.Repository, a course.Assignment, student user.User, grade *float64) course.Submission {
	t.Helper()
	ctx := context.Background()
	s, err := repo.SaveSubmission(ctx, course.Submission{
		AssignmentID: a.ID,
		StudentID:    student.ID,
		Content:      "my work",
		SubmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if grade == nil {
		return s
	}
	now := time.Now().UTC()
	s.Grade = grade
	s.GradedAt = &now
	if s, err = repo.UpdateSubmissionGrade(ctx, s); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	return s
}

func RecordAttempt(t *testing.T, repo course.Repository, q course.Quiz, student user.User, points *float64) course.Attempt {
	t.Helper()
	a, err := repo.CreateAttempt(context.Background(), course.Attempt{
		QuizID:       q.ID,
		StudentID:    student.ID,
		PointsEarned: points,
		StartedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("RecordAttempt() failed: %v", err)
	}
	return a
}
