// Package inmemdb implements the repositories on in-memory maps. It is used by tests and the dev server.
// The DBExecutor arguments of the repositories are ignored.
package inmemdb

import (
	"sync"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

type (
	DB struct {
		user   *userTable
		course *courseTables
	}

	userTable struct {
		sync.RWMutex
		schools map[string]*user.School
		users   map[string]*user.User
	}

	enrollmentKey struct {
		courseID, studentID string
	}

	courseTables struct {
		sync.RWMutex
		courses     map[string]*course.Course
		enrollments map[enrollmentKey]course.Enrollment
		assignments map[string]*course.Assignment
		quizzes     map[string]*course.Quiz
		submissions map[string]*course.Submission
		attempts    map[string]*course.Attempt
		audits      map[string]*course.GradeAudit
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{
			schools: make(map[string]*user.School),
			users:   make(map[string]*user.User),
		},
		course: &courseTables{
			courses:     make(map[string]*course.Course),
			enrollments: make(map[enrollmentKey]course.Enrollment),
			assignments: make(map[string]*course.Assignment),
			quizzes:     make(map[string]*course.Quiz),
			submissions: make(map[string]*course.Submission),
			attempts:    make(map[string]*course.Attempt),
			audits:      make(map[string]*course.GradeAudit),
		},
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyCategory(c *course.Category) *course.Category {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
