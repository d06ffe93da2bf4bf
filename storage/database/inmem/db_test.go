package inmemdb_test

import (
	"testing"

	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

func TestUserRepository(t *testing.T) {
	testutil.RunUserRepositoryTests(t, inmemdb.NewUserRepository(inmemdb.Open()))
}

func TestCourseRepository(t *testing.T) {
	db := inmemdb.Open()
	testutil.RunCourseRepositoryTests(t, inmemdb.NewUserRepository(db), inmemdb.NewCourseRepository(db), inmemdb.NewGradeLoader(db))
}
