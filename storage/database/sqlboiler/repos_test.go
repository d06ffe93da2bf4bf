package boiledrepos_test

import (
	"testing"

	"github.com/trezcool/shule/core"
	boiledrepos "github.com/trezcool/shule/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
	testutil "github.com/trezcool/shule/tests"
)

func TestUserRepository(t *testing.T) {
	db := testutil.PrepareDB(t, core.NewTestConfig())
	testutil.RunUserRepositoryTests(t, boiledrepos.NewUserRepository(db))
}

func TestCourseRepository(t *testing.T) {
	db := testutil.PrepareDB(t, core.NewTestConfig())
	testutil.RunCourseRepositoryTests(t, boiledrepos.NewUserRepository(db), boiledrepos.NewCourseRepository(db), sqlxrepos.NewGradeLoader(db))
}
