package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
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

var (
	usrRepo    user.Repository
	courseRepo course.Repository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	courseRepo = inmemdb.NewCourseRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logsvc.NewNopLogger())

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		usrRepo:  usrRepo,
		gradeSvc: grade.NewService(inmemdb.NewGradeLoader(db), courseRepo, usrRepo, mailSvc),
		out:      out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_addSchool(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"addschool"}, wantErr: errHelp},
		{name: "create", args: []string{"addschool", "-name", " Lycée Wima "}},
		{name: "duplicate", args: []string{"addschool", "-name", "Lycée Wima"}, wantErr: user.ErrSchoolExists},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Contains(t, out.String(), `school "Lycée Wima" created: `)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	school := testutil.CreateSchool(t, usrRepo, "Lycée Wima")
	other := testutil.CreateSchool(t, usrRepo, "Institut Kasavubu")
	outsider := testutil.CreateUser(t, usrRepo, other.ID, "Outsider", "outsider", "outsider@other.com", "", nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no school", args: []string{"adduser", "-username", "awe"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-school", school.ID, "-username", "awe"}, wantErr: errHelp},
		{
			name: "unknown role", args: []string{"adduser", "-school", school.ID, "-username", "awe", "-role", "parent"},
			extra: "pwd", wantErr: errUnknownRole,
		},
		{
			name: "school not found", args: []string{"adduser", "-school", "lol", "-username", "awe"},
			extra: "pwd", wantErr: user.ErrSchoolNotFound,
		},
		{
			name: "user of another school", args: []string{"adduser", "-school", school.ID, "-username", outsider.Username},
			extra: "pwd", wantErrStr: `user "outsider" belongs to another school`,
		},
		{
			name: "create admin", args: []string{"adduser", "-school", school.ID, "-username", "Awe", "-email", "awe@test.cd", "-name", "Awe"},
			extra: "pwd",
		},
		{
			name: "update to teacher", args: []string{"adduser", "-school", school.ID, "-email", "AWE@test.cd", "-role", "teacher"},
			extra: "new pwd",
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "awe"})
	require.NoError(t, err)
	assert.Equal(t, school.ID, usr.SchoolID)
	assert.Equal(t, "Awe", usr.Name)
	assert.Equal(t, "awe@test.cd", usr.Email)
	assert.Equal(t, user.TeacherRoles, usr.Roles)
	assert.True(t, usr.Active())
	assert.NoError(t, usr.CheckPassword("new pwd"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	school := testutil.CreateSchool(t, usrRepo, "Lycée Wima")
	usr := testutil.CreateUser(t, usrRepo, school.ID, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NoError(t, refreshedUsr.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_exportGradebook(t *testing.T) {
	cli, out := setup(t)
	school := testutil.CreateSchool(t, usrRepo, "Lycée Wima")
	teacher := testutil.CreateUser(t, usrRepo, school.ID, "Teacher", "teacher", "teacher@school.com", "", user.TeacherRoles, true)
	students := testutil.CreateStudents(t, usrRepo, school.ID, 2)
	c := testutil.CreateCourse(t, courseRepo, school.ID, teacher.ID, "MATH101",
		map[course.Category]float64{"homework": 1},
		[]course.ScaleBand{{Label: "P", MinPercentage: 50}, {Label: "F", MinPercentage: 0}},
	)
	testutil.Enroll(t, courseRepo, c.ID, students...)
	hw := testutil.CreateAssignment(t, courseRepo, c.ID, "Homework 1", 10, "homework")
	testutil.Submit(t, courseRepo, hw, students[0], core.Float64Ptr(7))

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "gradebook.csv")
	xlsxPath := filepath.Join(dir, "gradebook.xlsx")

	tests := []cliTest{
		{name: "no args", args: []string{"exportgradebook"}, wantErr: errHelp},
		{name: "no course", args: []string{"exportgradebook", "-school", school.ID}, wantErr: errHelp},
		{
			name: "unknown format", args: []string{"exportgradebook", "-school", school.ID, "-course", c.ID, "-format", "pdf"},
			wantErr: grade.ErrUnknownFormat,
		},
		{
			name: "course of another school", args: []string{"exportgradebook", "-school", "lol", "-course", c.ID, "-o", csvPath},
			wantErr: course.ErrNotFound,
		},
		{name: "csv", args: []string{"exportgradebook", "-school", school.ID, "-course", c.ID, "-o", csvPath}},
		{name: "xlsx", args: []string{"exportgradebook", "-school", school.ID, "-course", c.ID, "-format", "xlsx", "-o", xlsxPath}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	content, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], students[0].ID+",Student 1,student1,70.0,P,"), lines[1])

	info, err := os.Stat(xlsxPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
	assert.Contains(t, out.String(), "gradebook of MATH101 exported to "+xlsxPath+" (2 students)")
}
