package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

func Test_userAPI_login(t *testing.T) {
	app := setup(t)
	pwd := "Kinshasa-2024!"
	testutil.CreateUser(t, app.usrRepo, app.school.ID, "Amani", "amani", "amani@school.com", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.usrRepo, app.school.ID, "N Dog", "ndog", "ndog@school.com", pwd, []string{user.RoleStudent}, false)

	body := func(uname, pwd string) []byte {
		return marshallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}
	authFailed := marshallObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{name: "missing fields", body: body("", ""), wantCode: http.StatusBadRequest},
		{name: "unknown user", body: body("lol", pwd), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "wrong password", body: body("amani", "nope"), wantCode: http.StatusBadRequest, wantData: authFailed},
		{
			name: "inactive user", body: body("ndog", pwd),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", body: body("AMANI", pwd), wantCode: http.StatusOK},
		{name: "by email", body: body("amani@school.com", pwd), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := app.run(t, tt)
			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshall(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userAPI_query(t *testing.T) {
	app := setup(t)

	admin := app.createUser(t, "Admin", "admin", user.RoleAdmin)
	teacher := app.createUser(t, "Teacher", "teacher", user.RoleTeacher)
	student := app.createUser(t, "Student", "student", user.RoleStudent)
	other := testutil.CreateSchool(t, app.usrRepo, "Institut Mapendo")
	testutil.CreateUser(t, app.usrRepo, other.ID, "Outsider", "outsider", "out@other.com", "", []string{user.RoleAdmin}, true)

	path := func(search, ordering string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	adminToken := app.token(t, admin)

	tests := []httpTest{
		{name: "auth required", path: path("", ""), wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "admin required", path: path("", ""), token: app.token(t, teacher),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "own school only", path: path("", "username"), token: adminToken, wantData: marshallList(t, admin, student, teacher)},
		{name: "ordering", path: path("", "-name"), token: adminToken, wantData: marshallList(t, teacher, student, admin)},
		{name: "search", path: path("stud", ""), token: adminToken, wantData: marshallList(t, student)},
		{name: "search (unknown)", path: path("outsider", ""), token: adminToken, wantData: marshallList(t)},
		{name: "role", path: path("", "", user.RoleTeacher), token: adminToken, wantData: marshallList(t, teacher)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			app.run(t, tt)
		})
	}
}

func Test_userAPI_retrieve(t *testing.T) {
	app := setup(t)

	admin := app.createUser(t, "Admin", "admin", user.RoleAdmin)
	student := app.createUser(t, "Student", "student", user.RoleStudent)
	student2 := app.createUser(t, "Student 2", "student2", user.RoleStudent)
	other := testutil.CreateSchool(t, app.usrRepo, "Institut Mapendo")
	outsider := testutil.CreateUser(t, app.usrRepo, other.ID, "Outsider", "outsider", "out@other.com", "", []string{user.RoleStudent}, true)

	notFound := marshallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "auth required", path: "/api/users/" + student.ID, wantCode: http.StatusUnauthorized},
		{name: "self", path: "/api/users/" + student.ID, token: app.token(t, student), wantCode: http.StatusOK, wantData: marshallObj(t, student)},
		{name: "someone else", path: "/api/users/" + student2.ID, token: app.token(t, student), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin", path: "/api/users/" + student2.ID, token: app.token(t, admin), wantCode: http.StatusOK, wantData: marshallObj(t, student2)},
		{name: "admin (other school)", path: "/api/users/" + outsider.ID, token: app.token(t, admin), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "unknown", path: "/api/users/lol", token: app.token(t, admin), wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			app.run(t, tt)
		})
	}
}

func Test_userAPI_create(t *testing.T) {
	app := setup(t)

	admin := app.createUser(t, "Admin", "admin", user.RoleAdmin)
	teacher := app.createUser(t, "Teacher", "teacher", user.RoleTeacher)

	newUser := user.NewUser{
		Name:            "Amani Kabila",
		Username:        "amani",
		Email:           "amani@school.com",
		Password:        "Kinshasa-2024!",
		PasswordConfirm: "Kinshasa-2024!",
		Roles:           []string{user.RoleStudent},
	}

	t.Run("admin required", func(t *testing.T) {
		app.run(t, httpTest{
			method: http.MethodPost, path: "/api/users/register", body: marshallObj(t, newUser),
			token: app.token(t, teacher), wantCode: http.StatusForbidden,
		})
	})

	t.Run("created in the admin's school", func(t *testing.T) {
		rec := app.run(t, httpTest{
			method: http.MethodPost, path: "/api/users/register", body: marshallObj(t, newUser),
			token: app.token(t, admin), wantCode: http.StatusCreated,
		})

		var usr user.User
		unmarshall(t, rec, &usr)
		assert.Equal(t, app.school.ID, usr.SchoolID)
		assert.Equal(t, "amani", usr.Username)
		assert.True(t, usr.IsStudent())
	})

	t.Run("username taken", func(t *testing.T) {
		app.run(t, httpTest{
			method: http.MethodPost, path: "/api/users/register", body: marshallObj(t, newUser),
			token: app.token(t, admin), wantCode: http.StatusBadRequest,
		})
	})
}

func Test_userAPI_destroyMultiple(t *testing.T) {
	app := setup(t)

	admin := app.createUser(t, "Admin", "admin", user.RoleAdmin)
	students := testutil.CreateStudents(t, app.usrRepo, app.school.ID, 2)
	other := testutil.CreateSchool(t, app.usrRepo, "Institut Mapendo")
	outsider := testutil.CreateUser(t, app.usrRepo, other.ID, "Outsider", "outsider", "out@other.com", "", []string{user.RoleStudent}, true)

	path := func(ids ...string) string {
		v := make(url.Values)
		for _, id := range ids {
			v.Add("id", id)
		}
		return "/api/users?" + v.Encode()
	}
	adminToken := app.token(t, admin)

	tests := []httpTest{
		{
			name: "cannot delete self", path: path(students[0].ID, admin.ID), token: adminToken,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "other school untouched", path: path(outsider.ID), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallObj(t, echoapi.DestroyMultipleResponse{Deleted: 0}),
		},
		{
			name: "deleted", path: path(students[0].ID, students[1].ID), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallObj(t, echoapi.DestroyMultipleResponse{Deleted: 2}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			app.run(t, tt)
		})
	}

	_, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: outsider.ID})
	require.NoError(t, err)
}

func Test_userAPI_resetPassword(t *testing.T) {
	app := setup(t, func(conf *core.Config) {
		conf.Server.PasswordResetRate = 0.2 // 1 request every 5 seconds
	})
	app.createUser(t, "Student", "student", user.RoleStudent)

	body := marshallObj(t, echoapi.PasswordResetRequest{Email: "STUDENT@school.com"})

	app.run(t, httpTest{method: http.MethodPost, path: "/api/users/password-reset", body: body, wantCode: http.StatusOK})
	sent := app.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "student@school.com", sent[0].To[0].Address)

	t.Run("rate limited", func(t *testing.T) {
		app.run(t, httpTest{method: http.MethodPost, path: "/api/users/password-reset", body: body, wantCode: http.StatusTooManyRequests})
		assert.Len(t, app.mailSvc.SentMessages(), 1)
	})
}
