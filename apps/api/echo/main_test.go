package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/ratelimit"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(logsvc.NewNopLogger(), true)
	m.Run()
}

type testApp struct {
	conf       *core.Config
	server     *echoapi.Server
	usrRepo    user.Repository
	courseRepo course.Repository
	mailSvc    *emailsvc.ConsoleServiceMock
	school     user.School
}

// setup returns a server backed by a fresh in-memory database holding one school.
func setup(t *testing.T, confs ...func(conf *core.Config)) testApp {
	conf := core.NewTestConfig()
	for _, fn := range confs {
		fn(conf)
	}

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)

	// set up services
	logger := logsvc.NewNopLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	// set up server
	server := echoapi.NewServer(echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    user.NewServiceMock(usrRepo, mailSvc, conf),
		CourseSvc:  course.NewService(nil, courseRepo, usrRepo, mailSvc, logger),
		GradeSvc:   grade.NewService(inmemdb.NewGradeLoader(db), courseRepo, usrRepo, mailSvc),
		ResetStore: ratelimit.NewStore(nil, "password-reset", conf.Server.PasswordResetRate),
	})

	return testApp{
		conf:       conf,
		server:     server,
		usrRepo:    usrRepo,
		courseRepo: courseRepo,
		mailSvc:    mailSvc,
		school:     testutil.CreateSchool(t, usrRepo, "Lycée Wima"),
	}
}

func (app testApp) createUser(t *testing.T, name, uname string, roles ...string) user.User {
	return testutil.CreateUser(t, app.usrRepo, app.school.ID, name, uname, uname+"@school.com", "", roles, true)
}

func (app testApp) token(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("token(): %v", err)
	}
	return token
}

func (app testApp) run(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte // not checked when nil
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshallList(): %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarshall(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; data = %v", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
