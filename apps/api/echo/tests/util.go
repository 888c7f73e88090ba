package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/odontoweb/clinica/apps/api/echo"
	"github.com/odontoweb/clinica/core"
	"github.com/odontoweb/clinica/core/appointment"
	"github.com/odontoweb/clinica/core/policy"
	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
	emailsvc "github.com/odontoweb/clinica/services/email"
	logsvc "github.com/odontoweb/clinica/services/logger"
	inmemdb "github.com/odontoweb/clinica/storage/database/inmem"
	inmemstore "github.com/odontoweb/clinica/storage/session/inmem"
)

type testApp struct {
	server    Server
	conf      *core.Config
	usrSvc    *user.Service
	apptSvc   *appointment.Service
	usrRepo   user.Repository
	sessionDB session.Store
	table     *policy.Table
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	usrRepo := inmemdb.NewUserRepository(db)
	apptRepo := inmemdb.NewAppointmentRepository(db)
	if err = inmemdb.Seed(context.Background(), usrRepo); err != nil {
		t.Fatalf("setup: %v", err)
	}

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	apptSvc := appointment.NewService(apptRepo)
	sessionDB := inmemstore.New(conf.Session.TTL)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags), conf)
	logger.Enable(false)

	table := policy.Default()

	app := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		ApptSvc:    apptSvc,
		SessionDB:  sessionDB,
		Policy:     table,
		Validate:   validate,
		Translator: translator,
	})

	return &testApp{
		server:    app,
		conf:      conf,
		usrSvc:    usrSvc,
		apptSvc:   apptSvc,
		usrRepo:   usrRepo,
		sessionDB: sessionDB,
		table:     table,
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
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
	wantData []byte
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

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// getToken signs a token for the identity the same way a login would, bound
// to the given session scope.
func getToken(t *testing.T, conf *core.Config, ident user.Identity, sid string) string {
	t.Helper()
	token, err := GenerateToken(conf, GetIdentityClaims(conf, ident, sid))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

// login runs the real login endpoint and returns the parsed response.
func login(t *testing.T, app *testApp, email, password string) LoginResponse {
	t.Helper()
	body := marshallObj(t, map[string]string{"email": email, "password": password})
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login(%s): code = %v; body = %s", email, rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("login(%s): %v", email, err)
	}
	return resp
}

func getUser(t *testing.T, app *testApp, email string) user.User {
	t.Helper()
	usr, err := app.usrSvc.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("getUser(%s): %v", email, err)
	}
	return usr
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshallList(): %v", err)
	}
	return data
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
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
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
