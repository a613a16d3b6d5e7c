package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/academic"
	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
	emailsvc "github.com/brijeshkumar2024/smart-attendance/services/email"
	"github.com/brijeshkumar2024/smart-attendance/services/realtime"
	dummydb "github.com/brijeshkumar2024/smart-attendance/storage/database/dummy"
	testutil "github.com/brijeshkumar2024/smart-attendance/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app     *Server
	conf    *core.Config
	usrRepo user.Repository
	clsRepo class.Repository
	attRepo attendance.Repository
	acadSvc *academic.Service
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	conf := &core.Config{
		TestMode:         true,
		AppName:          "SmartAttendance",
		SecretKey:        "poipoi",
		DefaultFromEmail: mail.Address{Address: "noreply@test.cd"},
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 7 * 24 * time.Hour

	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	clsRepo := dummydb.NewClassRepository(db)
	attRepo := dummydb.NewAttendanceRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.SentMessages = emailsvc.SentMessages[:0]

	logger := testutil.NopLogger{}
	usrSvc := user.NewService(usrRepo, conf)
	acadSvc := academic.NewService(dummydb.NewAcademicRepository(db))
	clsSvc := class.NewService(clsRepo, usrRepo, acadSvc)
	attSvc := attendance.NewService(
		attRepo, dummydb.NewAuditRepository(db), usrRepo, clsSvc, mailSvc, nil /* broadcaster */, logger)

	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator(enLocale.Locale())
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	class.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	app := NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		ClassSvc:      clsSvc,
		AttendanceSvc: attSvc,
		AcademicSvc:   acadSvc,
		Hub:           realtime.NewHub(logger),
		Validate:      validate,
		Translator:    translator,
	})

	return &testEnv{
		app:     app,
		conf:    conf,
		usrRepo: usrRepo,
		clsRepo: clsRepo,
		attRepo: attRepo,
		acadSvc: acadSvc,
	}
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
	extra    interface{}
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

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
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
