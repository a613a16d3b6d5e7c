package echoapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/brijeshkumar2024/smart-attendance/core/user"
	testutil "github.com/brijeshkumar2024/smart-attendance/tests"
)

func Test_userApi_login(t *testing.T) {
	env := newTestServer(t)

	testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "LolC@t123", true)
	testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog@test.cd", user.RoleStudent, "LolC@t123", false)

	tests := []httpTest{
		{
			name: "required fields", body: marshallObj(t, LoginRequest{}), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "invalid email", body: marshallObj(t, LoginRequest{Email: "lol", Password: "x"}), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "unknown email", body: marshallObj(t, LoginRequest{Email: "lol@test.cd", Password: "LolC@t123"}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: marshallObj(t, LoginRequest{Email: "hero@test.cd", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: marshallObj(t, LoginRequest{Email: "ndog@test.cd", Password: "LolC@t123"}),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "login ok", body: marshallObj(t, LoginRequest{Email: " Hero@Test.CD ", Password: "LolC@t123"}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			env.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				if respData.Role != user.RoleStudent {
					t.Errorf("failed! role = %s; want %s", respData.Role, user.RoleStudent)
				}
				if respData.Name != "Hero" {
					t.Errorf("failed! name = %s; want Hero", respData.Name)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	env := newTestServer(t)

	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true)
	naughty := testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog@test.cd", user.RoleStudent, "", false)

	now := time.Now()
	unrefreshableClaims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    env.conf.AppName,
			Subject:   student.ID,
			Audience:  "SmartAttendance",
			ExpiresAt: now.Add(env.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * env.conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Name:         student.Name,
		Email:        student.Email,
		Role:         student.Role,
	}
	unrefreshableToken, err := GenerateToken(unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Inactive user not allowed", token: getToken(t, env.conf, naughty),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Refresh period expired", token: unrefreshableToken,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: getToken(t, env.conf, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_register(t *testing.T) {
	env := newTestServer(t)

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", user.RoleAdmin, "", true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Asha Verma", "asha@test.cd", user.RoleTeacher, "", true)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true)

	newStudent := func(email string) []byte {
		return marshallObj(t, user.NewUser{
			Name: "New Guy", Email: email, Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		})
	}
	newTeacher := marshallObj(t, user.NewUser{
		Name: "Ravi Iyer", Email: "ravi@test.cd", Password: "LolC@t123", PasswordConfirm: "LolC@t123",
		Role: user.RoleTeacher, Subject: "Algorithms",
	})

	tests := []httpTest{
		{name: "Auth required", body: newStudent("s1@test.cd"), wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Students cannot register", token: getToken(t, env.conf, student), body: newStudent("s1@test.cd"),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Teachers can only register students", token: getToken(t, env.conf, teacher), body: newTeacher,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Teacher registers a student", token: getToken(t, env.conf, teacher), body: newStudent("s1@test.cd"), wantCode: http.StatusCreated},
		{name: "Admin registers a teacher", token: getToken(t, env.conf, admin), body: newTeacher, wantCode: http.StatusCreated},
		{
			name: "Duplicate email", token: getToken(t, env.conf, admin), body: newStudent("s1@test.cd"),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if respData.IsTeacher() && !strings.HasPrefix(respData.TeacherID, "TCH") {
					t.Errorf("failed! teacher_id = %q; want TCHxxxx", respData.TeacherID)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	env := newTestServer(t)

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", user.RoleAdmin, "", true)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other@test.cd", user.RoleStudent, "", true)

	adminToken := getToken(t, env.conf, admin)
	studentToken := getToken(t, env.conf, student)
	notFound := marshallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/api/users/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "Student gets self", method: http.MethodGet, path: "/api/users/" + student.ID, token: studentToken, wantCode: http.StatusOK, wantData: marshallObj(t, student)},
		{name: "Student cannot get others", method: http.MethodGet, path: "/api/users/" + other.ID, token: studentToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "Admin gets anyone", method: http.MethodGet, path: "/api/users/" + other.ID, token: adminToken, wantCode: http.StatusOK, wantData: marshallObj(t, other)},
		{name: "Admin gets unknown", method: http.MethodGet, path: "/api/users/nope", token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "Student cannot change role", method: http.MethodPatch, path: "/api/users/" + student.ID + "/role",
			token: studentToken, body: marshallObj(t, user.UpdateRole{Role: user.RoleAdmin}),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Bad role", method: http.MethodPatch, path: "/api/users/" + other.ID + "/role",
			token: adminToken, body: marshallObj(t, user.UpdateRole{Role: "principal"}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"role": "role must be one of admin, teacher or student"}),
		},
		{
			name: "Admin changes role", method: http.MethodPatch, path: "/api/users/" + other.ID + "/role",
			token: adminToken, body: marshallObj(t, user.UpdateRole{Role: user.RoleTeacher}), wantCode: http.StatusOK,
		},
		{
			name: "Admin cannot deactivate self", method: http.MethodPatch, path: "/api/users/" + admin.ID + "/deactivate",
			token: adminToken, wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Admin deactivates student", method: http.MethodPatch, path: "/api/users/" + other.ID + "/deactivate", token: adminToken, wantCode: http.StatusOK},
		{
			name: "Admin resets password", method: http.MethodPost, path: "/api/users/" + student.ID + "/reset-password",
			token: adminToken, body: marshallObj(t, user.ResetUserPassword{NewPassword: "NewC@t456", PasswordConfirm: "NewC@t456"}),
			wantCode: http.StatusOK, wantData: marshallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)

			if tt.wantData == nil {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// the new password now works
	req, rec := newRequest(http.MethodPost, "/api/users/login",
		marshallObj(t, LoginRequest{Email: student.Email, Password: "NewC@t456"}))
	env.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("login with reset password failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
}

func Test_userApi_listings(t *testing.T) {
	env := newTestServer(t)

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", user.RoleAdmin, "", true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Asha Verma", "asha@test.cd", user.RoleTeacher, "", true)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true)
	testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog@test.cd", user.RoleStudent, "", false)

	adminToken := getToken(t, env.conf, admin)
	teacherToken := getToken(t, env.conf, teacher)
	studentToken := getToken(t, env.conf, student)
	forbidden := marshallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "me", path: "/api/users/me", token: studentToken, wantCode: http.StatusOK, wantData: marshallObj(t, student)},
		{name: "user query needs admin", path: "/api/users", token: teacherToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "teachers needs admin", path: "/api/users/teachers", token: teacherToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "teachers", path: "/api/users/teachers", token: adminToken, wantCode: http.StatusOK, wantData: marshallList(t, teacher)},
		{name: "students needs staff", path: "/api/users/students", token: studentToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "students", path: "/api/users/students", token: teacherToken, wantCode: http.StatusOK, wantData: marshallList(t, student)},
		{
			name: "user query filters by role", path: "/api/users?role=teacher", token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, teacher),
		},
		{
			name: "user query search", path: "/api/users?search=hero", token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, student),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
