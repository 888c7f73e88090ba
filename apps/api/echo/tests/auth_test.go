package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/odontoweb/clinica/apps/api/echo"
	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
)

func Test_authApi_login(t *testing.T) {
	app := setup(t)

	invalidCreds := marshallObj(t, httpErr{Error: "invalid credentials"})

	// deactivate one fixture account
	secretary := getUser(t, app, "secretary@clinica.com")
	inactive := false
	if _, err := app.usrSvc.Update(context.Background(), secretary.ID, user.UpdateUser{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivating secretary: %v", err)
	}

	tests := []httpTest{
		{
			name: "empty body", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", body: marshallObj(t, map[string]string{"email": "who@clinica.com", "password": "nope"}),
			wantCode: http.StatusUnauthorized, wantData: invalidCreds,
		},
		{
			name: "wrong password", body: marshallObj(t, map[string]string{"email": "admin@clinica.com", "password": "nope"}),
			wantCode: http.StatusUnauthorized, wantData: invalidCreds,
		},
		{
			name: "deactivated account", body: marshallObj(t, map[string]string{"email": "secretary@clinica.com", "password": "secretary"}),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/login", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			// a failed login must not leave a session behind
			assert.Empty(t, rec.Result().Cookies())
		})
	}

	t.Run("valid credentials", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login",
			marshallObj(t, map[string]string{"email": "admin@clinica.com", "password": "admin"}))
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling: %v", err)
		}
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "admin@clinica.com", resp.Identity.Email)
		assert.Equal(t, user.RoleAdmin, resp.Identity.Role)
		assert.Equal(t, "/admin/users", resp.RedirectTo)

		// session cookie is set and carries the token
		cookies := rec.Result().Cookies()
		if assert.Len(t, cookies, 1) {
			assert.Equal(t, app.conf.Session.CookieName, cookies[0].Name)
			assert.Equal(t, resp.Token, cookies[0].Value)
			assert.True(t, cookies[0].HttpOnly)
		}
	})
}

func Test_authApi_sessionLifecycle(t *testing.T) {
	app := setup(t)

	anonymous := marshallObj(t, map[string]interface{}{"authenticated": false})

	// no token: anonymous, not an error
	req, rec := newRequest(http.MethodGet, "/v1/auth/session")
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: anonymous}, rec)

	// garbage token: anonymous
	req, rec = newAuthRequest(http.MethodGet, "/v1/auth/session", "not-a-jwt")
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: anonymous}, rec)

	// login, then the same token resolves to an authenticated session
	resp := login(t, app, "patient@clinica.com", "patient")

	req, rec = newAuthRequest(http.MethodGet, "/v1/auth/session", resp.Token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var sess struct {
		Authenticated bool           `json:"authenticated"`
		Identity      *user.Identity `json:"identity"`
		RedirectTo    string         `json:"redirect_to"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	assert.True(t, sess.Authenticated)
	if assert.NotNil(t, sess.Identity) {
		assert.Equal(t, "patient@clinica.com", sess.Identity.Email)
	}
	assert.Equal(t, "/appointments", sess.RedirectTo)

	// logout clears the record; the token no longer resolves
	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/logout", resp.Token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/v1/auth/session", resp.Token)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: anonymous}, rec)

	// logout is idempotent
	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/logout", resp.Token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func Test_authApi_logoutClearsStorage(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	resp := login(t, app, "student@clinica.com", "student")

	claims, err := ParseToken(app.conf, resp.Token)
	if err != nil {
		t.Fatalf("parsing token: %v", err)
	}
	if _, err = app.sessionDB.Load(ctx, claims.Id); err != nil {
		t.Fatalf("expected persisted record, got %v", err)
	}

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/logout", resp.Token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = app.sessionDB.Load(ctx, claims.Id)
	assert.Equal(t, session.ErrNoSession, err)
}

func Test_authApi_routes(t *testing.T) {
	app := setup(t)

	req, rec := newRequest(http.MethodGet, "/v1/auth/routes")
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Public  []string               `json:"public"`
		Rules   map[string][]user.Role `json:"rules"`
		Landing map[user.Role]string   `json:"landing"`
		Login   string                 `json:"login"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	assert.Equal(t, "/login", resp.Login)
	assert.Contains(t, resp.Public, "/login")
	assert.Equal(t, []user.Role{user.RoleAdmin}, resp.Rules["/admin"])
	assert.Equal(t, "/appointments", resp.Landing[user.RoleSecretary])
	assert.Equal(t, "/admin/users", resp.Landing[user.RoleAdmin])
}

func Test_authApi_tokenRefresh(t *testing.T) {
	app := setup(t)

	// refresh requires auth
	req, rec := newRequest(http.MethodPost, "/v1/auth/token-refresh")
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := login(t, app, "professor@clinica.com", "professor")

	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", resp.Token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var refreshed LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	assert.NotEmpty(t, refreshed.Token)
	assert.Equal(t, "professor@clinica.com", refreshed.Identity.Email)

	// a logged-out session cannot be refreshed
	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/logout", resp.Token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", resp.Token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
