package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/services"
)

func TestMain(m *testing.M) {
	models.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type fixture struct {
	manager *Manager
	users   *services.UserService
	roles   *services.RoleService
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewTestDB(t)
	users := services.NewUserService(db, nil)
	roles := services.NewRoleService(db, nil)
	m := NewManager(Options{Secret: "test-secret-0123456789abcdef0123"}, users, roles)

	mux := http.NewServeMux()
	mux.HandleFunc("/register", m.RegisterHandler)
	mux.HandleFunc("/login", m.LoginHandler)
	mux.HandleFunc("/logout", m.LogoutHandler)
	mux.Handle("/me", Require(http.HandlerFunc(m.MeHandler)))

	return &fixture{manager: m, users: users, roles: roles, handler: m.Middleware(mux)}
}

func (f *fixture) do(t *testing.T, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRegisterSignsIn(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/register", `{"name":"Ana","email":"Ana@Example.com","password":"secret123"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = f.do(t, http.MethodGet, "/me", "", cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		User  models.User    `json:"user"`
		Roles models.RoleSet `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ana@example.com", body.User.Email)
	assert.True(t, body.Roles.IsUser)
	assert.False(t, body.Roles.CanModerate())
}

func TestLoginAndLogout(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/register", `{"name":"Ana","email":"ana@example.com","password":"secret123"}`, nil)

	rec := f.do(t, http.MethodPost, "/login", `{"email":"ana@example.com","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"unauthenticated"`)

	rec = f.do(t, http.MethodPost, "/login", `{"email":"ana@example.com","password":"secret123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/me", "", cookies).Code)

	rec = f.do(t, http.MethodPost, "/logout", "", cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := rec.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.True(t, cleared[0].MaxAge < 0)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/me", "", nil).Code)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/register", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/register", `{"name":"Ana","email":"ana@example.com","password":"123"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"validation"`)

	f.do(t, http.MethodPost, "/register", `{"name":"Ana","email":"ana@example.com","password":"secret123"}`, nil)
	rec = f.do(t, http.MethodPost, "/register", `{"name":"Ana 2","email":"ana@example.com","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMiddlewareIgnoresForgedCookie(t *testing.T) {
	f := newFixture(t)

	forged := &http.Cookie{Name: sessionName, Value: "garbage"}
	rec := f.do(t, http.MethodGet, "/me", "", []*http.Cookie{forged})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionFromContextDefaultsToAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s := SessionFromRequest(req)
	assert.False(t, s.Authenticated())

	req = req.WithContext(WithSession(req.Context(), Session{UserID: "u1"}))
	assert.Equal(t, "u1", SessionFromRequest(req).UserID)
}
