package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/repository"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/service"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type api struct {
	t     *testing.T
	e     *echo.Echo
	users *repository.UserRepo
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)
	stores := service.Stores{
		Users:     repository.NewUserRepo(db),
		Refresh:   repository.NewTokenRepo(db),
		Blacklist: repository.NewBlacklistRepo(db),
		Resets:    repository.NewResetRepo(db),
	}
	codec, err := utils.NewTokenCodec("router-test-secret-0123456789abcdef", time.Hour)
	require.NoError(t, err)
	local := service.NewLocalAuth(stores, codec, utils.NewPasswordHasher(bcrypt.MinCost), nil, time.Hour, zap.NewNop())

	e := New(Deps{Auth: local, DB: db, Log: zap.NewNop()})
	return &api{t: t, e: e, users: stores.Users}
}

func (a *api) do(method, path, bearer string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (a *api) register(email string) service.AuthResult {
	a.t.Helper()
	status, env := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "Alice", "email": email, "password": "Password1",
	})
	require.Equal(a.t, http.StatusCreated, status, env.Error.Message)
	var res service.AuthResult
	require.NoError(a.t, json.Unmarshal(env.Data, &res))
	return res
}

func TestHealthz(t *testing.T) {
	a := newAPI(t)
	status, env := a.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)
}

func TestAuthFlow_OverHTTP(t *testing.T) {
	a := newAPI(t)
	reg := a.register("alice@example.com")
	require.Equal(t, "Bearer", reg.Tokens.TokenType)
	require.NotEmpty(t, reg.Tokens.RefreshToken)

	raw := string(mustJSON(t, reg))
	require.NotContains(t, raw, "passwordHash")

	status, env := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "Alice", "email": "ALICE@example.com", "password": "Password1",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "CONFLICT", env.Error.Code)

	status, env = a.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "nope",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	status, env = a.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "Password1",
	})
	require.Equal(t, http.StatusOK, status)
	var login service.AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &login))

	status, env = a.do(http.MethodGet, "/v1/auth/me", login.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(env.Data), "alice@example.com")

	status, _ = a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": login.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(http.MethodPost, "/v1/auth/logout", login.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	status, env = a.do(http.MethodGet, "/v1/auth/me", login.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "INVALID_TOKEN", env.Error.Code)

	status, _ = a.do(http.MethodPost, "/v1/auth/logout", "garbage", nil)
	require.Equal(t, http.StatusOK, status, "logout always succeeds")
}

func TestPasswordEndpoints_OverHTTP(t *testing.T) {
	a := newAPI(t)
	reg := a.register("alice@example.com")

	status, env := a.do(http.MethodPut, "/v1/auth/password", reg.Tokens.AccessToken, map[string]string{
		"currentPassword": "Wrong1234", "newPassword": "NewPassword2",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_CURRENT_PASSWORD", env.Error.Code)

	status, _ = a.do(http.MethodPut, "/v1/auth/password", reg.Tokens.AccessToken, map[string]string{
		"currentPassword": "Password1", "newPassword": "NewPassword2",
	})
	require.Equal(t, http.StatusOK, status)

	_, known := a.do(http.MethodPost, "/v1/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	_, unknown := a.do(http.MethodPost, "/v1/auth/forgot-password", "", map[string]string{"email": "bob@example.com"})
	require.JSONEq(t, string(known.Data), string(unknown.Data))

	status, env = a.do(http.MethodPost, "/v1/auth/reset-password", "", map[string]string{
		"token": "bogus", "password": "Another3x",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_RESET_TOKEN", env.Error.Code)

	status, env = a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "", "email": "x@example.com", "password": "Password1",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestRegister_OverlongPasswordIs400(t *testing.T) {
	a := newAPI(t)
	status, env := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": strings.Repeat("a", 79) + "1",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestLogoutAll_OverHTTP(t *testing.T) {
	a := newAPI(t)
	reg := a.register("alice@example.com")

	status, env := a.do(http.MethodPost, "/v1/auth/logout-all", reg.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"revoked":1}`, string(env.Data))

	status, _ = a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestUserAdminEndpoints(t *testing.T) {
	a := newAPI(t)
	user := a.register("alice@example.com")
	admin := a.register("root@example.com")

	status, env := a.do(http.MethodGet, "/v1/users/1", user.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "FORBIDDEN", env.Error.Code)

	_, err := a.users.UpdateRoles(context.Background(), admin.User.ID, []model.Role{model.RoleAdmin})
	require.NoError(t, err)

	status, env = a.do(http.MethodGet, "/v1/users/1", admin.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(env.Data), "alice@example.com")
	require.NotContains(t, string(env.Data), "passwordHash")

	status, _ = a.do(http.MethodGet, "/v1/users/99", admin.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, env = a.do(http.MethodGet, "/v1/users?email=ALICE@example.com", admin.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(env.Data), `"id":1`)

	status, env = a.do(http.MethodPut, "/v1/users/1/roles", admin.Tokens.AccessToken, map[string]any{
		"roles": []string{"readonly-admin"},
	})
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(env.Data), "readonly-admin")

	status, _ = a.do(http.MethodPut, "/v1/users/1/roles", admin.Tokens.AccessToken, map[string]any{"roles": []string{}})
	require.Equal(t, http.StatusBadRequest, status)

	// readonly-admin may look users up but not change roles.
	status, _ = a.do(http.MethodGet, "/v1/users/2", user.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = a.do(http.MethodPut, "/v1/users/2/roles", user.Tokens.AccessToken, map[string]any{"roles": []string{"user"}})
	require.Equal(t, http.StatusForbidden, status)
}

func TestUnknownRoute_UsesEnvelope(t *testing.T) {
	a := newAPI(t)
	status, env := a.do(http.MethodGet, "/v1/nope", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.False(t, env.Success)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
