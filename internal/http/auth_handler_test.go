package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"config-codex/internal/repository/sqlite"
	"config-codex/internal/service"
)

const testPassword = "Zebra-Orchid-42"

type testServer struct {
	router *gin.Engine
	auth   *service.AuthService
	users  *sqlite.UserRepository
}

func setupAuthRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "codex.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	users := sqlite.NewUserRepository(db)
	if err := users.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics, err := service.NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	logger := zap.NewNop()
	tokens := service.NewJWTService("handler-secret", 0, 0)
	auth := service.NewAuthService(logger, users, service.NewBcryptHasher(bcrypt.MinCost), nil, tokens, nil, nil, metrics)
	router := NewRouter(logger, RouterConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, auth, NewAuthHandler(logger, auth))

	return &testServer{router: router, auth: auth, users: users}
}

func performRequest(r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

type authBody struct {
	User struct {
		ID            string  `json:"id"`
		Email         string  `json:"email"`
		FullName      string  `json:"full_name"`
		AvatarURL     *string `json:"avatar_url"`
		EmailVerified bool    `json:"email_verified"`
	} `json:"user"`
	Tokens service.TokenPair `json:"tokens"`
}

func (s *testServer) register(t *testing.T, email string) authBody {
	t.Helper()
	rec := performRequest(s.router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":      email,
		"password":   testPassword,
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var body authBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	return body
}

func TestHealthEndpoints(t *testing.T) {
	s := setupAuthRouter(t)

	rec := performRequest(s.router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["service"] != "config-codex-api" {
		t.Fatalf("unexpected health response %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodGet, "/api/auth/health", nil)
	body := decode(t, rec)
	features, ok := body["features"].(map[string]any)
	if rec.Code != http.StatusOK || !ok || features["jwt_auth"] != true {
		t.Fatalf("unexpected auth health response: %s", rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodGet, "/api/hello", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != `"Hello world"` {
		t.Fatalf("unexpected hello response: %s", rec.Body.String())
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := setupAuthRouter(t)

	registered := s.register(t, "Player@Example.com")
	if registered.User.Email != "player@example.com" || registered.User.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected user: %+v", registered.User)
	}
	if registered.Tokens.AccessToken == "" || registered.Tokens.RefreshToken == "" || registered.Tokens.TokenType != "Bearer" {
		t.Fatalf("unexpected tokens: %+v", registered.Tokens)
	}

	rec := performRequest(s.router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "player@example.com",
		"password": testPassword,
	}, "X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response must not expose password data: %s", rec.Body.String())
	}

	stored, err := s.users.GetByEmail(context.Background(), "player@example.com")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if stored.LastLoginIP == nil || *stored.LastLoginIP != "203.0.113.7" {
		t.Fatalf("expected login ip stored, got %v", stored.LastLoginIP)
	}
}

func TestRegisterErrors(t *testing.T) {
	s := setupAuthRouter(t)
	s.register(t, "player@example.com")

	rec := performRequest(s.router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "player@example.com",
		"password": testPassword,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode(t, rec)
	details, ok := body["details"].(map[string]any)
	if body["error"] != "validation_error" || !ok || details["email"] == nil {
		t.Fatalf("unexpected duplicate response: %s", rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "new@example.com",
		"password": "123",
	})
	body = decode(t, rec)
	details, _ = body["details"].(map[string]any)
	if rec.Code != http.StatusBadRequest || details["password"] == nil {
		t.Fatalf("unexpected weak password response: %s", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	if out.Code != http.StatusBadRequest || decode(t, out)["error"] != "invalid_request" {
		t.Fatalf("unexpected malformed response %d: %s", out.Code, out.Body.String())
	}
}

func TestLoginFailures(t *testing.T) {
	s := setupAuthRouter(t)
	registered := s.register(t, "player@example.com")

	rec := performRequest(s.router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "player@example.com",
		"password": "Wrong-Orchid-42",
	})
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["error"] != "authentication_failed" {
		t.Fatalf("unexpected wrong password response %d: %s", rec.Code, rec.Body.String())
	}

	for _, body := range []map[string]string{
		{"email": "player@example.com"},
		{"password": testPassword},
		{"email": "", "password": ""},
	} {
		rec = performRequest(s.router, http.MethodPost, "/api/auth/login", body)
		got := decode(t, rec)
		if rec.Code != http.StatusUnauthorized || got["error"] != "authentication_failed" || got["message"] != "Invalid email or password" {
			t.Fatalf("unexpected empty credentials response for %v: %d %s", body, rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "invalid_request" {
		t.Fatalf("unexpected malformed body response %d: %s", rec.Code, rec.Body.String())
	}

	user, err := s.users.GetByID(context.Background(), registered.User.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	user.IsActive = false
	if err := s.users.Update(context.Background(), user); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	rec = performRequest(s.router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "player@example.com",
		"password": testPassword,
	})
	body := decode(t, rec)
	if rec.Code != http.StatusUnauthorized || body["message"] != "User account is deactivated" {
		t.Fatalf("unexpected deactivated response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshEndpoint(t *testing.T) {
	s := setupAuthRouter(t)
	registered := s.register(t, "player@example.com")

	rec := performRequest(s.router, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": registered.Tokens.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["access_token"] == "" || body["refresh_token"] != nil || body["token_type"] != "Bearer" {
		t.Fatalf("unexpected refresh body: %s", rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": registered.Tokens.AccessToken,
	})
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["error"] != "invalid_token" {
		t.Fatalf("unexpected access-as-refresh response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMeEndpoints(t *testing.T) {
	s := setupAuthRouter(t)
	registered := s.register(t, "player@example.com")
	bearer := "Bearer " + registered.Tokens.AccessToken

	rec := performRequest(s.router, http.MethodGet, "/api/auth/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = performRequest(s.router, http.MethodGet, "/api/auth/me", nil, "Authorization", bearer)
	if rec.Code != http.StatusOK || decode(t, rec)["id"] != registered.User.ID {
		t.Fatalf("unexpected me response %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodPut, "/api/auth/me", map[string]string{
		"first_name": "Augusta",
		"avatar_url": "https://cdn.example.com/ada.png",
	}, "Authorization", bearer)
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["first_name"] != "Augusta" || body["last_name"] != "Lovelace" {
		t.Fatalf("unexpected update response %d: %s", rec.Code, rec.Body.String())
	}
	if body["avatar_url"] != "https://cdn.example.com/ada.png" {
		t.Fatalf("expected avatar url, got %v", body["avatar_url"])
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	s := setupAuthRouter(t)
	registered := s.register(t, "player@example.com")
	bearer := "Bearer " + registered.Tokens.AccessToken

	rec := performRequest(s.router, http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": "Wrong-Orchid-42",
		"new_password":     "Quartz-Falcon-77",
	}, "Authorization", bearer)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "invalid_password" {
		t.Fatalf("unexpected wrong current response %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": testPassword,
		"new_password":     "12345678",
	}, "Authorization", bearer)
	body := decode(t, rec)
	details, _ := body["details"].(map[string]any)
	if rec.Code != http.StatusBadRequest || body["error"] != "validation_error" || details["password"] == nil {
		t.Fatalf("unexpected weak password response %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": testPassword,
		"new_password":     "Quartz-Falcon-77",
	}, "Authorization", bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("change password: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "player@example.com",
		"password": "Quartz-Falcon-77",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", rec.Code)
	}
}

func TestVerifyEmailEndpoint(t *testing.T) {
	s := setupAuthRouter(t)
	registered := s.register(t, "player@example.com")
	bearer := "Bearer " + registered.Tokens.AccessToken

	rec := performRequest(s.router, http.MethodPost, "/api/auth/verify-email", nil, "Authorization", bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodPost, "/api/auth/verify-email", nil, "Authorization", bearer)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "already_verified" {
		t.Fatalf("unexpected second verify response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsAndCORS(t *testing.T) {
	s := setupAuthRouter(t)
	s.register(t, "player@example.com")

	rec := performRequest(s.router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "config_codex_auth_registrations_total") {
		t.Fatalf("unexpected metrics output %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(s.router, http.MethodOptions, "/api/auth/login", nil, "Origin", "https://app.example.com")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	rec = performRequest(s.router, http.MethodGet, "/api/health", nil, "Origin", "https://evil.example.com")
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin for unknown origin")
	}
}
