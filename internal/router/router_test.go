package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
	"golang.org/x/crypto/bcrypt"

	"workbridge/internal/auth"
	"workbridge/internal/cache"
	"workbridge/internal/config"
	"workbridge/internal/event"
	"workbridge/internal/handler"
	"workbridge/internal/middleware"
	"workbridge/internal/model"
	"workbridge/internal/observability"
	"workbridge/internal/service"
	"workbridge/internal/service/mocks"
)

const testSecret = "router-test-secret"

type fixture struct {
	server   *httptest.Server
	codec    *auth.Codec
	users    *mocks.MockUserStore
	projects *mocks.MockProjectStore
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	codec, err := auth.NewCodec(testSecret)
	require.NoError(t, err)
	compat, err := auth.NewCompatVerifier(testSecret)
	require.NoError(t, err)

	users := mocks.NewMockUserStore(ctrl)
	projects := mocks.NewMockProjectStore(ctrl)
	proposals := mocks.NewMockProposalStore(ctrl)
	transactions := mocks.NewMockTransactionStore(ctrl)
	bus := event.NewBus()

	sessionUsers := cache.NewSessionUsers(users, nil, time.Second)
	sessions := auth.NewSessions(codec, auth.DefaultCookieName, sessionUsers)
	edgeSessions := auth.NewSessions(compat, auth.DefaultCookieName, nil)

	authService := service.NewAuthService(users, codec, sessionUsers, bus, service.AuthConfig{
		SessionTTL:       time.Hour,
		MaxLoginAttempts: 3,
		LockoutDuration:  time.Minute,
		BcryptCost:       bcrypt.MinCost,
	}, abtime.NewRealTime())

	cfg := &config.Config{
		RequestTimeout:   5 * time.Second,
		RateLimitRPM:     0,
		AuthRateLimitRPM: 100,
		CORSOrigins:      []string{"http://localhost:3000"},
	}
	metrics := observability.NewMetrics()

	h := New(cfg, metrics, edgeSessions, middleware.NewAuthMiddleware(sessions, metrics), Handlers{
		Auth:    handler.NewAuthHandler(authService, sessions, auth.CookieConfig{TTL: time.Hour}),
		Users:   handler.NewUserHandler(authService),
		Project: handler.NewProjectHandler(service.NewProjectService(projects, bus), service.NewProposalService(projects, proposals, bus)),
		Escrow:  handler.NewEscrowHandler(service.NewEscrowService(transactions, bus)),
		Health:  handler.NewHealthHandler(nil),
	})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return &fixture{server: server, codec: codec, users: users, projects: projects, metrics: metrics}
}

func (f *fixture) token(t *testing.T, id string, role auth.Role) string {
	t.Helper()
	token, _, err := f.codec.Issue(auth.Identity{UserID: id, Email: id + "@b.com", Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method string, path string, token string, body string) (*http.Response, model.APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: token})
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded model.APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestProbes(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, _ = f.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutes(t *testing.T) {
	f := newFixture(t)

	t.Run("no cookie", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/v1/projects", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Not authenticated", body.Error)
		assert.Equal(t, "UNAUTHORIZED", body.Code)
	})

	t.Run("tampered token", func(t *testing.T) {
		token := f.token(t, "client-1", auth.RoleClient)
		resp, _ := f.do(t, http.MethodGet, "/api/v1/projects", token[:len(token)-2]+"xx", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong role", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/v1/projects", f.token(t, "free-1", auth.RoleFreelancer), `{"title":"x","budget_cents":1}`)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "client-access required", body.Error)
	})

	t.Run("admin prefix is guarded at the edge", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/v1/admin/users", f.token(t, "client-1", auth.RoleClient), "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "admin-access required", body.Error)

		resp, _ = f.do(t, http.MethodGet, "/api/v1/admin/unknown", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("client creates project", func(t *testing.T) {
		f.projects.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		resp, body := f.do(t, http.MethodPost, "/api/v1/projects", f.token(t, "client-1", auth.RoleClient), `{"title":"Logo","budget_cents":5000}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.True(t, body.Success)
	})

	t.Run("admin lists users", func(t *testing.T) {
		f.users.EXPECT().List(gomock.Any()).Return([]model.User{{ID: "admin-1", Role: auth.RoleAdmin}}, nil)

		resp, body := f.do(t, http.MethodGet, "/api/v1/admin/users", f.token(t, "admin-1", auth.RoleAdmin), "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, body.Data.(map[string]any)["users"], 1)
	})
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t)

	var created model.User
	f.users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ any, u model.User) error {
		created = u
		return nil
	})

	resp, body := f.do(t, http.MethodPost, "/api/v1/auth/register", "", `{"email":"Ana@Example.com","password":"hunter2hunter2","full_name":"Ana","role":"freelancer"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body.Error)

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == auth.DefaultCookieName {
			token = c.Value
			assert.True(t, c.HttpOnly)
		}
	}
	require.NotEmpty(t, token)

	resp, body = f.do(t, http.MethodGet, "/api/v1/auth/session", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "freelancer", body.Data.(map[string]any)["role"])

	promoted := created
	promoted.Role = auth.RoleClient
	f.users.EXPECT().FindByID(gomock.Any(), created.ID).Return(promoted, nil)

	resp, body = f.do(t, http.MethodGet, "/api/v1/auth/me", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "client", body.Data.(map[string]any)["role"])
	assert.Equal(t, "ana@example.com", body.Data.(map[string]any)["email"])

	f.users.EXPECT().FindByEmail(gomock.Any(), "ana@example.com").Return(model.User{}, model.ErrUserNotFound)
	resp, body = f.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"ana@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body.Error)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/auth/logout", token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/api/v1/projects", "", "")

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `workbridge_auth_decisions_total{outcome="unauthenticated"} 1`)
	assert.Contains(t, string(raw), "workbridge_http_request_duration_seconds")
}
