//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
	"golang.org/x/crypto/bcrypt"

	"workbridge/internal/auth"
	"workbridge/internal/cache"
	"workbridge/internal/config"
	"workbridge/internal/database"
	"workbridge/internal/event"
	"workbridge/internal/handler"
	"workbridge/internal/middleware"
	"workbridge/internal/observability"
	"workbridge/internal/repository"
	"workbridge/internal/router"
	"workbridge/internal/service"
)

const (
	testSecret    = "integration-secret"
	adminEmail    = "admin@workbridge.test"
	adminPassword = "admin-password"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details string          `json:"details"`
}

// openDB connects to DATABASE_URL, migrates, and empties every table.
func openDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, url, 5, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	_, err = db.Pool.Exec(ctx, "TRUNCATE transactions, proposals, projects, users CASCADE")
	require.NoError(t, err)

	return db
}

func newServer(t *testing.T, mutate func(cfg *config.Config)) *httptest.Server {
	t.Helper()
	db := openDB(t)

	cfg := &config.Config{
		RequestTimeout:    10 * time.Second,
		SessionTTL:        time.Hour,
		SessionCookieName: auth.DefaultCookieName,
		CORSOrigins:       []string{"http://localhost:3000"},
		RateLimitRPM:      1000,
		AuthRateLimitRPM:  1000,
		MaxLoginAttempts:  3,
		LockoutDuration:   time.Minute,
	}
	if mutate != nil {
		mutate(cfg)
	}

	userRepo := repository.NewUserRepository(db.Pool)
	projectRepo := repository.NewProjectRepository(db.Pool)
	proposalRepo := repository.NewProposalRepository(db.Pool)
	transactionRepo := repository.NewTransactionRepository(db.Pool)

	codec, err := auth.NewCodec(testSecret)
	require.NoError(t, err)
	compat, err := auth.NewCompatVerifier(testSecret)
	require.NoError(t, err)

	sessionUsers := cache.NewSessionUsers(userRepo, nil, time.Second)
	sessions := auth.NewSessions(codec, cfg.SessionCookieName, sessionUsers)
	edgeSessions := auth.NewSessions(compat, cfg.SessionCookieName, nil)

	bus := event.NewBus()
	authService := service.NewAuthService(userRepo, codec, sessionUsers, bus, service.AuthConfig{
		SessionTTL:       cfg.SessionTTL,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockoutDuration:  cfg.LockoutDuration,
		BcryptCost:       bcrypt.MinCost,
	}, abtime.NewRealTime())
	require.NoError(t, authService.Bootstrap(context.Background(), adminEmail, adminPassword))

	metrics := observability.NewMetrics()
	h := router.New(cfg, metrics, edgeSessions, middleware.NewAuthMiddleware(sessions, metrics), router.Handlers{
		Auth:    handler.NewAuthHandler(authService, sessions, auth.CookieConfig{Name: cfg.SessionCookieName, TTL: cfg.SessionTTL}),
		Users:   handler.NewUserHandler(authService),
		Project: handler.NewProjectHandler(service.NewProjectService(projectRepo, bus), service.NewProposalService(projectRepo, proposalRepo, bus)),
		Escrow:  handler.NewEscrowHandler(service.NewEscrowService(transactionRepo, bus)),
		Health:  handler.NewHealthHandler(map[string]handler.Check{"database": db.Health}),
	})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return server
}

// client is one browser: it keeps its own session cookie.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, server *httptest.Server) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: server.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method string, path string, body any) (int, envelope) {
	c.t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(c.t, err)
	}

	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(payload))
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (c *client) register(email string, role string) string {
	c.t.Helper()

	status, env := c.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":     email,
		"password":  "correct-horse",
		"full_name": "Test " + role,
		"role":      role,
	})
	require.Equal(c.t, http.StatusCreated, status, env.Error)

	var session struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(c.t, env, &session)
	return session.User.ID
}

func (c *client) login(email string, password string) (int, envelope) {
	c.t.Helper()
	return c.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password})
}

func decode(t *testing.T, env envelope, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}
