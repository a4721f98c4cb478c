package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
	"golang.org/x/crypto/bcrypt"

	"workbridge/internal/auth"
	"workbridge/internal/event"
	"workbridge/internal/model"
	"workbridge/internal/service/mocks"
	"workbridge/pkg/apierror"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type authFixture struct {
	users  *mocks.MockUserStore
	issuer *mocks.MockTokenIssuer
	cache  *mocks.MockSessionCache
	bus    *event.InMemoryBus
	clock  *abtime.ManualTime
	svc    *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &authFixture{
		users:  mocks.NewMockUserStore(ctrl),
		issuer: mocks.NewMockTokenIssuer(ctrl),
		cache:  mocks.NewMockSessionCache(ctrl),
		bus:    event.NewBus(),
		clock:  abtime.NewManualAtTime(testNow),
	}
	f.svc = NewAuthService(f.users, f.issuer, f.cache, f.bus, AuthConfig{
		SessionTTL:       7 * 24 * time.Hour,
		MaxLoginAttempts: 3,
		LockoutDuration:  15 * time.Minute,
		BcryptCost:       bcrypt.MinCost,
	}, f.clock)
	return f
}

func hashed(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a freelancer and opens a session", func(t *testing.T) {
		f := newAuthFixture(t)
		events, unsubscribe := f.bus.Subscribe()
		defer unsubscribe()

		var created model.User
		f.users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u model.User) error {
			created = u
			return nil
		})
		expiresAt := testNow.Add(7 * 24 * time.Hour)
		f.issuer.EXPECT().Issue(gomock.Any(), 7*24*time.Hour).DoAndReturn(func(id auth.Identity, _ time.Duration) (string, time.Time, error) {
			assert.Equal(t, "a@b.com", id.Email)
			assert.Equal(t, auth.RoleFreelancer, id.Role)
			return "signed", expiresAt, nil
		})

		session, err := f.svc.Register(ctx, model.RegisterRequest{
			Email:    "  A@B.com ",
			Password: "correct horse",
			FullName: "Ada Lovelace",
			Role:     "Freelancer",
		})
		require.NoError(t, err)

		assert.Equal(t, "signed", session.Token)
		assert.Equal(t, expiresAt, session.ExpiresAt)
		assert.Equal(t, "a@b.com", session.User.Email)
		assert.Equal(t, testNow, created.CreatedAt)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct horse")))

		e := <-events
		assert.Equal(t, event.TypeUserRegistered, e.Type)
		assert.Equal(t, []string{created.ID}, e.Recipients)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newAuthFixture(t)

		tests := map[string]model.RegisterRequest{
			"missing email":  {Password: "long enough", FullName: "A", Role: "client"},
			"bad email":      {Email: "not-an-email", Password: "long enough", FullName: "A", Role: "client"},
			"short password": {Email: "a@b.com", Password: "short", FullName: "A", Role: "client"},
			"missing name":   {Email: "a@b.com", Password: "long enough", Role: "client"},
			"unknown role":   {Email: "a@b.com", Password: "long enough", FullName: "A", Role: "owner"},
			"admin role":     {Email: "a@b.com", Password: "long enough", FullName: "A", Role: "admin"},
		}

		for name, req := range tests {
			t.Run(name, func(t *testing.T) {
				_, err := f.svc.Register(ctx, req)
				assert.True(t, apierror.HasCode(err, "BAD_REQUEST"), "got %v", err)
			})
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newAuthFixture(t)
		f.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(model.ErrUserAlreadyExists)

		_, err := f.svc.Register(ctx, model.RegisterRequest{
			Email: "a@b.com", Password: "long enough", FullName: "A", Role: "client",
		})
		assert.ErrorIs(t, err, model.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	user := model.User{ID: "u1", Email: "a@b.com", Role: auth.RoleClient}

	t.Run("success", func(t *testing.T) {
		f := newAuthFixture(t)
		u := user
		u.PasswordHash = hashed(t, "secret-pass")

		f.users.EXPECT().FindByEmail(gomock.Any(), "a@b.com").Return(u, nil)
		f.issuer.EXPECT().Issue(u.Identity(), 7*24*time.Hour).Return("signed", testNow.Add(time.Hour), nil)

		session, err := f.svc.Login(ctx, model.LoginRequest{Email: "A@b.com", Password: "secret-pass"})
		require.NoError(t, err)
		assert.Equal(t, "signed", session.Token)
	})

	t.Run("success clears earlier failures", func(t *testing.T) {
		f := newAuthFixture(t)
		u := user
		u.PasswordHash = hashed(t, "secret-pass")
		u.FailedLoginAttempts = 2

		f.users.EXPECT().FindByEmail(gomock.Any(), "a@b.com").Return(u, nil)
		f.users.EXPECT().ResetFailedAttempts(gomock.Any(), "u1", testNow).Return(nil)
		f.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return("signed", testNow, nil)

		_, err := f.svc.Login(ctx, model.LoginRequest{Email: "a@b.com", Password: "secret-pass"})
		require.NoError(t, err)
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newAuthFixture(t)
		f.users.EXPECT().FindByEmail(gomock.Any(), "x@b.com").Return(model.User{}, model.ErrUserNotFound)

		_, err := f.svc.Login(ctx, model.LoginRequest{Email: "x@b.com", Password: "whatever"})
		assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	})

	t.Run("wrong password counts a failure", func(t *testing.T) {
		f := newAuthFixture(t)
		u := user
		u.PasswordHash = hashed(t, "secret-pass")

		f.users.EXPECT().FindByEmail(gomock.Any(), "a@b.com").Return(u, nil)
		f.users.EXPECT().RecordFailedLogin(gomock.Any(), "u1", 3, 15*time.Minute, testNow).Return(nil, nil)

		_, err := f.svc.Login(ctx, model.LoginRequest{Email: "a@b.com", Password: "wrong"})
		assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	})

	t.Run("wrong password that trips the lock", func(t *testing.T) {
		f := newAuthFixture(t)
		u := user
		u.PasswordHash = hashed(t, "secret-pass")
		until := testNow.Add(15 * time.Minute)

		f.users.EXPECT().FindByEmail(gomock.Any(), "a@b.com").Return(u, nil)
		f.users.EXPECT().RecordFailedLogin(gomock.Any(), "u1", 3, 15*time.Minute, testNow).Return(&until, nil)

		_, err := f.svc.Login(ctx, model.LoginRequest{Email: "a@b.com", Password: "wrong"})
		var apiErr *apierror.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusLocked, apiErr.HTTPStatus)
	})

	t.Run("locked account refuses even the right password until the lock passes", func(t *testing.T) {
		f := newAuthFixture(t)
		u := user
		u.PasswordHash = hashed(t, "secret-pass")
		until := testNow.Add(15 * time.Minute)
		u.LockedUntil = &until

		f.users.EXPECT().FindByEmail(gomock.Any(), "a@b.com").Return(u, nil).Times(2)

		_, err := f.svc.Login(ctx, model.LoginRequest{Email: "a@b.com", Password: "secret-pass"})
		assert.True(t, apierror.HasCode(err, "ACCOUNT_LOCKED"))

		f.clock.Advance(16 * time.Minute)
		// The repository stamps the reset with the service clock, not the wall clock.
		f.users.EXPECT().ResetFailedAttempts(gomock.Any(), "u1", testNow.Add(16*time.Minute)).Return(nil)
		f.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return("signed", testNow, nil)

		_, err = f.svc.Login(ctx, model.LoginRequest{Email: "a@b.com", Password: "secret-pass"})
		assert.NoError(t, err)
	})

	t.Run("real codec round trip", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		users := mocks.NewMockUserStore(ctrl)
		clock := abtime.NewManualAtTime(testNow)
		codec, err := auth.NewCodec("test-secret", auth.WithClock(clock))
		require.NoError(t, err)

		svc := NewAuthService(users, codec, mocks.NewMockSessionCache(ctrl), event.NewBus(),
			AuthConfig{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}, clock)

		u := user
		u.PasswordHash = hashed(t, "secret-pass")
		users.EXPECT().FindByEmail(gomock.Any(), "a@b.com").Return(u, nil)

		session, err := svc.Login(ctx, model.LoginRequest{Email: "a@b.com", Password: "secret-pass"})
		require.NoError(t, err)

		claims := codec.Verify(session.Token)
		require.NotNil(t, claims)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, testNow.Add(time.Hour), session.ExpiresAt)
	})
}

func TestAuthService_Bootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without credentials", func(t *testing.T) {
		f := newAuthFixture(t)
		assert.NoError(t, f.svc.Bootstrap(ctx, "", ""))
	})

	t.Run("creates the admin once", func(t *testing.T) {
		f := newAuthFixture(t)
		f.users.EXPECT().FindByEmail(gomock.Any(), "root@workbridge.dev").Return(model.User{}, model.ErrUserNotFound)
		f.users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u model.User) error {
			assert.Equal(t, auth.RoleAdmin, u.Role)
			return nil
		})

		assert.NoError(t, f.svc.Bootstrap(ctx, "root@workbridge.dev", "admin-password"))
	})

	t.Run("existing account is kept", func(t *testing.T) {
		f := newAuthFixture(t)
		f.users.EXPECT().FindByEmail(gomock.Any(), "root@workbridge.dev").
			Return(model.User{ID: "a1", Role: auth.RoleAdmin}, nil)

		assert.NoError(t, f.svc.Bootstrap(ctx, "root@workbridge.dev", "admin-password"))
	})
}

func TestAuthService_AdminOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("role change invalidates the cached record", func(t *testing.T) {
		f := newAuthFixture(t)
		f.users.EXPECT().UpdateRole(gomock.Any(), "u2", auth.RoleFreelancer).
			Return(model.User{ID: "u2", Role: auth.RoleFreelancer}, nil)
		f.cache.EXPECT().Invalidate(gomock.Any(), "u2")

		user, err := f.svc.UpdateRole(ctx, "admin-1", "u2", "freelancer")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleFreelancer, user.Role)
	})

	t.Run("invalid role", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.svc.UpdateRole(ctx, "admin-1", "u2", "superuser")
		assert.True(t, apierror.HasCode(err, "BAD_REQUEST"))
	})

	t.Run("admins cannot change or delete themselves", func(t *testing.T) {
		f := newAuthFixture(t)

		_, err := f.svc.UpdateRole(ctx, "admin-1", "admin-1", "client")
		assert.True(t, apierror.HasCode(err, "CONFLICT"))
		assert.True(t, apierror.HasCode(f.svc.DeleteUser(ctx, "admin-1", "admin-1"), "CONFLICT"))
	})

	t.Run("delete", func(t *testing.T) {
		f := newAuthFixture(t)
		f.users.EXPECT().Delete(gomock.Any(), "u2").Return(nil)
		f.cache.EXPECT().Invalidate(gomock.Any(), "u2")

		assert.NoError(t, f.svc.DeleteUser(ctx, "admin-1", "u2"))
	})

	t.Run("delete missing user", func(t *testing.T) {
		f := newAuthFixture(t)
		f.users.EXPECT().Delete(gomock.Any(), "u2").Return(model.ErrUserNotFound)

		assert.ErrorIs(t, f.svc.DeleteUser(ctx, "admin-1", "u2"), model.ErrUserNotFound)
	})

	t.Run("list hides password hashes", func(t *testing.T) {
		f := newAuthFixture(t)
		f.users.EXPECT().List(gomock.Any()).Return([]model.User{{ID: "u1", PasswordHash: "x"}}, nil)

		users, err := f.svc.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "u1", users[0].ID)
	})
}
