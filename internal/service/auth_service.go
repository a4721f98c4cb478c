package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"

	"workbridge/internal/auth"
	"workbridge/internal/event"
	"workbridge/internal/model"
	"workbridge/pkg/apierror"
)

const minPasswordLength = 8

type AuthConfig struct {
	SessionTTL       time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	BcryptCost       int
}

type AuthService struct {
	users  UserStore
	issuer TokenIssuer
	cache  SessionCache
	bus    event.Bus
	cfg    AuthConfig
	clock  abtime.AbstractTime
}

func NewAuthService(users UserStore, issuer TokenIssuer, cache SessionCache, bus event.Bus, cfg AuthConfig, clock abtime.AbstractTime) *AuthService {
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}

	return &AuthService{users: users, issuer: issuer, cache: cache, bus: bus, cfg: cfg, clock: clock}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apierror.BadRequest("email is required", "email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apierror.BadRequest("invalid email address", "email")
	}
	return email, nil
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.Session, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return model.Session{}, err
	}

	if len(req.Password) < minPasswordLength {
		return model.Session{}, apierror.BadRequest(
			fmt.Sprintf("password must be at least %d characters", minPasswordLength), "password")
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return model.Session{}, apierror.BadRequest("full_name is required", "full_name")
	}

	role, ok := auth.ParseRole(req.Role)
	if !ok || role == auth.RoleAdmin {
		return model.Session{}, apierror.BadRequest("role must be client or freelancer", "role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		span.RecordError(err)
		return model.Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		span.SetStatus(codes.Error, "user creation failed")
		return model.Session{}, err
	}

	session, err := s.issue(user)
	if err != nil {
		span.RecordError(err)
		return model.Session{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "role", user.Role)
	s.bus.Publish(event.New(event.TypeUserRegistered, user.ID, user.Public(), user.ID))

	return session, nil
}

// Login checks credentials and opens a session. Consecutive failures lock
// the account for the configured duration.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.Session, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return model.Session{}, apierror.BadRequest("email and password are required", "")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		span.SetStatus(codes.Error, "unknown email")
		return model.Session{}, model.ErrInvalidCredentials
	}
	if err != nil {
		span.RecordError(err)
		return model.Session{}, err
	}

	now := s.clock.Now().UTC()
	if user.LockedAt(now) {
		span.SetStatus(codes.Error, "account locked")
		return model.Session{}, lockedError(*user.LockedUntil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		span.SetStatus(codes.Error, "wrong password")

		lockedUntil, recordErr := s.users.RecordFailedLogin(ctx, user.ID, s.cfg.MaxLoginAttempts, s.cfg.LockoutDuration, now)
		if recordErr != nil {
			slog.Error("failed to record login failure", "user_id", user.ID, "error", recordErr)
			return model.Session{}, model.ErrInvalidCredentials
		}
		if lockedUntil != nil {
			slog.Warn("account locked after repeated login failures", "user_id", user.ID, "until", *lockedUntil)
			return model.Session{}, lockedError(*lockedUntil)
		}
		return model.Session{}, model.ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.users.ResetFailedAttempts(ctx, user.ID, now); err != nil {
			slog.Warn("failed to reset login failures", "user_id", user.ID, "error", err)
		}
	}

	return s.issue(user)
}

func lockedError(until time.Time) error {
	return apierror.New("ACCOUNT_LOCKED", "Account temporarily locked", until.UTC().Format(time.RFC3339), http.StatusLocked)
}

func (s *AuthService) issue(user model.User) (model.Session, error) {
	token, expiresAt, err := s.issuer.Issue(user.Identity(), s.cfg.SessionTTL)
	if err != nil {
		return model.Session{}, fmt.Errorf("issue session token: %w", err)
	}
	return model.Session{User: user.Public(), ExpiresAt: expiresAt, Token: token}, nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// Bootstrap creates the configured admin account on first start. An existing
// account with that email is left alone.
func (s *AuthService) Bootstrap(ctx context.Context, email string, password string) error {
	if email == "" || password == "" {
		return nil
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != auth.RoleAdmin {
			slog.Warn("bootstrap admin email belongs to a non-admin account", "user_id", existing.ID, "role", existing.Role)
		}
		return nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := s.clock.Now().UTC()
	admin := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     "Administrator",
		PasswordHash: string(hash),
		Role:         auth.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, admin); err != nil && !errors.Is(err, model.ErrUserAlreadyExists) {
		return fmt.Errorf("create admin: %w", err)
	}

	slog.Info("admin account created", "email", email)
	return nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]model.PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// UpdateRole changes a user's role. Tokens already issued keep the old role
// until they expire; the cached record is dropped so fresh lookups see it.
func (s *AuthService) UpdateRole(ctx context.Context, actorID string, userID string, rawRole string) (model.PublicUser, error) {
	role, ok := auth.ParseRole(rawRole)
	if !ok {
		return model.PublicUser{}, apierror.BadRequest("invalid role", rawRole)
	}
	if actorID == userID {
		return model.PublicUser{}, apierror.Conflict("cannot change your own role", "")
	}

	user, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		return model.PublicUser{}, err
	}

	s.cache.Invalidate(ctx, userID)
	slog.Info("user role changed", "user_id", userID, "role", role, "actor_id", actorID)
	s.bus.Publish(event.New(event.TypeUserRoleChanged, actorID, user.Public(), userID))

	return user.Public(), nil
}

func (s *AuthService) DeleteUser(ctx context.Context, actorID string, userID string) error {
	if actorID == userID {
		return apierror.Conflict("cannot delete your own account", "")
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, userID)
	slog.Info("user deleted", "user_id", userID, "actor_id", actorID)
	return nil
}
