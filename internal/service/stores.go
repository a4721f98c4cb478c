package service

//go:generate mockgen -source=stores.go -destination=mocks/mock_stores.go -package=mocks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"workbridge/internal/auth"
	"workbridge/internal/model"
)

var tracer = otel.Tracer("workbridge/service")

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	UpdateRole(ctx context.Context, id string, role auth.Role) (model.User, error)
	RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error)
	ResetFailedAttempts(ctx context.Context, userID string, now time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.User, error)
}

type ProjectStore interface {
	Create(ctx context.Context, p model.Project) error
	FindByID(ctx context.Context, id string) (model.Project, error)
	List(ctx context.Context, query model.ProjectQuery) ([]model.Project, int, error)
	UpdateStatus(ctx context.Context, id string, from model.ProjectStatus, to model.ProjectStatus) (model.Project, error)
}

type ProposalStore interface {
	Create(ctx context.Context, p model.Proposal) error
	FindByID(ctx context.Context, id string) (model.Proposal, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Proposal, error)
	Accept(ctx context.Context, proposalID string, txn model.Transaction) (model.Acceptance, error)
}

type TransactionStore interface {
	FindByID(ctx context.Context, id string) (model.Transaction, error)
	ListForUser(ctx context.Context, userID string) ([]model.Transaction, error)
	ListAll(ctx context.Context) ([]model.Transaction, error)
	Settle(ctx context.Context, id string, to model.TransactionStatus, project model.ProjectStatus) (model.Transaction, error)
}

type TokenIssuer interface {
	Issue(id auth.Identity, ttl time.Duration) (string, time.Time, error)
}

// SessionCache drops cached user records after role changes and deletes.
type SessionCache interface {
	Invalidate(ctx context.Context, userID string)
}
