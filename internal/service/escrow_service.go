package service

import (
	"context"
	"log/slog"

	"workbridge/internal/auth"
	"workbridge/internal/event"
	"workbridge/internal/model"
)

// EscrowService keeps the bookkeeping for funds held against staffed
// projects. Moving real money is left to the payment gateway.
type EscrowService struct {
	transactions TransactionStore
	bus          event.Bus
}

func NewEscrowService(transactions TransactionStore, bus event.Bus) *EscrowService {
	return &EscrowService{transactions: transactions, bus: bus}
}

func (s *EscrowService) ListFor(ctx context.Context, userID string) (model.TransactionList, error) {
	txns, err := s.transactions.ListForUser(ctx, userID)
	if err != nil {
		return model.TransactionList{}, err
	}
	return model.TransactionList{Transactions: txns}, nil
}

func (s *EscrowService) ListAll(ctx context.Context) (model.TransactionList, error) {
	txns, err := s.transactions.ListAll(ctx)
	if err != nil {
		return model.TransactionList{}, err
	}
	return model.TransactionList{Transactions: txns}, nil
}

// Release pays the freelancer. Only the paying client may release.
func (s *EscrowService) Release(ctx context.Context, actor *auth.Claims, id string) (model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.Release")
	defer span.End()

	txn, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return model.Transaction{}, err
	}
	if actor == nil || actor.UserID != txn.ClientID {
		return model.Transaction{}, model.ErrForbidden
	}

	return s.settle(ctx, actor, txn, model.TransactionReleased, model.ProjectCompleted, event.TypeEscrowReleased)
}

// Refund returns held funds to the client. Callers are admins.
func (s *EscrowService) Refund(ctx context.Context, actor *auth.Claims, id string) (model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.Refund")
	defer span.End()

	if actor == nil {
		return model.Transaction{}, model.ErrUnauthorized
	}

	txn, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return model.Transaction{}, err
	}

	return s.settle(ctx, actor, txn, model.TransactionRefunded, model.ProjectClosed, event.TypeEscrowRefunded)
}

func (s *EscrowService) settle(ctx context.Context, actor *auth.Claims, txn model.Transaction, to model.TransactionStatus, project model.ProjectStatus, typ event.Type) (model.Transaction, error) {
	if txn.Status != model.TransactionHeld {
		return model.Transaction{}, model.ErrInvalidTransition
	}

	settled, err := s.transactions.Settle(ctx, txn.ID, to, project)
	if err != nil {
		return model.Transaction{}, err
	}

	slog.Info("escrow settled",
		"transaction_id", settled.ID,
		"status", settled.Status,
		"amount_cents", settled.AmountCents,
		"actor_id", actor.UserID,
	)
	s.bus.Publish(event.New(typ, actor.UserID, settled, settled.ClientID, settled.FreelancerID))

	return settled, nil
}
