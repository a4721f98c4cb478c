package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workbridge/internal/model"
)

const transactionColumns = `id, project_id, proposal_id, client_id, freelancer_id,
		        amount_cents, status, created_at, updated_at`

type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	var status string
	err := row.Scan(&t.ID, &t.ProjectID, &t.ProposalID, &t.ClientID, &t.FreelancerID,
		&t.AmountCents, &status, &t.CreatedAt, &t.UpdatedAt)
	t.Status = model.TransactionStatus(status)
	return t, err
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (model.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Transaction{}, model.ErrTransactionNotFound
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

// ListForUser returns the entries where the user is either party.
func (r *TransactionRepository) ListForUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE client_id = $1 OR freelancer_id = $1
		 ORDER BY created_at DESC`, userID)
}

func (r *TransactionRepository) ListAll(ctx context.Context) ([]model.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC`)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]model.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Settle moves a held entry to released or refunded and sets the project's
// final status in the same database transaction.
func (r *TransactionRepository) Settle(ctx context.Context, id string, to model.TransactionStatus, project model.ProjectStatus) (model.Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("begin settle: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	t, err := scanTransaction(tx.QueryRow(ctx,
		`UPDATE transactions SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = 'held'
		 RETURNING `+transactionColumns,
		id, string(to), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Transaction{}, model.ErrInvalidTransition
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("settle transaction: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE projects SET status = $2, updated_at = $3 WHERE id = $1`,
		t.ProjectID, string(project), now); err != nil {
		return model.Transaction{}, fmt.Errorf("update project after settlement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Transaction{}, fmt.Errorf("commit settle: %w", err)
	}
	return t, nil
}
