package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"workbridge/internal/model"
)

const proposalColumns = `id, project_id, freelancer_id, cover_letter, bid_cents, status, created_at`

type ProposalRepository struct {
	pool *pgxpool.Pool
}

func NewProposalRepository(pool *pgxpool.Pool) *ProposalRepository {
	return &ProposalRepository{pool: pool}
}

func scanProposal(row pgx.Row) (model.Proposal, error) {
	var p model.Proposal
	var status string
	err := row.Scan(&p.ID, &p.ProjectID, &p.FreelancerID, &p.CoverLetter, &p.BidCents, &status, &p.CreatedAt)
	p.Status = model.ProposalStatus(status)
	return p, err
}

func (r *ProposalRepository) Create(ctx context.Context, p model.Proposal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proposals (id, project_id, freelancer_id, cover_letter, bid_cents, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.ProjectID, p.FreelancerID, p.CoverLetter, p.BidCents, string(p.Status), p.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.ErrDuplicateProposal
	}
	if err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

func (r *ProposalRepository) FindByID(ctx context.Context, id string) (model.Proposal, error) {
	p, err := scanProposal(r.pool.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Proposal{}, model.ErrProposalNotFound
	}
	if err != nil {
		return model.Proposal{}, fmt.Errorf("find proposal: %w", err)
	}
	return p, nil
}

func (r *ProposalRepository) ListByProject(ctx context.Context, projectID string) ([]model.Proposal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	proposals := make([]model.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// Accept staffs the proposal's project and opens a held escrow entry in one
// database transaction. Competing proposals on the project are rejected.
// The project must still be open and the proposal still pending.
func (r *ProposalRepository) Accept(ctx context.Context, proposalID string, txn model.Transaction) (model.Acceptance, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Acceptance{}, fmt.Errorf("begin accept: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	proposal, err := scanProposal(tx.QueryRow(ctx,
		`UPDATE proposals SET status = 'accepted'
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+proposalColumns, proposalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Acceptance{}, model.ErrInvalidTransition
	}
	if err != nil {
		return model.Acceptance{}, fmt.Errorf("accept proposal: %w", err)
	}

	project, err := scanProject(tx.QueryRow(ctx,
		`UPDATE projects SET status = 'in_progress', freelancer_id = $2, updated_at = $3
		 WHERE id = $1 AND status = 'open'
		 RETURNING `+projectColumns,
		proposal.ProjectID, proposal.FreelancerID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Acceptance{}, model.ErrProjectNotOpen
	}
	if err != nil {
		return model.Acceptance{}, fmt.Errorf("staff project: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE proposals SET status = 'rejected'
		 WHERE project_id = $1 AND id <> $2 AND status = 'pending'`,
		proposal.ProjectID, proposal.ID); err != nil {
		return model.Acceptance{}, fmt.Errorf("reject competing proposals: %w", err)
	}

	txn.ProjectID = project.ID
	txn.ProposalID = proposal.ID
	txn.ClientID = project.ClientID
	txn.FreelancerID = proposal.FreelancerID
	txn.AmountCents = proposal.BidCents
	txn.Status = model.TransactionHeld
	txn.CreatedAt = now
	txn.UpdatedAt = now

	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, project_id, proposal_id, client_id, freelancer_id,
		                           amount_cents, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.ID, txn.ProjectID, txn.ProposalID, txn.ClientID, txn.FreelancerID,
		txn.AmountCents, string(txn.Status), txn.CreatedAt, txn.UpdatedAt); err != nil {
		return model.Acceptance{}, fmt.Errorf("fund escrow: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Acceptance{}, fmt.Errorf("commit accept: %w", err)
	}

	return model.Acceptance{Proposal: proposal, Project: project, Transaction: txn}, nil
}
