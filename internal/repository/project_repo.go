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

const projectColumns = `id, client_id, title, description, budget_cents, status,
		        freelancer_id, created_at, updated_at`

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func scanProject(row pgx.Row) (model.Project, error) {
	var p model.Project
	var status string
	err := row.Scan(&p.ID, &p.ClientID, &p.Title, &p.Description, &p.BudgetCents, &status,
		&p.FreelancerID, &p.CreatedAt, &p.UpdatedAt)
	p.Status = model.ProjectStatus(status)
	return p, err
}

func (r *ProjectRepository) Create(ctx context.Context, p model.Project) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO projects (id, client_id, title, description, budget_cents, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.ClientID, p.Title, p.Description, p.BudgetCents, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) FindByID(ctx context.Context, id string) (model.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, model.ErrProjectNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("find project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepository) List(ctx context.Context, query model.ProjectQuery) ([]model.Project, int, error) {
	query.Normalize()

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM projects WHERE status = $1`, string(query.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	offset := (query.Page - 1) * query.Limit
	rows, err := r.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE status = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, string(query.Status), query.Limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]model.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, total, rows.Err()
}

// UpdateStatus moves a project from one status to another. A project that is
// no longer in from yields model.ErrInvalidTransition.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id string, from model.ProjectStatus, to model.ProjectStatus) (model.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx,
		`UPDATE projects SET status = $3, updated_at = $4
		 WHERE id = $1 AND status = $2
		 RETURNING `+projectColumns,
		id, string(from), string(to), time.Now().UTC()))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, model.ErrInvalidTransition
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("update project status: %w", err)
	}
	return p, nil
}
