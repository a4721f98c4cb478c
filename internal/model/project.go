package model

import "time"

type ProjectStatus string

const (
	ProjectOpen       ProjectStatus = "open"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectClosed     ProjectStatus = "closed"
)

type Project struct {
	ID           string        `json:"id"`
	ClientID     string        `json:"client_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	BudgetCents  int64         `json:"budget_cents"`
	Status       ProjectStatus `json:"status"`
	FreelancerID *string       `json:"freelancer_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type ProjectQuery struct {
	Status ProjectStatus
	Page   int
	Limit  int
}

func (q *ProjectQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Status == "" {
		q.Status = ProjectOpen
	}
}

type ProjectList struct {
	Projects []Project `json:"projects"`
}
