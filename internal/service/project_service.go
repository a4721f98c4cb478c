package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"workbridge/internal/auth"
	"workbridge/internal/event"
	"workbridge/internal/model"
	"workbridge/pkg/apierror"
)

const maxTitleLength = 200

type ProjectService struct {
	projects ProjectStore
	bus      event.Bus
}

func NewProjectService(projects ProjectStore, bus event.Bus) *ProjectService {
	return &ProjectService{projects: projects, bus: bus}
}

func (s *ProjectService) Create(ctx context.Context, clientID string, req model.CreateProjectRequest) (model.Project, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return model.Project{}, apierror.BadRequest("title is required", "title")
	}
	if len(title) > maxTitleLength {
		return model.Project{}, apierror.BadRequest("title is too long", "title")
	}
	if req.BudgetCents <= 0 {
		return model.Project{}, apierror.BadRequest("budget_cents must be positive", "budget_cents")
	}

	now := time.Now().UTC()
	project := model.Project{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		BudgetCents: req.BudgetCents,
		Status:      model.ProjectOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return model.Project{}, err
	}

	s.bus.Publish(event.New(event.TypeProjectCreated, clientID, project))
	return project, nil
}

func (s *ProjectService) List(ctx context.Context, query model.ProjectQuery) (model.ProjectList, *model.Meta, error) {
	query.Normalize()

	projects, total, err := s.projects.List(ctx, query)
	if err != nil {
		return model.ProjectList{}, nil, err
	}

	return model.ProjectList{Projects: projects}, model.NewMeta(query.Page, query.Limit, total), nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (model.Project, error) {
	return s.projects.FindByID(ctx, id)
}

// Close withdraws an open project. Only its owner or an admin may close it.
func (s *ProjectService) Close(ctx context.Context, actor *auth.Claims, id string) (model.Project, error) {
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return model.Project{}, err
	}

	if !canManage(actor, project) {
		return model.Project{}, model.ErrForbidden
	}

	closed, err := s.projects.UpdateStatus(ctx, id, model.ProjectOpen, model.ProjectClosed)
	if err != nil {
		return model.Project{}, err
	}

	slog.Info("project closed", "project_id", id, "actor_id", actor.UserID)
	s.bus.Publish(event.New(event.TypeProjectClosed, actor.UserID, closed, closed.ClientID))
	return closed, nil
}

func canManage(actor *auth.Claims, project model.Project) bool {
	if actor == nil {
		return false
	}
	return actor.Role == auth.RoleAdmin || actor.UserID == project.ClientID
}
