package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"workbridge/internal/auth"
	"workbridge/internal/event"
	"workbridge/internal/model"
	"workbridge/pkg/apierror"
)

type ProposalService struct {
	projects  ProjectStore
	proposals ProposalStore
	bus       event.Bus
}

func NewProposalService(projects ProjectStore, proposals ProposalStore, bus event.Bus) *ProposalService {
	return &ProposalService{projects: projects, proposals: proposals, bus: bus}
}

func (s *ProposalService) Submit(ctx context.Context, freelancerID string, projectID string, req model.SubmitProposalRequest) (model.Proposal, error) {
	if req.BidCents <= 0 {
		return model.Proposal{}, apierror.BadRequest("bid_cents must be positive", "bid_cents")
	}

	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return model.Proposal{}, err
	}
	if project.Status != model.ProjectOpen {
		return model.Proposal{}, model.ErrProjectNotOpen
	}

	proposal := model.Proposal{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		FreelancerID: freelancerID,
		CoverLetter:  strings.TrimSpace(req.CoverLetter),
		BidCents:     req.BidCents,
		Status:       model.ProposalPending,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.proposals.Create(ctx, proposal); err != nil {
		return model.Proposal{}, err
	}

	s.bus.Publish(event.New(event.TypeProposalSubmitted, freelancerID, proposal, project.ClientID))
	return proposal, nil
}

func (s *ProposalService) ListForProject(ctx context.Context, actor *auth.Claims, projectID string) (model.ProposalList, error) {
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return model.ProposalList{}, err
	}
	if !canManage(actor, project) {
		return model.ProposalList{}, model.ErrForbidden
	}

	proposals, err := s.proposals.ListByProject(ctx, projectID)
	if err != nil {
		return model.ProposalList{}, err
	}
	return model.ProposalList{Proposals: proposals}, nil
}

// Accept hires the proposal's freelancer and places the bid in escrow. Only
// the client who owns the project may accept.
func (s *ProposalService) Accept(ctx context.Context, actor *auth.Claims, proposalID string) (model.Acceptance, error) {
	ctx, span := tracer.Start(ctx, "ProposalService.Accept")
	defer span.End()
	span.SetAttributes(attribute.String("proposal.id", proposalID))

	proposal, err := s.proposals.FindByID(ctx, proposalID)
	if err != nil {
		return model.Acceptance{}, err
	}

	project, err := s.projects.FindByID(ctx, proposal.ProjectID)
	if err != nil {
		return model.Acceptance{}, err
	}

	if actor == nil || actor.UserID != project.ClientID {
		span.SetStatus(codes.Error, "not the project owner")
		return model.Acceptance{}, model.ErrForbidden
	}
	if project.Status != model.ProjectOpen {
		return model.Acceptance{}, model.ErrProjectNotOpen
	}
	if proposal.Status != model.ProposalPending {
		return model.Acceptance{}, model.ErrInvalidTransition
	}

	acceptance, err := s.proposals.Accept(ctx, proposalID, model.Transaction{ID: uuid.NewString()})
	if err != nil {
		span.RecordError(err)
		return model.Acceptance{}, err
	}

	txn := acceptance.Transaction
	slog.Info("proposal accepted",
		"proposal_id", proposalID,
		"project_id", project.ID,
		"transaction_id", txn.ID,
		"amount_cents", txn.AmountCents,
	)

	s.bus.Publish(event.New(event.TypeProposalAccepted, actor.UserID, acceptance.Proposal, proposal.FreelancerID))
	s.bus.Publish(event.New(event.TypeEscrowFunded, actor.UserID, txn, txn.ClientID, txn.FreelancerID))

	return acceptance, nil
}
