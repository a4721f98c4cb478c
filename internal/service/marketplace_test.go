package service

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbridge/internal/auth"
	"workbridge/internal/event"
	"workbridge/internal/model"
	"workbridge/internal/service/mocks"
	"workbridge/pkg/apierror"
)

var (
	clientClaims     = &auth.Claims{UserID: "client-1", Email: "c@b.com", Role: auth.RoleClient}
	otherClient      = &auth.Claims{UserID: "client-2", Email: "o@b.com", Role: auth.RoleClient}
	freelancerClaims = &auth.Claims{UserID: "free-1", Email: "f@b.com", Role: auth.RoleFreelancer}
	adminClaims      = &auth.Claims{UserID: "admin-1", Email: "root@b.com", Role: auth.RoleAdmin}
)

func openProject() model.Project {
	return model.Project{ID: "p1", ClientID: "client-1", Title: "Logo", BudgetCents: 50000, Status: model.ProjectOpen}
}

func drain(ch <-chan event.Event) []event.Type {
	var types []event.Type
	for {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func TestProjectService(t *testing.T) {
	ctx := context.Background()

	t.Run("create validates input", func(t *testing.T) {
		svc := NewProjectService(mocks.NewMockProjectStore(gomock.NewController(t)), event.NewBus())

		_, err := svc.Create(ctx, "client-1", model.CreateProjectRequest{Title: "  ", BudgetCents: 100})
		assert.True(t, apierror.HasCode(err, "BAD_REQUEST"))

		_, err = svc.Create(ctx, "client-1", model.CreateProjectRequest{Title: "Logo", BudgetCents: 0})
		assert.True(t, apierror.HasCode(err, "BAD_REQUEST"))
	})

	t.Run("create opens the project", func(t *testing.T) {
		store := mocks.NewMockProjectStore(gomock.NewController(t))
		svc := NewProjectService(store, event.NewBus())

		store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		project, err := svc.Create(ctx, "client-1", model.CreateProjectRequest{Title: " Logo ", BudgetCents: 100})
		require.NoError(t, err)
		assert.Equal(t, "Logo", project.Title)
		assert.Equal(t, model.ProjectOpen, project.Status)
		assert.Equal(t, "client-1", project.ClientID)
	})

	t.Run("list paginates", func(t *testing.T) {
		store := mocks.NewMockProjectStore(gomock.NewController(t))
		svc := NewProjectService(store, event.NewBus())

		store.EXPECT().List(gomock.Any(), model.ProjectQuery{Status: model.ProjectOpen, Page: 2, Limit: 20}).
			Return([]model.Project{openProject()}, 41, nil)

		list, meta, err := svc.List(ctx, model.ProjectQuery{Page: 2})
		require.NoError(t, err)
		assert.Len(t, list.Projects, 1)
		assert.Equal(t, 3, meta.TotalPages)
	})

	t.Run("close by owner, admin, stranger", func(t *testing.T) {
		store := mocks.NewMockProjectStore(gomock.NewController(t))
		svc := NewProjectService(store, event.NewBus())

		closed := openProject()
		closed.Status = model.ProjectClosed

		store.EXPECT().FindByID(gomock.Any(), "p1").Return(openProject(), nil).Times(3)
		store.EXPECT().UpdateStatus(gomock.Any(), "p1", model.ProjectOpen, model.ProjectClosed).Return(closed, nil).Times(2)

		_, err := svc.Close(ctx, clientClaims, "p1")
		assert.NoError(t, err)
		_, err = svc.Close(ctx, adminClaims, "p1")
		assert.NoError(t, err)
		_, err = svc.Close(ctx, otherClient, "p1")
		assert.ErrorIs(t, err, model.ErrForbidden)
	})
}

func TestProposalService_Submit(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	projects := mocks.NewMockProjectStore(ctrl)
	proposals := mocks.NewMockProposalStore(ctrl)
	bus := event.NewBus()
	svc := NewProposalService(projects, proposals, bus)

	t.Run("bid must be positive", func(t *testing.T) {
		_, err := svc.Submit(ctx, "free-1", "p1", model.SubmitProposalRequest{BidCents: -1})
		assert.True(t, apierror.HasCode(err, "BAD_REQUEST"))
	})

	t.Run("project must be open", func(t *testing.T) {
		staffed := openProject()
		staffed.Status = model.ProjectInProgress
		projects.EXPECT().FindByID(gomock.Any(), "p1").Return(staffed, nil)

		_, err := svc.Submit(ctx, "free-1", "p1", model.SubmitProposalRequest{BidCents: 100})
		assert.ErrorIs(t, err, model.ErrProjectNotOpen)
	})

	t.Run("duplicate", func(t *testing.T) {
		projects.EXPECT().FindByID(gomock.Any(), "p1").Return(openProject(), nil)
		proposals.EXPECT().Create(gomock.Any(), gomock.Any()).Return(model.ErrDuplicateProposal)

		_, err := svc.Submit(ctx, "free-1", "p1", model.SubmitProposalRequest{BidCents: 100})
		assert.ErrorIs(t, err, model.ErrDuplicateProposal)
	})

	t.Run("notifies the client", func(t *testing.T) {
		events, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		projects.EXPECT().FindByID(gomock.Any(), "p1").Return(openProject(), nil)
		proposals.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		proposal, err := svc.Submit(ctx, "free-1", "p1", model.SubmitProposalRequest{BidCents: 100, CoverLetter: " hi "})
		require.NoError(t, err)
		assert.Equal(t, model.ProposalPending, proposal.Status)
		assert.Equal(t, "hi", proposal.CoverLetter)

		e := <-events
		assert.Equal(t, event.TypeProposalSubmitted, e.Type)
		assert.Equal(t, []string{"client-1"}, e.Recipients)
	})
}

func TestProposalService_ListForProject(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	projects := mocks.NewMockProjectStore(ctrl)
	proposals := mocks.NewMockProposalStore(ctrl)
	svc := NewProposalService(projects, proposals, event.NewBus())

	projects.EXPECT().FindByID(gomock.Any(), "p1").Return(openProject(), nil).Times(2)
	proposals.EXPECT().ListByProject(gomock.Any(), "p1").Return([]model.Proposal{{ID: "pr1"}}, nil)

	list, err := svc.ListForProject(ctx, clientClaims, "p1")
	require.NoError(t, err)
	assert.Len(t, list.Proposals, 1)

	_, err = svc.ListForProject(ctx, freelancerClaims, "p1")
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestProposalService_Accept(t *testing.T) {
	ctx := context.Background()
	pending := model.Proposal{ID: "pr1", ProjectID: "p1", FreelancerID: "free-1", BidCents: 42000, Status: model.ProposalPending}

	setup := func(t *testing.T) (*mocks.MockProjectStore, *mocks.MockProposalStore, *event.InMemoryBus, *ProposalService) {
		ctrl := gomock.NewController(t)
		projects := mocks.NewMockProjectStore(ctrl)
		proposals := mocks.NewMockProposalStore(ctrl)
		bus := event.NewBus()
		return projects, proposals, bus, NewProposalService(projects, proposals, bus)
	}

	t.Run("owner accepts and funds escrow", func(t *testing.T) {
		projects, proposals, bus, svc := setup(t)
		events, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		proposals.EXPECT().FindByID(gomock.Any(), "pr1").Return(pending, nil)
		projects.EXPECT().FindByID(gomock.Any(), "p1").Return(openProject(), nil)
		proposals.EXPECT().Accept(gomock.Any(), "pr1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, txn model.Transaction) (model.Acceptance, error) {
				assert.NotEmpty(t, txn.ID)
				txn.ClientID = "client-1"
				txn.FreelancerID = "free-1"
				txn.AmountCents = 42000
				txn.Status = model.TransactionHeld
				accepted := pending
				accepted.Status = model.ProposalAccepted
				return model.Acceptance{Proposal: accepted, Transaction: txn}, nil
			})

		acceptance, err := svc.Accept(ctx, clientClaims, "pr1")
		require.NoError(t, err)
		assert.Equal(t, model.TransactionHeld, acceptance.Transaction.Status)
		assert.Equal(t, int64(42000), acceptance.Transaction.AmountCents)

		assert.Equal(t, []event.Type{event.TypeProposalAccepted, event.TypeEscrowFunded}, drain(events))
	})

	t.Run("only the owning client", func(t *testing.T) {
		projects, proposals, _, svc := setup(t)
		proposals.EXPECT().FindByID(gomock.Any(), "pr1").Return(pending, nil).Times(2)
		projects.EXPECT().FindByID(gomock.Any(), "p1").Return(openProject(), nil).Times(2)

		_, err := svc.Accept(ctx, otherClient, "pr1")
		assert.ErrorIs(t, err, model.ErrForbidden)
		_, err = svc.Accept(ctx, adminClaims, "pr1")
		assert.ErrorIs(t, err, model.ErrForbidden)
	})

	t.Run("already decided proposal", func(t *testing.T) {
		projects, proposals, _, svc := setup(t)
		rejected := pending
		rejected.Status = model.ProposalRejected
		proposals.EXPECT().FindByID(gomock.Any(), "pr1").Return(rejected, nil)
		projects.EXPECT().FindByID(gomock.Any(), "p1").Return(openProject(), nil)

		_, err := svc.Accept(ctx, clientClaims, "pr1")
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("project already staffed", func(t *testing.T) {
		projects, proposals, _, svc := setup(t)
		staffed := openProject()
		staffed.Status = model.ProjectInProgress
		proposals.EXPECT().FindByID(gomock.Any(), "pr1").Return(pending, nil)
		projects.EXPECT().FindByID(gomock.Any(), "p1").Return(staffed, nil)

		_, err := svc.Accept(ctx, clientClaims, "pr1")
		assert.ErrorIs(t, err, model.ErrProjectNotOpen)
	})
}

func TestEscrowService(t *testing.T) {
	ctx := context.Background()
	held := model.Transaction{ID: "t1", ProjectID: "p1", ClientID: "client-1", FreelancerID: "free-1", AmountCents: 42000, Status: model.TransactionHeld}

	setup := func(t *testing.T) (*mocks.MockTransactionStore, *event.InMemoryBus, *EscrowService) {
		store := mocks.NewMockTransactionStore(gomock.NewController(t))
		bus := event.NewBus()
		return store, bus, NewEscrowService(store, bus)
	}

	t.Run("client releases", func(t *testing.T) {
		store, bus, svc := setup(t)
		events, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		released := held
		released.Status = model.TransactionReleased
		store.EXPECT().FindByID(gomock.Any(), "t1").Return(held, nil)
		store.EXPECT().Settle(gomock.Any(), "t1", model.TransactionReleased, model.ProjectCompleted).Return(released, nil)

		txn, err := svc.Release(ctx, clientClaims, "t1")
		require.NoError(t, err)
		assert.Equal(t, model.TransactionReleased, txn.Status)
		assert.Equal(t, []event.Type{event.TypeEscrowReleased}, drain(events))
	})

	t.Run("freelancer cannot release", func(t *testing.T) {
		store, _, svc := setup(t)
		store.EXPECT().FindByID(gomock.Any(), "t1").Return(held, nil)

		_, err := svc.Release(ctx, freelancerClaims, "t1")
		assert.ErrorIs(t, err, model.ErrForbidden)
	})

	t.Run("admin refunds", func(t *testing.T) {
		store, _, svc := setup(t)
		refunded := held
		refunded.Status = model.TransactionRefunded
		store.EXPECT().FindByID(gomock.Any(), "t1").Return(held, nil)
		store.EXPECT().Settle(gomock.Any(), "t1", model.TransactionRefunded, model.ProjectClosed).Return(refunded, nil)

		txn, err := svc.Refund(ctx, adminClaims, "t1")
		require.NoError(t, err)
		assert.Equal(t, model.TransactionRefunded, txn.Status)
	})

	t.Run("settled entries do not move again", func(t *testing.T) {
		store, _, svc := setup(t)
		released := held
		released.Status = model.TransactionReleased
		store.EXPECT().FindByID(gomock.Any(), "t1").Return(released, nil).Times(2)

		_, err := svc.Release(ctx, clientClaims, "t1")
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
		_, err = svc.Refund(ctx, adminClaims, "t1")
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("listing", func(t *testing.T) {
		store, _, svc := setup(t)
		store.EXPECT().ListForUser(gomock.Any(), "free-1").Return([]model.Transaction{held}, nil)
		store.EXPECT().ListAll(gomock.Any()).Return([]model.Transaction{held, held}, nil)

		mine, err := svc.ListFor(ctx, "free-1")
		require.NoError(t, err)
		assert.Len(t, mine.Transactions, 1)

		all, err := svc.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all.Transactions, 2)
	})
}
