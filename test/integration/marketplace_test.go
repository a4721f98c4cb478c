//go:build integration

package integration

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idOnly struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func TestHireAndReleaseFlow(t *testing.T) {
	server := newServer(t, nil)

	owner := newClient(t, server)
	ownerID := owner.register("owner@example.com", "client")
	first := newClient(t, server)
	firstID := first.register("first@example.com", "freelancer")
	second := newClient(t, server)
	second.register("second@example.com", "freelancer")

	status, env := owner.do(http.MethodPost, "/api/v1/projects", map[string]any{
		"title": "Landing page", "description": "One page", "budget_cents": 120000,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var project idOnly
	decode(t, env, &project)
	assert.Equal(t, "open", project.Status)

	status, _ = first.do(http.MethodPost, "/api/v1/projects", map[string]any{"title": "x", "budget_cents": 1})
	assert.Equal(t, http.StatusForbidden, status)

	var proposals [2]idOnly
	for i, c := range []*client{first, second} {
		status, env = c.do(http.MethodPost, "/api/v1/projects/"+project.ID+"/proposals", map[string]any{
			"cover_letter": "Pick me", "bid_cents": 100000 + i,
		})
		require.Equal(t, http.StatusCreated, status, env.Error)
		decode(t, env, &proposals[i])
	}

	status, env = first.do(http.MethodPost, "/api/v1/projects/"+project.ID+"/proposals", map[string]any{
		"cover_letter": "Again", "bid_cents": 90000,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_EXISTS", env.Code)

	status, _ = first.do(http.MethodGet, "/api/v1/projects/"+project.ID+"/proposals", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = owner.do(http.MethodPost, "/api/v1/proposals/"+proposals[0].ID+"/accept", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var acceptance struct {
		Project     idOnly `json:"project"`
		Transaction struct {
			ID           string `json:"id"`
			ClientID     string `json:"client_id"`
			FreelancerID string `json:"freelancer_id"`
			AmountCents  int64  `json:"amount_cents"`
			Status       string `json:"status"`
		} `json:"transaction"`
	}
	decode(t, env, &acceptance)
	assert.Equal(t, "in_progress", acceptance.Project.Status)
	assert.Equal(t, "held", acceptance.Transaction.Status)
	assert.Equal(t, ownerID, acceptance.Transaction.ClientID)
	assert.Equal(t, firstID, acceptance.Transaction.FreelancerID)
	assert.Equal(t, int64(100000), acceptance.Transaction.AmountCents)

	status, _ = owner.do(http.MethodPost, "/api/v1/proposals/"+proposals[1].ID+"/accept", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = owner.do(http.MethodGet, "/api/v1/projects/"+project.ID+"/proposals", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Proposals []idOnly `json:"proposals"`
	}
	decode(t, env, &list)
	statuses := map[string]string{}
	for _, p := range list.Proposals {
		statuses[p.ID] = p.Status
	}
	assert.Equal(t, "accepted", statuses[proposals[0].ID])
	assert.Equal(t, "rejected", statuses[proposals[1].ID])

	status, env = first.do(http.MethodGet, "/api/v1/transactions", nil)
	require.Equal(t, http.StatusOK, status)
	var mine struct {
		Transactions []idOnly `json:"transactions"`
	}
	decode(t, env, &mine)
	require.Len(t, mine.Transactions, 1)

	status, _ = first.do(http.MethodPost, "/api/v1/transactions/"+acceptance.Transaction.ID+"/release", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = owner.do(http.MethodPost, "/api/v1/transactions/"+acceptance.Transaction.ID+"/release", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, _ = owner.do(http.MethodPost, "/api/v1/transactions/"+acceptance.Transaction.ID+"/release", nil)
	assert.Equal(t, http.StatusConflict, status)

	_, env = owner.do(http.MethodGet, "/api/v1/projects/"+project.ID, nil)
	decode(t, env, &project)
	assert.Equal(t, "completed", project.Status)
}

func TestConcurrentAcceptHiresOnce(t *testing.T) {
	server := newServer(t, nil)

	owner := newClient(t, server)
	owner.register("race-owner@example.com", "client")

	_, env := owner.do(http.MethodPost, "/api/v1/projects", map[string]any{"title": "Race", "budget_cents": 5000})
	var project idOnly
	decode(t, env, &project)

	ids := make([]string, 4)
	for i := range ids {
		c := newClient(t, server)
		c.register("racer"+string(rune('a'+i))+"@example.com", "freelancer")
		_, env = c.do(http.MethodPost, "/api/v1/projects/"+project.ID+"/proposals", map[string]any{"cover_letter": "me", "bid_cents": 4000})
		var p idOnly
		decode(t, env, &p)
		ids[i] = p.ID
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, _ := owner.do(http.MethodPost, "/api/v1/proposals/"+id+"/accept", nil)
			if status == http.StatusOK {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)

	admin := newClient(t, server)
	status, _ := admin.login(adminEmail, adminPassword)
	require.Equal(t, http.StatusOK, status)
	_, env = admin.do(http.MethodGet, "/api/v1/admin/transactions", nil)
	var all struct {
		Transactions []idOnly `json:"transactions"`
	}
	decode(t, env, &all)
	assert.Len(t, all.Transactions, 1)
}

func TestAdminRefundClosesProject(t *testing.T) {
	server := newServer(t, nil)

	owner := newClient(t, server)
	owner.register("refund-owner@example.com", "client")
	worker := newClient(t, server)
	worker.register("refund-worker@example.com", "freelancer")

	_, env := owner.do(http.MethodPost, "/api/v1/projects", map[string]any{"title": "Refund me", "budget_cents": 9000})
	var project idOnly
	decode(t, env, &project)

	_, env = worker.do(http.MethodPost, "/api/v1/projects/"+project.ID+"/proposals", map[string]any{"cover_letter": "ok", "bid_cents": 8000})
	var proposal idOnly
	decode(t, env, &proposal)

	_, env = owner.do(http.MethodPost, "/api/v1/proposals/"+proposal.ID+"/accept", nil)
	var acceptance struct {
		Transaction idOnly `json:"transaction"`
	}
	decode(t, env, &acceptance)

	status, _ := owner.do(http.MethodPost, "/api/v1/transactions/"+acceptance.Transaction.ID+"/refund", nil)
	assert.Equal(t, http.StatusForbidden, status)

	admin := newClient(t, server)
	admin.login(adminEmail, adminPassword)
	status, env = admin.do(http.MethodPost, "/api/v1/transactions/"+acceptance.Transaction.ID+"/refund", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	_, env = owner.do(http.MethodGet, "/api/v1/projects/"+project.ID, nil)
	decode(t, env, &project)
	assert.Equal(t, "closed", project.Status)
}
