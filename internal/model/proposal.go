package model

import "time"

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

type Proposal struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	FreelancerID string         `json:"freelancer_id"`
	CoverLetter  string         `json:"cover_letter"`
	BidCents     int64          `json:"bid_cents"`
	Status       ProposalStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

type ProposalList struct {
	Proposals []Proposal `json:"proposals"`
}

// Acceptance is the outcome of accepting a proposal: the proposal, the
// project it staffs and the escrow entry that funds it.
type Acceptance struct {
	Proposal    Proposal    `json:"proposal"`
	Project     Project     `json:"project"`
	Transaction Transaction `json:"transaction"`
}
