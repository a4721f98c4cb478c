package model

import "time"

type TransactionStatus string

const (
	TransactionHeld     TransactionStatus = "held"
	TransactionReleased TransactionStatus = "released"
	TransactionRefunded TransactionStatus = "refunded"
)

// Transaction is an escrow ledger entry. Funds move only from held to
// released or refunded.
type Transaction struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"project_id"`
	ProposalID   string            `json:"proposal_id"`
	ClientID     string            `json:"client_id"`
	FreelancerID string            `json:"freelancer_id"`
	AmountCents  int64             `json:"amount_cents"`
	Status       TransactionStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (t Transaction) Involves(userID string) bool {
	return t.ClientID == userID || t.FreelancerID == userID
}

type TransactionList struct {
	Transactions []Transaction `json:"transactions"`
}
