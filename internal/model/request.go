package model

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

type CreateProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	BudgetCents int64  `json:"budget_cents"`
}

type SubmitProposalRequest struct {
	CoverLetter string `json:"cover_letter"`
	BidCents    int64  `json:"bid_cents"`
}
