package domain

import "time"

// Ticket is one client–freelancer work agreement.
type Ticket struct {
	ID              uint64    `json:"id"`
	Client          string    `json:"client"`
	Freelancer      *string   `json:"freelancer,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	PaymentAmount   Amount    `json:"payment_amount"`
	Deadline        time.Time `json:"deadline"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Status          Status    `json:"status"`
	SubmissionURI   *string   `json:"submission_uri,omitempty"`
	RejectionReason *string   `json:"rejection_reason,omitempty"`
	Dispute         *Dispute  `json:"dispute,omitempty"`
}

// IsClient reports whether actor created the ticket.
func (t Ticket) IsClient(actor string) bool {
	return actor != "" && t.Client == actor
}

// IsFreelancer reports whether actor is the assigned freelancer.
func (t Ticket) IsFreelancer(actor string) bool {
	return actor != "" && t.Freelancer != nil && *t.Freelancer == actor
}

// Dispute captures who raised a dispute and how it was settled.
type Dispute struct {
	Reason      string      `json:"reason"`
	RaisedBy    string      `json:"raised_by"`
	RaisedAt    time.Time   `json:"raised_at"`
	PriorStatus Status      `json:"prior_status"`
	Resolution  *Resolution `json:"resolution,omitempty"`
	Winner      *string     `json:"winner,omitempty"`
	ResolvedBy  *string     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
	Note        string      `json:"note,omitempty"`
}

// Escrow is the balance held against a ticket.
// Balance equals Amount until the single withdrawal, then it is zero.
type Escrow struct {
	TicketID    uint64       `json:"ticket_id"`
	Amount      Amount       `json:"amount"`
	Balance     Amount       `json:"balance"`
	Status      EscrowStatus `json:"status"`
	Beneficiary *string      `json:"beneficiary,omitempty"`
	FundedAt    time.Time    `json:"funded_at"`
	WithdrawnAt *time.Time   `json:"withdrawn_at,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type RoleGrant struct {
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role"`
	GrantedBy string `json:"granted_by"`
	GrantedAt string `json:"granted_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
