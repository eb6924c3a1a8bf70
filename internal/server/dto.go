package server

import (
	"encoding/json"
	"time"

	"ticketline/internal/domain"
)

// Request payloads

type CreateTicketRequest struct {
	Title         string    `json:"title" minLength:"1"`
	Description   string    `json:"description,omitempty"`
	PaymentAmount string    `json:"payment_amount" pattern:"^[0-9]+$" doc:"Base-10 integer, at most 2^256-1" example:"1000"`
	Deadline      time.Time `json:"deadline" doc:"RFC 3339 timestamp after now"`
}

type AssignTicketRequest struct {
	Freelancer string `json:"freelancer" minLength:"1"`
}

type SubmitWorkRequest struct {
	SubmissionURI string `json:"submission_uri" minLength:"1"`
}

type RejectWorkRequest struct {
	Reason string `json:"reason,omitempty"`
}

type DisputeTicketRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ResolveDisputeRequest struct {
	Resolution int    `json:"resolution" doc:"0 favors the client, 1 the freelancer"`
	Note       string `json:"note,omitempty"`
}

type GrantRoleRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
	Role    string `json:"role" enum:"admin,resolver"`
}

// Response payloads

type DisputeResponse struct {
	Reason      string     `json:"reason"`
	RaisedBy    string     `json:"raised_by"`
	RaisedAt    time.Time  `json:"raised_at"`
	PriorStatus string     `json:"prior_status"`
	Resolution  *int       `json:"resolution,omitempty"`
	Winner      *string    `json:"winner,omitempty"`
	ResolvedBy  *string    `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Note        string     `json:"note,omitempty"`
}

type TicketResponse struct {
	ID              uint64           `json:"id"`
	Client          string           `json:"client"`
	Freelancer      *string          `json:"freelancer,omitempty"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	PaymentAmount   string           `json:"payment_amount"`
	Deadline        time.Time        `json:"deadline"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Status          string           `json:"status" enum:"open,assigned,in_progress,submitted,completed,disputed,resolved,cancelled"`
	SubmissionURI   *string          `json:"submission_uri,omitempty"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
	Dispute         *DisputeResponse `json:"dispute,omitempty"`
}

type EscrowResponse struct {
	TicketID    uint64     `json:"ticket_id"`
	Amount      string     `json:"amount"`
	Balance     string     `json:"balance"`
	Status      string     `json:"status" enum:"funded,released,refunded"`
	Beneficiary *string    `json:"beneficiary,omitempty"`
	FundedAt    time.Time  `json:"funded_at"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
}

type UserTicketsResponse struct {
	ActorID   string   `json:"actor_id"`
	Role      string   `json:"role"`
	TicketIDs []uint64 `json:"ticket_ids"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type RolesResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
}

type RoleGrantResponse struct {
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	GrantedBy string `json:"granted_by"`
	GrantedAt string `json:"granted_at" format:"date-time"`
}

type paginatedTickets struct {
	Items      []TicketResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func ticketResponse(t domain.Ticket) TicketResponse {
	res := TicketResponse{
		ID:              t.ID,
		Client:          t.Client,
		Freelancer:      t.Freelancer,
		Title:           t.Title,
		Description:     t.Description,
		PaymentAmount:   t.PaymentAmount.String(),
		Deadline:        t.Deadline,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		Status:          t.Status.String(),
		SubmissionURI:   t.SubmissionURI,
		RejectionReason: t.RejectionReason,
	}
	if d := t.Dispute; d != nil {
		dr := &DisputeResponse{
			Reason:      d.Reason,
			RaisedBy:    d.RaisedBy,
			RaisedAt:    d.RaisedAt,
			PriorStatus: d.PriorStatus.String(),
			Winner:      d.Winner,
			ResolvedBy:  d.ResolvedBy,
			ResolvedAt:  d.ResolvedAt,
			Note:        d.Note,
		}
		if d.Resolution != nil {
			code := int(*d.Resolution)
			dr.Resolution = &code
		}
		res.Dispute = dr
	}
	return res
}

func mapTickets(items []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(items))
	for _, t := range items {
		out = append(out, ticketResponse(t))
	}
	return out
}

func escrowResponse(e domain.Escrow) EscrowResponse {
	return EscrowResponse{
		TicketID:    e.TicketID,
		Amount:      e.Amount.String(),
		Balance:     e.Balance.String(),
		Status:      string(e.Status),
		Beneficiary: e.Beneficiary,
		FundedAt:    e.FundedAt,
		WithdrawnAt: e.WithdrawnAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func roleGrantResponse(g domain.RoleGrant) RoleGrantResponse {
	return RoleGrantResponse{
		ActorID:   g.ActorID,
		Role:      string(g.Role),
		GrantedBy: g.GrantedBy,
		GrantedAt: g.GrantedAt,
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
