package auth

import (
	"fmt"
	"sort"
	"strings"

	"ticketline/internal/domain"
)

// Operation names a mutating entry point of the engine.
type Operation string

const (
	OpCreateTicket    Operation = "create_ticket"
	OpAssignTicket    Operation = "assign_ticket"
	OpStartWork       Operation = "start_work"
	OpSubmitWork      Operation = "submit_work"
	OpApproveWork     Operation = "approve_work"
	OpRejectWork      Operation = "reject_work"
	OpDisputeTicket   Operation = "dispute_ticket"
	OpResolveDispute  Operation = "resolve_dispute"
	OpCancelTicket    Operation = "cancel_ticket"
	OpWithdrawPayment Operation = "withdraw_payment"
	OpGrantRole       Operation = "grant_role"
	OpRevokeRole      Operation = "revoke_role"
)

// Operations lists every operation that carries a policy.
var Operations = []Operation{
	OpCreateTicket, OpAssignTicket, OpStartWork, OpSubmitWork, OpApproveWork, OpRejectWork,
	OpDisputeTicket, OpResolveDispute, OpCancelTicket, OpWithdrawPayment, OpGrantRole, OpRevokeRole,
}

// Relation is how a caller stands towards a ticket or the platform.
type Relation uint8

const (
	Anyone Relation = iota + 1
	Client
	Freelancer
	Resolver
	Admin
	Beneficiary
)

func (r Relation) String() string {
	switch r {
	case Anyone:
		return "anyone"
	case Client:
		return "client"
	case Freelancer:
		return "freelancer"
	case Resolver:
		return "resolver"
	case Admin:
		return "admin"
	case Beneficiary:
		return "beneficiary"
	}
	return fmt.Sprintf("relation(%d)", uint8(r))
}

// Policy maps each operation to the relations allowed to perform it.
var Policy = map[Operation][]Relation{
	OpCreateTicket:    {Anyone},
	OpAssignTicket:    {Client},
	OpStartWork:       {Freelancer},
	OpSubmitWork:      {Freelancer},
	OpApproveWork:     {Client},
	OpRejectWork:      {Client},
	OpDisputeTicket:   {Client, Freelancer},
	OpResolveDispute:  {Resolver, Admin},
	OpCancelTicket:    {Client},
	OpWithdrawPayment: {Beneficiary},
	OpGrantRole:       {Admin},
	OpRevokeRole:      {Admin},
}

// Subject is everything the policy needs to know about a caller.
type Subject struct {
	Caller string
	// Ticket is nil for operations that are not ticket-scoped.
	Ticket        *domain.Ticket
	Roles         []domain.Role
	Beneficiaries []string
}

func (s Subject) hasRole(role domain.Role) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Holds reports whether the subject's caller stands in relation rel.
func (s Subject) Holds(rel Relation) bool {
	if s.Caller == "" {
		return false
	}
	switch rel {
	case Anyone:
		return true
	case Client:
		return s.Ticket != nil && s.Ticket.IsClient(s.Caller)
	case Freelancer:
		return s.Ticket != nil && s.Ticket.IsFreelancer(s.Caller)
	case Resolver:
		return s.hasRole(domain.RoleResolver)
	case Admin:
		return s.hasRole(domain.RoleAdmin)
	case Beneficiary:
		for _, b := range s.Beneficiaries {
			if b == s.Caller {
				return true
			}
		}
		return false
	}
	panic(fmt.Sprintf("auth: unknown relation %d", uint8(rel)))
}

// ForbiddenError indicates the caller holds none of the required relations.
type ForbiddenError struct {
	Op       Operation
	Required []Relation
}

func (e ForbiddenError) Error() string {
	names := make([]string, 0, len(e.Required))
	for _, r := range e.Required {
		names = append(names, r.String())
	}
	sort.Strings(names)
	return fmt.Sprintf("%s requires %s", e.Op, strings.Join(names, " or "))
}

// Authorize checks op against the policy table.
func Authorize(op Operation, s Subject) error {
	required, ok := Policy[op]
	if !ok {
		panic(fmt.Sprintf("auth: no policy for %s", op))
	}
	for _, rel := range required {
		if s.Holds(rel) {
			return nil
		}
	}
	return ForbiddenError{Op: op, Required: required}
}
