package engine

import (
	"ticketline/internal/domain"
	"ticketline/internal/engine/auth"
)

type transition struct {
	from []domain.Status
	to   domain.Status
}

// transitions is the lifecycle table. withdraw_payment is absent: it moves
// escrow, never the ticket. Disputed tickets fall back to their prior
// status only through resolve, which always ends in Resolved.
var transitions = map[auth.Operation]transition{
	auth.OpAssignTicket:   {from: []domain.Status{domain.StatusOpen}, to: domain.StatusAssigned},
	auth.OpStartWork:      {from: []domain.Status{domain.StatusAssigned}, to: domain.StatusInProgress},
	auth.OpSubmitWork:     {from: []domain.Status{domain.StatusInProgress}, to: domain.StatusSubmitted},
	auth.OpApproveWork:    {from: []domain.Status{domain.StatusSubmitted}, to: domain.StatusCompleted},
	auth.OpRejectWork:     {from: []domain.Status{domain.StatusSubmitted}, to: domain.StatusInProgress},
	auth.OpDisputeTicket:  {from: []domain.Status{domain.StatusAssigned, domain.StatusInProgress, domain.StatusSubmitted}, to: domain.StatusDisputed},
	auth.OpResolveDispute: {from: []domain.Status{domain.StatusDisputed}, to: domain.StatusResolved},
	auth.OpCancelTicket:   {from: []domain.Status{domain.StatusOpen, domain.StatusAssigned}, to: domain.StatusCancelled},
}

// CanApply reports whether op may run from status.
func CanApply(op auth.Operation, status domain.Status) bool {
	tr, ok := transitions[op]
	if !ok {
		return false
	}
	for _, s := range tr.from {
		if s == status {
			return true
		}
	}
	return false
}

// Target returns the status op moves a ticket to.
func Target(op auth.Operation) (domain.Status, bool) {
	tr, ok := transitions[op]
	return tr.to, ok
}

// checkTransition returns the target status or a state error.
func checkTransition(op auth.Operation, t domain.Ticket) (domain.Status, error) {
	if CanApply(op, t.Status) {
		return transitions[op].to, nil
	}
	if op == auth.OpDisputeTicket && t.Status == domain.StatusDisputed {
		return 0, reject(op, t.ID, ErrState, "already disputed")
	}
	return 0, reject(op, t.ID, ErrState, "%s", stateMessage(op, t.Status))
}

func stateMessage(op auth.Operation, status domain.Status) string {
	switch op {
	case auth.OpAssignTicket:
		return "not open"
	case auth.OpStartWork:
		return "not assigned"
	case auth.OpSubmitWork:
		return "not in progress"
	case auth.OpApproveWork, auth.OpRejectWork:
		return "not submitted"
	case auth.OpResolveDispute:
		return "not disputed"
	}
	return "not allowed while " + status.String()
}
