package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"ticketline/internal/domain"
	"ticketline/internal/engine/auth"
)

func TestTransitionTableIsExhaustive(t *testing.T) {
	legal := map[auth.Operation][]domain.Status{
		auth.OpAssignTicket:   {domain.StatusOpen},
		auth.OpStartWork:      {domain.StatusAssigned},
		auth.OpSubmitWork:     {domain.StatusInProgress},
		auth.OpApproveWork:    {domain.StatusSubmitted},
		auth.OpRejectWork:     {domain.StatusSubmitted},
		auth.OpDisputeTicket:  {domain.StatusAssigned, domain.StatusInProgress, domain.StatusSubmitted},
		auth.OpResolveDispute: {domain.StatusDisputed},
		auth.OpCancelTicket:   {domain.StatusOpen, domain.StatusAssigned},
	}
	for op, from := range legal {
		ok := map[domain.Status]bool{}
		for _, s := range from {
			ok[s] = true
		}
		for _, s := range domain.AllStatuses {
			assert.Equal(t, ok[s], CanApply(op, s), "%s from %s", op, s)
		}
	}
	for _, op := range []auth.Operation{auth.OpCreateTicket, auth.OpWithdrawPayment, auth.OpGrantRole, auth.OpRevokeRole} {
		for _, s := range domain.AllStatuses {
			assert.False(t, CanApply(op, s), "%s from %s", op, s)
		}
	}
}

func TestTerminalStatusesAcceptNoTransition(t *testing.T) {
	for op := range transitions {
		for _, s := range domain.AllStatuses {
			if s.IsTerminal() {
				assert.False(t, CanApply(op, s), "%s from %s", op, s)
			}
		}
	}
}

func TestCheckTransitionMessages(t *testing.T) {
	_, err := checkTransition(auth.OpDisputeTicket, domain.Ticket{ID: 3, Status: domain.StatusDisputed})
	assert.EqualError(t, err, "dispute_ticket ticket 3: already disputed")
	assert.True(t, errors.Is(err, ErrState))

	_, err = checkTransition(auth.OpAssignTicket, domain.Ticket{ID: 3, Status: domain.StatusAssigned})
	assert.EqualError(t, err, "assign_ticket ticket 3: not open")

	to, err := checkTransition(auth.OpRejectWork, domain.Ticket{ID: 3, Status: domain.StatusSubmitted})
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, to)
}
