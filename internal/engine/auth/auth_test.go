package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/domain"
)

func TestEveryOperationHasPolicy(t *testing.T) {
	require.Len(t, Policy, len(Operations))
	for _, op := range Operations {
		assert.NotEmpty(t, Policy[op], op)
	}
}

func TestAuthorizeMatrix(t *testing.T) {
	freelancer := "bob"
	ticket := &domain.Ticket{ID: 1, Client: "alice", Freelancer: &freelancer}

	subjects := map[string]Subject{
		"client":     {Caller: "alice", Ticket: ticket},
		"freelancer": {Caller: "bob", Ticket: ticket},
		"stranger":   {Caller: "eve", Ticket: ticket},
		"resolver":   {Caller: "judge", Ticket: ticket, Roles: []domain.Role{domain.RoleResolver}},
		"admin":      {Caller: "root", Ticket: ticket, Roles: []domain.Role{domain.RoleAdmin}},
	}
	allowed := map[Operation][]string{
		OpCreateTicket:   {"client", "freelancer", "stranger", "resolver", "admin"},
		OpAssignTicket:   {"client"},
		OpStartWork:      {"freelancer"},
		OpSubmitWork:     {"freelancer"},
		OpApproveWork:    {"client"},
		OpRejectWork:     {"client"},
		OpDisputeTicket:  {"client", "freelancer"},
		OpResolveDispute: {"resolver", "admin"},
		OpCancelTicket:   {"client"},
		OpGrantRole:      {"admin"},
		OpRevokeRole:     {"admin"},
	}
	for op, who := range allowed {
		ok := map[string]bool{}
		for _, name := range who {
			ok[name] = true
		}
		for name, s := range subjects {
			err := Authorize(op, s)
			if ok[name] {
				assert.NoError(t, err, "%s as %s", op, name)
			} else {
				var forbidden ForbiddenError
				assert.True(t, errors.As(err, &forbidden), "%s as %s", op, name)
			}
		}
	}
}

func TestWithdrawRequiresBeneficiary(t *testing.T) {
	ticket := &domain.Ticket{ID: 1, Client: "alice"}
	s := Subject{Caller: "alice", Ticket: ticket, Beneficiaries: []string{"bob"}}
	assert.Error(t, Authorize(OpWithdrawPayment, s))
	s.Caller = "bob"
	assert.NoError(t, Authorize(OpWithdrawPayment, s))
}

func TestEmptyCallerHoldsNothing(t *testing.T) {
	assert.Error(t, Authorize(OpCreateTicket, Subject{}))
}

func TestForbiddenErrorMessage(t *testing.T) {
	err := Authorize(OpResolveDispute, Subject{Caller: "eve"})
	assert.EqualError(t, err, "resolve_dispute requires admin or resolver")
}
