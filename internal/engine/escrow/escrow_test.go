package escrow

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/domain"
)

var now = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func ticketIn(status domain.Status, winner string) domain.Ticket {
	f := "bob"
	t := domain.Ticket{ID: 1, Client: "alice", Freelancer: &f, PaymentAmount: domain.NewAmount(1000), Status: status}
	if winner != "" {
		w := winner
		t.Dispute = &domain.Dispute{Winner: &w}
	}
	return t
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeWinner, m)
	m, err = ParseMode("either")
	require.NoError(t, err)
	assert.Equal(t, ModeEither, m)
	_, err = ParseMode("anyone")
	assert.Error(t, err)
}

func TestBeneficiaries(t *testing.T) {
	cases := []struct {
		name   string
		ticket domain.Ticket
		mode   Mode
		want   []string
	}{
		{"completed pays freelancer", ticketIn(domain.StatusCompleted, ""), ModeWinner, []string{"bob"}},
		{"cancelled refunds client", ticketIn(domain.StatusCancelled, ""), ModeWinner, []string{"alice"}},
		{"resolved for client", ticketIn(domain.StatusResolved, "alice"), ModeWinner, []string{"alice"}},
		{"resolved for freelancer", ticketIn(domain.StatusResolved, "bob"), ModeWinner, []string{"bob"}},
		{"resolved either", ticketIn(domain.StatusResolved, "bob"), ModeEither, []string{"alice", "bob"}},
		{"in progress", ticketIn(domain.StatusInProgress, ""), ModeEither, nil},
		{"disputed", ticketIn(domain.StatusDisputed, ""), ModeWinner, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Beneficiaries(tc.ticket, tc.mode))
		})
	}
}

func TestWithdrawOnce(t *testing.T) {
	tk := ticketIn(domain.StatusCompleted, "")
	esc := Fund(tk, now)
	assert.Equal(t, "1000", esc.Balance.String())

	out, paid, err := Withdraw(esc, tk, "bob", ModeWinner, now)
	require.NoError(t, err)
	assert.Equal(t, "1000", paid.String())
	assert.True(t, out.Balance.IsZero())
	assert.Equal(t, "1000", out.Amount.String())
	assert.Equal(t, domain.EscrowReleased, out.Status)
	assert.Equal(t, "bob", *out.Beneficiary)

	_, _, err = Withdraw(out, tk, "bob", ModeWinner, now)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestWithdrawErrors(t *testing.T) {
	open := ticketIn(domain.StatusSubmitted, "")
	_, _, err := Withdraw(Fund(open, now), open, "bob", ModeWinner, now)
	assert.ErrorIs(t, err, ErrNotTerminal)

	done := ticketIn(domain.StatusCompleted, "")
	_, _, err = Withdraw(Fund(done, now), done, "alice", ModeWinner, now)
	assert.ErrorIs(t, err, ErrNotEligible)

	resolved := ticketIn(domain.StatusResolved, "alice")
	_, _, err = Withdraw(Fund(resolved, now), resolved, "bob", ModeWinner, now)
	assert.ErrorIs(t, err, ErrNotEligible)
	out, _, err := Withdraw(Fund(resolved, now), resolved, "bob", ModeEither, now)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowReleased, out.Status)

	cancelled := ticketIn(domain.StatusCancelled, "")
	out, _, err = Withdraw(Fund(cancelled, now), cancelled, "alice", ModeWinner, now)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowRefunded, out.Status)
}

func TestBalanceIsAllOrNothing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	statuses := make([]interface{}, 0, len(domain.AllStatuses))
	for _, s := range domain.AllStatuses {
		statuses = append(statuses, s)
	}

	properties.Property("balance is either the full amount or zero, and pays at most once", prop.ForAll(
		func(amount uint64, status domain.Status, callers []string, either bool) bool {
			mode := ModeWinner
			if either {
				mode = ModeEither
			}
			tk := ticketIn(status, "bob")
			tk.PaymentAmount = domain.NewAmount(amount)
			esc := Fund(tk, now)
			payouts := 0
			for _, c := range callers {
				next, paid, err := Withdraw(esc, tk, c, mode, now)
				if err == nil {
					payouts++
					if paid.Cmp(tk.PaymentAmount) != 0 {
						return false
					}
				} else if !errors.Is(err, ErrNotTerminal) && !errors.Is(err, ErrNotEligible) && !errors.Is(err, ErrEmpty) {
					return false
				}
				esc = next
				if !esc.Balance.IsZero() && esc.Balance.Cmp(tk.PaymentAmount) != 0 {
					return false
				}
			}
			return payouts <= 1 && esc.Amount.Cmp(tk.PaymentAmount) == 0
		},
		gen.UInt64Range(1, 1<<62),
		gen.OneConstOf(statuses...),
		gen.SliceOf(gen.OneConstOf("alice", "bob", "eve")),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
