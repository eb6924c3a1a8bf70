// Package escrow holds the withdrawal rules for funds escrowed against a
// ticket.
package escrow

import (
	"errors"
	"fmt"
	"time"

	"ticketline/internal/domain"
)

// Mode selects who may withdraw once a dispute is resolved.
type Mode string

const (
	// ModeWinner pays only the recorded resolution winner.
	ModeWinner Mode = "winner"
	// ModeEither lets either party withdraw after resolution.
	ModeEither Mode = "either"
)

func ParseMode(v string) (Mode, error) {
	switch Mode(v) {
	case "":
		return ModeWinner, nil
	case ModeWinner, ModeEither:
		return Mode(v), nil
	}
	return "", fmt.Errorf("resolved_withdrawal must be winner or either, got %q", v)
}

var (
	ErrNotTerminal = errors.New("ticket is not in a terminal status")
	ErrNotEligible = errors.New("caller may not withdraw")
	ErrEmpty       = errors.New("no payment to withdraw")
)

// Fund opens the escrow for a freshly created ticket.
func Fund(t domain.Ticket, at time.Time) domain.Escrow {
	return domain.Escrow{
		TicketID: t.ID,
		Amount:   t.PaymentAmount,
		Balance:  t.PaymentAmount,
		Status:   domain.EscrowFunded,
		FundedAt: at,
	}
}

// Beneficiaries returns the actors entitled to withdraw in t's current
// status. Non-terminal tickets have none.
func Beneficiaries(t domain.Ticket, mode Mode) []string {
	switch t.Status {
	case domain.StatusCompleted:
		if t.Freelancer == nil {
			return nil
		}
		return []string{*t.Freelancer}
	case domain.StatusCancelled:
		return []string{t.Client}
	case domain.StatusResolved:
		if mode == ModeEither {
			out := []string{t.Client}
			if t.Freelancer != nil {
				out = append(out, *t.Freelancer)
			}
			return out
		}
		if t.Dispute == nil || t.Dispute.Winner == nil {
			return nil
		}
		return []string{*t.Dispute.Winner}
	case domain.StatusOpen, domain.StatusAssigned, domain.StatusInProgress, domain.StatusSubmitted, domain.StatusDisputed:
		return nil
	}
	panic(fmt.Sprintf("escrow: unknown status %d", uint8(t.Status)))
}

// Withdraw moves the whole balance to caller. It returns the updated escrow
// and the amount paid out.
func Withdraw(esc domain.Escrow, t domain.Ticket, caller string, mode Mode, now time.Time) (domain.Escrow, domain.Amount, error) {
	if !t.Status.IsTerminal() {
		return esc, domain.Amount{}, ErrNotTerminal
	}
	eligible := false
	for _, b := range Beneficiaries(t, mode) {
		if b == caller {
			eligible = true
			break
		}
	}
	if !eligible {
		return esc, domain.Amount{}, ErrNotEligible
	}
	if esc.Balance.IsZero() {
		return esc, domain.Amount{}, ErrEmpty
	}
	paid := esc.Balance
	esc.Balance = domain.Amount{}
	esc.Status = domain.EscrowRefunded
	if t.IsFreelancer(caller) {
		esc.Status = domain.EscrowReleased
	}
	esc.Beneficiary = &caller
	ts := now
	esc.WithdrawnAt = &ts
	return esc, paid, nil
}
