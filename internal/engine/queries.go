package engine

import (
	"context"
	"errors"

	"ticketline/internal/domain"
	"ticketline/internal/repo"
)

func (e Engine) GetTicket(ctx context.Context, id uint64) (domain.Ticket, error) {
	t, err := e.Repo.GetTicket(ctx, e.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return t, &Error{Op: "get_ticket", TicketID: id, Kind: ErrNotFound, Msg: "no such ticket"}
	}
	return t, err
}

func (e Engine) GetEscrow(ctx context.Context, id uint64) (domain.Escrow, error) {
	esc, err := e.Repo.GetEscrow(ctx, e.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return esc, &Error{Op: "get_escrow", TicketID: id, Kind: ErrNotFound, Msg: "no such ticket"}
	}
	return esc, err
}

// TicketsFor returns the ids in actor's list for role in insertion order.
// Unknown actors get an empty list.
func (e Engine) TicketsFor(ctx context.Context, actor string, role domain.IndexRole) ([]uint64, error) {
	return e.Repo.IndexedTickets(ctx, e.DB, actor, role)
}

func (e Engine) ListTickets(ctx context.Context, f repo.TicketFilters) ([]domain.Ticket, error) {
	if f.Status != "" {
		if _, err := domain.ParseStatus(f.Status); err != nil {
			return nil, &Error{Op: "list_tickets", Kind: ErrValidation, Msg: err.Error()}
		}
	}
	return e.Repo.ListTickets(ctx, e.DB, f)
}

func (e Engine) CountTickets(ctx context.Context) (map[string]int, error) {
	return e.Repo.CountTicketsByStatus(ctx, e.DB)
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, e.DB, f)
}

func (e Engine) ActorRoles(ctx context.Context, actor string) ([]domain.Role, error) {
	return e.Repo.ActorRoles(ctx, e.DB, actor)
}

func (e Engine) ListRoleGrants(ctx context.Context, role domain.Role) ([]domain.RoleGrant, error) {
	return e.Repo.ListRoleGrants(ctx, e.DB, role)
}
