package repo

import (
	"context"

	"ticketline/internal/domain"
)

// AppendIndex records ticketID in actor's list for role. Lists are
// append-only and keep insertion order.
func (r Repo) AppendIndex(ctx context.Context, q Querier, actorID string, role domain.IndexRole, ticketID uint64) error {
	_, err := q.ExecContext(ctx, `INSERT INTO ticket_index(actor_id, role, ticket_id) VALUES (?,?,?)`, actorID, string(role), ticketID)
	return err
}

// IndexedTickets returns the ids in actor's list for role, oldest first.
// Unknown actors yield an empty, non-nil slice.
func (r Repo) IndexedTickets(ctx context.Context, q Querier, actorID string, role domain.IndexRole) ([]uint64, error) {
	rows, err := q.QueryContext(ctx, `SELECT ticket_id FROM ticket_index WHERE actor_id=? AND role=? ORDER BY seq ASC`, actorID, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
