package repo

import (
	"context"

	"ticketline/internal/domain"
)

// GrantRole is a no-op when the grant already exists; created reports
// whether a row was written.
func (r Repo) GrantRole(ctx context.Context, q Querier, g domain.RoleGrant) (created bool, err error) {
	res, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO role_grants(actor_id, role, granted_by, granted_at) VALUES (?,?,?,?)`,
		g.ActorID, string(g.Role), g.GrantedBy, g.GrantedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RevokeRole returns ErrNotFound when actor did not hold role.
func (r Repo) RevokeRole(ctx context.Context, q Querier, actorID string, role domain.Role) error {
	res, err := q.ExecContext(ctx, `DELETE FROM role_grants WHERE actor_id=? AND role=?`, actorID, string(role))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ActorRoles(ctx context.Context, q Querier, actorID string) ([]domain.Role, error) {
	rows, err := q.QueryContext(ctx, `SELECT role FROM role_grants WHERE actor_id=? ORDER BY role`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []domain.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, domain.Role(role))
	}
	return roles, rows.Err()
}

func (r Repo) ListRoleGrants(ctx context.Context, q Querier, role domain.Role) ([]domain.RoleGrant, error) {
	query := `SELECT actor_id, role, granted_by, granted_at FROM role_grants`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, string(role))
	}
	query += ` ORDER BY actor_id, role`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []domain.RoleGrant
	for rows.Next() {
		var g domain.RoleGrant
		var role string
		if err := rows.Scan(&g.ActorID, &role, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, err
		}
		g.Role = domain.Role(role)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
