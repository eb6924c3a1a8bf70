package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketline/internal/domain"
	"ticketline/internal/engine/auth"
	"ticketline/internal/events"
	"ticketline/internal/repo"
)

// GrantRole gives actor a platform role. Granting a held role is a no-op
// and emits nothing.
func (e Engine) GrantRole(ctx context.Context, call Call, actor string, role domain.Role) (g domain.RoleGrant, err error) {
	const op = auth.OpGrantRole
	defer func() { e.finish(op, call, err) }()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return g, reject(op, 0, ErrValidation, "actor is required")
	}
	if !role.Valid() {
		return g, reject(op, 0, ErrValidation, "unknown role %q", role)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return g, err
	}
	defer tx.Rollback()

	if err := e.authorize(ctx, tx, op, call, nil, nil); err != nil {
		return g, err
	}
	now := call.Now.UTC().Truncate(time.Second)
	g = domain.RoleGrant{ActorID: actor, Role: role, GrantedBy: call.Caller, GrantedAt: now.Format(time.RFC3339)}
	created, err := e.Repo.GrantRole(ctx, tx, g)
	if err != nil {
		return g, fmt.Errorf("grant role: %w", err)
	}
	if !created {
		return g, tx.Commit()
	}
	evt, err := e.Events.Append(ctx, tx, events.RoleGranted, events.KindRole, actor, call.Caller, now, events.EventPayload{"actor_id": actor, "role": string(role)})
	if err != nil {
		return g, err
	}
	if err := tx.Commit(); err != nil {
		return g, err
	}
	e.logger().Info("role granted", "actor", actor, "role", role, "by", call.Caller)
	e.Sinks.Publish(ctx, evt)
	return g, nil
}

// RevokeRole removes a grant. Admins cannot revoke their own admin role.
func (e Engine) RevokeRole(ctx context.Context, call Call, actor string, role domain.Role) (err error) {
	const op = auth.OpRevokeRole
	defer func() { e.finish(op, call, err) }()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return reject(op, 0, ErrValidation, "actor is required")
	}
	if !role.Valid() {
		return reject(op, 0, ErrValidation, "unknown role %q", role)
	}
	if actor == call.Caller && role == domain.RoleAdmin {
		return reject(op, 0, ErrValidation, "cannot revoke own admin role")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.authorize(ctx, tx, op, call, nil, nil); err != nil {
		return err
	}
	if err := e.Repo.RevokeRole(ctx, tx, actor, role); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return reject(op, 0, ErrNotFound, "%s does not hold %s", actor, role)
		}
		return fmt.Errorf("revoke role: %w", err)
	}
	now := call.Now.UTC().Truncate(time.Second)
	evt, err := e.Events.Append(ctx, tx, events.RoleRevoked, events.KindRole, actor, call.Caller, now, events.EventPayload{"actor_id": actor, "role": string(role)})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.logger().Info("role revoked", "actor", actor, "role", role, "by", call.Caller)
	e.Sinks.Publish(ctx, evt)
	return nil
}

// SeedRoles installs the grants listed in configuration. It bypasses the
// policy since no admin exists before the first seed.
func (e Engine) SeedRoles(ctx context.Context, now time.Time, admins, resolvers []string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now = now.UTC().Truncate(time.Second)
	var emitted []domain.Event
	seed := func(actors []string, role domain.Role) error {
		for _, actor := range actors {
			actor = strings.TrimSpace(actor)
			if actor == "" {
				continue
			}
			created, err := e.Repo.GrantRole(ctx, tx, domain.RoleGrant{ActorID: actor, Role: role, GrantedBy: "config", GrantedAt: now.Format(time.RFC3339)})
			if err != nil {
				return fmt.Errorf("seed %s %s: %w", role, actor, err)
			}
			if !created {
				continue
			}
			evt, err := e.Events.Append(ctx, tx, events.RoleGranted, events.KindRole, actor, "config", now, events.EventPayload{"actor_id": actor, "role": string(role)})
			if err != nil {
				return err
			}
			emitted = append(emitted, evt)
		}
		return nil
	}
	if err := seed(admins, domain.RoleAdmin); err != nil {
		return err
	}
	if err := seed(resolvers, domain.RoleResolver); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if len(emitted) > 0 {
		e.logger().Info("roles seeded from config", "grants", len(emitted))
	}
	e.Sinks.Publish(ctx, emitted...)
	return nil
}
