package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ticketline/internal/domain"
)

const (
	TicketCreated    = "ticket.created"
	TicketAssigned   = "ticket.assigned"
	WorkStarted      = "ticket.work_started"
	WorkSubmitted    = "ticket.work_submitted"
	WorkApproved     = "ticket.work_approved"
	WorkRejected     = "ticket.work_rejected"
	TicketDisputed   = "ticket.disputed"
	DisputeResolved  = "ticket.dispute_resolved"
	TicketCancelled  = "ticket.cancelled"
	PaymentWithdrawn = "escrow.withdrawn"
	RoleGranted      = "role.granted"
	RoleRevoked      = "role.revoked"
)

// Types lists every event type in the order the lifecycle emits them.
var Types = []string{
	TicketCreated, TicketAssigned, WorkStarted, WorkSubmitted, WorkApproved, WorkRejected,
	TicketDisputed, DisputeResolved, TicketCancelled, PaymentWithdrawn, RoleGranted, RoleRevoked,
}

const (
	KindTicket = "ticket"
	KindEscrow = "escrow"
	KindRole   = "role"
)

type Writer struct{}

type EventPayload map[string]any

// TicketEntity formats a ticket id as an event entity id.
func TicketEntity(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Append writes one event inside tx and returns it with its assigned id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, at time.Time, payload EventPayload) (domain.Event, error) {
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	evt := domain.Event{
		TS:         at.UTC().Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}
	err = tx.QueryRowContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?) RETURNING id`,
		evt.TS, evt.Type, evt.EntityKind, nullable(evt.EntityID), evt.ActorID, evt.Payload).Scan(&evt.ID)
	if err != nil {
		return domain.Event{}, err
	}
	return evt, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
