package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ticketline/internal/config"
	"ticketline/internal/domain"
	"ticketline/internal/engine/auth"
	"ticketline/internal/engine/escrow"
	"ticketline/internal/events"
	"ticketline/internal/repo"
)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Sinks      events.Fanout
	Config     *config.Config
	Withdrawal escrow.Mode
	Logger     *slog.Logger
}

// Call identifies who invokes an operation and at what time. The engine
// never reads a clock of its own.
type Call struct {
	Caller string
	Now    time.Time
}

// New builds an engine over db. It fails when cfg names an unknown
// withdrawal mode.
func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	mode, err := escrow.ParseMode(cfg.Escrow.ResolvedWithdrawal)
	if err != nil {
		return Engine{}, fmt.Errorf("escrow config: %w", err)
	}
	logger := slog.Default().With("component", "engine")
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{},
		Sinks:      events.Fanout{Logger: logger},
		Config:     cfg,
		Withdrawal: mode,
		Logger:     logger,
	}, nil
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// finish logs the outcome of op. Rejections go to debug; infrastructure
// failures to error.
func (e Engine) finish(op auth.Operation, call Call, err error) {
	if err == nil {
		return
	}
	var rejected *Error
	if errors.As(err, &rejected) {
		e.logger().Debug("operation rejected", "op", op, "caller", call.Caller, "ticket", rejected.TicketID, "reason", rejected.Msg)
		return
	}
	e.logger().Error("operation failed", "op", op, "caller", call.Caller, "err", err)
}

func (e Engine) loadTicket(ctx context.Context, q repo.Querier, op auth.Operation, id uint64) (domain.Ticket, error) {
	t, err := e.Repo.GetTicket(ctx, q, id)
	if errors.Is(err, repo.ErrNotFound) {
		return t, reject(op, id, ErrNotFound, "no such ticket")
	}
	if err != nil {
		return t, fmt.Errorf("load ticket %d: %w", id, err)
	}
	return t, nil
}

func (e Engine) authorize(ctx context.Context, q repo.Querier, op auth.Operation, call Call, t *domain.Ticket, beneficiaries []string) error {
	roles, err := e.Repo.ActorRoles(ctx, q, call.Caller)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	var id uint64
	if t != nil {
		id = t.ID
	}
	s := auth.Subject{Caller: call.Caller, Ticket: t, Roles: roles, Beneficiaries: beneficiaries}
	if err := auth.Authorize(op, s); err != nil {
		if call.Caller == "" {
			return reject(op, id, ErrUnauthorized, "caller required")
		}
		return reject(op, id, ErrUnauthorized, "wrong caller: %v", err)
	}
	return nil
}

// TicketCreateOptions are parameters for creating a ticket.
type TicketCreateOptions struct {
	Title       string
	Description string
	Amount      domain.Amount
	Deadline    time.Time
}

// CreateTicket opens a ticket owned by the caller and funds its escrow.
func (e Engine) CreateTicket(ctx context.Context, call Call, opts TicketCreateOptions) (t domain.Ticket, err error) {
	const op = auth.OpCreateTicket
	defer func() { e.finish(op, call, err) }()

	if strings.TrimSpace(opts.Title) == "" {
		return t, reject(op, 0, ErrValidation, "title is required")
	}
	if opts.Amount.Sign() <= 0 {
		return t, reject(op, 0, ErrValidation, "payment amount must be positive")
	}
	now := call.Now.UTC().Truncate(time.Second)
	deadline := opts.Deadline.UTC().Truncate(time.Second)
	if !opts.Deadline.After(call.Now) {
		return t, reject(op, 0, ErrValidation, "deadline must be after now")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.authorize(ctx, tx, op, call, nil, nil); err != nil {
		return t, err
	}
	id, err := e.Repo.NextTicketID(ctx, tx)
	if err != nil {
		return t, fmt.Errorf("allocate ticket id: %w", err)
	}
	t = domain.Ticket{
		ID:            id,
		Client:        call.Caller,
		Title:         strings.TrimSpace(opts.Title),
		Description:   opts.Description,
		PaymentAmount: opts.Amount,
		Deadline:      deadline,
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        domain.StatusOpen,
	}
	if err := e.Repo.InsertTicket(ctx, tx, t); err != nil {
		return t, fmt.Errorf("insert ticket: %w", err)
	}
	if err := e.Repo.InsertEscrow(ctx, tx, escrow.Fund(t, now)); err != nil {
		return t, fmt.Errorf("fund escrow: %w", err)
	}
	if err := e.Repo.AppendIndex(ctx, tx, t.Client, domain.IndexClient, t.ID); err != nil {
		return t, fmt.Errorf("index client: %w", err)
	}
	evt, err := e.Events.Append(ctx, tx, events.TicketCreated, events.KindTicket, events.TicketEntity(t.ID), call.Caller, now, events.EventPayload{
		"ticket_id":      t.ID,
		"client":         t.Client,
		"title":          t.Title,
		"payment_amount": t.PaymentAmount.String(),
		"deadline":       t.Deadline.Format(time.RFC3339),
	})
	if err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	e.logger().Info("ticket created", "ticket", t.ID, "client", t.Client, "amount", t.PaymentAmount.String())
	e.Sinks.Publish(ctx, evt)
	return t, nil
}

// change describes one lifecycle transition on an existing ticket.
type change struct {
	op    auth.Operation
	id    uint64
	event string
	// validate checks the arguments against the loaded ticket.
	validate func(t domain.Ticket) error
	// guard runs after authorization and state checks.
	guard func(t domain.Ticket) error
	apply func(t *domain.Ticket)
	// payload adds operation fields to the event.
	payload events.EventPayload
	// index appends the ticket to the freelancer's list after apply.
	indexFreelancer bool
}

func (e Engine) transition(ctx context.Context, call Call, c change) (t domain.Ticket, err error) {
	defer func() { e.finish(c.op, call, err) }()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	t, err = e.loadTicket(ctx, tx, c.op, c.id)
	if err != nil {
		return t, err
	}
	if c.validate != nil {
		if err := c.validate(t); err != nil {
			return t, err
		}
	}
	if err := e.authorize(ctx, tx, c.op, call, &t, nil); err != nil {
		return t, err
	}
	to, err := checkTransition(c.op, t)
	if err != nil {
		return t, err
	}
	if c.guard != nil {
		if err := c.guard(t); err != nil {
			return t, err
		}
	}
	from := t.Status
	now := call.Now.UTC().Truncate(time.Second)
	if c.apply != nil {
		c.apply(&t)
	}
	t.Status = to
	t.UpdatedAt = now
	if err := e.Repo.UpdateTicket(ctx, tx, t); err != nil {
		return t, fmt.Errorf("update ticket %d: %w", t.ID, err)
	}
	if c.indexFreelancer && t.Freelancer != nil {
		if err := e.Repo.AppendIndex(ctx, tx, *t.Freelancer, domain.IndexFreelancer, t.ID); err != nil {
			return t, fmt.Errorf("index freelancer: %w", err)
		}
	}
	payload := events.EventPayload{"ticket_id": t.ID, "from": from.String(), "to": to.String()}
	for k, v := range c.payload {
		payload[k] = v
	}
	evt, err := e.Events.Append(ctx, tx, c.event, events.KindTicket, events.TicketEntity(t.ID), call.Caller, now, payload)
	if err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	e.logger().Info("ticket transition", "op", c.op, "ticket", t.ID, "from", from.String(), "to", to.String(), "caller", call.Caller)
	e.Sinks.Publish(ctx, evt)
	return t, nil
}

// AssignTicket names the freelancer of an open ticket.
func (e Engine) AssignTicket(ctx context.Context, call Call, id uint64, freelancer string) (domain.Ticket, error) {
	freelancer = strings.TrimSpace(freelancer)
	return e.transition(ctx, call, change{
		op:    auth.OpAssignTicket,
		id:    id,
		event: events.TicketAssigned,
		validate: func(t domain.Ticket) error {
			if freelancer == "" {
				return reject(auth.OpAssignTicket, id, ErrValidation, "freelancer is required")
			}
			if freelancer == t.Client {
				return reject(auth.OpAssignTicket, id, ErrValidation, "client cannot be its own freelancer")
			}
			return nil
		},
		apply: func(t *domain.Ticket) {
			t.Freelancer = &freelancer
		},
		payload:         events.EventPayload{"freelancer": freelancer},
		indexFreelancer: true,
	})
}

// StartWork moves an assigned ticket into progress while the deadline holds.
func (e Engine) StartWork(ctx context.Context, call Call, id uint64) (domain.Ticket, error) {
	return e.transition(ctx, call, change{
		op:    auth.OpStartWork,
		id:    id,
		event: events.WorkStarted,
		guard: func(t domain.Ticket) error {
			// Deadlines are stored at second precision.
			if call.Now.UTC().Truncate(time.Second).After(t.Deadline) {
				return reject(auth.OpStartWork, id, ErrState, "deadline passed")
			}
			return nil
		},
	})
}

// SubmitWork records the delivered work. A resubmission after rejection
// overwrites the previous uri.
func (e Engine) SubmitWork(ctx context.Context, call Call, id uint64, uri string) (domain.Ticket, error) {
	uri = strings.TrimSpace(uri)
	return e.transition(ctx, call, change{
		op:    auth.OpSubmitWork,
		id:    id,
		event: events.WorkSubmitted,
		validate: func(domain.Ticket) error {
			if uri == "" {
				return reject(auth.OpSubmitWork, id, ErrValidation, "submission uri is required")
			}
			return nil
		},
		apply: func(t *domain.Ticket) {
			t.SubmissionURI = &uri
		},
		payload: events.EventPayload{"submission_uri": uri},
	})
}

func (e Engine) ApproveWork(ctx context.Context, call Call, id uint64) (domain.Ticket, error) {
	return e.transition(ctx, call, change{
		op:    auth.OpApproveWork,
		id:    id,
		event: events.WorkApproved,
	})
}

// RejectWork sends a submission back to the freelancer. The submission uri
// is kept until the next submit.
func (e Engine) RejectWork(ctx context.Context, call Call, id uint64, reason string) (domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	return e.transition(ctx, call, change{
		op:    auth.OpRejectWork,
		id:    id,
		event: events.WorkRejected,
		apply: func(t *domain.Ticket) {
			if reason == "" {
				t.RejectionReason = nil
				return
			}
			t.RejectionReason = &reason
		},
		payload: events.EventPayload{"reason": reason},
	})
}

func (e Engine) DisputeTicket(ctx context.Context, call Call, id uint64, reason string) (domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	now := call.Now.UTC().Truncate(time.Second)
	return e.transition(ctx, call, change{
		op:    auth.OpDisputeTicket,
		id:    id,
		event: events.TicketDisputed,
		apply: func(t *domain.Ticket) {
			t.Dispute = &domain.Dispute{
				Reason:      reason,
				RaisedBy:    call.Caller,
				RaisedAt:    now,
				PriorStatus: t.Status,
			}
		},
		payload: events.EventPayload{"reason": reason, "raised_by": call.Caller},
	})
}

// ResolveDispute settles a disputed ticket. Code 0 favors the client, 1 the
// freelancer.
func (e Engine) ResolveDispute(ctx context.Context, call Call, id uint64, code int, note string) (domain.Ticket, error) {
	now := call.Now.UTC().Truncate(time.Second)
	resolution, codeErr := domain.ParseResolution(code)
	payload := events.EventPayload{"resolution": code}
	return e.transition(ctx, call, change{
		op:    auth.OpResolveDispute,
		id:    id,
		event: events.DisputeResolved,
		validate: func(domain.Ticket) error {
			if codeErr != nil {
				return reject(auth.OpResolveDispute, id, ErrValidation, "%v", codeErr)
			}
			return nil
		},
		apply: func(t *domain.Ticket) {
			winner := t.Client
			if resolution == domain.ResolutionFreelancer && t.Freelancer != nil {
				winner = *t.Freelancer
			}
			resolver := call.Caller
			ts := now
			d := t.Dispute
			if d == nil {
				d = &domain.Dispute{}
			}
			d.Resolution = &resolution
			d.Winner = &winner
			d.ResolvedBy = &resolver
			d.ResolvedAt = &ts
			d.Note = strings.TrimSpace(note)
			t.Dispute = d
			payload["winner"] = winner
		},
		payload: payload,
	})
}

// CancelTicket is only possible before work starts.
func (e Engine) CancelTicket(ctx context.Context, call Call, id uint64) (domain.Ticket, error) {
	return e.transition(ctx, call, change{
		op:    auth.OpCancelTicket,
		id:    id,
		event: events.TicketCancelled,
	})
}

// WithdrawPayment pays the whole escrow of a terminal ticket to the caller.
func (e Engine) WithdrawPayment(ctx context.Context, call Call, id uint64) (esc domain.Escrow, err error) {
	const op = auth.OpWithdrawPayment
	defer func() { e.finish(op, call, err) }()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return esc, err
	}
	defer tx.Rollback()

	t, err := e.loadTicket(ctx, tx, op, id)
	if err != nil {
		return esc, err
	}
	esc, err = e.Repo.GetEscrow(ctx, tx, id)
	if err != nil {
		return esc, fmt.Errorf("load escrow %d: %w", id, err)
	}
	if !t.Status.IsTerminal() {
		return esc, reject(op, id, ErrState, "not in a terminal status (%s)", t.Status)
	}
	if err := e.authorize(ctx, tx, op, call, &t, escrow.Beneficiaries(t, e.Withdrawal)); err != nil {
		return esc, err
	}
	now := call.Now.UTC().Truncate(time.Second)
	next, paid, err := escrow.Withdraw(esc, t, call.Caller, e.Withdrawal, now)
	switch {
	case errors.Is(err, escrow.ErrEmpty):
		return esc, reject(op, id, ErrResource, "no payment to withdraw")
	case errors.Is(err, escrow.ErrNotEligible):
		return esc, reject(op, id, ErrUnauthorized, "wrong caller")
	case errors.Is(err, escrow.ErrNotTerminal):
		return esc, reject(op, id, ErrState, "not in a terminal status (%s)", t.Status)
	case err != nil:
		return esc, err
	}
	if err := e.Repo.UpdateEscrow(ctx, tx, next); err != nil {
		return esc, fmt.Errorf("update escrow %d: %w", id, err)
	}
	evt, err := e.Events.Append(ctx, tx, events.PaymentWithdrawn, events.KindEscrow, events.TicketEntity(id), call.Caller, now, events.EventPayload{
		"ticket_id":   id,
		"amount":      paid.String(),
		"beneficiary": call.Caller,
		"status":      string(next.Status),
	})
	if err != nil {
		return esc, err
	}
	if err := tx.Commit(); err != nil {
		return esc, err
	}
	e.logger().Info("payment withdrawn", "ticket", id, "beneficiary", call.Caller, "amount", paid.String(), "escrow_status", next.Status)
	e.Sinks.Publish(ctx, evt)
	return next, nil
}
