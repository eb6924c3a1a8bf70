package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketline/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const ticketColumns = `id,client,freelancer,title,description,payment_amount,deadline,created_at,updated_at,status,
submission_uri,rejection_reason,dispute_reason,disputed_by,disputed_at,disputed_from,resolution,winner,resolved_by,resolved_at,resolution_note`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (domain.Ticket, error) {
	var t domain.Ticket
	var freelancer, submission, rejection, disputeReason, disputedBy, disputedFrom, winner, resolvedBy, note sql.NullString
	var disputedAt, resolution, resolvedAt sql.NullInt64
	var amount, status string
	var deadline, createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.Client, &freelancer, &t.Title, &t.Description, &amount, &deadline, &createdAt, &updatedAt, &status,
		&submission, &rejection, &disputeReason, &disputedBy, &disputedAt, &disputedFrom, &resolution, &winner, &resolvedBy, &resolvedAt, &note)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if t.PaymentAmount, err = domain.ParseAmount(amount); err != nil {
		return t, fmt.Errorf("ticket %d payment_amount: %w", t.ID, err)
	}
	if t.Status, err = domain.ParseStatus(status); err != nil {
		return t, fmt.Errorf("ticket %d: %w", t.ID, err)
	}
	t.Deadline = fromUnix(deadline)
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)
	t.Freelancer = optional(freelancer)
	t.SubmissionURI = optional(submission)
	t.RejectionReason = optional(rejection)
	if disputedBy.Valid {
		d := &domain.Dispute{
			Reason:   disputeReason.String,
			RaisedBy: disputedBy.String,
			RaisedAt: fromUnix(disputedAt.Int64),
			Winner:   optional(winner),
			Note:     note.String,
		}
		if disputedFrom.Valid {
			if d.PriorStatus, err = domain.ParseStatus(disputedFrom.String); err != nil {
				return t, fmt.Errorf("ticket %d disputed_from: %w", t.ID, err)
			}
		}
		if resolution.Valid {
			r := domain.Resolution(resolution.Int64)
			d.Resolution = &r
		}
		d.ResolvedBy = optional(resolvedBy)
		if resolvedAt.Valid {
			ts := fromUnix(resolvedAt.Int64)
			d.ResolvedAt = &ts
		}
		t.Dispute = d
	}
	return t, nil
}

// NextTicketID advances the ticket sequence. Run it inside the create tx so
// a rollback also releases the id.
func (r Repo) NextTicketID(ctx context.Context, q Querier) (uint64, error) {
	var id uint64
	err := q.QueryRowContext(ctx, `UPDATE sequences SET value=value+1 WHERE name='ticket' RETURNING value`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("ticket sequence missing; run migrations")
	}
	return id, err
}

func (r Repo) InsertTicket(ctx context.Context, q Querier, t domain.Ticket) error {
	_, err := q.ExecContext(ctx, `INSERT INTO tickets(id,client,freelancer,title,description,payment_amount,deadline,created_at,updated_at,status)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Client, nullableStringPtr(t.Freelancer), t.Title, t.Description, t.PaymentAmount.String(),
		t.Deadline.Unix(), t.CreatedAt.Unix(), t.UpdatedAt.Unix(), t.Status.String())
	return err
}

// UpdateTicket writes the mutable columns. client, payment_amount and
// created_at are never part of the statement.
func (r Repo) UpdateTicket(ctx context.Context, q Querier, t domain.Ticket) error {
	var disputeReason, disputedBy, disputedFrom, winner, resolvedBy, note any
	var disputedAt, resolution, resolvedAt any
	if d := t.Dispute; d != nil {
		disputeReason = d.Reason
		disputedBy = d.RaisedBy
		disputedAt = d.RaisedAt.Unix()
		disputedFrom = d.PriorStatus.String()
		winner = nullableStringPtr(d.Winner)
		resolvedBy = nullableStringPtr(d.ResolvedBy)
		note = nullable(d.Note)
		if d.Resolution != nil {
			resolution = int(*d.Resolution)
		}
		if d.ResolvedAt != nil {
			resolvedAt = d.ResolvedAt.Unix()
		}
	}
	res, err := q.ExecContext(ctx, `UPDATE tickets SET freelancer=?, status=?, updated_at=?, submission_uri=?, rejection_reason=?,
dispute_reason=?, disputed_by=?, disputed_at=?, disputed_from=?, resolution=?, winner=?, resolved_by=?, resolved_at=?, resolution_note=?
WHERE id=?`,
		nullableStringPtr(t.Freelancer), t.Status.String(), t.UpdatedAt.Unix(), nullableStringPtr(t.SubmissionURI), nullableStringPtr(t.RejectionReason),
		disputeReason, disputedBy, disputedAt, disputedFrom, resolution, winner, resolvedBy, resolvedAt, note,
		t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTicket(ctx context.Context, q Querier, id uint64) (domain.Ticket, error) {
	return scanTicket(q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id))
}

type TicketFilters struct {
	Status     string
	Client     string
	Freelancer string
	Limit      int
	// Cursor returns tickets with ids below it (newest first paging).
	Cursor uint64
}

func (r Repo) ListTickets(ctx context.Context, q Querier, f TicketFilters) ([]domain.Ticket, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Client != "" {
		clauses = append(clauses, "client=?")
		args = append(args, f.Client)
	}
	if f.Freelancer != "" {
		clauses = append(clauses, "freelancer=?")
		args = append(args, f.Freelancer)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountTicketsByStatus returns counts keyed by status name.
func (r Repo) CountTicketsByStatus(ctx context.Context, q Querier) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT status, count(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func optional(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
