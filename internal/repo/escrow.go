package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticketline/internal/domain"
)

func (r Repo) InsertEscrow(ctx context.Context, q Querier, e domain.Escrow) error {
	_, err := q.ExecContext(ctx, `INSERT INTO escrows(ticket_id,amount,balance,status,beneficiary,funded_at,withdrawn_at) VALUES (?,?,?,?,?,?,?)`,
		e.TicketID, e.Amount.String(), e.Balance.String(), string(e.Status), nullableStringPtr(e.Beneficiary), e.FundedAt.Unix(), nullableTime(e))
	return err
}

// UpdateEscrow persists a withdrawal. The amount column is immutable.
func (r Repo) UpdateEscrow(ctx context.Context, q Querier, e domain.Escrow) error {
	res, err := q.ExecContext(ctx, `UPDATE escrows SET balance=?, status=?, beneficiary=?, withdrawn_at=? WHERE ticket_id=?`,
		e.Balance.String(), string(e.Status), nullableStringPtr(e.Beneficiary), nullableTime(e), e.TicketID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetEscrow(ctx context.Context, q Querier, ticketID uint64) (domain.Escrow, error) {
	var e domain.Escrow
	var amount, balance, status string
	var beneficiary sql.NullString
	var fundedAt int64
	var withdrawnAt sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT ticket_id,amount,balance,status,beneficiary,funded_at,withdrawn_at FROM escrows WHERE ticket_id=?`, ticketID).
		Scan(&e.TicketID, &amount, &balance, &status, &beneficiary, &fundedAt, &withdrawnAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if e.Amount, err = domain.ParseAmount(amount); err != nil {
		return e, fmt.Errorf("escrow %d amount: %w", ticketID, err)
	}
	if e.Balance, err = domain.ParseAmount(balance); err != nil {
		return e, fmt.Errorf("escrow %d balance: %w", ticketID, err)
	}
	e.Status = domain.EscrowStatus(status)
	e.Beneficiary = optional(beneficiary)
	e.FundedAt = fromUnix(fundedAt)
	if withdrawnAt.Valid {
		ts := fromUnix(withdrawnAt.Int64)
		e.WithdrawnAt = &ts
	}
	return e, nil
}

func nullableTime(e domain.Escrow) any {
	if e.WithdrawnAt == nil {
		return nil
	}
	return e.WithdrawnAt.Unix()
}
