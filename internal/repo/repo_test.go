package repo_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/db"
	"ticketline/internal/domain"
	"ticketline/internal/migrate"
	"ticketline/internal/repo"
)

func openRepo(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return repo.Repo{DB: conn}, conn
}

func strPtr(s string) *string { return &s }

func TestTicketRoundTrip(t *testing.T) {
	r, conn := openRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := r.NextTicketID(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	tk := domain.Ticket{
		ID:            id,
		Client:        "alice",
		Title:         "Logo",
		Description:   "vector logo",
		PaymentAmount: domain.MustAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935"),
		Deadline:      now.Add(48 * time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        domain.StatusOpen,
	}
	require.NoError(t, r.InsertTicket(ctx, conn, tk))

	got, err := r.GetTicket(ctx, conn, id)
	require.NoError(t, err)
	assert.Equal(t, tk.PaymentAmount.String(), got.PaymentAmount.String())
	assert.Equal(t, tk.Deadline, got.Deadline)
	assert.Nil(t, got.Freelancer)
	assert.Nil(t, got.Dispute)

	res := domain.ResolutionFreelancer
	resolvedAt := now.Add(time.Hour)
	got.Freelancer = strPtr("bob")
	got.Status = domain.StatusResolved
	got.UpdatedAt = resolvedAt
	got.Dispute = &domain.Dispute{
		Reason:      "late",
		RaisedBy:    "alice",
		RaisedAt:    now,
		PriorStatus: domain.StatusSubmitted,
		Resolution:  &res,
		Winner:      strPtr("bob"),
		ResolvedBy:  strPtr("judge"),
		ResolvedAt:  &resolvedAt,
	}
	require.NoError(t, r.UpdateTicket(ctx, conn, got))

	again, err := r.GetTicket(ctx, conn, id)
	require.NoError(t, err)
	require.NotNil(t, again.Dispute)
	assert.Equal(t, domain.StatusSubmitted, again.Dispute.PriorStatus)
	assert.Equal(t, domain.ResolutionFreelancer, *again.Dispute.Resolution)
	assert.Equal(t, "bob", *again.Dispute.Winner)
	assert.Equal(t, "", again.Dispute.Note)

	_, err = r.GetTicket(ctx, conn, 99)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListTicketsFiltersAndPages(t *testing.T) {
	r, conn := openRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id, err := r.NextTicketID(ctx, conn)
		require.NoError(t, err)
		client := "alice"
		if i%2 == 1 {
			client = "carol"
		}
		require.NoError(t, r.InsertTicket(ctx, conn, domain.Ticket{
			ID: id, Client: client, Title: "t", PaymentAmount: domain.NewAmount(10),
			Deadline: now, CreatedAt: now, UpdatedAt: now, Status: domain.StatusOpen,
		}))
	}

	all, err := r.ListTickets(ctx, conn, repo.TicketFilters{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, uint64(5), all[0].ID)

	alice, err := r.ListTickets(ctx, conn, repo.TicketFilters{Client: "alice"})
	require.NoError(t, err)
	assert.Len(t, alice, 3)

	page, err := r.ListTickets(ctx, conn, repo.TicketFilters{Limit: 2, Cursor: 4})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].ID)
	assert.Equal(t, uint64(2), page[1].ID)

	counts, err := r.CountTicketsByStatus(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 5, counts["open"])
}

func TestIndexKeepsInsertionOrder(t *testing.T) {
	r, conn := openRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []uint64{1, 2, 3} {
		_, err := r.NextTicketID(ctx, conn)
		require.NoError(t, err)
		require.NoError(t, r.InsertTicket(ctx, conn, domain.Ticket{
			ID: id, Client: "alice", Title: "t", PaymentAmount: domain.NewAmount(1),
			Deadline: now, CreatedAt: now, UpdatedAt: now, Status: domain.StatusOpen,
		}))
	}
	for _, id := range []uint64{3, 1, 2} {
		require.NoError(t, r.AppendIndex(ctx, conn, "bob", domain.IndexFreelancer, id))
	}
	ids, err := r.IndexedTickets(ctx, conn, "bob", domain.IndexFreelancer)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 1, 2}, ids)

	empty, err := r.IndexedTickets(ctx, conn, "nobody", domain.IndexClient)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestEscrowRoundTrip(t *testing.T) {
	r, conn := openRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.InsertTicket(ctx, conn, domain.Ticket{
		ID: 1, Client: "alice", Title: "t", PaymentAmount: domain.NewAmount(500),
		Deadline: now, CreatedAt: now, UpdatedAt: now, Status: domain.StatusOpen,
	}))
	esc := domain.Escrow{TicketID: 1, Amount: domain.NewAmount(500), Balance: domain.NewAmount(500), Status: domain.EscrowFunded, FundedAt: now}
	require.NoError(t, r.InsertEscrow(ctx, conn, esc))

	withdrawn := now.Add(time.Hour)
	esc.Balance = domain.Amount{}
	esc.Status = domain.EscrowReleased
	esc.Beneficiary = strPtr("bob")
	esc.WithdrawnAt = &withdrawn
	require.NoError(t, r.UpdateEscrow(ctx, conn, esc))

	got, err := r.GetEscrow(ctx, conn, 1)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
	assert.Equal(t, "500", got.Amount.String())
	assert.Equal(t, domain.EscrowReleased, got.Status)
	assert.Equal(t, withdrawn, *got.WithdrawnAt)

	_, err = r.GetEscrow(ctx, conn, 2)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRoleGrants(t *testing.T) {
	r, conn := openRepo(t)
	ctx := context.Background()
	g := domain.RoleGrant{ActorID: "judge", Role: domain.RoleResolver, GrantedBy: "config", GrantedAt: "2025-03-01T00:00:00Z"}
	created, err := r.GrantRole(ctx, conn, g)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = r.GrantRole(ctx, conn, g)
	require.NoError(t, err)
	assert.False(t, created)

	roles, err := r.ActorRoles(ctx, conn, "judge")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleResolver}, roles)

	grants, err := r.ListRoleGrants(ctx, conn, "")
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	require.NoError(t, r.RevokeRole(ctx, conn, "judge", domain.RoleResolver))
	assert.ErrorIs(t, r.RevokeRole(ctx, conn, "judge", domain.RoleResolver), repo.ErrNotFound)
}

func TestAPIKeys(t *testing.T) {
	r, conn := openRepo(t)
	ctx := context.Background()
	hash := repo.HashAPIKey(" secret ")
	assert.Equal(t, repo.HashAPIKey("secret"), hash)
	require.NoError(t, r.InsertAPIKey(ctx, conn, domain.APIKey{ID: "k1", ActorID: "alice", KeyHash: hash}))

	key, err := r.GetAPIKeyByHash(ctx, conn, hash)
	require.NoError(t, err)
	assert.Equal(t, "alice", key.ActorID)

	require.NoError(t, r.DeleteAPIKey(ctx, conn, "k1"))
	_, err = r.GetAPIKeyByHash(ctx, conn, hash)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestNextTicketIDWithMock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sequences SET value=value+1")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))
	id, err := repo.Repo{}.NextTicketID(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sequences")).WillReturnError(sql.ErrNoRows)
	_, err = repo.Repo{}.NextTicketID(context.Background(), conn)
	assert.ErrorContains(t, err, "run migrations")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTicketMissingRow(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Repo{}.UpdateTicket(context.Background(), conn, domain.Ticket{ID: 3, Status: domain.StatusOpen})
	assert.ErrorIs(t, err, repo.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
