package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/db"
	"ticketline/internal/domain"
	"ticketline/internal/events"
	"ticketline/internal/migrate"
)

func TestAppendAssignsIDs(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	first, err := events.Writer{}.Append(ctx, tx, events.TicketCreated, events.KindTicket, events.TicketEntity(1), "alice", at, events.EventPayload{"amount": "10"})
	require.NoError(t, err)
	second, err := events.Writer{}.Append(ctx, tx, events.RoleGranted, events.KindRole, "", "admin", at, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, first.ID+1, second.ID)
	assert.Equal(t, "2025-01-02T03:04:05Z", first.TS)
	assert.JSONEq(t, `{"amount":"10"}`, first.Payload)
	assert.Equal(t, "{}", second.Payload)
}

type fakePublisher struct {
	channel string
	msgs    [][]byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	if b, ok := message.([]byte); ok {
		f.msgs = append(f.msgs, b)
	}
	return redis.NewIntResult(1, f.err)
}

func TestRedisSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := events.RedisSink{Client: pub, Channel: "ticketline.events"}
	evt := domain.Event{ID: 4, Type: events.WorkSubmitted, EntityKind: events.KindTicket, EntityID: "1", ActorID: "bob", Payload: "{}"}
	require.NoError(t, sink.Publish(context.Background(), evt))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "ticketline.events", pub.channel)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(pub.msgs[0], &decoded))
	assert.Equal(t, evt, decoded)
}

func TestFanoutLogsSinkFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	failing := events.RedisSink{Client: &fakePublisher{err: errors.New("connection refused")}, Channel: "c"}
	ok := &fakePublisher{}
	events.Fanout{Sinks: []events.Sink{failing, events.RedisSink{Client: ok, Channel: "c"}}, Logger: logger}.
		Publish(context.Background(), domain.Event{ID: 1, Type: events.TicketCreated})

	assert.Contains(t, buf.String(), "event sink failed")
	assert.Len(t, ok.msgs, 1)
}
