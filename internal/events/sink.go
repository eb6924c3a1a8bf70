package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"ticketline/internal/domain"
)

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// Fanout delivers events to every sink after commit. A failing sink is
// logged and skipped; it never affects the committed operation.
type Fanout struct {
	Sinks  []Sink
	Logger *slog.Logger
}

func (f Fanout) Publish(ctx context.Context, evts ...domain.Event) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, evt := range evts {
		for _, s := range f.Sinks {
			if err := s.Publish(ctx, evt); err != nil {
				logger.Warn("event sink failed", "type", evt.Type, "event_id", evt.ID, "err", err)
			}
		}
	}
}

// Publisher is the subset of the redis client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes each event as JSON on a pub/sub channel.
type RedisSink struct {
	Client  Publisher
	Channel string
}

func NewRedisSink(addr, password string, db int, channel string) RedisSink {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return RedisSink{Client: rdb, Channel: channel}
}

func (s RedisSink) Publish(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := s.Client.Publish(ctx, s.Channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.Channel, err)
	}
	return nil
}

// LogSink writes events to a structured logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(_ context.Context, evt domain.Event) error {
	s.Logger.Debug("event", "id", evt.ID, "type", evt.Type, "entity", evt.EntityKind+":"+evt.EntityID, "actor", evt.ActorID)
	return nil
}
