// Package redisfeed streams profile row changes over Redis pub/sub, one
// channel per principal.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classkeeper/authsession/internal/feed"
)

const defaultPrefix = "profile:changes:"

// Message is the wire format published on a principal's channel.
type Message struct {
	Op string `json:"op"` // "UPDATE" or "DELETE"
}

// Feed implements feed.Feed over Redis pub/sub.
type Feed struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

// Config holds Redis connection settings for the feed.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// New connects to Redis and verifies reachability with a ping.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Feed, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Feed{client: client, prefix: prefix, log: log}, nil
}

// Channel returns the pub/sub channel name for a principal.
func (f *Feed) Channel(principalID uuid.UUID) string {
	return f.prefix + principalID.String()
}

// Subscribe opens a pub/sub subscription for principalID and converts raw
// messages into feed events. Malformed payloads are logged and dropped.
func (f *Feed) Subscribe(ctx context.Context, principalID uuid.UUID) (feed.Subscription, error) {
	ps := f.client.Subscribe(ctx, f.Channel(principalID))
	// Force the SUBSCRIBE round-trip so a dead broker fails here, not later.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.Channel(principalID), err)
	}

	sub := &subscription{ps: ps, ch: make(chan feed.Event, 16)}
	go func() {
		defer close(sub.ch)
		for msg := range ps.Channel() {
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				f.log.Warn("malformed change message",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			kind := feed.Kind(m.Op)
			if kind != feed.Updated && kind != feed.Deleted {
				f.log.Warn("unknown change op", zap.String("op", m.Op))
				continue
			}
			sub.ch <- feed.Event{Kind: kind, PrincipalID: principalID}
		}
	}()
	return sub, nil
}

// Publish broadcasts a change for principalID. Used by the side of the
// application that mutates profile rows.
func (f *Feed) Publish(ctx context.Context, principalID uuid.UUID, kind feed.Kind) error {
	payload, err := json.Marshal(Message{Op: string(kind)})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.Channel(principalID), payload).Err()
}

// Close releases the underlying Redis client.
func (f *Feed) Close() error { return f.client.Close() }

type subscription struct {
	ps *redis.PubSub
	ch chan feed.Event
}

func (s *subscription) Events() <-chan feed.Event { return s.ch }

// Close terminates the pub/sub; the events channel closes once the reader
// goroutine drains.
func (s *subscription) Close() error { return s.ps.Close() }
