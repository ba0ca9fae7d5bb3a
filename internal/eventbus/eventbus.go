// Package eventbus implements the Event Bus Adapter of spec.md §4.3:
// cross-instance fan-out of quiz events over Redis pub/sub, so every
// instance's Broadcast Coordinator learns about score changes and
// joins regardless of which instance handled the originating
// connection.
//
// Grounded on the teacher's internal/api/pubsub.go (a *redis.Client
// wrapped for Publish/Subscribe) and the Java QuizEventPublisher /
// QuizEventSubscriber pair, collapsed into one adapter since Go's
// redis.PubSub already multiplexes subscriptions.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizboard/internal/domain"
)

const channelPattern = "%s:*:events"

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

// Bus publishes and receives domain.Event values across instances.
// Delivery is at-most-once: a subscriber that is down when an event is
// published never sees it.
type Bus struct {
	redis  redis.UniversalClient
	prefix string
}

func New(c Config) *Bus {
	if c.Prefix == "" {
		c.Prefix = "quiz"
	}
	return &Bus{redis: c.Redis, prefix: c.Prefix}
}

// Publish broadcasts e to every subscribed instance, including this
// one. Failures are logged and swallowed: a missed cross-instance
// broadcast degrades the leaderboard for other instances' rooms, but
// must never fail the call that triggered it (spec.md §4.3).
func (b *Bus) Publish(ctx context.Context, e domain.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		slog.ErrorContext(ctx, "eventbus: marshal event", "err", err)
		return
	}

	if err := b.redis.Publish(ctx, b.channel(e.QuizID), payload).Err(); err != nil {
		slog.ErrorContext(ctx, "eventbus: publish", "err", err, "quiz", e.QuizID)
	}
}

// Handler processes one event received from the bus. Handlers run on
// the subscription's goroutine and must not block indefinitely.
type Handler func(ctx context.Context, e domain.Event)

// Subscribe listens for events on every quiz channel until ctx is
// canceled, invoking fn for each. It blocks; call it from its own
// goroutine.
func (b *Bus) Subscribe(ctx context.Context, fn Handler) error {
	sub := b.redis.PSubscribe(ctx, fmt.Sprintf(channelPattern, b.prefix))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("eventbus: subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var e domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				slog.ErrorContext(ctx, "eventbus: unmarshal event", "err", err)
				continue
			}

			fn(ctx, e)
		}
	}
}

func (b *Bus) channel(quizID string) string {
	return fmt.Sprintf("%s:%s:events", b.prefix, quizID)
}
