package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizboard/internal/domain"
	"github.com/victornm/quizboard/internal/eventbus"
	"github.com/victornm/quizboard/internal/frame"
	"github.com/victornm/quizboard/internal/leaderboard"
	"github.com/victornm/quizboard/internal/message"
	"github.com/victornm/quizboard/internal/resilience"
	"github.com/victornm/quizboard/internal/session"
)

type captureSink struct {
	mu  sync.Mutex
	got []any
}

func (c *captureSink) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, v)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func (c *captureSink) lastUpdate() frame.LeaderboardUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.got[len(c.got)-1].(frame.LeaderboardUpdate)
}

func TestCoordinator_BroadcastsToLocalRoomOnEvent(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	lb := leaderboard.NewService(leaderboard.Config{Redis: rdb, Gate: resilience.New(resilience.DefaultConfig())})
	bus := eventbus.New(eventbus.Config{Redis: rdb})
	registry := session.NewRegistry()
	hub := message.NewHub()

	registry.AddToRoom("s1", "q1")
	sink := &captureSink{}
	hub.Register("s1", sink)

	_, err = lb.Increment(context.Background(), "q1", "alice", 4)
	require.NoError(t, err)

	coord := New(Config{Bus: bus, Leaderboard: lb, Registry: registry, Hub: hub})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = coord.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)

	bus.Publish(ctx, domain.ScoreUpdated("q1", "alice", 4, "instance-a", time.Unix(0, 0)))

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 10*time.Millisecond)

	update := sink.lastUpdate()
	assert.Equal(t, "q1", update.QuizID)
	require.Len(t, update.Leaderboard, 1)
	assert.Equal(t, "alice", update.Leaderboard[0].UserID)
	assert.Equal(t, int64(4), update.Leaderboard[0].Score)
}
