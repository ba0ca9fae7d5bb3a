// Package broadcast implements the Broadcast Coordinator of spec.md
// §4.5: the sole component authorized to emit LEADERBOARD_UPDATE
// frames. It subscribes to the Event Bus Adapter and, for every
// relevant event, reads top-N from the Leaderboard Store and fans the
// result out to every local session subscribed to that quiz.
//
// Redraws are wrapped in a per-quiz golang.org/x/sync/singleflight
// group, which merges overlapping onEvent calls for the same quiz into
// a single store read and a single broadcast. Run delivers events to
// onEvent one at a time from the subscription goroutine, so under Run
// no two redraws overlap and every event gets its own read and
// broadcast. The group generalizes the
// teacher's Redis-SETNX publish debounce (internal/leaderboard's
// schedulePublishLeaderboard) into a per-instance, library-backed
// mechanism — cross-instance debouncing no longer applies once each
// instance independently re-broadcasts to its own local subscribers.
package broadcast

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/victornm/quizboard/internal/domain"
	"github.com/victornm/quizboard/internal/eventbus"
	"github.com/victornm/quizboard/internal/frame"
	"github.com/victornm/quizboard/internal/leaderboard"
	"github.com/victornm/quizboard/internal/message"
	"github.com/victornm/quizboard/internal/session"
)

const defaultTopN = 10

type Config struct {
	Bus         *eventbus.Bus
	Leaderboard *leaderboard.Service
	Registry    *session.Registry
	Hub         *message.Hub
	TopN        int
}

type Coordinator struct {
	bus      *eventbus.Bus
	lb       *leaderboard.Service
	registry *session.Registry
	hub      *message.Hub
	topN     int

	group singleflight.Group
}

func New(c Config) *Coordinator {
	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}
	return &Coordinator{
		bus:      c.Bus,
		lb:       c.Leaderboard,
		registry: c.Registry,
		hub:      c.Hub,
		topN:     c.TopN,
	}
}

// Run subscribes to the event bus and blocks until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	return c.bus.Subscribe(ctx, func(ctx context.Context, e domain.Event) {
		c.onEvent(ctx, e)
	})
}

func (c *Coordinator) onEvent(ctx context.Context, e domain.Event) {
	sessionIDs := c.registry.Sessions(e.QuizID)
	if len(sessionIDs) == 0 {
		// no local subscriber for this quiz, nothing to redraw
		return
	}

	// singleflight merges this call with a redraw for the same quiz
	// that is already in flight on another goroutine; Run calls
	// onEvent serially, so there it never merges.
	_, err, _ := c.group.Do(e.QuizID, func() (any, error) {
		return nil, c.redraw(ctx, e.QuizID)
	})
	if err != nil {
		slog.ErrorContext(ctx, "broadcast: redraw failed", "quiz", e.QuizID, "err", err)
	}
}

func (c *Coordinator) redraw(ctx context.Context, quizID string) error {
	entries, err := c.lb.TopN(ctx, quizID, c.topN)
	if err != nil {
		return err
	}

	views := make([]frame.LeaderboardEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, frame.LeaderboardEntryView{UserID: e.UserID, Score: e.Score, Rank: e.Rank})
	}

	update := frame.NewLeaderboardUpdate(quizID, views)
	c.hub.SendToRoom(c.registry.Sessions(quizID), update)
	return nil
}
