// Package quiz implements the Quiz Service of spec.md §4.4: the
// orchestration layer between the Message Handler and the Leaderboard
// Store, Event Bus Adapter, and Question Bank. Grounded on the
// teacher's internal/leaderboard event-subscription wiring, with the
// score-mutation path redirected from Postgres to the Leaderboard
// Store and fitted to the Java QuizServiceImpl's handleJoin/
// handleSubmitAnswer operation order.
package quiz

import (
	"context"
	"time"

	"github.com/victornm/quizboard/internal/domain"
	"github.com/victornm/quizboard/internal/errors"
	"github.com/victornm/quizboard/internal/eventbus"
	"github.com/victornm/quizboard/internal/leaderboard"
	"github.com/victornm/quizboard/internal/questionbank"
)

type Config struct {
	Leaderboard *leaderboard.Service
	EventBus    *eventbus.Bus
	InstanceID  string
	Now         func() time.Time
}

type Service struct {
	lb         *leaderboard.Service
	bus        *eventbus.Bus
	instanceID string
	now        func() time.Time
}

func NewService(c Config) *Service {
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Service{
		lb:         c.Leaderboard,
		bus:        c.EventBus,
		instanceID: c.InstanceID,
		now:        c.Now,
	}
}

// HandleJoin initializes the user's leaderboard entry (if this is
// their first join to this quiz) and publishes USER_JOINED on the
// event bus, per spec.md §4.4 step sequence.
func (s *Service) HandleJoin(ctx context.Context, quizID, userID string) error {
	if err := s.lb.Initialize(ctx, quizID, userID); err != nil {
		return err
	}

	s.bus.Publish(ctx, domain.UserJoined(quizID, userID, s.instanceID, s.now()))
	return nil
}

// SubmitResult is the outcome of HandleSubmit, from which the Message
// Handler builds an ANSWER_RESULT reply.
type SubmitResult struct {
	PointsEarned int
	NewScore     int64
}

// HandleSubmit rejects a question number outside the question bank's
// range with an InvalidInput error; otherwise it scores the answer,
// atomically updates the leaderboard, and publishes SCORE_UPDATED. The returned NewScore is
// the authoritative post-increment value (spec.md §5: "not a
// subsequent read").
func (s *Service) HandleSubmit(ctx context.Context, quizID, userID string, questionNumber int, correct bool) (SubmitResult, error) {
	if !questionbank.Valid(questionNumber) {
		return SubmitResult{}, errors.InvalidInput("questionNumber out of range: %d", questionNumber)
	}

	points := 0
	if correct {
		points = questionbank.Points(questionNumber)
	}

	newScore, err := s.lb.Increment(ctx, quizID, userID, int64(points))
	if err != nil {
		return SubmitResult{}, err
	}

	// Published even when points is 0: an incorrect answer still
	// produces a SCORE_UPDATED event and a broadcast with unchanged
	// scores (spec.md §8).
	s.bus.Publish(ctx, domain.ScoreUpdated(quizID, userID, newScore, s.instanceID, s.now()))

	return SubmitResult{PointsEarned: points, NewScore: newScore}, nil
}
