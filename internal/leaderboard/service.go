// Package leaderboard implements the Leaderboard Store of spec.md §4.1:
// per-quiz rankings held in Redis sorted sets, guarded by a
// resilience.Gate with an in-memory fallback mirror for when Redis is
// unavailable.
//
// Grounded on the teacher's internal/leaderboard/service.go ZADD/
// ZRevRangeWithScores usage, retargeted from float64 decimal scores to
// int64 quiz points, and with the debounced cross-instance publish
// replaced by a direct, gate-guarded read/write API (broadcast
// coalescing moves to internal/broadcast).
package leaderboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizboard/internal/domain"
	"github.com/victornm/quizboard/internal/resilience"
)

type Config struct {
	Redis  redis.UniversalClient
	Gate   *resilience.Gate
	Prefix string
}

// Service is the Leaderboard Store. Safe for concurrent use.
type Service struct {
	redis  redis.UniversalClient
	gate   *resilience.Gate
	prefix string

	mu       sync.Mutex
	fallback map[string]map[string]int64 // quizID -> userID -> score
}

func NewService(c Config) *Service {
	if c.Prefix == "" {
		c.Prefix = "quiz"
	}

	return &Service{
		redis:    c.Redis,
		gate:     c.Gate,
		prefix:   c.Prefix,
		fallback: make(map[string]map[string]int64),
	}
}

// Ping is used by the resilience.Gate's periodic prober.
func (s *Service) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// Initialize creates the user's entry with score 0 if it does not
// already exist. Idempotent.
func (s *Service) Initialize(ctx context.Context, quizID, userID string) error {
	if !s.gate.Allow() {
		s.initFallback(quizID, userID)
		return nil
	}

	err := s.redis.ZAddNX(ctx, s.key(quizID), redis.Z{Score: 0, Member: userID}).Err()
	s.gate.Report(err == nil)
	if err != nil {
		s.initFallback(quizID, userID)
		return nil
	}

	return nil
}

// Increment atomically adds delta to the user's score and returns the
// new total.
func (s *Service) Increment(ctx context.Context, quizID, userID string, delta int64) (int64, error) {
	if !s.gate.Allow() {
		return s.incrementFallback(quizID, userID, delta), nil
	}

	total, err := s.redis.ZIncrBy(ctx, s.key(quizID), float64(delta), userID).Result()
	s.gate.Report(err == nil)
	if err != nil {
		return s.incrementFallback(quizID, userID, delta), nil
	}

	return int64(total), nil
}

// TopN returns up to n leaderboard entries ordered by descending score,
// with 1-based ranks assigned.
func (s *Service) TopN(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	if !s.gate.Allow() {
		return s.topNFallback(quizID, n), nil
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.key(quizID), 0, int64(n-1)).Result()
	s.gate.Report(err == nil)
	if err != nil {
		return s.topNFallback(quizID, n), nil
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: z.Member.(string),
			Score:  int64(z.Score),
			Rank:   i + 1,
		})
	}

	return entries, nil
}

// Score returns the user's current score.
func (s *Service) Score(ctx context.Context, quizID, userID string) (int64, error) {
	if !s.gate.Allow() {
		return s.scoreFallback(quizID, userID), nil
	}

	v, err := s.redis.ZScore(ctx, s.key(quizID), userID).Result()
	if err == redis.Nil {
		s.gate.Report(true)
		return 0, nil
	}
	s.gate.Report(err == nil)
	if err != nil {
		return s.scoreFallback(quizID, userID), nil
	}

	return int64(v), nil
}

// Rank returns the user's 1-based rank, or ok=false if the user has no
// entry.
func (s *Service) Rank(ctx context.Context, quizID, userID string) (rank int, ok bool, err error) {
	if !s.gate.Allow() {
		r, found := s.rankFallback(quizID, userID)
		return r, found, nil
	}

	r, redisErr := s.redis.ZRevRank(ctx, s.key(quizID), userID).Result()
	if redisErr == redis.Nil {
		s.gate.Report(true)
		return 0, false, nil
	}
	s.gate.Report(redisErr == nil)
	if redisErr != nil {
		r2, found := s.rankFallback(quizID, userID)
		return r2, found, nil
	}

	return int(r) + 1, true, nil
}

// Size returns the number of entries in the leaderboard.
func (s *Service) Size(ctx context.Context, quizID string) (int64, error) {
	if !s.gate.Allow() {
		return s.sizeFallback(quizID), nil
	}

	n, err := s.redis.ZCard(ctx, s.key(quizID)).Result()
	s.gate.Report(err == nil)
	if err != nil {
		return s.sizeFallback(quizID), nil
	}

	return n, nil
}

// Remove deletes a single user's entry; removing a user with no entry
// is a no-op.
func (s *Service) Remove(ctx context.Context, quizID, userID string) error {
	if !s.gate.Allow() {
		s.removeFallback(quizID, userID)
		return nil
	}

	err := s.redis.ZRem(ctx, s.key(quizID), userID).Err()
	s.gate.Report(err == nil)
	if err != nil {
		s.removeFallback(quizID, userID)
	}

	return nil
}

// Delete removes the whole leaderboard for a quiz.
func (s *Service) Delete(ctx context.Context, quizID string) error {
	if !s.gate.Allow() {
		s.mu.Lock()
		delete(s.fallback, quizID)
		s.mu.Unlock()
		return nil
	}

	err := s.redis.Del(ctx, s.key(quizID)).Err()
	s.gate.Report(err == nil)
	if err != nil {
		s.mu.Lock()
		delete(s.fallback, quizID)
		s.mu.Unlock()
	}

	return nil
}

func (s *Service) key(quizID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, quizID)
}

func (s *Service) initFallback(quizID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.roomLocked(quizID)
	if _, ok := room[userID]; !ok {
		room[userID] = 0
	}
}

func (s *Service) incrementFallback(quizID, userID string, delta int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.roomLocked(quizID)
	room[userID] += delta
	return room[userID]
}

func (s *Service) topNFallback(quizID string, n int) []domain.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.roomLocked(quizID)
	entries := make([]domain.LeaderboardEntry, 0, len(room))
	for userID, score := range room {
		entries = append(entries, domain.LeaderboardEntry{UserID: userID, Score: score})
	}

	sortDescByScore(entries)

	for i := range entries {
		entries[i].Rank = i + 1
	}

	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}

	return entries
}

func (s *Service) scoreFallback(quizID, userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roomLocked(quizID)[userID]
}

func (s *Service) rankFallback(quizID, userID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.roomLocked(quizID)
	if _, ok := room[userID]; !ok {
		return 0, false
	}

	entries := make([]domain.LeaderboardEntry, 0, len(room))
	for uid, score := range room {
		entries = append(entries, domain.LeaderboardEntry{UserID: uid, Score: score})
	}
	sortDescByScore(entries)

	for i, e := range entries {
		if e.UserID == userID {
			return i + 1, true
		}
	}

	return 0, false
}

func (s *Service) sizeFallback(quizID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.roomLocked(quizID)))
}

func (s *Service) removeFallback(quizID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.roomLocked(quizID), userID)
}

// roomLocked must be called with s.mu held.
func (s *Service) roomLocked(quizID string) map[string]int64 {
	room, ok := s.fallback[quizID]
	if !ok {
		room = make(map[string]int64)
		s.fallback[quizID] = room
	}
	return room
}

func sortDescByScore(entries []domain.LeaderboardEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Score > entries[j-1].Score; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
