// Package server wires every component of the quiz core together in
// dependency order (leaves first), the "global component wiring"
// redesign guideline: no framework injects these handles, Init builds
// and passes them explicitly. Grounded on the teacher's
// internal/server/server.go for the overall Init/Start/Shutdown shape
// and its gin + promhttp + pprof ambient HTTP surface, with the gRPC
// server and Postgres pools removed (no RPC transport, no durable
// session/score store in this design) and the Resilience Gate,
// Broadcast Coordinator, Heartbeat Monitor, and Message Handler added.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizboard/internal/broadcast"
	"github.com/victornm/quizboard/internal/event"
	"github.com/victornm/quizboard/internal/eventbus"
	"github.com/victornm/quizboard/internal/heartbeat"
	"github.com/victornm/quizboard/internal/leaderboard"
	"github.com/victornm/quizboard/internal/message"
	"github.com/victornm/quizboard/internal/metrics"
	"github.com/victornm/quizboard/internal/quiz"
	"github.com/victornm/quizboard/internal/ratelimit"
	"github.com/victornm/quizboard/internal/resilience"
	"github.com/victornm/quizboard/internal/session"
	"github.com/victornm/quizboard/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	InstanceID string

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Leaderboard struct {
		TopN int
	}

	Heartbeat struct {
		Interval   time.Duration
		SweepEvery time.Duration
	}

	RateLimit struct {
		Capacity       float64
		RefillRate     float64
		RefillInterval time.Duration
	}

	Resilience struct {
		WindowSize           int
		FailureRateThreshold float64
		MinCalls             int
		OpenDuration         time.Duration
		HalfOpenProbes       int
		ProbeInterval        time.Duration
		CallTimeout          time.Duration
	}
}

type Server struct {
	c Config

	eb *event.Bus

	redis redis.UniversalClient

	gate        *resilience.Gate
	leaderboard *leaderboard.Service
	bus         *eventbus.Bus
	registry    *session.Registry
	heartbeat   *heartbeat.Monitor
	rate        *ratelimit.Limiter
	quiz        *quiz.Service
	hub         *message.Hub
	coordinator *broadcast.Coordinator
	handler     *message.Handler

	http *http.Server

	coordinatorCancel context.CancelFunc
	coordinatorDone   chan struct{}
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	metrics.Subscribe(s.eb)

	if err := s.initRedis(); err != nil {
		return nil, fmt.Errorf("server: init redis: %w", err)
	}

	s.initComponents()
	s.initHandler()
	s.initHTTP()

	return s, nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}
	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.redis = r
	return nil
}

func (s *Server) initComponents() {
	gateConfig := resilience.DefaultConfig()
	if s.c.Resilience.WindowSize > 0 {
		gateConfig = resilience.Config{
			WindowSize:           s.c.Resilience.WindowSize,
			FailureRateThreshold: s.c.Resilience.FailureRateThreshold,
			MinCalls:             s.c.Resilience.MinCalls,
			OpenDuration:         s.c.Resilience.OpenDuration,
			HalfOpenProbes:       s.c.Resilience.HalfOpenProbes,
			ProbeInterval:        s.c.Resilience.ProbeInterval,
			CallTimeout:          s.c.Resilience.CallTimeout,
		}
	}
	gateConfig.EventBus = s.eb

	s.gate = resilience.New(gateConfig)

	s.leaderboard = leaderboard.NewService(leaderboard.Config{
		Redis:  s.redis,
		Gate:   s.gate,
		Prefix: s.c.Redis.Prefix,
	})
	s.gate.SetPing(s.leaderboard.Ping)

	s.bus = eventbus.New(eventbus.Config{Redis: s.redis, Prefix: s.c.Redis.Prefix})

	s.registry = session.NewRegistry()
	s.rate = ratelimit.New(ratelimit.Config{
		Capacity:       s.c.RateLimit.Capacity,
		RefillRate:     s.c.RateLimit.RefillRate,
		RefillInterval: s.c.RateLimit.RefillInterval,
	})

	s.hub = message.NewHub()

	s.heartbeat = heartbeat.New(heartbeat.Config{
		Interval:   s.c.Heartbeat.Interval,
		SweepEvery: s.c.Heartbeat.SweepEvery,
		Cleanup: func(sessionID string) {
			s.handler.Disconnect(sessionID)
		},
	})

	s.quiz = quiz.NewService(quiz.Config{
		Leaderboard: s.leaderboard,
		EventBus:    s.bus,
		InstanceID:  s.c.InstanceID,
	})

	s.coordinator = broadcast.New(broadcast.Config{
		Bus:         s.bus,
		Leaderboard: s.leaderboard,
		Registry:    s.registry,
		Hub:         s.hub,
		TopN:        s.c.Leaderboard.TopN,
	})
}

func (s *Server) initHandler() {
	s.handler = message.NewHandler(message.Config{
		Registry:  s.registry,
		RateLimit: s.rate,
		Heartbeat: s.heartbeat,
		Quiz:      s.quiz,
		Hub:       s.hub,
	})
}

// Handler exposes the Message Handler to the framing protocol
// terminator (external, spec.md §1): it is the one contract surface
// that layer needs from the core.
func (s *Server) Handler() *message.Handler {
	return s.handler
}

func (s *Server) initHTTP() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.Background()

	s.gate.StartProber(ctx)
	s.heartbeat.Start(ctx)

	coordCtx, cancel := context.WithCancel(ctx)
	s.coordinatorCancel = cancel
	s.coordinatorDone = make(chan struct{})
	go func() {
		defer close(s.coordinatorDone)
		if err := s.coordinator.Run(coordCtx); err != nil {
			slog.ErrorContext(ctx, "server: broadcast coordinator stopped", "err", err)
		}
	}()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.heartbeat.Stop()
	s.gate.Stop()

	if s.coordinatorCancel != nil {
		s.coordinatorCancel()
		<-s.coordinatorDone
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
