// Handler demultiplexes JOIN, SUBMIT_ANSWER, HEARTBEAT, following the
// Java QuizWebSocketController's validation order: rate-limit check,
// field validation, room-membership check, service call, reply. Every
// path is exception-safe: an internal failure produces an ERROR reply
// (or, for HEARTBEAT, is silently absorbed) and never closes the
// connection.
package message

import (
	"context"
	"log/slog"
	"strings"

	"github.com/victornm/quizboard/internal/errors"
	"github.com/victornm/quizboard/internal/frame"
	"github.com/victornm/quizboard/internal/heartbeat"
	"github.com/victornm/quizboard/internal/metrics"
	"github.com/victornm/quizboard/internal/questionbank"
	"github.com/victornm/quizboard/internal/quiz"
	"github.com/victornm/quizboard/internal/ratelimit"
	"github.com/victornm/quizboard/internal/session"
)

type Config struct {
	Registry  *session.Registry
	RateLimit *ratelimit.Limiter
	Heartbeat *heartbeat.Monitor
	Quiz      *quiz.Service
	Hub       *Hub
}

type Handler struct {
	registry  *session.Registry
	rate      *ratelimit.Limiter
	heartbeat *heartbeat.Monitor
	quiz      *quiz.Service
	hub       *Hub
}

func NewHandler(c Config) *Handler {
	return &Handler{
		registry:  c.Registry,
		rate:      c.RateLimit,
		heartbeat: c.Heartbeat,
		quiz:      c.Quiz,
		hub:       c.Hub,
	}
}

// Connect registers a newly accepted connection's sink. The framing
// protocol terminator calls this once a connection is established,
// before any frames are handled.
func (h *Handler) Connect(sessionID string, sink Sink) {
	h.hub.Register(sessionID, sink)
	h.heartbeat.Record(sessionID)
}

// Disconnect tears down every trace of sessionID. Idempotent: safe to
// call for a connection that never joined a room, and safe to call
// twice (e.g. once from the transport's close handler and once from a
// heartbeat sweep racing it).
func (h *Handler) Disconnect(sessionID string) {
	h.hub.Unregister(sessionID)
	h.heartbeat.Forget(sessionID)
	h.rate.Remove(sessionID)
	h.registry.Cleanup(sessionID)
}

// Handle dispatches one decoded inbound frame for sessionID. raw is
// decoded with frame.DecodeInbound; an unrecognized type is a
// ProtocolDecodeFault and is converted to an ERROR reply when
// possible.
func (h *Handler) Handle(ctx context.Context, sessionID string, raw []byte) {
	h.heartbeat.Record(sessionID)

	decoded, ok := frame.DecodeInbound(raw)
	if !ok {
		h.reply(sessionID, frame.NewError("could not decode message"))
		metrics.RecordMessage("UNKNOWN", "decode_fault")
		return
	}

	switch f := decoded.(type) {
	case frame.Join:
		h.handleJoin(ctx, sessionID, f)
	case frame.SubmitAnswer:
		h.handleSubmit(ctx, sessionID, f)
	case frame.Heartbeat:
		// recorded above; no reply, no rate-limit charge.
		metrics.RecordMessage(string(frame.TypeHeartbeat), "ok")
	}
}

func (h *Handler) handleJoin(ctx context.Context, sessionID string, f frame.Join) {
	if !h.rate.Allow(sessionID) {
		h.reply(sessionID, frame.NewError(errors.RateLimited().Reason()))
		metrics.RecordMessage(string(frame.TypeJoin), "rate_limited")
		return
	}

	if err := validateJoin(f); err != nil {
		h.reply(sessionID, frame.NewError(err.Reason()))
		metrics.RecordMessage(string(frame.TypeJoin), "invalid")
		return
	}

	h.registry.Associate(sessionID, f.UserID)
	h.registry.AddToRoom(sessionID, f.QuizID)

	if err := h.quiz.HandleJoin(ctx, f.QuizID, f.UserID); err != nil {
		h.replyErr(ctx, sessionID, err)
		metrics.RecordMessage(string(frame.TypeJoin), "error")
		return
	}

	h.reply(sessionID, frame.NewJoinSuccess(f.QuizID, f.UserID, "joined "+f.QuizID))
	metrics.RecordMessage(string(frame.TypeJoin), "ok")
}

func (h *Handler) handleSubmit(ctx context.Context, sessionID string, f frame.SubmitAnswer) {
	if !h.rate.Allow(sessionID) {
		h.reply(sessionID, frame.NewError(errors.RateLimited().Reason()))
		metrics.RecordMessage(string(frame.TypeSubmitAnswer), "rate_limited")
		return
	}

	if err := validateSubmit(f); err != nil {
		h.reply(sessionID, frame.NewError(err.Reason()))
		metrics.RecordMessage(string(frame.TypeSubmitAnswer), "invalid")
		return
	}

	if !h.registry.InRoom(sessionID, f.QuizID) {
		h.reply(sessionID, frame.NewError(errors.NotInRoom(f.QuizID).Reason()))
		metrics.RecordMessage(string(frame.TypeSubmitAnswer), "not_in_room")
		return
	}

	res, err := h.quiz.HandleSubmit(ctx, f.QuizID, f.UserID, f.QuestionNumber, f.Correct)
	if err != nil {
		h.replyErr(ctx, sessionID, err)
		metrics.RecordMessage(string(frame.TypeSubmitAnswer), "error")
		return
	}

	h.reply(sessionID, frame.NewAnswerResult(f.QuizID, f.UserID, f.QuestionNumber, f.Correct, res.PointsEarned, res.NewScore))
	metrics.RecordMessage(string(frame.TypeSubmitAnswer), "ok")
}

func (h *Handler) replyErr(ctx context.Context, sessionID string, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternalFault {
		slog.ErrorContext(ctx, "message: internal fault", "session", sessionID, "err", err)
	}
	h.reply(sessionID, frame.NewError(e.Reason()))
}

func (h *Handler) reply(sessionID string, v any) {
	if _, err := h.hub.Send(sessionID, v); err != nil {
		slog.Error("message: reply delivery failed", "session", sessionID, "err", err)
	}
}

func validateJoin(f frame.Join) *errors.Error {
	if strings.TrimSpace(f.QuizID) == "" {
		return errors.InvalidInput("quizId must not be blank")
	}
	if strings.TrimSpace(f.UserID) == "" {
		return errors.InvalidInput("userId must not be blank")
	}
	return nil
}

func validateSubmit(f frame.SubmitAnswer) *errors.Error {
	if strings.TrimSpace(f.QuizID) == "" {
		return errors.InvalidInput("quizId must not be blank")
	}
	if strings.TrimSpace(f.UserID) == "" {
		return errors.InvalidInput("userId must not be blank")
	}
	if !questionbank.Valid(f.QuestionNumber) {
		return errors.InvalidInput("questionNumber out of range: %d", f.QuestionNumber)
	}
	return nil
}
