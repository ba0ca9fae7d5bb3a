// Package frame defines the JSON wire messages of spec.md §6: a
// discriminated union over {JOIN, SUBMIT_ANSWER, HEARTBEAT,
// JOIN_SUCCESS, ANSWER_RESULT, LEADERBOARD_UPDATE, ERROR} decoded on
// the `type` field.
//
// The framing/transport layer itself (WebSocket upgrade, STOMP
// destinations) is an external collaborator per spec.md §1; this
// package only owns the payload shapes exchanged once a frame has
// been delivered.
package frame

import "encoding/json"

type Type string

const (
	TypeJoin              Type = "JOIN"
	TypeSubmitAnswer      Type = "SUBMIT_ANSWER"
	TypeHeartbeat         Type = "HEARTBEAT"
	TypeJoinSuccess       Type = "JOIN_SUCCESS"
	TypeAnswerResult      Type = "ANSWER_RESULT"
	TypeLeaderboardUpdate Type = "LEADERBOARD_UPDATE"
	TypeError             Type = "ERROR"
)

// Envelope carries only the discriminator, for a first decoding pass
// that selects the concrete inbound type.
type Envelope struct {
	Type Type `json:"type"`
}

// Inbound frames, sent by a client.

type Join struct {
	Type   Type   `json:"type"`
	QuizID string `json:"quizId"`
	UserID string `json:"userId"`
}

type SubmitAnswer struct {
	Type           Type `json:"type"`
	QuizID         string `json:"quizId"`
	UserID         string `json:"userId"`
	QuestionNumber int    `json:"questionNumber"`
	Correct        bool   `json:"correct"`
}

type Heartbeat struct {
	Type Type `json:"type"`
}

// Outbound frames, sent by the server.

type JoinSuccess struct {
	Type    Type   `json:"type"`
	QuizID  string `json:"quizId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func NewJoinSuccess(quizID, userID, message string) JoinSuccess {
	return JoinSuccess{Type: TypeJoinSuccess, QuizID: quizID, UserID: userID, Message: message}
}

type AnswerResult struct {
	Type           Type   `json:"type"`
	QuizID         string `json:"quizId"`
	UserID         string `json:"userId"`
	QuestionNumber int    `json:"questionNumber"`
	Correct        bool   `json:"correct"`
	PointsEarned   int    `json:"pointsEarned"`
	NewScore       int64  `json:"newScore"`
}

func NewAnswerResult(quizID, userID string, questionNumber int, correct bool, pointsEarned int, newScore int64) AnswerResult {
	return AnswerResult{
		Type:           TypeAnswerResult,
		QuizID:         quizID,
		UserID:         userID,
		QuestionNumber: questionNumber,
		Correct:        correct,
		PointsEarned:   pointsEarned,
		NewScore:       newScore,
	}
}

type LeaderboardEntryView struct {
	UserID string `json:"userId"`
	Score  int64  `json:"score"`
	Rank   int    `json:"rank"`
}

type LeaderboardUpdate struct {
	Type        Type                    `json:"type"`
	QuizID      string                  `json:"quizId"`
	Leaderboard []LeaderboardEntryView  `json:"leaderboard"`
}

func NewLeaderboardUpdate(quizID string, entries []LeaderboardEntryView) LeaderboardUpdate {
	return LeaderboardUpdate{Type: TypeLeaderboardUpdate, QuizID: quizID, Leaderboard: entries}
}

type Error struct {
	Type    Type    `json:"type"`
	Error   string  `json:"error"`
	Details *string `json:"details"`
}

func NewError(reason string, details ...string) Error {
	e := Error{Type: TypeError, Error: reason}
	if len(details) > 0 {
		e.Details = &details[0]
	}
	return e
}

// DecodeInbound dispatches on the envelope's type field and decodes
// into the matching concrete inbound frame. ok is false for an
// unrecognized type; callers treat that as a ProtocolDecodeFault
// (spec.md §7), converting to frame.Error when possible.
func DecodeInbound(raw []byte) (any, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}

	switch env.Type {
	case TypeJoin:
		var f Join
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, false
		}
		return f, true
	case TypeSubmitAnswer:
		var f SubmitAnswer
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, false
		}
		return f, true
	case TypeHeartbeat:
		var f Heartbeat
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}
