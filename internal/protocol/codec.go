package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"live-quiz-client/internal/domain"
)

// Wire type tags.
const (
	TypeLeaderboardUpdate   = "leaderboard_update"
	TypeQuestion            = "question"
	TypeAnswerResult        = "answer_result"
	TypeQuizComplete        = "quiz_complete"
	TypeError               = "error"
	TypeSubmitAnswer        = "submit_answer"
	TypeRequestNextQuestion = "request_next_question"
)

// Inbound is a decoded server message. The concrete type is one of
// LeaderboardUpdate, QuestionPush, AnswerResult, QuizComplete, ServerError or Unrecognized.
type Inbound interface {
	inbound()
}

// LeaderboardUpdate carries a full leaderboard snapshot.
type LeaderboardUpdate struct {
	Entries []domain.LeaderboardEntry
}

// QuestionPush replaces the current question.
type QuestionPush struct {
	Question domain.Question
}

// AnswerResult reports whether the last submission was correct.
type AnswerResult struct {
	Correct bool
	Message string
}

// QuizComplete ends the quiz.
type QuizComplete struct {
	Message string
}

// ServerError is an error reported by the server without ending the session.
type ServerError struct {
	Message string
}

// Unrecognized is any message whose type tag this client does not know.
type Unrecognized struct {
	Type string
	Data json.RawMessage
}

func (LeaderboardUpdate) inbound() {}
func (QuestionPush) inbound()      {}
func (AnswerResult) inbound()      {}
func (QuizComplete) inbound()      {}
func (ServerError) inbound()       {}
func (Unrecognized) inbound()      {}

// Outbound is a client message that can be encoded into a frame.
type Outbound interface {
	Type() string
}

// SubmitAnswer submits an answer for a question.
type SubmitAnswer struct {
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id"`
}

// RequestNextQuestion asks the server for the next unanswered question.
type RequestNextQuestion struct{}

func (SubmitAnswer) Type() string        { return TypeSubmitAnswer }
func (RequestNextQuestion) Type() string { return TypeRequestNextQuestion }

type envelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outboundEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// id accepts both JSON strings and numbers.
type id string

func (i *id) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*i = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = id(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*i = id(n.String())
	return nil
}

type entryPayload struct {
	Rank          int    `json:"rank"`
	ParticipantID id     `json:"participant_id"`
	UserID        id     `json:"user_id"`
	Username      string `json:"username"`
	Score         int    `json:"score"`
}

type answerPayload struct {
	ID   id     `json:"id"`
	Text string `json:"text"`
}

type questionPayload struct {
	ID        id              `json:"id"`
	Text      string          `json:"text"`
	TimeLimit int             `json:"time_limit"`
	Answers   []answerPayload `json:"answers"`
}

type answerResultPayload struct {
	Correct *bool  `json:"correct"`
	Message string `json:"message"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// Decode parses one inbound frame. Errors wrap domain.ErrMalformedMessage.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed("invalid envelope: %v", err)
	}
	if env.Type == nil || *env.Type == "" {
		return nil, malformed("missing type")
	}

	switch *env.Type {
	case TypeLeaderboardUpdate:
		return decodeLeaderboard(env.Data)
	case TypeQuestion:
		return decodeQuestion(env.Data)
	case TypeAnswerResult:
		var p answerResultPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Correct == nil {
			return nil, malformed("answer_result without correct")
		}
		return AnswerResult{Correct: *p.Correct, Message: p.Message}, nil
	case TypeQuizComplete:
		var p messagePayload
		if err := unmarshalOptional(env.Data, &p); err != nil {
			return nil, err
		}
		return QuizComplete{Message: p.Message}, nil
	case TypeError:
		var p messagePayload
		if err := unmarshalOptional(env.Data, &p); err != nil {
			return nil, err
		}
		return ServerError{Message: p.Message}, nil
	default:
		return Unrecognized{Type: *env.Type, Data: env.Data}, nil
	}
}

func decodeLeaderboard(data json.RawMessage) (Inbound, error) {
	var payload []entryPayload
	if err := unmarshalOptional(data, &payload); err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(payload))
	for i, p := range payload {
		if p.Rank < 1 {
			return nil, malformed("leaderboard entry %d: rank %d", i, p.Rank)
		}
		participant := string(p.ParticipantID)
		if participant == "" {
			participant = string(p.UserID)
		}
		if participant == "" && p.Username == "" {
			return nil, malformed("leaderboard entry %d: no participant identity", i)
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:          p.Rank,
			ParticipantID: participant,
			Username:      p.Username,
			Score:         p.Score,
		})
	}
	return LeaderboardUpdate{Entries: entries}, nil
}

func decodeQuestion(data json.RawMessage) (Inbound, error) {
	var p questionPayload
	if err := unmarshalData(data, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, malformed("question without id")
	}
	if p.TimeLimit <= 0 {
		return nil, malformed("question %s: time_limit %d", p.ID, p.TimeLimit)
	}
	if len(p.Answers) == 0 {
		return nil, malformed("question %s: no answers", p.ID)
	}
	answers := make([]domain.AnswerOption, 0, len(p.Answers))
	for i, a := range p.Answers {
		if a.ID == "" {
			return nil, malformed("question %s: answer %d without id", p.ID, i)
		}
		answers = append(answers, domain.AnswerOption{ID: string(a.ID), Text: a.Text})
	}
	return QuestionPush{Question: domain.Question{
		ID:               string(p.ID),
		Text:             p.Text,
		TimeLimitSeconds: p.TimeLimit,
		Answers:          answers,
	}}, nil
}

// Encode serializes an outbound message into a text frame.
func Encode(msg Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case SubmitAnswer:
		return json.Marshal(outboundEnvelope{Type: m.Type(), Data: m})
	case RequestNextQuestion:
		return json.Marshal(outboundEnvelope{Type: m.Type()})
	default:
		return nil, fmt.Errorf("encode: unsupported outbound message %T", msg)
	}
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return malformed("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return malformed("invalid data: %v", err)
	}
	return nil
}

func unmarshalOptional(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return malformed("invalid data: %v", err)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedMessage, fmt.Sprintf(format, args...))
}
