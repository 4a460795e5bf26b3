package domain

import "time"

// NoAnswerID is submitted when a question's countdown expires with nothing selected.
const NoAnswerID = "no_answer"

// Phase is the lifecycle position of a quiz session.
type Phase int

const (
	PhaseJoining Phase = iota
	PhaseWaitingForQuestion
	PhaseQuestionActive
	PhaseAnswerPending
	PhaseShowingResult
	PhaseCompleted
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseJoining:
		return "joining"
	case PhaseWaitingForQuestion:
		return "waiting_for_question"
	case PhaseQuestionActive:
		return "question_active"
	case PhaseAnswerPending:
		return "answer_pending"
	case PhaseShowingResult:
		return "showing_result"
	case PhaseCompleted:
		return "completed"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the engine stops processing events in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseDisconnected
}

// ConnectionState is owned by the connection manager and only observed by the session.
type ConnectionState int

const (
	ConnConnecting ConnectionState = iota
	ConnOpen
	ConnClosed
	ConnErrored
)

func (s ConnectionState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosed:
		return "closed"
	case ConnErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Session identifies one participant's run through one quiz instance.
type Session struct {
	ID          string
	QuizID      string
	Participant string
	Phase       Phase
}

// AnswerOption is one selectable answer of a question.
type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is the question currently pushed by the server.
type Question struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	TimeLimitSeconds int            `json:"time_limit"`
	Answers          []AnswerOption `json:"answers"`
}

// HasAnswer reports whether answerID is one of the question's options.
func (q Question) HasAnswer(answerID string) bool {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}

// LeaderboardEntry is one ranked row of a leaderboard snapshot.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participant_id"`
	Username      string `json:"username"`
	Score         int    `json:"score"`
}

// Identity is the participant id, or the username when the server sent no id.
func (e LeaderboardEntry) Identity() string {
	if e.ParticipantID != "" {
		return e.ParticipantID
	}
	return e.Username
}

// Severity classifies a notification for display.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Notification is a transient message for the display layer.
type Notification struct {
	Message  string
	Severity Severity
	Duration time.Duration
}

// SessionResult summarizes a finished session for later lookup.
type SessionResult struct {
	QuizID      string    `json:"quizId"`
	Participant string    `json:"participant"`
	SessionID   string    `json:"sessionId"`
	Rank        int       `json:"rank"`
	Score       int       `json:"score"`
	Answered    int       `json:"answered"`
	Correct     int       `json:"correct"`
	Message     string    `json:"message"`
	CompletedAt time.Time `json:"completedAt"`
}
