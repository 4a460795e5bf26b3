package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/session"
)

// display prints session snapshots and notifications as plain terminal lines.
type display struct {
	out io.Writer

	mu        sync.Mutex
	question  *domain.Question
	phase     domain.Phase
	remaining int
	board     string
}

func newDisplay(out io.Writer) *display {
	return &display{out: out, phase: -1}
}

// watch renders engine output until the session ends.
func (d *display) watch(engine *session.Engine) {
	snapshots, cancel := engine.Subscribe()
	defer cancel()
	notifications := engine.Notifications()

	for snapshots != nil || notifications != nil {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			d.render(snap)
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			d.notify(n)
		}
	}
}

func (d *display) render(snap session.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if snap.Phase == domain.PhaseQuestionActive && snap.Question != nil &&
		(d.phase != domain.PhaseQuestionActive || d.question == nil || d.question.ID != snap.Question.ID) {
		d.question = snap.Question
		d.remaining = snap.Remaining
		printQuestion(d.out, *snap.Question)
	} else if snap.Ticking && snap.Remaining != d.remaining {
		d.remaining = snap.Remaining
		if snap.Remaining <= 5 || snap.Remaining%10 == 0 {
			fmt.Fprintf(d.out, "  %ds left\n", snap.Remaining)
		}
	}

	if snap.Phase != d.phase {
		d.phase = snap.Phase
		switch snap.Phase {
		case domain.PhaseJoining:
			fmt.Fprintln(d.out, "Joining quiz...")
		case domain.PhaseWaitingForQuestion:
			fmt.Fprintln(d.out, "Waiting for the next question...")
		case domain.PhaseAnswerPending:
			fmt.Fprintf(d.out, "Answer submitted (%s).\n", describeAnswer(d.question, snap.Selection))
		}
	}

	if board := formatLeaderboard(snap); board != "" && board != d.board {
		d.board = board
		fmt.Fprint(d.out, board)
	}
}

func (d *display) notify(n domain.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prefix := "i"
	switch n.Severity {
	case domain.SeveritySuccess:
		prefix = "+"
	case domain.SeverityError:
		prefix = "!"
	}
	fmt.Fprintf(d.out, "[%s] %s\n", prefix, n.Message)
}

// answerFor maps a letter typed by the user to an answer id of the displayed question.
func (d *display) answerFor(line string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.question == nil || d.phase != domain.PhaseQuestionActive {
		return "", false
	}
	return answerForLetter(line, *d.question)
}

func printQuestion(out io.Writer, q domain.Question) {
	fmt.Fprintf(out, "\n%s (%ds)\n", q.Text, q.TimeLimitSeconds)
	for i, a := range q.Answers {
		fmt.Fprintf(out, "  %c. %s\n", 'A'+i, a.Text)
	}
	if len(q.Answers) > 0 {
		fmt.Fprintf(out, "Your answer (A-%c): ", 'A'+len(q.Answers)-1)
	}
}

func answerForLetter(line string, q domain.Question) (string, bool) {
	answer := strings.ToUpper(strings.TrimSpace(line))
	if len(answer) != 1 || len(q.Answers) == 0 {
		return "", false
	}
	idx := int(answer[0]) - 'A'
	if idx < 0 || idx >= len(q.Answers) {
		return "", false
	}
	return q.Answers[idx].ID, true
}

func describeAnswer(q *domain.Question, answerID string) string {
	if answerID == domain.NoAnswerID {
		return "time ran out"
	}
	if q != nil {
		for i, a := range q.Answers {
			if a.ID == answerID {
				return fmt.Sprintf("%c. %s", 'A'+i, a.Text)
			}
		}
	}
	return answerID
}

func formatLeaderboard(snap session.Snapshot) string {
	if !snap.LeaderboardReady {
		return ""
	}
	if len(snap.Leaderboard) == 0 {
		return "Leaderboard: no scores yet\n"
	}
	var b strings.Builder
	b.WriteString("Leaderboard:\n")
	for _, e := range snap.Leaderboard {
		marker := " "
		if snap.Me != nil && e.Identity() == snap.Me.Identity() {
			marker = "*"
		}
		fmt.Fprintf(&b, " %s%2d. %-16s %d\n", marker, e.Rank, e.Username, e.Score)
	}
	return b.String()
}
