package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/infra/redis"
	"live-quiz-client/internal/session"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func sampleQuestion() domain.Question {
	return domain.Question{
		ID:               "q1",
		Text:             "What is 2 + 2?",
		TimeLimitSeconds: 10,
		Answers: []domain.AnswerOption{
			{ID: "o1", Text: "3"},
			{ID: "o2", Text: "4"},
			{ID: "o3", Text: "5"},
		},
	}
}

func TestAnswerForLetter(t *testing.T) {
	q := sampleQuestion()
	cases := map[string]string{"a": "o1", " B \n": "o2", "C": "o3"}
	for in, want := range cases {
		got, ok := answerForLetter(in, q)
		if !ok || got != want {
			t.Fatalf("letter %q: expected %s, got %s ok=%v", in, want, got, ok)
		}
	}
	for _, in := range []string{"", "D", "AB", "1"} {
		if _, ok := answerForLetter(in, q); ok {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestDisplayRendersQuestionAndLeaderboard(t *testing.T) {
	var out bytes.Buffer
	view := newDisplay(&out)
	q := sampleQuestion()
	me := domain.LeaderboardEntry{Rank: 2, Username: "alice", Score: 1}

	view.render(session.Snapshot{
		Phase:     domain.PhaseQuestionActive,
		Question:  &q,
		Remaining: 10,
		Ticking:   true,
		Leaderboard: []domain.LeaderboardEntry{
			{Rank: 1, Username: "bob", Score: 2},
			me,
		},
		LeaderboardReady: true,
		Me:               &me,
	})
	text := out.String()
	for _, want := range []string{"What is 2 + 2? (10s)", "B. 4", "Your answer (A-C)", "* 2. alice"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
	if id, ok := view.answerFor("b"); !ok || id != "o2" {
		t.Fatalf("expected letter B to map to o2, got %s ok=%v", id, ok)
	}

	out.Reset()
	view.render(session.Snapshot{Phase: domain.PhaseQuestionActive, Question: &q, Remaining: 4, Ticking: true, LeaderboardReady: true})
	if text := out.String(); !strings.Contains(text, "4s left") || !strings.Contains(text, "no scores yet") {
		t.Fatalf("expected countdown and empty leaderboard, got %q", text)
	}

	out.Reset()
	view.render(session.Snapshot{Phase: domain.PhaseAnswerPending, Question: &q, Selection: domain.NoAnswerID})
	if !strings.Contains(out.String(), "time ran out") {
		t.Fatalf("expected timeout message, got %q", out.String())
	}
	if _, ok := view.answerFor("a"); ok {
		t.Fatalf("expected no answer mapping outside an active question")
	}

	out.Reset()
	view.notify(domain.Notification{Message: "Nice!", Severity: domain.SeveritySuccess})
	if out.String() != "[+] Nice!\n" {
		t.Fatalf("unexpected notification line %q", out.String())
	}
}

func TestResultsCommandReadsRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := redis.NewResultStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), time.Hour)
	if err := store.Save(context.Background(), domain.SessionResult{
		QuizID: "quiz-1", Participant: "alice", Rank: 1, Score: 3, Answered: 3, Correct: 3, Message: "Done",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("QUIZ_SERVER_URL", "")

	out := runCLI(t, "results", "--quiz", "quiz-1", "--user", "alice")
	if !strings.Contains(out, "score:   3") || !strings.Contains(out, "correct: 3/3") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out = runCLI(t, "results", "--quiz", "quiz-1", "--user", "bob")
	if !strings.Contains(out, "No stored result for bob") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out = runCLI(t, "results", "--quiz", "quiz-1")
	if !strings.Contains(out, "alice") {
		t.Fatalf("expected listing to include alice:\n%s", out)
	}
}

func TestPlayCommandAnswersFromInput(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("QUIZ_SERVER_URL", "")

	submitted := make(chan string, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"question","data":{"id":"q1","text":"What is 2 + 2?","time_limit":30,
			"answers":[{"id":"o1","text":"3"},{"id":"o2","text":"4"}]}}`))

		var frame struct {
			Type string            `json:"type"`
			Data map[string]string `json:"data"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		submitted <- frame.Data["answer_id"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"answer_result","data":{"correct":true,"message":"Nice!"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"leaderboard_update","data":[{"rank":1,"username":"alice","score":1}]}`))
		if err := conn.ReadJSON(&frame); err != nil || frame.Type != "request_next_question" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"quiz_complete","data":{"message":"Done"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("session:\n  advance_delay: 0s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	stdin, typer := io.Pipe()
	defer typer.Close()
	out := &syncBuffer{}
	go func() {
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			if strings.Contains(out.String(), "Your answer") {
				_, _ = io.WriteString(typer, "B\n")
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "play", "--quiz", "quiz-1", "--user", "alice", "--server", srv.URL})
	cmd.SetIn(stdin)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("play: %v\n%s", err, out.String())
	}

	select {
	case answer := <-submitted:
		if answer != "o2" {
			t.Fatalf("expected o2 submitted, got %s", answer)
		}
	default:
		t.Fatalf("server never received a submission")
	}
	text := out.String()
	for _, want := range []string{"[+] Nice!", "rank:    1", "correct: 1/1"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}
