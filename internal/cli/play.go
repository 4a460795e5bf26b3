package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"live-quiz-client/internal/app"
	"live-quiz-client/internal/config"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/session"
)

type playOptions struct {
	quizID    string
	user      string
	serverURL string
}

// NewPlayCmd joins a live quiz and plays it in the terminal.
func NewPlayCmd(root *rootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a live quiz and answer questions from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), root.configPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.quizID, "quiz", "", "quiz id to join")
	cmd.Flags().StringVar(&opts.user, "user", "", "participant name")
	cmd.Flags().StringVar(&opts.serverURL, "server", "", "quiz server url (overrides config)")
	_ = cmd.MarkFlagRequired("quiz")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runPlay(ctx context.Context, in io.Reader, out io.Writer, configPath string, opts *playOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	serverURL := opts.serverURL
	if serverURL == "" {
		serverURL = cfg.Server.URL
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, closeResults, err := resultRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeResults()

	player := app.NewPlayer(wsConns(serverURL, connConfig(cfg)), results, reconnectPolicy(cfg))
	view := newDisplay(out)
	var current atomic.Pointer[session.Engine]

	g, gctx := errgroup.WithContext(ctx)
	playCtx, finish := context.WithCancel(gctx)
	var result domain.SessionResult

	g.Go(func() error {
		defer finish()
		res, err := player.Play(playCtx, sessionConfig(cfg, opts.quizID, opts.user), func(engine *session.Engine) {
			current.Store(engine)
			g.Go(func() error {
				view.watch(engine)
				return nil
			})
		})
		result = res
		return err
	})
	g.Go(func() error {
		return readAnswers(playCtx, in, out, view, &current)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(out, "\nLeft the quiz.")
		return nil
	}
	printResult(out, result)
	return nil
}

// readAnswers turns typed letters into submissions for the current question.
func readAnswers(ctx context.Context, in io.Reader, out io.Writer, view *display, current *atomic.Pointer[session.Engine]) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// Input closed: keep playing, unanswered questions time out.
				<-ctx.Done()
				return nil
			}
			engine := current.Load()
			if engine == nil {
				continue
			}
			answerID, ok := view.answerFor(line)
			if !ok {
				fmt.Fprintln(out, "No open question for that answer.")
				continue
			}
			if err := engine.Submit(ctx, answerID); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(out, "Could not submit: %v\n", err)
			}
		}
	}
}

func printResult(out io.Writer, r domain.SessionResult) {
	fmt.Fprintf(out, "\nQuiz %s finished for %s\n", r.QuizID, r.Participant)
	if r.Rank > 0 {
		fmt.Fprintf(out, "  rank:    %d\n", r.Rank)
	}
	fmt.Fprintf(out, "  score:   %d\n", r.Score)
	fmt.Fprintf(out, "  correct: %d/%d\n", r.Correct, r.Answered)
	if r.Message != "" {
		fmt.Fprintf(out, "  %s\n", r.Message)
	}
}
