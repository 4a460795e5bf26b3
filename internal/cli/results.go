package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"live-quiz-client/internal/app"
	"live-quiz-client/internal/config"
	"live-quiz-client/internal/domain"
)

// NewResultsCmd shows stored session results.
func NewResultsCmd(root *rootOptions) *cobra.Command {
	var quizID, user string
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show stored results of finished quiz sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(cmd.Context(), cmd.OutOrStdout(), root.configPath, quizID, user)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	cmd.Flags().StringVar(&user, "user", "", "participant name (all participants when empty)")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

func runResults(ctx context.Context, out io.Writer, configPath, quizID, user string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	results, closeResults, err := resultRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeResults()

	player := app.NewPlayer(nil, results, app.ReconnectPolicy{})
	if user != "" {
		r, err := player.Result(ctx, quizID, user)
		if errors.Is(err, domain.ErrResultNotFound) {
			fmt.Fprintf(out, "No stored result for %s in quiz %s.\n", user, quizID)
			return nil
		}
		if err != nil {
			return err
		}
		printResult(out, r)
		return nil
	}

	list, err := player.Results(ctx, quizID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "No stored results for quiz %s.\n", quizID)
		return nil
	}
	fmt.Fprintf(out, "Results for quiz %s:\n", quizID)
	for _, r := range list {
		rank := "-"
		if r.Rank > 0 {
			rank = fmt.Sprint(r.Rank)
		}
		fmt.Fprintf(out, "  %3s. %-16s score %d, correct %d/%d\n", rank, r.Participant, r.Score, r.Correct, r.Answered)
	}
	return nil
}
