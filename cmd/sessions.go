package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/smriti/internal/cli"
	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/store"
)

var (
	flagSessionsAgent string
	flagSessionsLimit int
	flagShowFiles     bool
	flagShowWidth     int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List ingested sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Forget sessions so the next ingest reads them again",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionsRm,
}

func init() {
	sessionsCmd.Flags().StringVarP(&flagSessionsAgent, "agent", "a", "", "Only this agent's sessions")
	sessionsCmd.Flags().IntVarP(&flagSessionsLimit, "limit", "l", 20, "Number of sessions to show (0 for all)")
	sessionsShowCmd.Flags().BoolVar(&flagShowFiles, "files", false, "List file operations instead of messages")
	sessionsShowCmd.Flags().IntVar(&flagShowWidth, "width", 120, "Maximum line width")

	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(_ *cobra.Command, _ []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	sessions, err := db.ListSessions(context.Background(), store.SessionFilter{
		Agent: model.Agent(flagSessionsAgent),
		Limit: flagSessionsLimit,
	})
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("\n  No sessions found. Run `smriti ingest` first.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSIONS  (showing %d)", len(sessions))))
	fmt.Println()

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		project := s.ProjectID
		if s.IsSubagent {
			project += " (sub)"
		}
		rows = append(rows, []string{
			cli.FormatTime(s.StartTime),
			string(s.Agent),
			cli.Truncate(project, 18),
			cli.Truncate(s.Title, 36),
			cli.FormatNumber(int64(s.MessageCount)),
			cli.FormatDuration(s.EndTime.Sub(s.StartTime)),
			cli.FormatTokens(s.Cost.InputTokens + s.Cost.OutputTokens + s.Cost.CacheTokens),
			cli.FormatCost(s.Cost.EstimatedCostUSD),
			s.SessionID,
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers:  []string{"Start", "Agent", "Project", "Title", "Msgs", "Duration", "Tokens", "Cost", "ID"},
		Rows:     rows,
		LeftCols: 4,
	}))
	return nil
}

func runSessionsShow(_ *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	id := args[0]

	if flagShowFiles {
		ops, err := db.FileOperations(ctx, id)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Printf("\n  No file operations for %s.\n", id)
			return nil
		}
		rows := make([][]string, 0, len(ops))
		for _, op := range ops {
			rows = append(rows, []string{string(op.Operation), op.Path, op.Project})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Headers:  []string{"Op", "Path", "Project"},
			Rows:     rows,
			LeftCols: 3,
		}))
		return nil
	}

	msgs, err := db.Messages(ctx, id)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no messages for session %s", id)
	}

	cost, err := db.SessionCost(ctx, id)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSION  %s", cli.Truncate(id, 36))))
	fmt.Println()
	for _, m := range msgs {
		fmt.Print(cli.RenderMessage(m, flagShowWidth))
	}
	if !cost.IsZero() {
		fmt.Println()
		fmt.Println(cli.RenderKV("Model", cost.Model, 8))
		fmt.Println(cli.RenderKV("Tokens", fmt.Sprintf("%s in / %s out / %s cache",
			cli.FormatTokens(cost.InputTokens), cli.FormatTokens(cost.OutputTokens), cli.FormatTokens(cost.CacheTokens)), 8))
		fmt.Println(cli.RenderKV("Cost", cli.FormatCost(cost.EstimatedCostUSD), 8))
	}
	return nil
}

func runSessionsRm(_ *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for _, id := range args {
		if err := db.DeleteSession(context.Background(), id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
		if !flagQuiet {
			fmt.Printf("  Removed %s\n", id)
		}
	}
	return nil
}
