package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/smriti/internal/cli"
	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/source"
	"github.com/theirongolddev/smriti/internal/store"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show supported agents, their log roots and stored counts",
	Args:  cobra.NoArgs,
	RunE:  runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(_ *cobra.Command, _ []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	counts, err := db.CountByAgent(context.Background())
	if err != nil {
		return err
	}
	stored := make(map[model.Agent]store.AgentCount, len(counts))
	for _, c := range counts {
		stored[c.Agent] = c
	}

	all := source.Agents()
	enabled := make(map[model.Agent]bool)
	for _, a := range cfg.EnabledAgents() {
		enabled[a] = true
	}
	roots := agentRoots(all)

	rows := make([][]string, 0, len(all))
	for _, a := range all {
		state := "disabled"
		if enabled[a] {
			state = "enabled"
		}
		root := roots[a]
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			root += " (missing)"
		}
		n := stored[a]
		rows = append(rows, []string{
			string(a),
			state,
			root,
			cli.FormatNumber(int64(n.Sessions)),
			cli.FormatNumber(int64(n.Messages)),
		})
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:    "AGENTS",
		Headers:  []string{"Agent", "State", "Log root", "Sessions", "Messages"},
		Rows:     rows,
		LeftCols: 3,
	}))
	fmt.Println()
	fmt.Println(cli.RenderKV("Database", cfg.DatabasePath(), 8))
	return nil
}
