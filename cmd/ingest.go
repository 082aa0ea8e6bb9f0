package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theirongolddev/smriti/internal/cli"
	"github.com/theirongolddev/smriti/internal/config"
	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/pipeline"
)

var (
	flagWorkers     int
	flagSettle      time.Duration
	flagNoSubagents bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [agent...]",
	Short: "Ingest new sessions from agent logs",
	Long: "Discover transcripts for the given agents (default: all enabled) and\n" +
		"store every session not ingested before.",
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVarP(&flagWorkers, "workers", "w", 0, "Parallel sessions (default from config)")
	ingestCmd.Flags().DurationVar(&flagSettle, "settle", 0, "Skip sessions modified within this window")
	ingestCmd.Flags().BoolVar(&flagNoSubagents, "no-subagents", false, "Exclude Claude subagent sessions")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(_ *cobra.Command, args []string) error {
	agents, err := selectAgents(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	in := newIngester(db)
	opts := ingestOptions(agents)
	if !flagQuiet {
		opts.Progress = func(agent model.Agent, current, total int) {
			if current%50 == 0 || current == total {
				fmt.Fprintf(os.Stderr, "\r  %s [%d/%d]", agent, current, total)
				if current == total {
					fmt.Fprintln(os.Stderr)
				}
			}
		}
	}

	start := time.Now()
	results, err := in.IngestAll(ctx, agents, opts)
	printIngestResults(results, time.Since(start))
	return err
}

func newIngester(db pipelineStore) *pipeline.Ingester {
	return pipeline.NewIngester(db, db,
		pipeline.WithLogger(logger),
		pipeline.WithPricer(config.NewPricer(cfg.Pricing)))
}

// pipelineStore is a store usable for both message content and facts.
type pipelineStore interface {
	pipeline.ContentStore
	pipeline.FactStore
}

// ingestOptions merges config and flags into pipeline options.
func ingestOptions(agents []model.Agent) pipeline.Options {
	workers := cfg.General.Workers
	if flagWorkers > 0 {
		workers = flagWorkers
	}
	opts := pipeline.Options{
		Roots:            agentRoots(agents),
		ProjectsRoot:     cfg.General.ProjectsRoot,
		Workers:          workers,
		IncludeSubagents: cfg.General.IncludeSubagents && !flagNoSubagents,
		SettleFor:        flagSettle,
	}
	logger.Debug("ingest options",
		zap.Any("roots", opts.Roots),
		zap.String("projects_root", opts.ProjectsRoot),
		zap.Int("workers", opts.Workers))
	return opts
}

func printIngestResults(results []pipeline.IngestResult, elapsed time.Duration) {
	if len(results) == 0 {
		return
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("INGEST  %s", cli.FormatDuration(elapsed))))
	fmt.Println()

	rows := make([][]string, 0, len(results))
	var failed []pipeline.SessionError
	for _, r := range results {
		rows = append(rows, []string{
			string(r.Agent),
			cli.FormatNumber(int64(r.SessionsFound)),
			cli.FormatNumber(int64(r.SessionsIngested)),
			cli.FormatNumber(int64(r.MessagesIngested)),
			cli.FormatNumber(int64(r.Skipped)),
			cli.FormatNumber(int64(r.Deferred)),
			cli.FormatNumber(int64(r.Degraded)),
			cli.FormatNumber(int64(len(r.Errors))),
		})
		failed = append(failed, r.Errors...)
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Agent", "Found", "New", "Messages", "Skipped", "Deferred", "Degraded", "Errors"},
		Rows:    rows,
	}))

	for _, e := range failed {
		fmt.Println(cli.RenderError(cli.Truncate(e.Error(), 120)))
	}
}
