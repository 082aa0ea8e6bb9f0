package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/smriti/internal/cli"
	"github.com/theirongolddev/smriti/internal/config"
	"github.com/theirongolddev/smriti/internal/watch"
)

var (
	flagWatchAddr     string
	flagWatchDebounce time.Duration
	flagWatchInterval time.Duration
	flagWatchSettle   time.Duration
	flagWatchPIDFile  string
)

var watchCmd = &cobra.Command{
	Use:   "watch [agent...]",
	Short: "Keep ingesting as agent logs change",
	Long: "Run ingestion once, then again whenever the agents' log roots change.\n" +
		"With --addr, status is served at /healthz, /v1/status and /v1/events.",
	RunE: runWatch,
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running watcher's status",
	Args:  cobra.NoArgs,
	RunE:  runWatchStatus,
}

var watchStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watcher",
	Args:  cobra.NoArgs,
	RunE:  runWatchStop,
}

func init() {
	watchCmd.PersistentFlags().StringVar(&flagWatchAddr, "addr", "", "Status listen address, e.g. 127.0.0.1:8787")
	watchCmd.PersistentFlags().StringVar(&flagWatchPIDFile, "pid-file", filepath.Join(config.DataDir(), "watch.pid"), "PID file path")
	watchCmd.Flags().DurationVar(&flagWatchDebounce, "debounce", 2*time.Second, "Quiet period before a run")
	watchCmd.Flags().DurationVar(&flagWatchInterval, "interval", 5*time.Minute, "Run at least this often")
	watchCmd.Flags().DurationVar(&flagWatchSettle, "settle", time.Minute, "Skip sessions modified within this window")
	watchCmd.Flags().IntVarP(&flagWorkers, "workers", "w", 0, "Parallel sessions (default from config)")
	watchCmd.Flags().BoolVar(&flagNoSubagents, "no-subagents", false, "Exclude Claude subagent sessions")

	watchCmd.AddCommand(watchStatusCmd)
	watchCmd.AddCommand(watchStopCmd)
	rootCmd.AddCommand(watchCmd)
}

type watchState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

func runWatch(_ *cobra.Command, args []string) error {
	agents, err := selectAgents(args)
	if err != nil {
		return err
	}
	if err := ensureNotRunning(flagWatchPIDFile); err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := os.MkdirAll(filepath.Dir(flagWatchPIDFile), 0o750); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	st := watchState{PID: os.Getpid(), Addr: flagWatchAddr, StartedAt: time.Now()}
	if err := writeState(flagWatchPIDFile, st); err != nil {
		return err
	}
	defer func() { _ = os.Remove(flagWatchPIDFile) }()

	opts := ingestOptions(agents)
	opts.SettleFor = flagWatchSettle
	svc := watch.New(newIngester(db), watch.Config{
		Agents:   agents,
		Roots:    opts.Roots,
		Options:  opts,
		Debounce: flagWatchDebounce,
		Interval: flagWatchInterval,
		Addr:     flagWatchAddr,
	}, logger)

	if !flagQuiet {
		for _, a := range agents {
			fmt.Printf("  Watching %s: %s\n", a, opts.Roots[a])
		}
		if flagWatchAddr != "" {
			fmt.Printf("  Status: http://%s/v1/status\n", flagWatchAddr)
		}
		fmt.Printf("  Stop with: smriti watch stop --pid-file %s\n", flagWatchPIDFile)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runWatchStatus(_ *cobra.Command, _ []string) error {
	st, err := readState(flagWatchPIDFile)
	if err != nil {
		fmt.Println("  Watcher: not running")
		return nil
	}
	if !processAlive(st.PID) {
		fmt.Printf("  Watcher: stale pid file (pid %d not alive)\n", st.PID)
		return nil
	}

	const w = 12
	fmt.Println(cli.RenderKV("PID", strconv.Itoa(st.PID), w))
	fmt.Println(cli.RenderKV("Started", cli.FormatTime(st.StartedAt), w))

	addr := st.Addr
	if flagWatchAddr != "" {
		addr = flagWatchAddr
	}
	if addr == "" {
		fmt.Println(cli.RenderKV("API", "disabled (start with --addr)", w))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := fetchStatus(ctx, "http://"+addr+"/v1/status")
	if err != nil {
		fmt.Println(cli.RenderKV("API", "unreachable ("+err.Error()+")", w))
		return nil
	}

	lastRun := "pending"
	if !status.LastRunAt.IsZero() {
		lastRun = cli.FormatTime(status.LastRunAt)
	}
	fmt.Println(cli.RenderKV("Last run", lastRun, w))
	fmt.Println(cli.RenderKV("Runs", cli.FormatNumber(status.RunCount), w))
	fmt.Println(cli.RenderKV("Watched dirs", cli.FormatNumber(int64(status.WatchedDirs)), w))
	fmt.Println(cli.RenderKV("Sessions", cli.FormatNumber(int64(status.TotalSessions)), w))
	fmt.Println(cli.RenderKV("Messages", cli.FormatNumber(int64(status.TotalMessages)), w))
	if status.LastError != "" {
		fmt.Println(cli.RenderError("Last error: " + status.LastError))
	}
	return nil
}

func fetchStatus(ctx context.Context, url string) (watch.Status, error) {
	var st watch.Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("malformed response: %w", err)
	}
	return st, nil
}

func runWatchStop(_ *cobra.Command, _ []string) error {
	st, err := readState(flagWatchPIDFile)
	if err != nil {
		return errors.New("watcher is not running")
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return fmt.Errorf("find watcher process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal watcher process: %w", err)
	}

	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(st.PID) {
			_ = os.Remove(flagWatchPIDFile)
			fmt.Printf("  Stopped watcher (pid %d)\n", st.PID)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}
	return fmt.Errorf("watcher (pid %d) did not exit in time", st.PID)
}

// ensureNotRunning fails when a live process owns pidFile and clears a
// stale one.
func ensureNotRunning(pidFile string) error {
	st, err := readState(pidFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && processAlive(st.PID) {
		return fmt.Errorf("watcher already running (pid %d)", st.PID)
	}
	_ = os.Remove(pidFile)
	return nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func writeState(path string, st watchState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func readState(path string) (watchState, error) {
	var st watchState
	//nolint:gosec // pid path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, err
	}
	if st.PID <= 0 {
		return st, fmt.Errorf("invalid pid in %s", path)
	}
	return st, nil
}
