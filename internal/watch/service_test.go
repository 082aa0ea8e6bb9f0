package watch

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/pipeline"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	opts  pipeline.Options
	runs  chan int
	err   error
}

func (f *fakeRunner) IngestAll(_ context.Context, agents []model.Agent, opts pipeline.Options) ([]pipeline.IngestResult, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.opts = opts
	f.mu.Unlock()
	if f.runs != nil {
		f.runs <- n
	}
	res := make([]pipeline.IngestResult, len(agents))
	for i, a := range agents {
		res[i] = pipeline.IngestResult{Agent: a, SessionsIngested: 1, MessagesIngested: 3}
	}
	return res, f.err
}

func waitRun(t *testing.T, runs <-chan int, want int) {
	t.Helper()
	select {
	case n := <-runs:
		if n != want {
			t.Fatalf("run %d, want %d", n, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for run %d", want)
	}
}

func TestRun_IngestsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	runner := &fakeRunner{runs: make(chan int, 4)}
	svc := New(runner, Config{
		Agents:   []model.Agent{model.AgentClaude},
		Roots:    map[model.Agent]string{model.AgentClaude: root},
		Debounce: 200 * time.Millisecond,
		Interval: time.Hour,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitRun(t, runner.runs, 1)

	// A new project folder is picked up and its files trigger a run.
	project := filepath.Join(root, "-home-u-app")
	if err := os.Mkdir(project, 0o755); err != nil {
		t.Fatal(err)
	}
	waitRun(t, runner.runs, 2)

	if err := os.WriteFile(filepath.Join(project, "s1.jsonl"), []byte("{}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitRun(t, runner.runs, 3)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := svc.Status()
	if st.RunCount != 3 || st.TotalSessions != 3 || st.WatchedDirs != 2 {
		t.Errorf("status = %+v", st)
	}
	if runner.opts.Roots[model.AgentClaude] != root {
		t.Errorf("runner roots = %v", runner.opts.Roots)
	}
	events := svc.Events()
	if len(events) != 3 || events[0].Trigger != "initial" || events[2].Trigger != "fs" {
		t.Errorf("events = %+v", events)
	}
}

func TestRunOnce_RecordsErrors(t *testing.T) {
	runner := &fakeRunner{err: errors.New("store locked")}
	svc := New(runner, Config{Agents: []model.Agent{model.AgentCodex}}, nil)

	svc.runOnce(context.Background(), "interval")

	st := svc.Status()
	if st.LastError != "store locked" || st.RunCount != 1 {
		t.Errorf("status = %+v", st)
	}
	if ev := svc.Events(); len(ev) != 1 || ev[0].Error != "store locked" || ev[0].ID != 1 {
		t.Errorf("events = %+v", ev)
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	svc := New(&fakeRunner{}, Config{EventsBuffer: 2}, nil)

	svc.publishEvent(Event{})
	svc.publishEvent(Event{})
	svc.publishEvent(Event{})

	events := svc.Events()
	if len(events) != 2 {
		t.Fatalf("events len = %d, want 2", len(events))
	}
	if events[0].ID != 2 || events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", events[0].ID, events[1].ID)
	}
}

func TestStatusHandler(t *testing.T) {
	svc := New(&fakeRunner{}, Config{Debounce: time.Second}, nil)

	rec := httptest.NewRecorder()
	svc.handleStatus(rec, httptest.NewRequest("GET", "/v1/status", nil))
	if !strings.Contains(rec.Body.String(), `"debounce_ms":1000`) {
		t.Errorf("status body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	svc.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Body.String() != "ok\n" {
		t.Errorf("health body = %q", rec.Body.String())
	}
}
