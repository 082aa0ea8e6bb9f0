// Package watch keeps the stores current by re-running ingestion when agent
// log roots change.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/pipeline"
)

// Runner performs one ingestion pass. *pipeline.Ingester satisfies it.
type Runner interface {
	IngestAll(ctx context.Context, agents []model.Agent, opts pipeline.Options) ([]pipeline.IngestResult, error)
}

// Config controls the watcher.
type Config struct {
	Agents []model.Agent
	// Roots are the log roots to watch, keyed by agent. They are also
	// passed to the runner.
	Roots   map[model.Agent]string
	Options pipeline.Options
	// Debounce is how long the roots must stay quiet before a run.
	Debounce time.Duration
	// Interval forces a run even without file events, picking up sessions
	// deferred by Options.SettleFor.
	Interval     time.Duration
	Addr         string // optional status endpoint, e.g. 127.0.0.1:8787
	EventsBuffer int
}

// Event records one ingestion pass that changed something or failed.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Trigger   string    `json:"trigger"` // initial, fs, interval
	Sessions  int       `json:"sessions"`
	Messages  int       `json:"messages"`
	Deferred  int       `json:"deferred"`
	Errors    int       `json:"errors"`
	Error     string    `json:"error,omitempty"`
}

func (e Event) isQuiet() bool {
	return e.Sessions == 0 && e.Messages == 0 && e.Errors == 0 && e.Error == ""
}

// Status is served at /v1/status.
type Status struct {
	StartedAt      time.Time `json:"started_at"`
	LastRunAt      time.Time `json:"last_run_at"`
	RunCount       int64     `json:"run_count"`
	WatchedDirs    int       `json:"watched_dirs"`
	TotalSessions  int       `json:"total_sessions"`
	TotalMessages  int       `json:"total_messages"`
	LastError      string    `json:"last_error,omitempty"`
	EventCount     int       `json:"event_count"`
	DebounceMillis int64     `json:"debounce_ms"`
}

// Service runs ingestion whenever watched roots settle after a change.
type Service struct {
	cfg    Config
	runner Runner
	log    *zap.Logger

	mu            sync.RWMutex
	startedAt     time.Time
	lastRunAt     time.Time
	runCount      int64
	lastError     string
	totalSessions int
	totalMessages int
	watched       map[string]struct{}
	nextEventID   int64
	events        []Event
}

// New returns a watcher service with the provided config.
func New(runner Runner, cfg Config, log *zap.Logger) *Service {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.Options.Roots = cfg.Roots

	return &Service{
		cfg:       cfg,
		runner:    runner,
		log:       log,
		startedAt: time.Now(),
		watched:   make(map[string]struct{}),
	}
}

// Run ingests once, then watches the roots until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	for _, agent := range s.cfg.Agents {
		root := s.cfg.Roots[agent]
		if root == "" {
			continue
		}
		if err := s.addTree(w, root); err != nil {
			s.log.Warn("cannot watch log root",
				zap.String("agent", string(agent)),
				zap.String("root", root),
				zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	var server *http.Server
	if s.cfg.Addr != "" {
		server = s.startServer(errCh)
	}

	s.runOnce(ctx, "initial")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// debounce is armed by file events and fires once the roots are quiet.
	debounce := time.NewTimer(s.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if s.handleEvent(w, ev) {
				debounce.Reset(s.cfg.Debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			s.log.Warn("watch error", zap.Error(err))

		case <-debounce.C:
			s.runOnce(ctx, "fs")

		case <-ticker.C:
			s.runOnce(ctx, "interval")

		case err := <-errCh:
			return fmt.Errorf("watch status server: %w", err)
		}
	}
}

// handleEvent reports whether ev should trigger a run. New directories are
// added to the watch set so nested session folders are followed.
func (s *Service) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := s.addTree(w, ev.Name); err != nil {
				s.log.Debug("cannot watch new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
		}
	}
	s.log.Debug("log change", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
	return true
}

// addTree watches dir and every directory below it.
func (s *Service) addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		s.mu.Lock()
		_, seen := s.watched[path]
		s.mu.Unlock()
		if seen {
			return nil
		}
		if err := w.Add(path); err != nil {
			return err
		}
		s.mu.Lock()
		s.watched[path] = struct{}{}
		s.mu.Unlock()
		return nil
	})
}

func (s *Service) runOnce(ctx context.Context, trigger string) {
	results, err := s.runner.IngestAll(ctx, s.cfg.Agents, s.cfg.Options)
	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	ev := Event{Timestamp: now, Trigger: trigger}
	for _, r := range results {
		ev.Sessions += r.SessionsIngested
		ev.Messages += r.MessagesIngested
		ev.Deferred += r.Deferred
		ev.Errors += len(r.Errors)
	}
	if err != nil {
		ev.Error = err.Error()
		s.log.Warn("ingest run failed", zap.String("trigger", trigger), zap.Error(err))
	}

	s.mu.Lock()
	s.lastRunAt = now
	s.runCount++
	s.lastError = ev.Error
	s.totalSessions += ev.Sessions
	s.totalMessages += ev.Messages
	s.mu.Unlock()

	if !ev.isQuiet() {
		s.log.Info("ingested",
			zap.String("trigger", trigger),
			zap.Int("sessions", ev.Sessions),
			zap.Int("messages", ev.Messages),
			zap.Int("errors", ev.Errors))
		s.publishEvent(ev)
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}
}

// Status returns a snapshot of the watcher's state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:      s.startedAt,
		LastRunAt:      s.lastRunAt,
		RunCount:       s.runCount,
		WatchedDirs:    len(s.watched),
		TotalSessions:  s.totalSessions,
		TotalMessages:  s.totalMessages,
		LastError:      s.lastError,
		EventCount:     len(s.events),
		DebounceMillis: s.cfg.Debounce.Milliseconds(),
	}
}

// Events returns the retained events, oldest first.
func (s *Service) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

func (s *Service) startServer(errCh chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return server
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Status())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Events())
}
