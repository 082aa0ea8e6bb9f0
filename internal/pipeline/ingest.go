// Package pipeline runs ingestion: it discovers agent transcripts, assembles
// them into structured messages and writes messages, derived facts and
// session costs to the stores.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/smriti/internal/assemble"
	"github.com/theirongolddev/smriti/internal/classify"
	"github.com/theirongolddev/smriti/internal/config"
	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/projectpath"
	"github.com/theirongolddev/smriti/internal/source"
)

// ContentStore persists messages and session registrations.
// RegisterSession must add cost to the session's totals and record the
// session in one atomic write: either both land or neither does.
type ContentStore interface {
	AddMessage(ctx context.Context, sessionID string, role model.Role, plainText string, opts model.MessageOptions) (model.MessageRef, error)
	ExistingSessionIDs(ctx context.Context) (map[string]struct{}, error)
	RegisterSession(ctx context.Context, r model.SessionRecord, cost model.SessionCost) error
}

// FactStore persists facts derived from message blocks. Inserts are
// idempotent per (message, block).
type FactStore interface {
	InsertToolUsage(ctx context.Context, f model.ToolUsage) error
	InsertFileOperation(ctx context.Context, f model.FileOperationFact) error
	InsertCommand(ctx context.Context, f model.CommandFact) error
	InsertGitOperation(ctx context.Context, f model.GitOperationFact) error
	InsertError(ctx context.Context, f model.ErrorFact) error
}

// ErrUnknownAgent is returned for agents without an adapter.
var ErrUnknownAgent = source.ErrUnknownAgent

// ProgressFunc is called after each session is processed.
// current is the number of sessions handled so far, total is the count of
// sessions that were not already known.
type ProgressFunc func(agent model.Agent, current, total int)

// Options configures one ingestion run.
type Options struct {
	// Roots overrides the log root per agent; missing agents use the
	// adapter's default location.
	Roots map[model.Agent]string
	// ProjectsRoot is the directory project ids are derived against.
	ProjectsRoot     string
	Workers          int
	IncludeSubagents bool
	// Exists checks directories during project path resolution. Defaults
	// to projectpath.DirExists.
	Exists   projectpath.ExistsFunc
	Progress ProgressFunc
	// SettleFor defers sessions whose file changed more recently than
	// this, so transcripts still being written are not registered early.
	SettleFor time.Duration
}

// IngestResult summarizes one agent's ingestion run.
type IngestResult struct {
	Agent            model.Agent
	SessionsFound    int
	SessionsIngested int
	MessagesIngested int
	Skipped          int // sessions already known or without messages
	Deferred         int // sessions left for a later run (see SettleFor)
	Degraded         int // messages with unrecognized content
	ParseErrors      int // malformed lines skipped across all sessions
	Errors           []SessionError
}

// SessionError records a session that failed and was left unregistered.
type SessionError struct {
	SessionID string
	Path      string
	Err       error
}

func (e SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e SessionError) Unwrap() error { return e.Err }

// Ingester moves agent transcripts into the stores.
type Ingester struct {
	content   ContentStore
	facts     FactStore
	assembler *assemble.Assembler
	pricer    *config.Pricer
	log       *zap.Logger

	newAdapter func(model.Agent, source.Options) (source.Adapter, error)
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.log = l }
}

// WithPricer sets the pricing used for SessionCost estimates.
func WithPricer(p *config.Pricer) Option {
	return func(in *Ingester) { in.pricer = p }
}

// WithRules shares a compiled rule set with the classifier.
func WithRules(r *classify.Rules) Option {
	return func(in *Ingester) { in.assembler = assemble.New(classify.New(r)) }
}

// NewIngester returns an Ingester writing to the given stores.
func NewIngester(content ContentStore, facts FactStore, opts ...Option) *Ingester {
	in := &Ingester{
		content:    content,
		facts:      facts,
		log:        zap.NewNop(),
		newAdapter: source.New,
	}
	for _, o := range opts {
		o(in)
	}
	if in.assembler == nil {
		in.assembler = assemble.New(classify.New(classify.NewRules()))
	}
	if in.pricer == nil {
		in.pricer = config.NewPricer(config.PricingOverrides{})
	}
	return in
}

// IngestAll runs Ingest for each agent in turn. Per-agent failures are
// joined into the returned error; results are returned for every agent
// that ran.
func (in *Ingester) IngestAll(ctx context.Context, agents []model.Agent, opts Options) ([]IngestResult, error) {
	var (
		results []IngestResult
		errs    []error
	)
	for _, agent := range agents {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := in.Ingest(ctx, agent, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", agent, err))
			if errors.Is(err, ErrUnknownAgent) {
				continue
			}
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Ingest discovers the agent's sessions and ingests every one that is not
// already known. Session failures are collected in the result and never
// abort the batch. The returned error covers failures of the run itself:
// an unknown agent, an unreadable store or log root, or cancellation.
func (in *Ingester) Ingest(ctx context.Context, agent model.Agent, opts Options) (IngestResult, error) {
	res := IngestResult{Agent: agent}

	adapter, err := in.newAdapter(agent, source.Options{IncludeSubagents: opts.IncludeSubagents})
	if err != nil {
		return res, err
	}

	// Known sessions are read once per run.
	known, err := in.content.ExistingSessionIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("reading known sessions: %w", err)
	}

	root := opts.Roots[agent]
	if root == "" {
		home, _ := os.UserHomeDir()
		root = adapter.DefaultRoot(home)
	}
	files, err := adapter.Discover(root)
	if err != nil {
		return res, fmt.Errorf("scanning %s: %w", root, err)
	}
	res.SessionsFound = len(files)

	var todo []source.DiscoveredFile
	now := time.Now()
	for _, df := range files {
		if _, ok := known[df.SessionID]; ok {
			res.Skipped++
			continue
		}
		if opts.SettleFor > 0 && !settled(df.Path, now, opts.SettleFor) {
			res.Deferred++
			continue
		}
		todo = append(todo, df)
	}

	log := in.log.With(zap.String("agent", string(agent)))
	log.Debug("discovered sessions",
		zap.String("root", root),
		zap.Int("found", len(files)),
		zap.Int("new", len(todo)))

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	exists := opts.Exists
	if exists == nil {
		exists = projectpath.DirExists
	}

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(workers)

	for _, df := range todo {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := in.ingestIsolated(ctx, adapter, df, opts.ProjectsRoot, exists)

			mu.Lock()
			defer mu.Unlock()
			res.ParseErrors += out.parseErrors
			res.Degraded += out.degraded
			switch {
			case err != nil:
				res.Errors = append(res.Errors, SessionError{SessionID: df.SessionID, Path: df.Path, Err: err})
				log.Warn("session failed",
					zap.String("session", df.SessionID),
					zap.String("path", df.Path),
					zap.Error(err))
			case out.empty:
				res.Skipped++
			default:
				res.SessionsIngested++
				res.MessagesIngested += out.created
			}
			done++
			if opts.Progress != nil {
				opts.Progress(agent, done, len(todo))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].SessionID < res.Errors[j].SessionID })

	log.Info("ingest complete",
		zap.Int("found", res.SessionsFound),
		zap.Int("ingested", res.SessionsIngested),
		zap.Int("messages", res.MessagesIngested),
		zap.Int("skipped", res.Skipped),
		zap.Int("deferred", res.Deferred),
		zap.Int("degraded", res.Degraded),
		zap.Int("parse_errors", res.ParseErrors),
		zap.Int("errors", len(res.Errors)))

	return res, ctx.Err()
}

// ingestIsolated runs ingestSession, turning a panic into that session's
// error so the rest of the batch keeps going.
func (in *Ingester) ingestIsolated(ctx context.Context, adapter source.Adapter, df source.DiscoveredFile, projectsRoot string, exists projectpath.ExistsFunc) (out sessionOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return in.ingestSession(ctx, adapter, df, projectsRoot, exists)
}

// settled reports whether path has not been modified within d of now.
// Unreadable files count as settled so the session read reports the error.
func settled(path string, now time.Time, d time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return now.Sub(info.ModTime()) >= d
}
