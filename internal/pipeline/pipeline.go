// Package pipeline runs one brief generation: fetch every source, summarize,
// write the brief and advance the run state only when nothing failed.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"intelbrief.app/brief/common/id"
	"intelbrief.app/brief/common/logger"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/model"
)

type State string

const (
	StateInit          State = "INIT"
	StateFetching      State = "FETCHING"
	StateAggregated    State = "AGGREGATED"
	StateAllEmpty      State = "ALL_EMPTY"
	StateSummarizing   State = "SUMMARIZING"
	StateWritten       State = "WRITTEN"
	StateStateAdvanced State = "STATE_ADVANCED"
	StateStateHeld     State = "STATE_HELD"
)

type Summarizer interface {
	Summarize(ctx context.Context, results model.Results, windowHours float64, priorContext string) (string, error)
}

type BriefWriter interface {
	Write(ctx context.Context, summary string, results model.Results, runID int64) (string, error)
	LoadRecentContext(ctx context.Context, days int) string
}

type RunState interface {
	Read(ctx context.Context) time.Time
	Write(t time.Time) error
}

type Config struct {
	// ContextDays is how many prior briefs to pass to the summarizer.
	ContextDays int
	// ConnectorTimeout bounds each connector's fetch; zero means no limit.
	ConnectorTimeout time.Duration
}

// Outcome describes a finished or aborted run.
type Outcome struct {
	RunID     int64
	Window    model.Window
	Results   model.Results
	BriefPath string
	// Trail lists every state the run passed through, ending with the
	// final one.
	Trail []State
}

func (o *Outcome) State() State {
	if len(o.Trail) == 0 {
		return StateInit
	}
	return o.Trail[len(o.Trail)-1]
}

func (o *Outcome) Visited(s State) bool {
	for _, t := range o.Trail {
		if t == s {
			return true
		}
	}
	return false
}

func (o *Outcome) to(s State) {
	o.Trail = append(o.Trail, s)
}

type Orchestrator struct {
	cfg        Config
	connectors []connector.Connector
	summarizer Summarizer
	writer     BriefWriter
	state      RunState
	out        io.Writer
	now        func() time.Time
	newRunID   func() int64
}

type Option func(*Orchestrator)

// WithOutput sets where progress lines are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRunID(fn func() int64) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// New builds an orchestrator. Connectors run in the order given.
func New(cfg Config, connectors []connector.Connector, summarizer Summarizer, writer BriefWriter, state RunState, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		connectors: connectors,
		summarizer: summarizer,
		writer:     writer,
		state:      state,
		out:        os.Stdout,
		now:        time.Now,
		newRunID:   id.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one pass. Connector failures never abort the run; they hold
// the run state back so the next run covers the same window again.
// Summarizer and writer failures abort and are returned.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{RunID: o.newRunID()}
	out.to(StateInit)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &out.RunID,
		Component: "pipeline",
	})

	sc := logger.StartSpan(ctx, "pipeline.run", trace.WithAttributes(attribute.Int64("run_id", out.RunID)))
	defer sc.End()
	ctx = sc.Context()

	now := o.now()
	out.Window = model.NewWindow(o.state.Read(ctx), now)

	slog.InfoContext(ctx, "run started",
		"since", out.Window.Since.Format(time.RFC3339),
		"connectors", len(o.connectors))
	fmt.Fprintf(o.out, "Fetching updates since %s\n", out.Window.Since.Format("2006-01-02 15:04"))

	out.to(StateFetching)
	out.Results = o.fetchAll(ctx, out.Window)

	total := out.Results.Total()
	if total == 0 {
		out.to(StateAllEmpty)
		fmt.Fprintln(o.out, "No new updates.")
		slog.InfoContext(ctx, "no updates in window", "any_failed", out.Results.AnyFailed())
		return out, o.finish(ctx, out, now)
	}
	out.to(StateAggregated)

	prior := ""
	if o.cfg.ContextDays > 0 {
		prior = o.writer.LoadRecentContext(ctx, o.cfg.ContextDays)
	}

	out.to(StateSummarizing)
	fmt.Fprintf(o.out, "Summarizing %d updates...\n", total)
	summary, err := o.summarizer.Summarize(ctx, out.Results, out.Window.Hours(), prior)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "summarization failed", "error", err)
		return out, err
	}

	path, err := o.writer.Write(ctx, summary, out.Results, out.RunID)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "writing brief failed", "error", err)
		return out, err
	}
	out.BriefPath = path
	out.to(StateWritten)
	fmt.Fprintf(o.out, "Brief written to: %s\n", path)

	return out, o.finish(ctx, out, now)
}

// finish advances the run state to now when every connector succeeded.
func (o *Orchestrator) finish(ctx context.Context, out *Outcome, now time.Time) error {
	if out.Results.AnyFailed() {
		out.to(StateStateHeld)
		fmt.Fprintln(o.out, "One or more sources failed; run state not advanced.")
		slog.WarnContext(ctx, "run state held back after source failures")
		return nil
	}

	if err := o.state.Write(now); err != nil {
		out.to(StateStateHeld)
		return domain.NewWriteError("write_run_state", err)
	}
	out.to(StateStateAdvanced)
	slog.InfoContext(ctx, "run state advanced", "last_run", now.Format(time.RFC3339))
	return nil
}

func (o *Orchestrator) fetchAll(ctx context.Context, window model.Window) model.Results {
	results := make(model.Results, 0, len(o.connectors))
	for _, c := range o.connectors {
		results = append(results, o.fetch(ctx, c, window))
	}
	return results
}

func (o *Orchestrator) fetch(ctx context.Context, c connector.Connector, window model.Window) model.SourceResult {
	source := c.Source()
	ctx = logger.WithLogFields(ctx, logger.LogFields{Source: logger.Ptr(string(source))})

	sc := logger.StartSpan(ctx, "connector.fetch", trace.WithAttributes(attribute.String("source", string(source))))
	defer sc.End()
	ctx = sc.Context()

	if o.cfg.ConnectorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ConnectorTimeout)
		defer cancel()
	}

	start := time.Now()
	updates, err := fetchSafe(ctx, c, window)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "connector failed",
			"error", logger.Truncate(err.Error(), connector.MaxLoggedErrorLen),
			"kind", domain.KindOf(err),
			"duration_ms", time.Since(start).Milliseconds())
		fmt.Fprintf(o.out, "  [%s] failed: %v\n", source, err)
		return model.SourceResult{Source: source, Updates: []model.Update{}, Err: err}
	}

	if updates == nil {
		updates = []model.Update{}
	}
	sc.Span().SetAttributes(attribute.Int("updates", len(updates)))
	slog.InfoContext(ctx, "connector fetched",
		"updates", len(updates),
		"duration_ms", time.Since(start).Milliseconds())
	fmt.Fprintf(o.out, "  [%s] %d updates\n", source, len(updates))

	return model.SourceResult{Source: source, Updates: updates}
}

// fetchSafe turns a connector panic into a connector failure.
func fetchSafe(ctx context.Context, c connector.Connector, window model.Window) (updates []model.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in connector", "panic", r)
			updates = nil
			err = connector.Fail(c.Source(), "panic", fmt.Errorf("panic: %v", r))
		}
	}()
	return c.FetchUpdates(ctx, window)
}
