package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"starload/internal/observability"
	"starload/internal/queries"
	"starload/internal/warehouse"
	"starload/pkg/errors"
)

// TxMode is the transaction boundary of a run
type TxMode string

const (
	// TxNone autocommits every statement
	TxNone TxMode = "none"
	// TxStage wraps each stage in its own transaction
	TxStage TxMode = "stage"
	// TxBatch wraps the whole run in one transaction
	TxBatch TxMode = "batch"
)

// ParseTxMode validates a transaction mode name
func ParseTxMode(s string) (TxMode, error) {
	switch m := TxMode(strings.ToLower(strings.TrimSpace(s))); m {
	case TxNone, TxStage, TxBatch:
		return m, nil
	case "":
		return TxStage, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("Unknown transaction mode '%s'", s)).
			WithSuggestions("Use one of: none, stage, batch")
	}
}

// Stager loads a staging table client-side when the dialect has no COPY
type Stager interface {
	Load(ctx context.Context, ex warehouse.Execer, cs queries.CopySource) (int64, error)
}

// StatementResult is the outcome of one statement
type StatementResult struct {
	Order    int
	Name     string
	Table    string
	Stage    queries.Stage
	Rows     int64
	Duration time.Duration
	Err      error
	DryRun   bool
}

// Report summarizes a run
type Report struct {
	RunID      string
	Dialect    string
	TxMode     TxMode
	DryRun     bool
	Started    time.Time
	Duration   time.Duration
	State      State
	Statements []StatementResult
	JoinMisses int64
}

// Runner executes plans against a warehouse
type Runner struct {
	exec    warehouse.Executor
	dialect queries.Dialect
	sources queries.Sources
	txMode  TxMode
	dryRun  bool
	stager  Stager
	runID   string
	logger  *observability.Logger
	metrics *observability.Metrics
	out     io.Writer
	observe func(StatementResult)
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithTxMode sets the transaction boundary
func WithTxMode(m TxMode) RunnerOption {
	return func(r *Runner) { r.txMode = m }
}

// WithDryRun renders statements to out instead of executing them
func WithDryRun(dryRun bool, out io.Writer) RunnerOption {
	return func(r *Runner) {
		r.dryRun = dryRun
		if out != nil {
			r.out = out
		}
	}
}

// WithStager sets the client-side loader
func WithStager(s Stager) RunnerOption {
	return func(r *Runner) { r.stager = s }
}

// WithRunID tags the run, a fresh UUID is used otherwise
func WithRunID(id string) RunnerOption {
	return func(r *Runner) { r.runID = id }
}

// WithLogger sets the logger
func WithLogger(l *observability.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records statement metrics
func WithMetrics(m *observability.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithObserver is called after every statement, successful or not
func WithObserver(fn func(StatementResult)) RunnerOption {
	return func(r *Runner) { r.observe = fn }
}

// NewRunner creates a runner
func NewRunner(exec warehouse.Executor, dialect queries.Dialect, sources queries.Sources, opts ...RunnerOption) *Runner {
	r := &Runner{
		exec:    exec,
		dialect: dialect,
		sources: sources,
		txMode:  TxStage,
		logger:  observability.GetDefaultLogger(),
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.logger = r.logger.WithFields(map[string]interface{}{
		"run_id":  r.runID,
		"dialect": dialect.Name(),
	})
	return r
}

type stagePlan struct {
	stage queries.Stage
	stmts []queries.Statement
}

// Run executes plan. All statements are rendered before anything runs. The
// first failing statement aborts the run and the open transaction, if any,
// is rolled back.
func (r *Runner) Run(ctx context.Context, plan Plan) (*Report, error) {
	start, err := plan.Start()
	if err != nil {
		return nil, err
	}
	pipe := New(start)

	report := &Report{
		RunID:   r.runID,
		Dialect: r.dialect.Name(),
		TxMode:  r.txMode,
		DryRun:  r.dryRun,
		Started: time.Now(),
		State:   start,
	}
	defer func() {
		report.Duration = time.Since(report.Started)
		report.State = pipe.State()
		if r.metrics != nil {
			r.metrics.PipelineState.Set(float64(report.State))
		}
	}()

	stages := make([]stagePlan, 0, len(plan))
	for _, stage := range plan {
		stmts, err := queries.StageStatements(r.dialect, stage, r.sources)
		if err != nil {
			return report, err
		}
		stages = append(stages, stagePlan{stage: stage, stmts: stmts})
	}

	if !r.dialect.ServerCopy() && r.stager == nil && !r.dryRun {
		for _, sp := range stages {
			if sp.stage == queries.StageCopy {
				return report, errors.New(errors.ErrCodeConfigInvalid,
					"Dialect "+r.dialect.Name()+" needs a client-side loader for the copy stage")
			}
		}
	}

	r.logger.InfoWithFields("starting run", map[string]interface{}{
		"stages":  len(stages),
		"tx_mode": string(r.txMode),
		"dry_run": r.dryRun,
		"state":   start.String(),
	})
	if r.dialect.Name() == "snowflake" && r.txMode != TxNone {
		r.logger.Debug("snowflake commits DDL implicitly, drop and create are not rolled back")
	}

	run := func(ctx context.Context, ex warehouse.Execer, sp stagePlan) error {
		if err := pipe.Check(sp.stage); err != nil {
			return err
		}
		if err := r.runStage(ctx, ex, sp, report); err != nil {
			pipe.Fail(sp.stage)
			return err
		}
		if err := pipe.Advance(sp.stage); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.PipelineState.Set(float64(pipe.State()))
		}
		r.logger.InfoWithFields("stage complete", map[string]interface{}{
			"stage": string(sp.stage),
			"state": pipe.State().String(),
		})
		return nil
	}

	switch {
	case r.dryRun || r.txMode == TxNone:
		for _, sp := range stages {
			if err := run(ctx, nil, sp); err != nil {
				return report, r.failed(pipe, sp.stage, err)
			}
		}
	case r.txMode == TxStage:
		for _, sp := range stages {
			err := r.exec.WithTransaction(ctx, func(tx *sql.Tx) error {
				return run(ctx, tx, sp)
			})
			if err != nil {
				return report, r.failed(pipe, sp.stage, err)
			}
		}
	case r.txMode == TxBatch:
		var current queries.Stage
		err := r.exec.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, sp := range stages {
				current = sp.stage
				if err := run(ctx, tx, sp); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return report, r.failed(pipe, current, err)
		}
	default:
		return report, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("Unknown transaction mode '%s'", r.txMode))
	}

	if pipe.State() == StateComplete && !r.dryRun && r.metrics != nil {
		r.metrics.MarkSuccess(time.Now())
	}
	r.logger.InfoWithFields("run finished", map[string]interface{}{
		"state":       pipe.State().String(),
		"statements":  len(report.Statements),
		"join_misses": report.JoinMisses,
		"duration":    time.Since(report.Started).String(),
	})
	return report, nil
}

// failed marks the pipeline failed when a commit or rollback error happened
// outside a stage
func (r *Runner) failed(pipe *Pipeline, stage queries.Stage, err error) error {
	if pipe.State() != StateFailed {
		pipe.Fail(stage)
	}
	r.logger.ErrorWithFields("run aborted", map[string]interface{}{
		"stage": string(stage),
		"error": err,
	})
	return err
}

func (r *Runner) runStage(ctx context.Context, ex warehouse.Execer, sp stagePlan, report *Report) error {
	for _, stmt := range sp.stmts {
		result := StatementResult{
			Order:  len(report.Statements) + 1,
			Name:   stmt.Name,
			Table:  stmt.Table,
			Stage:  sp.stage,
			DryRun: r.dryRun,
		}

		if r.dryRun {
			r.render(stmt)
			report.Statements = append(report.Statements, result)
			r.notify(result)
			continue
		}

		started := time.Now()
		rows, err := r.execute(ctx, ex, stmt)
		result.Duration = time.Since(started)
		result.Rows = rows
		result.Err = err
		report.Statements = append(report.Statements, result)
		r.notify(result)

		if r.metrics != nil {
			r.metrics.ObserveStatement(string(sp.stage), stmt.Table, result.Duration, rows, err)
		}

		fields := map[string]interface{}{
			"stage":       string(sp.stage),
			"table":       stmt.Table,
			"statement":   stmt.Name,
			"duration_ms": result.Duration.Milliseconds(),
		}
		if err != nil {
			fields["error"] = err
			r.logger.ErrorWithFields("statement failed", fields)
			return errors.Wrap(err, errors.GetErrorCode(err), "Stage "+string(sp.stage)+" failed").
				WithContext("stage", string(sp.stage)).
				WithContext("table", stmt.Table).
				WithContext("statement", stmt.Name)
		}
		fields["rows"] = rows
		r.logger.InfoWithFields("statement executed", fields)
	}

	if sp.stage == queries.StageInsertFact && !r.dryRun {
		return r.countJoinMisses(ctx, ex, report)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, ex warehouse.Execer, stmt queries.Statement) (int64, error) {
	if stmt.SQL == "" && stmt.Source != nil {
		if ex == nil {
			ex = r.exec.DB()
		}
		return r.stager.Load(ctx, ex, *stmt.Source)
	}
	return r.exec.Exec(ctx, ex, stmt.SQL)
}

// countJoinMisses reports NextSong events left out of songplays
func (r *Runner) countJoinMisses(ctx context.Context, ex warehouse.Execer, report *Report) error {
	misses, err := r.exec.QueryInt(ctx, ex, queries.JoinMissQuery(r.dialect))
	if err != nil {
		return err
	}
	report.JoinMisses = misses
	if r.metrics != nil {
		r.metrics.JoinMisses.Set(float64(misses))
	}
	if misses > 0 {
		r.logger.WarnWithFields("events without a matching song were not loaded", map[string]interface{}{
			"join_misses": misses,
		})
	}
	return nil
}

func (r *Runner) notify(res StatementResult) {
	if r.observe != nil {
		r.observe(res)
	}
}

func (r *Runner) render(stmt queries.Statement) {
	fmt.Fprintf(r.out, "-- %s (%s)\n", stmt.Name, stmt.Stage)
	if stmt.SQL == "" && stmt.Source != nil {
		fmt.Fprintf(r.out, "-- client-side load of %s from %s\n\n", stmt.Source.Table, stmt.Source.Path)
		return
	}
	fmt.Fprintf(r.out, "%s\n\n", stmt.SQL)
}
