package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"starload/internal/objectstore"
	"starload/internal/observability"
	"starload/internal/pipeline"
	"starload/internal/queries"
	"starload/internal/staging"
	"starload/internal/ui"
	"starload/internal/warehouse"
	"starload/pkg/errors"
	"starload/pkg/models"
)

// txModeValue is a pflag.Value that only accepts known transaction modes
type txModeValue struct {
	mode pipeline.TxMode
}

var _ pflag.Value = (*txModeValue)(nil)

func (v *txModeValue) String() string { return string(v.mode) }

func (v *txModeValue) Set(s string) error {
	if s == "" {
		v.mode = ""
		return nil
	}
	m, err := pipeline.ParseTxMode(s)
	if err != nil {
		return err
	}
	v.mode = m
	return nil
}

func (v *txModeValue) Type() string { return "none|stage|batch" }

// sourcesFrom maps the configuration onto the bulk-load sources
func sourcesFrom(cfg *models.Config) queries.Sources {
	return queries.Sources{
		LogData:            cfg.S3.LogData,
		SongData:           cfg.S3.SongData,
		LogJSONPath:        cfg.S3.LogJSONPath,
		Region:             cfg.S3.Region,
		IAMRole:            cfg.IAMRole.ARN,
		StorageIntegration: cfg.IAMRole.StorageIntegration,
	}
}

// connect opens the configured warehouse
func connect(cmd *cobra.Command, cfg *models.Config) (*warehouse.Service, error) {
	wcfg, err := warehouse.ConfigFromModel(cfg.Warehouse)
	if err != nil {
		return nil, err
	}

	svc := warehouse.NewService(wcfg, logger)
	if ui.IsTerminal() {
		console.StartProgress("Connecting to " + wcfg.Endpoint())
	}
	if err := svc.Connect(cmd.Context()); err != nil {
		console.StopProgress(false, "Connection failed")
		return nil, err
	}
	console.StopProgress(true, "Connected to "+wcfg.Endpoint())
	return svc, nil
}

// needsObjectStore reports whether any source lives in S3
func needsObjectStore(cfg *models.Config) bool {
	for _, loc := range []string{cfg.S3.LogData, cfg.S3.SongData, cfg.S3.LogJSONPath} {
		if objectstore.IsS3(loc) {
			return true
		}
	}
	return false
}

// newReader returns a source reader, with an S3 client only when needed
func newReader(ctx context.Context, cfg *models.Config) (*staging.Reader, *objectstore.Store, error) {
	if !needsObjectStore(cfg) {
		return staging.NewReader(nil), nil, nil
	}
	store, err := objectstore.New(ctx, objectstore.Options{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		Anonymous: cfg.S3.Anonymous,
	})
	if err != nil {
		return nil, nil, err
	}
	return staging.NewReader(store), store, nil
}

// newStager builds the client-side loader used by dialects without COPY
func newStager(ctx context.Context, cfg *models.Config, metrics *observability.Metrics) (pipeline.Stager, error) {
	reader, _, err := newReader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return staging.NewLoader(
		staging.WithReader(reader),
		staging.WithBatchSize(cfg.Load.BatchSize),
		staging.WithLogger(logger),
		staging.WithMetrics(metrics),
	), nil
}

// countStatements returns how many statements plan runs, for the progress bar
func countStatements(d queries.Dialect, plan pipeline.Plan, src queries.Sources) int {
	total := 0
	for _, stage := range plan {
		stmts, err := queries.StageStatements(d, stage, src)
		if err != nil {
			return 0
		}
		total += len(stmts)
	}
	return total
}

// parseStages turns stage names into a plan; no names means every stage
func parseStages(args []string) (pipeline.Plan, error) {
	if len(args) == 0 {
		return pipeline.FullRebuild, nil
	}
	plan := make(pipeline.Plan, 0, len(args))
	for _, arg := range args {
		stage := queries.Stage(strings.ToLower(arg))
		if !lo.Contains(pipeline.FullRebuild, stage) {
			return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("Unknown stage '%s'", arg)).
				WithSuggestions("Stages are: drop, create, copy, insert-fact, insert-dimensions")
		}
		plan = append(plan, stage)
	}
	return plan, nil
}
