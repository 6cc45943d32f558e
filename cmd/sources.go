package cmd

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"starload/internal/objectstore"
	"starload/internal/staging"
	"starload/internal/ui"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect the configured song, event and JSONPaths sources",
	Long: `List what the copy stage would load: the number and size of the song and
event files, the field paths of the JSONPaths document and, for S3
sources, whether each bucket is in the configured region.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		reader, store, err := newReader(ctx, cfg)
		if err != nil {
			return err
		}

		summaries := []ui.SourceSummary{
			summarize(ctx, reader, "song_data", cfg.S3.SongData),
			summarize(ctx, reader, "log_data", cfg.S3.LogData),
		}
		if cfg.S3.LogJSONPath != "" {
			summaries = append(summaries, summarizeJSONPaths(ctx, reader, cfg.S3.LogJSONPath))
		}

		if store != nil {
			checkRegions(ctx, store, cfg.S3.Region, summaries)
		}

		ui.RenderSources(cmd.OutOrStdout(), summaries)

		failed := lo.Filter(summaries, func(s ui.SourceSummary, _ int) bool { return s.Err != nil })
		if len(failed) > 0 {
			return failed[0].Err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func summarize(ctx context.Context, reader *staging.Reader, name, location string) ui.SourceSummary {
	s := ui.SourceSummary{Name: name, Location: location}
	objects, err := reader.List(ctx, location)
	if err != nil {
		s.Err = err
		return s
	}
	s.Objects = len(objects)
	s.Bytes = lo.SumBy(objects, func(o staging.Object) int64 { return o.Size })
	return s
}

func summarizeJSONPaths(ctx context.Context, reader *staging.Reader, location string) ui.SourceSummary {
	s := ui.SourceSummary{Name: "log_jsonpath", Location: location, Objects: 1}
	doc, err := reader.ReadAll(ctx, location)
	if err != nil {
		s.Err = err
		return s
	}
	paths, err := staging.ParseJSONPaths(doc)
	if err != nil {
		s.Err = err
		return s
	}
	s.Bytes = int64(len(doc))
	s.Detail = fmt.Sprintf("%d paths", len(paths))
	return s
}

// checkRegions records a region mismatch on every S3 source in a wrong bucket
func checkRegions(ctx context.Context, store *objectstore.Store, region string, summaries []ui.SourceSummary) {
	checked := map[string]error{}
	for i := range summaries {
		s := &summaries[i]
		if s.Err != nil || !objectstore.IsS3(s.Location) {
			continue
		}
		loc, err := objectstore.ParseURI(s.Location)
		if err != nil {
			s.Err = err
			continue
		}
		err, ok := checked[loc.Bucket]
		if !ok {
			err = store.VerifyRegion(ctx, loc.Bucket, region)
			checked[loc.Bucket] = err
		}
		if err != nil {
			s.Err = err
			continue
		}
		if s.Detail == "" {
			s.Detail = "region ok"
		}
	}
}
