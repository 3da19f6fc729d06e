package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsheet/fieldmap/internal/config"
	"github.com/finsheet/fieldmap/pkg/audit"
	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/job"
	"github.com/finsheet/fieldmap/pkg/lexicon"
	"github.com/finsheet/fieldmap/pkg/logging"
	"github.com/finsheet/fieldmap/pkg/oracle"
	"github.com/finsheet/fieldmap/pkg/resolve"
	"github.com/finsheet/fieldmap/pkg/sheets"
)

// jobFlags are the flags shared by the run and match commands.
type jobFlags struct {
	source      string
	dest        string
	out         string
	lexiconPath string
	useOracle   bool
	model       string
	threshold   float64
	timeout     time.Duration
	workers     int
	dryRun      bool
}

func addJobFlags(c *cobra.Command, f *jobFlags) {
	c.Flags().StringVar(&f.source, "source", "", "source workbook (xlsx)")
	c.Flags().StringVar(&f.dest, "dest", "", "destination template workbook (xlsx)")
	c.Flags().StringVar(&f.out, "out", "", "output path (default: overwrite destination)")
	c.Flags().StringVar(&f.lexiconPath, "lexicon", "", "terminology lexicon overrides (yaml)")
	c.Flags().BoolVar(&f.useOracle, "oracle", false, "refine borderline matches with the Gemini oracle")
	c.Flags().StringVar(&f.model, "model", oracle.DefaultModel, "oracle model")
	c.Flags().Float64Var(&f.threshold, "threshold", resolve.DefaultThreshold, "auto-accept confidence threshold")
	c.Flags().DurationVar(&f.timeout, "oracle-timeout", resolve.DefaultOracleTimeout, "oracle round-trip bound")
	c.Flags().IntVar(&f.workers, "workers", 4, "matching and read concurrency")
	_ = c.MarkFlagRequired("source")
	_ = c.MarkFlagRequired("dest")
}

// buildJob opens both workbooks and assembles the job from the layout
// file and flags. The caller must Close both returned workbooks.
func buildJob(ctx context.Context, f *jobFlags) (*job.Job, *sheets.Workbook, *sheets.Workbook, error) {
	layout, err := config.LoadLayout(layoutFile)
	if err != nil {
		return nil, nil, nil, err
	}
	scans, err := layout.SourceScans()
	if err != nil {
		return nil, nil, nil, err
	}
	destScan, err := layout.Dest.ScanConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	valueCol, trackingCol, err := layout.DestColumns()
	if err != nil {
		return nil, nil, nil, err
	}

	source, err := sheets.Open(f.source)
	if err != nil {
		return nil, nil, nil, err
	}
	dest, err := sheets.Open(f.dest)
	if err != nil {
		source.Close()
		return nil, nil, nil, err
	}

	out := f.out
	if out == "" {
		out = f.dest
	}

	opts := []job.Option{
		job.WithThreshold(f.threshold),
		job.WithOracleTimeout(f.timeout),
		job.WithWorkers(f.workers),
		job.WithDryRun(f.dryRun),
	}
	if f.lexiconPath != "" {
		lex, err := lexicon.Load(f.lexiconPath)
		if err != nil {
			source.Close()
			dest.Close()
			return nil, nil, nil, err
		}
		opts = append(opts, job.WithLexicon(lex))
	}
	if f.useOracle {
		key := config.GeminiAPIKey()
		if key == "" {
			source.Close()
			dest.Close()
			return nil, nil, nil, errors.NewConfigError("oracle",
				"GEMINI_API_KEY is not set", nil)
		}
		orc, err := oracle.NewGemini(ctx, key, oracle.WithModel(f.model))
		if err != nil {
			source.Close()
			dest.Close()
			return nil, nil, nil, err
		}
		opts = append(opts, job.WithOracle(orc))
	}

	j, err := job.New(job.Config{
		Source:          source,
		Dest:            dest,
		SourceName:      filepath.Base(f.source),
		OutputPath:      out,
		SourceScans:     scans,
		DestScan:        destScan,
		ReferencePeriod: layout.ReferencePeriod,
		PopulatePeriod:  layout.PopulatePeriod,
		DestColumn:      valueCol,
		TrackingColumn:  trackingCol,
	}, opts...)
	if err != nil {
		source.Close()
		dest.Close()
		return nil, nil, nil, err
	}
	return j, source, dest, nil
}

// writeAudit persists the trail as CSV.
func writeAudit(trail *audit.Trail, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	defer f.Close()
	if err := trail.WriteCSV(f); err != nil {
		return err
	}
	logging.Info().Str("path", path).Int("records", trail.Len()).Msg("Audit trail written")
	return nil
}
