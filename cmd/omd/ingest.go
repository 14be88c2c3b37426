package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sujanshetty01/OMD/pkg/ingest"
	"github.com/sujanshetty01/OMD/pkg/tui"
)

// cliSession is the progress session CLI commands publish under.
const cliSession = "cli"

var ingestQuiet bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Profile, classify and register local files",
	Long: `Profile each file, classify its columns, register it in the catalog,
then archive it as Parquet and index its rows.

Supported formats: CSV, JSON, YAML, XML, HTML, XLSX, Parquet, PDF.

Examples:
  omd ingest people.csv
  omd ingest data/*.csv --quiet`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var ingestObjectCmd = &cobra.Command{
	Use:   "ingest-object <bucket> <key>",
	Short: "Ingest one object from the source store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(func(ctx context.Context, a *app, p *tui.Printer) error {
			res, err := a.orch.IngestObject(ctx, cliSession, args[0], args[1])
			if err != nil {
				return err
			}
			a.orch.Wait()
			p.Result(args[1], res)
			return nil
		})
	},
}

var ingestBucketCmd = &cobra.Command{
	Use:   "ingest-bucket <bucket>",
	Short: "Ingest every object in a source bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(func(ctx context.Context, a *app, p *tui.Printer) error {
			start := time.Now()
			sum, err := a.orch.IngestBucket(ctx, cliSession, args[0])
			if err != nil {
				return err
			}
			a.orch.Wait()
			p.Batch(args[0], sum, time.Since(start))
			return nil
		})
	},
}

var catalogSyncCmd = &cobra.Command{
	Use:   "catalog-sync <dataset-fqn>",
	Short: "Ingest the object behind an existing catalog dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(func(ctx context.Context, a *app, p *tui.Printer) error {
			res, err := a.orch.IngestCatalogEntity(ctx, cliSession, args[0])
			if err != nil {
				return err
			}
			a.orch.Wait()
			p.Result(args[0], res)
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false, "Show a progress bar instead of per-step output")

	rootCmd.AddCommand(ingestCmd, ingestObjectCmd, ingestBucketCmd, catalogSyncCmd)
}

// withCLIApp builds the components, prints progress for the CLI session
// and waits for background archival before returning.
func withCLIApp(fn func(ctx context.Context, a *app, p *tui.Printer) error) error {
	cfg := loadConfig()
	logger := newLogger(cfg)
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	p := tui.NewPrinter(os.Stdout)
	p.Header(version)
	if !ingestQuiet {
		a.hub.Register(cliSession, p.Endpoint())
	}
	return fn(ctx, a, p)
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withCLIApp(func(ctx context.Context, a *app, p *tui.Printer) error {
		type outcome struct {
			name string
			res  *ingest.Result
			err  error
		}

		var outcomes []outcome
		var bar *progressbar.ProgressBar
		if ingestQuiet {
			bar = tui.ShowProgress(int64(len(args)), "Ingesting")
		}
		for _, path := range args {
			name := filepath.Base(path)
			res, err := a.orch.IngestFile(ctx, cliSession, path, name)
			outcomes = append(outcomes, outcome{name, res, err})
			if bar != nil {
				bar.Add(1)
			}
		}
		a.orch.Wait()
		if bar != nil {
			bar.Finish()
		}

		failed := 0
		for _, o := range outcomes {
			if o.err != nil {
				failed++
				p.Error(o.name, o.err)
				continue
			}
			p.Result(o.name, o.res)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	})
}
