package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sujanshetty01/OMD/pkg/tui"
)

var searchLimit int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the catalog with the data lake and semantic index",
	Long: `Walk every catalog table, copy its rows into the data lake as Parquet
and index them for semantic search. Rows come from the table's sample data,
or from a configured database connector when the catalog has none.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(func(ctx context.Context, a *app, p *tui.Printer) error {
			start := time.Now()
			sum, err := a.reconciler.Run(ctx)
			if err != nil {
				return err
			}
			p.Sync(sum, time.Since(start))
			return nil
		})
	},
}

var lakeCmd = &cobra.Command{
	Use:   "lake",
	Short: "Inspect the data lake",
}

var lakeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show table counts and sizes by source and database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(func(ctx context.Context, a *app, p *tui.Printer) error {
			stats, err := a.lake.Stats(ctx)
			if err != nil {
				return err
			}
			p.LakeStats(stats)
			return nil
		})
	},
}

var lakeTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the current snapshot of every table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(func(ctx context.Context, a *app, p *tui.Printer) error {
			tables, err := a.lake.ListTables(ctx)
			if err != nil {
				return err
			}
			p.LakeTables(tables)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over indexed rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(func(ctx context.Context, a *app, p *tui.Printer) error {
			if a.index == nil {
				return fmt.Errorf("semantic index is disabled (vector.enabled: false)")
			}
			docs, err := a.index.Search(ctx, args[0], searchLimit)
			if err != nil {
				return err
			}
			p.Search(args[0], docs)
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("omd " + version + " (" + commit + ")")
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "Maximum results")

	lakeCmd.AddCommand(lakeStatsCmd, lakeTablesCmd)
	rootCmd.AddCommand(syncCmd, lakeCmd, searchCmd, versionCmd)
}
