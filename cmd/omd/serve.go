package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sujanshetty01/OMD/pkg/server"
	"github.com/sujanshetty01/OMD/pkg/watch"
)

var (
	servePort     int
	serveHost     string
	serveWatchDir string
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API server.

The server provides:
  - File upload, S3 and catalog-driven ingestion
  - Live progress over WebSocket and Server-Sent Events
  - Catalog browsing and manual tagging
  - Data lake statistics, reconciliation and semantic search

Examples:
  omd serve                       # Listen on the configured port (8000)
  omd serve --port 9000           # Custom port
  omd serve --watch ./incoming    # Also ingest files dropped into ./incoming`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch", "", "Directory to watch for new files")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if serveWatchDir != "" {
		cfg.Watch.Dir = serveWatchDir
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{relay: true})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if a.index != nil {
		if err := a.index.EnsureSchema(ctx); err != nil {
			logger.Warn("semantic index unavailable, continuing", "error", err)
		}
	}

	deps := server.Deps{
		Ingest:     a.orch,
		Catalog:    a.catalog,
		Sources:    a.sources,
		Lake:       a.lake,
		Reconciler: a.reconciler,
		Hub:        a.hub,
		Logger:     logger,
		Version:    version,
	}
	if a.index != nil {
		deps.Search = a.index
	}
	srv := server.New(deps)

	var w *watch.Watcher
	if cfg.Watch.Dir != "" {
		w, err = watch.New(watch.Config{
			Dir:      cfg.Watch.Dir,
			Debounce: cfg.Watch.Debounce,
			Supports: a.profiler.Supports,
			Handler: func(ctx context.Context, path string) error {
				_, err := a.orch.IngestFile(ctx, watch.Session, path, filepath.Base(path))
				return err
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}
		defer w.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	g.Go(func() error {
		return srv.Run(gctx, addr, shutdownTimeout)
	})
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
	}
	if w != nil {
		g.Go(func() error { return w.Run(gctx) })
	}

	printBanner(addr, cfg.Watch.Dir)
	return g.Wait()
}

func printBanner(addr, watchDir string) {
	fmt.Println()
	fmt.Println("  ╭─────────────────────────────────────╮")
	fmt.Println("  │            OMD SERVER               │")
	fmt.Println("  ├─────────────────────────────────────┤")
	fmt.Printf("  │  API:     %-25s │\n", "http://"+addr+"/api/v1")
	if watchDir != "" {
		fmt.Printf("  │  Watch:   %-25s │\n", watchDir)
	}
	fmt.Println("  │                                     │")
	fmt.Println("  │  Press Ctrl+C to stop               │")
	fmt.Println("  ╰─────────────────────────────────────╯")
	fmt.Println()
}
