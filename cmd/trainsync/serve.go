package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/daemon"
	"github.com/nametoa/ai-sport-training/internal/dashboard"
	"github.com/nametoa/ai-sport-training/internal/index"
	"github.com/nametoa/ai-sport-training/internal/knowledge"
	"github.com/nametoa/ai-sport-training/internal/logging"
	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the dashboard with periodic background sync",
	Long: `Start the web dashboard and keep the data fresh:

  - A sync runs at startup and then every sync_interval (default 6h)
  - Each new browser session also triggers one background sync
  - Changes to the data directory rebuild the index, refresh the
    knowledge files and push an update to connected browsers

The dashboard serves JSON under /api, live updates on /ws, health on
/health and Prometheus metrics on /metrics.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		noSync, _ := cmd.Flags().GetBool("no-sync")
		noExport, _ := cmd.Flags().GetBool("no-export")
		if !cmd.Flags().Changed("port") {
			port = cfg.Port
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st := openStore()
		if err := os.MkdirAll(st.Dir(), 0755); err != nil {
			fatalf("failed to create data directory: %v", err)
		}
		idx, err := index.OpenStore(st)
		if err != nil {
			fatalf("failed to open index: %v", err)
		}
		defer idx.Close()
		if err := idx.RebuildFromStore(ctx, st); err != nil {
			fmt.Fprintf(os.Stderr, "%s Index rebuild failed: %v\n", ui.RenderWarn("⚠"), err)
		}

		engine, err := newEngine(st)
		if err != nil {
			fatalf("%v", err)
		}

		serverCfg := dashboard.DefaultConfig()
		serverCfg.Port = port
		serverCfg.Store = st
		serverCfg.Index = idx
		serverCfg.Syncer = engine
		serverCfg.AutoSync = !noSync
		serverCfg.Logger = logging.New("dashboard")
		server, err := dashboard.NewServer(serverCfg)
		if err != nil {
			fatalf("failed to create dashboard: %v", err)
		}
		handler := dashboard.NewHandler(server, nil)
		engine.OnComplete(handler.OnSyncComplete)

		interval := cfg.SyncInterval
		if noSync {
			interval = 0
		}
		d, err := daemon.NewWithConfig(engine, st.Dir(), &daemon.Config{
			Interval: interval,
			Files: []string{
				store.ActivitiesFile,
				store.AnalyseFile,
				store.DashboardFile,
				knowledge.PlanSource,
			},
			Logger: logging.New("daemon"),
		})
		if err != nil {
			fatalf("failed to create daemon: %v", err)
		}

		exporter := newExporter(st)
		d.OnChange(func(ctx context.Context, names []string) {
			if err := idx.RebuildFromStore(ctx, st); err != nil {
				serverCfg.Logger.Printf("Index rebuild failed: %v", err)
			}
			if !noExport {
				if _, err := exporter.Export(); err != nil {
					serverCfg.Logger.Printf("Knowledge export failed: %v", err)
				}
			}
			handler.OnDataChanged(ctx, names)
		})

		if err := server.Start(); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Dashboard at %s\n", ui.RenderPass("✓"), ui.RenderAccent(fmt.Sprintf("http://localhost:%d", port)))
		if interval > 0 {
			fmt.Printf("%s Syncing every %v\n", ui.RenderMuted("→"), interval)
		}

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		fmt.Println("\nShutting down...")
		_ = d.Stop()
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
		}
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port for the dashboard (default: config port)")
	serveCmd.Flags().Bool("no-sync", false, "Serve stored data only; no periodic or per-session sync")
	serveCmd.Flags().Bool("no-export", false, "Do not refresh the knowledge files when data changes")
	rootCmd.AddCommand(serveCmd)
}
