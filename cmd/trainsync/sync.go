package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/sync"
	"github.com/nametoa/ai-sport-training/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Fetch new activities, daily metrics and the dashboard",
	Long: `Run one sync batch against the COROS API:

  1. Activities: pages are fetched newest first until a page contains an
     activity already stored; new ones are merged and the file rewritten.
  2. Daily metrics: the full bundle is fetched; new days are appended and
     the weekly summaries replaced.
  3. Dashboard: the snapshot is replaced wholesale.

A failure in one step is reported and does not stop the others. The
SQLite index is rebuilt afterwards; --export also refreshes the knowledge
files.`,
	Run: func(cmd *cobra.Command, args []string) {
		export, _ := cmd.Flags().GetBool("export")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st := openStore()
		engine, err := newEngine(st)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Syncing into %s...\n", ui.RenderAccent("🔄"), st.Dir())
		report := engine.Run(ctx)
		printReport(report)

		if err := rebuildIndex(ctx, st); err != nil {
			fmt.Fprintf(os.Stderr, "%s Index rebuild failed: %v\n", ui.RenderWarn("⚠"), err)
		}

		if export {
			written, err := newExporter(st).Export()
			for _, name := range written {
				fmt.Printf("   %s %s\n", ui.RenderPass("✓"), name)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s Knowledge export incomplete: %v\n", ui.RenderWarn("⚠"), err)
			}
		}

		if err := report.Err(); err != nil {
			fatalf("sync finished with errors: %v", err)
		}
	},
}

// printReport renders one line per resource.
func printReport(report *sync.Report) {
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Printf("%s %-10s %v\n", ui.RenderFail("✗"), res.Resource, res.Err)
			continue
		}
		detail := fmt.Sprintf("%d new, %d total", res.Added, res.Total)
		switch {
		case res.Resource == sync.ResourceDashboard:
			detail = "snapshot replaced"
		case res.Bootstrapped:
			detail += ", first sync"
		case !res.Written:
			detail = "up to date"
		}
		if res.Pages > 0 {
			detail += fmt.Sprintf(", %d pages", res.Pages)
		}
		fmt.Printf("%s %-10s %s\n", ui.RenderPass("✓"), res.Resource, ui.RenderMuted(detail))
	}
	if report.MetaErr != nil {
		fmt.Printf("%s %-10s %v\n", ui.RenderWarn("⚠"), "meta", report.MetaErr)
	}

	status := ui.RenderPass("Sync complete")
	if report.Err() != nil {
		status = ui.RenderWarn("Sync finished with errors")
	}
	fmt.Printf("\n%s in %v (run %s)\n", status, report.Duration().Round(time.Millisecond), report.RunID)
}

func init() {
	syncCmd.Flags().Bool("export", false, "Also write the knowledge Markdown files")
	rootCmd.AddCommand(syncCmd)
}
