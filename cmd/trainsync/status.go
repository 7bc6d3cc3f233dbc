package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/index"
	"github.com/nametoa/ai-sport-training/internal/knowledge"
	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "view",
	Short:   "Show the local sync state",
	Long: `Display what is stored locally:

  - Document files and their modification times
  - Record counts from the SQLite index
  - Last fetch and the outcome of each resource in the last run
  - Latest vitals (resting HR, HRV, VO2max, LTHR)`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st := openStore()

		fmt.Printf("\n%s %s\n\n", ui.RenderHeader("Data directory"), st.Dir())
		for _, name := range []string{store.ActivitiesFile, store.AnalyseFile, store.DashboardFile, store.MetaFile} {
			mod := st.ModTime(name)
			if mod.IsZero() {
				fmt.Printf("   %s %-18s %s\n", ui.RenderWarn("○"), name, ui.RenderMuted("missing"))
				continue
			}
			fmt.Printf("   %s %-18s %s\n", ui.RenderPass("●"), name, mod.Format("2006-01-02 15:04:05"))
		}

		meta, err := st.LoadMeta()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
			meta = store.NewMeta()
		}
		fmt.Printf("\n%s\n\n", ui.RenderHeader("Last run"))
		if meta.LastFetch != nil {
			fmt.Printf("   Last fetch:   %s\n", meta.LastFetch.Local().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("   Last fetch:   %s\n", ui.RenderMuted("never"))
		}
		if meta.LatestHappenDay != nil {
			fmt.Printf("   Latest day:   %s\n", knowledge.Date(*meta.LatestHappenDay))
		}
		names := make([]string, 0, len(meta.Resources))
		for name := range meta.Resources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rs := meta.Resources[name]
			mark := ui.RenderPass("✓")
			detail := fmt.Sprintf("%d new", rs.Added)
			if !rs.OK {
				mark = ui.RenderFail("✗")
				detail = rs.Error
			}
			fmt.Printf("   %s %-10s %s %s\n", mark, name, detail, ui.RenderMuted(rs.At.Local().Format(time.Kitchen)))
		}

		idx, err := index.OpenStore(st)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Index unavailable: %v\n", ui.RenderWarn("⚠"), err)
			return
		}
		defer idx.Close()

		counts, err := idx.Counts(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		rebuilt, _ := idx.RebuiltAt(ctx)
		fmt.Printf("\n%s\n\n", ui.RenderHeader("Index"))
		fmt.Printf("   Activities:   %s\n", knowledge.Count(counts.Activities))
		fmt.Printf("   Days:         %s\n", knowledge.Count(counts.Days))
		if rebuilt.IsZero() {
			fmt.Printf("   Rebuilt:      %s\n", ui.RenderMuted("never (run 'trainsync index rebuild')"))
		} else {
			fmt.Printf("   Rebuilt:      %s\n", rebuilt.Local().Format("2006-01-02 15:04:05"))
		}

		vitals, err := idx.LatestVitals(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("\n%s\n\n", ui.RenderHeader("Latest vitals"))
		printReading("Resting HR", vitals.Rhr, "bpm")
		printReading("Sleep HRV", vitals.Hrv, "ms")
		printReading("VO2max", vitals.Vo2max, "")
		printReading("Stamina", vitals.StaminaLevel, "")
		printReading("LTHR", vitals.Lthr, "bpm")
		fmt.Println()
	},
}

func printReading(label string, r *index.Reading, unit string) {
	if r == nil {
		fmt.Printf("   %-13s %s\n", label+":", knowledge.Missing)
		return
	}
	value := knowledge.Number(r.Value)
	if unit != "" {
		value += " " + unit
	}
	fmt.Printf("   %-13s %s %s\n", label+":", value, ui.RenderMuted("("+knowledge.Date(r.Day)+")"))
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
