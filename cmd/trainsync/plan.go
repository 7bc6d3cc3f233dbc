package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/knowledge"
	"github.com/nametoa/ai-sport-training/internal/plan"
	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/ui"
)

var planCmd = &cobra.Command{
	Use:     "plan",
	GroupID: "view",
	Short:   "Generate a Zone 2 + HIIT training plan",
	Long: `Generate a weekly training calendar and score the synced activities
against it.

The Zone 2 target grows by up to 40% over the block, with a deload week
every --deload weeks and a taper in the final week. Runs and rides below
85% of lactate threshold heart rate count as Zone 2; sessions above 95%
count as HIIT.

Examples:
  trainsync plan                                  # 8 weeks from next Monday, Markdown to data/plan.md
  trainsync plan --start "in 2 weeks" --weeks 12
  trainsync plan --format yaml --out plan.yaml
  trainsync plan --from plan.yaml --format json   # refresh actual volume of an existing plan
  trainsync plan --schedule --format json         # concrete workouts for the watch`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		from, _ := cmd.Flags().GetString("from")
		schedule, _ := cmd.Flags().GetBool("schedule")

		now := time.Now()
		st := openStore()

		var p *plan.Plan
		if from != "" {
			data, err := os.ReadFile(from)
			if err != nil {
				fatalf("failed to read plan: %v", err)
			}
			if p, err = plan.Decode(data); err != nil {
				fatalf("%v", err)
			}
		} else {
			opts, err := planOptions(cmd, now)
			if err != nil {
				fatalf("%v", err)
			}
			if p, err = plan.Generate(opts); err != nil {
				fatalf("%v", err)
			}
		}

		lthr, err := latestLTHR(st)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
		}
		acts, err := st.LoadActivities()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			fatalf("%v", err)
		}
		plan.FillActual(p.PlanData, acts, lthr)
		prog := plan.Summarize(p.PlanData, now)

		var buf bytes.Buffer
		switch {
		case schedule:
			s, err := plan.BuildSchedule(p, lthr)
			if err != nil {
				fatalf("%v", err)
			}
			if strings.EqualFold(format, plan.FormatMarkdown) {
				format = plan.FormatJSON
			}
			err = plan.Encode(&buf, s, format)
			if err != nil {
				fatalf("%v", err)
			}
		case strings.EqualFold(format, plan.FormatMarkdown):
			if err := plan.WriteMarkdown(&buf, p, prog); err != nil {
				fatalf("%v", err)
			}
			if out == "" {
				out = filepath.Join(cfg.DataDir, knowledge.PlanSource)
			}
		default:
			if err := plan.Encode(&buf, p, format); err != nil {
				fatalf("%v", err)
			}
		}

		if err := writeOutput(out, buf.Bytes()); err != nil {
			fatalf("%v", err)
		}
		if out != "" {
			fmt.Fprintf(os.Stderr, "%s Plan written to %s\n", ui.RenderPass("✓"), out)
		}
		fmt.Fprintf(os.Stderr, "%s Zone 2 %d/%d min, %d/%d weeks done, %d HIIT weeks",
			ui.RenderAccent("→"), prog.TotalZ2Actual, prog.TotalZ2Target, prog.WeeksDone, p.Weeks, prog.HIITWeeksDone)
		if lthr <= 0 {
			fmt.Fprintf(os.Stderr, " %s", ui.RenderMuted("(no LTHR yet, runs count as Zone 2)"))
		}
		fmt.Fprintln(os.Stderr)
	},
}

// planOptions merges the flags over the default options.
func planOptions(cmd *cobra.Command, now time.Time) (plan.Options, error) {
	opts := plan.DefaultOptions(now)
	flags := cmd.Flags()

	startStr, _ := flags.GetString("start")
	start, err := plan.ParseStart(startStr, now)
	if err != nil {
		return opts, err
	}
	opts.Start = start

	if flags.Changed("name") {
		opts.Name, _ = flags.GetString("name")
	}
	if flags.Changed("weeks") {
		opts.Weeks, _ = flags.GetInt("weeks")
	}
	if flags.Changed("target") {
		opts.Z2Target, _ = flags.GetInt("target")
	}
	if flags.Changed("hiit") {
		opts.HIITPerWeek, _ = flags.GetInt("hiit")
	}
	if flags.Changed("deload") {
		opts.DeloadEvery, _ = flags.GetInt("deload")
	}
	return opts, nil
}

// writeOutput writes data to path, or stdout when path is empty.
func writeOutput(path string, data []byte) error {
	var w io.Writer = os.Stdout
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to rename %s: %w", path, err)
		}
		return nil
	}
	_, err := w.Write(data)
	return err
}

func init() {
	planCmd.Flags().String("start", "", `Start date: YYYY-MM-DD or a phrase like "next monday" (default: next Monday)`)
	planCmd.Flags().Int("weeks", 8, "Number of weeks")
	planCmd.Flags().Int("target", 200, "Zone 2 minutes per week")
	planCmd.Flags().Int("hiit", 1, "HIIT sessions per week")
	planCmd.Flags().Int("deload", 4, "Deload every N weeks")
	planCmd.Flags().String("name", "", "Plan name")
	planCmd.Flags().StringP("format", "f", plan.FormatMarkdown, "Output format: markdown, json or yaml")
	planCmd.Flags().StringP("out", "o", "", "Output file (default: data/plan.md for markdown, stdout otherwise)")
	planCmd.Flags().String("from", "", "Refresh an existing JSON or YAML plan instead of generating one")
	planCmd.Flags().Bool("schedule", false, "Emit concrete workouts instead of the weekly calendar")
	rootCmd.AddCommand(planCmd)
}
