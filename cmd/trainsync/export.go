package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/publish"
	"github.com/nametoa/ai-sport-training/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Write the knowledge Markdown files for the coach",
	Long: `Render the stored documents into Markdown files in the knowledge
directory: the coach prompt, activities, daily metrics, weekly summaries
and the current plan. Sources that do not exist yet are skipped.

With --publish the knowledge directory is committed to the git repository
that contains it; --push also pushes the commit.`,
	Run: func(cmd *cobra.Command, args []string) {
		doPublish, _ := cmd.Flags().GetBool("publish")
		push, _ := cmd.Flags().GetBool("push")
		message, _ := cmd.Flags().GetString("message")
		remote, _ := cmd.Flags().GetString("remote")

		exporter := newExporter(openStore())
		written, err := exporter.Export()
		for _, name := range written {
			fmt.Printf("%s %s\n", ui.RenderPass("✓"), name)
		}
		if err != nil {
			fatalf("%v", err)
		}
		if len(written) == 0 {
			fmt.Printf("%s Nothing to export yet. Run 'trainsync sync' first.\n", ui.RenderWarn("⚠"))
			return
		}
		fmt.Printf("\nWrote %d files to %s\n", len(written), exporter.OutDir())

		if !doPublish && !push {
			return
		}
		res, err := publish.Publish(context.Background(), exporter.OutDir(), publish.Options{
			Message: message,
			Push:    push,
			Remote:  remote,
		})
		switch {
		case errors.Is(err, publish.ErrNotInRepo):
			fatalf("%s is not inside a git repository", exporter.OutDir())
		case errors.Is(err, publish.ErrPushRejected):
			fmt.Fprintf(os.Stderr, "%s Push rejected; pull and retry.\n", ui.RenderWarn("⚠"))
			fatalf("%v", err)
		case err != nil:
			fatalf("%v", err)
		}
		if !res.Committed {
			fmt.Printf("%s Knowledge unchanged, nothing to commit\n", ui.RenderMuted("○"))
			return
		}
		fmt.Printf("%s Committed %d files\n", ui.RenderPass("✓"), len(res.Files))
		if res.Pushed {
			fmt.Printf("%s Pushed\n", ui.RenderPass("✓"))
		}
	},
}

func init() {
	exportCmd.Flags().Bool("publish", false, "Commit the knowledge directory with git")
	exportCmd.Flags().Bool("push", false, "Commit and push the knowledge directory")
	exportCmd.Flags().StringP("message", "m", "", "Commit message (default: \"Update training knowledge <date>\")")
	exportCmd.Flags().String("remote", "", "Remote to push to (default: the branch's upstream or origin)")
	rootCmd.AddCommand(exportCmd)
}
