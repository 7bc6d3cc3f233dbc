package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/index"
	"github.com/nametoa/ai-sport-training/internal/knowledge"
	"github.com/nametoa/ai-sport-training/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:     "index",
	GroupID: "advanced",
	Short:   "Manage the SQLite query index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from the JSON documents",
	Long: `Drop and recreate every row of the SQLite index (data/index.db) from
the activities and daily metrics documents. The documents stay the
source of truth; the index can always be deleted and rebuilt.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		st := openStore()

		idx, err := index.OpenStore(st)
		if err != nil {
			fatalf("failed to open index: %v", err)
		}
		defer idx.Close()

		if err := idx.RebuildFromStore(ctx, st); err != nil {
			fatalf("%v", err)
		}
		counts, err := idx.Counts(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Indexed %s activities and %s days into %s\n",
			ui.RenderPass("✓"), knowledge.Count(counts.Activities), knowledge.Count(counts.Days), idx.Path())
	},
}

func init() {
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}
