// Command trainsync mirrors COROS training data into local JSON documents
// and serves it to a dashboard, a training-plan generator, a knowledge
// export and an AI coach.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/config"
	"github.com/nametoa/ai-sport-training/internal/logging"
	"github.com/nametoa/ai-sport-training/internal/observability"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	v   = config.NewViper()
	cfg config.Config

	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "trainsync",
	Short: "Incremental COROS training data sync",
	Long: `trainsync keeps a local mirror of your COROS activities, daily metrics
and dashboard summary, and builds views on top of it: a web dashboard,
training plans, Markdown knowledge files and an AI coach.

Configuration comes from flags, COROS_* environment variables and
trainsync.toml (current directory or ~/.config/trainsync), in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			v.SetConfigFile(configFile)
		}
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded
		logging.Setup(cfg.LogFile)

		if _, err := observability.InitSentry(observability.SentryConfig{
			DSN:         cfg.SentryDSN,
			Environment: cfg.SentryEnv,
			Release:     "trainsync@" + Version,
		}, logging.New("trainsync")); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		observability.FlushSentry(2 * time.Second)
		_ = logging.Close()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "view", Title: "View Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./trainsync.toml or ~/.config/trainsync/trainsync.toml)")
	flags.String("data-dir", "", "Directory holding the synchronized documents (default: data)")
	flags.String("knowledge-dir", "", "Directory receiving the knowledge export (default: knowledge)")
	flags.String("log-file", "", "Also write logs to this file, rotated by size")
	bindFlag("data_dir", "data-dir")
	bindFlag("knowledge_dir", "knowledge-dir")
	bindFlag("log_file", "log-file")

	rootCmd.Version = Version
}

// bindFlag lets a persistent flag override the config key when set.
func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	observability.FlushSentry(2 * time.Second)
	os.Exit(1)
}
