package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/coach"
	"github.com/nametoa/ai-sport-training/internal/logging"
	"github.com/nametoa/ai-sport-training/internal/ui"
)

var coachCmd = &cobra.Command{
	Use:     "coach [question]",
	GroupID: "view",
	Short:   "Ask the AI coach about your training",
	Long: `Ask a question to the AI coach. The first question of a conversation is
sent together with the knowledge files (daily metrics, weekly summary and
current plan), read from the local knowledge directory or, when
github_repo is set, from that repository.

Without a question an interactive session starts; an empty line or Ctrl+D
ends it.

Examples:
  trainsync coach "Should I run intervals tomorrow?"
  trainsync coach --github athlete/training`,
	Run: func(cmd *cobra.Command, args []string) {
		repo, _ := cmd.Flags().GetString("github")
		if repo == "" {
			repo = cfg.GitHubRepo
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		filter, err := newCoachFilter(repo)
		if err != nil {
			fatalf("%v", err)
		}
		c, err := coach.New(coach.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.CoachModel,
			Logger: logging.New("coach"),
		}, filter)
		if err != nil {
			fatalf("%v", err)
		}

		if len(args) > 0 {
			answer, err := c.Ask(ctx, nil, strings.Join(args, " "))
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Println(answer)
			return
		}

		var history []coach.Message
		in := bufio.NewScanner(os.Stdin)
		for {
			fmt.Printf("%s ", ui.RenderAccent("you>"))
			if !in.Scan() {
				fmt.Println()
				return
			}
			question := strings.TrimSpace(in.Text())
			if question == "" {
				return
			}
			answer, err := c.Ask(ctx, history, question)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
				if ctx.Err() != nil {
					return
				}
				continue
			}
			fmt.Printf("\n%s\n%s\n\n", ui.RenderPass("coach>"), answer)
			history = append(history,
				coach.Message{Role: coach.RoleUser, Content: question},
				coach.Message{Role: coach.RoleAssistant, Content: answer},
			)
		}
	},
}

// newCoachFilter reads the knowledge files from repo when set, else from
// the local knowledge directory. Reads are cached for context_ttl.
func newCoachFilter(repo string) (*coach.Filter, error) {
	var src coach.Source
	files := make([]string, 0, len(coach.DefaultFiles))
	if repo != "" {
		gh, err := coach.NewGitHubSource(repo, cfg.GitHubBranch, cfg.GitHubToken)
		if err != nil {
			return nil, err
		}
		src = gh
		files = append(files, coach.DefaultFiles...)
	} else {
		src = coach.LocalSource{Root: filepath.Clean(cfg.KnowledgeDir)}
		for _, name := range coach.DefaultFiles {
			files = append(files, path.Base(name))
		}
	}

	filter := coach.NewFilter(coach.NewCachedSource(src, cfg.ContextTTL))
	filter.Files = files
	return filter, nil
}

func init() {
	coachCmd.Flags().String("github", "", "Read the knowledge files from this GitHub repository (owner/repo)")
	rootCmd.AddCommand(coachCmd)
}
