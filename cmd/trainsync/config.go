package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nametoa/ai-sport-training/internal/config"
	"github.com/nametoa/ai-sport-training/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Manage the trainsync config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long: `Ask for the COROS credentials and local paths and write them to
./trainsync.toml, or to ~/.config/trainsync/trainsync.toml with --global.

The access token and the _wbkfro cookie come from a logged-in session of
the COROS training hub (browser developer tools, request headers).`,
	Run: func(cmd *cobra.Command, args []string) {
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")

		target := config.FileName + ".toml"
		if global {
			dir, err := config.UserConfigDir()
			if err != nil {
				fatalf("%v", err)
			}
			target = filepath.Join(dir, config.FileName+".toml")
		}
		if _, err := os.Stat(target); err == nil && !force {
			fatalf("%s already exists (use --force to overwrite)", target)
		}

		c := cfg
		pageSize := strconv.Itoa(c.PageSize)
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("COROS access token").
					Description("The accesstoken request header").
					EchoMode(huh.EchoModePassword).
					Value(&c.AccessToken).
					Validate(required("access token")),
				huh.NewInput().
					Title("_wbkfro cookie").
					Description("Optional; some accounts need it").
					EchoMode(huh.EchoModePassword).
					Value(&c.CookieWBKFRo),
				huh.NewInput().
					Title("Region").
					Description("CPL-coros-region cookie value").
					Value(&c.CookieRegion),
				huh.NewInput().
					Title("User ID").
					Description("Optional").
					Value(&c.UserID),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Data directory").
					Value(&c.DataDir).
					Validate(required("data directory")),
				huh.NewInput().
					Title("Knowledge directory").
					Value(&c.KnowledgeDir).
					Validate(required("knowledge directory")),
				huh.NewInput().
					Title("Activities per page").
					Value(&pageSize).
					Validate(func(s string) error {
						n, err := strconv.Atoi(strings.TrimSpace(s))
						if err != nil || n < 1 || n > 200 {
							return errors.New("enter a number between 1 and 200")
						}
						return nil
					}),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Anthropic API key").
					Description("Optional; used by 'trainsync coach'").
					EchoMode(huh.EchoModePassword).
					Value(&c.AnthropicAPIKey),
				huh.NewInput().
					Title("GitHub repository").
					Description("Optional owner/repo holding the published knowledge files").
					Value(&c.GitHubRepo),
			),
		)
		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Aborted.")
				return
			}
			fatalf("%v", err)
		}
		c.PageSize, _ = strconv.Atoi(strings.TrimSpace(pageSize))
		c.AccessToken = strings.TrimSpace(c.AccessToken)

		if err := config.WriteFile(target, c); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), target)
		fmt.Printf("  Run %s to fetch your data\n", ui.RenderAccent("trainsync sync"))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Run: func(cmd *cobra.Command, args []string) {
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Printf("# %s\n", used)
		} else {
			fmt.Println("# no config file; defaults and environment only")
		}
		if err := config.Encode(os.Stdout, cfg.Redacted()); err != nil {
			fatalf("%v", err)
		}
	},
}

// required returns a validator rejecting blank input.
func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func init() {
	configInitCmd.Flags().Bool("global", false, "Write to ~/.config/trainsync instead of the current directory")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
