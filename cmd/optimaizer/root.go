package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	red  = color.New(color.FgRed).SprintFunc()
	bold = color.New(color.Bold).SprintFunc()
)

// newRootCommand creates the root cobra command with the serve, repl and
// version subcommands.
func newRootCommand() *cobra.Command {
	s := newSettings()

	rootCmd := &cobra.Command{
		Use:   "optimaizer",
		Short: "Personal assistant agent runtime",
		Long: fmt.Sprintf(`%s

optimAIzer is a multi-tenant personal assistant runtime. Agents converse
over Telegram or the local console, call tools under per-agent permissions
with approval gates on risky actions, and fire scheduled reminders and
subscriptions while deployed.

%s
  optimaizer serve                        # Run the HTTP server
  optimaizer serve -p 9090 --environment production
  optimaizer repl                         # Chat with an ephemeral local agent
  optimaizer repl --agent agent-2b1f --user 833921
  optimaizer repl --allow notes,scheduler,internet`,
			bold("optimAIzer"),
			bold("EXAMPLES:")),
		Version:       appVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if err := s.load(path); err != nil {
				return fmt.Errorf("settings file: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "settings file (default searches $HOME/.optimaizer and .)")
	flags.String("db-path", "", "store directory; an explicit empty value selects the in-memory store")
	flags.String("env-file", "", ".env file layered beneath the process environment")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")

	rootCmd.AddCommand(newServeCommand(s))
	rootCmd.AddCommand(newReplCommand(s))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// newVersionCommand creates the version subcommand.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", appVersion())
		},
	}
}
