package main

import (
	"github.com/spf13/cobra"

	"github.com/Drakonis96/optimAIzer-sub001/internal/config"
	"github.com/Drakonis96/optimAIzer-sub001/internal/server/bootstrap"
)

// newServeCommand creates the serve subcommand. It boots the full runtime
// (store, agent manager, scheduler, HTTP API) and blocks until a shutdown
// signal.
func newServeCommand(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent runtime HTTP server",
		Long: `Run the agent runtime: the store opens, always-on agents deploy, and the
HTTP API serves agent management, streaming chat and the operator socket.
The process drains running agents and stops on SIGINT or SIGTERM.

Without model provider keys the scripted fallback provider answers every
conversation, which keeps smoke deployments usable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.Run(bootstrap.Options{
				ConfigOptions: []config.Option{
					config.WithOverrides(s.overrides(cmd.Flags())),
				},
				Version: appVersion(),
			})
		},
	}

	flags := cmd.Flags()
	flags.IntP("port", "p", 0, "HTTP listen port")
	flags.String("cors-origin", "", "allowed CORS origin")
	flags.String("environment", "", "deployment environment: development or production")

	return cmd
}
