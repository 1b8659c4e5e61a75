package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
	"github.com/Drakonis96/optimAIzer-sub001/internal/approval"
	"github.com/Drakonis96/optimAIzer-sub001/internal/config"
	"github.com/Drakonis96/optimAIzer-sub001/internal/console"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/memory"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/parser"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/secrets"
	"github.com/Drakonis96/optimAIzer-sub001/internal/server/bootstrap"
	"github.com/Drakonis96/optimAIzer-sub001/internal/skills"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/usage"
)

// defaultAllow is the capability set an ephemeral console agent starts with.
// Everything else is opt-in through --allow.
var defaultAllow = []string{"notes", "scheduler"}

// newReplCommand creates the repl subcommand: one agent as a local terminal
// session, on the same store a server on the same db path would use.
func newReplCommand(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Chat with one agent in the terminal",
		Long: `Chat with one agent in the terminal. The session runs the full agent
stack (tools, scheduler, approval prompts, budget accounting); only the
Telegram transport is absent. Without --agent an ephemeral agent runs with
the flags below; with --agent the saved configuration loads from the store.

Without model provider keys the scripted fallback provider answers, so the
repl works out of the box.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(cmd, s)
		},
	}

	flags := cmd.Flags()
	flags.String("agent", "", "saved agent id to run")
	flags.String("user", console.DefaultOwner, "owner user id the agent belongs to")
	flags.String("name", "", "agent name for an ephemeral session")
	flags.String("provider", "", "model provider (default scripted)")
	flags.String("model", "", "model name")
	flags.String("system-prompt", "", "system prompt for an ephemeral session")
	flags.String("timezone", "", "IANA timezone for schedules")
	flags.StringSlice("allow", defaultAllow,
		"allowed tool categories: notes, scheduler, internet, browser, calendar, email, media, terminal, code, all")
	flags.Bool("plain", false, "disable color and markdown rendering")
	flags.Int("width", 0, "render width in columns")
	flags.String("history-file", "", "readline history file")
	flags.String("workdir", "", "working directory for the terminal tool")
	flags.String("skills-dir", "", "directory of skill markdown files to import at start")

	return cmd
}

func runRepl(cmd *cobra.Command, s *settings) error {
	flags := cmd.Flags()

	cfg, meta, err := config.Load(config.WithOverrides(s.overrides(flags)))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The terminal belongs to the conversation: logs go to stderr and stay
	// quiet unless a level was configured.
	if meta.Source("log_level") == config.SourceDefault {
		cfg.Observability.Logging.Level = "warn"
	}
	cfg.Observability.Logging.Output = cmd.ErrOrStderr()
	logger := logging.FromObservabilityWithComponent(
		observability.NewLogger(cfg.Observability.Logging), "console")

	st, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close: %v", err)
		}
	}()

	agent, err := resolveAgent(cmd.Context(), flags, cfg, st, logger)
	if err != nil {
		return err
	}

	factory, err := bootstrap.DefaultProviderBuilder()(cfg)
	if err != nil {
		return fmt.Errorf("provider factory: %w", err)
	}

	plain, _ := flags.GetBool("plain")
	width, _ := flags.GetInt("width")
	historyFile, _ := flags.GetString("history-file")
	workDir, _ := flags.GetString("workdir")
	skillsDir, _ := flags.GetString("skills-dir")

	session, err := console.New(console.Config{
		Agent:       agent,
		HistoryFile: historyFile,
		Width:       width,
		Plain:       plain,
		SkillsDir:   skillsDir,
		Approval:    approval.Config{Timeout: cfg.ApprovalTimeout},
		WorkDir:     workDir,
	}, console.Deps{
		Store:  st,
		Skills: skills.NewService(st, logger),
		Memory: memory.NewSnapshotter(st, logger),
		Accountant: usage.NewAccountant(st, usage.Config{
			MonthlyLimitUSD:    cfg.Budget.MonthlyLimitUSD,
			PromptUSDPer1K:     cfg.Budget.PromptUSDPer1K,
			CompletionUSDPer1K: cfg.Budget.CompletionUSDPer1K,
		}, logger),
		Providers: factory,
		Parser:    parser.New(logger),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	return session.Run(cmd.Context())
}

// resolveAgent builds the agent configuration for the session: the saved one
// when --agent names it, otherwise an ephemeral one from flags. Explicitly
// set flags override saved fields, so a saved agent can run against another
// model without editing it.
func resolveAgent(ctx context.Context, flags *pflag.FlagSet, cfg config.RuntimeConfig, st store.Store, logger logging.Logger) (workspace.AgentConfig, error) {
	agentID, _ := flags.GetString("agent")
	owner, _ := flags.GetString("user")

	var agent workspace.AgentConfig
	if agentID != "" {
		var codec *secrets.Codec
		if cfg.CredentialsKey != "" {
			var err error
			codec, err = secrets.NewCodec(cfg.CredentialsKey)
			if err != nil {
				return workspace.AgentConfig{}, fmt.Errorf("credentials codec: %w", err)
			}
		}
		loaded, err := workspace.New(st, codec, logger).Get(ctx, owner, agentID)
		if err != nil {
			return workspace.AgentConfig{}, fmt.Errorf("load agent %s: %w", agentID, err)
		}
		agent = loaded
	} else {
		agent.OwnerUserID = owner
	}

	if flags.Changed("name") {
		agent.Name, _ = flags.GetString("name")
	}
	if flags.Changed("provider") {
		agent.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		agent.Model, _ = flags.GetString("model")
	}
	if flags.Changed("system-prompt") {
		agent.SystemPrompt, _ = flags.GetString("system-prompt")
	}
	if flags.Changed("timezone") {
		agent.Timezone, _ = flags.GetString("timezone")
	}
	if agentID == "" || flags.Changed("allow") {
		allow, _ := flags.GetStringSlice("allow")
		perms, err := permissionsFromAllow(allow)
		if err != nil {
			return workspace.AgentConfig{}, err
		}
		agent.Permissions = perms
	}

	return agent, nil
}

var allowBits = map[string]func(*workspace.Permissions){
	"notes":     func(p *workspace.Permissions) { p.NotesAccess = true },
	"scheduler": func(p *workspace.Permissions) { p.SchedulerAccess = true },
	"internet":  func(p *workspace.Permissions) { p.InternetAccess = true },
	"browser":   func(p *workspace.Permissions) { p.HeadlessBrowser = true },
	"calendar":  func(p *workspace.Permissions) { p.CalendarAccess = true },
	"email":     func(p *workspace.Permissions) { p.GmailAccess = true },
	"media":     func(p *workspace.Permissions) { p.MediaAccess = true },
	"terminal":  func(p *workspace.Permissions) { p.TerminalAccess = true },
	"code":      func(p *workspace.Permissions) { p.CodeExecution = true },
}

// permissionsFromAllow maps --allow category names onto the agent capability
// set. "all" enables every category.
func permissionsFromAllow(categories []string) (workspace.Permissions, error) {
	var perms workspace.Permissions
	for _, raw := range categories {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == "all" {
			for _, enable := range allowBits {
				enable(&perms)
			}
			continue
		}
		enable, ok := allowBits[name]
		if !ok {
			return workspace.Permissions{}, fmt.Errorf("unknown permission category %q", raw)
		}
		enable(&perms)
	}
	return perms, nil
}
