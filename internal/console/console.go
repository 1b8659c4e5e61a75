// Package console runs one agent as a local terminal session. The stack is
// the same one a deployed agent runs (tools, scheduler, approval broker,
// budget accounting) minus the Telegram transport: input comes from
// readline, replies stream to the terminal, scheduled deliveries print over
// the prompt, and approval prompts resolve inline.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/runtime"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
	"github.com/Drakonis96/optimAIzer-sub001/internal/approval"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/memory"
	"github.com/Drakonis96/optimAIzer-sub001/internal/scheduler"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/redaction"
	"github.com/Drakonis96/optimAIzer-sub001/internal/skills"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/toolregistry"
	"github.com/Drakonis96/optimAIzer-sub001/internal/tools/builtin"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// DefaultOwner scopes console sessions that run without a saved agent.
const DefaultOwner = "console"

// HistoryFileName is the readline history file created in the home
// directory when Config.HistoryFile is empty.
const HistoryFileName = ".optimaizer-history"

const defaultWidth = 100

// Config tunes one console session.
type Config struct {
	// Agent is the configuration the session runs. Missing identity fields
	// get console defaults, so an ephemeral session needs nothing saved.
	Agent workspace.AgentConfig

	// HistoryFile overrides the readline history path.
	HistoryFile string

	// Width bounds markdown rendering; zero means 100 columns.
	Width int

	// Plain disables color and markdown rendering.
	Plain bool

	// SkillsDir names a directory of skill Markdown files to import when
	// the session starts.
	SkillsDir string

	// Input and Output override the terminal streams, for tests. Input
	// only feeds approval answers; line editing always reads the real
	// stdin.
	Input  io.Reader
	Output io.Writer

	Approval approval.Config
	Engine   domain.Config
	Dedup    toolregistry.DedupConfig
	WorkDir  string
}

// Deps wires the session's subsystems. Store and Providers are required;
// nil optional members disable the matching feature, exactly as in the
// runtime manager.
type Deps struct {
	Store      store.Store
	Skills     *skills.Service
	Memory     *memory.Snapshotter
	Accountant domain.UsageAccountant
	Providers  runtime.ProviderFactory
	Parser     ports.FunctionCallParser
	Collab     runtime.Collaborators
	Poller     scheduler.Poller
	Logger     logging.Logger
}

// Session is one local agent run.
type Session struct {
	agent         workspace.AgentConfig
	engine        *domain.Engine
	sched         *scheduler.Scheduler
	skills        *skills.Service
	out           *printer
	logger        logging.Logger
	providerName  string
	providerModel string

	width       int
	plain       bool
	historyFile string
	skillsDir   string

	noteColor *color.Color
	errColor  *color.Color
}

// New assembles a session. Nothing starts until Run.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("console: nil store")
	}
	if deps.Providers == nil {
		return nil, fmt.Errorf("console: nil provider factory")
	}

	agent := cfg.Agent
	if agent.ID == "" {
		agent.ID = id.NewAgentID()
	}
	if agent.OwnerUserID == "" {
		agent.OwnerUserID = DefaultOwner
	}
	if agent.Name == "" {
		agent.Name = "console"
	}

	provider, err := deps.Providers(agent.Provider, agent.Model)
	if err != nil {
		return nil, fmt.Errorf("console provider: %w", err)
	}

	logger := logging.OrNop(deps.Logger)
	s := &Session{
		agent:         agent,
		skills:        deps.Skills,
		out:           newPrinter(cfg.Output),
		logger:        logger,
		providerName:  provider.Name(),
		providerModel: provider.Model(),
		width:         cfg.Width,
		plain:         cfg.Plain,
		historyFile:   cfg.HistoryFile,
		skillsDir:     cfg.SkillsDir,
		noteColor:     color.New(color.Faint),
		errColor:      color.New(color.FgRed),
	}
	if s.width <= 0 {
		s.width = defaultWidth
	}
	if s.plain {
		s.noteColor.DisableColor()
		s.errColor.DisableColor()
	}
	if s.historyFile == "" {
		home, _ := os.UserHomeDir()
		s.historyFile = filepath.Join(home, HistoryFileName)
	}

	broker := approval.NewBroker(cfg.Approval, deps.Store, logger)
	broker.AddPrompter(newApprovalPrompter(cfg.Input, s.out, broker, cfg.Plain))

	s.sched = scheduler.New(scheduler.Deps{
		Store:    deps.Store,
		Runner:   s,
		Outbound: &consoleOutbound{session: s},
		Poller:   deps.Poller,
		Logger:   logger,
	}, scheduler.Config{
		UserID:        agent.OwnerUserID,
		AgentID:       agent.ID,
		AgentTimezone: agent.Timezone,
	})

	// No Outbound in the registry: there is no chat to message, so the
	// send tool stays unregistered and the reply channel is the terminal.
	registry := builtin.BuildRegistry(builtin.Binding{
		Store:     deps.Store,
		UserID:    agent.OwnerUserID,
		AgentID:   agent.ID,
		Logger:    logger,
		Timezone:  agent.Timezone,
		AllowHost: agent.Permissions.AllowsHost,
	}, builtin.Collaborators{
		Scheduler: s.sched,
		Searcher:  deps.Collab.Searcher,
		Calendar:  deps.Collab.Calendar,
		Email:     deps.Collab.Email,
		Home:      deps.Collab.Home,
		Media:     deps.Collab.Media,
	}, builtin.RegistryConfig{
		Permissions: agent.Permissions.Check,
		Dedup:       cfg.Dedup,
		WorkDir:     cfg.WorkDir,
	})

	engineCfg := cfg.Engine
	if agent.SystemPrompt != "" {
		engineCfg.SystemPrompt = agent.SystemPrompt
	}
	var enrichers []domain.ContextEnricher
	if deps.Skills != nil {
		enrichers = append(enrichers, deps.Skills.Enricher(agent.OwnerUserID, agent.ID))
	}
	if deps.Memory != nil {
		enrichers = append(enrichers, deps.Memory.Enricher(agent.OwnerUserID, agent.ID))
	}
	s.engine = domain.NewEngine(domain.Dependencies{
		Provider:   provider,
		Registry:   registry,
		Parser:     deps.Parser,
		Approver:   broker,
		Enricher:   domain.CombineEnrichers(enrichers...),
		Accountant: deps.Accountant,
		Logger:     logger,
	}, engineCfg)

	return s, nil
}

// Run drives the REPL until exit, EOF, or interrupt. The scheduler runs for
// the whole session, so reminders set at the prompt fire while it is open.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(id.WithAgentID(id.WithUserID(ctx, s.agent.OwnerUserID), s.agent.ID))
	defer cancel()

	if err := s.sched.Start(runCtx); err != nil {
		return fmt.Errorf("console scheduler: %w", err)
	}
	defer s.sched.Stop()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       s.historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		UniqueEditLine:    true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            s.out.base,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("console input: %w", err)
	}
	defer rl.Close()
	s.out.attach(rl.Stdout())
	defer s.out.detach()

	if err := s.importSkills(runCtx); err != nil {
		return err
	}
	s.banner()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}
		if s.handleLine(runCtx, strings.TrimSpace(line)) {
			break
		}
	}
	s.out.println("Goodbye!")
	return nil
}

// importSkills loads skill files when the session was pointed at a
// directory. Import upserts by name, so reusing the directory across
// sessions refreshes records rather than duplicating them.
func (s *Session) importSkills(ctx context.Context) error {
	if s.skills == nil || s.skillsDir == "" {
		return nil
	}
	imported, err := s.skills.ImportDir(ctx, s.agent.OwnerUserID, s.agent.ID, s.skillsDir)
	if err != nil {
		return fmt.Errorf("import skills: %w", err)
	}
	if len(imported) > 0 {
		s.out.println(s.noteColor.Sprintf("%d skills loaded from %s", len(imported), s.skillsDir))
	}
	return nil
}

// printSkills lists the agent's stored skills and their triggers.
func (s *Session) printSkills(ctx context.Context) {
	if s.skills == nil {
		s.out.println(s.noteColor.Sprint("skills are not enabled for this session"))
		return
	}
	list, err := s.skills.List(ctx, s.agent.OwnerUserID, s.agent.ID)
	if err != nil {
		s.out.println(s.errColor.Sprint("error: " + redaction.RedactError(err)))
		return
	}
	if len(list) == 0 {
		s.out.println(s.noteColor.Sprint("no skills stored"))
		return
	}
	for _, skill := range list {
		line := "• " + skill.Name
		if len(skill.Triggers) > 0 {
			line += " (" + strings.Join(skill.Triggers, ", ") + ")"
		}
		s.out.println(line)
	}
}

func (s *Session) banner() {
	s.out.println("optimAIzer console")
	s.out.printf("Agent: %s (%s/%s)\n", s.agent.Name, s.providerName, s.providerModel)
	s.out.println("Type a message and press Enter. 'exit' quits, '/clear' resets the conversation, '/skills' lists stored skills.")
	s.out.println("Use ↑/↓ to walk the input history.")
	s.out.println("")
}

// handleLine runs one REPL input. Returns true when the session should end.
func (s *Session) handleLine(ctx context.Context, line string) bool {
	switch line {
	case "":
		return false
	case "exit", "quit", "q":
		return true
	case "/clear":
		s.engine.ClearHistory()
		s.out.println(s.noteColor.Sprint("conversation cleared"))
		return false
	case "/skills":
		s.printSkills(ctx)
		return false
	}

	if fired := s.sched.FireKeywords(ctx, line); fired > 0 {
		s.logger.Debug("console: %d keyword subscriptions fired", fired)
	}
	s.runTurn(ctx, line)
	return false
}

// runTurn streams one user turn to the terminal. Replies that carry fenced
// code, tables, or headings print again rendered, because those are hard to
// read as raw markdown.
func (s *Session) runTurn(ctx context.Context, text string) {
	result, err := s.RunTurn(ctx, domain.Stimulus{
		Kind: domain.StimulusUser,
		Text: text,
		Sink: func(token string) { s.out.print(token) },
	})
	if err != nil {
		s.out.println("")
		s.out.println(s.errColor.Sprint("error: " + redaction.RedactError(err)))
		s.out.println("")
		return
	}

	s.out.println("")
	if !s.plain && rendersRicher(result.Text) {
		s.out.println(strings.TrimRight(renderMarkdown(result.Text, s.width), "\n"))
	}
	s.out.println(s.noteColor.Sprintf("✓ %d rounds, %d tokens", result.Rounds, result.Usage.TotalTokens))
	s.out.println("")
}

// RunTurn implements scheduler.TurnRunner. Scheduled turns run without a
// sink; the scheduler hands the buffered reply back through the outbound.
func (s *Session) RunTurn(ctx context.Context, stim domain.Stimulus) (*domain.TurnResult, error) {
	if id.UserIDFromContext(ctx) == "" {
		ctx = id.WithUserID(ctx, s.agent.OwnerUserID)
	}
	if id.AgentIDFromContext(ctx) == "" {
		ctx = id.WithAgentID(ctx, s.agent.ID)
	}
	ctx, _ = id.EnsureRequestID(ctx, id.NewRequestID)
	return s.engine.RunTurn(ctx, stim)
}

// printDelivery shows an out-of-band message (a reminder or subscription
// reply) above whatever the prompt is doing.
func (s *Session) printDelivery(text string) {
	body := strings.TrimSpace(text)
	if body == "" {
		return
	}
	if !s.plain {
		body = strings.TrimRight(renderMarkdown(body, s.width), "\n")
	}
	s.out.deliver("\n" + s.noteColor.Sprint("⏰ scheduled message") + "\n" + body + "\n\n")
}
