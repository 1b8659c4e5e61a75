// Package runtime owns the set of deployed agents. The Manager starts one
// Agent per workspace config: a Telegram gateway polling the agent's chat,
// an inbox worker serializing conversation turns, a scheduler for timed and
// event-driven turns, and an approval broker fanning prompts out to the
// agent's surfaces. Deploy is an idempotent replace; StopAll drains within
// a bounded window on shutdown.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
	"github.com/Drakonis96/optimAIzer-sub001/internal/approval"
	"github.com/Drakonis96/optimAIzer-sub001/internal/channels/telegram"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/memory"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/scheduler"
	"github.com/Drakonis96/optimAIzer-sub001/internal/skills"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/toolregistry"
)

// DefaultDrainTimeout bounds how long StopAll waits for agents to wind down.
const DefaultDrainTimeout = 10 * time.Second

// DefaultInboxDepth bounds each agent's pending inbound queue.
const DefaultInboxDepth = 16

// ProviderFactory builds the model client for one agent config.
type ProviderFactory func(provider, model string) (ports.Provider, error)

// Collaborators are the deployment-level backends shared by every agent.
// Nil members leave the matching tools unregistered.
type Collaborators struct {
	Searcher    ports.WebSearcher
	Calendar    ports.CalendarBackend
	Email       ports.EmailBackend
	Home        ports.HomeBackend
	Media       ports.MediaBackend
	Transcriber ports.Transcriber
}

// Deps wires the manager's subsystems.
type Deps struct {
	Store      store.Store
	Workspace  *workspace.Workspace
	Skills     *skills.Service
	Memory     *memory.Snapshotter
	Accountant domain.UsageAccountant
	Providers  ProviderFactory
	Parser     ports.FunctionCallParser
	Collab     Collaborators

	// Poller decides whether poll-type subscriptions fire; nil leaves them
	// dormant.
	Poller scheduler.Poller

	// Prompters are shared approval surfaces (operator websocket, console)
	// attached to every agent's broker alongside its own Telegram keyboard.
	Prompters []approval.Prompter

	Logger  logging.Logger
	Metrics *observability.MetricsCollector
}

// Config tunes deployed agents.
type Config struct {
	// DrainTimeout bounds StopAll and per-agent stops; zero means
	// DefaultDrainTimeout.
	DrainTimeout time.Duration

	// InboxDepth bounds each agent's pending inbound queue; zero means
	// DefaultInboxDepth.
	InboxDepth int

	// TelegramBaseURL overrides the bot API host, for tests and proxies.
	TelegramBaseURL string

	// PollTimeout is the transport long-poll window.
	PollTimeout time.Duration

	// Approval tunes each agent's broker (decision timeout).
	Approval approval.Config

	// Engine carries turn-loop defaults; the agent's own system prompt
	// overrides Engine.SystemPrompt when set.
	Engine domain.Config

	// Dedup tunes the calendar-creation idempotency window.
	Dedup toolregistry.DedupConfig

	// WorkDir is the terminal tool's working directory.
	WorkDir string
}

func (c Config) withDefaults() Config {
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.InboxDepth <= 0 {
		c.InboxDepth = DefaultInboxDepth
	}
	return c
}

// Manager owns the running agents, keyed by agent id.
type Manager struct {
	deps   Deps
	config Config
	logger logging.Logger

	mu     sync.Mutex
	agents map[string]*Agent
}

// NewManager builds a manager; agents start through Deploy.
func NewManager(deps Deps, config Config) *Manager {
	return &Manager{
		deps:   deps,
		config: config.withDefaults(),
		logger: logging.OrNop(deps.Logger),
		agents: make(map[string]*Agent),
	}
}

// Deploy starts a runtime for the agent config, replacing any runtime
// already deployed under the same id. The previous runtime is fully stopped
// before the new transport starts polling, so two pollers never contend for
// the same bot token.
func (m *Manager) Deploy(ctx context.Context, cfg workspace.AgentConfig, userID string) error {
	if userID == "" {
		userID = cfg.OwnerUserID
	}
	if cfg.OwnerUserID == "" {
		cfg.OwnerUserID = userID
	}
	if cfg.OwnerUserID != userID {
		return errors.NewValidation("ownerUserId", "config belongs to another user")
	}
	if cfg.ID == "" {
		return errors.NewValidation("id", "agent id is required; save the config first")
	}
	if !cfg.Integrations.Telegram.Configured() {
		return errors.NewValidation("integrations.telegram", "bot token and chat id are required to deploy")
	}
	if m.deps.Providers == nil {
		return errors.NewInternal(fmt.Errorf("no provider factory configured"))
	}

	m.mu.Lock()
	previous := m.agents[cfg.ID]
	delete(m.agents, cfg.ID)
	m.mu.Unlock()
	if previous != nil {
		previous.stop(m.config.DrainTimeout)
		m.logger.Info("agent %s: previous runtime stopped for redeploy", cfg.ID)
	}

	agent, err := m.buildAgent(cfg)
	if err != nil {
		return err
	}
	if err := agent.start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.agents[cfg.ID] = agent
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.AgentStarted(ctx)
	}
	m.logger.Info("agent %s deployed for user %s (%s/%s)", cfg.ID, cfg.OwnerUserID, cfg.Provider, cfg.Model)
	return nil
}

// Stop winds one agent down. Returns false when no runtime is deployed
// under the id.
func (m *Manager) Stop(agentID string) bool {
	m.mu.Lock()
	agent := m.agents[agentID]
	delete(m.agents, agentID)
	m.mu.Unlock()
	if agent == nil {
		return false
	}

	agent.stop(m.config.DrainTimeout)
	if m.deps.Metrics != nil {
		m.deps.Metrics.AgentStopped(context.Background())
	}
	m.logger.Info("agent %s stopped", agentID)
	return true
}

// StopAll winds every agent down in parallel and waits up to the drain
// timeout for the set to finish.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	agents := make([]*Agent, 0, len(m.agents))
	for id, agent := range m.agents {
		agents = append(agents, agent)
		delete(m.agents, id)
	}
	m.mu.Unlock()
	if len(agents) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, agent := range agents {
		wg.Add(1)
		go func(a *Agent) {
			defer wg.Done()
			a.stop(m.config.DrainTimeout)
			if m.deps.Metrics != nil {
				m.deps.Metrics.AgentStopped(ctx)
			}
		}(agent)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("all %d agents stopped", len(agents))
	case <-time.After(m.config.DrainTimeout):
		m.logger.Warn("drain window elapsed with agents still stopping")
	case <-ctx.Done():
		m.logger.Warn("shutdown context cancelled while draining agents")
	}
}

// ListRunning returns the deployed agent ids, sorted.
func (m *Manager) ListRunning() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Running reports whether an agent runtime is deployed under the id.
func (m *Manager) Running(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.agents[agentID]
	return ok
}

// ResolveApproval routes an operator or console decision to whichever
// agent's broker holds the pending request. Returns false when no running
// agent recognizes the id.
func (m *Manager) ResolveApproval(requestID string, approved bool, actor, note string) bool {
	for _, agent := range m.snapshot() {
		if agent.broker.Resolve(requestID, approved, actor, note) {
			return true
		}
	}
	return false
}

// PendingApprovals lists unresolved approval requests across every running
// agent, ordered by request id. Operator surfaces replay these on connect.
func (m *Manager) PendingApprovals() []ports.ApprovalRequest {
	var out []ports.ApprovalRequest
	for _, agent := range m.snapshot() {
		out = append(out, agent.broker.Pending()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) snapshot() []*Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	agents := make([]*Agent, 0, len(m.agents))
	for _, agent := range m.agents {
		agents = append(agents, agent)
	}
	return agents
}

// AutoStartAlwaysOn deploys every always-on agent across all users at boot.
// Failures are isolated per agent: each is logged and the rest still start.
// Returns how many agents came up.
func (m *Manager) AutoStartAlwaysOn(ctx context.Context) (int, error) {
	if m.deps.Workspace == nil {
		return 0, errors.NewInternal(fmt.Errorf("no workspace configured"))
	}
	configs, err := m.deps.Workspace.AlwaysOn(ctx)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, cfg := range configs {
		if err := m.Deploy(ctx, cfg, cfg.OwnerUserID); err != nil {
			m.logger.Error("auto-start of agent %s (user %s) failed: %v", cfg.ID, cfg.OwnerUserID, err)
			continue
		}
		started++
	}
	m.logger.Info("auto-start finished: %d/%d always-on agents running", started, len(configs))
	return started, nil
}

// buildAgent assembles the full per-agent stack without starting anything.
func (m *Manager) buildAgent(cfg workspace.AgentConfig) (*Agent, error) {
	provider, err := m.deps.Providers(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("provider for agent %s: %w", cfg.ID, err)
	}

	logger := logging.OrNop(m.deps.Logger)
	agent := &Agent{
		id:          cfg.ID,
		userID:      cfg.OwnerUserID,
		config:      cfg,
		transcriber: m.deps.Collab.Transcriber,
		store:       m.deps.Store,
		logger:      logger,
		metrics:     m.deps.Metrics,
		inbox:       newInbox(m.config.InboxDepth),
	}

	gateway, err := telegram.NewGateway(telegram.Config{
		Token:       cfg.Integrations.Telegram.BotToken,
		ChatID:      fmt.Sprintf("%d", cfg.Integrations.Telegram.ChatID),
		BaseURL:     m.config.TelegramBaseURL,
		PollTimeout: m.config.PollTimeout,
	}, agent, logger)
	if err != nil {
		return nil, fmt.Errorf("transport for agent %s: %w", cfg.ID, err)
	}
	agent.gateway = gateway

	broker := approval.NewBroker(m.config.Approval, m.deps.Store, logger)
	broker.AddPrompter(approval.NewKeyboardPrompter(gateway, logger))
	for _, prompter := range m.deps.Prompters {
		broker.AddPrompter(prompter)
	}
	agent.broker = broker

	sched := scheduledTurns(m.deps, cfg, agent, gateway)
	agent.scheduler = sched

	registry := m.buildRegistry(cfg, gateway, sched)

	engineCfg := m.config.Engine
	if cfg.SystemPrompt != "" {
		engineCfg.SystemPrompt = cfg.SystemPrompt
	}
	agent.engine = domain.NewEngine(domain.Dependencies{
		Provider:   provider,
		Registry:   registry,
		Parser:     m.deps.Parser,
		Approver:   broker,
		Enricher:   m.buildEnricher(cfg),
		Accountant: m.deps.Accountant,
		Logger:     logger,
		Metrics:    m.deps.Metrics,
	}, engineCfg)

	return agent, nil
}

func (m *Manager) buildEnricher(cfg workspace.AgentConfig) domain.ContextEnricher {
	var enrichers []domain.ContextEnricher
	if m.deps.Skills != nil {
		enrichers = append(enrichers, m.deps.Skills.Enricher(cfg.OwnerUserID, cfg.ID))
	}
	if m.deps.Memory != nil {
		enrichers = append(enrichers, m.deps.Memory.Enricher(cfg.OwnerUserID, cfg.ID))
	}
	return domain.CombineEnrichers(enrichers...)
}
