// Package workspace persists agent configurations. Each user owns one
// workspace document holding their agents; credentials inside it are sealed
// with the process codec before they touch the store and opened again on
// read.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/secrets"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// TelegramIntegration is the agent's messaging channel configuration. ChatID
// is the single authorized chat; BotToken is sealed at rest.
type TelegramIntegration struct {
	BotToken string `json:"botToken,omitempty"`
	ChatID   int64  `json:"chatId,omitempty"`
}

// Configured reports whether the channel can actually poll and send.
func (t TelegramIntegration) Configured() bool {
	return strings.TrimSpace(t.BotToken) != "" && t.ChatID != 0
}

// Integrations configures the agent's external surfaces. Telegram is the
// messaging channel the runtime drives itself; collaborator backends
// (calendar, email, home automation, media) are injected at bootstrap and
// carry their own configuration.
type Integrations struct {
	Telegram TelegramIntegration `json:"telegram,omitempty"`
}

// AgentConfig is one deployable agent as stored in the owner's workspace.
type AgentConfig struct {
	ID           string       `json:"id"`
	OwnerUserID  string       `json:"ownerUserId"`
	Name         string       `json:"name"`
	Provider     string       `json:"provider,omitempty"`
	Model        string       `json:"model,omitempty"`
	SystemPrompt string       `json:"systemPrompt,omitempty"`
	Timezone     string       `json:"timezone,omitempty"`
	Permissions  Permissions  `json:"permissions"`
	Integrations Integrations `json:"integrations"`
	AlwaysOn     bool         `json:"alwaysOn,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Workspace reads and writes agent configurations in the keyed store.
type Workspace struct {
	store  store.Store
	codec  *secrets.Codec
	logger logging.Logger
	now    func() time.Time
}

// New builds a workspace over the keyed store. codec may be nil; then
// credentials persist as plaintext and stored envelopes fail to open until a
// key is configured.
func New(st store.Store, codec *secrets.Codec, logger logging.Logger) *Workspace {
	return &Workspace{
		store:  st,
		codec:  codec,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source.
func (w *Workspace) WithClock(now func() time.Time) *Workspace {
	w.now = now
	return w
}

// List returns the user's agents with credentials opened, sorted by creation
// time.
func (w *Workspace) List(ctx context.Context, userID string) ([]AgentConfig, error) {
	agents, err := w.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if err := w.open(&agents[i]); err != nil {
			return nil, err
		}
	}
	return agents, nil
}

// Get returns one agent with credentials opened.
func (w *Workspace) Get(ctx context.Context, userID, agentID string) (AgentConfig, error) {
	agents, err := w.load(ctx, userID)
	if err != nil {
		return AgentConfig{}, err
	}
	for i := range agents {
		if agents[i].ID == agentID {
			if err := w.open(&agents[i]); err != nil {
				return AgentConfig{}, err
			}
			return agents[i], nil
		}
	}
	return AgentConfig{}, errors.NewNotFound("agent", agentID)
}

// Save validates and upserts an agent. A missing ID is generated; CreatedAt
// survives updates. The returned config is the stored one with credentials
// still open.
func (w *Workspace) Save(ctx context.Context, cfg AgentConfig) (AgentConfig, error) {
	if strings.TrimSpace(cfg.OwnerUserID) == "" {
		return AgentConfig{}, errors.NewValidation("ownerUserId", "owner is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return AgentConfig{}, errors.NewValidation("name", "agent name is required")
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return AgentConfig{}, errors.NewValidation("timezone", fmt.Sprintf("unknown timezone %q", cfg.Timezone))
		}
	}
	if cfg.AlwaysOn && !cfg.Integrations.Telegram.Configured() {
		return AgentConfig{}, errors.NewValidation("alwaysOn", "an always-on agent needs messaging credentials")
	}

	if cfg.ID == "" {
		cfg.ID = id.NewAgentID()
	}
	now := w.now()
	cfg.UpdatedAt = now

	agents, err := w.load(ctx, cfg.OwnerUserID)
	if err != nil {
		return AgentConfig{}, err
	}

	replaced := false
	for i := range agents {
		if agents[i].ID == cfg.ID {
			cfg.CreatedAt = agents[i].CreatedAt
			agents[i] = cfg
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.CreatedAt = now
		agents = append(agents, cfg)
	}

	if err := w.persist(ctx, cfg.OwnerUserID, agents); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// Delete removes an agent from its owner's workspace.
func (w *Workspace) Delete(ctx context.Context, userID, agentID string) error {
	agents, err := w.load(ctx, userID)
	if err != nil {
		return err
	}
	kept := agents[:0]
	for _, agent := range agents {
		if agent.ID != agentID {
			kept = append(kept, agent)
		}
	}
	if len(kept) == len(agents) {
		return errors.NewNotFound("agent", agentID)
	}
	return w.persist(ctx, userID, kept)
}

// AlwaysOn scans every user's workspace and returns the agents marked
// always-on, credentials opened. Workspaces that fail to decode or open are
// skipped with a warning so one bad document cannot block startup.
func (w *Workspace) AlwaysOn(ctx context.Context) ([]AgentConfig, error) {
	entries, err := w.store.Scan(ctx, "user:")
	if err != nil {
		return nil, fmt.Errorf("scan workspaces: %w", err)
	}

	var out []AgentConfig
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Key, ":agentWorkspace") {
			continue
		}
		var agents []AgentConfig
		if err := json.Unmarshal(entry.Value, &agents); err != nil {
			w.logger.Warn("workspace %s unreadable, skipping: %v", entry.Key, err)
			continue
		}
		for i := range agents {
			if !agents[i].AlwaysOn {
				continue
			}
			if err := w.open(&agents[i]); err != nil {
				w.logger.Warn("agent %s credentials unreadable, skipping: %v", agents[i].ID, err)
				continue
			}
			out = append(out, agents[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (w *Workspace) load(ctx context.Context, userID string) ([]AgentConfig, error) {
	var agents []AgentConfig
	err := store.GetJSON(ctx, w.store, store.UserWorkspaceKey(userID), &agents)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	return agents, nil
}

func (w *Workspace) persist(ctx context.Context, userID string, agents []AgentConfig) error {
	sealed := make([]AgentConfig, len(agents))
	for i, agent := range agents {
		s, err := w.seal(agent)
		if err != nil {
			return fmt.Errorf("seal agent %s: %w", agent.ID, err)
		}
		sealed[i] = s
	}
	return store.PutJSON(ctx, w.store, store.UserWorkspaceKey(userID), sealed)
}

// seal encrypts the credential-bearing fields. Without a codec values stay
// as they are; already-sealed values are never double-wrapped.
func (w *Workspace) seal(cfg AgentConfig) (AgentConfig, error) {
	if w.codec == nil {
		return cfg, nil
	}
	if tok := cfg.Integrations.Telegram.BotToken; tok != "" && !secrets.IsEnvelope(tok) {
		sealed, err := w.codec.Encrypt(tok)
		if err != nil {
			return AgentConfig{}, err
		}
		cfg.Integrations.Telegram.BotToken = sealed
	}
	if len(cfg.Permissions.WebCredentials) > 0 {
		out := make(map[string]string, len(cfg.Permissions.WebCredentials))
		for k, v := range cfg.Permissions.WebCredentials {
			if secrets.IsEnvelope(v) {
				out[k] = v
				continue
			}
			sealed, err := w.codec.Encrypt(v)
			if err != nil {
				return AgentConfig{}, err
			}
			out[k] = sealed
		}
		cfg.Permissions.WebCredentials = out
	}
	return cfg, nil
}

// open decrypts the credential-bearing fields in place. Plaintext legacy
// values pass through; envelopes without a codec are an error so the caller
// refuses to run an agent whose credentials it cannot read.
func (w *Workspace) open(cfg *AgentConfig) error {
	tok, err := w.codec.Decrypt(cfg.Integrations.Telegram.BotToken)
	if err != nil {
		return err
	}
	cfg.Integrations.Telegram.BotToken = tok

	if len(cfg.Permissions.WebCredentials) > 0 {
		opened, err := w.codec.DecryptMap(cfg.Permissions.WebCredentials)
		if err != nil {
			return err
		}
		cfg.Permissions.WebCredentials = opened
	}
	return nil
}
