package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
)

// agentView is the client-facing projection of a workspace config. Bot
// tokens never leave the process; the view only reports whether the
// telegram channel is configured.
type agentView struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Provider     string                `json:"provider,omitempty"`
	Model        string                `json:"model,omitempty"`
	SystemPrompt string                `json:"systemPrompt,omitempty"`
	Timezone     string                `json:"timezone,omitempty"`
	AlwaysOn     bool                  `json:"alwaysOn"`
	Permissions  workspace.Permissions `json:"permissions"`
	Telegram     telegramView          `json:"telegram"`
	Running      bool                  `json:"running"`
}

type telegramView struct {
	Configured bool  `json:"configured"`
	ChatID     int64 `json:"chatId,omitempty"`
}

// agentPayload is the create/update body. An empty bot token on update
// keeps the stored one, so clients never have to echo credentials back.
type agentPayload struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Provider     string                `json:"provider"`
	Model        string                `json:"model"`
	SystemPrompt string                `json:"systemPrompt"`
	Timezone     string                `json:"timezone"`
	AlwaysOn     bool                  `json:"alwaysOn"`
	Permissions  workspace.Permissions `json:"permissions"`
	Telegram     struct {
		BotToken string `json:"botToken"`
		ChatID   int64  `json:"chatId"`
	} `json:"telegram"`
}

func (s *Server) viewOf(cfg workspace.AgentConfig) agentView {
	return agentView{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Timezone:     cfg.Timezone,
		AlwaysOn:     cfg.AlwaysOn,
		Permissions:  cfg.Permissions,
		Telegram: telegramView{
			Configured: cfg.Integrations.Telegram.Configured(),
			ChatID:     cfg.Integrations.Telegram.ChatID,
		},
		Running: s.deps.Manager.Running(cfg.ID),
	}
}

func (s *Server) handleListAgents(c *gin.Context) {
	userID := s.deps.Identity(c.Request)
	configs, err := s.deps.Workspace.List(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	views := make([]agentView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, s.viewOf(cfg))
	}
	respondOK(c, views)
}

func (s *Server) handleGetAgent(c *gin.Context) {
	userID := s.deps.Identity(c.Request)
	cfg, err := s.deps.Workspace.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, s.viewOf(cfg))
}

func (s *Server) handleSaveAgent(c *gin.Context) {
	var payload agentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid agent payload: "+err.Error())
		return
	}
	userID := s.deps.Identity(c.Request)
	ctx := c.Request.Context()

	if pathID := c.Param("id"); pathID != "" {
		payload.ID = pathID
	}
	cfg := workspace.AgentConfig{
		ID:           payload.ID,
		OwnerUserID:  userID,
		Name:         payload.Name,
		Provider:     payload.Provider,
		Model:        payload.Model,
		SystemPrompt: payload.SystemPrompt,
		Timezone:     payload.Timezone,
		AlwaysOn:     payload.AlwaysOn,
		Permissions:  payload.Permissions,
	}
	cfg.Integrations.Telegram = workspace.TelegramIntegration{
		BotToken: payload.Telegram.BotToken,
		ChatID:   payload.Telegram.ChatID,
	}
	if cfg.ID != "" && cfg.Integrations.Telegram.BotToken == "" {
		if existing, err := s.deps.Workspace.Get(ctx, userID, cfg.ID); err == nil {
			cfg.Integrations.Telegram.BotToken = existing.Integrations.Telegram.BotToken
			if cfg.Integrations.Telegram.ChatID == 0 {
				cfg.Integrations.Telegram.ChatID = existing.Integrations.Telegram.ChatID
			}
		}
	}

	creating := payload.ID == ""
	saved, err := s.deps.Workspace.Save(ctx, cfg)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if creating {
		respondCreated(c, s.viewOf(saved))
		return
	}
	respondOK(c, s.viewOf(saved))
}

func (s *Server) handleDeleteAgent(c *gin.Context) {
	userID := s.deps.Identity(c.Request)
	ctx := c.Request.Context()
	agentID := c.Param("id")
	// Ownership check before touching the runtime: ids are guessable.
	if _, err := s.deps.Workspace.Get(ctx, userID, agentID); err != nil {
		respondDomainError(c, err)
		return
	}
	if s.deps.Manager.Stop(agentID) {
		s.hub.BroadcastLifecycle(eventAgentStopped, agentID)
	}
	if err := s.deps.Workspace.Delete(ctx, userID, agentID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondMessage(c, "agent deleted")
}

func (s *Server) handleDeployAgent(c *gin.Context) {
	userID := s.deps.Identity(c.Request)
	ctx := c.Request.Context()
	cfg, err := s.deps.Workspace.Get(ctx, userID, c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if err := s.deps.Manager.Deploy(ctx, cfg, userID); err != nil {
		respondDomainError(c, err)
		return
	}
	s.hub.BroadcastLifecycle(eventAgentDeployed, cfg.ID)
	respondOK(c, gin.H{"id": cfg.ID, "running": true})
}

func (s *Server) handleStopAgent(c *gin.Context) {
	userID := s.deps.Identity(c.Request)
	agentID := c.Param("id")
	if _, err := s.deps.Workspace.Get(c.Request.Context(), userID, agentID); err != nil {
		respondDomainError(c, err)
		return
	}
	stopped := s.deps.Manager.Stop(agentID)
	if stopped {
		s.hub.BroadcastLifecycle(eventAgentStopped, agentID)
	}
	respondOK(c, gin.H{"id": agentID, "stopped": stopped})
}

// usageView mirrors the accountant's summary with wire-friendly names.
type usageView struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	CostUSD          float64 `json:"costUsd"`
}

func (s *Server) handleUsage(c *gin.Context) {
	if s.deps.Usage == nil {
		respondError(c, http.StatusServiceUnavailable, "usage accounting is not enabled")
		return
	}
	userID := s.deps.Identity(c.Request)
	summary, err := s.deps.Usage.MonthToDate(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, usageView{
		Calls:            summary.Calls,
		PromptTokens:     summary.PromptTokens,
		CompletionTokens: summary.CompletionTokens,
		CostUSD:          summary.CostUSD,
	})
}

func (s *Server) handlePendingApprovals(c *gin.Context) {
	userID := s.deps.Identity(c.Request)
	pending := s.deps.Manager.PendingApprovals()
	mine := make([]ports.ApprovalRequest, 0, len(pending))
	for _, request := range pending {
		if request.UserID == userID {
			mine = append(mine, request)
		}
	}
	respondOK(c, mine)
}
