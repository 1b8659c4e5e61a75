package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Drakonis96/optimAIzer-sub001/internal/channels/telegram"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/redaction"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

const (
	healthProbeKey     = "healthz:probe"
	healthProbeTimeout = 2 * time.Second
)

// healthView reports component states for readiness probes.
type healthView struct {
	Status          string            `json:"status"`
	Version         string            `json:"version"`
	Uptime          string            `json:"uptime"`
	Components      map[string]string `json:"components"`
	AgentsRunning   int               `json:"agentsRunning"`
	StreamsInFlight int               `json:"streamsInFlight"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	status := "ok"
	components := map[string]string{}

	if _, err := s.deps.Store.Get(ctx, healthProbeKey); err != nil && !stderrors.Is(err, store.ErrNotFound) {
		components["store"] = "error: " + redaction.RedactError(err)
		status = "degraded"
	} else {
		components["store"] = "ok"
	}

	base := s.config.TelegramBaseURL
	if base == "" {
		base = telegram.DefaultBaseURL
	}
	components["transport"] = "telegram " + base

	running := len(s.deps.Manager.ListRunning())
	components["scheduler"] = fmt.Sprintf("running for %d agents", running)

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, healthView{
		Status:          status,
		Version:         s.config.Version,
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		Components:      components,
		AgentsRunning:   running,
		StreamsInFlight: s.deps.Streams.InFlight(),
	})
}
