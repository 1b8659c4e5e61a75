package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/redaction"
	"github.com/Drakonis96/optimAIzer-sub001/internal/streaming"
)

// chatMessage is one prior turn in a stream request body.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamPayload is the body shared by the chat and summarize streams.
type streamPayload struct {
	RequestID   string            `json:"requestId"`
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	System      string            `json:"system"`
	Messages    []chatMessage     `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"maxTokens"`
	SkipCache   bool              `json:"skipCache"`
	Extras      map[string]string `json:"extras"`
}

type memberPayload struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// councilPayload fans one question out to several member models and has a
// leader model consolidate the answers. Blind hides member answers from
// the leader.
type councilPayload struct {
	streamPayload
	Members      []memberPayload `json:"members"`
	Leader       memberPayload   `json:"leader"`
	Blind        bool            `json:"blind"`
	LeaderSystem string          `json:"leaderSystem"`
}

type cancelPayload struct {
	RequestID string `json:"requestId"`
}

func portMessages(messages []chatMessage) []ports.Message {
	out := make([]ports.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, ports.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

func (s *Server) handleChatStream(c *gin.Context) {
	s.serveProviderStream(c, streaming.RouteChat)
}

func (s *Server) handleSummarizeStream(c *gin.Context) {
	s.serveProviderStream(c, streaming.RouteSummarize)
}

func (s *Server) serveProviderStream(c *gin.Context, route string) {
	var payload streamPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid stream request: "+err.Error())
		return
	}
	if len(payload.Messages) == 0 {
		respondError(c, http.StatusBadRequest, "messages must not be empty")
		return
	}
	provider, err := s.deps.Providers(payload.Provider, payload.Model)
	if err != nil {
		respondError(c, http.StatusBadRequest, redaction.RedactError(err))
		return
	}
	s.stream(c, streaming.Request{
		Route:       route,
		RequestID:   strings.TrimSpace(payload.RequestID),
		Provider:    provider,
		System:      payload.System,
		Messages:    portMessages(payload.Messages),
		Temperature: payload.Temperature,
		MaxTokens:   payload.MaxTokens,
		SkipCache:   payload.SkipCache,
		Extras:      payload.Extras,
	})
}

func (s *Server) handleCouncilStream(c *gin.Context) {
	var payload councilPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid council request: "+err.Error())
		return
	}
	if len(payload.Messages) == 0 {
		respondError(c, http.StatusBadRequest, "messages must not be empty")
		return
	}
	if len(payload.Members) == 0 {
		respondError(c, http.StatusBadRequest, "council needs at least one member")
		return
	}
	members := make([]ports.Provider, 0, len(payload.Members))
	for _, member := range payload.Members {
		provider, err := s.deps.Providers(member.Provider, member.Model)
		if err != nil {
			respondError(c, http.StatusBadRequest, redaction.RedactError(err))
			return
		}
		members = append(members, provider)
	}
	leader, err := s.deps.Providers(payload.Leader.Provider, payload.Leader.Model)
	if err != nil {
		respondError(c, http.StatusBadRequest, redaction.RedactError(err))
		return
	}
	s.stream(c, streaming.Request{
		Route:        streaming.RouteCouncil,
		RequestID:    strings.TrimSpace(payload.RequestID),
		System:       payload.System,
		Messages:     portMessages(payload.Messages),
		Temperature:  payload.Temperature,
		MaxTokens:    payload.MaxTokens,
		Extras:       payload.Extras,
		Members:      members,
		Leader:       leader,
		Blind:        payload.Blind,
		LeaderSystem: payload.LeaderSystem,
	})
}

// stream hands the request to the dispatcher with the client connection as
// the sink. The dispatcher renders failures as terminal frames, so once
// the SSE headers are out there is nothing further to report here.
func (s *Server) stream(c *gin.Context, req streaming.Request) {
	ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanSSEConnection,
		attribute.String(observability.AttrRoute, req.Route))
	defer span.End()

	sink, err := sseSink(c.Writer)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.deps.Streams.ServeStream(ctx, req, sink); err != nil {
		s.logger.Debug("stream %s ended: %v", req.Route, err)
	}
}

func (s *Server) handleCancelStream(c *gin.Context) {
	var payload cancelPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.RequestID) == "" {
		respondError(c, http.StatusBadRequest, "requestId is required")
		return
	}
	cancelled := s.deps.Streams.Cancel(payload.RequestID)
	respondOK(c, gin.H{"requestId": payload.RequestID, "cancelled": cancelled})
}
