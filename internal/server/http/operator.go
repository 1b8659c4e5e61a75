package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

// Operator socket message types.
const (
	eventApprovalRequest  = "approval_request"
	eventApprovalResolved = "approval_resolved"
	eventAgentDeployed    = "agent_deployed"
	eventAgentStopped     = "agent_stopped"
	eventDecisionAck      = "decision_ack"
	msgDecision           = "decision"
)

const (
	operatorWriteWait  = 10 * time.Second
	operatorPongWait   = 60 * time.Second
	operatorPingPeriod = 54 * time.Second
	operatorSendDepth  = 32
	maxDecisionBytes   = 4096
)

// operatorEvent is one JSON message pushed to operator sockets.
type operatorEvent struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"requestId,omitempty"`
	AgentID   string                 `json:"agentId,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Approved  *bool                  `json:"approved,omitempty"`
	Resolved  *bool                  `json:"resolved,omitempty"`
	Request   *ports.ApprovalRequest `json:"request,omitempty"`
}

// operatorDecision is the inbound decision message.
type operatorDecision struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	Note      string `json:"note"`
}

// approvalRouter is the slice of the agent manager the hub needs: route a
// decision to the broker holding the request, and list what is pending so
// a fresh connection can catch up.
type approvalRouter interface {
	ResolveApproval(requestID string, approved bool, actor, note string) bool
	PendingApprovals() []ports.ApprovalRequest
}

type operatorConn struct {
	socket *websocket.Conn
	send   chan operatorEvent
}

// OperatorHub fans approval prompts and agent lifecycle events out to
// connected operator sockets and routes decisions back to the brokers. It
// is built before the agent manager so it can be registered as an approval
// surface on every agent; BindRouter closes the loop once the manager
// exists.
type OperatorHub struct {
	logger   logging.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	router approvalRouter
	conns  map[*operatorConn]struct{}
	closed bool
}

// NewOperatorHub builds a hub with no connections and no router.
func NewOperatorHub(logger logging.Logger) *OperatorHub {
	return &OperatorHub{
		logger: logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: map[*operatorConn]struct{}{},
	}
}

// BindRouter attaches the decision router.
func (h *OperatorHub) BindRouter(router approvalRouter) {
	h.mu.Lock()
	h.router = router
	h.mu.Unlock()
}

func (h *OperatorHub) currentRouter() approvalRouter {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.router
}

// Name implements approval.Prompter.
func (h *OperatorHub) Name() string { return "operator" }

// PromptApproval implements approval.Prompter by pushing the request to
// every connected operator. It errors when nobody is connected so the
// broker counts on its other surfaces.
func (h *OperatorHub) PromptApproval(_ context.Context, request ports.ApprovalRequest) error {
	conns := h.snapshot()
	if len(conns) == 0 {
		return fmt.Errorf("no operator connected")
	}
	req := request
	event := operatorEvent{
		Type:      eventApprovalRequest,
		RequestID: request.ID,
		AgentID:   request.AgentID,
		Request:   &req,
	}
	for _, conn := range conns {
		h.push(conn, event)
	}
	return nil
}

// ApprovalResolved implements approval.Prompter. Operators see the outcome
// whichever surface decided it, so stale prompts can be retired.
func (h *OperatorHub) ApprovalResolved(_ context.Context, request ports.ApprovalRequest, decision ports.ApprovalDecision) {
	approved := decision.Approved
	event := operatorEvent{
		Type:      eventApprovalResolved,
		RequestID: request.ID,
		AgentID:   request.AgentID,
		Actor:     decision.Actor,
		Approved:  &approved,
	}
	for _, conn := range h.snapshot() {
		h.push(conn, event)
	}
}

// Connections reports how many operator sockets are attached.
func (h *OperatorHub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// BroadcastLifecycle pushes an agent deploy/stop event to every operator.
func (h *OperatorHub) BroadcastLifecycle(kind, agentID string) {
	event := operatorEvent{Type: kind, AgentID: agentID}
	for _, conn := range h.snapshot() {
		h.push(conn, event)
	}
}

// Close disconnects every operator socket and refuses new connections.
func (h *OperatorHub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*operatorConn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = map[*operatorConn]struct{}{}
	h.mu.Unlock()
	for _, conn := range conns {
		close(conn.send)
	}
}

func (h *OperatorHub) handleConnect(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("operator upgrade failed: %v", err)
		return
	}
	conn := &operatorConn{socket: socket, send: make(chan operatorEvent, operatorSendDepth)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = socket.Close()
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("operator connected from %s", c.ClientIP())

	if router := h.currentRouter(); router != nil {
		for _, request := range router.PendingApprovals() {
			req := request
			h.push(conn, operatorEvent{
				Type:      eventApprovalRequest,
				RequestID: req.ID,
				AgentID:   req.AgentID,
				Request:   &req,
			})
		}
	}

	go h.writeLoop(conn)
	h.readLoop(conn)
}

func (h *OperatorHub) readLoop(conn *operatorConn) {
	defer h.drop(conn)
	conn.socket.SetReadLimit(maxDecisionBytes)
	_ = conn.socket.SetReadDeadline(time.Now().Add(operatorPongWait))
	conn.socket.SetPongHandler(func(string) error {
		return conn.socket.SetReadDeadline(time.Now().Add(operatorPongWait))
	})
	for {
		var decision operatorDecision
		if err := conn.socket.ReadJSON(&decision); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("operator socket closed: %v", err)
			}
			return
		}
		if decision.Type != msgDecision || decision.RequestID == "" {
			continue
		}
		resolved := false
		if router := h.currentRouter(); router != nil {
			resolved = router.ResolveApproval(decision.RequestID, decision.Approved, "operator", decision.Note)
		}
		ack := resolved
		h.push(conn, operatorEvent{Type: eventDecisionAck, RequestID: decision.RequestID, Resolved: &ack})
	}
}

func (h *OperatorHub) writeLoop(conn *operatorConn) {
	ticker := time.NewTicker(operatorPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.socket.Close()
	}()
	for {
		select {
		case event, ok := <-conn.send:
			_ = conn.socket.SetWriteDeadline(time.Now().Add(operatorWriteWait))
			if !ok {
				_ = conn.socket.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.socket.SetWriteDeadline(time.Now().Add(operatorWriteWait))
			if err := conn.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push enqueues without blocking; a lagging operator loses events rather
// than stalling an approval prompt. The membership check under the lock
// orders the send before drop's close of the channel.
func (h *OperatorHub) push(conn *operatorConn, event operatorEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.conns[conn]; !live {
		return
	}
	select {
	case conn.send <- event:
	default:
		h.logger.Warn("operator socket lagging, dropped %s event", event.Type)
	}
}

func (h *OperatorHub) drop(conn *operatorConn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	if ok {
		delete(h.conns, conn)
	}
	h.mu.Unlock()
	if ok {
		close(conn.send)
	}
}

func (h *OperatorHub) snapshot() []*operatorConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*operatorConn, 0, len(h.conns))
	for conn := range h.conns {
		out = append(out, conn)
	}
	return out
}
