package ports

import "context"

// ApprovalRequest describes a critical tool call awaiting a human decision.
type ApprovalRequest struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	AgentID  string         `json:"agent_id"`
	ToolName string         `json:"tool_name"`
	Summary  string         `json:"summary"`
	Params   map[string]any `json:"params,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// ApprovalDecision is the outcome of an approval request.
type ApprovalDecision struct {
	Approved bool   `json:"approved"`
	Actor    string `json:"actor"` // "telegram", "operator", "console", "timeout"
	Note     string `json:"note,omitempty"`
}

// Approver resolves approval requests. Implementations block until a decision
// arrives or the configured timeout elapses; timeout denies.
type Approver interface {
	RequestApproval(ctx context.Context, request ApprovalRequest) (ApprovalDecision, error)
}
