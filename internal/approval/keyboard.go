package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ports "github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

const (
	approveCallbackPrefix = "approve:"
	denyCallbackPrefix    = "deny:"
)

// ApproveData builds the callback payload carried by the approve button.
func ApproveData(requestID string) string { return approveCallbackPrefix + requestID }

// DenyData builds the callback payload carried by the deny button.
func DenyData(requestID string) string { return denyCallbackPrefix + requestID }

// ParseCallback extracts an approval decision from button callback data.
func ParseCallback(data string) (requestID string, approved, ok bool) {
	if rest, found := strings.CutPrefix(data, approveCallbackPrefix); found && rest != "" {
		return rest, true, true
	}
	if rest, found := strings.CutPrefix(data, denyCallbackPrefix); found && rest != "" {
		return rest, false, true
	}
	return "", false, false
}

// KeyboardPrompter surfaces approval requests as inline-keyboard messages on
// the chat transport and edits the prompt in place once the request resolves.
type KeyboardPrompter struct {
	outbound ports.Outbound
	logger   logging.Logger

	mu       sync.Mutex
	messages map[string]string // request id -> transport message id
}

// NewKeyboardPrompter wires the prompter to the agent's outbound transport.
func NewKeyboardPrompter(outbound ports.Outbound, logger logging.Logger) *KeyboardPrompter {
	return &KeyboardPrompter{
		outbound: outbound,
		logger:   logging.OrNop(logger),
		messages: map[string]string{},
	}
}

// Name implements Prompter.
func (p *KeyboardPrompter) Name() string { return "telegram" }

// PromptApproval implements Prompter.
func (p *KeyboardPrompter) PromptApproval(ctx context.Context, request ports.ApprovalRequest) error {
	keyboard := ports.Keyboard{{
		{Text: "✅ Approve", Data: ApproveData(request.ID)},
		{Text: "❌ Deny", Data: DenyData(request.ID)},
	}}
	messageID, err := p.outbound.SendKeyboard(ctx, FormatRequest(request), keyboard)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.messages[request.ID] = messageID
	p.mu.Unlock()
	return nil
}

// ApprovalResolved implements Prompter. Editing the prompt drops the buttons
// so a stale keyboard cannot resolve the next request.
func (p *KeyboardPrompter) ApprovalResolved(ctx context.Context, request ports.ApprovalRequest, decision ports.ApprovalDecision) {
	p.mu.Lock()
	messageID, ok := p.messages[request.ID]
	delete(p.messages, request.ID)
	p.mu.Unlock()
	if !ok {
		return
	}
	text := FormatRequest(request) + "\n\n" + resolutionLine(decision)
	if err := p.outbound.EditText(ctx, messageID, text); err != nil {
		p.logger.Warn("approval prompt edit failed: %v", err)
	}
}

func resolutionLine(decision ports.ApprovalDecision) string {
	switch {
	case decision.Approved:
		return "✔ Approved"
	case decision.Actor == "timeout":
		return "⏱ Timed out (denied)"
	default:
		return "✖ Denied"
	}
}

// FormatRequest renders the human-facing approval prompt. Params in the
// summary are already redacted by the dispatcher.
func FormatRequest(request ports.ApprovalRequest) string {
	var sb strings.Builder
	sb.WriteString("⚠️ *Approval required*\n")
	fmt.Fprintf(&sb, "Tool: `%s`\n", request.ToolName)
	if request.Summary != "" {
		fmt.Fprintf(&sb, "Action: %s\n", request.Summary)
	}
	if len(request.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warning := range request.Warnings {
			fmt.Fprintf(&sb, "- %s\n", warning)
		}
	}
	sb.WriteString("\nApprove this action?")
	return sb.String()
}
