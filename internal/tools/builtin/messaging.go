package builtin

import (
	"context"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

type sendTelegramMessage struct {
	binding  Binding
	outbound ports.Outbound
}

// NewSendTelegramMessage builds the chat delivery tool. It writes to the
// agent's own configured chat, so it is mutating but not approval-gated;
// only third-party destinations would be.
func NewSendTelegramMessage(binding Binding, outbound ports.Outbound) ports.ToolExecutor {
	return &sendTelegramMessage{binding: binding.withDefaults(), outbound: outbound}
}

func (t *sendTelegramMessage) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "send_telegram_message",
		Description: "Send a Telegram message to the user's chat, outside the normal turn reply. Useful for separate notifications.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"message": {Type: "string", Description: "Message text"},
			},
			Required: []string{"message"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *sendTelegramMessage) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryMessaging}
}

func (t *sendTelegramMessage) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if err := t.outbound.SendText(ctx, call.StringParam("message")); err != nil {
		return nil, errors.NewExternal("telegram", 0, err, "")
	}
	return textResult(call, "Message sent."), nil
}
