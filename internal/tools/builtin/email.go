package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

const defaultEmailSearchLimit = 10

type sendEmail struct {
	binding Binding
	backend ports.EmailBackend
}

// NewSendEmail builds the outgoing mail tool.
func NewSendEmail(binding Binding, backend ports.EmailBackend) ports.ToolExecutor {
	return &sendEmail{binding: binding.withDefaults(), backend: backend}
}

func (t *sendEmail) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "send_email",
		Description: "Send an email from the user's mailbox.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"to":      {Type: "string", Description: "Recipient addresses, comma separated"},
				"subject": {Type: "string", Description: "Subject line"},
				"body":    {Type: "string", Description: "Message body"},
			},
			Required: []string{"to", "subject", "body"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *sendEmail) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryEmail, Critical: true}
}

func (t *sendEmail) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	recipients := splitAddresses(call.StringParam("to"))
	if len(recipients) == 0 {
		return nil, errors.NewValidation("to", "at least one recipient is required")
	}
	draft := ports.EmailDraft{
		To:      recipients,
		Subject: call.StringParam("subject"),
		Body:    call.StringParam("body"),
	}
	if err := t.backend.Send(ctx, draft); err != nil {
		return nil, errors.NewExternal("email", 0, err, "")
	}

	// Sent mail has no inverse; the undo slot records the action honestly.
	recordUndo(ctx, t.binding, call.Name, call.Params, nil)
	return textResult(call, "Email %q sent to %s.", draft.Subject, strings.Join(recipients, ", ")), nil
}

func splitAddresses(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

type replyEmail struct {
	binding Binding
	backend ports.EmailBackend
}

// NewReplyEmail builds the reply tool.
func NewReplyEmail(binding Binding, backend ports.EmailBackend) ports.ToolExecutor {
	return &replyEmail{binding: binding.withDefaults(), backend: backend}
}

func (t *replyEmail) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "reply_email",
		Description: "Reply to an email by message id (from search_email).",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"message_id": {Type: "string", Description: "Id of the message to reply to"},
				"body":       {Type: "string", Description: "Reply body"},
			},
			Required: []string{"message_id", "body"},
		},
		SideEffect: ports.SideEffectMutating,
	}
}

func (t *replyEmail) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryEmail, Critical: true}
}

func (t *replyEmail) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if err := t.backend.Reply(ctx, call.StringParam("message_id"), call.StringParam("body")); err != nil {
		return nil, errors.NewExternal("email", 0, err, "")
	}
	recordUndo(ctx, t.binding, call.Name, call.Params, nil)
	return textResult(call, "Reply sent."), nil
}

type searchEmail struct {
	binding Binding
	backend ports.EmailBackend
}

// NewSearchEmail builds the mailbox search tool.
func NewSearchEmail(binding Binding, backend ports.EmailBackend) ports.ToolExecutor {
	return &searchEmail{binding: binding.withDefaults(), backend: backend}
}

func (t *searchEmail) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "search_email",
		Description: "Search the user's mailbox and return message summaries with ids.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Mailbox search query"},
				"limit": {Type: "integer", Description: "Max results; defaults to 10"},
			},
			Required: []string{"query"},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *searchEmail) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryEmail}
}

func (t *searchEmail) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	limit, ok := call.IntParam("limit")
	if !ok || limit <= 0 {
		limit = defaultEmailSearchLimit
	}
	summaries, err := t.backend.Search(ctx, call.StringParam("query"), limit)
	if err != nil {
		return nil, errors.NewExternal("email", 0, err, "")
	}
	if len(summaries) == 0 {
		return textResult(call, "No messages match %q.", call.StringParam("query")), nil
	}

	var out strings.Builder
	for _, msg := range summaries {
		fmt.Fprintf(&out, "• %s — %s from %s (%s)\n", msg.Date.Format("Jan 2"), msg.Subject, msg.From, msg.ID)
		if msg.Snippet != "" {
			fmt.Fprintf(&out, "  %s\n", firstLine(msg.Snippet, 120))
		}
	}
	return textResult(call, "%s", strings.TrimSuffix(out.String(), "\n")), nil
}

type readEmail struct {
	binding Binding
	backend ports.EmailBackend
}

// NewReadEmail builds the full-message read tool.
func NewReadEmail(binding Binding, backend ports.EmailBackend) ports.ToolExecutor {
	return &readEmail{binding: binding.withDefaults(), backend: backend}
}

func (t *readEmail) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "read_email",
		Description: "Read the full body of an email by message id.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"message_id": {Type: "string", Description: "Id of the message to read"},
			},
			Required: []string{"message_id"},
		},
		SideEffect: ports.SideEffectReadOnly,
	}
}

func (t *readEmail) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Category: CategoryEmail}
}

func (t *readEmail) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	body, err := t.backend.Read(ctx, call.StringParam("message_id"))
	if err != nil {
		return nil, errors.NewExternal("email", 0, err, "")
	}
	return textResult(call, "%s", body), nil
}
