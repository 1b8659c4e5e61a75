package builtin

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

type captureOutbound struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (o *captureOutbound) SendText(_ context.Context, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, text)
	return nil
}

func (o *captureOutbound) SendKeyboard(_ context.Context, text string, _ ports.Keyboard) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	o.sent = append(o.sent, text)
	return "kb-1", nil
}

func (o *captureOutbound) EditText(_ context.Context, _ string, _ string) error {
	return nil
}

func TestSendTelegramMessageDelivers(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	outbound := &captureOutbound{}

	result := runTool(t, NewSendTelegramMessage(b, outbound), map[string]any{
		"message": "Your train leaves in 20 minutes.",
	})
	assert.Equal(t, "Message sent.", result.Content)
	assert.Equal(t, []string{"Your train leaves in 20 minutes."}, outbound.sent)
}

func TestSendTelegramMessageBackendFailure(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	outbound := &captureOutbound{err: fmt.Errorf("chat not found")}

	err := runToolErr(t, NewSendTelegramMessage(b, outbound), map[string]any{
		"message": "hello",
	})
	var external *errors.ExternalError
	require.ErrorAs(t, err, &external)
	assert.Empty(t, outbound.sent)
}
