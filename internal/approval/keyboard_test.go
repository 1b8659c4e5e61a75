package approval

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

type fakeOutbound struct {
	mu        sync.Mutex
	texts     []string
	keyboards []ports.Keyboard
	edits     map[string]string
	nextID    int
}

func newFakeOutbound() *fakeOutbound {
	return &fakeOutbound{edits: map[string]string{}}
}

func (f *fakeOutbound) SendText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeOutbound) SendKeyboard(_ context.Context, text string, keyboard ports.Keyboard) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, keyboard)
	f.nextID++
	return strconv.Itoa(f.nextID), nil
}

func (f *fakeOutbound) EditText(_ context.Context, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[messageID] = text
	return nil
}

func TestKeyboardPromptCarriesDecisionData(t *testing.T) {
	out := newFakeOutbound()
	p := NewKeyboardPrompter(out, nil)

	request := terminalRequest("apr-kb-1")
	require.NoError(t, p.PromptApproval(context.Background(), request))

	require.Len(t, out.keyboards, 1)
	keyboard := out.keyboards[0]
	require.Len(t, keyboard, 1)
	require.Len(t, keyboard[0], 2)
	assert.Equal(t, "approve:apr-kb-1", keyboard[0][0].Data)
	assert.Equal(t, "deny:apr-kb-1", keyboard[0][1].Data)

	require.Len(t, out.texts, 1)
	assert.Contains(t, out.texts[0], "run_terminal_command")
	assert.Contains(t, out.texts[0], "rm -rf /tmp/work")
	assert.Contains(t, out.texts[0], "recursive delete")
}

func TestKeyboardResolvedEditsPrompt(t *testing.T) {
	out := newFakeOutbound()
	p := NewKeyboardPrompter(out, nil)
	request := terminalRequest("apr-kb-2")
	require.NoError(t, p.PromptApproval(context.Background(), request))

	p.ApprovalResolved(context.Background(), request, ports.ApprovalDecision{Approved: true, Actor: "telegram"})

	edited, ok := out.edits["1"]
	require.True(t, ok, "prompt message must be edited in place")
	assert.Contains(t, edited, "✔ Approved")
}

func TestKeyboardResolvedForUnknownRequestIsNoop(t *testing.T) {
	out := newFakeOutbound()
	p := NewKeyboardPrompter(out, nil)

	p.ApprovalResolved(context.Background(), terminalRequest("never-prompted"), ports.ApprovalDecision{})
	assert.Empty(t, out.edits)
}

func TestKeyboardTimeoutEdit(t *testing.T) {
	out := newFakeOutbound()
	p := NewKeyboardPrompter(out, nil)
	request := terminalRequest("apr-kb-3")
	require.NoError(t, p.PromptApproval(context.Background(), request))

	p.ApprovalResolved(context.Background(), request, ports.ApprovalDecision{Approved: false, Actor: "timeout"})
	assert.Contains(t, out.edits["1"], "Timed out")
}

func TestParseCallback(t *testing.T) {
	id, approved, ok := ParseCallback("approve:apr-1")
	require.True(t, ok)
	assert.True(t, approved)
	assert.Equal(t, "apr-1", id)

	id, approved, ok = ParseCallback("deny:apr-2")
	require.True(t, ok)
	assert.False(t, approved)
	assert.Equal(t, "apr-2", id)

	_, _, ok = ParseCallback("noted")
	assert.False(t, ok)
	_, _, ok = ParseCallback("approve:")
	assert.False(t, ok)
}
