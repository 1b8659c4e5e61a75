package console

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
	"github.com/Drakonis96/optimAIzer-sub001/internal/approval"
	"github.com/Drakonis96/optimAIzer-sub001/internal/llmtest"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/skills"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

func newTestSession(t *testing.T, rounds ...llmtest.Round) (*Session, *llmtest.Provider, *bytes.Buffer) {
	t.Helper()
	provider := llmtest.NewProvider(rounds...)
	buf := &bytes.Buffer{}
	s, err := New(Config{
		Agent:    workspace.AgentConfig{OwnerUserID: "casey", Name: "desk agent"},
		Plain:    true,
		Input:    strings.NewReader(""),
		Output:   buf,
		Approval: approval.Config{Timeout: 50 * time.Millisecond},
	}, Deps{
		Store:     store.NewMemory(),
		Providers: func(name, model string) (ports.Provider, error) { return provider, nil },
	})
	require.NoError(t, err)
	return s, provider, buf
}

func TestHandleLineRunsTurn(t *testing.T) {
	s, provider, buf := newTestSession(t, llmtest.TextRound("All ", "set."))

	quit := s.handleLine(context.Background(), "plan my morning")

	assert.False(t, quit)
	out := buf.String()
	assert.Contains(t, out, "All set.")
	assert.Contains(t, out, "✓ 1 rounds")

	requests := provider.Requests()
	require.Len(t, requests, 1)
	require.NotEmpty(t, requests[0].Messages)
	assert.Equal(t, "plan my morning", requests[0].Messages[0].Content)
}

func TestHandleLineQuitAndEmpty(t *testing.T) {
	s, provider, _ := newTestSession(t)

	for _, word := range []string{"exit", "quit", "q"} {
		assert.True(t, s.handleLine(context.Background(), word), word)
	}
	assert.False(t, s.handleLine(context.Background(), ""))
	assert.Empty(t, provider.Requests())
}

func TestClearCommandResetsHistory(t *testing.T) {
	s, _, buf := newTestSession(t, llmtest.TextRound("noted"))

	s.handleLine(context.Background(), "remember the milk")
	require.Equal(t, 2, s.engine.HistoryLen())

	quit := s.handleLine(context.Background(), "/clear")

	assert.False(t, quit)
	assert.Equal(t, 0, s.engine.HistoryLen())
	assert.Contains(t, buf.String(), "conversation cleared")
}

func TestTurnErrorReachesTerminal(t *testing.T) {
	s, _, buf := newTestSession(t, llmtest.ErrorRound(fmt.Errorf("backend offline")))

	s.handleLine(context.Background(), "hello")

	assert.Contains(t, buf.String(), "error:")
	assert.Contains(t, buf.String(), "backend offline")
}

func TestPlainStreamIsNotReRendered(t *testing.T) {
	s, _, buf := newTestSession(t, llmtest.TextRound("# Plan\nrest day"))

	s.handleLine(context.Background(), "plan")

	assert.Equal(t, 1, strings.Count(buf.String(), "# Plan"))
}

func TestNewAppliesConsoleDefaults(t *testing.T) {
	provider := llmtest.NewProvider()
	s, err := New(Config{Plain: true, Output: &bytes.Buffer{}}, Deps{
		Store:     store.NewMemory(),
		Providers: func(name, model string) (ports.Provider, error) { return provider, nil },
	})
	require.NoError(t, err)

	assert.NotEmpty(t, s.agent.ID)
	assert.Equal(t, DefaultOwner, s.agent.OwnerUserID)
	assert.True(t, strings.HasSuffix(s.historyFile, HistoryFileName))
	assert.Equal(t, defaultWidth, s.width)
}

func TestNewRequiresStoreAndFactory(t *testing.T) {
	provider := llmtest.NewProvider()

	_, err := New(Config{}, Deps{
		Providers: func(name, model string) (ports.Provider, error) { return provider, nil },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store")

	_, err = New(Config{}, Deps{Store: store.NewMemory()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider factory")
}

func TestProviderFactoryErrorSurfaces(t *testing.T) {
	_, err := New(Config{}, Deps{
		Store:     store.NewMemory(),
		Providers: func(name, model string) (ports.Provider, error) { return nil, fmt.Errorf("no adapter") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "console provider")
}

func TestImportSkillsLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "standup.md"),
		[]byte("---\nname: standup\ntriggers: [standup]\n---\nKeep it to three bullets."), 0o644))

	provider := llmtest.NewProvider()
	buf := &bytes.Buffer{}
	st := store.NewMemory()
	s, err := New(Config{
		Agent:     workspace.AgentConfig{OwnerUserID: "casey"},
		Plain:     true,
		Output:    buf,
		SkillsDir: dir,
	}, Deps{
		Store:     st,
		Skills:    skills.NewService(st, logging.Nop()),
		Providers: func(name, model string) (ports.Provider, error) { return provider, nil },
	})
	require.NoError(t, err)

	require.NoError(t, s.importSkills(context.Background()))
	assert.Contains(t, buf.String(), "1 skills loaded")

	quit := s.handleLine(context.Background(), "/skills")
	assert.False(t, quit)
	assert.Contains(t, buf.String(), "standup (standup)")
}

func TestSkillsCommandWithoutService(t *testing.T) {
	s, _, buf := newTestSession(t)

	quit := s.handleLine(context.Background(), "/skills")

	assert.False(t, quit)
	assert.Contains(t, buf.String(), "skills are not enabled")
}

func TestScheduledDeliveryPrints(t *testing.T) {
	s, _, buf := newTestSession(t)
	outbound := &consoleOutbound{session: s}

	require.NoError(t, outbound.SendText(context.Background(), "Stand-up in 10 minutes"))

	assert.Contains(t, buf.String(), "⏰ scheduled message")
	assert.Contains(t, buf.String(), "Stand-up in 10 minutes")
}

func TestKeyboardPrintsOptions(t *testing.T) {
	s, _, buf := newTestSession(t)
	outbound := &consoleOutbound{session: s}

	first, err := outbound.SendKeyboard(context.Background(), "Approve this?", ports.Keyboard{{{Text: "✅ Approve", Data: "approve:1"}}})
	require.NoError(t, err)
	second, err := outbound.SendKeyboard(context.Background(), "Again?", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Contains(t, buf.String(), "[✅ Approve]")
	assert.NoError(t, outbound.EditText(context.Background(), first, "done"))
}

func TestRendersRicher(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"plain prose reply", false},
		{"- milk\n- eggs", false},
		{"see:\n```go\nfmt.Println()\n```", true},
		{"| day | plan |\n|-----|------|", true},
		{"# Tomorrow", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rendersRicher(tc.text), tc.text)
	}
}
