package builtin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testBinding(st store.Store, clk *testClock) Binding {
	return Binding{
		Store:    st,
		UserID:   "u1",
		AgentID:  "a1",
		Timezone: "UTC",
		Now:      clk.Now,
	}
}

func runTool(t *testing.T, tool ports.ToolExecutor, params map[string]any) *ports.ToolResult {
	t.Helper()
	result, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:     "call-1",
		Name:   tool.Definition().Name,
		Params: params,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func runToolErr(t *testing.T, tool ports.ToolExecutor, params map[string]any) error {
	t.Helper()
	_, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:     "call-1",
		Name:   tool.Definition().Name,
		Params: params,
	})
	require.Error(t, err)
	return err
}

func collection[T any](t *testing.T, b Binding, name string) []T {
	t.Helper()
	items, err := loadCollection[T](context.Background(), b, name)
	require.NoError(t, err)
	return items
}
