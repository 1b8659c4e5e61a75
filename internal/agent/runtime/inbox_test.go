package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

func textMsg(text string) ports.InboundMessage {
	return ports.InboundMessage{Kind: ports.InboundText, Text: text}
}

func TestInboxFIFO(t *testing.T) {
	q := newInbox(4)
	q.Push(textMsg("one"))
	q.Push(textMsg("two"))

	first, ok := q.Pop(context.Background())
	require.True(t, ok)
	second, ok := q.Pop(context.Background())
	require.True(t, ok)

	assert.Equal(t, "one", first.Text)
	assert.Equal(t, "two", second.Text)
}

func TestInboxOverflowDropsOldest(t *testing.T) {
	q := newInbox(2)
	assert.False(t, q.Push(textMsg("one")))
	assert.False(t, q.Push(textMsg("two")))
	assert.True(t, q.Push(textMsg("three")), "overflow must drop the oldest entry")

	first, _ := q.Pop(context.Background())
	second, _ := q.Pop(context.Background())
	assert.Equal(t, "two", first.Text)
	assert.Equal(t, "three", second.Text)
	assert.Equal(t, 0, q.Len())
}

func TestInboxPopBlocksUntilPush(t *testing.T) {
	q := newInbox(4)
	got := make(chan ports.InboundMessage, 1)

	go func() {
		msg, ok := q.Pop(context.Background())
		if ok {
			got <- msg
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(textMsg("late"))

	select {
	case msg := <-got:
		assert.Equal(t, "late", msg.Text)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestInboxPopHonorsContext(t *testing.T) {
	q := newInbox(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

func TestInboxCloseDrainsQueued(t *testing.T) {
	q := newInbox(4)
	q.Push(textMsg("queued"))
	q.Close()

	msg, ok := q.Pop(context.Background())
	require.True(t, ok, "entries queued before Close must drain")
	assert.Equal(t, "queued", msg.Text)

	_, ok = q.Pop(context.Background())
	assert.False(t, ok)

	assert.False(t, q.Push(textMsg("rejected")))
}
