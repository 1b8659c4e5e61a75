package runtime

import (
	"context"
	"sync"

	ports "github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// inbox is the bounded FIFO queue between the transport poller and the
// agent's turn worker. One turn runs at a time; updates arriving mid-turn
// queue here. Overflow drops the oldest entry rather than blocking the
// poll goroutine.
type inbox struct {
	mu       sync.Mutex
	queue    []ports.InboundMessage
	capacity int
	closed   bool
	signal   chan struct{}
	done     chan struct{}
}

func newInbox(capacity int) *inbox {
	if capacity <= 0 {
		capacity = DefaultInboxDepth
	}
	return &inbox{
		capacity: capacity,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push enqueues an update. Returns true when an older entry was dropped to
// make room; the caller owns the warning.
func (i *inbox) Push(msg ports.InboundMessage) bool {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return false
	}
	dropped := false
	if len(i.queue) >= i.capacity {
		i.queue = i.queue[1:]
		dropped = true
	}
	i.queue = append(i.queue, msg)
	i.mu.Unlock()

	select {
	case i.signal <- struct{}{}:
	default:
	}
	return dropped
}

// Pop blocks until an update is available, the context is cancelled, or the
// inbox is closed and drained.
func (i *inbox) Pop(ctx context.Context) (ports.InboundMessage, bool) {
	for {
		i.mu.Lock()
		if len(i.queue) > 0 {
			msg := i.queue[0]
			i.queue = i.queue[1:]
			pending := len(i.queue) > 0
			i.mu.Unlock()
			if pending {
				select {
				case i.signal <- struct{}{}:
				default:
				}
			}
			return msg, true
		}
		closed := i.closed
		i.mu.Unlock()
		if closed {
			return ports.InboundMessage{}, false
		}

		select {
		case <-ctx.Done():
			return ports.InboundMessage{}, false
		case <-i.done:
			// Re-check: entries pushed before Close drain first.
		case <-i.signal:
		}
	}
}

// Len reports queued entries.
func (i *inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queue)
}

// Close stops accepting new updates; queued ones still drain.
func (i *inbox) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	i.mu.Unlock()
	close(i.done)
}
