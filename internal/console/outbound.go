package console

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// consoleOutbound lets the scheduler deliver scheduled replies to the
// terminal. Keyboards have no buttons here; options print as text and
// decisions come back through the inline approval prompt instead, so
// EditText has nothing to retire.
type consoleOutbound struct {
	session *Session

	mu  sync.Mutex
	seq int
}

// SendText implements ports.Outbound.
func (o *consoleOutbound) SendText(ctx context.Context, text string) error {
	o.session.printDelivery(text)
	return nil
}

// SendKeyboard implements ports.Outbound.
func (o *consoleOutbound) SendKeyboard(ctx context.Context, text string, keyboard ports.Keyboard) (string, error) {
	var sb strings.Builder
	sb.WriteString(text)
	for _, row := range keyboard {
		for _, button := range row {
			fmt.Fprintf(&sb, "\n  [%s]", button.Text)
		}
	}
	o.session.printDelivery(sb.String())

	o.mu.Lock()
	o.seq++
	messageID := fmt.Sprintf("console-%d", o.seq)
	o.mu.Unlock()
	return messageID, nil
}

// EditText implements ports.Outbound.
func (o *consoleOutbound) EditText(ctx context.Context, messageID, text string) error {
	return nil
}
