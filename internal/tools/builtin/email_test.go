package builtin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

type fakeMailbox struct {
	sent      []ports.EmailDraft
	replies   map[string]string
	summaries []ports.EmailSummary
	bodies    map[string]string
	err       error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		replies: make(map[string]string),
		bodies:  make(map[string]string),
	}
}

func (f *fakeMailbox) Send(_ context.Context, draft ports.EmailDraft) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, draft)
	return nil
}

func (f *fakeMailbox) Reply(_ context.Context, messageID, body string) error {
	if f.err != nil {
		return f.err
	}
	f.replies[messageID] = body
	return nil
}

func (f *fakeMailbox) Search(_ context.Context, _ string, limit int) ([]ports.EmailSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.summaries) > limit {
		return f.summaries[:limit], nil
	}
	return f.summaries, nil
}

func (f *fakeMailbox) Read(_ context.Context, messageID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	body, ok := f.bodies[messageID]
	if !ok {
		return "", fmt.Errorf("no message %s", messageID)
	}
	return body, nil
}

func TestSendEmailSplitsRecipients(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	mailbox := newFakeMailbox()

	result := runTool(t, NewSendEmail(b, mailbox), map[string]any{
		"to":      "alice@example.com, bob@example.com",
		"subject": "Dinner on Friday",
		"body":    "Shall we do 19:00?",
	})
	assert.Equal(t, `Email "Dinner on Friday" sent to alice@example.com, bob@example.com.`, result.Content)

	require.Len(t, mailbox.sent, 1)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, mailbox.sent[0].To)
}

func TestSendEmailRequiresRecipients(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	mailbox := newFakeMailbox()

	err := runToolErr(t, NewSendEmail(b, mailbox), map[string]any{
		"to":      " , ,",
		"subject": "s",
		"body":    "b",
	})
	var validation *errors.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, mailbox.sent)
}

func TestSendEmailRecordsNonReversibleUndoSlot(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	mailbox := newFakeMailbox()
	runTool(t, NewSendEmail(b, mailbox), map[string]any{
		"to":      "alice@example.com",
		"subject": "s",
		"body":    "b",
	})

	stack := collection[UndoEntry](t, b, store.CollectionUndo)
	require.Len(t, stack, 1)
	assert.Equal(t, "send_email", stack[0].Tool)
	assert.Nil(t, stack[0].Inverse)
}

func TestReplyEmail(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	mailbox := newFakeMailbox()

	result := runTool(t, NewReplyEmail(b, mailbox), map[string]any{
		"message_id": "msg-7",
		"body":       "Sounds good, see you then.",
	})
	assert.Equal(t, "Reply sent.", result.Content)
	assert.Equal(t, "Sounds good, see you then.", mailbox.replies["msg-7"])
}

func TestSearchEmailRendersSummaries(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	mailbox := newFakeMailbox()
	mailbox.summaries = []ports.EmailSummary{
		{
			ID:      "msg-1",
			From:    "newsletter@example.com",
			Subject: "Weekly digest",
			Date:    time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC),
			Snippet: "This week in Go: generics tips\nand more",
		},
		{
			ID:      "msg-2",
			From:    "alice@example.com",
			Subject: "Re: dinner",
			Date:    time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		},
	}

	result := runTool(t, NewSearchEmail(b, mailbox), map[string]any{"query": "dinner"})
	assert.Contains(t, result.Content, "• Mar 9 — Weekly digest from newsletter@example.com (msg-1)")
	assert.Contains(t, result.Content, "This week in Go: generics tips")
	assert.NotContains(t, result.Content, "and more")
	assert.Contains(t, result.Content, "• Mar 10 — Re: dinner from alice@example.com (msg-2)")
}

func TestSearchEmailEmptyAndFailing(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())

	empty := newFakeMailbox()
	result := runTool(t, NewSearchEmail(b, empty), map[string]any{"query": "nothing"})
	assert.Equal(t, `No messages match "nothing".`, result.Content)

	failing := newFakeMailbox()
	failing.err = fmt.Errorf("imap down")
	err := runToolErr(t, NewSearchEmail(b, failing), map[string]any{"query": "q"})
	var external *errors.ExternalError
	require.ErrorAs(t, err, &external)
}

func TestReadEmailReturnsBody(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	mailbox := newFakeMailbox()
	mailbox.bodies["msg-1"] = "Full message body here."

	result := runTool(t, NewReadEmail(b, mailbox), map[string]any{"message_id": "msg-1"})
	assert.Equal(t, "Full message body here.", result.Content)

	err := runToolErr(t, NewReadEmail(b, mailbox), map[string]any{"message_id": "msg-9"})
	var external *errors.ExternalError
	require.ErrorAs(t, err, &external)
}

func TestEmailToolsAreApprovalGated(t *testing.T) {
	b := testBinding(store.NewMemory(), newTestClock())
	mailbox := newFakeMailbox()

	assert.True(t, NewSendEmail(b, mailbox).Metadata().Critical)
	assert.True(t, NewReplyEmail(b, mailbox).Metadata().Critical)
	assert.False(t, NewSearchEmail(b, mailbox).Metadata().Critical)
	assert.False(t, NewReadEmail(b, mailbox).Metadata().Critical)
}
