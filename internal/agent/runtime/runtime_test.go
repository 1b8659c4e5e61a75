package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	ports "github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
	"github.com/Drakonis96/optimAIzer-sub001/internal/approval"
	"github.com/Drakonis96/optimAIzer-sub001/internal/channels/telegram"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/llmtest"
	"github.com/Drakonis96/optimAIzer-sub001/internal/parser"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

const testChatID int64 = 42

type botButton struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

type botMessage struct {
	Text     string
	Keyboard [][]botButton
}

// botServer fakes the Bot HTTP API so deployed agents exercise the real
// transport path end to end. Updates queue through push; outbound calls are
// recorded for assertions.
type botServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	queue    []telegram.Update
	sent     []botMessage
	edits    []string
	acks     int
	files    map[string][]byte
	nextUpd  int64
	nextMsg  int64
	sleepFor time.Duration
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	b := &botServer{
		files:    map[string][]byte{},
		sleepFor: 5 * time.Millisecond,
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *botServer) handle(w http.ResponseWriter, r *http.Request) {
	if rest, ok := strings.CutPrefix(r.URL.Path, "/file/"); ok {
		b.serveFile(w, rest)
		return
	}
	switch path.Base(r.URL.Path) {
	case "getUpdates":
		b.mu.Lock()
		updates := b.queue
		b.queue = nil
		b.mu.Unlock()
		if len(updates) == 0 {
			time.Sleep(b.sleepFor)
			writeResult(w, []telegram.Update{})
			return
		}
		writeResult(w, updates)
	case "sendMessage":
		var req struct {
			Text        string `json:"text"`
			ReplyMarkup *struct {
				InlineKeyboard [][]botButton `json:"inline_keyboard"`
			} `json:"reply_markup"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		msg := botMessage{Text: req.Text}
		if req.ReplyMarkup != nil {
			msg.Keyboard = req.ReplyMarkup.InlineKeyboard
		}
		b.mu.Lock()
		b.nextMsg++
		msgID := b.nextMsg
		b.sent = append(b.sent, msg)
		b.mu.Unlock()
		writeResult(w, map[string]any{"message_id": msgID, "chat": map[string]any{"id": testChatID}})
	case "editMessageText":
		var req struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.edits = append(b.edits, req.Text)
		b.mu.Unlock()
		writeResult(w, true)
	case "answerCallbackQuery":
		b.mu.Lock()
		b.acks++
		b.mu.Unlock()
		writeResult(w, true)
	case "getFile":
		var req struct {
			FileID string `json:"file_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeResult(w, map[string]string{"file_id": req.FileID, "file_path": "voice/" + req.FileID + ".ogg"})
	default:
		writeResult(w, true)
	}
}

func (b *botServer) serveFile(w http.ResponseWriter, rest string) {
	// rest is "bot<token>/<file path>".
	_, filePath, ok := strings.Cut(rest, "/")
	b.mu.Lock()
	data, have := b.files[filePath]
	b.mu.Unlock()
	if !ok || !have {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write(data)
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (b *botServer) push(update telegram.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextUpd++
	update.UpdateID = b.nextUpd
	b.queue = append(b.queue, update)
}

func (b *botServer) pushText(text string) {
	b.push(telegram.Update{Message: &telegram.Message{Chat: telegram.Chat{ID: testChatID}, Text: text}})
}

func (b *botServer) pushCallback(data string) {
	b.push(telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &telegram.Message{Chat: telegram.Chat{ID: testChatID}},
	}})
}

func (b *botServer) pushLocation(lat, lon float64) {
	b.push(telegram.Update{Message: &telegram.Message{
		Chat:     telegram.Chat{ID: testChatID},
		Location: &telegram.Location{Latitude: lat, Longitude: lon},
	}})
}

func (b *botServer) pushVoice(fileID string) {
	b.push(telegram.Update{Message: &telegram.Message{
		Chat:  telegram.Chat{ID: testChatID},
		Voice: &telegram.Voice{FileID: fileID, Duration: 3, MimeType: "audio/ogg"},
	}})
}

func (b *botServer) pushDocument(fileID, name, mime, caption string) {
	b.push(telegram.Update{Message: &telegram.Message{
		Chat:     telegram.Chat{ID: testChatID},
		Document: &telegram.Document{FileID: fileID, FileName: name, MimeType: mime},
		Caption:  caption,
	}})
}

func photoUpdate(fileID, caption string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		Chat: telegram.Chat{ID: testChatID},
		Photo: []telegram.PhotoSize{
			{FileID: fileID + "-small", Width: 90, Height: 90},
			{FileID: fileID, Width: 800, Height: 600},
		},
		Caption: caption,
	}}
}

func textUpdateFrom(chatID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{Chat: telegram.Chat{ID: chatID}, Text: text}}
}

func (b *botServer) sentTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, msg := range b.sent {
		out[i] = msg.Text
	}
	return out
}

func (b *botServer) hasSent(substr string) bool {
	for _, text := range b.sentTexts() {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

func (b *botServer) keyboards() []botMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []botMessage
	for _, msg := range b.sent {
		if len(msg.Keyboard) > 0 {
			out = append(out, msg)
		}
	}
	return out
}

func (b *botServer) editTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.edits))
	copy(out, b.edits)
	return out
}

func agentFixture(agentID string) workspace.AgentConfig {
	return workspace.AgentConfig{
		ID:          agentID,
		OwnerUserID: "user-1",
		Name:        "Personal Assistant",
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Timezone:    "UTC",
		Permissions: workspace.Permissions{
			NotesAccess:     true,
			SchedulerAccess: true,
			GmailAccess:     true,
		},
		Integrations: workspace.Integrations{
			Telegram: workspace.TelegramIntegration{BotToken: "123:token-" + agentID, ChatID: testChatID},
		},
	}
}

func scriptedFactory(provider ports.Provider) ProviderFactory {
	return func(string, string) (ports.Provider, error) { return provider, nil }
}

func testConfig(bot *botServer) Config {
	return Config{
		DrainTimeout:    2 * time.Second,
		TelegramBaseURL: bot.srv.URL,
		PollTimeout:     50 * time.Millisecond,
		Approval:        approval.Config{Timeout: 10 * time.Second},
	}
}

func newTestManager(t *testing.T, bot *botServer, deps Deps) *Manager {
	t.Helper()
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}
	if deps.Parser == nil {
		deps.Parser = parser.New(nil)
	}
	manager := NewManager(deps, testConfig(bot))
	t.Cleanup(func() { manager.StopAll(context.Background()) })
	return manager
}

func TestDeployRejectsMissingTelegramCredentials(t *testing.T) {
	bot := newBotServer(t)
	manager := newTestManager(t, bot, Deps{
		Providers: scriptedFactory(llmtest.NewProvider()),
	})

	cfg := agentFixture("agent-1")
	cfg.Integrations.Telegram = workspace.TelegramIntegration{}

	err := manager.Deploy(context.Background(), cfg, "user-1")
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "integrations.telegram", verr.Field)
	assert.False(t, manager.Running("agent-1"))
}

func TestDeployRejectsForeignOwner(t *testing.T) {
	bot := newBotServer(t)
	manager := newTestManager(t, bot, Deps{
		Providers: scriptedFactory(llmtest.NewProvider()),
	})

	err := manager.Deploy(context.Background(), agentFixture("agent-1"), "user-2")
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ownerUserId", verr.Field)
}

func TestDeployRequiresAgentID(t *testing.T) {
	bot := newBotServer(t)
	manager := newTestManager(t, bot, Deps{
		Providers: scriptedFactory(llmtest.NewProvider()),
	})

	cfg := agentFixture("")
	err := manager.Deploy(context.Background(), cfg, "user-1")
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}

func TestDeployAndStop(t *testing.T) {
	bot := newBotServer(t)
	manager := newTestManager(t, bot, Deps{
		Providers: scriptedFactory(llmtest.NewProvider(llmtest.TextRound("Hello."))),
	})

	require.NoError(t, manager.Deploy(context.Background(), agentFixture("agent-1"), "user-1"))
	assert.True(t, manager.Running("agent-1"))
	assert.Equal(t, []string{"agent-1"}, manager.ListRunning())

	assert.True(t, manager.Stop("agent-1"))
	assert.False(t, manager.Running("agent-1"))
	assert.Empty(t, manager.ListRunning())
	assert.False(t, manager.Stop("agent-1"))
}

func TestDeployFailsWhenProviderFactoryErrors(t *testing.T) {
	bot := newBotServer(t)
	manager := newTestManager(t, bot, Deps{
		Providers: func(string, string) (ports.Provider, error) {
			return nil, fmt.Errorf("no credentials for provider")
		},
	})

	err := manager.Deploy(context.Background(), agentFixture("agent-1"), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
	assert.False(t, manager.Running("agent-1"))
}

func TestRedeployReplacesRuntime(t *testing.T) {
	bot := newBotServer(t)
	first := llmtest.NewProvider(llmtest.TextRound("First runtime."))
	second := llmtest.NewProvider(llmtest.TextRound("Second runtime."))
	providers := []ports.Provider{first, second}
	var calls int
	manager := newTestManager(t, bot, Deps{
		Providers: func(string, string) (ports.Provider, error) {
			p := providers[calls%len(providers)]
			calls++
			return p, nil
		},
	})

	cfg := agentFixture("agent-1")
	require.NoError(t, manager.Deploy(context.Background(), cfg, "user-1"))
	require.NoError(t, manager.Deploy(context.Background(), cfg, "user-1"))
	assert.Equal(t, []string{"agent-1"}, manager.ListRunning())

	bot.pushText("hello")
	require.Eventually(t, func() bool { return bot.hasSent("Second runtime.") }, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, first.Requests())
}

func TestStopAllDrainsEveryAgent(t *testing.T) {
	bot := newBotServer(t)
	manager := newTestManager(t, bot, Deps{
		Providers: scriptedFactory(llmtest.NewProvider(llmtest.TextRound("ok"))),
	})

	require.NoError(t, manager.Deploy(context.Background(), agentFixture("agent-1"), "user-1"))
	require.NoError(t, manager.Deploy(context.Background(), agentFixture("agent-2"), "user-1"))
	assert.Equal(t, []string{"agent-1", "agent-2"}, manager.ListRunning())

	manager.StopAll(context.Background())
	assert.Empty(t, manager.ListRunning())
}

func TestAutoStartAlwaysOnIsolatesFailures(t *testing.T) {
	bot := newBotServer(t)
	st := store.NewMemory()
	ws := workspace.New(st, nil, nil)
	ctx := context.Background()

	good := agentFixture("")
	good.Name = "Always On"
	good.AlwaysOn = true
	good, err := ws.Save(ctx, good)
	require.NoError(t, err)

	broken := agentFixture("")
	broken.Name = "Broken Provider"
	broken.Provider = "unconfigured"
	broken.AlwaysOn = true
	broken, err = ws.Save(ctx, broken)
	require.NoError(t, err)

	manual := agentFixture("")
	manual.Name = "Manual Start"
	manual, err = ws.Save(ctx, manual)
	require.NoError(t, err)

	manager := newTestManager(t, bot, Deps{
		Store:     st,
		Workspace: ws,
		Providers: func(name, _ string) (ports.Provider, error) {
			if name == "unconfigured" {
				return nil, fmt.Errorf("no api key for %s", name)
			}
			return llmtest.NewProvider(llmtest.TextRound("ok")), nil
		},
	})

	started, err := manager.AutoStartAlwaysOn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Equal(t, []string{good.ID}, manager.ListRunning())
	assert.False(t, manager.Running(broken.ID))
	assert.False(t, manager.Running(manual.ID))
}

func TestInboundTextRunsTurnAndReplies(t *testing.T) {
	bot := newBotServer(t)
	provider := llmtest.NewProvider(llmtest.TextRound("Hi ", "there."))
	manager := newTestManager(t, bot, Deps{
		Providers: scriptedFactory(provider),
	})

	require.NoError(t, manager.Deploy(context.Background(), agentFixture("agent-1"), "user-1"))
	bot.pushText("hello assistant")

	require.Eventually(t, func() bool { return bot.hasSent("Hi there.") }, 3*time.Second, 10*time.Millisecond)

	requests := provider.Requests()
	require.NotEmpty(t, requests)
	require.NotEmpty(t, requests[0].Messages)
	assert.Equal(t, "hello assistant", requests[0].Messages[len(requests[0].Messages)-1].Content)
}

func TestAgentSystemPromptOverridesEngineDefault(t *testing.T) {
	bot := newBotServer(t)
	provider := llmtest.NewProvider(llmtest.TextRound("ok"))
	deps := Deps{
		Store:     store.NewMemory(),
		Parser:    parser.New(nil),
		Providers: scriptedFactory(provider),
	}
	config := testConfig(bot)
	config.Engine = domain.Config{SystemPrompt: "Default prompt."}
	manager := NewManager(deps, config)
	t.Cleanup(func() { manager.StopAll(context.Background()) })

	cfg := agentFixture("agent-1")
	cfg.SystemPrompt = "You are Ada, a meticulous planner."
	require.NoError(t, manager.Deploy(context.Background(), cfg, "user-1"))

	bot.pushText("hi")
	require.Eventually(t, func() bool { return len(provider.Requests()) > 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, provider.Requests()[0].System, "You are Ada")
	assert.NotContains(t, provider.Requests()[0].System, "Default prompt.")
}
