// Package telegram implements the bot-API message transport: a long-poll
// inbound loop feeding normalized updates to the agent runtime, and the
// outbound side with legacy-Markdown normalization, message splitting and
// inline keyboards.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	ports "github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/async"
	runtimeerrors "github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

const (
	updateDedupCacheSize = 2048
	updateDedupTTL       = 10 * time.Minute

	// DefaultPollTimeout is the getUpdates long-poll window.
	DefaultPollTimeout = 25 * time.Second

	pollRetryMin = time.Second
	pollRetryMax = 30 * time.Second

	parseModeMarkdown = "Markdown"

	rejectionText = "This assistant is private and your chat is not authorized to use it."
)

// InboundHandler consumes authorized, deduplicated updates. Implementations
// must not block; queueing for a busy agent happens behind this interface.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg ports.InboundMessage)
}

// InboundHandlerFunc adapts a function to InboundHandler.
type InboundHandlerFunc func(ctx context.Context, msg ports.InboundMessage)

// HandleInbound implements InboundHandler.
func (f InboundHandlerFunc) HandleInbound(ctx context.Context, msg ports.InboundMessage) {
	f(ctx, msg)
}

// Config carries the per-agent transport settings.
type Config struct {
	Token       string
	ChatID      string // the single chat this agent serves
	BaseURL     string // empty means DefaultBaseURL
	PollTimeout time.Duration
}

// Gateway bridges one bot token and one authorized chat to the agent runtime.
// It implements ports.Outbound for replies, keyboards and edits.
type Gateway struct {
	cfg     Config
	api     BotAPI
	handler InboundHandler
	logger  logging.Logger

	dedupMu sync.Mutex
	dedup   *lru.Cache[int64, time.Time]
	now     func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	offset  int64
	wg      sync.WaitGroup
}

// NewGateway constructs a transport for one agent. The handler receives every
// authorized update; unauthorized chats get a rejection and never reach it.
func NewGateway(cfg Config, handler InboundHandler, logger logging.Logger) (*Gateway, error) {
	if handler == nil {
		return nil, fmt.Errorf("telegram gateway requires an inbound handler")
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram gateway requires token and chat id")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	dedup, err := lru.New[int64, time.Time](updateDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("telegram update deduper init: %w", err)
	}
	logger = logging.OrNop(logger)
	return &Gateway{
		cfg:     cfg,
		api:     newHTTPAPI(cfg.BaseURL, cfg.Token, logger),
		handler: handler,
		logger:  logger,
		dedup:   dedup,
		now:     time.Now,
	}, nil
}

// SetAPI replaces the HTTP client. This is the primary injection point for
// tests and must be called before Start.
func (g *Gateway) SetAPI(api BotAPI) {
	if g == nil || api == nil {
		return
	}
	g.api = api
}

// Start launches the long-poll loop. It returns immediately; cancelling ctx
// or calling Stop shuts the loop down.
func (g *Gateway) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return fmt.Errorf("telegram gateway already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.started = true
	g.cancel = cancel
	g.mu.Unlock()

	g.wg.Add(1)
	async.Go(g.logger, "telegram.poll", func() {
		defer g.wg.Done()
		g.pollLoop(runCtx)
	})
	return nil
}

// Stop cancels the poll loop and waits for it to exit.
func (g *Gateway) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.started = false
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
}

// pollLoop issues one getUpdates at a time; the next request's offset
// acknowledges everything the previous one returned.
func (g *Gateway) pollLoop(ctx context.Context) {
	backoff := pollRetryMin
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := g.api.GetUpdates(ctx, g.Offset(), g.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Warn("telegram poll failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < pollRetryMax {
				backoff *= 2
				if backoff > pollRetryMax {
					backoff = pollRetryMax
				}
			}
			continue
		}
		backoff = pollRetryMin
		for _, update := range updates {
			g.advanceOffset(update.UpdateID)
			g.handleUpdate(ctx, update)
		}
	}
}

// Offset reports the next getUpdates offset.
func (g *Gateway) Offset() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.offset
}

func (g *Gateway) advanceOffset(updateID int64) {
	g.mu.Lock()
	if updateID >= g.offset {
		g.offset = updateID + 1
	}
	g.mu.Unlock()
}

// InjectUpdate feeds a synthetic update through the same dedup, authorization
// and normalization path the poll loop uses. Primary entry point for tests.
func (g *Gateway) InjectUpdate(ctx context.Context, update Update) {
	g.handleUpdate(ctx, update)
}

func (g *Gateway) handleUpdate(ctx context.Context, update Update) {
	if g.isDuplicateUpdate(update.UpdateID) {
		g.logger.Debug("telegram duplicate update skipped: %d", update.UpdateID)
		return
	}
	msg, ok := normalizeUpdate(update)
	if !ok {
		return
	}
	if msg.ChatID != g.cfg.ChatID {
		g.rejectUnauthorized(ctx, msg)
		return
	}
	if msg.Kind == ports.InboundCallback && msg.CallbackID != "" {
		// Ack the button press so the client stops its spinner; the real
		// outcome arrives as a message edit once the approval resolves.
		if err := g.api.AnswerCallbackQuery(ctx, msg.CallbackID); err != nil {
			g.logger.Warn("telegram callback ack failed: %v", err)
		}
	}
	g.handler.HandleInbound(ctx, msg)
}

// rejectUnauthorized tells a foreign chat it is not served. The handler is
// never invoked for these updates.
func (g *Gateway) rejectUnauthorized(ctx context.Context, msg ports.InboundMessage) {
	g.logger.Warn("telegram update from unauthorized chat %s dropped", msg.ChatID)
	if msg.Kind == ports.InboundCallback && msg.CallbackID != "" {
		if err := g.api.AnswerCallbackQuery(ctx, msg.CallbackID); err != nil {
			g.logger.Debug("telegram unauthorized callback ack failed: %v", err)
		}
	}
	if msg.ChatID == "" {
		return
	}
	if _, err := g.api.SendMessage(ctx, msg.ChatID, rejectionText, "", nil); err != nil {
		g.logger.Debug("telegram rejection notice failed: %v", err)
	}
}

func (g *Gateway) isDuplicateUpdate(updateID int64) bool {
	g.dedupMu.Lock()
	defer g.dedupMu.Unlock()

	now := g.now()
	if ts, ok := g.dedup.Get(updateID); ok {
		if now.Sub(ts) <= updateDedupTTL {
			return true
		}
		g.dedup.Remove(updateID)
	}
	g.dedup.Add(updateID, now)
	return false
}

// normalizeUpdate flattens a raw update into the transport-neutral inbound
// shape. Unsupported payloads (stickers, edits, ...) are dropped.
func normalizeUpdate(update Update) (ports.InboundMessage, bool) {
	if cb := update.CallbackQuery; cb != nil {
		msg := ports.InboundMessage{
			Kind:         ports.InboundCallback,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}
		if cb.Message != nil {
			msg.ChatID = strconv.FormatInt(cb.Message.Chat.ID, 10)
			msg.MessageID = strconv.FormatInt(cb.Message.MessageID, 10)
		}
		return msg, true
	}
	m := update.Message
	if m == nil {
		return ports.InboundMessage{}, false
	}
	msg := ports.InboundMessage{
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		MessageID: strconv.FormatInt(m.MessageID, 10),
	}
	switch {
	case m.Location != nil:
		msg.Kind = ports.InboundLocation
		msg.Latitude = m.Location.Latitude
		msg.Longitude = m.Location.Longitude
	case m.Voice != nil:
		msg.Kind = ports.InboundVoice
		msg.FileID = m.Voice.FileID
		msg.MimeType = m.Voice.MimeType
	case len(m.Photo) > 0:
		// Renditions arrive smallest first; keep the full-size one.
		msg.Kind = ports.InboundPhoto
		msg.FileID = m.Photo[len(m.Photo)-1].FileID
		msg.Text = strings.TrimSpace(m.Caption)
	case m.Document != nil:
		msg.Kind = ports.InboundDocument
		msg.FileID = m.Document.FileID
		msg.FileName = m.Document.FileName
		msg.MimeType = m.Document.MimeType
		msg.Text = strings.TrimSpace(m.Caption)
	case strings.TrimSpace(m.Text) != "":
		msg.Kind = ports.InboundText
		msg.Text = m.Text
	default:
		return ports.InboundMessage{}, false
	}
	return msg, true
}

// SendText implements ports.Outbound. Text is normalized to legacy Markdown
// and split into chunks before delivery.
func (g *Gateway) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, part := range SplitMessage(ToLegacyMarkdown(text), MaxMessageRunes) {
		if _, err := g.send(ctx, part, nil); err != nil {
			return err
		}
	}
	return nil
}

// SendKeyboard implements ports.Outbound. When the text splits, the buttons
// ride on the final chunk and its message id is returned for later edits.
func (g *Gateway) SendKeyboard(ctx context.Context, text string, keyboard ports.Keyboard) (string, error) {
	parts := SplitMessage(ToLegacyMarkdown(text), MaxMessageRunes)
	for _, part := range parts[:len(parts)-1] {
		if _, err := g.send(ctx, part, nil); err != nil {
			return "", err
		}
	}
	messageID, err := g.send(ctx, parts[len(parts)-1], keyboard)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(messageID, 10), nil
}

// EditText implements ports.Outbound. Edits cannot grow past a single
// message, so overlong replacements are truncated at the split boundary.
func (g *Gateway) EditText(ctx context.Context, messageID, text string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(messageID), 10, 64)
	if err != nil {
		return runtimeerrors.NewValidation("message_id", fmt.Sprintf("%q is not a transport message id", messageID))
	}
	normalized := SplitMessage(ToLegacyMarkdown(text), MaxMessageRunes)[0]
	err = g.api.EditMessageText(ctx, g.cfg.ChatID, id, normalized, parseModeMarkdown)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsParseError() {
		return g.api.EditMessageText(ctx, g.cfg.ChatID, id, normalized, "")
	}
	return err
}

// send delivers one chunk, falling back to plain text when the API rejects
// the Markdown entities.
func (g *Gateway) send(ctx context.Context, text string, keyboard ports.Keyboard) (int64, error) {
	messageID, err := g.api.SendMessage(ctx, g.cfg.ChatID, text, parseModeMarkdown, keyboard)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsParseError() {
		g.logger.Debug("telegram markup rejected, resending plain")
		return g.api.SendMessage(ctx, g.cfg.ChatID, text, "", keyboard)
	}
	return messageID, err
}

// DownloadFile resolves a file id to raw bytes via getFile plus the file
// endpoint. The returned name is the server-side path base, which preserves
// the original extension for transcription and MIME sniffing.
func (g *Gateway) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	filePath, err := g.api.GetFile(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	data, err := g.api.DownloadFile(ctx, filePath)
	if err != nil {
		return nil, "", err
	}
	return data, path.Base(filePath), nil
}
