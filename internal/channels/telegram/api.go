package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	ports "github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	runtimeerrors "github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/httpclient"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

const (
	// DefaultBaseURL is the public Bot API endpoint; TELEGRAM_API_BASE_URL
	// points the client at a proxy or a test server instead.
	DefaultBaseURL = "https://api.telegram.org"

	requestTimeout      = 30 * time.Second
	downloadTimeout     = 120 * time.Second
	longPollGrace       = 10 * time.Second
	maxAPIResponseBytes = 4 << 20
	maxFileBytes        = 20 << 20 // Bot API refuses downloads past 20 MB
)

// Update is one long-poll result entry.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is the subset of the Bot API message object the runtime consumes.
type Message struct {
	MessageID int64       `json:"message_id"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Voice     *Voice      `json:"voice,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Document  *Document   `json:"document,omitempty"`
	Location  *Location   `json:"location,omitempty"`
	Caption   string      `json:"caption,omitempty"`
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// CallbackQuery is an inline-keyboard button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Voice is an audio note attachment.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// PhotoSize is one rendition of a photo; the API sends several, smallest first.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Document is a generic file attachment.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Location is a shared GPS position.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// APIError is a non-ok Bot API response.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// IsParseError reports whether the API rejected the message markup, which
// callers handle by resending without a parse mode.
func (e *APIError) IsParseError() bool {
	return e.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(e.Description), "can't parse entities")
}

// BotAPI is the wire surface the gateway needs. The production implementation
// talks to the Bot HTTP API; tests substitute a scripted fake.
type BotAPI interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID, text, parseMode string, keyboard ports.Keyboard) (int64, error)
	EditMessageText(ctx context.Context, chatID string, messageID int64, text, parseMode string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	GetFile(ctx context.Context, fileID string) (string, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
}

type httpAPI struct {
	base   string
	token  string
	client *http.Client
}

func newHTTPAPI(baseURL, token string, logger logging.Logger) *httpAPI {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &httpAPI{
		base:   base,
		token:  token,
		client: httpclient.NewWithCircuitBreaker(0, logger, "telegram"),
	}
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

func (a *httpAPI) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	seconds := int(timeout / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	// The request blocks server-side for the poll window; give the HTTP
	// round trip that long plus slack before the client gives up.
	callCtx, cancel := context.WithTimeout(ctx, timeout+longPollGrace)
	defer cancel()

	var updates []Update
	err := a.call(callCtx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        seconds,
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

type replyMarkup struct {
	InlineKeyboard ports.Keyboard `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string       `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

func (a *httpAPI) SendMessage(ctx context.Context, chatID, text, parseMode string, keyboard ports.Keyboard) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload := sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMode}
	if len(keyboard) > 0 {
		payload.ReplyMarkup = &replyMarkup{InlineKeyboard: keyboard}
	}
	var sent Message
	if err := a.call(callCtx, "sendMessage", payload, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

type editMessageRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

func (a *httpAPI) EditMessageText(ctx context.Context, chatID string, messageID int64, text, parseMode string) error {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	return a.call(callCtx, "editMessageText", editMessageRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: parseMode,
	}, nil)
}

func (a *httpAPI) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload := map[string]string{"callback_query_id": callbackID}
	return a.call(callCtx, "answerCallbackQuery", payload, nil)
}

func (a *httpAPI) GetFile(ctx context.Context, fileID string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var file struct {
		FileID   string `json:"file_id"`
		FilePath string `json:"file_path"`
	}
	payload := map[string]string{"file_id": fileID}
	if err := a.call(callCtx, "getFile", payload, &file); err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", runtimeerrors.NewExternal("telegram", 0, nil, "getFile returned no file_path")
	}
	return file.FilePath, nil
}

func (a *httpAPI) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	url := a.base + "/file/bot" + a.token + "/" + strings.TrimLeft(filePath, "/")
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, runtimeerrors.NewExternal("telegram", 0, nil, a.redact(err))
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, runtimeerrors.NewExternal("telegram", 0, nil, a.redact(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, runtimeerrors.NewExternal("telegram", resp.StatusCode, nil,
			fmt.Sprintf("file download returned status %d", resp.StatusCode))
	}
	data, err := httpclient.ReadAllWithLimit(resp.Body, maxFileBytes)
	if err != nil {
		// The cause stays wrapped so callers can tell an oversized file
		// from a transport failure.
		return nil, runtimeerrors.NewExternal("telegram", 0, err, a.redact(err))
	}
	return data, nil
}

// call POSTs a JSON payload to a Bot API method and decodes the result field
// of the response envelope into out when non-nil.
func (a *httpAPI) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/bot"+a.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return runtimeerrors.NewExternal("telegram", 0, nil, a.redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return runtimeerrors.NewExternal("telegram", 0, nil, fmt.Sprintf("%s: %s", method, a.redact(err)))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := httpclient.ReadAllWithLimit(resp.Body, maxAPIResponseBytes)
	if err != nil {
		return runtimeerrors.NewExternal("telegram", resp.StatusCode, nil, fmt.Sprintf("%s: %s", method, a.redact(err)))
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return runtimeerrors.NewExternal("telegram", resp.StatusCode, nil,
			fmt.Sprintf("%s: malformed response", method))
	}
	if !envelope.OK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Code: code, Description: envelope.Description}
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return runtimeerrors.NewExternal("telegram", resp.StatusCode, nil,
				fmt.Sprintf("%s: malformed result", method))
		}
	}
	return nil
}

// redact keeps the bot token out of error strings; request URLs embed it.
func (a *httpAPI) redact(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if a.token != "" {
		msg = strings.ReplaceAll(msg, a.token, "[REDACTED]")
	}
	return msg
}
