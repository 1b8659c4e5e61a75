// Package transcribe turns captured audio into text through a
// whisper-compatible HTTP endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	runtimeerrors "github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/httpclient"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

const (
	uploadTimeout    = 120 * time.Second
	maxResponseBytes = 1 << 20

	// DefaultModel is sent for endpoints that expect an OpenAI-style model
	// field; whisper.cpp servers ignore it.
	DefaultModel = "whisper-1"
)

// Whisper posts audio to a transcription endpoint speaking the OpenAI audio
// API shape: multipart file upload in, JSON text out. WHISPER_API_URL names
// the full endpoint URL.
type Whisper struct {
	url    string
	model  string
	client *http.Client
	logger logging.Logger
	retry  runtimeerrors.RetryConfig
}

// NewWhisper builds a client for the given endpoint.
func NewWhisper(url string, logger logging.Logger) *Whisper {
	return &Whisper{
		url:    strings.TrimSpace(url),
		model:  DefaultModel,
		client: httpclient.NewWithCircuitBreaker(0, logger, "whisper"),
		logger: logging.OrNop(logger),
		// A local whisper server reloading its model answers 5xx for a few
		// seconds; a couple of short retries ride that out without keeping
		// the user waiting long on a genuinely dead endpoint.
		retry: runtimeerrors.RetryConfig{
			MaxAttempts:  2,
			BaseDelay:    time.Second,
			MaxDelay:     4 * time.Second,
			JitterFactor: 0.2,
		},
	}
}

// WithModel overrides the model field sent with each upload.
func (w *Whisper) WithModel(model string) *Whisper {
	w.model = model
	return w
}

// WithRetry overrides the transient-failure retry policy.
func (w *Whisper) WithRetry(config runtimeerrors.RetryConfig) *Whisper {
	w.retry = config
	return w
}

// Transcribe uploads the audio and returns the recognized text. Transient
// upstream failures are retried with backoff.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", runtimeerrors.NewValidation("audio", "empty audio payload")
	}
	if filename == "" {
		filename = "audio.ogg"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if w.model != "" {
		if err := form.WriteField("model", w.model); err != nil {
			return "", fmt.Errorf("transcribe: build form: %w", err)
		}
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}

	payload := body.Bytes()
	contentType := form.FormDataContentType()
	return runtimeerrors.RetryWithResult(ctx, w.retry, w.logger, func(ctx context.Context) (string, error) {
		return w.upload(ctx, payload, contentType)
	})
}

func (w *Whisper) upload(ctx context.Context, payload []byte, contentType string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return "", runtimeerrors.NewExternal("whisper", 0, err, "build request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", runtimeerrors.NewExternal("whisper", 0, err, "upload failed")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return "", runtimeerrors.NewExternal("whisper", resp.StatusCode, err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", runtimeerrors.NewExternal("whisper", resp.StatusCode, nil,
			fmt.Sprintf("transcription returned status %d", resp.StatusCode))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		// Servers configured for response_format=text answer with a bare
		// string body.
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", runtimeerrors.NewExternal("whisper", resp.StatusCode, nil, "malformed transcription response")
		}
		return text, nil
	}
	return strings.TrimSpace(result.Text), nil
}
