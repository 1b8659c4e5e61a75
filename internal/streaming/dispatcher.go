package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/redaction"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Stream routes.
const (
	RouteChat      = "chat"
	RouteCouncil   = "council"
	RouteSummarize = "summarize"
)

// Default per-attempt stream timeouts.
const (
	DefaultChatTimeout   = 20 * time.Second
	DefaultMemberTimeout = 45 * time.Second
	DefaultLeaderTimeout = 70 * time.Second
)

// Config tunes cache and council behavior. Zero values take defaults.
type Config struct {
	CacheSize     int
	CacheTTL      time.Duration
	ChunkSize     int
	ChatTimeout   time.Duration
	MemberTimeout time.Duration
	LeaderTimeout time.Duration

	// CacheDisabled turns off response caching for every request.
	CacheDisabled bool
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = DefaultChatTimeout
	}
	if c.MemberTimeout <= 0 {
		c.MemberTimeout = DefaultMemberTimeout
	}
	if c.LeaderTimeout <= 0 {
		c.LeaderTimeout = DefaultLeaderTimeout
	}
	return c
}

// Request describes one stream. Chat and summarize use Provider; council uses
// Members and Leader. RequestID is assigned when empty.
type Request struct {
	Route       string
	RequestID   string
	Provider    ports.Provider
	System      string
	Messages    []ports.Message
	Temperature float64
	MaxTokens   int
	SkipCache   bool
	Extras      map[string]string

	Members      []ports.Provider
	Leader       ports.Provider
	Blind        bool
	LeaderSystem string
}

// Dispatcher serves streams with cancellation by request id, a TTL response
// cache, and the council pattern.
type Dispatcher struct {
	registry *Registry
	cache    *Cache
	config   Config
	logger   logging.Logger
	metrics  *observability.MetricsCollector
}

// NewDispatcher builds a dispatcher with its own registry and cache.
func NewDispatcher(config Config, logger logging.Logger, metrics *observability.MetricsCollector) (*Dispatcher, error) {
	cache, err := NewCache(config.CacheSize, config.CacheTTL)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		registry: NewRegistry(),
		cache:    cache,
		config:   config.withDefaults(),
		logger:   logging.OrNop(logger),
		metrics:  metrics,
	}, nil
}

// Cancel aborts the named in-flight stream.
func (d *Dispatcher) Cancel(requestID string) bool {
	return d.registry.Cancel(requestID)
}

// InFlight reports how many streams are active.
func (d *Dispatcher) InFlight() int { return d.registry.Len() }

// ServeStream runs one stream to completion, pushing frames to the sink. The
// first frame is always meta with the effective request id; the last is done,
// cancelled, or error. Submitting a request id that is already in flight
// aborts the prior stream. Cancelling ctx (client disconnect) aborts this one.
func (d *Dispatcher) ServeStream(ctx context.Context, req Request, sink Sink) error {
	if req.RequestID == "" {
		req.RequestID = id.NewRequestID()
	}
	if d.config.CacheDisabled {
		req.SkipCache = true
	}
	sink = lockedSink(sink)

	streamCtx, cancel := context.WithCancelCause(ctx)
	release := d.registry.Register(req.RequestID, cancel)
	defer func() {
		release()
		cancel(nil)
	}()

	if err := sink(metaFrame(req.RequestID)); err != nil {
		return err
	}

	switch req.Route {
	case RouteChat, RouteSummarize:
		return d.serveChat(streamCtx, req, sink)
	case RouteCouncil:
		return d.serveCouncil(streamCtx, req, sink)
	default:
		err := fmt.Errorf("unknown stream route %q", req.Route)
		_ = sink(errorFrame(err.Error()))
		return err
	}
}

func (d *Dispatcher) serveChat(ctx context.Context, req Request, sink Sink) error {
	if req.Provider == nil {
		err := fmt.Errorf("route %s needs a provider", req.Route)
		_ = sink(errorFrame(err.Error()))
		return err
	}

	key := d.chatCacheKey(req)
	if !req.SkipCache {
		if content, ok := d.cache.Get(key); ok {
			d.recordCache(ctx, true)
			return d.replay(ctx, content, sink)
		}
		d.recordCache(ctx, false)
	}

	chatCtx, cancel := context.WithTimeout(ctx, d.config.ChatTimeout)
	defer cancel()
	content, _, err := d.runStream(chatCtx, req.Provider, d.chatRequest(req), func(token string) error {
		return sink(tokenFrame(token))
	})
	// Client cancellation ends as a cancelled frame; hitting the chat
	// deadline falls through to the error path instead.
	if ctx.Err() != nil {
		return d.finishCancelled(ctx, sink)
	}
	if err != nil {
		_ = sink(errorFrame(redaction.RedactError(err)))
		return err
	}
	if !req.SkipCache && content != "" {
		d.cache.Put(key, content)
	}
	return sink(doneFrame())
}

// replay streams cached content in fixed-size chunks without touching the
// provider or usage accounting.
func (d *Dispatcher) replay(ctx context.Context, content string, sink Sink) error {
	for _, chunk := range chunked(content, d.config.ChunkSize) {
		if ctx.Err() != nil {
			return d.finishCancelled(ctx, sink)
		}
		if err := sink(cachedTokenFrame(chunk)); err != nil {
			return err
		}
	}
	return sink(doneFrame())
}

// runStream forwards provider tokens through forward and accumulates the full
// text. The event channel is always drained so the producer never blocks.
func (d *Dispatcher) runStream(ctx context.Context, provider ports.Provider, chatReq ports.ChatRequest, forward func(string) error) (string, *ports.TokenUsage, error) {
	start := time.Now()
	events, err := provider.Stream(ctx, chatReq)
	if err != nil {
		d.recordProvider(ctx, provider, "error", start, nil)
		return "", nil, err
	}

	var text strings.Builder
	var usage *ports.TokenUsage
	var streamErr, sinkErr error
	for event := range events {
		if streamErr != nil || sinkErr != nil {
			continue
		}
		switch event.Type {
		case ports.StreamToken:
			text.WriteString(event.Token)
			if err := forward(event.Token); err != nil {
				sinkErr = err
			}
		case ports.StreamDone:
			if event.Usage != nil {
				usage = event.Usage
			}
		case ports.StreamError:
			streamErr = event.Err
		}
	}

	switch {
	case ctx.Err() != nil:
		d.recordProvider(ctx, provider, "cancelled", start, usage)
		return text.String(), usage, context.Cause(ctx)
	case streamErr != nil:
		d.recordProvider(ctx, provider, "error", start, usage)
		return text.String(), usage, streamErr
	case sinkErr != nil:
		d.recordProvider(ctx, provider, "ok", start, usage)
		return text.String(), usage, sinkErr
	default:
		d.recordProvider(ctx, provider, "ok", start, usage)
		return text.String(), usage, nil
	}
}

func (d *Dispatcher) chatRequest(req Request) ports.ChatRequest {
	return ports.ChatRequest{
		System:      req.System,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func (d *Dispatcher) chatCacheKey(req Request) string {
	params := map[string]any{}
	if req.Temperature != 0 {
		params["temperature"] = req.Temperature
	}
	if req.MaxTokens != 0 {
		params["max_tokens"] = req.MaxTokens
	}
	return CacheKey(req.Route, req.Provider.Name(), req.Provider.Model(), req.System, req.Messages, params, nil, req.Extras)
}

// finishCancelled emits the cancelled frame and counts the cancellation.
// Cancellation is normal termination, not an error to the caller.
func (d *Dispatcher) finishCancelled(ctx context.Context, sink Sink) error {
	if d.metrics != nil {
		d.metrics.RecordStreamCancellation(context.WithoutCancel(ctx), cancelReason(ctx))
	}
	_ = sink(cancelledFrame())
	return nil
}

func (d *Dispatcher) recordCache(ctx context.Context, hit bool) {
	if d.metrics != nil {
		d.metrics.RecordCacheEvent(ctx, hit)
	}
}

func (d *Dispatcher) recordProvider(ctx context.Context, provider ports.Provider, status string, start time.Time, usage *ports.TokenUsage) {
	if d.metrics == nil {
		return
	}
	var tokensIn, tokensOut int64
	if usage != nil {
		tokensIn = int64(usage.PromptTokens)
		tokensOut = int64(usage.CompletionTokens)
	}
	d.metrics.RecordProviderRequest(context.WithoutCancel(ctx), provider.Name(), provider.Model(), status, time.Since(start), tokensIn, tokensOut)
}

// cancelReason maps the cancellation cause to a metric label.
func cancelReason(ctx context.Context) string {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrReplaced):
		return "replaced"
	case errors.Is(cause, ErrCancelRequested):
		return "cancel"
	default:
		return "client"
	}
}

// lockedSink serializes frame writes; council members emit concurrently.
func lockedSink(sink Sink) Sink {
	var mu sync.Mutex
	return func(frame Frame) error {
		mu.Lock()
		defer mu.Unlock()
		return sink(frame)
	}
}
