package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
	"github.com/Drakonis96/optimAIzer-sub001/internal/approval"
	"github.com/Drakonis96/optimAIzer-sub001/internal/async"
	"github.com/Drakonis96/optimAIzer-sub001/internal/channels/telegram"
	"github.com/Drakonis96/optimAIzer-sub001/internal/httpclient"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/scheduler"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/redaction"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/toolregistry"
	"github.com/Drakonis96/optimAIzer-sub001/internal/tools/builtin"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Agent is one deployed runtime: gateway, inbox worker, scheduler, engine.
// Inbound callbacks resolve approvals directly on the poll goroutine; every
// other update queues for the inbox worker, which runs turns one at a time.
type Agent struct {
	id     string
	userID string
	config workspace.AgentConfig

	engine      *domain.Engine
	gateway     *telegram.Gateway
	scheduler   *scheduler.Scheduler
	broker      *approval.Broker
	transcriber ports.Transcriber
	store       store.Store
	logger      logging.Logger
	metrics     *observability.MetricsCollector

	inbox *inbox

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// fileRecord is one received attachment, kept as metadata so the agent can
// re-fetch the file from the transport later.
type fileRecord struct {
	ID         string    `json:"id"`
	FileID     string    `json:"file_id"`
	Name       string    `json:"name,omitempty"`
	MimeType   string    `json:"mime_type,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// start brings the scheduler, transport, and inbox worker up. The runtime
// context derives from the background so a deploy request's deadline cannot
// kill a long-lived agent.
func (a *Agent) start() error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("agent %s already started", a.id)
	}
	base := id.WithAgentID(id.WithUserID(context.Background(), a.userID), a.id)
	runCtx, cancel := context.WithCancel(base)
	a.cancel = cancel
	a.started = true
	a.mu.Unlock()

	if err := a.scheduler.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("scheduler for agent %s: %w", a.id, err)
	}
	if err := a.gateway.Start(runCtx); err != nil {
		a.scheduler.Stop()
		cancel()
		return fmt.Errorf("transport for agent %s: %w", a.id, err)
	}

	a.wg.Add(1)
	async.Go(a.logger, "agent.inbox", func() {
		defer a.wg.Done()
		a.inboxLoop(runCtx)
	})
	return nil
}

// stop cancels the runtime context, halts the transport and scheduler, and
// waits up to drain for the inbox worker to finish its current turn.
func (a *Agent) stop(drain time.Duration) {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	started := a.started
	a.started = false
	a.mu.Unlock()
	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	a.gateway.Stop()
	a.inbox.Close()
	a.scheduler.Stop()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drain):
		a.logger.Warn("agent %s: drain window elapsed with a turn still running", a.id)
	}
}

// HandleInbound implements telegram.InboundHandler. Callbacks resolve
// in-flight approvals immediately; anything queued behind a running turn
// would deadlock the approval it answers. Other updates go to the inbox.
func (a *Agent) HandleInbound(ctx context.Context, msg ports.InboundMessage) {
	if msg.Kind == ports.InboundCallback {
		a.resolveCallback(ctx, msg)
		return
	}
	if a.inbox.Push(msg) {
		a.logger.Warn("agent %s: inbox full, dropped oldest queued update", a.id)
	}
}

func (a *Agent) resolveCallback(_ context.Context, msg ports.InboundMessage) {
	requestID, approved, ok := approval.ParseCallback(msg.CallbackData)
	if !ok {
		a.logger.Debug("agent %s: unrecognized callback %q", a.id, msg.CallbackData)
		return
	}
	if !a.broker.Resolve(requestID, approved, "telegram", "") {
		a.logger.Debug("agent %s: callback for settled approval %s", a.id, requestID)
	}
}

func (a *Agent) inboxLoop(ctx context.Context) {
	for {
		msg, ok := a.inbox.Pop(ctx)
		if !ok {
			return
		}
		a.process(ctx, msg)
	}
}

func (a *Agent) process(ctx context.Context, msg ports.InboundMessage) {
	ctx, _ = id.EnsureRequestID(ctx, id.NewRequestID)
	switch msg.Kind {
	case ports.InboundText:
		a.handleText(ctx, msg.Text)
	case ports.InboundVoice:
		a.handleVoice(ctx, msg)
	case ports.InboundLocation:
		a.handleLocation(ctx, msg.Latitude, msg.Longitude)
	case ports.InboundPhoto, ports.InboundDocument:
		a.handleFile(ctx, msg)
	default:
		a.logger.Debug("agent %s: ignoring %s update", a.id, msg.Kind)
	}
}

// handleText fires matching keyword subscriptions, then runs the message as
// a user turn. Subscription fires send their own replies; the user turn's
// reply goes out here.
func (a *Agent) handleText(ctx context.Context, text string) {
	if fired := a.scheduler.FireKeywords(ctx, text); fired > 0 {
		a.logger.Debug("agent %s: %d keyword subscriptions fired", a.id, fired)
	}
	a.deliver(ctx, domain.Stimulus{Kind: domain.StimulusUser, Text: text})
}

func (a *Agent) handleVoice(ctx context.Context, msg ports.InboundMessage) {
	if a.transcriber == nil {
		a.sendReply(ctx, "I can't listen to voice messages on this deployment. Please type it out.")
		return
	}
	audio, name, err := a.gateway.DownloadFile(ctx, msg.FileID)
	if err != nil {
		a.logger.Error("agent %s: voice download failed: %v", a.id, err)
		if httpclient.IsResponseTooLarge(err) {
			a.sendReply(ctx, "That voice message is too large for me to download. Please send a shorter one or type it out.")
			return
		}
		a.sendReply(ctx, "I couldn't fetch that voice message. Please try again.")
		return
	}
	transcript, err := a.transcriber.Transcribe(ctx, audio, name)
	if err != nil {
		a.logger.Error("agent %s: transcription failed: %v", a.id, err)
		a.sendReply(ctx, "I couldn't make out that voice message. Please try again or type it out.")
		return
	}
	a.handleText(ctx, transcript)
}

// handleLocation runs one reminder turn per geofence the update landed in.
// MatchLocation already stamped the cooldowns.
func (a *Agent) handleLocation(ctx context.Context, lat, lon float64) {
	for _, rem := range a.scheduler.MatchLocation(ctx, lat, lon) {
		if a.metrics != nil {
			a.metrics.RecordSchedulerFire(ctx, "location")
		}
		a.deliver(ctx, domain.Stimulus{
			Kind: domain.StimulusReminder,
			Text: "[REMINDER] " + rem.Message,
		})
	}
}

// handleFile records the attachment's metadata, then lets the model react
// to the caption and the fact of the upload.
func (a *Agent) handleFile(ctx context.Context, msg ports.InboundMessage) {
	record := fileRecord{
		ID:         id.NewEntryID("file"),
		FileID:     msg.FileID,
		Name:       msg.FileName,
		MimeType:   msg.MimeType,
		ReceivedAt: time.Now().UTC(),
	}
	if err := a.appendFileRecord(ctx, record); err != nil {
		a.logger.Warn("agent %s: file record not persisted: %v", a.id, err)
	}

	var text string
	if msg.Kind == ports.InboundPhoto {
		text = "[User sent a photo]"
	} else {
		text = fmt.Sprintf("[User sent a file %q (%s)]", msg.FileName, msg.MimeType)
	}
	if caption := strings.TrimSpace(msg.Text); caption != "" {
		text += " " + caption
	}
	a.deliver(ctx, domain.Stimulus{Kind: domain.StimulusUser, Text: text})
}

func (a *Agent) appendFileRecord(ctx context.Context, record fileRecord) error {
	key := store.AgentCollectionKey(a.userID, a.id, store.CollectionTelegramFiles)
	var records []fileRecord
	if err := store.GetJSON(ctx, a.store, key, &records); err != nil && err != store.ErrNotFound {
		return err
	}
	records = append(records, record)
	return store.PutJSON(ctx, a.store, key, records)
}

// deliver runs the turn and sends the reply to the agent's chat. Errors
// reach the user in redacted form; the full error stays in the log.
func (a *Agent) deliver(ctx context.Context, stim domain.Stimulus) {
	result, err := a.RunTurn(ctx, stim)
	if err != nil {
		a.logger.Error("agent %s: turn failed: %v", a.id, err)
		a.sendReply(ctx, "Something went wrong: "+redaction.RedactError(err))
		return
	}
	a.sendReply(ctx, result.Text)
}

func (a *Agent) sendReply(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := a.gateway.SendText(ctx, text); err != nil {
		a.logger.Error("agent %s: reply delivery failed: %v", a.id, err)
	}
}

// RunTurn implements scheduler.TurnRunner. The scheduler sends its own
// replies, so this path runs the turn and nothing else.
func (a *Agent) RunTurn(ctx context.Context, stim domain.Stimulus) (*domain.TurnResult, error) {
	if id.UserIDFromContext(ctx) == "" {
		ctx = id.WithUserID(ctx, a.userID)
	}
	if id.AgentIDFromContext(ctx) == "" {
		ctx = id.WithAgentID(ctx, a.id)
	}
	ctx, _ = id.EnsureRequestID(ctx, id.NewRequestID)
	return a.engine.RunTurn(ctx, stim)
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// scheduledTurns builds the agent's scheduler wired back into its own turn
// loop and chat.
func scheduledTurns(deps Deps, cfg workspace.AgentConfig, runner scheduler.TurnRunner, outbound ports.Outbound) *scheduler.Scheduler {
	return scheduler.New(scheduler.Deps{
		Store:    deps.Store,
		Runner:   runner,
		Outbound: outbound,
		Poller:   deps.Poller,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	}, scheduler.Config{
		UserID:        cfg.OwnerUserID,
		AgentID:       cfg.ID,
		AgentTimezone: cfg.Timezone,
	})
}

// buildRegistry assembles the agent's tool set: binding scoped to the
// owner, collaborator backends from the deployment, permission gate and
// allowed-websites filter from the agent's config.
func (m *Manager) buildRegistry(cfg workspace.AgentConfig, gateway *telegram.Gateway, sched *scheduler.Scheduler) *toolregistry.Registry {
	binding := builtin.Binding{
		Store:     m.deps.Store,
		UserID:    cfg.OwnerUserID,
		AgentID:   cfg.ID,
		Logger:    m.deps.Logger,
		Timezone:  cfg.Timezone,
		AllowHost: cfg.Permissions.AllowsHost,
	}
	return builtin.BuildRegistry(binding, builtin.Collaborators{
		Outbound:  gateway,
		Scheduler: sched,
		Searcher:  m.deps.Collab.Searcher,
		Calendar:  m.deps.Collab.Calendar,
		Email:     m.deps.Collab.Email,
		Home:      m.deps.Collab.Home,
		Media:     m.deps.Collab.Media,
	}, builtin.RegistryConfig{
		Permissions: cfg.Permissions.Check,
		Dedup:       m.config.Dedup,
		WorkDir:     m.config.WorkDir,
	})
}
