// Package approval implements the out-of-band confirmation gate for critical
// tool calls. Prompts fan out to every registered surface (chat keyboard,
// operator socket, console); the first decision wins and silence denies.
package approval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	ports "github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	runtimeerrors "github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	id "github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// DefaultTimeout denies an unanswered request after this long.
const DefaultTimeout = 30 * time.Second

// Prompter displays an approval request on one surface. Decisions come back
// through Broker.Resolve; ApprovalResolved lets the surface retire its prompt.
type Prompter interface {
	Name() string
	PromptApproval(ctx context.Context, request ports.ApprovalRequest) error
	ApprovalResolved(ctx context.Context, request ports.ApprovalRequest, decision ports.ApprovalDecision)
}

// AuditEntry is the persisted record of one approval outcome.
type AuditEntry struct {
	Kind         string    `json:"kind"`
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
	Tool         string    `json:"tool"`
	ParamsDigest string    `json:"params_digest,omitempty"`
	Approved     bool      `json:"approved"`
	Actor        string    `json:"actor"`
	Note         string    `json:"note,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

const auditKind = "approval"

// Config carries broker settings.
type Config struct {
	Timeout time.Duration
}

type pendingRequest struct {
	request ports.ApprovalRequest
	ch      chan ports.ApprovalDecision
}

// Broker implements ports.Approver over a set of prompters.
type Broker struct {
	cfg    Config
	store  store.Store
	logger logging.Logger
	now    func() time.Time

	mu        sync.Mutex
	prompters []Prompter
	pending   map[string]*pendingRequest

	auditMu sync.Mutex
}

// NewBroker constructs a broker. The store receives audit entries; pass nil
// to skip auditing (tests, console-only runs).
func NewBroker(cfg Config, st store.Store, logger logging.Logger) *Broker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Broker{
		cfg:     cfg,
		store:   st,
		logger:  logging.OrNop(logger),
		now:     time.Now,
		pending: map[string]*pendingRequest{},
	}
}

// AddPrompter registers an approval surface.
func (b *Broker) AddPrompter(p Prompter) {
	if p == nil {
		return
	}
	b.mu.Lock()
	b.prompters = append(b.prompters, p)
	b.mu.Unlock()
}

// RequestApproval implements ports.Approver. It blocks until a decision
// arrives, the timeout elapses (ApprovalTimeout), or ctx is cancelled.
func (b *Broker) RequestApproval(ctx context.Context, request ports.ApprovalRequest) (ports.ApprovalDecision, error) {
	if request.ID == "" {
		request.ID = id.NewApprovalID()
	}
	entry := &pendingRequest{
		request: request,
		ch:      make(chan ports.ApprovalDecision, 1),
	}

	b.mu.Lock()
	b.pending[request.ID] = entry
	prompters := append([]Prompter(nil), b.prompters...)
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, request.ID)
		b.mu.Unlock()
	}()

	displayed := 0
	for _, p := range prompters {
		if err := p.PromptApproval(ctx, request); err != nil {
			b.logger.Warn("approval prompt via %s failed: %v", p.Name(), err)
			continue
		}
		displayed++
	}
	if displayed == 0 {
		decision := ports.ApprovalDecision{Approved: false, Actor: "none", Note: "no approval surface available"}
		b.audit(ctx, request, decision)
		return decision, nil
	}

	timer := time.NewTimer(b.cfg.Timeout)
	defer timer.Stop()

	var decision ports.ApprovalDecision
	var err error
	select {
	case decision = <-entry.ch:
	case <-timer.C:
		decision = ports.ApprovalDecision{Approved: false, Actor: "timeout"}
		err = runtimeerrors.NewApprovalTimeout(request.ToolName, b.cfg.Timeout)
	case <-ctx.Done():
		decision = ports.ApprovalDecision{Approved: false, Actor: "cancelled"}
		err = runtimeerrors.NewCancelled(ctx.Err())
	}

	b.audit(ctx, request, decision)
	resolvedCtx := context.WithoutCancel(ctx)
	for _, p := range prompters {
		p.ApprovalResolved(resolvedCtx, request, decision)
	}
	return decision, err
}

// Resolve delivers a decision for a pending request. It returns false when
// the request is unknown or already resolved; later decisions lose.
func (b *Broker) Resolve(requestID string, approved bool, actor, note string) bool {
	b.mu.Lock()
	entry, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	entry.ch <- ports.ApprovalDecision{Approved: approved, Actor: actor, Note: note}
	return true
}

// Pending lists requests still awaiting a decision, ordered by id. Operator
// surfaces use it to replay outstanding prompts on connect.
func (b *Broker) Pending() []ports.ApprovalRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ports.ApprovalRequest, 0, len(b.pending))
	for _, entry := range b.pending {
		out = append(out, entry.request)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// audit appends the outcome to the resource-event stream. Failures only log;
// an approval must not fail because bookkeeping did.
func (b *Broker) audit(ctx context.Context, request ports.ApprovalRequest, decision ports.ApprovalDecision) {
	if b.store == nil {
		return
	}
	entry := AuditEntry{
		Kind:         auditKind,
		ID:           request.ID,
		UserID:       request.UserID,
		AgentID:      request.AgentID,
		Tool:         request.ToolName,
		ParamsDigest: digestParams(request.Params),
		Approved:     decision.Approved,
		Actor:        decision.Actor,
		Note:         decision.Note,
		DecidedAt:    b.now().UTC(),
	}

	writeCtx := context.WithoutCancel(ctx)
	b.auditMu.Lock()
	defer b.auditMu.Unlock()

	var rows []json.RawMessage
	if err := store.GetJSON(writeCtx, b.store, store.KeyResourceEvents, &rows); err != nil && !stderrors.Is(err, store.ErrNotFound) {
		b.logger.Warn("approval audit read failed: %v", err)
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		b.logger.Warn("approval audit encode failed: %v", err)
		return
	}
	rows = append(rows, raw)
	if err := store.PutJSON(writeCtx, b.store, store.KeyResourceEvents, rows); err != nil {
		b.logger.Warn("approval audit write failed: %v", err)
	}
}

// AuditLog reads back persisted approval entries, oldest first.
func (b *Broker) AuditLog(ctx context.Context) ([]AuditEntry, error) {
	if b.store == nil {
		return nil, nil
	}
	var all []AuditEntry
	if err := store.GetJSON(ctx, b.store, store.KeyResourceEvents, &all); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := all[:0]
	for _, entry := range all {
		if entry.Kind == auditKind {
			out = append(out, entry)
		}
	}
	return out, nil
}

// digestParams fingerprints redacted params for the audit trail without
// persisting the values themselves.
func digestParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}
