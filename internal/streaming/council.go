package streaming

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/redaction"
)

const defaultLeaderSystem = "You merge several draft answers to the same request into one final answer. " +
	"Keep the strongest points, resolve disagreements in favor of the best-supported claim, " +
	"and never mention that multiple drafts exist."

type memberOutcome struct {
	text string
	err  error
}

// serveCouncil fans the request out to every member, then synthesizes the
// final answer through the leader. Member failures are reported per member
// and do not abort the batch; only a batch with zero usable responses fails.
func (d *Dispatcher) serveCouncil(ctx context.Context, req Request, sink Sink) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanCouncilRun)
	defer span.End()
	if len(req.Members) == 0 || req.Leader == nil {
		err := fmt.Errorf("council needs members and a leader")
		_ = sink(errorFrame(err.Error()))
		return err
	}

	key := d.councilCacheKey(req)
	if !req.SkipCache {
		if content, ok := d.cache.Get(key); ok {
			d.recordCache(ctx, true)
			return d.replay(ctx, content, sink)
		}
		d.recordCache(ctx, false)
	}

	if err := sink(phaseFrame(PhaseMembers)); err != nil {
		return err
	}

	outcomes := make([]memberOutcome, len(req.Members))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, member := range req.Members {
		i, member := i, member
		group.Go(func() error {
			memberCtx, cancel := context.WithTimeout(groupCtx, d.config.MemberTimeout)
			defer cancel()
			text, _, err := d.runStream(memberCtx, member, d.chatRequest(req), func(token string) error {
				return sink(memberTokenFrame(i, token))
			})
			outcomes[i] = memberOutcome{text: text, err: err}
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				_ = sink(memberErrorFrame(i, redaction.RedactError(err)))
			} else {
				_ = sink(memberCompleteFrame(i))
			}
			return nil
		})
	}
	_ = group.Wait()

	if ctx.Err() != nil {
		return d.finishCancelled(ctx, sink)
	}

	usable := 0
	for _, outcome := range outcomes {
		if outcome.err == nil && strings.TrimSpace(outcome.text) != "" {
			usable++
		}
	}
	if usable == 0 {
		err := fmt.Errorf("all %d council members failed", len(req.Members))
		_ = sink(errorFrame(err.Error()))
		return err
	}

	if err := sink(phaseFrame(PhaseLeader)); err != nil {
		return err
	}
	leaderReq := d.leaderRequest(req, outcomes)

	leaderText, err := d.runLeaderAttempt(ctx, req.Leader, leaderReq, sink)
	if ctx.Err() != nil {
		return d.finishCancelled(ctx, sink)
	}
	if leaderText == "" {
		// A leader that settles without a single token gets one more try.
		if err := sink(phaseFrame(PhaseLeaderRetry)); err != nil {
			return err
		}
		leaderText, err = d.runLeaderAttempt(ctx, req.Leader, leaderReq, sink)
		if ctx.Err() != nil {
			return d.finishCancelled(ctx, sink)
		}
	}

	if leaderText == "" {
		// Degrade to the members' own words rather than returning nothing.
		d.logger.Warn("council leader produced no output twice, falling back to member synthesis: %v", err)
		if err := sink(phaseFrame(PhaseLeaderPartial)); err != nil {
			return err
		}
		for _, chunk := range chunked(fallbackSynthesis(req.Blind, outcomes), d.config.ChunkSize) {
			if err := sink(tokenFrame(chunk)); err != nil {
				return err
			}
		}
		return sink(doneFrame())
	}
	if err != nil {
		_ = sink(errorFrame(redaction.RedactError(err)))
		return err
	}

	if !req.SkipCache {
		d.cache.Put(key, leaderText)
	}
	return sink(doneFrame())
}

func (d *Dispatcher) runLeaderAttempt(ctx context.Context, leader ports.Provider, chatReq ports.ChatRequest, sink Sink) (string, error) {
	leaderCtx, cancel := context.WithTimeout(ctx, d.config.LeaderTimeout)
	defer cancel()
	text, _, err := d.runStream(leaderCtx, leader, chatReq, func(token string) error {
		return sink(tokenFrame(token))
	})
	return text, err
}

// leaderRequest builds the synthesis prompt. Responses are anonymized: the
// leader sees numbered (or lettered, when blind) texts, never member names.
func (d *Dispatcher) leaderRequest(req Request, outcomes []memberOutcome) ports.ChatRequest {
	system := req.LeaderSystem
	if system == "" {
		system = defaultLeaderSystem
	}

	var prompt strings.Builder
	prompt.WriteString("Original request:\n")
	prompt.WriteString(lastUserContent(req.Messages))
	prompt.WriteString("\n\n")
	label := 0
	for _, outcome := range outcomes {
		text := strings.TrimSpace(outcome.text)
		if outcome.err != nil || text == "" {
			continue
		}
		prompt.WriteString(memberLabel(label, req.Blind))
		prompt.WriteString(":\n")
		prompt.WriteString(text)
		prompt.WriteString("\n\n")
		label++
	}
	prompt.WriteString("Write the single best final answer to the original request.")

	return ports.ChatRequest{
		System:      system,
		Messages:    []ports.Message{{Role: ports.RoleUser, Content: prompt.String()}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func memberLabel(i int, blind bool) string {
	if blind {
		return "Response " + string(rune('A'+i))
	}
	return fmt.Sprintf("Response %d", i+1)
}

// fallbackSynthesis joins the usable member texts when the leader yields
// nothing even after the retry.
func fallbackSynthesis(blind bool, outcomes []memberOutcome) string {
	var parts []string
	label := 0
	for _, outcome := range outcomes {
		text := strings.TrimSpace(outcome.text)
		if outcome.err != nil || text == "" {
			continue
		}
		parts = append(parts, memberLabel(label, blind)+":\n"+text)
		label++
	}
	return strings.Join(parts, "\n\n")
}

func lastUserContent(messages []ports.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == ports.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func (d *Dispatcher) councilCacheKey(req Request) string {
	extras := make(map[string]string, len(req.Extras)+2)
	for k, v := range req.Extras {
		extras[k] = v
	}
	members := make([]string, len(req.Members))
	for i, member := range req.Members {
		members[i] = member.Name() + "/" + member.Model()
	}
	extras["council_members"] = strings.Join(members, ",")
	if req.Blind {
		extras["blind"] = "1"
	}

	params := map[string]any{}
	if req.Temperature != 0 {
		params["temperature"] = req.Temperature
	}
	if req.MaxTokens != 0 {
		params["max_tokens"] = req.MaxTokens
	}
	return CacheKey(req.Route, req.Leader.Name(), req.Leader.Model(), req.System, req.Messages, params, nil, extras)
}
