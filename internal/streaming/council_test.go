package streaming

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/llmtest"
)

func councilMessages() []ports.Message {
	return []ports.Message{{Role: ports.RoleUser, Content: "compare the two options"}}
}

func TestCouncilSynthesizesThroughLeader(t *testing.T) {
	d := newTestDispatcher(t)
	memberA := llmtest.NewProvider(llmtest.TextRound("option one ", "is cheaper")).WithIdentity("prov-a", "model-a")
	memberB := llmtest.NewProvider(llmtest.TextRound("option two ", "is faster")).WithIdentity("prov-b", "model-b")
	leader := llmtest.NewProvider(llmtest.TextRound("pick one for cost, two for speed")).WithIdentity("leader", "model-l")
	rec := &frameRecorder{}

	err := d.ServeStream(context.Background(), Request{
		Route:     RouteCouncil,
		RequestID: "council1",
		Members:   []ports.Provider{memberA, memberB},
		Leader:    leader,
		Messages:  councilMessages(),
	}, rec.sink())
	require.NoError(t, err)

	require.Equal(t, FrameMeta, rec.all()[0].Type)
	require.Equal(t, FrameDone, rec.last().Type)
	require.Equal(t, "option one is cheaper", rec.memberText(0))
	require.Equal(t, "option two is faster", rec.memberText(1))
	require.Equal(t, "pick one for cost, two for speed", rec.text())

	phases := []string{}
	for _, frame := range rec.all() {
		if frame.Type == FramePhase {
			phases = append(phases, frame.Phase)
		}
	}
	require.Equal(t, []string{PhaseMembers, PhaseLeader}, phases)

	// The leader sees anonymized numbered responses, never member names.
	leaderPrompt := leader.Requests()[0].Messages[0].Content
	assert.Contains(t, leaderPrompt, "compare the two options")
	assert.Contains(t, leaderPrompt, "Response 1")
	assert.Contains(t, leaderPrompt, "Response 2")
	assert.Contains(t, leaderPrompt, "option one is cheaper")
	assert.NotContains(t, leaderPrompt, "prov-a")
	assert.NotContains(t, leaderPrompt, "model-a")
}

func TestCouncilMemberFailureIsNotFatal(t *testing.T) {
	d := newTestDispatcher(t)
	failing := llmtest.NewProvider(llmtest.ErrorRound(fmt.Errorf("member down")))
	healthy := llmtest.NewProvider(llmtest.TextRound("the healthy answer"))
	leader := llmtest.NewProvider(llmtest.TextRound("final"))
	rec := &frameRecorder{}

	err := d.ServeStream(context.Background(), Request{
		Route:    RouteCouncil,
		Members:  []ports.Provider{failing, healthy},
		Leader:   leader,
		Messages: councilMessages(),
	}, rec.sink())
	require.NoError(t, err)
	require.Equal(t, FrameDone, rec.last().Type)
	require.True(t, rec.hasType(FrameMemberError))
	require.True(t, rec.hasType(FrameMemberComplete))

	// Only the surviving response reaches the leader, renumbered from 1.
	leaderPrompt := leader.Requests()[0].Messages[0].Content
	require.Contains(t, leaderPrompt, "Response 1")
	require.NotContains(t, leaderPrompt, "Response 2")
	require.Contains(t, leaderPrompt, "the healthy answer")
}

func TestCouncilAllMembersFailed(t *testing.T) {
	d := newTestDispatcher(t)
	leader := llmtest.NewProvider(llmtest.TextRound("never reached"))
	rec := &frameRecorder{}

	err := d.ServeStream(context.Background(), Request{
		Route: RouteCouncil,
		Members: []ports.Provider{
			llmtest.NewProvider(llmtest.ErrorRound(fmt.Errorf("down"))),
			llmtest.NewProvider(llmtest.ErrorRound(fmt.Errorf("also down"))),
		},
		Leader:   leader,
		Messages: councilMessages(),
	}, rec.sink())
	require.Error(t, err)
	require.Equal(t, FrameError, rec.last().Type)
	require.Empty(t, leader.Requests(), "leader must not run without member responses")
}

func TestCouncilLeaderZeroTokenRetry(t *testing.T) {
	d := newTestDispatcher(t)
	member := llmtest.NewProvider(llmtest.TextRound("draft"))
	leader := llmtest.NewProvider(
		llmtest.Round{}, // settles without emitting a token
		llmtest.TextRound("synthesized on retry"),
	)
	rec := &frameRecorder{}

	err := d.ServeStream(context.Background(), Request{
		Route:    RouteCouncil,
		Members:  []ports.Provider{member},
		Leader:   leader,
		Messages: councilMessages(),
	}, rec.sink())
	require.NoError(t, err)

	phases := []string{}
	for _, frame := range rec.all() {
		if frame.Type == FramePhase {
			phases = append(phases, frame.Phase)
		}
	}
	require.Equal(t, []string{PhaseMembers, PhaseLeader, PhaseLeaderRetry}, phases)
	require.Equal(t, "synthesized on retry", rec.text())
	require.Equal(t, FrameDone, rec.last().Type)
	require.Len(t, leader.Requests(), 2)
}

func TestCouncilLeaderPartialFallback(t *testing.T) {
	d := newTestDispatcher(t)
	member := llmtest.NewProvider(llmtest.TextRound("members own words"))
	leader := llmtest.NewProvider(llmtest.Round{}) // empty, repeats on retry
	rec := &frameRecorder{}

	err := d.ServeStream(context.Background(), Request{
		Route:    RouteCouncil,
		Members:  []ports.Provider{member},
		Leader:   leader,
		Messages: councilMessages(),
	}, rec.sink())
	require.NoError(t, err)

	phases := []string{}
	for _, frame := range rec.all() {
		if frame.Type == FramePhase {
			phases = append(phases, frame.Phase)
		}
	}
	require.Equal(t, []string{PhaseMembers, PhaseLeader, PhaseLeaderRetry, PhaseLeaderPartial}, phases)
	require.Contains(t, rec.text(), "members own words")
	require.Equal(t, FrameDone, rec.last().Type)
}

func TestCouncilBlindLabelsUseLetters(t *testing.T) {
	d := newTestDispatcher(t)
	leader := llmtest.NewProvider(llmtest.TextRound("final"))

	err := d.ServeStream(context.Background(), Request{
		Route: RouteCouncil,
		Blind: true,
		Members: []ports.Provider{
			llmtest.NewProvider(llmtest.TextRound("first draft")),
			llmtest.NewProvider(llmtest.TextRound("second draft")),
		},
		Leader:   leader,
		Messages: councilMessages(),
	}, (&frameRecorder{}).sink())
	require.NoError(t, err)

	leaderPrompt := leader.Requests()[0].Messages[0].Content
	require.Contains(t, leaderPrompt, "Response A")
	require.Contains(t, leaderPrompt, "Response B")
	require.NotContains(t, leaderPrompt, "Response 1")
}

func TestCouncilCancelAbortsMembers(t *testing.T) {
	d := newTestDispatcher(t)
	slow := llmtest.NewProvider(llmtest.Round{
		Tokens:     manyTokens(200),
		TokenDelay: 5 * time.Millisecond,
	})
	leader := llmtest.NewProvider(llmtest.TextRound("never"))
	rec := &frameRecorder{}

	done := make(chan error, 1)
	go func() {
		done <- d.ServeStream(context.Background(), Request{
			Route:     RouteCouncil,
			RequestID: "council_cancel",
			Members:   []ports.Provider{slow},
			Leader:    leader,
			Messages:  councilMessages(),
		}, rec.sink())
	}()

	rec.waitForToken(t)
	require.True(t, d.Cancel("council_cancel"))
	require.NoError(t, <-done)

	require.Equal(t, FrameCancelled, rec.last().Type)
	require.Empty(t, leader.Requests())
}

func TestCouncilCachesLeaderAnswer(t *testing.T) {
	d := newTestDispatcher(t)
	member := llmtest.NewProvider(llmtest.TextRound("draft"))
	leader := llmtest.NewProvider(llmtest.TextRound("the cached synthesis"))
	req := Request{
		Route:    RouteCouncil,
		Members:  []ports.Provider{member},
		Leader:   leader,
		Messages: councilMessages(),
	}

	require.NoError(t, d.ServeStream(context.Background(), req, (&frameRecorder{}).sink()))
	require.Len(t, leader.Requests(), 1)

	second := &frameRecorder{}
	require.NoError(t, d.ServeStream(context.Background(), req, second.sink()))
	require.Len(t, leader.Requests(), 1, "cache hit must not rerun the council")
	require.Len(t, member.Requests(), 1)
	require.Equal(t, "the cached synthesis", second.text())
}

func TestCouncilMemberTimeout(t *testing.T) {
	d, err := NewDispatcher(Config{
		CacheSize:     16,
		CacheTTL:      time.Minute,
		MemberTimeout: 30 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)

	stalled := llmtest.NewProvider(llmtest.Round{
		Tokens:     manyTokens(500),
		TokenDelay: 10 * time.Millisecond,
	})
	healthy := llmtest.NewProvider(llmtest.TextRound("quick answer"))
	leader := llmtest.NewProvider(llmtest.TextRound("final"))
	rec := &frameRecorder{}

	err = d.ServeStream(context.Background(), Request{
		Route:    RouteCouncil,
		Members:  []ports.Provider{stalled, healthy},
		Leader:   leader,
		Messages: councilMessages(),
	}, rec.sink())
	require.NoError(t, err)

	require.True(t, rec.hasType(FrameMemberError), "timed-out member reports an error frame")
	require.Equal(t, FrameDone, rec.last().Type)
	require.Contains(t, leader.Requests()[0].Messages[0].Content, "quick answer")
}
