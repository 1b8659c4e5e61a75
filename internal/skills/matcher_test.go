package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
)

func seedSkills(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Save(ctx, "u1", "a1", Skill{
		Name:         "trip-planner",
		Triggers:     []string{"trip", "flight"},
		Instructions: "Plan door to door.",
	})
	require.NoError(t, err)
	_, err = svc.Save(ctx, "u1", "a1", Skill{
		Name:         "grocery-budget",
		Triggers:     []string{"groceries"},
		Instructions: "Track against the weekly budget.",
	})
	require.NoError(t, err)
	_, err = svc.Save(ctx, "u1", "a1", Skill{
		Name:         "untriggered",
		Instructions: "Only on demand.",
	})
	require.NoError(t, err)
}

func TestMatchByTriggerKeyword(t *testing.T) {
	svc, _ := testService(t)
	seedSkills(t, svc)

	matched, err := svc.Match(context.Background(), "u1", "a1", "Book me a FLIGHT to Lisbon")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "trip-planner", matched[0].Name)
}

func TestMatchMultipleSkills(t *testing.T) {
	svc, _ := testService(t)
	seedSkills(t, svc)

	matched, err := svc.Match(context.Background(), "u1", "a1", "plan the trip and order groceries")
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, "trip-planner", matched[0].Name)
	assert.Equal(t, "grocery-budget", matched[1].Name)
}

func TestMatchSkipsUntriggeredSkills(t *testing.T) {
	svc, _ := testService(t)
	seedSkills(t, svc)

	matched, err := svc.Match(context.Background(), "u1", "a1", "untriggered on demand only")
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestEnricherRendersMatchedInstructions(t *testing.T) {
	svc, _ := testService(t)
	seedSkills(t, svc)

	enrich := svc.Enricher("u1", "a1")
	blocks := enrich(context.Background(), domain.Stimulus{Kind: domain.StimulusUser, Text: "plan my trip"})
	require.Len(t, blocks, 1)
	assert.Equal(t, "Skill \"trip-planner\":\nPlan door to door.", blocks[0])
}

func TestEnricherContributesNothingOnStoreFailure(t *testing.T) {
	svc, st := testService(t)
	key := store.AgentCollectionKey("u1", "a1", store.CollectionSkills)
	require.NoError(t, st.Put(context.Background(), key, []byte("{not json")))

	enrich := svc.Enricher("u1", "a1")
	blocks := enrich(context.Background(), domain.Stimulus{Text: "plan my trip"})
	assert.Empty(t, blocks)
}
