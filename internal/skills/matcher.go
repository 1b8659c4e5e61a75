package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/domain"
)

// Match returns the agent's skills whose triggers appear in text, in stored
// order. Matching is case-insensitive substring containment; skills without
// triggers never auto-match.
func (s *Service) Match(ctx context.Context, userID, agentID, text string) ([]Skill, error) {
	skills, err := s.load(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	lowered := strings.ToLower(text)

	var matched []Skill
	for _, skill := range skills {
		if matchesAny(lowered, skill.Triggers) {
			matched = append(matched, skill)
		}
	}
	return matched, nil
}

func matchesAny(loweredText string, triggers []string) bool {
	for _, trigger := range triggers {
		if trigger != "" && strings.Contains(loweredText, trigger) {
			return true
		}
	}
	return false
}

// Enricher adapts the service into the engine's context hook for one agent.
// Matched skill instructions become labeled system-context blocks; a store
// failure logs and contributes nothing rather than failing the turn.
func (s *Service) Enricher(userID, agentID string) domain.ContextEnricher {
	return func(ctx context.Context, stim domain.Stimulus) []string {
		matched, err := s.Match(ctx, userID, agentID, stim.Text)
		if err != nil {
			s.logger.Warn("skills: match failed for agent %s: %v", agentID, err)
			return nil
		}
		blocks := make([]string, 0, len(matched))
		for _, skill := range matched {
			blocks = append(blocks, fmt.Sprintf("Skill %q:\n%s", skill.Name, skill.Instructions))
		}
		return blocks
	}
}
