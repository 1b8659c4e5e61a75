// Package skills stores per-agent skill records and injects matched skill
// instructions into turn context. A skill is a named instruction block with
// trigger keywords; when a trigger appears in the user's message the
// instructions ride along in the system context for that turn.
package skills

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// Skill is one stored skill record, scoped to (user, agent).
type Skill struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Triggers     []string  `json:"triggers,omitempty"`
	Instructions string    `json:"instructions"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Service persists skills in the keyed store, one collection per agent.
type Service struct {
	store  store.Store
	logger logging.Logger
	now    func() time.Time
}

// NewService builds the skill service.
func NewService(st store.Store, logger logging.Logger) *Service {
	return &Service{store: st, logger: logging.OrNop(logger), now: time.Now}
}

// WithClock overrides the timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// List returns the agent's skills sorted by name.
func (s *Service) List(ctx context.Context, userID, agentID string) ([]Skill, error) {
	skills, err := s.load(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

// Get looks a skill up by name, tolerating case and spacing differences.
func (s *Service) Get(ctx context.Context, userID, agentID, name string) (Skill, error) {
	skills, err := s.load(ctx, userID, agentID)
	if err != nil {
		return Skill{}, err
	}
	key := NormalizeName(name)
	for _, skill := range skills {
		if NormalizeName(skill.Name) == key {
			return skill, nil
		}
	}
	return Skill{}, errors.NewNotFound("skill", name)
}

// Save upserts a skill by normalized name. New skills get generated ids;
// existing ones keep their id and CreatedAt.
func (s *Service) Save(ctx context.Context, userID, agentID string, skill Skill) (Skill, error) {
	skill.Name = strings.TrimSpace(skill.Name)
	skill.Instructions = strings.TrimSpace(skill.Instructions)
	if skill.Name == "" {
		return Skill{}, errors.NewValidation("name", "skill name is required")
	}
	if skill.Instructions == "" {
		return Skill{}, errors.NewValidation("instructions", "skill instructions are required")
	}
	skill.Triggers = normalizeTriggers(skill.Triggers)

	skills, err := s.load(ctx, userID, agentID)
	if err != nil {
		return Skill{}, err
	}

	now := s.now().UTC()
	key := NormalizeName(skill.Name)
	replaced := false
	for i, existing := range skills {
		if NormalizeName(existing.Name) != key {
			continue
		}
		skill.ID = existing.ID
		skill.CreatedAt = existing.CreatedAt
		skill.UpdatedAt = now
		skills[i] = skill
		replaced = true
		break
	}
	if !replaced {
		skill.ID = id.NewEntryID("skill")
		skill.CreatedAt = now
		skill.UpdatedAt = now
		skills = append(skills, skill)
	}

	if err := s.save(ctx, userID, agentID, skills); err != nil {
		return Skill{}, err
	}
	return skill, nil
}

// Delete removes a skill by name.
func (s *Service) Delete(ctx context.Context, userID, agentID, name string) error {
	skills, err := s.load(ctx, userID, agentID)
	if err != nil {
		return err
	}
	key := NormalizeName(name)
	for i, skill := range skills {
		if NormalizeName(skill.Name) == key {
			skills = append(skills[:i], skills[i+1:]...)
			return s.save(ctx, userID, agentID, skills)
		}
	}
	return errors.NewNotFound("skill", name)
}

func (s *Service) load(ctx context.Context, userID, agentID string) ([]Skill, error) {
	var skills []Skill
	err := store.GetJSON(ctx, s.store, store.AgentCollectionKey(userID, agentID, store.CollectionSkills), &skills)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	return skills, nil
}

func (s *Service) save(ctx context.Context, userID, agentID string, skills []Skill) error {
	return store.PutJSON(ctx, s.store, store.AgentCollectionKey(userID, agentID, store.CollectionSkills), skills)
}

func normalizeTriggers(triggers []string) []string {
	out := make([]string, 0, len(triggers))
	seen := make(map[string]bool, len(triggers))
	for _, trigger := range triggers {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger == "" || seen[trigger] {
			continue
		}
		seen[trigger] = true
		out = append(out, trigger)
	}
	return out
}

// NormalizeName normalizes a skill name for lookups.
func NormalizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
