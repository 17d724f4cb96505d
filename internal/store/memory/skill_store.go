package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/newsloom/ingestd/internal/ingest"
)

// SkillStore implements ingest.SkillStore in memory. Skills are immutable
// once saved; saving an existing ID is an error.
type SkillStore struct {
	mu     sync.RWMutex
	skills map[string]ingest.Skill
}

// NewSkillStore constructs a SkillStore.
func NewSkillStore() *SkillStore {
	return &SkillStore{skills: make(map[string]ingest.Skill)}
}

// Load fetches a skill by ID.
func (s *SkillStore) Load(_ context.Context, id string) (ingest.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skill, ok := s.skills[id]
	if !ok {
		return ingest.Skill{}, ErrNotFound
	}
	return skill, nil
}

// Save stores a new skill.
func (s *SkillStore) Save(_ context.Context, skill ingest.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.skills[skill.ID]; exists {
		return errors.New("skill already published")
	}
	s.skills[skill.ID] = skill
	return nil
}

// LatestVersion returns the highest-numbered version for a source, 0 when
// none exist.
func (s *SkillStore) LatestVersion(_ context.Context, sourceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := 0
	for _, skill := range s.skills {
		if skill.SourceID == sourceID && skill.Version > latest {
			latest = skill.Version
		}
	}
	return latest, nil
}
