package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/newsloom/ingestd/internal/ingest"
)

// SkillStore persists skills in Postgres. Rulesets are stored as JSONB;
// rows are insert-only since published skills are immutable.
type SkillStore struct {
	pool  dbPool
	table string
}

// NewSkillStore creates a pooled SkillStore from config.
func NewSkillStore(ctx context.Context, cfg Config) (*SkillStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSkillStoreWithPool(pool, cfg.SkillsTable)
}

// NewSkillStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewSkillStoreWithPool(pool dbPool, table string) (*SkillStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "skills"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SkillStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *SkillStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load fetches a skill by ID.
func (s *SkillStore) Load(ctx context.Context, id string) (ingest.Skill, error) {
	query := fmt.Sprintf(`SELECT id, source_id, version, rules, generated_at,
generating_model, samples_passed, samples_total, field_coverage
FROM %s WHERE id = $1`, s.table)

	var (
		skill     ingest.Skill
		rulesJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&skill.ID,
		&skill.SourceID,
		&skill.Version,
		&rulesJSON,
		&skill.GeneratedAt,
		&skill.GeneratingModel,
		&skill.Validation.SamplesPassed,
		&skill.Validation.SamplesTotal,
		&skill.Validation.FieldCoverage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.Skill{}, ingest.ErrNotFound
	}
	if err != nil {
		return ingest.Skill{}, fmt.Errorf("load skill %s: %w", id, err)
	}
	if err := json.Unmarshal(rulesJSON, &skill.Rules); err != nil {
		return ingest.Skill{}, fmt.Errorf("decode skill rules: %w", err)
	}
	return skill, nil
}

// Save inserts a new skill row.
func (s *SkillStore) Save(ctx context.Context, skill ingest.Skill) error {
	rulesJSON, err := json.Marshal(skill.Rules)
	if err != nil {
		return fmt.Errorf("encode skill rules: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, source_id, version, rules,
generated_at, generating_model, samples_passed, samples_total, field_coverage)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.table)

	_, err = s.pool.Exec(ctx, query,
		skill.ID,
		skill.SourceID,
		skill.Version,
		rulesJSON,
		skill.GeneratedAt,
		skill.GeneratingModel,
		skill.Validation.SamplesPassed,
		skill.Validation.SamplesTotal,
		skill.Validation.FieldCoverage,
	)
	if err != nil {
		return fmt.Errorf("save skill %s: %w", skill.ID, err)
	}
	return nil
}

// LatestVersion returns the highest published version for a source, 0 when
// the source has none.
func (s *SkillStore) LatestVersion(ctx context.Context, sourceID string) (int, error) {
	query := fmt.Sprintf(
		"SELECT COALESCE(MAX(version), 0) FROM %s WHERE source_id = $1", s.table)
	var version int
	if err := s.pool.QueryRow(ctx, query, sourceID).Scan(&version); err != nil {
		return 0, fmt.Errorf("latest skill version for %s: %w", sourceID, err)
	}
	return version, nil
}
