// Package ingest defines core types shared across subsystems.
package ingest

import "time"

// SourceType declares how a source's content is published.
type SourceType string

// Source type values stored on each registered source.
const (
	SourceTypeFeed SourceType = "feed"
	SourceTypeWeb  SourceType = "web"
)

// SourceStatus represents the health state of a source.
type SourceStatus string

// Source status values, ordered from best to worst.
const (
	StatusHealthy  SourceStatus = "healthy"
	StatusDegraded SourceStatus = "degraded"
	StatusFailing  SourceStatus = "failing"
	StatusDisabled SourceStatus = "disabled"
)

// Source is a registered origin of content tracked for recurring ingestion.
// Health fields are mutated only by the health tracker; ActiveSkillID only
// by the skill lifecycle. Sources are never deleted by this module;
// disabling is a status transition.
type Source struct {
	ID                   string        `json:"id"`
	URL                  string        `json:"url"`
	Type                 SourceType    `json:"type"`
	FeedURL              string        `json:"feed_url,omitempty"`
	Status               SourceStatus  `json:"status"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	BackoffUntil         time.Time     `json:"backoff_until"`
	LastAttempt          time.Time     `json:"last_attempt"`
	LastError            string        `json:"last_error,omitempty"`
	FetchInterval        time.Duration `json:"fetch_interval"`
	ActiveSkillID        string        `json:"active_skill_id,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Active reports whether the source is eligible for automatic scheduling.
func (s Source) Active() bool {
	return s.Status != StatusDisabled
}

// Rule is one declarative extraction instruction: apply Selector to the
// page, reduce the match via Transform, and store the result under Field.
type Rule struct {
	Field     string `json:"field"`
	Selector  string `json:"selector"`
	Transform string `json:"transform,omitempty"`
}

// SkillValidation records the outcome of the pre-publish validation gate.
type SkillValidation struct {
	SamplesPassed int     `json:"samples_passed"`
	SamplesTotal  int     `json:"samples_total"`
	FieldCoverage float64 `json:"field_coverage"`
}

// Skill is a versioned, validated extraction ruleset for one web source.
// Immutable once published; a new version supersedes rather than mutates.
type Skill struct {
	ID              string          `json:"id"`
	SourceID        string          `json:"source_id"`
	Version         int             `json:"version"`
	Rules           []Rule          `json:"rules"`
	GeneratedAt     time.Time       `json:"generated_at"`
	GeneratingModel string          `json:"generating_model"`
	Validation      SkillValidation `json:"validation"`
}

// Strategy is the ingestion method chosen for a source on a given job.
type Strategy string

// Strategy values; the set is closed and dispatch over it is exhaustive.
const (
	StrategyFeed  Strategy = "feed"
	StrategySkill Strategy = "skill"
)

// JobOutcome classifies how a job ended.
type JobOutcome string

// Job outcome values reported to the health tracker.
const (
	OutcomeSuccess          JobOutcome = "success"
	OutcomeTransientFailure JobOutcome = "transient_failure"
	OutcomePermanentFailure JobOutcome = "permanent_failure"
)

// Job records one scheduled ingestion attempt for one source. Jobs are
// ephemeral; they exist between dispatch and the health tracker hand-off.
type Job struct {
	SourceID           string        `json:"source_id"`
	Strategy           Strategy      `json:"strategy"`
	StartedAt          time.Time     `json:"started_at"`
	Outcome            JobOutcome    `json:"outcome"`
	ErrorKind          ErrorKind     `json:"error_kind,omitempty"`
	Duration           time.Duration `json:"duration"`
	ProducedArticleIDs []string      `json:"produced_article_ids,omitempty"`
}

// Article is a normalized extraction result handed to the downstream
// pipeline. CanonicalURL is unique per source at the ingestion boundary.
type Article struct {
	ID                   string     `json:"id"`
	SourceID             string     `json:"source_id"`
	SourceURL            string     `json:"source_url"`
	CanonicalURL         string     `json:"canonical_url"`
	Title                string     `json:"title"`
	RawHTMLHash          string     `json:"raw_html_hash"`
	CleanContent         string     `json:"clean_content"`
	PublishedAt          *time.Time `json:"published_at,omitempty"`
	ExtractionConfidence float64    `json:"extraction_confidence"`
}

// Page is the result of fetching (and optionally rendering) one URL.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Rendered   bool
	Duration   time.Duration
}

// StatusReport is the aggregate health view exposed to the API layer.
type StatusReport struct {
	SourceID     string       `json:"source_id"`
	Status       SourceStatus `json:"status"`
	LastAttempt  time.Time    `json:"last_attempt"`
	LastError    string       `json:"last_error,omitempty"`
	BackoffUntil time.Time    `json:"backoff_until"`
}
