// Package main hosts the ingestion service entrypoint.
//
// Architecture overview:
//   - Scheduler: internal/scheduler wakes on a fixed tick, asks the SourceStore
//     for due sources (active, past backoff, past their fetch interval), and
//     dispatches each to the job runner under a bounded concurrency pool with
//     single-flight per source. Outcomes are funneled to the health tracker.
//   - Dispatch: internal/dispatch picks the strategy per source. Feed sources
//     get their feed fetched and parsed via gofeed; web sources get their
//     active extraction ruleset applied by the extraction agent, generating a
//     new ruleset first when none exists or drift has flagged the current one.
//   - Skill generation: internal/skill samples pages from the source, prompts
//     the language model for CSS selector rules, and publishes a new ruleset
//     version only after the validation gate passes on the sampled pages. A
//     bounded corrective turn handles malformed model output.
//   - Extraction: internal/extract applies published rules with goquery,
//     validates required fields, tracks per-ruleset drift over a rolling
//     window, and falls back to a generic content heuristic at reduced
//     confidence when no ruleset is usable.
//   - Fetch pipeline: internal/fetch performs plain HTTP fetches via Colly
//     with per-domain rate limiting, and promotes to a headless Chromedp
//     render when the detector finds client-side rendering signals.
//   - Health: internal/health runs the per-source state machine
//     (healthy/degraded/failing/disabled) with exponential backoff, a
//     rate-limit floor, and immediate disable on permanent failures.
//   - Persistence & fanout: sources and rulesets live in Postgres (pgx) or
//     in-memory stores; accepted articles are deduped by canonical URL and
//     content hash, then published to Pub/Sub when a topic is configured.
//     Sample-page snapshots for generation audits land in GCS or memory.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via the
//     /metrics handler on the status server.
//
// Operational notes:
//   - Concurrency model: bounded job pool with single-flight per source;
//     headless renders and LLM calls have their own semaphores. Shutdown
//     drains in-flight jobs for the configured grace period before
//     cooperative cancellation.
//   - Rate limiting/backoff: per-domain token buckets on the HTTP fetcher;
//     per-source exponential backoff with jitter owned by the health tracker;
//     requests-per-minute limiting on the LLM client.
//   - Observability: zap logs carry source IDs and strategies at key
//     transitions; Prometheus counters/histograms track jobs, fetches,
//     renders, generations, articles, and health transitions.
//
// Quick checklist:
//   - Configure env vars with the INGESTD_ prefix: INGESTD_SERVER_PORT,
//     INGESTD_SCHEDULER_MAX_CONCURRENT, INGESTD_LLM_API_KEY, INGESTD_DB_DSN
//     and table names for Postgres persistence, INGESTD_PUBSUB_PROJECT_ID
//     and topic for fanout, INGESTD_BLOB_GCS_BUCKET for snapshots.
//   - Run locally: go run ./cmd/ingestd -config config.yaml (or rely solely
//     on env overrides).
package main
