// Package ingest holds the domain model of the ingestion core: sources,
// skills, jobs, articles, the error taxonomy, and the interfaces through
// which the core consumes external collaborators (stores, the LLM, the
// headless renderer, the downstream pipeline).
//
// Subsystem packages depend on ingest; ingest depends on nothing but the
// standard library and the metrics client.
package ingest
