// Package store persists extracted action items.
//
// The store is the caller-side half of the extraction pipeline: the
// orchestrator never touches it directly, it only hands completed
// DocumentResults to a Sink, and *Store is one. Saving a result replaces
// whatever was previously stored for the same source_ref, so resubmitting a
// failed document does not duplicate items.
//
// Two drivers are supported through sqlx: "sqlite" (modernc.org/sqlite, no
// cgo) and "postgres" (lib/pq). Queries are written with ? placeholders and
// rebound for the active driver.
package store
