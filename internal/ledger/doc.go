// Package ledger keeps a per-output-directory history of pipeline runs in
// SQLite (<output>/shotdeck.db).
//
// Each finished run writes one row to runs and one row per shot to run_items.
// The ledger is append-only; the JSON document remains the primary artifact.
// When the schema changes, bump schemaVersion and edit schema.sql.
package ledger
