// Package planstore persists plan state in SQLite and provides the per-plan
// serialization guarantee the coordinator builds on.
//
// One row per plan holds the phase, the four completion sets, the frozen
// valid-sheet set, failure info, and the pipeline deadline. Mutate runs
// read-modify-write cycles under a per-plan lock so size-comparison-based
// phase transitions can never race; different plans proceed fully in
// parallel.
//
// The database is transient in-flight state rather than a long-term archive.
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package planstore
