// Package coordinator is the façade that drives one plan through the sheet
// pipeline: it applies stage-completion events idempotently, asks the phase
// policy whether a stage is satisfied, advances the plan's phase, emits
// fan-out intents, and arms the pipeline deadline.
//
// Event-local problems (duplicates, events for sheets excluded by
// validation, events for phases not yet reached, anything on a terminal
// plan) are absorbed: the report call still succeeds, because silently
// accepting a stale or invalid signal is the correct behaviour for an
// idempotent at-least-once consumer. Problems with the plan itself (unknown
// plan id) propagate as permanent errors so the caller can dead-letter.
package coordinator
