// Package events defines the inbound and outbound message surface of the
// orchestrator.
//
// Inbound: the Envelope wire type for stage-completion events and admin
// commands, with kind-specific validation, plus a Handler that routes decoded
// envelopes onto the coordinator. Transports (queue consumers, the HTTP API)
// stay thin adapters over this package.
//
// Outbound: PhaseAdvance and Failure intents with the Dispatcher interface.
// The coordinator produces intents; adapters outside the core turn them into
// queue sends, notifications, or metrics. This keeps the core decoupled from
// transport technology and unit-testable without a real queue.
package events
