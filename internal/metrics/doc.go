// Package metrics wires prometheus instrumentation for the orchestrator:
// stage event outcomes, phase transitions, plan failures, the active plan
// gauge, and mutation latency. The daemon mounts Handler() on /metrics.
package metrics
