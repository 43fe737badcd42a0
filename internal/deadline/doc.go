// Package deadline enforces wall-clock deadlines on active plans.
//
// Every plan gets a single deadline when it is initialized. If the plan
// has not reached a terminal phase by then, the supervisor hands the plan
// id to the installed timeout handler, which marks the plan failed with
// the timeout reason. Timers live in memory; the authoritative deadline
// is the deadline_at column in the plan store, and Resync reconciles the
// two after restarts or handler errors.
package deadline
