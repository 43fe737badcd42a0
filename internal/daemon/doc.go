// Package daemon wires the plan coordinator, plan store, deadline
// supervisor, notifier, and HTTP API into a single-instance background
// service. A lock file prevents two daemons from sharing a database, and
// shutdown drains the sweeper before releasing it.
package daemon
