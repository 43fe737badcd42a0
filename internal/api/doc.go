// Package api defines the JSON payload types shared by the daemon's HTTP
// server and the CLI client, plus conversions from internal plan records
// into those transport shapes.
package api
