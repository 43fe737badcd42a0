// Package apiclient provides the HTTP client the CLI uses to reach the
// daemon's API server.
package apiclient
