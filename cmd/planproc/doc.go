// Command planproc is the CLI for inspecting and managing the plan
// processing daemon over its HTTP API.
package main
