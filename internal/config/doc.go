// Package config loads and validates planproc's TOML configuration.
//
// Configuration lives at ~/.config/planproc/config.toml by default; a missing
// file yields the built-in defaults so the daemon starts without setup. The
// embedded sample config documents every knob.
package config
