package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// phaseStatusKind picks the severity for one phase bucket in the status
// listing: failed plans warrant a warning, finished plans read as healthy.
func phaseStatusKind(phase string, count int) statusKind {
	if count == 0 {
		return statusInfo
	}
	switch phase {
	case "failed":
		return statusWarn
	case "complete":
		return statusOK
	default:
		return statusInfo
	}
}

func (k statusKind) label() string {
	switch k {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (k statusKind) color() string {
	switch k {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ""
	}
}

// renderStatusLine formats one labelled entry with a dot leader and a
// severity tag. Only the tag is colorized so copied output stays readable.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	width := 22 - len(label)
	if width < 2 {
		width = 2
	}
	tag := "[" + kind.label() + "]"
	if colorize {
		if color := kind.color(); color != "" {
			tag = color + tag + ansiReset
		}
	}
	line := fmt.Sprintf("  %s %s %s", label, strings.Repeat(".", width), tag)
	if message != "" {
		line += " " + message
	}
	return line
}

func renderSectionHeader(title string, colorize bool) string {
	header := title + ":"
	if colorize {
		header = ansiBold + header + ansiReset
	}
	return header
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	return ok && (isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd()))
}
