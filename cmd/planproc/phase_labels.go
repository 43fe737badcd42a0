package main

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// phaseLabel renders a wire-format phase name for humans, e.g.
// "metadata_extraction" becomes "Metadata Extraction".
func phaseLabel(phase string) string {
	phase = strings.TrimSpace(phase)
	if phase == "" {
		return "Unknown"
	}
	return titleCaser.String(strings.ReplaceAll(phase, "_", " "))
}
