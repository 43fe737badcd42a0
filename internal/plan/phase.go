package plan

import "strings"

// Phase represents the global lifecycle of one plan. Phases advance strictly
// forward; PhaseFailed is reachable from any non-terminal phase and is itself
// terminal.
type Phase string

const (
	PhaseImageGeneration    Phase = "image_generation"
	PhaseMetadataExtraction Phase = "metadata_extraction"
	PhaseCalloutDetection   Phase = "callout_detection"
	PhaseTileGeneration     Phase = "tile_generation"
	PhaseComplete           Phase = "complete"
	PhaseFailed             Phase = "failed"
)

// TimeoutReason is the failure reason recorded when the pipeline deadline fires.
const TimeoutReason = "timeout"

var phaseOrder = []Phase{
	PhaseImageGeneration,
	PhaseMetadataExtraction,
	PhaseCalloutDetection,
	PhaseTileGeneration,
	PhaseComplete,
	PhaseFailed,
}

var phaseRank = func() map[Phase]int {
	ranks := make(map[Phase]int, len(phaseOrder))
	for i, phase := range phaseOrder {
		ranks[phase] = i
	}
	return ranks
}()

// AllPhases returns the ordered list of known phases.
func AllPhases() []Phase {
	cp := make([]Phase, len(phaseOrder))
	copy(cp, phaseOrder)
	return cp
}

// ParsePhase converts a string into a known Phase.
func ParsePhase(value string) (Phase, bool) {
	normalized := Phase(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := phaseRank[normalized]; !ok || normalized == "" {
		return "", false
	}
	return normalized, true
}

// IsTerminal reports whether the phase accepts no further transitions.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Before reports whether p orders strictly before other. PhaseFailed is
// outside the forward ordering and never compares before anything.
func (p Phase) Before(other Phase) bool {
	if p == PhaseFailed || other == PhaseFailed {
		return false
	}
	return phaseRank[p] < phaseRank[other]
}

// Stage identifies one of the four per-sheet processing stages external
// workers report completions for.
type Stage string

const (
	StageImageGeneration    Stage = "image_generation"
	StageMetadataExtraction Stage = "metadata_extraction"
	StageCalloutDetection   Stage = "callout_detection"
	StageTileGeneration     Stage = "tile_generation"
)

// AllStages returns the four processing stages in pipeline order.
func AllStages() []Stage {
	return []Stage{
		StageImageGeneration,
		StageMetadataExtraction,
		StageCalloutDetection,
		StageTileGeneration,
	}
}

// Phase returns the plan phase during which this stage runs.
func (s Stage) Phase() Phase {
	return Phase(s)
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StageImageGeneration, StageMetadataExtraction, StageCalloutDetection, StageTileGeneration:
		return normalized, true
	default:
		return "", false
	}
}
