package plan

// NextPhase is the pure phase policy: given the current phase and the size of
// the completion set for that phase's stage against its threshold, it returns
// the phase to advance to, or false when the stage is not yet satisfied.
//
// Equality rather than >= is intentional: sets are bounded by their thresholds
// before they are ever compared, and a zero threshold (0 == 0) advances
// immediately, which is what lets empty plans and empty valid-sheet sets
// cascade straight through to completion.
func NextPhase(current Phase, size, threshold int) (Phase, bool) {
	if size != threshold {
		return "", false
	}
	switch current {
	case PhaseImageGeneration:
		return PhaseMetadataExtraction, true
	case PhaseMetadataExtraction:
		return PhaseCalloutDetection, true
	case PhaseCalloutDetection:
		return PhaseTileGeneration, true
	case PhaseTileGeneration:
		return PhaseComplete, true
	default:
		return "", false
	}
}

// Transition records one phase advance along with the sheet ids the external
// fan-out must dispatch to the next stage.
type Transition struct {
	From            Phase
	To              Phase
	TriggerSheetIDs []string
}

// Evaluate advances the state's phase as far as the policy allows and returns
// the transitions taken, in order. A single reported completion can trigger a
// cascade: finishing metadata extraction with zero valid sheets satisfies the
// callout and tile stages at threshold zero in the same evaluation.
func Evaluate(state *State) []Transition {
	var transitions []Transition
	for !state.Phase.IsTerminal() {
		stage := Stage(state.Phase)
		set := state.SetFor(stage)
		if set == nil {
			break
		}
		next, ok := NextPhase(state.Phase, set.Size(), state.ThresholdFor(stage))
		if !ok {
			break
		}
		transitions = append(transitions, Transition{
			From:            state.Phase,
			To:              next,
			TriggerSheetIDs: triggerSheets(state, next),
		})
		state.Phase = next
	}
	return transitions
}

// triggerSheets selects the sheet ids the fan-out dispatches on entering a
// phase: every rasterized sheet for metadata extraction, the valid subset for
// callout and tile work, nothing on completion.
func triggerSheets(state *State, entering Phase) []string {
	switch entering {
	case PhaseMetadataExtraction:
		return state.ImagesGenerated.Members()
	case PhaseCalloutDetection, PhaseTileGeneration:
		return state.ValidSheets.Members()
	default:
		return nil
	}
}
