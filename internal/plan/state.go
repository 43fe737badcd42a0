package plan

import "time"

// FailureInfo captures why and when a plan was marked failed.
type FailureInfo struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// State is the durable record for one plan. It is owned exclusively by the
// coordinator for that plan id; the store guarantees no two mutations for the
// same plan ever interleave.
type State struct {
	PlanID         string
	OrganizationID string
	ProjectID      string
	TotalSheets    int
	Phase          Phase

	ImagesGenerated   CompletionSet
	MetadataExtracted CompletionSet
	CalloutsDetected  CompletionSet
	TilesGenerated    CompletionSet

	// ValidSheets is frozen when metadata extraction completes and becomes the
	// completion target for the callout and tile stages.
	ValidSheets CompletionSet

	LastError  *FailureInfo
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeadlineAt *time.Time
}

// NewState builds a fresh plan record in the first phase.
func NewState(planID, organizationID, projectID string, totalSheets int, now time.Time) *State {
	return &State{
		PlanID:            planID,
		OrganizationID:    organizationID,
		ProjectID:         projectID,
		TotalSheets:       totalSheets,
		Phase:             PhaseImageGeneration,
		ImagesGenerated:   NewCompletionSet(),
		MetadataExtracted: NewCompletionSet(),
		CalloutsDetected:  NewCompletionSet(),
		TilesGenerated:    NewCompletionSet(),
		ValidSheets:       NewCompletionSet(),
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}
}

// SetFor returns the completion set tracking the given stage.
func (s *State) SetFor(stage Stage) *CompletionSet {
	switch stage {
	case StageImageGeneration:
		return &s.ImagesGenerated
	case StageMetadataExtraction:
		return &s.MetadataExtracted
	case StageCalloutDetection:
		return &s.CalloutsDetected
	case StageTileGeneration:
		return &s.TilesGenerated
	default:
		return nil
	}
}

// ThresholdFor returns the completion target for the given stage: the total
// sheet count for the first two stages, the frozen valid-sheet count for the
// last two.
func (s *State) ThresholdFor(stage Stage) int {
	switch stage {
	case StageImageGeneration, StageMetadataExtraction:
		return s.TotalSheets
	case StageCalloutDetection, StageTileGeneration:
		return s.ValidSheets.Size()
	default:
		return 0
	}
}

// MarkFailed transitions the plan to the failed phase with the given reason.
// Calling it on a terminal plan is a no-op; the first terminal outcome wins.
func (s *State) MarkFailed(reason string, now time.Time) bool {
	if s.Phase.IsTerminal() {
		return false
	}
	s.Phase = PhaseFailed
	s.LastError = &FailureInfo{Reason: reason, At: now.UTC()}
	return true
}

// Clone returns a deep copy safe to hand to callers as a snapshot.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.ImagesGenerated = s.ImagesGenerated.Clone()
	clone.MetadataExtracted = s.MetadataExtracted.Clone()
	clone.CalloutsDetected = s.CalloutsDetected.Clone()
	clone.TilesGenerated = s.TilesGenerated.Clone()
	clone.ValidSheets = s.ValidSheets.Clone()
	if s.LastError != nil {
		errCopy := *s.LastError
		clone.LastError = &errCopy
	}
	if s.DeadlineAt != nil {
		at := *s.DeadlineAt
		clone.DeadlineAt = &at
	}
	return &clone
}
