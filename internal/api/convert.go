package api

import (
	"planproc/internal/plan"
)

// SummaryFromState converts a plan record into its API summary form.
func SummaryFromState(state *plan.State) PlanSummary {
	if state == nil {
		return PlanSummary{}
	}
	summary := PlanSummary{
		PlanID:         state.PlanID,
		OrganizationID: state.OrganizationID,
		ProjectID:      state.ProjectID,
		Phase:          string(state.Phase),
		TotalSheets:    state.TotalSheets,
		ValidSheets:    state.ValidSheets.Size(),
		UpdatedAt:      state.UpdatedAt.Format(dateTimeFormat),
	}
	if state.LastError != nil {
		summary.ErrorReason = state.LastError.Reason
	}
	return summary
}

// DetailFromState converts a plan record into its full API form.
func DetailFromState(state *plan.State) PlanDetail {
	if state == nil {
		return PlanDetail{}
	}
	detail := PlanDetail{
		PlanSummary: SummaryFromState(state),
		Stages: map[string]StageProgress{
			string(plan.StageImageGeneration): {
				Completed: state.ImagesGenerated.Size(),
				Threshold: state.ThresholdFor(plan.StageImageGeneration),
			},
			string(plan.StageMetadataExtraction): {
				Completed: state.MetadataExtracted.Size(),
				Threshold: state.ThresholdFor(plan.StageMetadataExtraction),
			},
			string(plan.StageCalloutDetection): {
				Completed: state.CalloutsDetected.Size(),
				Threshold: state.ThresholdFor(plan.StageCalloutDetection),
			},
			string(plan.StageTileGeneration): {
				Completed: state.TilesGenerated.Size(),
				Threshold: state.ThresholdFor(plan.StageTileGeneration),
			},
		},
		ValidSheetIDs: state.ValidSheets.Members(),
		CreatedAt:     state.CreatedAt.Format(dateTimeFormat),
	}
	if state.LastError != nil {
		detail.LastError = &FailureDetail{
			Reason: state.LastError.Reason,
			At:     state.LastError.At.Format(dateTimeFormat),
		}
	}
	if state.DeadlineAt != nil {
		detail.DeadlineAt = state.DeadlineAt.Format(dateTimeFormat)
	}
	return detail
}
