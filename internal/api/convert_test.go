package api_test

import (
	"testing"
	"time"

	"planproc/internal/api"
	"planproc/internal/plan"
)

func TestDetailFromState(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	state := plan.NewState("p1", "org-1", "proj-1", 3, now)
	state.ImagesGenerated.Add("s0")
	state.ImagesGenerated.Add("s1")
	state.ImagesGenerated.Add("s2")
	state.MetadataExtracted.Add("s0")
	state.ValidSheets.Add("s0")
	state.Phase = plan.PhaseMetadataExtraction
	deadline := now.Add(time.Hour)
	state.DeadlineAt = &deadline

	detail := api.DetailFromState(state)
	if detail.PlanID != "p1" || detail.Phase != "metadata_extraction" {
		t.Fatalf("unexpected summary: %+v", detail.PlanSummary)
	}
	if got := detail.Stages["image_generation"]; got.Completed != 3 || got.Threshold != 3 {
		t.Fatalf("image_generation progress = %+v", got)
	}
	if got := detail.Stages["metadata_extraction"]; got.Completed != 1 || got.Threshold != 3 {
		t.Fatalf("metadata_extraction progress = %+v", got)
	}
	if got := detail.Stages["callout_detection"]; got.Threshold != 1 {
		t.Fatalf("callout_detection threshold = %+v", got)
	}
	if len(detail.ValidSheetIDs) != 1 || detail.ValidSheetIDs[0] != "s0" {
		t.Fatalf("valid sheet ids = %v", detail.ValidSheetIDs)
	}
	if detail.DeadlineAt == "" || detail.CreatedAt == "" {
		t.Fatal("expected formatted timestamps")
	}
	if detail.LastError != nil {
		t.Fatal("no failure expected")
	}
}

func TestSummaryFromFailedState(t *testing.T) {
	now := time.Now()
	state := plan.NewState("p2", "org", "proj", 1, now)
	state.MarkFailed("timeout", now)

	summary := api.SummaryFromState(state)
	if summary.Phase != "failed" || summary.ErrorReason != "timeout" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestConvertNilState(t *testing.T) {
	if got := api.SummaryFromState(nil); got.PlanID != "" {
		t.Fatalf("expected zero summary, got %+v", got)
	}
	if got := api.DetailFromState(nil); got.Stages != nil {
		t.Fatalf("expected zero detail, got %+v", got)
	}
}
