package events

import (
	"errors"
	"testing"

	"planproc/internal/services"
)

func TestDecodeStageEvent(t *testing.T) {
	payload := []byte(`{"kind":"metadata_extracted","plan_id":"p1","sheet_id":"s3","is_valid":true,"sheet_number":"A-101"}`)
	env, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != KindMetadataExtracted || env.PlanID != "p1" || env.SheetID != "s3" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.IsValid == nil || !*env.IsValid {
		t.Fatal("is_valid not decoded")
	}
	if env.SheetNumber != "A-101" {
		t.Fatalf("sheet_number = %q", env.SheetNumber)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`{"kind":`)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidatePerKind(t *testing.T) {
	sheets := 4
	valid := true
	tests := []struct {
		name string
		env  Envelope
		ok   bool
	}{
		{"image ok", Envelope{Kind: KindImageGenerated, PlanID: "p", SheetID: "s"}, true},
		{"image missing sheet", Envelope{Kind: KindImageGenerated, PlanID: "p"}, false},
		{"metadata ok", Envelope{Kind: KindMetadataExtracted, PlanID: "p", SheetID: "s", IsValid: &valid}, true},
		{"metadata missing validity", Envelope{Kind: KindMetadataExtracted, PlanID: "p", SheetID: "s"}, false},
		{"callouts missing sheet", Envelope{Kind: KindCalloutsDetected, PlanID: "p", SheetID: "  "}, false},
		{"tiles ok", Envelope{Kind: KindTilesGenerated, PlanID: "p", SheetID: "s"}, true},
		{"initialize ok", Envelope{Kind: KindInitialize, PlanID: "p", TotalSheets: &sheets}, true},
		{"initialize missing total", Envelope{Kind: KindInitialize, PlanID: "p"}, false},
		{"mark_failed ok", Envelope{Kind: KindMarkFailed, PlanID: "p", Reason: "worker crashed"}, true},
		{"mark_failed missing reason", Envelope{Kind: KindMarkFailed, PlanID: "p"}, false},
		{"missing plan id", Envelope{Kind: KindImageGenerated, SheetID: "s"}, false},
		{"unknown kind", Envelope{Kind: Kind("bogus"), PlanID: "p"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
			}
		})
	}
}

func TestValidateRejectsNegativeTotalSheets(t *testing.T) {
	negative := -1
	env := Envelope{Kind: KindInitialize, PlanID: "p", TotalSheets: &negative}
	if err := env.Validate(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStageMapping(t *testing.T) {
	stage, ok := Envelope{Kind: KindCalloutsDetected}.Stage()
	if !ok || stage != "callout_detection" {
		t.Fatalf("Stage() = %q, %v", stage, ok)
	}
	if _, ok := (Envelope{Kind: KindInitialize}).Stage(); ok {
		t.Fatal("admin kinds must not map to a stage")
	}
}
