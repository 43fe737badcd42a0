package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"planproc/internal/api"
)

func executeCommand(t *testing.T, server *httptest.Server, args ...string) string {
	t.Helper()
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append(args, "--address", server.URL))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestPlanListRendersTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/plans" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.PlanListResponse{Plans: []api.PlanSummary{
			{PlanID: "plan-7", Phase: "callout_detection", TotalSheets: 12, ValidSheets: 10},
		}})
	}))
	defer server.Close()

	output := executeCommand(t, server, "plan", "list")
	if !strings.Contains(output, "plan-7") {
		t.Fatalf("missing plan id in output:\n%s", output)
	}
	if !strings.Contains(output, "Callout Detection") {
		t.Fatalf("expected humanized phase label in output:\n%s", output)
	}
}

func TestPlanShowRendersStages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/plans/plan-7" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.PlanResponse{Plan: api.PlanDetail{
			PlanSummary: api.PlanSummary{PlanID: "plan-7", Phase: "tile_generation", TotalSheets: 2, ValidSheets: 2},
			Stages: map[string]api.StageProgress{
				"image_generation":    {Completed: 2, Threshold: 2},
				"metadata_extraction": {Completed: 2, Threshold: 2},
				"callout_detection":   {Completed: 2, Threshold: 2},
				"tile_generation":     {Completed: 1, Threshold: 2},
			},
			ValidSheetIDs: []string{"s0", "s1"},
		}})
	}))
	defer server.Close()

	output := executeCommand(t, server, "plan", "show", "plan-7")
	if !strings.Contains(output, "Tile Generation") {
		t.Fatalf("missing stage row:\n%s", output)
	}
	if !strings.Contains(output, "1 / 2") {
		t.Fatalf("missing progress cell:\n%s", output)
	}
	if !strings.Contains(output, "Valid sheets: s0, s1") {
		t.Fatalf("missing valid sheets line:\n%s", output)
	}
}

func TestPlanInitGeneratesID(t *testing.T) {
	var received api.InitializePlanRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(api.PlanResponse{Plan: api.PlanDetail{
			PlanSummary: api.PlanSummary{PlanID: received.PlanID, Phase: "image_generation", TotalSheets: received.TotalSheets},
		}})
	}))
	defer server.Close()

	output := executeCommand(t, server, "plan", "init", "--sheets", "3", "--org", "org-1")
	if received.PlanID == "" {
		t.Fatal("expected a generated plan id")
	}
	if received.TotalSheets != 3 || received.OrganizationID != "org-1" {
		t.Fatalf("unexpected request: %+v", received)
	}
	if !strings.Contains(output, received.PlanID) {
		t.Fatalf("output does not echo plan id:\n%s", output)
	}
}

func TestPlanFailRequiresReason(t *testing.T) {
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"plan", "fail", "p1", "--address", "127.0.0.1:1"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing --reason error")
	}
}

func TestStatusJSONOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{
			Running:     true,
			PID:         42,
			PhaseCounts: map[string]int{"complete": 2},
		})
	}))
	defer server.Close()

	output := executeCommand(t, server, "status", "--json")
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, output)
	}
	if !status.Running || status.PhaseCounts["complete"] != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestPhaseLabel(t *testing.T) {
	if got := phaseLabel("metadata_extraction"); got != "Metadata Extraction" {
		t.Fatalf("phaseLabel = %q", got)
	}
	if got := phaseLabel(""); got != "Unknown" {
		t.Fatalf("phaseLabel empty = %q", got)
	}
}
