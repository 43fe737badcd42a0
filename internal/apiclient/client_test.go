package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"planproc/internal/api"
	"planproc/internal/apiclient"
	"planproc/internal/services"
)

func TestClientPlanRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/plans/p1":
			_ = json.NewEncoder(w).Encode(api.PlanResponse{Plan: api.PlanDetail{
				PlanSummary: api.PlanSummary{PlanID: "p1", Phase: "callout_detection"},
			}})
		case "/api/plans":
			switch r.Method {
			case http.MethodGet:
				if got := r.URL.Query().Get("phase"); got != "failed" {
					t.Fatalf("unexpected phase filter %q", got)
				}
				_ = json.NewEncoder(w).Encode(api.PlanListResponse{Plans: []api.PlanSummary{{PlanID: "p2"}}})
			case http.MethodPost:
				var req api.InitializePlanRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Fatalf("decode initialize: %v", err)
				}
				_ = json.NewEncoder(w).Encode(api.PlanResponse{Plan: api.PlanDetail{
					PlanSummary: api.PlanSummary{PlanID: req.PlanID, Phase: "image_generation"},
				}})
			}
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := apiclient.New(server.URL, "tok")
	ctx := context.Background()

	plan, err := client.Plan(ctx, "p1")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Phase != "callout_detection" {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	plans, err := client.Plans(ctx, "failed")
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	if len(plans) != 1 || plans[0].PlanID != "p2" {
		t.Fatalf("unexpected list: %+v", plans)
	}

	created, err := client.InitializePlan(ctx, api.InitializePlanRequest{PlanID: "p3", TotalSheets: 4})
	if err != nil {
		t.Fatalf("InitializePlan: %v", err)
	}
	if created.PlanID != "p3" {
		t.Fatalf("unexpected created plan: %+v", created)
	}
}

func TestClientErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "plan not found"})
	}))
	defer server.Close()

	client := apiclient.New(server.URL, "")
	_, err := client.Plan(context.Background(), "ghost")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientNormalizesBareHostPort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true})
	}))
	defer server.Close()

	bare := server.Listener.Addr().String()
	client := apiclient.New(bare, "")
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatalf("unexpected status: %+v", status)
	}
}
