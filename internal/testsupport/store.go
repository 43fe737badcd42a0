package testsupport

import (
	"context"
	"testing"
	"time"

	"planproc/internal/config"
	"planproc/internal/plan"
	"planproc/internal/planstore"
)

// MustOpenStore opens a planstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *planstore.Store {
	t.Helper()

	store, err := planstore.Open(cfg)
	if err != nil {
		t.Fatalf("planstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedPlan creates and stores a fresh plan record for tests.
func SeedPlan(t testing.TB, store *planstore.Store, planID string, totalSheets int) *plan.State {
	t.Helper()

	state := plan.NewState(planID, "org-test", "proj-test", totalSheets, time.Now())
	if err := store.Create(context.Background(), state); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return state
}
