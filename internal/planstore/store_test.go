package planstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"planproc/internal/plan"
	"planproc/internal/planstore"
	"planproc/internal/testsupport"
)

func TestCreateAndGetRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seeded := testsupport.SeedPlan(t, store, "plan-1", 4)

	fetched, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.PlanID != seeded.PlanID || fetched.TotalSheets != 4 {
		t.Fatalf("unexpected fetched plan: %+v", fetched)
	}
	if fetched.Phase != plan.PhaseImageGeneration {
		t.Fatalf("expected initial phase, got %s", fetched.Phase)
	}
	if fetched.ImagesGenerated.Size() != 0 {
		t.Fatalf("expected empty completion sets, got %v", fetched.ImagesGenerated.Members())
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.SeedPlan(t, store, "plan-1", 2)
	state := plan.NewState("plan-1", "org", "proj", 2, time.Now())
	if err := store.Create(context.Background(), state); !errors.Is(err, planstore.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetUnknownPlanFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, planstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMutatePersistsCompletionSets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPlan(t, store, "plan-1", 2)
	_, err := store.Mutate(ctx, "plan-1", func(state *plan.State) error {
		state.ImagesGenerated.Add("s0")
		state.ValidSheets.Add("s0")
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	fetched, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !fetched.ImagesGenerated.Has("s0") || !fetched.ValidSheets.Has("s0") {
		t.Fatalf("mutation not persisted: %+v", fetched)
	}
}

func TestMutateErrorAbortsWrite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPlan(t, store, "plan-1", 2)
	sentinel := errors.New("reject")
	_, err := store.Mutate(ctx, "plan-1", func(state *plan.State) error {
		state.ImagesGenerated.Add("s0")
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	fetched, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.ImagesGenerated.Size() != 0 {
		t.Fatal("aborted mutation must not persist")
	}
}

func TestMutateSerializesPerPlan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const workers = 16
	testsupport.SeedPlan(t, store, "plan-1", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.Mutate(ctx, "plan-1", func(state *plan.State) error {
				state.ImagesGenerated.Add(fmt.Sprintf("s%d", n))
				return nil
			})
			if err != nil {
				t.Errorf("Mutate failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	fetched, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.ImagesGenerated.Size() != workers {
		t.Fatalf("lost updates under concurrency: size %d, want %d", fetched.ImagesGenerated.Size(), workers)
	}
}

func TestListFiltersByPhase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPlan(t, store, "plan-1", 1)
	testsupport.SeedPlan(t, store, "plan-2", 1)
	if _, err := store.Mutate(ctx, "plan-2", func(state *plan.State) error {
		state.MarkFailed("boom", time.Now())
		return nil
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	failed, err := store.List(ctx, plan.PhaseFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].PlanID != "plan-2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}
	if failed[0].LastError == nil || failed[0].LastError.Reason != "boom" {
		t.Fatalf("expected persisted failure info, got %+v", failed[0].LastError)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(all))
	}
}

func TestStatsGroupsByPhase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPlan(t, store, "plan-1", 1)
	testsupport.SeedPlan(t, store, "plan-2", 1)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[plan.PhaseImageGeneration] != 2 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestActiveDeadlinesSkipsTerminalPlans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	deadline := time.Now().Add(time.Hour).UTC()
	for _, id := range []string{"plan-1", "plan-2"} {
		state := plan.NewState(id, "org", "proj", 1, time.Now())
		state.DeadlineAt = &deadline
		if err := store.Create(ctx, state); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, err := store.Mutate(ctx, "plan-2", func(state *plan.State) error {
		state.MarkFailed("boom", time.Now())
		return nil
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	deadlines, err := store.ActiveDeadlines(ctx)
	if err != nil {
		t.Fatalf("ActiveDeadlines failed: %v", err)
	}
	if len(deadlines) != 1 || deadlines[0].PlanID != "plan-1" {
		t.Fatalf("unexpected deadlines: %+v", deadlines)
	}
	if !deadlines[0].At.Equal(deadline.Truncate(time.Nanosecond)) {
		t.Fatalf("deadline mismatch: got %v want %v", deadlines[0].At, deadline)
	}
}
