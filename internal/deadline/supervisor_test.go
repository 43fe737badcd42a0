package deadline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"planproc/internal/deadline"
	"planproc/internal/logging"
	"planproc/internal/plan"
	"planproc/internal/planstore"
	"planproc/internal/testsupport"
)

type firedRecorder struct {
	mu    sync.Mutex
	plans []string
	ch    chan string
}

func newFiredRecorder() *firedRecorder {
	return &firedRecorder{ch: make(chan string, 8)}
}

func (r *firedRecorder) handle(_ context.Context, planID string) {
	r.mu.Lock()
	r.plans = append(r.plans, planID)
	r.mu.Unlock()
	r.ch <- planID
}

func (r *firedRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plans)
}

func (r *firedRecorder) waitOne(t *testing.T) string {
	t.Helper()
	select {
	case planID := <-r.ch:
		return planID
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deadline to fire")
		return ""
	}
}

func newTestSupervisor(t *testing.T) (*deadline.Supervisor, *planstore.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sup := deadline.NewSupervisor(store, logging.NewNop())
	t.Cleanup(sup.Stop)
	return sup, store
}

func TestArmFiresOnceAfterDeadline(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	recorder := newFiredRecorder()
	sup.SetHandler(recorder.handle)

	sup.Arm("p1", time.Now().Add(20*time.Millisecond))
	if got := recorder.waitOne(t); got != "p1" {
		t.Fatalf("fired for %q, want p1", got)
	}

	time.Sleep(50 * time.Millisecond)
	if recorder.count() != 1 {
		t.Fatalf("deadline fired %d times, want 1", recorder.count())
	}
}

func TestDisarmPreventsFiring(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	recorder := newFiredRecorder()
	sup.SetHandler(recorder.handle)

	sup.Arm("p1", time.Now().Add(30*time.Millisecond))
	sup.Disarm("p1")

	time.Sleep(80 * time.Millisecond)
	if recorder.count() != 0 {
		t.Fatalf("disarmed deadline fired %d times", recorder.count())
	}
}

func TestRearmReplacesTimer(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	recorder := newFiredRecorder()
	sup.SetHandler(recorder.handle)

	sup.Arm("p1", time.Now().Add(time.Hour))
	sup.Arm("p1", time.Now().Add(20*time.Millisecond))

	recorder.waitOne(t)
	time.Sleep(50 * time.Millisecond)
	if recorder.count() != 1 {
		t.Fatalf("re-armed deadline fired %d times, want 1", recorder.count())
	}
}

func TestResyncArmsPersistedDeadlines(t *testing.T) {
	sup, store := newTestSupervisor(t)
	recorder := newFiredRecorder()
	sup.SetHandler(recorder.handle)
	ctx := context.Background()

	// An already-elapsed deadline persisted before a restart.
	state := plan.NewState("p-stalled", "org", "proj", 2, time.Now().Add(-time.Hour))
	past := time.Now().Add(-time.Minute)
	state.DeadlineAt = &past
	if err := store.Create(ctx, state); err != nil {
		t.Fatalf("store.Create: %v", err)
	}

	// A terminal plan with a deadline must be skipped.
	testsupport.SeedPlan(t, store, "p-done", 1)
	if _, err := store.Mutate(ctx, "p-done", func(s *plan.State) error {
		s.Phase = plan.PhaseComplete
		future := time.Now().Add(time.Hour)
		s.DeadlineAt = &future
		return nil
	}); err != nil {
		t.Fatalf("store.Mutate: %v", err)
	}

	if err := sup.Resync(ctx); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if got := recorder.waitOne(t); got != "p-stalled" {
		t.Fatalf("fired for %q, want p-stalled", got)
	}
	time.Sleep(50 * time.Millisecond)
	if recorder.count() != 1 {
		t.Fatalf("resync fired %d times, want 1", recorder.count())
	}
}

func TestStopCancelsTimers(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	recorder := newFiredRecorder()
	sup.SetHandler(recorder.handle)

	sup.Arm("p1", time.Now().Add(20*time.Millisecond))
	sup.Stop()

	time.Sleep(80 * time.Millisecond)
	if recorder.count() != 0 {
		t.Fatalf("stopped supervisor fired %d times", recorder.count())
	}
}
