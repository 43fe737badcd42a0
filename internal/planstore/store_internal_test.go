package planstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"planproc/internal/plan"
)

func TestMutateReleasesPlanLocks(t *testing.T) {
	store, err := OpenPath(filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Create(ctx, plan.NewState("p1", "org", "proj", 8, time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.Mutate(ctx, "p1", func(state *plan.State) error {
				state.ImagesGenerated.Add(fmt.Sprintf("s%d", n))
				return nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	store.mu.Lock()
	held := len(store.planLock)
	store.mu.Unlock()
	if held != 0 {
		t.Fatalf("expected no retained plan locks after mutations, found %d", held)
	}

	state, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.ImagesGenerated.Size() != 8 {
		t.Fatalf("expected all 8 mutations applied, got %d", state.ImagesGenerated.Size())
	}
}
