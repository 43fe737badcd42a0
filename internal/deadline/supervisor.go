package deadline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"planproc/internal/logging"
	"planproc/internal/planstore"
)

// TimeoutHandler receives the plan id of a plan whose deadline elapsed.
// The supervisor calls it at most once per armed deadline; the handler is
// expected to be idempotent because a resync can re-arm a deadline that
// fired while the handler was still persisting the failure.
type TimeoutHandler func(ctx context.Context, planID string)

// Supervisor tracks one wall-clock deadline per active plan and invokes
// the timeout handler when a deadline elapses. Deadlines are persisted by
// the store, so after a restart Resync rebuilds the in-memory timers from
// the rows that survived.
type Supervisor struct {
	store  *planstore.Store
	logger *slog.Logger

	mu      sync.Mutex
	handler TimeoutHandler
	timers  map[string]*time.Timer
	stopped bool
}

func NewSupervisor(store *planstore.Store, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "deadline")),
		timers: make(map[string]*time.Timer),
	}
}

// SetHandler installs the timeout callback. Must be called before Arm or
// Resync; the daemon wires the coordinator's failure path here.
func (s *Supervisor) SetHandler(handler TimeoutHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Arm schedules the timeout for planID at the given instant, replacing any
// timer already armed for that plan. An instant in the past fires
// immediately.
func (s *Supervisor) Arm(planID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if existing, ok := s.timers[planID]; ok {
		existing.Stop()
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.timers[planID] = time.AfterFunc(delay, func() { s.fire(planID) })
	s.logger.Debug("deadline armed",
		logging.String(logging.FieldPlanID, planID),
		slog.Time("deadline_at", at))
}

// Disarm cancels the timer for planID if one is armed.
func (s *Supervisor) Disarm(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[planID]; ok {
		timer.Stop()
		delete(s.timers, planID)
	}
}

func (s *Supervisor) fire(planID string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, planID)
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		s.logger.Warn("deadline elapsed with no handler installed",
			logging.String(logging.FieldPlanID, planID))
		return
	}
	s.logger.Warn("plan deadline elapsed",
		logging.String(logging.FieldPlanID, planID))
	handler(context.Background(), planID)
}

// Resync rebuilds timers from the persisted deadlines of non-terminal
// plans. Deadlines that elapsed while the daemon was down fire
// immediately. Called at startup and by the sweeper.
func (s *Supervisor) Resync(ctx context.Context) error {
	deadlines, err := s.store.ActiveDeadlines(ctx)
	if err != nil {
		return err
	}
	for _, d := range deadlines {
		s.mu.Lock()
		_, armed := s.timers[d.PlanID]
		s.mu.Unlock()
		if armed {
			continue
		}
		s.Arm(d.PlanID, d.At)
	}
	return nil
}

// RunSweeper resyncs on the given interval until ctx is cancelled. The
// sweep catches deadlines whose in-memory timers were lost, for example
// after a handler error left a plan active past its deadline.
func (s *Supervisor) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Resync(ctx); err != nil {
				s.logger.Warn("deadline resync failed", logging.Error(err))
			}
		}
	}
}

// Stop cancels all timers and prevents further arming.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for planID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, planID)
	}
}
