package daemon

import (
	"context"

	"planproc/internal/events"
	"planproc/internal/notifications"
	"planproc/internal/plan"
	"planproc/internal/planstore"
)

// notifyDispatcher turns terminal coordinator intents into push
// notifications. Intermediate phase advances are not notified.
type notifyDispatcher struct {
	notifier notifications.Service
	store    *planstore.Store
}

func newNotifyDispatcher(notifier notifications.Service, store *planstore.Store) events.Dispatcher {
	return &notifyDispatcher{notifier: notifier, store: store}
}

func (n *notifyDispatcher) PhaseAdvanced(ctx context.Context, advance events.PhaseAdvance) error {
	if advance.To != plan.PhaseComplete {
		return nil
	}
	totalSheets, validSheets := 0, 0
	if state, err := n.store.Get(ctx, advance.PlanID); err == nil {
		totalSheets = state.TotalSheets
		validSheets = state.ValidSheets.Size()
	}
	return n.notifier.NotifyPlanCompleted(ctx, advance.PlanID, totalSheets, validSheets)
}

func (n *notifyDispatcher) PlanFailed(ctx context.Context, failure events.Failure) error {
	return n.notifier.NotifyPlanFailed(ctx, failure.PlanID, failure.Reason)
}
