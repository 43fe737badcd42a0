package events

import (
	"context"
	"log/slog"
	"strings"

	"planproc/internal/logging"
	"planproc/internal/plan"
)

// PhaseAdvance tells the external fan-out which sheet ids to dispatch to the
// next processing stage.
type PhaseAdvance struct {
	PlanID          string     `json:"plan_id"`
	From            plan.Phase `json:"from_phase"`
	To              plan.Phase `json:"to_phase"`
	TriggerSheetIDs []string   `json:"trigger_sheet_ids,omitempty"`
}

// Failure announces a terminally failed plan.
type Failure struct {
	PlanID  string     `json:"plan_id"`
	Reason  string     `json:"reason"`
	AtPhase plan.Phase `json:"at_phase"`
}

// Dispatcher consumes the side-effect intents the coordinator produces.
// Implementations turn intents into real queue sends, notifications, or
// metrics; the coordinator itself never talks to a transport.
type Dispatcher interface {
	PhaseAdvanced(ctx context.Context, advance PhaseAdvance) error
	PlanFailed(ctx context.Context, failure Failure) error
}

// NopDispatcher discards all intents. Useful in tests and wiring code.
type NopDispatcher struct{}

func (NopDispatcher) PhaseAdvanced(context.Context, PhaseAdvance) error { return nil }

func (NopDispatcher) PlanFailed(context.Context, Failure) error { return nil }

// NewLogDispatcher returns a dispatcher that records intents as structured
// log lines.
func NewLogDispatcher(logger *slog.Logger) Dispatcher {
	return &logDispatcher{logger: logging.NewComponentLogger(logger, "dispatcher")}
}

type logDispatcher struct {
	logger *slog.Logger
}

func (d *logDispatcher) PhaseAdvanced(ctx context.Context, advance PhaseAdvance) error {
	logging.WithContext(ctx, d.logger).Info(
		"phase advanced",
		logging.String(logging.FieldEventType, "phase_advance"),
		logging.String(logging.FieldPlanID, advance.PlanID),
		logging.String("from_phase", string(advance.From)),
		logging.String("to_phase", string(advance.To)),
		logging.Int("trigger_sheets", len(advance.TriggerSheetIDs)),
	)
	return nil
}

func (d *logDispatcher) PlanFailed(ctx context.Context, failure Failure) error {
	logging.WithContext(ctx, d.logger).Error(
		"plan failed",
		logging.String(logging.FieldEventType, "plan_failed"),
		logging.String(logging.FieldPlanID, failure.PlanID),
		logging.String("reason", strings.TrimSpace(failure.Reason)),
		logging.String("at_phase", string(failure.AtPhase)),
		logging.Alert("plan_failure"),
	)
	return nil
}

// Multi fans intents out to every wrapped dispatcher; the first error wins
// but later dispatchers still run.
func Multi(dispatchers ...Dispatcher) Dispatcher {
	return multiDispatcher(dispatchers)
}

type multiDispatcher []Dispatcher

func (m multiDispatcher) PhaseAdvanced(ctx context.Context, advance PhaseAdvance) error {
	var firstErr error
	for _, d := range m {
		if err := d.PhaseAdvanced(ctx, advance); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiDispatcher) PlanFailed(ctx context.Context, failure Failure) error {
	var firstErr error
	for _, d := range m {
		if err := d.PlanFailed(ctx, failure); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
