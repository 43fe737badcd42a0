package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"planproc/internal/events"
	"planproc/internal/logging"
	"planproc/internal/metrics"
	"planproc/internal/plan"
	"planproc/internal/planstore"
	"planproc/internal/services"
)

// DeadlineSupervisor is the slice of the deadline package the coordinator
// needs: arm a one-shot wake-up at initialize, cancel it on terminal phases.
type DeadlineSupervisor interface {
	Arm(planID string, at time.Time)
	Disarm(planID string)
}

// Coordinator applies stage-completion events and admin commands to plan
// state. All mutations go through the store's per-plan serialization, which
// is what makes the size-comparison transitions in the phase policy safe
// under concurrent delivery.
type Coordinator struct {
	store      *planstore.Store
	dispatcher events.Dispatcher
	supervisor DeadlineSupervisor
	collector  *metrics.Collector
	logger     *slog.Logger

	planDeadline time.Duration
}

// Option configures optional Coordinator behavior.
type Option func(*Coordinator)

// WithSupervisor wires the deadline supervisor.
func WithSupervisor(sup DeadlineSupervisor) Option {
	return func(c *Coordinator) { c.supervisor = sup }
}

// WithPlanDeadline bounds total processing time per plan. Zero disables the
// deadline.
func WithPlanDeadline(d time.Duration) Option {
	return func(c *Coordinator) { c.planDeadline = d }
}

// WithMetrics wires the prometheus collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Coordinator) { c.collector = collector }
}

// New constructs a Coordinator. A nil dispatcher discards intents.
func New(store *planstore.Store, dispatcher events.Dispatcher, logger *slog.Logger, opts ...Option) *Coordinator {
	if dispatcher == nil {
		dispatcher = events.NopDispatcher{}
	}
	c := &Coordinator{
		store:      store,
		dispatcher: dispatcher,
		logger:     logging.NewComponentLogger(logger, "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize creates the plan record in the first phase with empty completion
// sets and arms the pipeline deadline. A duplicate call is idempotent and
// returns the current state so queue retries of the admin command are safe.
// A plan with zero sheets completes immediately.
func (c *Coordinator) Initialize(ctx context.Context, planID, organizationID, projectID string, totalSheets int) (*plan.State, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return nil, services.Wrap(services.ErrValidation, "coordinator", "initialize", "plan id is required", nil)
	}
	if totalSheets < 0 {
		return nil, services.Wrap(services.ErrValidation, "coordinator", "initialize", "total sheets must not be negative", nil)
	}
	ctx = services.WithPlanID(ctx, planID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, c.logger)

	now := time.Now().UTC()
	state := plan.NewState(planID, organizationID, projectID, totalSheets, now)
	if c.planDeadline > 0 {
		at := now.Add(c.planDeadline)
		state.DeadlineAt = &at
	}
	transitions := plan.Evaluate(state)

	if err := c.store.Create(ctx, state); err != nil {
		if errors.Is(err, planstore.ErrAlreadyExists) {
			existing, getErr := c.store.Get(ctx, planID)
			if getErr != nil {
				return nil, getErr
			}
			logger.Info("duplicate initialize ignored",
				logging.String(logging.FieldEventType, "initialize_duplicate"),
				logging.String(logging.FieldPhase, string(existing.Phase)))
			return existing, nil
		}
		return nil, err
	}

	logger.Info("plan initialized",
		logging.String(logging.FieldEventType, "plan_initialized"),
		logging.Int("total_sheets", totalSheets),
		logging.String(logging.FieldPhase, string(state.Phase)))

	if state.Phase.IsTerminal() {
		c.recordTransitions(transitions)
		c.emitAdvances(ctx, planID, transitions)
	} else {
		c.collector.PlanStarted()
		if state.DeadlineAt != nil && c.supervisor != nil {
			c.supervisor.Arm(planID, *state.DeadlineAt)
		}
	}
	return state, nil
}

// ReportImageGenerated records one sheet's rasterization as done.
func (c *Coordinator) ReportImageGenerated(ctx context.Context, planID, sheetID string) (*plan.State, error) {
	return c.applyStageEvent(ctx, planID, sheetID, plan.StageImageGeneration, nil)
}

// ReportMetadataExtracted records one sheet's title-block extraction as done
// and, while the plan is still in the metadata phase, adds valid sheets to
// the frozen-at-transition valid set.
func (c *Coordinator) ReportMetadataExtracted(ctx context.Context, planID, sheetID string, isValid bool, sheetNumber string) (*plan.State, error) {
	return c.applyStageEvent(ctx, planID, sheetID, plan.StageMetadataExtraction, &metadataDetail{
		isValid:     isValid,
		sheetNumber: sheetNumber,
	})
}

// ReportCalloutsDetected records one valid sheet's callout detection as done.
func (c *Coordinator) ReportCalloutsDetected(ctx context.Context, planID, sheetID string) (*plan.State, error) {
	return c.applyStageEvent(ctx, planID, sheetID, plan.StageCalloutDetection, nil)
}

// ReportTilesGenerated records one valid sheet's tile pyramid as done.
func (c *Coordinator) ReportTilesGenerated(ctx context.Context, planID, sheetID string) (*plan.State, error) {
	return c.applyStageEvent(ctx, planID, sheetID, plan.StageTileGeneration, nil)
}

type metadataDetail struct {
	isValid     bool
	sheetNumber string
}

// applyOutcome captures what one event application decided inside the
// mutation so logging and metrics can happen after the lock is released.
type applyOutcome struct {
	outcome     metrics.Outcome
	dropReason  string
	transitions []plan.Transition
}

func (c *Coordinator) applyStageEvent(ctx context.Context, planID, sheetID string, stage plan.Stage, detail *metadataDetail) (*plan.State, error) {
	planID = strings.TrimSpace(planID)
	sheetID = strings.TrimSpace(sheetID)
	if planID == "" || sheetID == "" {
		return nil, services.Wrap(services.ErrValidation, "coordinator", "report", "plan id and sheet id are required", nil)
	}
	ctx = services.WithPlanID(ctx, planID)
	ctx = services.WithSheetID(ctx, sheetID)
	ctx = services.WithStage(ctx, string(stage))
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, c.logger)

	var result applyOutcome
	start := time.Now()
	state, err := c.store.Mutate(ctx, planID, func(state *plan.State) error {
		result = applyToState(state, sheetID, stage, detail)
		return nil
	})
	c.collector.ObserveMutation(time.Since(start))
	if err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "coordinator", "report", "plan not initialized", err)
		}
		return nil, err
	}

	c.collector.RecordEvent(string(stage), result.outcome)
	switch result.outcome {
	case metrics.OutcomeDropped:
		logger.Warn("stage event dropped",
			logging.String(logging.FieldEventType, "event_dropped"),
			logging.String("drop_reason", result.dropReason),
			logging.String(logging.FieldPhase, string(state.Phase)))
	case metrics.OutcomeDuplicate:
		logger.Debug("duplicate stage event absorbed",
			logging.String(logging.FieldEventType, "event_duplicate"))
	default:
		logger.Debug("stage event applied",
			logging.String(logging.FieldEventType, "event_applied"),
			logging.Int("completed", state.SetFor(stage).Size()),
			logging.Int("threshold", state.ThresholdFor(stage)))
	}
	if detail != nil && detail.sheetNumber != "" {
		logger.Debug("sheet number reported", logging.String("sheet_number", detail.sheetNumber))
	}

	if len(result.transitions) > 0 {
		c.recordTransitions(result.transitions)
		c.emitAdvances(ctx, planID, result.transitions)
		if state.Phase.IsTerminal() {
			c.finishPlan(planID)
			logger.Info("plan complete",
				logging.String(logging.FieldEventType, "plan_complete"),
				logging.Int("valid_sheets", state.ValidSheets.Size()),
				logging.Int("total_sheets", state.TotalSheets))
		}
	}
	return state, nil
}

// applyToState is the pure event-application step run under the per-plan
// lock. Terminal plans absorb everything; events for a stage the plan has not
// reached are dropped rather than buffered; callout/tile events are filtered
// to the valid-sheet set and metadata events to sheets that finished image
// generation; the first stage is bounded by totalSheets.
func applyToState(state *plan.State, sheetID string, stage plan.Stage, detail *metadataDetail) applyOutcome {
	if state.Phase.IsTerminal() {
		return applyOutcome{outcome: metrics.OutcomeDropped, dropReason: "plan_terminal"}
	}
	if state.Phase.Before(stage.Phase()) {
		return applyOutcome{outcome: metrics.OutcomeDropped, dropReason: "stage_not_reached"}
	}

	set := state.SetFor(stage)
	switch stage {
	case plan.StageCalloutDetection, plan.StageTileGeneration:
		if !state.ValidSheets.Has(sheetID) {
			return applyOutcome{outcome: metrics.OutcomeDropped, dropReason: "sheet_not_valid"}
		}
	case plan.StageMetadataExtraction:
		if !state.ImagesGenerated.Has(sheetID) {
			return applyOutcome{outcome: metrics.OutcomeDropped, dropReason: "unknown_sheet"}
		}
	default:
		if !set.Has(sheetID) && set.Size() >= state.TotalSheets {
			return applyOutcome{outcome: metrics.OutcomeDropped, dropReason: "unknown_sheet"}
		}
	}

	duplicate := set.Has(sheetID)
	set.Add(sheetID)
	if stage == plan.StageMetadataExtraction && detail != nil && detail.isValid &&
		state.Phase == plan.PhaseMetadataExtraction {
		state.ValidSheets.Add(sheetID)
	}

	outcome := applyOutcome{outcome: metrics.OutcomeApplied}
	if duplicate {
		outcome.outcome = metrics.OutcomeDuplicate
	}
	// Late events for an already-passed phase are recorded for audit but can
	// never complete the current phase's stage, so only evaluate transitions
	// when the event targets the phase the plan is in.
	if state.Phase == stage.Phase() {
		outcome.transitions = plan.Evaluate(state)
	}
	return outcome
}

// MarkFailed forces the plan into the terminal failed phase. It is allowed
// from any non-terminal phase and is a no-op once the plan is terminal, so
// redelivered failure commands cannot flap state.
func (c *Coordinator) MarkFailed(ctx context.Context, planID, reason string) (*plan.State, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return nil, services.Wrap(services.ErrValidation, "coordinator", "mark_failed", "plan id is required", nil)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified failure"
	}
	ctx = services.WithPlanID(ctx, planID)
	logger := logging.WithContext(ctx, c.logger)

	var fromPhase plan.Phase
	applied := false
	state, err := c.store.Mutate(ctx, planID, func(state *plan.State) error {
		fromPhase = state.Phase
		applied = state.MarkFailed(reason, time.Now())
		return nil
	})
	if err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "coordinator", "mark_failed", "plan not initialized", err)
		}
		return nil, err
	}
	if !applied {
		logger.Debug("mark failed ignored on terminal plan",
			logging.String(logging.FieldPhase, string(state.Phase)))
		return state, nil
	}

	c.finishPlan(planID)
	c.collector.RecordFailure(failureReasonClass(reason))
	logger.Error("plan marked failed",
		logging.String(logging.FieldEventType, "plan_failed"),
		logging.String("reason", reason),
		logging.String("at_phase", string(fromPhase)),
		logging.Alert("plan_failure"))
	if err := c.dispatcher.PlanFailed(ctx, events.Failure{PlanID: planID, Reason: reason, AtPhase: fromPhase}); err != nil {
		logger.Warn("failure dispatch error", logging.Error(err))
	}
	return state, nil
}

// GetState returns a read-only snapshot of the plan.
func (c *Coordinator) GetState(ctx context.Context, planID string) (*plan.State, error) {
	state, err := c.store.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, planstore.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "coordinator", "get_state", "plan not initialized", err)
		}
		return nil, err
	}
	return state, nil
}

func (c *Coordinator) finishPlan(planID string) {
	c.collector.PlanFinished()
	if c.supervisor != nil {
		c.supervisor.Disarm(planID)
	}
}

func (c *Coordinator) recordTransitions(transitions []plan.Transition) {
	for _, tr := range transitions {
		c.collector.RecordTransition(string(tr.From), string(tr.To))
	}
}

func (c *Coordinator) emitAdvances(ctx context.Context, planID string, transitions []plan.Transition) {
	for _, tr := range transitions {
		advance := events.PhaseAdvance{
			PlanID:          planID,
			From:            tr.From,
			To:              tr.To,
			TriggerSheetIDs: tr.TriggerSheetIDs,
		}
		if err := c.dispatcher.PhaseAdvanced(ctx, advance); err != nil {
			logging.WithContext(ctx, c.logger).Warn("phase advance dispatch error",
				logging.String("to_phase", string(tr.To)),
				logging.Error(err))
		}
	}
}

// failureReasonClass buckets free-form failure reasons so the metrics label
// stays low-cardinality.
func failureReasonClass(reason string) string {
	if reason == plan.TimeoutReason {
		return plan.TimeoutReason
	}
	return "external"
}
