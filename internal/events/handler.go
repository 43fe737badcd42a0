package events

import (
	"context"
	"log/slog"

	"planproc/internal/logging"
	"planproc/internal/plan"
	"planproc/internal/services"
)

// PlanService is the slice of the coordinator the handler routes messages to.
type PlanService interface {
	Initialize(ctx context.Context, planID, organizationID, projectID string, totalSheets int) (*plan.State, error)
	ReportImageGenerated(ctx context.Context, planID, sheetID string) (*plan.State, error)
	ReportMetadataExtracted(ctx context.Context, planID, sheetID string, isValid bool, sheetNumber string) (*plan.State, error)
	ReportCalloutsDetected(ctx context.Context, planID, sheetID string) (*plan.State, error)
	ReportTilesGenerated(ctx context.Context, planID, sheetID string) (*plan.State, error)
	MarkFailed(ctx context.Context, planID, reason string) (*plan.State, error)
}

// Handler adapts decoded envelopes onto coordinator calls. Queue consumers
// and the HTTP API both feed through it, so redelivery semantics live in one
// place: absorbed errors return nil, permanent errors propagate for
// dead-lettering.
type Handler struct {
	service PlanService
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service PlanService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logging.NewComponentLogger(logger, "event-handler"),
	}
}

// Handle routes one envelope. The returned state is the post-application
// snapshot when the message targeted an existing plan.
func (h *Handler) Handle(ctx context.Context, env Envelope) (*plan.State, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	ctx = services.WithPlanID(ctx, env.PlanID)
	if env.SheetID != "" {
		ctx = services.WithSheetID(ctx, env.SheetID)
	}
	if stage, ok := env.Stage(); ok {
		ctx = services.WithStage(ctx, stage)
	}

	switch env.Kind {
	case KindInitialize:
		return h.service.Initialize(ctx, env.PlanID, env.OrganizationID, env.ProjectID, *env.TotalSheets)
	case KindImageGenerated:
		return h.service.ReportImageGenerated(ctx, env.PlanID, env.SheetID)
	case KindMetadataExtracted:
		return h.service.ReportMetadataExtracted(ctx, env.PlanID, env.SheetID, *env.IsValid, env.SheetNumber)
	case KindCalloutsDetected:
		return h.service.ReportCalloutsDetected(ctx, env.PlanID, env.SheetID)
	case KindTilesGenerated:
		return h.service.ReportTilesGenerated(ctx, env.PlanID, env.SheetID)
	case KindMarkFailed:
		return h.service.MarkFailed(ctx, env.PlanID, env.Reason)
	default:
		return nil, services.Wrap(services.ErrValidation, "events", "handle", "unknown kind", nil)
	}
}

// HandleRaw decodes and routes a raw payload in one step.
func (h *Handler) HandleRaw(ctx context.Context, data []byte) (*plan.State, error) {
	env, err := Decode(data)
	if err != nil {
		logging.WithContext(ctx, h.logger).Warn(
			"dropping undecodable message",
			logging.String(logging.FieldEventType, "message_rejected"),
			logging.Error(err),
		)
		return nil, err
	}
	return h.Handle(ctx, env)
}
