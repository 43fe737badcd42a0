package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StageProgress reports how close one processing stage is to its
// completion threshold.
type StageProgress struct {
	Completed int `json:"completed"`
	Threshold int `json:"threshold"`
}

// PlanSummary describes a plan in a transport-friendly format without the
// per-sheet detail.
type PlanSummary struct {
	PlanID         string `json:"planId"`
	OrganizationID string `json:"organizationId"`
	ProjectID      string `json:"projectId"`
	Phase          string `json:"phase"`
	TotalSheets    int    `json:"totalSheets"`
	ValidSheets    int    `json:"validSheets"`
	ErrorReason    string `json:"errorReason,omitempty"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// PlanDetail extends the summary with per-stage progress and sheet ids.
type PlanDetail struct {
	PlanSummary

	Stages        map[string]StageProgress `json:"stages"`
	ValidSheetIDs []string                 `json:"validSheetIds"`
	LastError     *FailureDetail           `json:"lastError,omitempty"`
	CreatedAt     string                   `json:"createdAt,omitempty"`
	DeadlineAt    string                   `json:"deadlineAt,omitempty"`
}

// FailureDetail captures the terminal failure of a plan.
type FailureDetail struct {
	Reason string `json:"reason"`
	At     string `json:"at"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	PlanDBPath   string         `json:"planDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	PhaseCounts  map[string]int `json:"phaseCounts"`
}

// InitializePlanRequest registers a plan for processing.
type InitializePlanRequest struct {
	PlanID         string `json:"planId"`
	OrganizationID string `json:"organizationId"`
	ProjectID      string `json:"projectId"`
	TotalSheets    int    `json:"totalSheets"`
}

// FailPlanRequest marks a plan failed with an operator-supplied reason.
type FailPlanRequest struct {
	Reason string `json:"reason"`
}

// PlanListResponse wraps a collection of plan summaries.
type PlanListResponse struct {
	Plans []PlanSummary `json:"plans"`
}

// PlanResponse wraps a single plan detail.
type PlanResponse struct {
	Plan PlanDetail `json:"plan"`
}
