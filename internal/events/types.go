package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"planproc/internal/services"
)

// Kind discriminates inbound message payloads.
type Kind string

const (
	KindImageGenerated    Kind = "image_generated"
	KindMetadataExtracted Kind = "metadata_extracted"
	KindCalloutsDetected  Kind = "callouts_detected"
	KindTilesGenerated    Kind = "tiles_generated"
	KindInitialize        Kind = "initialize"
	KindMarkFailed        Kind = "mark_failed"
)

// Envelope is the wire form of stage-completion events and admin commands.
// Delivery is at-least-once with no cross-message ordering; every field
// beyond the kind discriminator is optional at the transport level and
// checked by Validate.
type Envelope struct {
	Kind           Kind   `json:"kind"`
	PlanID         string `json:"plan_id"`
	SheetID        string `json:"sheet_id,omitempty"`
	IsValid        *bool  `json:"is_valid,omitempty"`
	SheetNumber    string `json:"sheet_number,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	TotalSheets    *int   `json:"total_sheets,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Decode parses and validates a raw message payload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, services.Wrap(services.ErrValidation, "events", "decode", "malformed payload", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks the envelope carries the fields its kind requires.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.PlanID) == "" {
		return services.Wrap(services.ErrValidation, "events", "validate", "plan_id is required", nil)
	}
	switch e.Kind {
	case KindImageGenerated, KindCalloutsDetected, KindTilesGenerated:
		if strings.TrimSpace(e.SheetID) == "" {
			return services.Wrap(services.ErrValidation, "events", "validate",
				fmt.Sprintf("%s requires sheet_id", e.Kind), nil)
		}
	case KindMetadataExtracted:
		if strings.TrimSpace(e.SheetID) == "" {
			return services.Wrap(services.ErrValidation, "events", "validate", "metadata_extracted requires sheet_id", nil)
		}
		if e.IsValid == nil {
			return services.Wrap(services.ErrValidation, "events", "validate", "metadata_extracted requires is_valid", nil)
		}
	case KindInitialize:
		if e.TotalSheets == nil || *e.TotalSheets < 0 {
			return services.Wrap(services.ErrValidation, "events", "validate", "initialize requires non-negative total_sheets", nil)
		}
	case KindMarkFailed:
		if strings.TrimSpace(e.Reason) == "" {
			return services.Wrap(services.ErrValidation, "events", "validate", "mark_failed requires reason", nil)
		}
	default:
		return services.Wrap(services.ErrValidation, "events", "validate",
			fmt.Sprintf("unknown kind %q", string(e.Kind)), nil)
	}
	return nil
}

// Stage returns the processing stage a stage-completion kind reports, or
// false for admin kinds.
func (e Envelope) Stage() (string, bool) {
	switch e.Kind {
	case KindImageGenerated:
		return "image_generation", true
	case KindMetadataExtracted:
		return "metadata_extraction", true
	case KindCalloutsDetected:
		return "callout_detection", true
	case KindTilesGenerated:
		return "tile_generation", true
	default:
		return "", false
	}
}
