package types

import "time"

// AlertMessage is the SQS payload that hands a dispatch to the alert worker.
// Only identifiers travel on the queue; the worker reloads current state.
type AlertMessage struct {
	EventKind  EventKind `json:"event_kind"`
	CaseID     string    `json:"case_id"`
	SightingID string    `json:"sighting_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Observability
	TraceID string `json:"trace_id,omitempty"`
}

// Validate checks that the identifiers required by EventKind are present.
func (m AlertMessage) Validate() error {
	switch m.EventKind {
	case EventCaseCreated:
		if m.CaseID == "" {
			return NewAppError(ErrCodeValidationMissingField, "case_id is required", nil)
		}
	case EventSightingVerified:
		if m.SightingID == "" {
			return NewAppError(ErrCodeValidationMissingField, "sighting_id is required", nil)
		}
	default:
		return NewAppErrorWithDetails(ErrCodeValidationInvalidPayload, "unknown event kind", nil,
			map[string]any{"event_kind": string(m.EventKind)})
	}
	return nil
}
