// Package dispatch runs alert fan-out: it loads the triggering record,
// selects subscribers per channel, formats, hands messages to the gateways
// and folds per-recipient outcomes into a report.
package dispatch

import (
	"context"
	"time"

	"amberline/internal/types"
)

// CaseStore is the subset of the case repository the dispatcher reads.
type CaseStore interface {
	GetByID(ctx context.Context, id string) (*types.Case, error)
	ListMissingSince(ctx context.Context, cutoff time.Time) ([]*types.Case, error)
}

// SightingStore loads sightings by id.
type SightingStore interface {
	GetByID(ctx context.Context, id string) (*types.Sighting, error)
}

// SubscriberSelector yields eligible recipients. Implemented by
// selector.Selector.
type SubscriberSelector interface {
	SelectEmailSubscribers(ctx context.Context, c *types.Case) ([]*types.EmailSubscription, error)
	SelectSMSSubscribers(ctx context.Context, location string) ([]*types.SMSSubscription, error)
	SelectDigestSubscribers(ctx context.Context, freq types.DigestFrequency) ([]*types.SMSSubscription, error)
}

// EmailSender is the Email Gateway.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) types.DeliveryResult
}

// SMSSender is the alert half of the SMS Gateway.
type SMSSender interface {
	SendAlert(ctx context.Context, body string, phones []string) []types.DeliveryResult
}

// AlertLog persists one row per recipient attempt. It is an audit trail;
// dispatch does not consult it.
type AlertLog interface {
	Record(ctx context.Context, entries []types.AlertLogEntry) error
}

// Metrics receives dispatch telemetry.
type Metrics interface {
	RecordDeliveries(ctx context.Context, kind types.EventKind, channel types.ChannelType, sent, failed int)
	RecordDispatch(ctx context.Context, kind types.EventKind, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}
