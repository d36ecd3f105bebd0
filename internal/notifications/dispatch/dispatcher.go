package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"amberline/internal/notifications/format"
	"amberline/internal/notifications/selector"
	"amberline/internal/types"
)

// Report is the outcome of one case or sighting dispatch. Counts are
// successful sends; Errors holds one entry per failed recipient plus any
// selection failure (with an empty Recipient).
type Report struct {
	EventKind  types.EventKind        `json:"event_kind"`
	CaseID     string                 `json:"case_id"`
	SightingID string                 `json:"sighting_id,omitempty"`
	EmailsSent int                    `json:"emails_sent"`
	SMSSent    int                    `json:"sms_sent"`
	Errors     []types.DeliveryResult `json:"errors"`
}

// Config wires a Dispatcher.
type Config struct {
	Cases     CaseStore
	Sightings SightingStore
	Selector  SubscriberSelector
	Email     EmailSender
	SMS       SMSSender
	Formatter format.Formatter
	AlertLog  AlertLog // optional
	Metrics   Metrics  // optional
	Clock     types.Clock
	Logger    types.Logger

	// DigestFrequency selects which digest preference this process serves.
	DigestFrequency types.DigestFrequency
}

// Dispatcher implements case, sighting and digest dispatch.
type Dispatcher struct {
	cases      CaseStore
	sightings  SightingStore
	selector   SubscriberSelector
	email      EmailSender
	sms        SMSSender
	formatter  format.Formatter
	alertLog   AlertLog
	metrics    Metrics
	clock      types.Clock
	logger     types.Logger
	digestFreq types.DigestFrequency
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		cases:      cfg.Cases,
		sightings:  cfg.Sightings,
		selector:   cfg.Selector,
		email:      cfg.Email,
		sms:        cfg.SMS,
		formatter:  cfg.Formatter,
		alertLog:   cfg.AlertLog,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		digestFreq: cfg.DigestFrequency,
	}
	if d.metrics == nil {
		d.metrics = NoopMetrics{}
	}
	if d.clock == nil {
		d.clock = types.RealClock{}
	}
	if d.logger == nil {
		d.logger = types.NewSlogLogger(nil)
	}
	if d.digestFreq == "" {
		d.digestFreq = types.DigestDaily
	}
	return d
}

// DispatchCaseAlert alerts every eligible email and SMS subscriber about a
// case. A missing case is the only fatal outcome; everything else lands in
// the report. Re-invoking re-sends to everyone currently eligible.
func (d *Dispatcher) DispatchCaseAlert(ctx context.Context, caseID string) (*Report, error) {
	start := d.clock.Now()
	c, err := d.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("load case %s: %w", caseID, err)
	}

	alert := d.formatter.CaseAlert(c)
	report := &Report{EventKind: types.EventCaseCreated, CaseID: c.ID}

	var emailResults, smsResults []types.DeliveryResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emailResults = d.emailLeg(gctx, c, alert.Subject, alert.EmailBody)
		return nil
	})
	g.Go(func() error {
		smsResults = d.smsLeg(gctx, c.LastSeenLocation, alert.SMSBody)
		return nil
	})
	_ = g.Wait()

	report.EmailsSent, report.Errors = tally(emailResults, report.Errors)
	report.SMSSent, report.Errors = tally(smsResults, report.Errors)

	d.finish(ctx, report, c.ID, emailResults, smsResults, start)
	return report, nil
}

// DispatchSightingAlert texts SMS subscribers about a verified sighting.
// Sighting alerts have no email variant. An unverified sighting yields an
// empty report and no sends.
func (d *Dispatcher) DispatchSightingAlert(ctx context.Context, sightingID string) (*Report, error) {
	start := d.clock.Now()
	s, err := d.sightings.GetByID(ctx, sightingID)
	if err != nil {
		return nil, fmt.Errorf("load sighting %s: %w", sightingID, err)
	}
	if !s.Verified {
		d.logger.Warn("skipping alert for unverified sighting", "sighting_id", s.ID, "case_id", s.CaseID)
		return &Report{EventKind: types.EventSightingVerified, CaseID: s.CaseID, SightingID: s.ID}, nil
	}
	c, err := d.cases.GetByID(ctx, s.CaseID)
	if err != nil {
		return nil, fmt.Errorf("load case %s for sighting %s: %w", s.CaseID, sightingID, err)
	}

	report := &Report{EventKind: types.EventSightingVerified, CaseID: c.ID, SightingID: s.ID}
	smsResults := d.smsLeg(ctx, c.LastSeenLocation, d.formatter.SightingAlert(c, s))
	report.SMSSent, report.Errors = tally(smsResults, report.Errors)

	d.finish(ctx, report, s.ID, nil, smsResults, start)
	return report, nil
}

func (d *Dispatcher) emailLeg(ctx context.Context, c *types.Case, subject, body string) []types.DeliveryResult {
	subs, err := d.selector.SelectEmailSubscribers(ctx, c)
	if err != nil {
		d.logger.Error("email subscriber selection failed", "case_id", c.ID, "error", err)
		return []types.DeliveryResult{types.FailedDelivery(types.ChannelEmail, "", err)}
	}
	results := make([]types.DeliveryResult, 0, len(subs))
	for _, addr := range selector.EmailAddresses(subs) {
		results = append(results, d.email.Send(ctx, addr, subject, body))
	}
	return results
}

func (d *Dispatcher) smsLeg(ctx context.Context, location, body string) []types.DeliveryResult {
	subs, err := d.selector.SelectSMSSubscribers(ctx, location)
	if err != nil {
		d.logger.Error("sms subscriber selection failed", "error", err)
		return []types.DeliveryResult{types.FailedDelivery(types.ChannelSMS, "", err)}
	}
	if len(subs) == 0 {
		return nil
	}
	return d.sms.SendAlert(ctx, body, selector.PhoneNumbers(subs))
}

// finish records the audit trail, metrics and a summary log line. Failures
// here never change the report.
func (d *Dispatcher) finish(ctx context.Context, report *Report, eventID string, emailResults, smsResults []types.DeliveryResult, start time.Time) {
	now := d.clock.Now()
	d.recordAlertLog(ctx, report.EventKind, eventID, now, emailResults, smsResults)

	emailFailed := len(emailResults) - report.EmailsSent
	smsFailed := len(smsResults) - report.SMSSent
	if len(emailResults) > 0 {
		d.metrics.RecordDeliveries(ctx, report.EventKind, types.ChannelEmail, report.EmailsSent, emailFailed)
	}
	if len(smsResults) > 0 {
		d.metrics.RecordDeliveries(ctx, report.EventKind, types.ChannelSMS, report.SMSSent, smsFailed)
	}
	d.metrics.RecordDispatch(ctx, report.EventKind, now.Sub(start))

	d.logger.Info("dispatch complete",
		"event_kind", string(report.EventKind),
		"case_id", report.CaseID,
		"sighting_id", report.SightingID,
		"emails_sent", report.EmailsSent,
		"sms_sent", report.SMSSent,
		"errors", len(report.Errors),
	)
}

func (d *Dispatcher) recordAlertLog(ctx context.Context, kind types.EventKind, eventID string, at time.Time, batches ...[]types.DeliveryResult) {
	if d.alertLog == nil {
		return
	}
	var entries []types.AlertLogEntry
	for _, batch := range batches {
		for _, r := range batch {
			if r.Recipient == "" {
				continue
			}
			entries = append(entries, types.AlertLogEntry{
				EventKind:  kind,
				EventID:    eventID,
				Channel:    r.Channel,
				Recipient:  r.Recipient,
				Success:    r.Success,
				ProviderID: r.ProviderID,
				Error:      r.Error,
				CreatedAt:  at,
			})
		}
	}
	if len(entries) == 0 {
		return
	}
	if err := d.alertLog.Record(ctx, entries); err != nil {
		d.logger.Warn("failed to write alert log", "event_id", eventID, "entries", len(entries), "error", err)
	}
}

// tally counts successes and appends failures to errs.
func tally(results []types.DeliveryResult, errs []types.DeliveryResult) (int, []types.DeliveryResult) {
	sent := 0
	for _, r := range results {
		if r.Success {
			sent++
			continue
		}
		errs = append(errs, r)
	}
	return sent, errs
}
