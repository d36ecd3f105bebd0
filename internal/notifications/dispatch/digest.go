package dispatch

import (
	"context"
	"fmt"
	"time"

	"amberline/internal/notifications/selector"
	"amberline/internal/types"
)

// DigestReport is the outcome of one digest run. DigestSent counts
// successful SMS deliveries.
type DigestReport struct {
	Cutoff        time.Time              `json:"cutoff"`
	CasesIncluded int                    `json:"cases_included"`
	DigestSent    int                    `json:"digest_sent"`
	Errors        []types.DeliveryResult `json:"errors"`
}

// DispatchDigest sends one combined summary of cases still missing and
// created at or after cutoff. No qualifying cases means no sends at all.
func (d *Dispatcher) DispatchDigest(ctx context.Context, cutoff time.Time) (*DigestReport, error) {
	start := d.clock.Now()
	report := &DigestReport{Cutoff: cutoff}

	cases, err := d.cases.ListMissingSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list cases since %s: %w", cutoff.Format(time.RFC3339), err)
	}
	report.CasesIncluded = len(cases)
	if len(cases) == 0 {
		d.logger.Info("digest skipped, no new cases", "cutoff", cutoff.Format(time.RFC3339))
		return report, nil
	}

	subs, err := d.selector.SelectDigestSubscribers(ctx, d.digestFreq)
	if err != nil {
		return nil, fmt.Errorf("select digest subscribers: %w", err)
	}
	if len(subs) == 0 {
		d.logger.Info("digest skipped, no subscribers", "frequency", string(d.digestFreq))
		return report, nil
	}

	results := d.sms.SendAlert(ctx, d.formatter.Digest(cases), selector.PhoneNumbers(subs))
	report.DigestSent, report.Errors = tally(results, report.Errors)

	now := d.clock.Now()
	eventID := fmt.Sprintf("digest-%s", cutoff.UTC().Format("20060102T150405Z"))
	d.recordAlertLog(ctx, types.EventDigest, eventID, now, results)
	d.metrics.RecordDeliveries(ctx, types.EventDigest, types.ChannelSMS, report.DigestSent, len(results)-report.DigestSent)
	d.metrics.RecordDispatch(ctx, types.EventDigest, now.Sub(start))

	d.logger.Info("digest complete",
		"cutoff", cutoff.Format(time.RFC3339),
		"cases", report.CasesIncluded,
		"digest_sent", report.DigestSent,
		"errors", len(report.Errors),
	)
	return report, nil
}
