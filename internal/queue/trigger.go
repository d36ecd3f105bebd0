// Package queue provides the SQS producer that hands alert dispatches to the
// alert worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"amberline/internal/config"
	"amberline/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AlertTrigger enqueues alert dispatches by identifier. The worker reloads
// the case and sighting when it picks the message up, so a message never
// carries stale record content.
type AlertTrigger struct {
	client   SQSSender
	queueURL string
	now      func() time.Time
	logger   *slog.Logger
}

// NewAlertTrigger creates an AlertTrigger sending to the alert queue named in
// awsCfg.
func NewAlertTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *AlertTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertTrigger{
		client:   client,
		queueURL: awsCfg.AlertQueue,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// EnqueueCaseAlert schedules the new-case fan-out for caseID.
func (t *AlertTrigger) EnqueueCaseAlert(ctx context.Context, caseID string) error {
	return t.send(ctx, types.AlertMessage{
		EventKind: types.EventCaseCreated,
		CaseID:    caseID,
	})
}

// EnqueueSightingAlert schedules the sighting SMS fan-out. caseID is carried
// for log correlation only.
func (t *AlertTrigger) EnqueueSightingAlert(ctx context.Context, caseID, sightingID string) error {
	return t.send(ctx, types.AlertMessage{
		EventKind:  types.EventSightingVerified,
		CaseID:     caseID,
		SightingID: sightingID,
	})
}

func (t *AlertTrigger) send(ctx context.Context, msg types.AlertMessage) error {
	msg.EnqueuedAt = t.now()
	if msg.TraceID == "" {
		msg.TraceID = types.GetRequestID(ctx)
	}
	if msg.TraceID == "" {
		msg.TraceID = uuid.NewString()
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal AlertMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.EventKind)),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("failed to enqueue %s alert", msg.EventKind), err)
	}

	t.logger.InfoContext(ctx, "alert message enqueued",
		"event_kind", string(msg.EventKind),
		"case_id", msg.CaseID,
		"sighting_id", msg.SightingID,
		"trace_id", msg.TraceID,
	)
	return nil
}
