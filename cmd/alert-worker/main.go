// Package main is the alert worker Lambda. It consumes AlertMessages from
// the alerts SQS queue and runs the dispatcher for each one.
//
// A message that cannot be parsed, fails validation or names a record that
// no longer exists is acknowledged and dropped. Any other dispatch failure
// happens before the first send, so the message is reported as a batch item
// failure and SQS redelivers it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"amberline/internal/app"
	"amberline/internal/config"
	"amberline/internal/notifications/dispatch"
	"amberline/internal/types"
)

// AlertDispatcher runs one dispatch. Implemented by dispatch.Dispatcher.
type AlertDispatcher interface {
	DispatchCaseAlert(ctx context.Context, caseID string) (*dispatch.Report, error)
	DispatchSightingAlert(ctx context.Context, sightingID string) (*dispatch.Report, error)
}

// QueueLagRecorder receives the enqueue-to-pickup delay.
type QueueLagRecorder interface {
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// Handler holds the dependencies for the alert worker.
type Handler struct {
	dispatcher AlertDispatcher
	metrics    QueueLagRecorder
	now        func() time.Time
	logger     types.Logger
}

// Handle processes a batch. Lambda's partial batch response lets SQS retry
// only the failed records.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process alert message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.AlertMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("dropping unparseable alert message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}
	if err := msg.Validate(); err != nil {
		h.logger.Error("dropping invalid alert message",
			"message_id", record.MessageId,
			"event_kind", string(msg.EventKind),
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"message_id", record.MessageId,
		"event_kind", string(msg.EventKind),
		"case_id", msg.CaseID,
		"sighting_id", msg.SightingID,
		"trace_id", msg.TraceID,
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, h.now().Sub(sentAt))
		}
	}

	var (
		report *dispatch.Report
		err    error
	)
	switch msg.EventKind {
	case types.EventCaseCreated:
		report, err = h.dispatcher.DispatchCaseAlert(ctx, msg.CaseID)
	case types.EventSightingVerified:
		report, err = h.dispatcher.DispatchSightingAlert(ctx, msg.SightingID)
	}
	if err != nil {
		if types.IsNotFound(err) {
			logger.Warn("alert target no longer exists, dropping message", "error", err.Error())
			return nil
		}
		return fmt.Errorf("dispatch %s: %w", msg.EventKind, err)
	}

	logger.Info("alert dispatched",
		"emails_sent", report.EmailsSent,
		"sms_sent", report.SMSSent,
		"errors", len(report.Errors),
	)
	return nil
}

// parseMillisTimestamp parses the SQS SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("alert worker initializing (cold start)", "version", cfg.Build.Version)

	ctx := context.Background()
	awsCfg, err := app.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return err
	}
	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	var metrics dispatch.Metrics = dispatch.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = dispatch.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace, types.NewSlogLogger(logger.With("component", "metrics")))
	}

	gw := app.NewGateways(cfg, awsCfg, logger)
	handler := &Handler{
		dispatcher: app.NewDispatcher(cfg, pool, gw, metrics, logger),
		metrics:    metrics,
		now:        time.Now,
		logger:     types.NewSlogLogger(logger),
	}

	// Local mode reads one SQS event from stdin instead of starting the
	// Lambda runtime:
	//   echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run ./cmd/alert-worker
	if cfg.Environment == "local" {
		return runOnce(ctx, handler, os.Stdin, os.Stderr)
	}

	lambda.Start(handler.Handle)
	return nil
}

func runOnce(ctx context.Context, h *Handler, in io.Reader, out io.Writer) error {
	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(payload) == 0 {
		return errors.New("no input received on stdin")
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing stdin as SQS event: %w", err)
	}

	response, err := h.Handle(ctx, sqsEvent)
	if err != nil {
		return err
	}
	if len(response.BatchItemFailures) > 0 {
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(out, string(respJSON))
	}
	return nil
}
