package dispatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"amberline/internal/types"
)

// Metric and dimension names.
const (
	MetricDeliverySuccess = "DeliverySuccess"
	MetricDeliveryFailure = "DeliveryFailure"
	MetricDispatchLatency = "DispatchLatency"
	MetricQueueLag        = "AlertQueueLag"

	DimEventKind = "EventKind"
	DimChannel   = "Channel"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes dispatch telemetry. Publish failures are
// logged and otherwise ignored.
//
// Metrics emitted:
//   - DeliverySuccess / DeliveryFailure: Dims {EventKind, Channel}
//   - DispatchLatency: Dims {EventKind}
//   - AlertQueueLag: no dims
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a publisher for namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = types.NewSlogLogger(nil)
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordDeliveries emits success and failure counts for one channel of one
// dispatch in a single call.
func (m *CloudWatchMetrics) RecordDeliveries(ctx context.Context, kind types.EventKind, channel types.ChannelType, sent, failed int) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimEventKind), Value: aws.String(string(kind))},
		{Name: aws.String(DimChannel), Value: aws.String(string(channel))},
	}
	m.put(ctx, "delivery",
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricDeliverySuccess),
			Value:      aws.Float64(float64(sent)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricDeliveryFailure),
			Value:      aws.Float64(float64(failed)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	)
}

// RecordDispatch emits end-to-end dispatch duration in milliseconds.
func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, kind types.EventKind, duration time.Duration) {
	m.put(ctx, "dispatch latency", cwtypes.MetricDatum{
		MetricName: aws.String(MetricDispatchLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimEventKind), Value: aws.String(string(kind))},
		},
	})
}

// RecordQueueLag emits the time between enqueue and the worker picking the
// message up.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, "queue lag", cwtypes.MetricDatum{
		MetricName: aws.String(MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, what string, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("failed to record "+what+" metric", "error", err.Error())
	}
}

// NoopMetrics discards everything. Used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) RecordDeliveries(context.Context, types.EventKind, types.ChannelType, int, int) {}
func (NoopMetrics) RecordDispatch(context.Context, types.EventKind, time.Duration)                 {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)                                  {}
