package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amberline/internal/config"
	"amberline/internal/types"
)

type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/amberline-alerts"

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestTrigger(m *mockSQSSender) *AlertTrigger {
	tr := NewAlertTrigger(m, config.AWSConfig{AlertQueue: testQueueURL}, nil)
	tr.now = func() time.Time { return fixedNow }
	return tr
}

func decodeBody(t *testing.T, in *sqs.SendMessageInput) types.AlertMessage {
	t.Helper()
	var msg types.AlertMessage
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &msg))
	return msg
}

func TestEnqueueCaseAlert(t *testing.T) {
	m := &mockSQSSender{}
	tr := newTestTrigger(m)

	require.NoError(t, tr.EnqueueCaseAlert(context.Background(), "case-1"))

	require.Len(t, m.calls, 1)
	assert.Equal(t, testQueueURL, *m.calls[0].QueueUrl)
	assert.Equal(t, "case_created", *m.calls[0].MessageAttributes["event_kind"].StringValue)

	msg := decodeBody(t, m.calls[0])
	assert.Equal(t, types.EventCaseCreated, msg.EventKind)
	assert.Equal(t, "case-1", msg.CaseID)
	assert.Empty(t, msg.SightingID)
	assert.Equal(t, fixedNow, msg.EnqueuedAt)
	assert.NotEmpty(t, msg.TraceID)
}

func TestEnqueueSightingAlert(t *testing.T) {
	m := &mockSQSSender{}
	tr := newTestTrigger(m)
	ctx := types.WithRequestID(context.Background(), "req-42")

	require.NoError(t, tr.EnqueueSightingAlert(ctx, "case-1", "s-1"))

	msg := decodeBody(t, m.calls[0])
	assert.Equal(t, types.EventSightingVerified, msg.EventKind)
	assert.Equal(t, "s-1", msg.SightingID)
	assert.Equal(t, "req-42", msg.TraceID)
}

func TestEnqueue_MissingIdentifier(t *testing.T) {
	m := &mockSQSSender{}
	tr := newTestTrigger(m)

	err := tr.EnqueueSightingAlert(context.Background(), "case-1", "")

	assert.True(t, types.IsCode(err, types.ErrCodeValidationMissingField))
	assert.Empty(t, m.calls)
}

func TestEnqueue_SQSFailure(t *testing.T) {
	sqsErr := errors.New("throttled")
	m := &mockSQSSender{err: sqsErr}
	tr := newTestTrigger(m)

	err := tr.EnqueueCaseAlert(context.Background(), "case-1")

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamUnavailable))
	assert.ErrorIs(t, err, sqsErr)
}
