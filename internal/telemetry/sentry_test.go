package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestSampleRate(t *testing.T) {
	ctx := context.Background()

	health := sentry.StartSpan(ctx, "http.server", sentry.WithTransactionName("GET /health"))
	assert.Equal(t, 0.0, sampleRate(health, 0.5))

	stream := sentry.StartSpan(ctx, "http.server", sentry.WithTransactionName("GET /stream"))
	assert.Equal(t, 0.0, sampleRate(stream, 0.5))

	root := sentry.StartSpan(ctx, "http.server", sentry.WithTransactionName("POST /tickets/{id}/responses"))
	assert.Equal(t, 0.5, sampleRate(root, 0.5))
}

func TestSpansWithoutClient(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "ReviewGate.Apply", SpanAttributes{ResponseID: "r-1", Operation: "approve"})
	require.NotNil(t, span)
	assert.NotNil(t, sentry.SpanFromContext(ctx))

	_, child := StartSpan(ctx, "child", SpanAttributes{})
	child.SetError(errors.New("boom"))
	child.End()
	span.End()

	_, tx := StartTransaction(context.Background(), "DeliveryWorker.ProcessJobs", "queue.process")
	tx.End()

	CaptureError(ctx, errors.New("boom"))
	CaptureMessage(ctx, "delivery abandoned")
	AddBreadcrumb(ctx, "review", "approve r-1")

	var zero Span
	zero.End()
	zero.SetError(errors.New("ignored"))
}
