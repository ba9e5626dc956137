package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWebhookEvent(t *testing.T) {
	c := New()
	c.RecordWebhookEvent("invoice.paid", "applied")
	c.RecordWebhookEvent("invoice.paid", "applied")
	c.RecordWebhookEvent("invoice.paid", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.WebhookEvents.WithLabelValues("invoice.paid", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.WebhookEvents.WithLabelValues("invoice.paid", "failed")))
}

func TestRecordProcessorCall(t *testing.T) {
	c := New()
	c.RecordProcessorCall("cancel_subscription", nil, time.Millisecond)
	c.RecordProcessorCall("cancel_subscription", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ProcessorCalls.WithLabelValues("cancel_subscription", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ProcessorCalls.WithLabelValues("cancel_subscription", "error")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordWebhookEvent("invoice.paid", "applied")
		c.RecordProcessorCall("list_subscriptions", nil, time.Second)
		c.RecordCleanupCanceled(2)
		c.RecordHTTPRequest("GET", "GET /healthz", 200, time.Second)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.RecordCleanupCanceled(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "matchday_cleanup_canceled_subscriptions_total 3")
}
