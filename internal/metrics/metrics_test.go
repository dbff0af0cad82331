package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequest(t *testing.T) {
	requestsTotal.Reset()
	requestDuration.Reset()

	RecordRequest("openai", "gpt-4o", "adapter", "ok", 1.5)
	RecordRequest("openai", "gpt-4o", "adapter", "ok", 0.5)

	assert.Equal(t, float64(2), testutil.ToFloat64(requestsTotal.WithLabelValues("openai", "gpt-4o", "adapter", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(requestDuration))
}

func TestRecordTokens_SkipsZeroClasses(t *testing.T) {
	tokensTotal.Reset()

	RecordTokens("anthropic", "claude-3-5-sonnet-20241022", 100, 50, 0, 20)

	assert.Equal(t, float64(100), testutil.ToFloat64(tokensTotal.WithLabelValues("anthropic", "claude-3-5-sonnet-20241022", "input")))
	assert.Equal(t, float64(50), testutil.ToFloat64(tokensTotal.WithLabelValues("anthropic", "claude-3-5-sonnet-20241022", "output")))
	assert.Equal(t, float64(20), testutil.ToFloat64(tokensTotal.WithLabelValues("anthropic", "claude-3-5-sonnet-20241022", "cache_read")))
	assert.Equal(t, float64(0), testutil.ToFloat64(tokensTotal.WithLabelValues("anthropic", "claude-3-5-sonnet-20241022", "cache_write")))
}

func TestRecordCost_SkipsZero(t *testing.T) {
	costTotal.Reset()

	RecordCost("openai", "gpt-4o", 0)
	RecordCost("openai", "gpt-4o", 1.25)

	assert.Equal(t, 1.25, testutil.ToFloat64(costTotal.WithLabelValues("openai", "gpt-4o")))
}

func TestStreamOpenedClosed(t *testing.T) {
	streamsActive.Set(0)

	StreamOpened()
	StreamOpened()
	assert.Equal(t, float64(2), testutil.ToFloat64(streamsActive))

	StreamClosed()
	assert.Equal(t, float64(1), testutil.ToFloat64(streamsActive))
}

func TestNewRegistry_HandlerServesMetrics(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg.Handler())
}
