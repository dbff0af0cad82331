package usage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgate/gateway/internal/pricing"
)

func testCatalog(t *testing.T) *pricing.Catalog {
	t.Helper()
	dir := t.TempDir()
	content := `
provider: openai
currency: USD
models:
  gpt-4o:
    input: 2.5
    output: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "openai.yaml"), []byte(content), 0644))

	cat, err := pricing.Load(dir)
	require.NoError(t, err)
	return cat
}

func TestStore_Record_IdempotentOnRequestID(t *testing.T) {
	store, err := Open(":memory:", testCatalog(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	tokens := pricing.TokenCounts{Input: 1000, Output: 500}

	_, err = store.Record(ctx, "req-1", "openai", "gpt-4o", tokens, now)
	require.NoError(t, err)
	_, err = store.Record(ctx, "req-1", "openai", "gpt-4o", tokens, now)
	require.NoError(t, err)

	result, err := store.Query(ctx, now.Add(-time.Hour), now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalRequests)
}

func TestStore_Record_ZeroCostOnPricingMiss(t *testing.T) {
	store, err := Open(":memory:", testCatalog(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	tokens := pricing.TokenCounts{Input: 1000, Output: 500}

	_, err = store.Record(ctx, "req-unknown", "anthropic", "claude-unknown", tokens, now)
	require.NoError(t, err)

	result, err := store.Query(ctx, now.Add(-time.Hour), now.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, float64(0), result.Records[0].TotalCost)
	assert.Equal(t, 1500, result.Records[0].TotalTokens)
}

func TestStore_Query_AggregatesByProviderAndModel(t *testing.T) {
	store, err := Open(":memory:", testCatalog(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	_, err = store.Record(ctx, "req-1", "openai", "gpt-4o", pricing.TokenCounts{Input: 1_000_000}, now)
	require.NoError(t, err)
	_, err = store.Record(ctx, "req-2", "openai", "gpt-4o", pricing.TokenCounts{Output: 1_000_000}, now)
	require.NoError(t, err)

	result, err := store.Query(ctx, now.Add(-time.Hour), now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalRequests)
	assert.InDelta(t, 12.5, result.CostByProvider["openai"], 0.001)
	assert.InDelta(t, 12.5, result.CostByModel["gpt-4o"], 0.001)
}

func TestStore_CSVExport_HeaderFrozen(t *testing.T) {
	store, err := Open(":memory:", testCatalog(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	_, err = store.Record(ctx, "req-1", "openai", "gpt-4o", pricing.TokenCounts{Input: 100, Output: 50}, now)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.CSVExport(ctx, &buf, now.Add(-time.Hour), now.Add(time.Hour)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,request_id,provider,model,timestamp,input_tokens,cache_write_input_tokens,cache_read_input_tokens,output_tokens,total_tokens,input_cost,cache_write_cost,cache_read_cost,output_cost,total_cost,currency,created_at", lines[0])
}

func TestParseRange_DefaultsToLastSevenDays(t *testing.T) {
	start, end, err := ParseRange("", "", "")
	require.NoError(t, err)
	assert.InDelta(t, 7*24*time.Hour.Hours(), end.Sub(start).Hours(), 0.01)
}

func TestParseRange_RejectsBadTimezone(t *testing.T) {
	_, _, err := ParseRange("", "", "Not/AZone")
	require.Error(t, err)
}

func TestParseRange_RejectsBadRFC3339(t *testing.T) {
	_, _, err := ParseRange("not-a-date", "2026-01-01T00:00:00Z", "")
	require.Error(t, err)
}

func TestParseRange_RejectsEndBeforeStart(t *testing.T) {
	_, _, err := ParseRange("2026-01-02T00:00:00Z", "2026-01-01T00:00:00Z", "")
	require.Error(t, err)
}
