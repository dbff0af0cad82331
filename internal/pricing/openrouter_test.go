package pricing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	resp openRouterModelsResponse
	err  error
}

func (f fakeFetcher) FetchModels(ctx context.Context) (openRouterModelsResponse, error) {
	return f.resp, f.err
}

func newFakeResponse() openRouterModelsResponse {
	var resp openRouterModelsResponse
	resp.Data = append(resp.Data, struct {
		ID      string `json:"id"`
		Pricing struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
	}{ID: "meta-llama/llama-3.1-70b-instruct"})
	resp.Data[0].Pricing.Prompt = "0.0000005"
	resp.Data[0].Pricing.Completion = "0.0000008"
	return resp
}

func TestRefresh_PopulatesCatalogAndWritesSnapshot(t *testing.T) {
	catalog := &Catalog{table: make(map[string]*providerTable)}
	snapshotPath := filepath.Join(t.TempDir(), "openrouter.yaml")

	r := NewRefresher(catalog, fakeFetcher{resp: newFakeResponse()}, snapshotPath, time.Hour, nil)
	require.NoError(t, r.Refresh(context.Background()))

	entry, currency, ok := catalog.Lookup("openrouter", "meta-llama/llama-3.1-70b-instruct")
	require.True(t, ok)
	assert.Equal(t, "USD", currency)
	assert.InDelta(t, 0.5, entry.Input, 0.0001)
	assert.InDelta(t, 0.8, entry.Output, 0.0001)
}

func TestRefresh_LeavesCatalogIntactOnFetchFailure(t *testing.T) {
	catalog := &Catalog{table: make(map[string]*providerTable)}
	catalog.SetModel("openrouter", "existing-model", Entry{Input: 1}, "USD")

	r := NewRefresher(catalog, fakeFetcher{err: assertError{}}, "", time.Hour, nil)
	err := r.Refresh(context.Background())
	require.Error(t, err)

	_, _, ok := catalog.Lookup("openrouter", "existing-model")
	assert.True(t, ok)
}

type assertError struct{}

func (assertError) Error() string { return "fetch failed" }

func TestParsePerTokenUSD(t *testing.T) {
	assert.Equal(t, 0.0000005, parsePerTokenUSD("0.0000005"))
	assert.Equal(t, float64(0), parsePerTokenUSD(""))
	assert.Equal(t, float64(0), parsePerTokenUSD("not-a-number"))
}
