package usage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/llmgate/gateway/internal/gatewayerr"
)

const (
	defaultRangeDays = 7
	defaultLimit     = 100
)

// QueryResult is the aggregate the /usage HTTP surface renders to JSON
// (spec §4.I: "{totalRequests, totalCost, totalTokens, costByProvider,
// costByModel, records[]}").
type QueryResult struct {
	TotalRequests  int                `json:"totalRequests"`
	TotalCost      float64            `json:"totalCost"`
	TotalTokens    int                `json:"totalTokens"`
	CostByProvider map[string]float64 `json:"costByProvider"`
	CostByModel    map[string]float64 `json:"costByModel"`
	Records        []Record           `json:"records"`
}

// ParseRange validates the RFC-3339 start/end strings and the IANA
// timezone string from the /usage query params (spec §4.I: "validate
// RFC-3339 inputs and IANA timezone"). Empty start and end default to the
// last 7 days ending now, computed in the given timezone.
func ParseRange(startStr, endStr, tzStr string) (start, end time.Time, err error) {
	loc := time.UTC
	if tzStr != "" {
		loc, err = time.LoadLocation(tzStr)
		if err != nil {
			return time.Time{}, time.Time{}, gatewayerr.InvalidInput("invalid timezone %q: %v", tzStr, err)
		}
	}

	if startStr == "" && endStr == "" {
		end = time.Now().In(loc)
		start = end.AddDate(0, 0, -defaultRangeDays)
		return start, end, nil
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, gatewayerr.InvalidInput("invalid startTime %q: %v", startStr, err)
	}
	end, err = time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, gatewayerr.InvalidInput("invalid endTime %q: %v", endStr, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, gatewayerr.InvalidInput("endTime %q is before startTime %q", endStr, startStr)
	}
	return start, end, nil
}

// Query returns the aggregate usage over [start, end], with up to limit
// records (spec default 100) ordered by timestamp descending. limit <= 0
// uses the default.
func (s *Store) Query(ctx context.Context, start, end time.Time, limit int) (*QueryResult, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	result := &QueryResult{
		CostByProvider: make(map[string]float64),
		CostByModel:    make(map[string]float64),
	}

	startStr, endStr := start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano)

	aggRows, err := s.db.QueryContext(ctx, `
		SELECT provider, model, COUNT(*), SUM(total_cost), SUM(total_tokens)
		FROM usage_records
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY provider, model
	`, startStr, endStr)
	if err != nil {
		return nil, gatewayerr.StorageError(fmt.Errorf("querying usage aggregates: %w", err))
	}
	defer aggRows.Close()

	for aggRows.Next() {
		var provider, model string
		var count int
		var cost, tokens float64
		if err := aggRows.Scan(&provider, &model, &count, &cost, &tokens); err != nil {
			return nil, gatewayerr.StorageError(fmt.Errorf("scanning usage aggregate: %w", err))
		}
		result.TotalRequests += count
		result.TotalCost += cost
		result.TotalTokens += int(tokens)
		result.CostByProvider[provider] += cost
		result.CostByModel[model] += cost
	}
	if err := aggRows.Err(); err != nil {
		return nil, gatewayerr.StorageError(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM usage_records
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, startStr, endStr, limit)
	if err != nil {
		return nil, gatewayerr.StorageError(fmt.Errorf("querying usage records: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, gatewayerr.StorageError(fmt.Errorf("scanning usage record: %w", err))
		}
		result.Records = append(result.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayerr.StorageError(err)
	}

	return result, nil
}

// csvColumns is the frozen column order from SPEC_FULL.md §13(c). Changing
// this order changes every downstream export a caller has scripted
// against, so it is spelled out once here rather than derived from struct
// field order.
var csvColumns = []string{
	"id", "request_id", "provider", "model", "timestamp",
	"input_tokens", "cache_write_input_tokens", "cache_read_input_tokens", "output_tokens", "total_tokens",
	"input_cost", "cache_write_cost", "cache_read_cost", "output_cost", "total_cost", "currency", "created_at",
}

// CSVExport serializes every usage record in [start, end] as CSV, headers
// bit-identical across runs (spec §4.I).
func (s *Store) CSVExport(ctx context.Context, w io.Writer, start, end time.Time) error {
	startStr, endStr := start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM usage_records
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
	`, startStr, endStr)
	if err != nil {
		return gatewayerr.StorageError(fmt.Errorf("querying usage records for export: %w", err))
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return gatewayerr.StorageError(fmt.Errorf("scanning usage record for export: %w", err))
		}
		row := []string{
			strconv.FormatInt(rec.ID, 10), rec.RequestID, rec.Provider, rec.Model, rec.Timestamp.Format(time.RFC3339Nano),
			strconv.Itoa(rec.InputTokens), strconv.Itoa(rec.CacheWriteInputTokens), strconv.Itoa(rec.CacheReadInputTokens),
			strconv.Itoa(rec.OutputTokens), strconv.Itoa(rec.TotalTokens),
			strconv.FormatFloat(rec.InputCost, 'f', 6, 64), strconv.FormatFloat(rec.CacheWriteCost, 'f', 6, 64),
			strconv.FormatFloat(rec.CacheReadCost, 'f', 6, 64), strconv.FormatFloat(rec.OutputCost, 'f', 6, 64),
			strconv.FormatFloat(rec.TotalCost, 'f', 6, 64), rec.Currency, rec.CreatedAt.Format(time.RFC3339Nano),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return gatewayerr.StorageError(err)
	}

	cw.Flush()
	return cw.Error()
}
