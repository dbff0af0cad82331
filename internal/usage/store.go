// Package usage implements the embedded usage ledger (spec §4.I): one
// SQL table, idempotent inserts keyed on request id, and the aggregate
// queries the /usage HTTP surface and the budget service read from.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/llmgate/gateway/internal/gatewayerr"
	"github.com/llmgate/gateway/internal/pricing"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL UNIQUE,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	cache_write_input_tokens INTEGER NOT NULL,
	cache_read_input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	input_cost REAL NOT NULL,
	cache_write_cost REAL NOT NULL,
	cache_read_cost REAL NOT NULL,
	output_cost REAL NOT NULL,
	total_cost REAL NOT NULL,
	currency TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_records(provider);
CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model);
CREATE INDEX IF NOT EXISTS idx_usage_total_cost ON usage_records(total_cost);
`

// Record is one row of usage_records, in the column order frozen for CSV
// export (SPEC_FULL.md §13(c)).
type Record struct {
	ID                    int64     `json:"id"`
	RequestID             string    `json:"requestId"`
	Provider              string    `json:"provider"`
	Model                 string    `json:"model"`
	Timestamp             time.Time `json:"timestamp"`
	InputTokens           int       `json:"inputTokens"`
	CacheWriteInputTokens int       `json:"cacheWriteInputTokens"`
	CacheReadInputTokens  int       `json:"cacheReadInputTokens"`
	OutputTokens          int       `json:"outputTokens"`
	TotalTokens           int       `json:"totalTokens"`
	InputCost             float64   `json:"inputCost"`
	CacheWriteCost        float64   `json:"cacheWriteCost"`
	CacheReadCost         float64   `json:"cacheReadCost"`
	OutputCost            float64   `json:"outputCost"`
	TotalCost             float64   `json:"totalCost"`
	Currency              string    `json:"currency"`
	CreatedAt             time.Time `json:"createdAt"`
}

// Store is the single-writer, concurrent-reader usage ledger (spec §5:
// "the DB library's internal lock is the serialisation point"). A single
// *sql.DB with MaxOpenConns(1) is how modernc.org/sqlite's single-process
// writer constraint is enforced here, since the driver itself does not
// queue concurrent writers the way a client/server database would.
type Store struct {
	db      *sql.DB
	catalog *pricing.Catalog
}

// Open creates (if needed) the sqlite file at path, runs the schema, and
// returns a Store backed by catalog for cost computation.
func Open(path string, catalog *pricing.Catalog) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, gatewayerr.StorageError(fmt.Errorf("opening %q: %w", path, err))
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, gatewayerr.StorageError(fmt.Errorf("migrating schema: %w", err))
	}

	return &Store{db: db, catalog: catalog}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle so internal/budget can share the same
// sqlite connection rather than opening a second writer against the same
// file (spec §5: sqlite tolerates exactly one writer per process).
func (s *Store) DB() *sql.DB { return s.db }

// SpendSince returns sum(total_cost) for records at or after since,
// satisfying internal/budget's UsageSpend interface (spec §4.J:
// "spent = sum(total_cost) WHERE timestamp >= start-of-current-month").
func (s *Store) SpendSince(ctx context.Context, since time.Time) (float64, error) {
	var spent sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(total_cost) FROM usage_records WHERE timestamp >= ?`,
		since.UTC().Format(time.RFC3339Nano)).Scan(&spent)
	if err != nil {
		return 0, gatewayerr.StorageError(fmt.Errorf("summing spend: %w", err))
	}
	return spent.Float64, nil
}

// Record computes cost via the pricing catalog and inserts one usage row,
// idempotently on requestID (spec §4.I: "duplicate insert is ignored, not
// overwritten"). A pricing miss does not fail the request (Open Question
// (b)): the row is inserted with zero costs and a warning is logged.
func (s *Store) Record(ctx context.Context, requestID, provider, model string, tokens pricing.TokenCounts, timestamp time.Time) (float64, error) {
	entry, currency, ok := s.catalog.Lookup(provider, model)
	if !ok {
		log.Printf("[usage] no pricing for provider=%s model=%s, recording zero cost", provider, model)
		if currency == "" {
			currency = "USD"
		}
	}
	cost := pricing.Compute(tokens, entry)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (
			request_id, provider, model, timestamp,
			input_tokens, cache_write_input_tokens, cache_read_input_tokens, output_tokens, total_tokens,
			input_cost, cache_write_cost, cache_read_cost, output_cost, total_cost, currency
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING
	`,
		requestID, provider, model, timestamp.UTC().Format(time.RFC3339Nano),
		tokens.Input, tokens.CacheWrite, tokens.CacheRead, tokens.Output, tokens.Total(),
		cost.Input, cost.CacheWrite, cost.CacheRead, cost.Output, cost.Total, currency,
	)
	if err != nil {
		return 0, gatewayerr.StorageError(fmt.Errorf("inserting usage record: %w", err))
	}
	return cost.Total, nil
}

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var r Record
	var ts, createdAt string
	err := row.Scan(
		&r.ID, &r.RequestID, &r.Provider, &r.Model, &ts,
		&r.InputTokens, &r.CacheWriteInputTokens, &r.CacheReadInputTokens, &r.OutputTokens, &r.TotalTokens,
		&r.InputCost, &r.CacheWriteCost, &r.CacheReadCost, &r.OutputCost, &r.TotalCost, &r.Currency, &createdAt,
	)
	if err != nil {
		return Record{}, err
	}
	r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return r, nil
}

const recordColumns = `id, request_id, provider, model, timestamp,
	input_tokens, cache_write_input_tokens, cache_read_input_tokens, output_tokens, total_tokens,
	input_cost, cache_write_cost, cache_read_cost, output_cost, total_cost, currency, created_at`
