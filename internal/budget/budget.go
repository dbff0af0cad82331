// Package budget implements the advisory-only monthly budget (spec
// §4.J): a single persisted row merged with the current month's spend
// from the usage store. The gateway never blocks a request on budget —
// it only reports status and, optionally, emits a warning.
package budget

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/llmgate/gateway/internal/gatewayerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS budget (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	amount_usd REAL,
	alert_only INTEGER NOT NULL DEFAULT 1
);
`

// Settings is the persisted budget row. AmountUSD is nil when budget
// enforcement is disabled (spec §4.J: "amountUsd = null disables budget
// enforcement entirely").
type Settings struct {
	AmountUSD *float64 `json:"amountUsd"`
	AlertOnly bool     `json:"alertOnly"`
}

// Status is what GET /budget returns: the settings merged with the
// current month's spend. Remaining is nil whenever AmountUSD is nil
// (spec §6: "remaining" is only meaningful once a budget is set).
type Status struct {
	Settings
	SpentMonthToDate float64  `json:"spentMonthToDate"`
	Remaining        *float64 `json:"remaining"`
}

// UsageSpend is the subset of internal/usage.Store that Service needs —
// declared here rather than imported directly so budget never depends on
// usage's sqlite wiring for anything but this one query.
type UsageSpend interface {
	SpendSince(ctx context.Context, since time.Time) (float64, error)
}

// Service is the budget store. It shares the usage store's *sql.DB rather
// than opening a second connection, since sqlite only tolerates one
// writer per process (spec §5).
type Service struct {
	db    *sql.DB
	spend UsageSpend
}

// Open runs the budget schema against db (the same handle internal/usage
// opened) and returns a Service backed by spend for the current-month
// aggregate.
func Open(db *sql.DB, spend UsageSpend) (*Service, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, gatewayerr.StorageError(fmt.Errorf("migrating budget schema: %w", err))
	}
	return &Service{db: db, spend: spend}, nil
}

// GetStatus implements getBudgetStatus() (spec §4.J): stored settings
// merged with spend = sum(total_cost) since the start of the current
// month.
func (s *Service) GetStatus(ctx context.Context) (*Status, error) {
	settings, err := s.get(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	spent, err := s.spend.SpendSince(ctx, startOfMonth)
	if err != nil {
		return nil, err
	}

	var remaining *float64
	if settings.AmountUSD != nil {
		r := *settings.AmountUSD - spent
		remaining = &r
	}

	return &Status{Settings: *settings, SpentMonthToDate: spent, Remaining: remaining}, nil
}

func (s *Service) get(ctx context.Context) (*Settings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT amount_usd, alert_only FROM budget WHERE id = 1`)

	var amount sql.NullFloat64
	var alertOnly bool
	err := row.Scan(&amount, &alertOnly)
	if err == sql.ErrNoRows {
		return &Settings{AlertOnly: true}, nil
	}
	if err != nil {
		return nil, gatewayerr.StorageError(fmt.Errorf("reading budget row: %w", err))
	}

	settings := &Settings{AlertOnly: alertOnly}
	if amount.Valid {
		settings.AmountUSD = &amount.Float64
	}
	return settings, nil
}

// Upsert implements upsertBudget(amountUsd, alertOnly) (spec §4.J):
// amountUsd must be nil or >= 0; there is only ever one active budget row.
func (s *Service) Upsert(ctx context.Context, amountUSD *float64, alertOnly bool) error {
	if amountUSD != nil && *amountUSD < 0 {
		return gatewayerr.InvalidInput("amountUsd must be >= 0 or null, got %v", *amountUSD)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget (id, amount_usd, alert_only) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET amount_usd = excluded.amount_usd, alert_only = excluded.alert_only
	`, nullableFloat(amountUSD), alertOnly)
	if err != nil {
		return gatewayerr.StorageError(fmt.Errorf("upserting budget row: %w", err))
	}
	return nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// CheckCrossing logs a structured warning if status.SpentMonthToDate plus the cost of
// an about-to-complete request would cross the configured limit (spec
// §4.J: "the pipeline emits a structured warning event"; enforcement
// itself is never performed here). A nil AmountUSD or AlertOnly=true both
// mean no warning is ever worth emitting.
func (s *Service) CheckCrossing(status *Status, requestCost float64) {
	if status.AmountUSD == nil || status.AlertOnly {
		return
	}
	if status.SpentMonthToDate <= *status.AmountUSD && status.SpentMonthToDate+requestCost > *status.AmountUSD {
		log.Printf("[budget] warning: request would cross monthly budget: spent=%.6f + request=%.6f > limit=%.6f",
			status.SpentMonthToDate, requestCost, *status.AmountUSD)
	}
}
