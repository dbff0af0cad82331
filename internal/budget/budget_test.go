package budget

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetStatus_DefaultsWhenNoRowExists(t *testing.T) {
	svc, err := Open(openTestDB(t), zeroSpend{})
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.AmountUSD)
	assert.True(t, status.AlertOnly)
	assert.Equal(t, float64(0), status.SpentMonthToDate)
	assert.Nil(t, status.Remaining)
}

// TestGetStatus_ComputesRemaining exercises scenario S5: amountUsd=10,
// alertOnly=false, one recorded month-to-date spend of 3.5 should yield
// remaining=6.5.
func TestGetStatus_ComputesRemaining(t *testing.T) {
	svc, err := Open(openTestDB(t), fixedSpend{amount: 3.5})
	require.NoError(t, err)

	amount := 10.0
	require.NoError(t, svc.Upsert(context.Background(), &amount, false))

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, *status.AmountUSD)
	assert.False(t, status.AlertOnly)
	assert.Equal(t, 3.5, status.SpentMonthToDate)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, 6.5, *status.Remaining)
}

type fixedSpend struct{ amount float64 }

func (f fixedSpend) SpendSince(ctx context.Context, since time.Time) (float64, error) {
	return f.amount, nil
}

func TestUpsert_RejectsNegativeAmount(t *testing.T) {
	svc, err := Open(openTestDB(t), zeroSpend{})
	require.NoError(t, err)

	negative := -1.0
	err = svc.Upsert(context.Background(), &negative, false)
	require.Error(t, err)
}

func TestUpsert_PersistsAndOverwrites(t *testing.T) {
	svc, err := Open(openTestDB(t), zeroSpend{})
	require.NoError(t, err)

	amount := 100.0
	require.NoError(t, svc.Upsert(context.Background(), &amount, false))

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.AmountUSD)
	assert.Equal(t, 100.0, *status.AmountUSD)
	assert.False(t, status.AlertOnly)

	require.NoError(t, svc.Upsert(context.Background(), nil, true))
	status, err = svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.AmountUSD)
	assert.True(t, status.AlertOnly)
}

type zeroSpend struct{}

func (zeroSpend) SpendSince(ctx context.Context, since time.Time) (float64, error) {
	return 0, nil
}

func TestCheckCrossing_NoWarningWhenDisabledOrAlertOnly(t *testing.T) {
	svc := &Service{}
	svc.CheckCrossing(&Status{Settings: Settings{AmountUSD: nil}}, 10)

	limit := 5.0
	svc.CheckCrossing(&Status{Settings: Settings{AmountUSD: &limit, AlertOnly: true}, SpentMonthToDate: 4}, 10)
}
