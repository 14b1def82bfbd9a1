package settlement

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
	"github.com/dvloznov/budget-tracker/internal/store/inmemory"
)

var monday = civil.Date{Year: 2026, Month: 3, Day: 2}

func newFixture(t *testing.T) (*Processor, *inmemory.Store, *domain.Account) {
	t.Helper()
	s := inmemory.NewStore()
	account, err := s.CreateAccount(context.Background(), &domain.Account{
		OwnerID:  "owner-1",
		Name:     "Current",
		Currency: "GBP",
		Balance:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	return NewProcessor(s, zerolog.Nop()), s, account
}

func TestRun_EmptyOwner(t *testing.T) {
	p, s, _ := newFixture(t)
	ctx := context.Background()

	summary, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.False(t, summary.AlreadySettled)
	assert.Equal(t, 0, summary.AppliedTransactions)
	assert.Equal(t, 0, summary.FiredItems)

	settings, err := s.GetSettings(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, settings.LastDailyRun)
	assert.Equal(t, monday, *settings.LastDailyRun)
}

func TestRun_SecondRunSameDayIsNoOp(t *testing.T) {
	p, s, account := newFixture(t)
	ctx := context.Background()

	_, err := s.CreateRecurringItem(ctx, &domain.RecurringItem{
		OwnerID:   "owner-1",
		Name:      "Coffee",
		Amount:    decimal.NewFromInt(3),
		Kind:      domain.KindOut,
		Frequency: domain.FrequencyDaily,
		AccountID: account.ID,
		IsActive:  true,
	})
	require.NoError(t, err)

	first, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 1, first.FiredItems)

	second, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.Equal(t, 0, second.FiredItems)

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(97)), "balance = %s, want 97", got.Balance)

	txs, err := s.ListTransactions(ctx, "owner-1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "no duplicate transaction on re-run")
}

func TestRun_WeeklyItemFiresOnItsWeekday(t *testing.T) {
	p, s, account := newFixture(t)
	ctx := context.Background()

	_, err := s.CreateRecurringItem(ctx, &domain.RecurringItem{
		OwnerID:   "owner-1",
		Name:      "Gym",
		Amount:    decimal.NewFromInt(20),
		Kind:      domain.KindOut,
		Frequency: domain.FrequencyWeekly,
		DayOfWeek: 1, // Monday
		AccountID: account.ID,
		IsActive:  true,
	})
	require.NoError(t, err)

	// Sunday: nothing fires.
	sunday := monday.AddDays(-1)
	summary, err := p.Run(ctx, "owner-1", sunday)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.FiredItems)

	// Monday: the item fires and the balance drops 100 -> 80.
	summary, err = p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FiredItems)

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(80)), "balance = %s, want 80", got.Balance)

	txs, err := s.ListTransactions(ctx, "owner-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].IsApplied)
	assert.Equal(t, monday, txs[0].Date)
	assert.NotEmpty(t, txs[0].RecurringID)
}

func TestRun_InactiveItemNeverFires(t *testing.T) {
	p, s, account := newFixture(t)
	ctx := context.Background()

	_, err := s.CreateRecurringItem(ctx, &domain.RecurringItem{
		OwnerID:   "owner-1",
		Name:      "Cancelled subscription",
		Amount:    decimal.NewFromInt(10),
		Kind:      domain.KindOut,
		Frequency: domain.FrequencyDaily,
		AccountID: account.ID,
		IsActive:  false,
	})
	require.NoError(t, err)

	summary, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.FiredItems)
}

func TestRun_AppliesOverduePendingTransactions(t *testing.T) {
	p, s, account := newFixture(t)
	ctx := context.Background()

	// One overdue, one due today, one still in the future.
	for _, tc := range []struct {
		date   civil.Date
		amount int64
	}{
		{monday.AddDays(-3), 10},
		{monday, 5},
		{monday.AddDays(2), 50},
	} {
		_, err := s.CreateTransaction(ctx, &domain.Transaction{
			OwnerID:   "owner-1",
			Amount:    decimal.NewFromInt(tc.amount),
			Kind:      domain.KindOut,
			AccountID: account.ID,
			Date:      tc.date,
		})
		require.NoError(t, err)
	}

	summary, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AppliedTransactions)

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(85)), "balance = %s, want 85", got.Balance)

	// The future transaction stays pending.
	pending, err := s.ListUnappliedTransactions(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, monday.AddDays(2), pending[0].Date)
}

func TestRun_TransferItemConservesMoney(t *testing.T) {
	p, s, source := newFixture(t)
	ctx := context.Background()

	dest, err := s.CreateAccount(ctx, &domain.Account{
		OwnerID:  "owner-1",
		Name:     "Savings",
		Currency: "GBP",
		Balance:  decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	_, err = s.CreateRecurringItem(ctx, &domain.RecurringItem{
		OwnerID:     "owner-1",
		Name:        "Monthly savings",
		Amount:      decimal.NewFromInt(50),
		Kind:        domain.KindOut,
		Frequency:   domain.FrequencyMonthly,
		DayOfMonth:  monday.Day,
		AccountID:   source.ID,
		ToAccountID: dest.ID,
		IsActive:    true,
	})
	require.NoError(t, err)

	summary, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FiredItems)

	gotSource, err := s.GetAccount(ctx, source.ID)
	require.NoError(t, err)
	gotDest, err := s.GetAccount(ctx, dest.ID)
	require.NoError(t, err)
	assert.True(t, gotSource.Balance.Equal(decimal.NewFromInt(50)), "source = %s, want 50", gotSource.Balance)
	assert.True(t, gotDest.Balance.Equal(decimal.NewFromInt(60)), "dest = %s, want 60", gotDest.Balance)

	// Both legs exist, mutually linked, and the total across accounts is
	// unchanged.
	txs, err := s.ListTransactions(ctx, "owner-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	a, b := txs[0], txs[1]
	assert.Equal(t, a.ID, b.LinkedTransactionID)
	assert.Equal(t, b.ID, a.LinkedTransactionID)
	assert.True(t, a.SignedAmount().Add(b.SignedAmount()).IsZero())
}

func TestRun_YearlyItemFiresOncePerYear(t *testing.T) {
	p, s, account := newFixture(t)
	ctx := context.Background()

	item, err := s.CreateRecurringItem(ctx, &domain.RecurringItem{
		OwnerID:    "owner-1",
		Name:       "Insurance",
		Amount:     decimal.NewFromInt(120),
		Kind:       domain.KindOut,
		Frequency:  domain.FrequencyYearly,
		DayOfMonth: 2,
		AccountID:  account.ID,
		IsActive:   true,
	})
	require.NoError(t, err)

	// Fires on March 2nd.
	summary, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FiredItems)

	// April 2nd matches the day of month but the item already fired this year.
	april := civil.Date{Year: 2026, Month: 4, Day: 2}
	summary, err = p.Run(ctx, "owner-1", april)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.FiredItems)

	// Next year it fires again.
	nextYear := civil.Date{Year: 2027, Month: 1, Day: 2}
	summary, err = p.Run(ctx, "owner-1", nextYear)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FiredItems)

	items, err := s.ListRecurringItems(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].LastApplied)
	assert.Equal(t, nextYear, *items[0].LastApplied)
	assert.Equal(t, item.ID, items[0].ID)
}

func TestRun_CatchUpAfterMissedDays(t *testing.T) {
	p, s, account := newFixture(t)
	ctx := context.Background()

	// Pending transactions accumulated over a week offline.
	for i := 1; i <= 3; i++ {
		_, err := s.CreateTransaction(ctx, &domain.Transaction{
			OwnerID:   "owner-1",
			Amount:    decimal.NewFromInt(int64(i)),
			Kind:      domain.KindOut,
			AccountID: account.ID,
			Date:      monday.AddDays(-i),
		})
		require.NoError(t, err)
	}

	summary, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.AppliedTransactions)

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(94)), "balance = %s, want 94", got.Balance)
}

// failingStore wraps the in-memory store and fails a single operation, to
// exercise the mid-pass failure path.
type failingStore struct {
	store.Store
	failMarkRecurring bool
}

func (f *failingStore) MarkRecurringApplied(ctx context.Context, id string, date civil.Date) error {
	if f.failMarkRecurring {
		return errors.New("persistence unavailable")
	}
	return f.Store.MarkRecurringApplied(ctx, id, date)
}

func TestRun_FailureDoesNotAdvanceWatermark(t *testing.T) {
	_, s, account := newFixture(t)
	ctx := context.Background()

	_, err := s.CreateRecurringItem(ctx, &domain.RecurringItem{
		OwnerID:    "owner-1",
		Name:       "Rent",
		Amount:     decimal.NewFromInt(900),
		Kind:       domain.KindOut,
		Frequency:  domain.FrequencyMonthly,
		DayOfMonth: monday.Day,
		AccountID:  account.ID,
		IsActive:   true,
	})
	require.NoError(t, err)

	flaky := &failingStore{Store: s, failMarkRecurring: true}
	p := NewProcessor(flaky, zerolog.Nop())

	_, err = p.Run(ctx, "owner-1", monday)
	require.Error(t, err)

	// The watermark must not have advanced, so the next run retries the day.
	settings, err := s.GetSettings(ctx, "owner-1")
	require.NoError(t, err)
	assert.Nil(t, settings.LastDailyRun)

	// After the store recovers, the retry completes and settles the day.
	flaky.failMarkRecurring = false
	summary, err := p.Run(ctx, "owner-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FiredItems)

	settings, err = s.GetSettings(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, settings.LastDailyRun)
	assert.Equal(t, monday, *settings.LastDailyRun)
}
