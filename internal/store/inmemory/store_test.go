package inmemory

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	created, err := s.CreateAccount(ctx, &domain.Account{
		OwnerID:  "owner-1",
		Name:     "Current",
		Currency: "GBP",
		Balance:  decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated account ID")
	}

	if err := s.UpdateAccountBalance(ctx, created.ID, decimal.NewFromInt(250)); err != nil {
		t.Fatalf("UpdateAccountBalance() error = %v", err)
	}

	got, err := s.GetAccount(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(250)) {
		t.Errorf("balance = %s, want 250", got.Balance)
	}

	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetAccount(missing) error = %v, want ErrNotFound", err)
	}
}

func TestReturnedCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	created, err := s.CreateAccount(ctx, &domain.Account{
		OwnerID: "owner-1", Name: "Current", Balance: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	// Mutating a returned value must not leak into stored state.
	created.Balance = decimal.NewFromInt(999999)
	created.Name = "Hacked"

	got, err := s.GetAccount(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(100)) || got.Name != "Current" {
		t.Errorf("stored account mutated through returned pointer: %+v", got)
	}
}

func TestCreateRecurringItem_Validates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.CreateRecurringItem(ctx, &domain.RecurringItem{
		OwnerID:   "owner-1",
		Name:      "Broken",
		Frequency: domain.FrequencyWeekly,
		DayOfWeek: 9,
	})
	if !errors.Is(err, domain.ErrInvalidRule) {
		t.Errorf("CreateRecurringItem() error = %v, want ErrInvalidRule", err)
	}

	// A transfer rule looping back to its own source account would make every
	// settlement pass fail, so it must never be stored.
	_, err = s.CreateRecurringItem(ctx, &domain.RecurringItem{
		OwnerID:     "owner-1",
		Name:        "Loop",
		Amount:      decimal.NewFromInt(10),
		Kind:        domain.KindOut,
		Frequency:   domain.FrequencyDaily,
		AccountID:   "acct-1",
		ToAccountID: "acct-1",
	})
	if !errors.Is(err, domain.ErrInvalidRule) {
		t.Errorf("CreateRecurringItem(same-account transfer) error = %v, want ErrInvalidRule", err)
	}
}

func TestListUnappliedTransactions_FiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	dates := []civil.Date{
		{Year: 2026, Month: 3, Day: 10},
		{Year: 2026, Month: 3, Day: 5},
		{Year: 2026, Month: 3, Day: 8},
	}
	for _, d := range dates {
		if _, err := s.CreateTransaction(ctx, &domain.Transaction{
			OwnerID: "owner-1", Amount: decimal.NewFromInt(1), Kind: domain.KindOut,
			AccountID: "acct-1", Date: d,
		}); err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
	}
	applied, err := s.CreateTransaction(ctx, &domain.Transaction{
		OwnerID: "owner-1", Amount: decimal.NewFromInt(1), Kind: domain.KindOut,
		AccountID: "acct-1", Date: dates[0], IsApplied: true,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	pending, err := s.ListUnappliedTransactions(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListUnappliedTransactions() error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len(pending) = %d, want 3", len(pending))
	}
	for _, tx := range pending {
		if tx.ID == applied.ID {
			t.Error("applied transaction returned as pending")
		}
	}
	// Oldest first.
	for i := 1; i < len(pending); i++ {
		if pending[i].Date.Before(pending[i-1].Date) {
			t.Errorf("pending not sorted by date: %s before %s", pending[i].Date, pending[i-1].Date)
		}
	}
}

func TestListTransactions_LimitAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for day := 1; day <= 5; day++ {
		if _, err := s.CreateTransaction(ctx, &domain.Transaction{
			OwnerID: "owner-1", Amount: decimal.NewFromInt(1), Kind: domain.KindIn,
			AccountID: "acct-1", Date: civil.Date{Year: 2026, Month: 3, Day: day},
		}); err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
	}

	txs, err := s.ListTransactions(ctx, "owner-1", 2)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len(txs) = %d, want 2", len(txs))
	}
	// Newest first.
	if txs[0].Date.Before(txs[1].Date) {
		t.Errorf("expected newest first, got %s then %s", txs[0].Date, txs[1].Date)
	}

	all, err := s.ListTransactions(ctx, "owner-1", 0)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("len(all) = %d, want 5", len(all))
	}
}

func TestCreateLinkedTransferPair(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	out := &domain.Transaction{
		OwnerID: "owner-1", Amount: decimal.NewFromInt(50), Kind: domain.KindOut,
		AccountID: "acct-1", CounterAccountID: "acct-2",
		Date: civil.Date{Year: 2026, Month: 3, Day: 14},
	}
	in := &domain.Transaction{
		OwnerID: "owner-1", Amount: decimal.NewFromInt(50), Kind: domain.KindIn,
		AccountID: "acct-2", CounterAccountID: "acct-1",
		Date: civil.Date{Year: 2026, Month: 3, Day: 14},
	}

	gotOut, gotIn, err := s.CreateLinkedTransferPair(ctx, out, in)
	if err != nil {
		t.Fatalf("CreateLinkedTransferPair() error = %v", err)
	}
	if gotOut.LinkedTransactionID != gotIn.ID || gotIn.LinkedTransactionID != gotOut.ID {
		t.Error("stored legs are not mutually linked")
	}

	// Both retrievable by ID.
	for _, id := range []string{gotOut.ID, gotIn.ID} {
		if _, err := s.GetTransaction(ctx, id); err != nil {
			t.Errorf("GetTransaction(%s) error = %v", id, err)
		}
	}
}

func TestGetSettings_Defaults(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	settings, err := s.GetSettings(ctx, "brand-new")
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if settings.DefaultCurrency != "GBP" || settings.ProjectionDays != 30 {
		t.Errorf("defaults = %s/%d, want GBP/30", settings.DefaultCurrency, settings.ProjectionDays)
	}
	if settings.LastDailyRun != nil {
		t.Error("fresh owner should have no watermark")
	}

	// The first read registers the owner, so batch settlement can find them.
	owners, err := s.ListOwners(ctx)
	if err != nil {
		t.Fatalf("ListOwners() error = %v", err)
	}
	if len(owners) != 1 || owners[0] != "brand-new" {
		t.Errorf("owners = %v, want [brand-new]", owners)
	}
}

func TestSetLastDailyRun(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	day := civil.Date{Year: 2026, Month: 3, Day: 14}
	if err := s.SetLastDailyRun(ctx, "owner-1", day); err != nil {
		t.Fatalf("SetLastDailyRun() error = %v", err)
	}

	settings, err := s.GetSettings(ctx, "owner-1")
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if settings.LastDailyRun == nil || *settings.LastDailyRun != day {
		t.Errorf("LastDailyRun = %v, want %s", settings.LastDailyRun, day)
	}
	if !settings.SettledOn(day) {
		t.Error("SettledOn should be true for the watermark day")
	}

	owners, err := s.ListOwners(ctx)
	if err != nil {
		t.Fatalf("ListOwners() error = %v", err)
	}
	if len(owners) != 1 || owners[0] != "owner-1" {
		t.Errorf("owners = %v, want [owner-1]", owners)
	}
}
