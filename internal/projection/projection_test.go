package projection

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

var (
	today = civil.Date{Year: 2026, Month: 3, Day: 1} // a Sunday
	acct  = &domain.Account{ID: "acct-1", OwnerID: "owner-1", Name: "Current", Balance: decimal.NewFromInt(100)}
)

func TestProject_NoRulesNoPending(t *testing.T) {
	got, err := Project(acct, nil, nil, today, today.AddDays(30))
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Project() = %s, want 100", got)
	}
}

func TestProject_AsOfBeforeToday(t *testing.T) {
	if _, err := Project(acct, nil, nil, today, today.AddDays(-1)); !errors.Is(err, domain.ErrInvalidRange) {
		t.Errorf("Project() error = %v, want ErrInvalidRange", err)
	}
}

func TestProject_WeeklyOutgoing(t *testing.T) {
	rules := []*domain.RecurringItem{
		{
			ID:        "rule-1",
			OwnerID:   "owner-1",
			Name:      "Groceries",
			Amount:    decimal.NewFromInt(20),
			Kind:      domain.KindOut,
			Frequency: domain.FrequencyWeekly,
			DayOfWeek: 1, // Monday
			AccountID: "acct-1",
			IsActive:  true,
		},
	}

	// Mar 1 to Mar 31 2026 holds five Mondays.
	got, err := Project(acct, rules, nil, today, civil.Date{Year: 2026, Month: 3, Day: 31})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if want := decimal.NewFromInt(0); !got.Equal(want) {
		t.Errorf("Project() = %s, want %s", got, want)
	}
}

func TestProject_InactiveRuleIgnored(t *testing.T) {
	rules := []*domain.RecurringItem{
		{
			ID:        "rule-1",
			Amount:    decimal.NewFromInt(20),
			Kind:      domain.KindOut,
			Frequency: domain.FrequencyDaily,
			AccountID: "acct-1",
			IsActive:  false,
		},
	}

	got, err := Project(acct, rules, nil, today, today.AddDays(10))
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Project() = %s, want 100", got)
	}
}

func TestProject_OtherAccountRuleIgnored(t *testing.T) {
	rules := []*domain.RecurringItem{
		{
			ID:        "rule-1",
			Amount:    decimal.NewFromInt(20),
			Kind:      domain.KindOut,
			Frequency: domain.FrequencyDaily,
			AccountID: "acct-other",
			IsActive:  true,
		},
	}

	got, err := Project(acct, rules, nil, today, today.AddDays(10))
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Project() = %s, want 100", got)
	}
}

// A transfer rule shows up on both sides: the source is debited and the
// destination credited by the same amount per occurrence.
func TestProject_TransferRuleBothSides(t *testing.T) {
	source := &domain.Account{ID: "acct-1", Balance: decimal.NewFromInt(100)}
	dest := &domain.Account{ID: "acct-2", Balance: decimal.NewFromInt(50)}
	rules := []*domain.RecurringItem{
		{
			ID:          "rule-1",
			Name:        "Savings",
			Amount:      decimal.NewFromInt(50),
			Kind:        domain.KindOut,
			Frequency:   domain.FrequencyMonthly,
			DayOfMonth:  15,
			AccountID:   "acct-1",
			ToAccountID: "acct-2",
			IsActive:    true,
		},
	}
	asOf := civil.Date{Year: 2026, Month: 4, Day: 30} // two firings: Mar 15, Apr 15

	gotSource, err := Project(source, rules, nil, today, asOf)
	if err != nil {
		t.Fatalf("Project(source) error = %v", err)
	}
	if want := decimal.NewFromInt(0); !gotSource.Equal(want) {
		t.Errorf("Project(source) = %s, want %s", gotSource, want)
	}

	gotDest, err := Project(dest, rules, nil, today, asOf)
	if err != nil {
		t.Fatalf("Project(dest) error = %v", err)
	}
	if want := decimal.NewFromInt(150); !gotDest.Equal(want) {
		t.Errorf("Project(dest) = %s, want %s", gotDest, want)
	}
}

func TestProject_PendingTransactions(t *testing.T) {
	pending := []*domain.Transaction{
		{
			ID:        "tx-1",
			Amount:    decimal.NewFromInt(30),
			Kind:      domain.KindOut,
			AccountID: "acct-1",
			Date:      today.AddDays(5),
		},
		{
			// Dated beyond the horizon, excluded.
			ID:        "tx-2",
			Amount:    decimal.NewFromInt(99),
			Kind:      domain.KindOut,
			AccountID: "acct-1",
			Date:      today.AddDays(40),
		},
		{
			// Already applied, folded into the balance, never re-counted.
			ID:        "tx-3",
			Amount:    decimal.NewFromInt(99),
			Kind:      domain.KindOut,
			AccountID: "acct-1",
			Date:      today,
			IsApplied: true,
		},
		{
			// Different account.
			ID:        "tx-4",
			Amount:    decimal.NewFromInt(99),
			Kind:      domain.KindIn,
			AccountID: "acct-other",
			Date:      today,
		},
	}

	got, err := Project(acct, nil, pending, today, today.AddDays(30))
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if want := decimal.NewFromInt(70); !got.Equal(want) {
		t.Errorf("Project() = %s, want %s", got, want)
	}
}

func TestProject_PendingOnAsOfDateIncluded(t *testing.T) {
	asOf := today.AddDays(7)
	pending := []*domain.Transaction{
		{ID: "tx-1", Amount: decimal.NewFromInt(10), Kind: domain.KindIn, AccountID: "acct-1", Date: asOf},
	}

	got, err := Project(acct, nil, pending, today, asOf)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if want := decimal.NewFromInt(110); !got.Equal(want) {
		t.Errorf("Project() = %s, want %s", got, want)
	}
}
