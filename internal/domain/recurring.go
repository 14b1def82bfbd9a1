package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Frequency is the calendar rule a recurring item fires on.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// RecurringItem is a standing obligation (salary, bill, transfer) that fires
// on a calendar rule. A transfer is modeled as KindOut with ToAccountID set;
// settlement materializes it as a linked transaction pair.
type RecurringItem struct {
	ID      string
	OwnerID string
	Name    string
	Amount  decimal.Decimal // positive magnitude
	Kind    Kind
	// Frequency decides which of DayOfMonth/DayOfWeek is meaningful:
	// monthly and yearly use DayOfMonth, weekly uses DayOfWeek, daily ignores both.
	Frequency  Frequency
	DayOfMonth int // 1-31
	DayOfWeek  int // 0-6, 0 = Sunday
	AccountID  string
	// ToAccountID marks the item as a transfer rule and names the destination.
	ToAccountID string
	CategoryID  string
	IsActive    bool
	// LastApplied is the date the item most recently fired. Owned exclusively
	// by the settlement processor; nil means it has never fired.
	LastApplied *civil.Date
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SignedAmount returns the balance delta one firing applies to the source
// account: +Amount for in, -Amount for out. A transfer rule always debits
// the source; the paired credit is carried by the destination leg.
func (i *RecurringItem) SignedAmount() decimal.Decimal {
	if i.Kind == KindOut {
		return i.Amount.Neg()
	}
	return i.Amount
}

// IsTransfer reports whether firing this item moves money between two accounts.
func (i *RecurringItem) IsTransfer() bool {
	return i.ToAccountID != ""
}

// Validate checks that the field required by the item's frequency is present
// and in range, and that a transfer rule names two distinct accounts.
// Violations are data errors, reported as ErrInvalidRule.
func (i *RecurringItem) Validate() error {
	if i.ToAccountID != "" && i.ToAccountID == i.AccountID {
		return fmt.Errorf("%w: transfer item %q has the same source and destination account", ErrInvalidRule, i.Name)
	}
	switch i.Frequency {
	case FrequencyDaily:
		return nil
	case FrequencyWeekly:
		if i.DayOfWeek < 0 || i.DayOfWeek > 6 {
			return fmt.Errorf("%w: weekly item %q has day of week %d", ErrInvalidRule, i.Name, i.DayOfWeek)
		}
		return nil
	case FrequencyMonthly, FrequencyYearly:
		if i.DayOfMonth < 1 || i.DayOfMonth > 31 {
			return fmt.Errorf("%w: %s item %q has day of month %d", ErrInvalidRule, i.Frequency, i.Name, i.DayOfMonth)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, i.Frequency)
	}
}
