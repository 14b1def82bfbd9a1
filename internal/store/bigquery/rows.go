package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// numericPrecision is the scale used when converting BigQuery NUMERIC values
// back into decimals. NUMERIC carries 9 fractional digits.
const numericPrecision = 9

// AccountRow is the budget.accounts table schema.
type AccountRow struct {
	AccountID string    `bigquery:"account_id"`
	OwnerID   string    `bigquery:"owner_id"`
	Name      string    `bigquery:"name"`
	Balance   *big.Rat  `bigquery:"balance"`
	Currency  string    `bigquery:"currency"`
	CreatedTS time.Time `bigquery:"created_ts"`
	UpdatedTS time.Time `bigquery:"updated_ts"`
}

func (r *AccountRow) toDomain() *domain.Account {
	return &domain.Account{
		ID:        r.AccountID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Balance:   ratToDecimal(r.Balance),
		Currency:  r.Currency,
		CreatedAt: r.CreatedTS,
		UpdatedAt: r.UpdatedTS,
	}
}

// TransactionRow is the budget.transactions table schema.
type TransactionRow struct {
	TransactionID       string     `bigquery:"transaction_id"`
	OwnerID             string     `bigquery:"owner_id"`
	Description         string     `bigquery:"description"`
	Amount              *big.Rat   `bigquery:"amount"`
	Kind                string     `bigquery:"kind"`
	AccountID           string     `bigquery:"account_id"`
	CounterAccountID    string     `bigquery:"counter_account_id"`
	CategoryID          string     `bigquery:"category_id"`
	TransactionDate     civil.Date `bigquery:"transaction_date"`
	IsApplied           bool       `bigquery:"is_applied"`
	RecurringID         string     `bigquery:"recurring_id"`
	LinkedTransactionID string     `bigquery:"linked_transaction_id"`
	CreatedTS           time.Time  `bigquery:"created_ts"`
}

func (r *TransactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:                  r.TransactionID,
		OwnerID:             r.OwnerID,
		Description:         r.Description,
		Amount:              ratToDecimal(r.Amount),
		Kind:                domain.Kind(r.Kind),
		AccountID:           r.AccountID,
		CounterAccountID:    r.CounterAccountID,
		CategoryID:          r.CategoryID,
		Date:                r.TransactionDate,
		IsApplied:           r.IsApplied,
		RecurringID:         r.RecurringID,
		LinkedTransactionID: r.LinkedTransactionID,
		CreatedAt:           r.CreatedTS,
	}
}

// RecurringItemRow is the budget.recurring_items table schema.
type RecurringItemRow struct {
	RecurringID string            `bigquery:"recurring_id"`
	OwnerID     string            `bigquery:"owner_id"`
	Name        string            `bigquery:"name"`
	Amount      *big.Rat          `bigquery:"amount"`
	Kind        string            `bigquery:"kind"`
	Frequency   string            `bigquery:"frequency"`
	DayOfMonth  int64             `bigquery:"day_of_month"`
	DayOfWeek   int64             `bigquery:"day_of_week"`
	AccountID   string            `bigquery:"account_id"`
	ToAccountID string            `bigquery:"to_account_id"`
	CategoryID  string            `bigquery:"category_id"`
	IsActive    bool              `bigquery:"is_active"`
	LastApplied bigquery.NullDate `bigquery:"last_applied"`
	CreatedTS   time.Time         `bigquery:"created_ts"`
	UpdatedTS   time.Time         `bigquery:"updated_ts"`
}

func (r *RecurringItemRow) toDomain() *domain.RecurringItem {
	item := &domain.RecurringItem{
		ID:          r.RecurringID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Amount:      ratToDecimal(r.Amount),
		Kind:        domain.Kind(r.Kind),
		Frequency:   domain.Frequency(r.Frequency),
		DayOfMonth:  int(r.DayOfMonth),
		DayOfWeek:   int(r.DayOfWeek),
		AccountID:   r.AccountID,
		ToAccountID: r.ToAccountID,
		CategoryID:  r.CategoryID,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedTS,
		UpdatedAt:   r.UpdatedTS,
	}
	if r.LastApplied.Valid {
		d := r.LastApplied.Date
		item.LastApplied = &d
	}
	return item
}

// CategoryRow is the budget.categories table schema.
type CategoryRow struct {
	CategoryID string    `bigquery:"category_id"`
	OwnerID    string    `bigquery:"owner_id"`
	Name       string    `bigquery:"name"`
	Color      string    `bigquery:"color"`
	CreatedTS  time.Time `bigquery:"created_ts"`
}

func (r *CategoryRow) toDomain() *domain.Category {
	return &domain.Category{
		ID:        r.CategoryID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Color:     r.Color,
		CreatedAt: r.CreatedTS,
	}
}

// SettingsRow is the budget.settings table schema, one row per owner.
type SettingsRow struct {
	OwnerID         string            `bigquery:"owner_id"`
	DefaultCurrency string            `bigquery:"default_currency"`
	ProjectionDays  int64             `bigquery:"projection_days"`
	LastDailyRun    bigquery.NullDate `bigquery:"last_daily_run"`
}

func (r *SettingsRow) toDomain() *domain.Settings {
	settings := &domain.Settings{
		OwnerID:         r.OwnerID,
		DefaultCurrency: r.DefaultCurrency,
		ProjectionDays:  int(r.ProjectionDays),
	}
	if r.LastDailyRun.Valid {
		d := r.LastDailyRun.Date
		settings.LastDailyRun = &d
	}
	return settings
}

func decimalToRat(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, numericPrecision)
}
