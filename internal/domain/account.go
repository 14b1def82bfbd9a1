package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a named pot of money. Balance is a derived cache: it must equal
// the sum of all applied transactions affecting the account since creation.
// Only the settlement processor and explicit user edits may change it.
type Account struct {
	ID        string
	OwnerID   string
	Name      string
	Balance   decimal.Decimal
	Currency  string // ISO 4217 code, e.g. "GBP"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category labels transactions and recurring items for reporting.
type Category struct {
	ID        string
	OwnerID   string
	Name      string
	Color     string
	CreatedAt time.Time
}
