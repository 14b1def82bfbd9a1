// Package projection computes forward-looking balance forecasts. It is
// strictly read-only: forecasts fold expected recurring firings and pending
// transactions onto the last applied balance without touching any state.
package projection

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/schedule"
	"github.com/dvloznov/budget-tracker/internal/store"
)

// Project forecasts the account's balance as of asOf, starting from its
// current (applied) balance.
//
// Each active recurring rule contributes CountOccurrences(rule, today, asOf)
// times its signed amount. A transfer rule debits the account when it is the
// source and credits it when it is the destination; each side is evaluated
// independently. Pending transactions on the account dated no later than asOf
// contribute their signed amount. Transactions already applied are not read
// again: they are folded into the balance by definition.
func Project(account *domain.Account, rules []*domain.RecurringItem, pending []*domain.Transaction, today, asOf civil.Date) (decimal.Decimal, error) {
	projected := account.Balance
	if asOf.Before(today) {
		return projected, fmt.Errorf("%w: asOf %s before today %s", domain.ErrInvalidRange, asOf, today)
	}

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}

		var delta decimal.Decimal
		switch {
		case rule.AccountID == account.ID:
			delta = rule.SignedAmount()
		case rule.ToAccountID == account.ID:
			// Destination leg of a transfer rule.
			delta = rule.Amount
		default:
			continue
		}

		n, err := schedule.CountOccurrences(rule, today, asOf)
		if err != nil {
			return account.Balance, err
		}
		projected = projected.Add(delta.Mul(decimal.NewFromInt(int64(n))))
	}

	for _, tx := range pending {
		if tx.IsApplied || tx.AccountID != account.ID {
			continue
		}
		if !tx.Date.After(asOf) {
			projected = projected.Add(tx.SignedAmount())
		}
	}

	return projected, nil
}

// Calculator is the store-backed entry point for projections. It reads
// through the persistence capability but never writes.
type Calculator struct {
	store store.Store
}

// NewCalculator creates a projection calculator over the given store.
func NewCalculator(s store.Store) *Calculator {
	return &Calculator{store: s}
}

// ProjectAccount loads the account, its owner's recurring rules and pending
// transactions, and forecasts the balance as of asOf.
func (c *Calculator) ProjectAccount(ctx context.Context, ownerID, accountID string, today, asOf civil.Date) (decimal.Decimal, error) {
	account, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ProjectAccount: loading account: %w", err)
	}

	rules, err := c.store.ListActiveRecurringItems(ctx, ownerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ProjectAccount: listing recurring items: %w", err)
	}

	pending, err := c.store.ListUnappliedTransactions(ctx, ownerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ProjectAccount: listing pending transactions: %w", err)
	}

	return Project(account, rules, pending, today, asOf)
}
