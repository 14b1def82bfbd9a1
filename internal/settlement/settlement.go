// Package settlement runs the idempotent daily catch-up pass: it applies
// overdue pending transactions, fires due recurring items, updates balances,
// and advances the per-owner watermark. Correctness rests on three guards
// that all survive arbitrary crash/retry timing: the per-day watermark
// (Settings.LastDailyRun), the per-rule watermark (RecurringItem.LastApplied)
// and the per-row flag (Transaction.IsApplied).
package settlement

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/schedule"
	"github.com/dvloznov/budget-tracker/internal/store"
	"github.com/dvloznov/budget-tracker/internal/transfer"
)

// Processor executes settlement passes against a persistence capability.
// It holds no internal state between passes; triggering is external.
type Processor struct {
	store store.Store
	log   zerolog.Logger
}

// NewProcessor creates a settlement processor over the given store.
func NewProcessor(s store.Store, log zerolog.Logger) *Processor {
	return &Processor{store: s, log: log}
}

// Summary reports what a settlement pass did.
type Summary struct {
	OwnerID string     `json:"owner_id"`
	Day     civil.Date `json:"day"`
	// AlreadySettled is true when the watermark showed the day was done and
	// the pass was a no-op.
	AlreadySettled      bool `json:"already_settled"`
	AppliedTransactions int  `json:"applied_transactions"`
	FiredItems          int  `json:"fired_items"`
}

// Run performs one settlement pass for the owner as of today.
//
// The pass is idempotent per calendar day: if the watermark already equals
// today it returns immediately, and a retry after a mid-pass failure re-does
// only the work the guards have not yet marked done. Any persistence failure
// aborts the pass before the watermark advances, so the next invocation is a
// safe full retry.
func (p *Processor) Run(ctx context.Context, ownerID string, today civil.Date) (*Summary, error) {
	summary := &Summary{OwnerID: ownerID, Day: today}

	settings, err := p.store.GetSettings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Run: loading settings: %w", err)
	}
	if settings.SettledOn(today) {
		summary.AlreadySettled = true
		return summary, nil
	}

	p.log.Info().Str("owner_id", ownerID).Stringer("day", today).Msg("Starting settlement pass")

	// 1. Apply overdue pending transactions. Transfer legs each carry their
	// own sign, so no special-casing is needed here.
	applied, err := p.applyOverdue(ctx, ownerID, today)
	if err != nil {
		return nil, err
	}
	summary.AppliedTransactions = applied

	// 2. Fire due recurring items.
	fired, err := p.fireDue(ctx, ownerID, today)
	if err != nil {
		return nil, err
	}
	summary.FiredItems = fired

	// 3. Advance the watermark. This is the sole idempotency guard for the
	// day, so it must be the last write of the pass.
	if err := p.store.SetLastDailyRun(ctx, ownerID, today); err != nil {
		return nil, fmt.Errorf("Run: advancing watermark: %w", err)
	}

	p.log.Info().
		Str("owner_id", ownerID).
		Stringer("day", today).
		Int("applied_transactions", applied).
		Int("fired_items", fired).
		Msg("Settlement pass complete")

	return summary, nil
}

// applyOverdue folds every unapplied transaction dated today or earlier into
// its account balance. Only isApplied=false rows are selected, so re-running
// after a partial failure never applies a delta twice.
func (p *Processor) applyOverdue(ctx context.Context, ownerID string, today civil.Date) (int, error) {
	pending, err := p.store.ListUnappliedTransactions(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("applyOverdue: listing pending transactions: %w", err)
	}

	applied := 0
	for _, tx := range pending {
		if tx.Date.After(today) {
			continue
		}
		if err := p.applyDelta(ctx, tx.AccountID, tx.SignedAmount()); err != nil {
			return applied, fmt.Errorf("applyOverdue: transaction %s: %w", tx.ID, err)
		}
		if err := p.store.MarkTransactionApplied(ctx, tx.ID); err != nil {
			return applied, fmt.Errorf("applyOverdue: marking transaction %s applied: %w", tx.ID, err)
		}
		applied++

		p.log.Debug().
			Str("transaction_id", tx.ID).
			Str("account_id", tx.AccountID).
			Stringer("date", tx.Date).
			Msg("Applied pending transaction")
	}
	return applied, nil
}

// fireDue creates and applies a transaction (or linked transfer pair) for
// every active recurring item due today. LastApplied is written as the very
// last sub-step for each item: it is the idempotency boundary per rule.
func (p *Processor) fireDue(ctx context.Context, ownerID string, today civil.Date) (int, error) {
	items, err := p.store.ListActiveRecurringItems(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("fireDue: listing recurring items: %w", err)
	}

	fired := 0
	for _, item := range items {
		if item.LastApplied != nil && *item.LastApplied == today {
			continue
		}

		due, err := schedule.IsDue(item, today)
		if err != nil {
			return fired, fmt.Errorf("fireDue: item %s: %w", item.ID, err)
		}
		if !due {
			continue
		}
		// Yearly items store only a day of month, so the once-per-calendar-year
		// gate lives here: a match does not fire if the item already fired
		// this year.
		if item.Frequency == domain.FrequencyYearly &&
			item.LastApplied != nil && item.LastApplied.Year >= today.Year {
			continue
		}

		if item.IsTransfer() {
			err = p.fireTransfer(ctx, item, today)
		} else {
			err = p.fireSingle(ctx, item, today)
		}
		if err != nil {
			return fired, fmt.Errorf("fireDue: item %s: %w", item.ID, err)
		}

		if err := p.store.MarkRecurringApplied(ctx, item.ID, today); err != nil {
			return fired, fmt.Errorf("fireDue: marking item %s applied: %w", item.ID, err)
		}
		fired++

		p.log.Info().
			Str("recurring_id", item.ID).
			Str("name", item.Name).
			Str("frequency", string(item.Frequency)).
			Bool("transfer", item.IsTransfer()).
			Msg("Fired recurring item")
	}
	return fired, nil
}

// fireSingle records one firing of a non-transfer item: a new applied
// transaction dated today plus its balance delta.
func (p *Processor) fireSingle(ctx context.Context, item *domain.RecurringItem, today civil.Date) error {
	tx := &domain.Transaction{
		OwnerID:     item.OwnerID,
		Description: item.Name,
		Amount:      item.Amount,
		Kind:        item.Kind,
		AccountID:   item.AccountID,
		CategoryID:  item.CategoryID,
		Date:        today,
		IsApplied:   true,
		RecurringID: item.ID,
	}
	if _, err := p.store.CreateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}
	return p.applyDelta(ctx, item.AccountID, item.SignedAmount())
}

// fireTransfer records one firing of a transfer item: a linked pair persisted
// atomically, then both balance deltas.
func (p *Processor) fireTransfer(ctx context.Context, item *domain.RecurringItem, today civil.Date) error {
	source, err := p.store.GetAccount(ctx, item.AccountID)
	if err != nil {
		return fmt.Errorf("loading source account: %w", err)
	}
	dest, err := p.store.GetAccount(ctx, item.ToAccountID)
	if err != nil {
		return fmt.Errorf("loading destination account: %w", err)
	}

	out, in, err := transfer.BuildPair(transfer.PairParams{
		OwnerID:       item.OwnerID,
		SourceID:      source.ID,
		SourceName:    source.Name,
		DestinationID: dest.ID,
		DestName:      dest.Name,
		Amount:        item.Amount,
		Date:          today,
		Description:   item.Name,
		CategoryID:    item.CategoryID,
		Applied:       true,
		RecurringID:   item.ID,
	})
	if err != nil {
		return fmt.Errorf("building transfer pair: %w", err)
	}

	if _, _, err := p.store.CreateLinkedTransferPair(ctx, out, in); err != nil {
		return fmt.Errorf("persisting transfer pair: %w", err)
	}

	if err := p.store.UpdateAccountBalance(ctx, source.ID, source.Balance.Sub(item.Amount)); err != nil {
		return fmt.Errorf("debiting source: %w", err)
	}
	if err := p.store.UpdateAccountBalance(ctx, dest.ID, dest.Balance.Add(item.Amount)); err != nil {
		return fmt.Errorf("crediting destination: %w", err)
	}
	return nil
}

// applyDelta adds delta to the account's stored balance.
func (p *Processor) applyDelta(ctx context.Context, accountID string, delta decimal.Decimal) error {
	account, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account %s: %w", accountID, err)
	}
	return p.store.UpdateAccountBalance(ctx, accountID, account.Balance.Add(delta))
}
