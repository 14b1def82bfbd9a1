// Package store defines the persistence capability the engine runs against.
// The settlement processor and projection calculator are backend-agnostic:
// they receive a Store explicitly and assume nothing beyond the contract
// documented here. Two backends ship with the repo: an in-memory store for
// tests and single-process runs, and a BigQuery-backed store.
package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// Store is the persistence capability consumed by the engine and the outer
// surfaces (API, backup, CLI).
//
// Implementations must provide a serializable-or-stronger boundary around
// CreateLinkedTransferPair: either both legs are persisted, linked together,
// or neither is. Single-writer-per-owner semantics are assumed; a settlement
// pass for one owner must not run concurrently with balance-affecting writes
// for the same owner.
type Store interface {
	// Accounts.
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, id string, newBalance decimal.Decimal) error

	// Recurring items. LastApplied is written only through MarkRecurringApplied.
	ListActiveRecurringItems(ctx context.Context, ownerID string) ([]*domain.RecurringItem, error)
	ListRecurringItems(ctx context.Context, ownerID string) ([]*domain.RecurringItem, error)
	CreateRecurringItem(ctx context.Context, item *domain.RecurringItem) (*domain.RecurringItem, error)
	MarkRecurringApplied(ctx context.Context, id string, date civil.Date) error

	// Transactions. ListTransactions returns newest first; limit <= 0 means all.
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]*domain.Transaction, error)
	ListUnappliedTransactions(ctx context.Context, ownerID string) ([]*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
	MarkTransactionApplied(ctx context.Context, id string) error
	DeleteTransaction(ctx context.Context, id string) error

	// CreateLinkedTransferPair persists both legs of a transfer atomically and
	// returns them with cross-populated link IDs.
	CreateLinkedTransferPair(ctx context.Context, out, in *domain.Transaction) (*domain.Transaction, *domain.Transaction, error)

	// Categories.
	ListCategories(ctx context.Context, ownerID string) ([]*domain.Category, error)
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)

	// Settings. GetSettings materializes a defaults row for an owner seen for
	// the first time, so the owner shows up in ListOwners from then on.
	// SetLastDailyRun advances the settlement watermark and must be durable
	// before it returns.
	GetSettings(ctx context.Context, ownerID string) (*domain.Settings, error)
	SetLastDailyRun(ctx context.Context, ownerID string, date civil.Date) error

	// ListOwners returns every owner with settings, for batch settlement.
	ListOwners(ctx context.Context) ([]string, error)
}

// PersistenceError wraps any backend failure. The settlement processor treats
// every persistence failure as "pass failed, do not advance the watermark",
// so the next invocation retries the whole pass.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Failed wraps err as a PersistenceError for the given operation. It returns
// nil when err is nil.
func Failed(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
