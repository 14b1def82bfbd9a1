// Package inmemory provides a Store backed by process memory. It is safe for
// concurrent use and keeps every entity as a private copy, so callers can
// never mutate stored state through a returned pointer. Data is lost on
// restart - for persistence, use the BigQuery-backed store.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]*domain.Account
	categories   map[string]*domain.Category
	recurring    map[string]*domain.RecurringItem
	transactions map[string]*domain.Transaction
	settings     map[string]*domain.Settings
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]*domain.Account),
		categories:   make(map[string]*domain.Category),
		recurring:    make(map[string]*domain.RecurringItem),
		transactions: make(map[string]*domain.Transaction),
		settings:     make(map[string]*domain.Settings),
	}
}

// GetAccount implements store.Store.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, store.Failed("GetAccount", fmt.Errorf("account %s: %w", id, domain.ErrNotFound))
	}
	cp := *account
	return &cp, nil
}

// ListAccounts implements store.Store.
func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, a := range s.accounts {
		if a.OwnerID != ownerID {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// CreateAccount implements store.Store.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *account
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.accounts[cp.ID] = &cp

	out := cp
	return &out, nil
}

// UpdateAccountBalance implements store.Store.
func (s *Store) UpdateAccountBalance(ctx context.Context, id string, newBalance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return store.Failed("UpdateAccountBalance", fmt.Errorf("account %s: %w", id, domain.ErrNotFound))
	}
	account.Balance = newBalance
	account.UpdatedAt = time.Now().UTC()
	return nil
}

// ListActiveRecurringItems implements store.Store.
func (s *Store) ListActiveRecurringItems(ctx context.Context, ownerID string) ([]*domain.RecurringItem, error) {
	return s.listRecurring(ownerID, true)
}

// ListRecurringItems implements store.Store.
func (s *Store) ListRecurringItems(ctx context.Context, ownerID string) ([]*domain.RecurringItem, error) {
	return s.listRecurring(ownerID, false)
}

func (s *Store) listRecurring(ownerID string, activeOnly bool) ([]*domain.RecurringItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RecurringItem
	for _, item := range s.recurring {
		if item.OwnerID != ownerID {
			continue
		}
		if activeOnly && !item.IsActive {
			continue
		}
		result = append(result, copyRecurring(item))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// CreateRecurringItem implements store.Store.
func (s *Store) CreateRecurringItem(ctx context.Context, item *domain.RecurringItem) (*domain.RecurringItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyRecurring(item)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.recurring[cp.ID] = cp

	return copyRecurring(cp), nil
}

// MarkRecurringApplied implements store.Store.
func (s *Store) MarkRecurringApplied(ctx context.Context, id string, date civil.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.recurring[id]
	if !ok {
		return store.Failed("MarkRecurringApplied", fmt.Errorf("recurring item %s: %w", id, domain.ErrNotFound))
	}
	d := date
	item.LastApplied = &d
	item.UpdatedAt = time.Now().UTC()
	return nil
}

// GetTransaction implements store.Store.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.Failed("GetTransaction", fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound))
	}
	cp := *tx
	return &cp, nil
}

// ListTransactions implements store.Store.
func (s *Store) ListTransactions(ctx context.Context, ownerID string, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.OwnerID != ownerID {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// ListUnappliedTransactions implements store.Store.
func (s *Store) ListUnappliedTransactions(ctx context.Context, ownerID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.OwnerID != ownerID || tx.IsApplied {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CreateTransaction implements store.Store.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tx
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.transactions[cp.ID] = &cp

	out := cp
	return &out, nil
}

// MarkTransactionApplied implements store.Store.
func (s *Store) MarkTransactionApplied(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return store.Failed("MarkTransactionApplied", fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound))
	}
	tx.IsApplied = true
	return nil
}

// DeleteTransaction implements store.Store.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return store.Failed("DeleteTransaction", fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound))
	}
	delete(s.transactions, id)
	return nil
}

// CreateLinkedTransferPair implements store.Store. Both legs are inserted
// under one lock acquisition, so no reader can ever observe half a transfer.
func (s *Store) CreateLinkedTransferPair(ctx context.Context, out, in *domain.Transaction) (*domain.Transaction, *domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outCp, inCp := *out, *in
	now := time.Now().UTC()
	if outCp.ID == "" {
		outCp.ID = uuid.NewString()
	}
	if inCp.ID == "" {
		inCp.ID = uuid.NewString()
	}
	outCp.LinkedTransactionID = inCp.ID
	inCp.LinkedTransactionID = outCp.ID
	if outCp.CreatedAt.IsZero() {
		outCp.CreatedAt = now
	}
	if inCp.CreatedAt.IsZero() {
		inCp.CreatedAt = now
	}

	s.transactions[outCp.ID] = &outCp
	s.transactions[inCp.ID] = &inCp

	outRet, inRet := outCp, inCp
	return &outRet, &inRet, nil
}

// ListCategories implements store.Store.
func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Category
	for _, c := range s.categories {
		if c.OwnerID != ownerID {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// CreateCategory implements store.Store.
func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *category
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.categories[cp.ID] = &cp

	out := cp
	return &out, nil
}

// GetSettings implements store.Store. Owners without stored settings get
// defaults, so a fresh owner can settle immediately.
func (s *Store) GetSettings(ctx context.Context, ownerID string) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[ownerID]
	if !ok {
		settings = &domain.Settings{
			OwnerID:         ownerID,
			DefaultCurrency: "GBP",
			ProjectionDays:  30,
		}
		s.settings[ownerID] = settings
	}
	return copySettings(settings), nil
}

// SetLastDailyRun implements store.Store.
func (s *Store) SetLastDailyRun(ctx context.Context, ownerID string, date civil.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[ownerID]
	if !ok {
		settings = &domain.Settings{OwnerID: ownerID, DefaultCurrency: "GBP", ProjectionDays: 30}
		s.settings[ownerID] = settings
	}
	d := date
	settings.LastDailyRun = &d
	return nil
}

// ListOwners implements store.Store.
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]string, 0, len(s.settings))
	for ownerID := range s.settings {
		owners = append(owners, ownerID)
	}
	sort.Strings(owners)
	return owners, nil
}

func copyRecurring(item *domain.RecurringItem) *domain.RecurringItem {
	cp := *item
	if item.LastApplied != nil {
		d := *item.LastApplied
		cp.LastApplied = &d
	}
	return &cp
}

func copySettings(settings *domain.Settings) *domain.Settings {
	cp := *settings
	if settings.LastDailyRun != nil {
		d := *settings.LastDailyRun
		cp.LastDailyRun = &d
	}
	return &cp
}

// Ensure Store implements the persistence capability.
var _ store.Store = (*Store)(nil)
