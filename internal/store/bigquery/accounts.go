package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
)

// GetAccount implements store.Store.
func (r *Repository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT account_id, owner_id, name, balance, currency, created_ts, updated_ts
		FROM %s.accounts
		WHERE account_id = @account_id
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Failed("GetAccount", fmt.Errorf("query read: %w", err))
	}

	var row AccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, store.Failed("GetAccount", fmt.Errorf("account %s: %w", id, domain.ErrNotFound))
	}
	if err != nil {
		return nil, store.Failed("GetAccount", fmt.Errorf("iter next: %w", err))
	}

	return row.toDomain(), nil
}

// ListAccounts implements store.Store.
func (r *Repository) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT account_id, owner_id, name, balance, currency, created_ts, updated_ts
		FROM %s.accounts
		WHERE owner_id = @owner_id
		ORDER BY created_ts
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Failed("ListAccounts", fmt.Errorf("query read: %w", err))
	}

	var accounts []*domain.Account
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Failed("ListAccounts", fmt.Errorf("iter next: %w", err))
		}
		accounts = append(accounts, row.toDomain())
	}

	return accounts, nil
}

// CreateAccount implements store.Store.
func (r *Repository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	created := *account
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = now

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s.accounts (account_id, owner_id, name, balance, currency, created_ts, updated_ts)
		VALUES (@account_id, @owner_id, @name, @balance, @currency, @created_ts, @updated_ts)
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: created.ID},
		{Name: "owner_id", Value: created.OwnerID},
		{Name: "name", Value: created.Name},
		{Name: "balance", Value: decimalToRat(created.Balance)},
		{Name: "currency", Value: created.Currency},
		{Name: "created_ts", Value: created.CreatedAt},
		{Name: "updated_ts", Value: created.UpdatedAt},
	}

	if err := r.runDML(ctx, q); err != nil {
		return nil, store.Failed("CreateAccount", err)
	}
	return &created, nil
}

// UpdateAccountBalance implements store.Store.
func (r *Repository) UpdateAccountBalance(ctx context.Context, id string, newBalance decimal.Decimal) error {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s.accounts
		SET balance = @balance,
		    updated_ts = @updated_ts
		WHERE account_id = @account_id
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "balance", Value: decimalToRat(newBalance)},
		{Name: "updated_ts", Value: time.Now().UTC()},
		{Name: "account_id", Value: id},
	}

	if err := r.runDML(ctx, q); err != nil {
		return store.Failed("UpdateAccountBalance", err)
	}
	return nil
}
