package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
)

const transactionColumns = `transaction_id, owner_id, description, amount, kind, account_id,
	counter_account_id, category_id, transaction_date, is_applied, recurring_id,
	linked_transaction_id, created_ts`

// GetTransaction implements store.Store.
func (r *Repository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s.transactions
		WHERE transaction_id = @transaction_id
	`, transactionColumns, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Failed("GetTransaction", fmt.Errorf("query read: %w", err))
	}

	var row TransactionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, store.Failed("GetTransaction", fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound))
	}
	if err != nil {
		return nil, store.Failed("GetTransaction", fmt.Errorf("iter next: %w", err))
	}

	return row.toDomain(), nil
}

// ListTransactions implements store.Store. Results come newest first;
// limit <= 0 returns everything.
func (r *Repository) ListTransactions(ctx context.Context, ownerID string, limit int) ([]*domain.Transaction, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.transactions
		WHERE owner_id = @owner_id
		ORDER BY transaction_date DESC, created_ts DESC
	`, transactionColumns, datasetID)
	params := []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
	}
	if limit > 0 {
		sql += "\n\t\tLIMIT @row_limit"
		params = append(params, bigquery.QueryParameter{Name: "row_limit", Value: limit})
	}

	q := r.client.Query(sql)
	q.Parameters = params

	return r.readTransactions(ctx, q, "ListTransactions")
}

// ListUnappliedTransactions implements store.Store. The is_applied filter is
// what makes re-running settlement safe: rows already folded into a balance
// are never selected again.
func (r *Repository) ListUnappliedTransactions(ctx context.Context, ownerID string) ([]*domain.Transaction, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s.transactions
		WHERE owner_id = @owner_id
		  AND is_applied = FALSE
		ORDER BY transaction_date, created_ts
	`, transactionColumns, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
	}

	return r.readTransactions(ctx, q, "ListUnappliedTransactions")
}

func (r *Repository) readTransactions(ctx context.Context, q *bigquery.Query, op string) ([]*domain.Transaction, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Failed(op, fmt.Errorf("query read: %w", err))
	}

	var txs []*domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Failed(op, fmt.Errorf("iter next: %w", err))
		}
		txs = append(txs, row.toDomain())
	}

	return txs, nil
}

// CreateTransaction implements store.Store.
func (r *Repository) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	created := *tx
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s.transactions (%s)
		VALUES (@transaction_id, @owner_id, @description, @amount, @kind, @account_id,
			@counter_account_id, @category_id, @transaction_date, @is_applied, @recurring_id,
			@linked_transaction_id, @created_ts)
	`, datasetID, transactionColumns))
	q.Parameters = transactionParams(&created, "")

	if err := r.runDML(ctx, q); err != nil {
		return nil, store.Failed("CreateTransaction", err)
	}
	return &created, nil
}

// CreateLinkedTransferPair implements store.Store. Both legs go in through a
// single DML INSERT, which BigQuery applies atomically: either both rows land
// or neither does.
func (r *Repository) CreateLinkedTransferPair(ctx context.Context, out, in *domain.Transaction) (*domain.Transaction, *domain.Transaction, error) {
	outCreated, inCreated := *out, *in
	now := time.Now().UTC()
	if outCreated.ID == "" {
		outCreated.ID = uuid.NewString()
	}
	if inCreated.ID == "" {
		inCreated.ID = uuid.NewString()
	}
	outCreated.LinkedTransactionID = inCreated.ID
	inCreated.LinkedTransactionID = outCreated.ID
	if outCreated.CreatedAt.IsZero() {
		outCreated.CreatedAt = now
	}
	if inCreated.CreatedAt.IsZero() {
		inCreated.CreatedAt = now
	}

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s.transactions (%s)
		VALUES
			(@out_transaction_id, @out_owner_id, @out_description, @out_amount, @out_kind, @out_account_id,
			 @out_counter_account_id, @out_category_id, @out_transaction_date, @out_is_applied, @out_recurring_id,
			 @out_linked_transaction_id, @out_created_ts),
			(@in_transaction_id, @in_owner_id, @in_description, @in_amount, @in_kind, @in_account_id,
			 @in_counter_account_id, @in_category_id, @in_transaction_date, @in_is_applied, @in_recurring_id,
			 @in_linked_transaction_id, @in_created_ts)
	`, datasetID, transactionColumns))
	q.Parameters = append(transactionParams(&outCreated, "out_"), transactionParams(&inCreated, "in_")...)

	if err := r.runDML(ctx, q); err != nil {
		return nil, nil, store.Failed("CreateLinkedTransferPair", err)
	}
	return &outCreated, &inCreated, nil
}

// MarkTransactionApplied implements store.Store.
func (r *Repository) MarkTransactionApplied(ctx context.Context, id string) error {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s.transactions
		SET is_applied = TRUE
		WHERE transaction_id = @transaction_id
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
	}

	if err := r.runDML(ctx, q); err != nil {
		return store.Failed("MarkTransactionApplied", err)
	}
	return nil
}

// DeleteTransaction implements store.Store.
func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	q := r.client.Query(fmt.Sprintf(`
		DELETE FROM %s.transactions
		WHERE transaction_id = @transaction_id
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
	}

	if err := r.runDML(ctx, q); err != nil {
		return store.Failed("DeleteTransaction", err)
	}
	return nil
}

// transactionParams builds the parameter list for one transaction row,
// optionally prefixing parameter names so two rows can share a statement.
func transactionParams(tx *domain.Transaction, prefix string) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: prefix + "transaction_id", Value: tx.ID},
		{Name: prefix + "owner_id", Value: tx.OwnerID},
		{Name: prefix + "description", Value: tx.Description},
		{Name: prefix + "amount", Value: decimalToRat(tx.Amount)},
		{Name: prefix + "kind", Value: string(tx.Kind)},
		{Name: prefix + "account_id", Value: tx.AccountID},
		{Name: prefix + "counter_account_id", Value: tx.CounterAccountID},
		{Name: prefix + "category_id", Value: tx.CategoryID},
		{Name: prefix + "transaction_date", Value: tx.Date},
		{Name: prefix + "is_applied", Value: tx.IsApplied},
		{Name: prefix + "recurring_id", Value: tx.RecurringID},
		{Name: prefix + "linked_transaction_id", Value: tx.LinkedTransactionID},
		{Name: prefix + "created_ts", Value: tx.CreatedAt},
	}
}
