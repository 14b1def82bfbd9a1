package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
)

const recurringColumns = `recurring_id, owner_id, name, amount, kind, frequency, day_of_month,
	day_of_week, account_id, to_account_id, category_id, is_active, last_applied,
	created_ts, updated_ts`

// ListActiveRecurringItems implements store.Store.
func (r *Repository) ListActiveRecurringItems(ctx context.Context, ownerID string) ([]*domain.RecurringItem, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s.recurring_items
		WHERE owner_id = @owner_id
		  AND is_active = TRUE
		ORDER BY created_ts
	`, recurringColumns, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
	}

	return r.readRecurring(ctx, q, "ListActiveRecurringItems")
}

// ListRecurringItems implements store.Store.
func (r *Repository) ListRecurringItems(ctx context.Context, ownerID string) ([]*domain.RecurringItem, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s.recurring_items
		WHERE owner_id = @owner_id
		ORDER BY created_ts
	`, recurringColumns, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
	}

	return r.readRecurring(ctx, q, "ListRecurringItems")
}

func (r *Repository) readRecurring(ctx context.Context, q *bigquery.Query, op string) ([]*domain.RecurringItem, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Failed(op, fmt.Errorf("query read: %w", err))
	}

	var items []*domain.RecurringItem
	for {
		var row RecurringItemRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Failed(op, fmt.Errorf("iter next: %w", err))
		}
		items = append(items, row.toDomain())
	}

	return items, nil
}

// CreateRecurringItem implements store.Store.
func (r *Repository) CreateRecurringItem(ctx context.Context, item *domain.RecurringItem) (*domain.RecurringItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	created := *item
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = now

	lastApplied := bigquery.NullDate{}
	if created.LastApplied != nil {
		lastApplied = bigquery.NullDate{Date: *created.LastApplied, Valid: true}
	}

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s.recurring_items (%s)
		VALUES (@recurring_id, @owner_id, @name, @amount, @kind, @frequency, @day_of_month,
			@day_of_week, @account_id, @to_account_id, @category_id, @is_active, @last_applied,
			@created_ts, @updated_ts)
	`, datasetID, recurringColumns))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "recurring_id", Value: created.ID},
		{Name: "owner_id", Value: created.OwnerID},
		{Name: "name", Value: created.Name},
		{Name: "amount", Value: decimalToRat(created.Amount)},
		{Name: "kind", Value: string(created.Kind)},
		{Name: "frequency", Value: string(created.Frequency)},
		{Name: "day_of_month", Value: created.DayOfMonth},
		{Name: "day_of_week", Value: created.DayOfWeek},
		{Name: "account_id", Value: created.AccountID},
		{Name: "to_account_id", Value: created.ToAccountID},
		{Name: "category_id", Value: created.CategoryID},
		{Name: "is_active", Value: created.IsActive},
		{Name: "last_applied", Value: lastApplied},
		{Name: "created_ts", Value: created.CreatedAt},
		{Name: "updated_ts", Value: created.UpdatedAt},
	}

	if err := r.runDML(ctx, q); err != nil {
		return nil, store.Failed("CreateRecurringItem", err)
	}
	return &created, nil
}

// MarkRecurringApplied implements store.Store.
func (r *Repository) MarkRecurringApplied(ctx context.Context, id string, date civil.Date) error {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s.recurring_items
		SET last_applied = @last_applied,
		    updated_ts = @updated_ts
		WHERE recurring_id = @recurring_id
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "last_applied", Value: date},
		{Name: "updated_ts", Value: time.Now().UTC()},
		{Name: "recurring_id", Value: id},
	}

	if err := r.runDML(ctx, q); err != nil {
		return store.Failed("MarkRecurringApplied", err)
	}
	return nil
}
