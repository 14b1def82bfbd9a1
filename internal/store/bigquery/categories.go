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

// ListCategories implements store.Store.
func (r *Repository) ListCategories(ctx context.Context, ownerID string) ([]*domain.Category, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT category_id, owner_id, name, color, created_ts
		FROM %s.categories
		WHERE owner_id = @owner_id
		ORDER BY name
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Failed("ListCategories", fmt.Errorf("query read: %w", err))
	}

	var categories []*domain.Category
	for {
		var row CategoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Failed("ListCategories", fmt.Errorf("iter next: %w", err))
		}
		categories = append(categories, row.toDomain())
	}

	return categories, nil
}

// CreateCategory implements store.Store.
func (r *Repository) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	created := *category
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s.categories (category_id, owner_id, name, color, created_ts)
		VALUES (@category_id, @owner_id, @name, @color, @created_ts)
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category_id", Value: created.ID},
		{Name: "owner_id", Value: created.OwnerID},
		{Name: "name", Value: created.Name},
		{Name: "color", Value: created.Color},
		{Name: "created_ts", Value: created.CreatedAt},
	}

	if err := r.runDML(ctx, q); err != nil {
		return nil, store.Failed("CreateCategory", err)
	}
	return &created, nil
}
