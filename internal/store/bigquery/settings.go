package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
)

// GetSettings implements store.Store. Owners without a settings row get a
// defaults row written for them, so a fresh owner can settle immediately and
// is visible to ListOwners from the first read on.
func (r *Repository) GetSettings(ctx context.Context, ownerID string) (*domain.Settings, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT owner_id, default_currency, projection_days, last_daily_run
		FROM %s.settings
		WHERE owner_id = @owner_id
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Failed("GetSettings", fmt.Errorf("query read: %w", err))
	}

	var row SettingsRow
	err = it.Next(&row)
	if err == iterator.Done {
		return r.createDefaultSettings(ctx, ownerID)
	}
	if err != nil {
		return nil, store.Failed("GetSettings", fmt.Errorf("iter next: %w", err))
	}

	return row.toDomain(), nil
}

// createDefaultSettings inserts the defaults row for an owner seen for the
// first time. MERGE keeps a concurrent first read from inserting twice.
func (r *Repository) createDefaultSettings(ctx context.Context, ownerID string) (*domain.Settings, error) {
	defaults := &domain.Settings{
		OwnerID:         ownerID,
		DefaultCurrency: "GBP",
		ProjectionDays:  30,
	}

	q := r.client.Query(fmt.Sprintf(`
		MERGE %s.settings s
		USING (SELECT @owner_id AS owner_id) src
		ON s.owner_id = src.owner_id
		WHEN NOT MATCHED THEN
		  INSERT (owner_id, default_currency, projection_days, last_daily_run)
		  VALUES (@owner_id, @default_currency, @projection_days, NULL)
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "default_currency", Value: defaults.DefaultCurrency},
		{Name: "projection_days", Value: defaults.ProjectionDays},
	}

	if err := r.runDML(ctx, q); err != nil {
		return nil, store.Failed("GetSettings", err)
	}
	return defaults, nil
}

// SetLastDailyRun implements store.Store. MERGE keeps this a single durable
// statement whether or not the owner already has a settings row; settlement
// relies on it being the last write of a pass.
func (r *Repository) SetLastDailyRun(ctx context.Context, ownerID string, date civil.Date) error {
	q := r.client.Query(fmt.Sprintf(`
		MERGE %s.settings s
		USING (SELECT @owner_id AS owner_id) src
		ON s.owner_id = src.owner_id
		WHEN MATCHED THEN
		  UPDATE SET last_daily_run = @last_daily_run
		WHEN NOT MATCHED THEN
		  INSERT (owner_id, default_currency, projection_days, last_daily_run)
		  VALUES (@owner_id, 'GBP', 30, @last_daily_run)
	`, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "last_daily_run", Value: date},
	}

	if err := r.runDML(ctx, q); err != nil {
		return store.Failed("SetLastDailyRun", err)
	}
	return nil
}

// ListOwners implements store.Store.
func (r *Repository) ListOwners(ctx context.Context) ([]string, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT owner_id
		FROM %s.settings
		ORDER BY owner_id
	`, datasetID))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Failed("ListOwners", fmt.Errorf("query read: %w", err))
	}

	var owners []string
	for {
		var row struct {
			OwnerID string `bigquery:"owner_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Failed("ListOwners", fmt.Errorf("iter next: %w", err))
		}
		owners = append(owners, row.OwnerID)
	}

	return owners, nil
}
