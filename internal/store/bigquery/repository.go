// Package bigquery implements store.Store on top of BigQuery. Row structs
// carry bigquery tags, writes go through parameterized DML, and reads loop
// with iterator.Done. The transfer-pair write is a single two-row INSERT
// statement so both legs commit together.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/budget-tracker/internal/store"
)

const datasetID = "budget"

// Repository is the BigQuery-backed implementation of store.Store. It holds
// a shared BigQuery client to avoid creating a new connection per operation.
type Repository struct {
	client *bigquery.Client
}

// NewRepository creates a Repository with its own BigQuery client.
func NewRepository(ctx context.Context, projectID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client}, nil
}

// NewRepositoryWithClient creates a Repository over an existing client.
// The caller keeps ownership of the client.
func NewRepositoryWithClient(client *bigquery.Client) *Repository {
	return &Repository{client: client}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// runDML runs a parameterized DML statement to completion.
func (r *Repository) runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running statement: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// Ensure Repository implements the persistence capability.
var _ store.Store = (*Repository)(nil)
