// Package backup exports one owner's complete data set as a JSON snapshot in
// GCS. Snapshots are plain serialized state, not an audit trail: restoring
// one replaces current data wholesale.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
)

// SnapshotVersion identifies the snapshot wire format.
const SnapshotVersion = 1

// Snapshot is everything one owner has: the shape mirrors what the import/
// export surface exchanges with clients.
type Snapshot struct {
	Version        int                     `json:"version"`
	ExportedAt     time.Time               `json:"exported_at"`
	OwnerID        string                  `json:"owner_id"`
	Accounts       []*domain.Account       `json:"accounts"`
	Categories     []*domain.Category      `json:"categories"`
	RecurringItems []*domain.RecurringItem `json:"recurring_items"`
	Transactions   []*domain.Transaction   `json:"transactions"`
	Settings       *domain.Settings        `json:"settings"`
}

// BuildSnapshot reads the owner's full data set from the store.
func BuildSnapshot(ctx context.Context, s store.Store, ownerID string) (*Snapshot, error) {
	accounts, err := s.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("BuildSnapshot: listing accounts: %w", err)
	}
	categories, err := s.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("BuildSnapshot: listing categories: %w", err)
	}
	items, err := s.ListRecurringItems(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("BuildSnapshot: listing recurring items: %w", err)
	}
	transactions, err := s.ListTransactions(ctx, ownerID, 0)
	if err != nil {
		return nil, fmt.Errorf("BuildSnapshot: listing transactions: %w", err)
	}
	settings, err := s.GetSettings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("BuildSnapshot: loading settings: %w", err)
	}

	return &Snapshot{
		Version:        SnapshotVersion,
		ExportedAt:     time.Now().UTC(),
		OwnerID:        ownerID,
		Accounts:       accounts,
		Categories:     categories,
		RecurringItems: items,
		Transactions:   transactions,
		Settings:       settings,
	}, nil
}

// Upload writes the snapshot as JSON to the given GCS bucket and returns the
// object name. It assumes Application Default Credentials are configured.
func Upload(ctx context.Context, bucketName string, snap *Snapshot) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Upload: marshaling snapshot: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("Upload: creating storage client: %w", err)
	}
	defer client.Close()

	objectName := fmt.Sprintf("snapshots/%s/%s.json", snap.OwnerID, snap.ExportedAt.Format("2006-01-02T150405Z"))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: writing object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalizing upload: %w", err)
	}

	return objectName, nil
}

// Fetch downloads and decodes a snapshot object from GCS.
func Fetch(ctx context.Context, bucketName, objectName string) (*Snapshot, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucketName, objectName, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("Fetch: unmarshaling snapshot: %w", err)
	}
	return &snap, nil
}
