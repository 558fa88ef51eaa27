// Package ledger persists the per-document idempotency records and the
// backfill job progress rows in Firestore. Both are single-row documents
// keyed by identifiers unique enough that concurrent writers never touch
// the same document.
package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

const defaultLedgerCollection = "ingestion_ledger"

// Store reads and writes LedgerEntry documents. Entries are written with
// Set (full overwrite): the processor is the single writer for any given
// ingestion ID, so no field-level merging is needed.
type Store struct {
	client     *firestore.Client
	collection string
}

// NewStore creates a ledger store over the given Firestore client.
func NewStore(client *firestore.Client, collection string) *Store {
	if collection == "" {
		collection = defaultLedgerCollection
	}
	return &Store{client: client, collection: collection}
}

// Get returns the ledger entry for (tenantID, sourceID), or nil if the
// document has never been attempted.
func (s *Store) Get(ctx context.Context, tenantID, sourceID string) (*models.LedgerEntry, error) {
	docID := models.IngestionID(tenantID, sourceID)
	snap, err := s.client.Collection(s.collection).Doc(docID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entry %s: %w", docID, err)
	}

	var entry models.LedgerEntry
	if err := snap.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entry %s: %w", docID, err)
	}
	return &entry, nil
}

// Record upserts the ledger entry for the entry's (tenant, source) pair.
// Entries are never deleted; failed entries are overwritten in place on
// retry and the collection serves as the audit trail.
func (s *Store) Record(ctx context.Context, entry *models.LedgerEntry) error {
	docID := models.IngestionID(entry.TenantID, entry.SourceID)
	if _, err := s.client.Collection(s.collection).Doc(docID).Set(ctx, entry); err != nil {
		return fmt.Errorf("failed to write ledger entry %s: %w", docID, err)
	}
	return nil
}
