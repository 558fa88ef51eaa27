package store

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/fdsanalytics/ingestflow/internal/gcp"
	"github.com/fdsanalytics/ingestflow/internal/models"
)

// Archiver keeps the raw attachment bytes in a write-once GCS bucket so a
// report can be re-parsed later without touching the mailbox. Archiving
// is best-effort: drivers log archive failures and continue processing.
type Archiver struct {
	client *storage.Client
	bucket string
}

// NewArchiver creates an archiver writing into the given bucket.
func NewArchiver(client *storage.Client, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket}
}

// Archive writes every attachment of one document concurrently. Objects
// are conditional writes keyed by (tenant, message, filename), so
// re-archiving during a replay is a no-op.
func (a *Archiver) Archive(ctx context.Context, tenantID string, doc models.SourceDocument, attachments []models.Attachment) error {
	bucketHandle := a.client.Bucket(a.bucket)
	eg, gctx := errgroup.WithContext(ctx)
	for _, att := range attachments {
		objectName := archiveObjectName(tenantID, doc.ID, att.Filename)
		data := att.Data
		eg.Go(func() error {
			if err := gcp.SaveToGCSAtomically(gctx, bucketHandle, objectName, data); err != nil {
				return fmt.Errorf("attachment %s: %w", objectName, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to archive attachments of message %s: %w", doc.ID, err)
	}
	log.Printf("[Archive][Msg: %s] Archived %d attachment(s).", doc.ID, len(attachments))
	return nil
}

// archiveObjectName lays the bucket out as tenant/message/filename.
func archiveObjectName(tenantID, messageID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", tenantID, messageID, filename)
}
