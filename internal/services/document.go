package services

import (
	"context"
	"log/slog"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

// docOutcome summarizes what happened to one document: every attachment
// runs through the processor; the document counts as failed if any
// attachment failed, skipped if it carried no attachment at all.
type docOutcome struct {
	skipped bool
	failed  bool
	errors  []models.IngestionError
}

// handleDocument fetches, archives and processes all attachments of one
// document. It is the shared per-document step of both drivers; it never
// returns an error, because partial failure must not stop a run.
func handleDocument(ctx context.Context, src DocumentSource, processor *ReportProcessor, archiver AttachmentArchiver, tenantID string, doc models.SourceDocument) docOutcome {
	logCtx := slog.With("tenantId", tenantID, "messageId", doc.ID, "subject", doc.Subject)

	attachments, err := src.FetchAttachments(ctx, doc)
	if err != nil {
		logCtx.Error("Failed to fetch attachments", "error", err)
		return docOutcome{
			failed: true,
			errors: []models.IngestionError{{SourceID: doc.ID, Error: err.Error()}},
		}
	}
	if len(attachments) == 0 {
		logCtx.Info("No attachments found; skipping document.")
		return docOutcome{skipped: true}
	}

	if archiver != nil {
		if err := archiver.Archive(ctx, tenantID, doc, attachments); err != nil {
			// The archive bucket is a convenience copy; losing it must not
			// block ingestion.
			logCtx.Warn("Failed to archive attachments; continuing", "error", err)
		}
	}

	var outcome docOutcome
	for _, att := range attachments {
		result := processor.Process(ctx, tenantID, doc, att)
		if result.Success {
			continue
		}
		outcome.failed = true
		outcome.errors = append(outcome.errors, models.IngestionError{
			SourceID: doc.ID,
			Filename: att.Filename,
			Error:    result.ErrorMessage,
		})
	}
	return outcome
}
