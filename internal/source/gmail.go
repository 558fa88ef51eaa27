// Package source adapts the Gmail API to the document-source interface
// the ingestion drivers consume: search a mailbox for candidate report
// emails and fetch their attachment bytes.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

// DefaultMaxResults bounds a single search. Daily volume is one or two
// messages; even a year-long backfill stays in the hundreds.
const DefaultMaxResults = 1000

// SearchQuery bounds a mailbox search. A zero Before leaves the range
// open-ended.
type SearchQuery struct {
	After      time.Time
	Before     time.Time
	MaxResults int64
}

// GmailSource lists report emails and fetches their attachments.
type GmailSource struct {
	svc       *gmail.Service
	user      string
	baseQuery string
}

// NewGmailSource creates a source over an authenticated Gmail service.
// baseQuery narrows the mailbox to report mail, e.g.
// "from:reports@pos.example has:attachment".
func NewGmailSource(svc *gmail.Service, user, baseQuery string) *GmailSource {
	if user == "" {
		user = "me"
	}
	return &GmailSource{svc: svc, user: user, baseQuery: baseQuery}
}

// Search lists candidate documents in the window. Documents are returned
// in the order Gmail yields them; callers rely on that order being stable
// for replayable logs, so it is not re-sorted here.
func (s *GmailSource) Search(ctx context.Context, q SearchQuery) ([]models.SourceDocument, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	query := buildQuery(s.baseQuery, q.After, q.Before)
	log.Printf("[Gmail] Searching with query: %q", query)

	var docs []models.SourceDocument
	pageToken := ""
	for {
		call := s.svc.Users.Messages.List(s.user).Q(query).MaxResults(maxResults).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gmail search failed: %w", err)
		}

		for _, m := range resp.Messages {
			doc, err := s.messageMetadata(ctx, m.Id)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			if int64(len(docs)) >= maxResults {
				return docs, nil
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return docs, nil
		}
	}
}

// FetchAttachments downloads all attachments of one document. An empty
// slice is a valid result: report emails occasionally arrive without
// their PDF and are skipped by the drivers.
func (s *GmailSource) FetchAttachments(ctx context.Context, doc models.SourceDocument) ([]models.Attachment, error) {
	msg, err := s.svc.Users.Messages.Get(s.user, doc.ID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", doc.ID, err)
	}
	if msg.Payload == nil {
		return nil, nil
	}

	var attachments []models.Attachment
	for _, part := range collectAttachmentParts(msg.Payload) {
		data, err := s.partData(ctx, doc.ID, part)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, models.Attachment{
			Filename: part.Filename,
			Data:     data,
			Size:     int64(len(data)),
		})
	}
	return attachments, nil
}

func (s *GmailSource) messageMetadata(ctx context.Context, id string) (models.SourceDocument, error) {
	msg, err := s.svc.Users.Messages.Get(s.user, id).
		Format("metadata").
		MetadataHeaders("Subject", "From").
		Context(ctx).Do()
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("failed to fetch metadata for message %s: %w", id, err)
	}

	doc := models.SourceDocument{
		ID:   id,
		Date: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload != nil {
		doc.Subject = headerValue(msg.Payload.Headers, "Subject")
		doc.From = headerValue(msg.Payload.Headers, "From")
	}
	return doc, nil
}

func (s *GmailSource) partData(ctx context.Context, messageID string, part *gmail.MessagePart) ([]byte, error) {
	if part.Body == nil {
		return nil, fmt.Errorf("attachment part %q of message %s has no body", part.Filename, messageID)
	}
	encoded := part.Body.Data
	if encoded == "" && part.Body.AttachmentId != "" {
		att, err := s.svc.Users.Messages.Attachments.Get(s.user, messageID, part.Body.AttachmentId).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to download attachment %q of message %s: %w", part.Filename, messageID, err)
		}
		encoded = att.Data
	}
	data, err := decodeBody(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %q of message %s: %w", part.Filename, messageID, err)
	}
	return data, nil
}

// buildQuery combines the configured base filter with Gmail's epoch-second
// after:/before: operators.
func buildQuery(base string, after, before time.Time) string {
	parts := []string{}
	if base != "" {
		parts = append(parts, base)
	}
	if !after.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", after.Unix()))
	}
	if !before.IsZero() {
		parts = append(parts, fmt.Sprintf("before:%d", before.Unix()))
	}
	return strings.Join(parts, " ")
}

// collectAttachmentParts walks the MIME tree and returns every part that
// carries a filename. Report PDFs are usually one level deep, but
// forwarded mail nests arbitrarily.
func collectAttachmentParts(payload *gmail.MessagePart) []*gmail.MessagePart {
	var out []*gmail.MessagePart
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part == nil {
			return
		}
		if part.Filename != "" {
			out = append(out, part)
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return out
}

// decodeBody handles both padded and unpadded URL-safe base64, which the
// Gmail API mixes freely.
func decodeBody(encoded string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(encoded); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(encoded)
}

func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
