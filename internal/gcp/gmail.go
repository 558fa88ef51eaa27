package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// NewGmailService creates a read-only Gmail API client. On Cloud Functions
// the service account must carry domain-wide delegation for the report
// mailbox; locally, application default credentials are used.
func NewGmailService(ctx context.Context, opts ...option.ClientOption) (*gmail.Service, error) {
	opts = append(opts, option.WithScopes(gmail.GmailReadonlyScope))
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}
