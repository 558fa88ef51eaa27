package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// NewBigQueryClient creates a BigQuery client for the analytical store.
func NewBigQueryClient(ctx context.Context, projectID string) (*bigquery.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a bigquery client")
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}

	return client, nil
}
