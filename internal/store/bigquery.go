// Package store writes parsed reports into the analytical store and
// archives raw attachments. The BigQuery write is the one idempotency
// anchor outside the ledger: re-submitting the same report replaces its
// rows instead of duplicating them.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

// BigQueryStore upserts report rows into one metrics table.
type BigQueryStore struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQueryStore creates a store over the given client and target table.
func NewBigQueryStore(client *bigquery.Client, dataset, table string) *BigQueryStore {
	return &BigQueryStore{client: client, dataset: dataset, table: table}
}

// metricRowParam mirrors MetricRow for the ARRAY<STRUCT> query parameter.
type metricRowParam struct {
	MetricName  string  `bigquery:"metric_name"`
	MetricValue float64 `bigquery:"metric_value"`
	Category    string  `bigquery:"category"`
	Subcategory string  `bigquery:"subcategory"`
	ItemName    string  `bigquery:"item_name"`
}

// Upsert replaces all rows of the report's derived ID in a single scripted
// transaction (delete + insert). Running it twice with identical input
// yields one logical report, which makes retries after a ledger-write
// crash safe.
func (s *BigQueryStore) Upsert(ctx context.Context, report *models.ParsedReport) (models.UpsertResult, error) {
	reportID := ReportID(report.ReportDate, report.SourceFilename)

	rows := make([]metricRowParam, 0, len(report.MetricRows))
	for _, r := range report.MetricRows {
		rows = append(rows, metricRowParam{
			MetricName:  r.MetricName,
			MetricValue: r.Value,
			Category:    r.Category,
			Subcategory: r.Subcategory,
			ItemName:    r.ItemName,
		})
	}

	q := s.client.Query(upsertScript(s.dataset, s.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "report_id", Value: reportID},
		{Name: "report_date", Value: report.ReportDate.Format("2006-01-02")},
		{Name: "source_filename", Value: report.SourceFilename},
		{Name: "report_type", Value: report.ReportType},
		{Name: "rows", Value: rows},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return models.UpsertResult{}, fmt.Errorf("failed to start upsert for report %s: %w", reportID, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return models.UpsertResult{}, fmt.Errorf("failed to wait for upsert of report %s: %w", reportID, err)
	}
	if err := status.Err(); err != nil {
		return models.UpsertResult{}, fmt.Errorf("upsert of report %s failed: %w", reportID, err)
	}

	log.Printf("[BigQuery][Report: %s] Upserted %d rows.", reportID, len(rows))
	return models.UpsertResult{ReportID: reportID, RowsWritten: len(rows)}, nil
}

// upsertScript renders the delete+insert transaction for one report.
func upsertScript(dataset, table string) string {
	target := fmt.Sprintf("`%s.%s`", dataset, table)
	return fmt.Sprintf(`BEGIN TRANSACTION;
DELETE FROM %s WHERE report_id = @report_id;
INSERT INTO %s (report_id, report_date, source_filename, report_type, metric_name, metric_value, category, subcategory, item_name, ingested_at)
SELECT @report_id, CAST(@report_date AS DATE), @source_filename, @report_type, r.metric_name, r.metric_value, r.category, r.subcategory, r.item_name, CURRENT_TIMESTAMP()
FROM UNNEST(@rows) AS r;
COMMIT TRANSACTION;`, target, target)
}

// ReportID derives the deterministic report identifier from the report
// date and source filename. The filename is hashed so oddly named POS
// exports cannot produce unwieldy or colliding IDs.
func ReportID(reportDate time.Time, sourceFilename string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(sourceFilename)))
	return fmt.Sprintf("%s_%s", reportDate.Format("2006-01-02"), hex.EncodeToString(sum[:])[:12])
}
