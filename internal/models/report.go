package models

import "time"

// SourceDocument is one candidate email message returned by a document
// source search. It carries just enough metadata for routing and the
// ledger key; attachment bytes are fetched separately.
type SourceDocument struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	Date    time.Time `json:"date"`
}

// Attachment is one binary attachment of a SourceDocument.
type Attachment struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
	Size     int64  `json:"size"`
}

// MetricRow is one extracted metric line from a daily report.
type MetricRow struct {
	MetricName  string  `json:"metricName"`
	Value       float64 `json:"value"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	ItemName    string  `json:"itemName"`
}

// ParsedReport is the structured output of a report parser. It is
// ephemeral: the store persists the rows, the ledger only records the
// resulting report ID and row count.
type ParsedReport struct {
	ReportDate     time.Time   `json:"reportDate"`
	SourceFilename string      `json:"sourceFilename"`
	ReportType     string      `json:"reportType"`
	MetricRows     []MetricRow `json:"metricRows"`
}

// UpsertResult is returned by the report store after an idempotent write.
type UpsertResult struct {
	ReportID    string `json:"reportId"`
	RowsWritten int    `json:"rowsWritten"`
}
