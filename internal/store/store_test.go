package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReportIDIsDeterministic(t *testing.T) {
	date := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	a := ReportID(date, "Sales_Summary_2025-05-01.pdf")
	b := ReportID(date, "Sales_Summary_2025-05-01.pdf")
	require.Equal(t, a, b)

	require.True(t, strings.HasPrefix(a, "2025-05-01_"))
	require.Len(t, a, len("2025-05-01_")+12)
}

func TestReportIDIgnoresFilenameCase(t *testing.T) {
	date := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t,
		ReportID(date, "SALES_SUMMARY.PDF"),
		ReportID(date, "sales_summary.pdf"),
	)
}

func TestReportIDSeparatesDatesAndFiles(t *testing.T) {
	date := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	nextDay := date.AddDate(0, 0, 1)

	require.NotEqual(t, ReportID(date, "sales.pdf"), ReportID(nextDay, "sales.pdf"))
	require.NotEqual(t, ReportID(date, "sales.pdf"), ReportID(date, "pmix.pdf"))
}

func TestUpsertScriptShape(t *testing.T) {
	script := upsertScript("restaurant_analytics", "report_metrics")

	require.Contains(t, script, "BEGIN TRANSACTION;")
	require.Contains(t, script, "COMMIT TRANSACTION;")
	require.Contains(t, script, "DELETE FROM `restaurant_analytics.report_metrics` WHERE report_id = @report_id;")
	require.Contains(t, script, "FROM UNNEST(@rows)")
	require.Contains(t, script, "CAST(@report_date AS DATE)")
	// Delete must precede insert for the rewrite to be idempotent.
	require.Less(t, strings.Index(script, "DELETE FROM"), strings.Index(script, "INSERT INTO"))
}

func TestArchiveObjectName(t *testing.T) {
	name := archiveObjectName("senso-sushi", "msg-17", "Sales_Summary.pdf")
	require.Equal(t, "senso-sushi/msg-17/Sales_Summary.pdf", name)
}
