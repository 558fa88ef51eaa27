package parsers

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/require"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

type stubParser struct {
	typ   string
	match string
}

func (s *stubParser) Type() string { return s.typ }

func (s *stubParser) CanParse(filename, subject string) bool {
	return filename == s.match || subject == s.match
}

func (s *stubParser) Parse(context.Context, []byte, ParseMeta) (*models.ParsedReport, error) {
	return nil, nil
}

func TestRouterFirstMatchWins(t *testing.T) {
	first := &stubParser{typ: "a", match: "report.pdf"}
	second := &stubParser{typ: "b", match: "report.pdf"}
	router := NewRouter(first, second)

	p, ok := router.Route("report.pdf", "")
	require.True(t, ok)
	require.Equal(t, "a", p.Type())
}

func TestRouterUnknownType(t *testing.T) {
	router := NewRouter(&stubParser{typ: "a", match: "report.pdf"})
	_, ok := router.Route("mystery.xlsx", "Weekly newsletter")
	require.False(t, ok)
}

func TestRouterMatchesOnSubject(t *testing.T) {
	router := NewRouter(&stubParser{typ: "a", match: "Daily Sales Summary"})
	p, ok := router.Route("attachment.pdf", "Daily Sales Summary")
	require.True(t, ok)
	require.Equal(t, "a", p.Type())
}

func TestSalesSummaryCanParse(t *testing.T) {
	p := &SalesSummaryParser{}
	require.True(t, p.CanParse("Sales_Summary_2025-05-01.pdf", ""))
	require.True(t, p.CanParse("report.pdf", "Your Daily Sales report"))
	require.False(t, p.CanParse("pmix.pdf", "Product Mix"))
}

func TestProductMixCanParse(t *testing.T) {
	p := &ProductMixParser{}
	require.True(t, p.CanParse("PMIX-2025-05-01.pdf", ""))
	require.True(t, p.CanParse("report.pdf", "Product Mix for May 1"))
	require.False(t, p.CanParse("sales_summary.pdf", "Daily Sales"))
}

func TestDecodeExtraction(t *testing.T) {
	meta := ParseMeta{Filename: "sales.pdf", EmailDate: time.Date(2025, 5, 2, 7, 0, 0, 0, time.UTC)}
	jsonString := `{
		"reportDate": "2025-05-01",
		"rows": [
			{"metricName": "net_sales", "value": 4211.5, "category": "(Sushi)", "subcategory": "Signature Rolls", "itemName": ""},
			{"metricName": "quantity_sold", "value": 12, "category": "(Beer)", "subcategory": "Bottle Beer", "itemName": "Sapporo"}
		]
	}`

	report, err := decodeExtraction(jsonString, TypeSalesSummary, meta)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), report.ReportDate)
	require.Equal(t, "sales.pdf", report.SourceFilename)
	require.Equal(t, TypeSalesSummary, report.ReportType)
	require.Len(t, report.MetricRows, 2)
	require.Equal(t, "net_sales", report.MetricRows[0].MetricName)
	require.InDelta(t, 4211.5, report.MetricRows[0].Value, 0.001)
	require.Equal(t, "Sapporo", report.MetricRows[1].ItemName)
}

func TestDecodeExtractionRejectsMalformed(t *testing.T) {
	meta := ParseMeta{Filename: "sales.pdf"}

	_, err := decodeExtraction(`not json at all`, TypeSalesSummary, meta)
	require.Error(t, err)

	_, err = decodeExtraction(`{"reportDate": "May 1st 2025", "rows": [{"metricName": "x", "value": 1}]}`, TypeSalesSummary, meta)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid reportDate")

	_, err = decodeExtraction(`{"reportDate": "2025-05-01", "rows": []}`, TypeSalesSummary, meta)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no metric rows")
}

func TestExtractJSONContent(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []genai.Part{genai.Text("```json\n{\"reportDate\": \"2025-05-01\"}\n```")},
			},
		}},
	}
	require.Equal(t, `{"reportDate": "2025-05-01"}`, extractJSONContent(resp))

	require.Empty(t, extractJSONContent(nil))
	require.Empty(t, extractJSONContent(&genai.GenerateContentResponse{}))
}

func TestValidatePDFRejectsGarbage(t *testing.T) {
	err := validatePDF([]byte("this is definitely not a pdf"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a readable PDF")
}
