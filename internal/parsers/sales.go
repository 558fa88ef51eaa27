package parsers

import (
	"context"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/fdsanalytics/ingestflow/internal/gcp"
	"github.com/fdsanalytics/ingestflow/internal/models"
)

// TypeSalesSummary is the report type label for daily sales summaries.
const TypeSalesSummary = "sales_summary"

// SalesSummaryParser extracts the POS daily sales summary PDF.
type SalesSummaryParser struct {
	model *genai.GenerativeModel
}

// NewSalesSummaryParser wraps the pre-configured sales extraction model.
func NewSalesSummaryParser(vertex *gcp.VertexClient) *SalesSummaryParser {
	return &SalesSummaryParser{model: vertex.SalesModel}
}

func (p *SalesSummaryParser) Type() string { return TypeSalesSummary }

// CanParse matches the subject lines and filenames the POS uses for its
// daily sales summary emails.
func (p *SalesSummaryParser) CanParse(filename, subject string) bool {
	haystack := strings.ToLower(filename + " " + subject)
	return strings.Contains(haystack, "sales summary") ||
		strings.Contains(haystack, "daily sales") ||
		strings.Contains(haystack, "sales_summary")
}

func (p *SalesSummaryParser) Parse(ctx context.Context, data []byte, meta ParseMeta) (*models.ParsedReport, error) {
	return extractReport(ctx, p.model, gcp.SalesExtractorUserPrompt, TypeSalesSummary, data, meta)
}
