package parsers

import (
	"context"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/fdsanalytics/ingestflow/internal/gcp"
	"github.com/fdsanalytics/ingestflow/internal/models"
)

// TypeProductMix is the report type label for product mix (PMIX) reports.
const TypeProductMix = "product_mix"

// ProductMixParser extracts the POS product mix PDF (per-item quantities
// and revenue).
type ProductMixParser struct {
	model *genai.GenerativeModel
}

// NewProductMixParser wraps the pre-configured product mix extraction model.
func NewProductMixParser(vertex *gcp.VertexClient) *ProductMixParser {
	return &ProductMixParser{model: vertex.ProductMixModel}
}

func (p *ProductMixParser) Type() string { return TypeProductMix }

func (p *ProductMixParser) CanParse(filename, subject string) bool {
	haystack := strings.ToLower(filename + " " + subject)
	return strings.Contains(haystack, "product mix") ||
		strings.Contains(haystack, "product_mix") ||
		strings.Contains(haystack, "pmix")
}

func (p *ProductMixParser) Parse(ctx context.Context, data []byte, meta ParseMeta) (*models.ParsedReport, error) {
	return extractReport(ctx, p.model, gcp.ProductMixExtractorUserPrompt, TypeProductMix, data, meta)
}
