package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Sales Summary Extractor Prompts ---
const SalesExtractorSystemPrompt = "You are a restaurant POS report extractor. Your task is to read a daily sales summary PDF and extract every metric line into structured JSON. Accuracy and completeness are of utmost importance; never invent values that are not present in the document."
const SalesExtractorUserPrompt = `You will be provided with a daily sales summary PDF from a restaurant POS system.

Extract the report into a single JSON object with exactly two keys:
- "reportDate": the business date of the report as a YYYY-MM-DD string.
- "rows": an array of metric objects.

Each metric object must have exactly five keys:
- "metricName": the metric label, e.g. "net_sales", "gross_sales", "guest_count".
- "value": the numeric value, with currency symbols and thousands separators removed.
- "category": the primary sales category in parentheses if present, e.g. "(Sushi)", "(Beer)", "(Food)". Use "" when the metric is not category-scoped.
- "subcategory": the subcategory without parentheses, e.g. "Bottle Beer", "Signature Rolls". Use "" when absent.
- "itemName": the menu item name for item-level rows. Use "" for aggregate rows.

Extract every row of every table in the document. Do not summarize, do not skip rows, and output ONLY the JSON object.`

// --- Product Mix Extractor Prompts ---
const ProductMixExtractorSystemPrompt = "You are a restaurant POS report extractor. Your task is to read a product mix (PMIX) PDF and extract every item line into structured JSON. Accuracy and completeness are of utmost importance; never invent values that are not present in the document."
const ProductMixExtractorUserPrompt = `You will be provided with a product mix PDF from a restaurant POS system.

Extract the report into a single JSON object with exactly two keys:
- "reportDate": the business date of the report as a YYYY-MM-DD string.
- "rows": an array of metric objects, one per item line.

Each metric object must have exactly five keys:
- "metricName": one of "quantity_sold" or "item_revenue", emitting one object per measure per item line.
- "value": the numeric value, with currency symbols and thousands separators removed.
- "category": the primary category in parentheses, e.g. "(Sushi)", "(Liquor)".
- "subcategory": the subcategory without parentheses. Use "" when absent.
- "itemName": the menu item name exactly as printed.

Extract every item in the document. Do not summarize, do not skip rows, and output ONLY the JSON object.`

// VertexClient holds the pre-configured extraction models for our app.
type VertexClient struct {
	SalesModel      *genai.GenerativeModel
	ProductMixModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	salesModel := newExtractorModel(baseClient, SalesExtractorSystemPrompt)
	productMixModel := newExtractorModel(baseClient, ProductMixExtractorSystemPrompt)

	return &VertexClient{
		SalesModel:      salesModel,
		ProductMixModel: productMixModel,
		baseClient:      baseClient,
	}, nil
}

// newExtractorModel configures one generative model for deterministic,
// JSON-only extraction output.
func newExtractorModel(client *genai.Client, systemPrompt string) *genai.GenerativeModel {
	model := client.GenerativeModel(GetEnv("EXTRACTION_MODEL", "gemini-1.5-pro"))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		// Force JSON output. This is a critical setting for this model.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	return model
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
