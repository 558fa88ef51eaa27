package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

// extractionResult defines the JSON shape we expect from the Gemini
// extraction models.
type extractionResult struct {
	ReportDate string             `json:"reportDate"`
	Rows       []models.MetricRow `json:"rows"`
}

// validatePDF rejects attachments that are not readable PDFs before we
// spend an extraction call on them. Validation is relaxed: POS exports
// are frequently sloppy about PDF conformance.
func validatePDF(data []byte) error {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return fmt.Errorf("attachment is not a readable PDF: %w", err)
	}
	if pageCount == 0 {
		return fmt.Errorf("attachment PDF has no pages")
	}
	return nil
}

// extractReport runs one extraction model over the attachment and decodes
// the JSON response into a ParsedReport. Shared by all Gemini-backed
// parsers.
func extractReport(ctx context.Context, model *genai.GenerativeModel, userPrompt, reportType string, data []byte, meta ParseMeta) (*models.ParsedReport, error) {
	if err := validatePDF(data); err != nil {
		return nil, err
	}

	filePart := genai.Blob{
		MIMEType: "application/pdf",
		Data:     data,
	}
	resp, err := model.GenerateContent(ctx, filePart, genai.Text(userPrompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate extraction from gemini: %w", err)
	}

	jsonString := extractJSONContent(resp)
	if jsonString == "" {
		return nil, fmt.Errorf("gemini returned an empty response instead of JSON for %s", meta.Filename)
	}

	return decodeExtraction(jsonString, reportType, meta)
}

// decodeExtraction validates the model's JSON output and converts it into
// a ParsedReport.
func decodeExtraction(jsonString, reportType string, meta ParseMeta) (*models.ParsedReport, error) {
	var result extractionResult
	if err := json.Unmarshal([]byte(jsonString), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from model for %s: %w", meta.Filename, err)
	}

	reportDate, err := time.Parse("2006-01-02", result.ReportDate)
	if err != nil {
		return nil, fmt.Errorf("model returned an invalid reportDate %q for %s: %w", result.ReportDate, meta.Filename, err)
	}
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("model returned no metric rows for %s", meta.Filename)
	}

	return &models.ParsedReport{
		ReportDate:     reportDate,
		SourceFilename: meta.Filename,
		ReportType:     reportType,
		MetricRows:     result.Rows,
	}, nil
}

// extractJSONContent robustly gets the raw text content from the model response.
func extractJSONContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	// The model is configured to return JSON, so we expect a single text part.
	if txt, ok := resp.Candidates[0].Content.Parts[0].(genai.Text); ok {
		// Clean potential markdown fences just in case
		cleanJSON := strings.TrimSpace(string(txt))
		cleanJSON = strings.TrimPrefix(cleanJSON, "```json")
		cleanJSON = strings.TrimSuffix(cleanJSON, "```")
		return strings.TrimSpace(cleanJSON)
	}
	return ""
}
