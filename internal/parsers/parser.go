// Package parsers turns report attachments into structured metric rows.
// Each concrete parser owns one report type; the Router picks the first
// registered parser whose predicate matches a document's metadata. New
// report types are added by registering a parser, not by branching logic
// in the processor.
package parsers

import (
	"context"
	"time"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

// ParseMeta carries document metadata alongside the attachment bytes.
type ParseMeta struct {
	Filename  string
	EmailDate time.Time
}

// ReportParser extracts one report type from attachment bytes.
type ReportParser interface {
	// Type is the report type label recorded in the ledger and the store.
	Type() string
	// CanParse reports whether this parser handles the document,
	// judged purely on (filename, subject).
	CanParse(filename, subject string) bool
	// Parse extracts the attachment into a structured report. It returns
	// an error on malformed input; it never writes anywhere.
	Parse(ctx context.Context, data []byte, meta ParseMeta) (*models.ParsedReport, error)
}

// Router selects a parser for a document by metadata. Parsers are tried
// in registration order; the first match wins.
type Router struct {
	parsers []ReportParser
}

// NewRouter builds a router over the given parsers. Order is priority.
func NewRouter(parsers ...ReportParser) *Router {
	return &Router{parsers: parsers}
}

// Route returns the first parser whose CanParse matches, or false when
// the document type is unknown.
func (r *Router) Route(filename, subject string) (ReportParser, bool) {
	for _, p := range r.parsers {
		if p.CanParse(filename, subject) {
			return p, true
		}
	}
	return nil, false
}
