package parser

import "context"

// ExtractedImage represents an image extracted from a document during parsing.
type ExtractedImage struct {
	Data         []byte
	MIMEType     string // "image/jpeg" or "image/png"
	PageNumber   int    // page/slide number (0 for DOCX)
	SectionIndex int    // index into ParseResult.Sections this image belongs to
	Width        int
	Height       int
}

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section         // Ordered sections extracted from the document
	Tables   []TableData       // Structured tables, alongside their rendered-text Sections
	Images   []ExtractedImage  // Images extracted from the document
	Method   string            // "native", "llamaparse", "vision", "ocr"
	Metadata map[string]string
}

// TableData is a structurally-extracted table: header row plus data
// rows, kept alongside the rendered-text Section of type "table" so the
// table stays visible to both downstream text stages (Structurer,
// MetaTagger) and TableNormalizer.
type TableData struct {
	Headers  []string
	Rows     [][]string
	Page     int
	Format   string // source format: "xlsx", "csv", etc.
	Metadata map[string]string
}

// Section represents a logical section of a parsed document.
type Section struct {
	Heading    string
	Content    string
	Level      int    // Heading level (1=top, 2=sub, etc.)
	PageNumber int
	Type       string // "section", "table", "definition", "requirement", "annex", "paragraph", "ocr"
	Children   []Section
	Metadata   map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
