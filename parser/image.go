package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrOCRDisabled is a non-fatal InputError: an image was submitted for
// ingestion but no OCR capability is configured.
var ErrOCRDisabled = errors.New("parser: OCR capability disabled")

// OCREngine extracts text from a raster image. It is a black-box
// capability analogous to llm.Provider, kept separate so a plain OCR
// binding doesn't need to satisfy the full LLM interface.
type OCREngine interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ImageParser handles standalone raster images (.png, .jpg) via OCR.
// OCR is gated: when disabled, Parse returns a ParseResult with zero
// sections rather than failing the whole ingestion run, matching the
// fail-open treatment of a missing capability for a non-critical node.
type ImageParser struct {
	ocr     OCREngine
	enabled bool
}

// NewImageParser returns an ImageParser. When enabled is false, Parse
// always returns an empty, non-fatal result regardless of ocr.
func NewImageParser(ocr OCREngine, enabled bool) *ImageParser {
	return &ImageParser{ocr: ocr, enabled: enabled}
}

func (p *ImageParser) SupportedFormats() []string { return []string{"png", "jpg", "jpeg"} }

func (p *ImageParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	if !p.enabled || p.ocr == nil {
		return &ParseResult{
			Method:   "ocr",
			Metadata: map[string]string{"ocr_error": ErrOCRDisabled.Error()},
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	mimeType := mimeForExt(filepath.Ext(path))
	text, err := p.ocr.Extract(ctx, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("OCR extraction failed: %w", err)
	}
	if text == "" {
		return &ParseResult{Method: "ocr"}, nil
	}

	return &ParseResult{
		Sections: []Section{
			{
				Heading: filepath.Base(path),
				Content: text,
				Level:   1,
				Type:    "ocr",
			},
		},
		Method: "ocr",
	}, nil
}

func mimeForExt(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
