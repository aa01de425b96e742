package parser

import "fmt"

type LlamaParseConfig struct {
	APIKey  string
	BaseURL string
}

type Registry struct {
	parsers    map[string]Parser
	llamaParse *LlamaParseConfig
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	// Register built-in parsers
	pdf := &PDFParser{}
	docx := &DOCXParser{}
	xlsx := &XLSXParser{}
	pptx := &PPTXParser{}
	text := &TextParser{}
	csvp := &CSVParser{}

	for _, p := range []Parser{pdf, docx, xlsx, pptx, text, csvp} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}

	// Images are registered disabled by default; SetOCR enables them.
	img := NewImageParser(nil, false)
	for _, f := range img.SupportedFormats() {
		r.parsers[f] = img
	}

	return r
}

func (r *Registry) SetLlamaParse(cfg LlamaParseConfig) {
	r.llamaParse = &cfg
	lp := &LlamaParseParser{cfg: cfg}
	// Register LlamaParse for every format it supports: the legacy formats
	// and also pdf, docx, xlsx and pptx, replacing the built-in parsers.
	for _, f := range lp.SupportedFormats() {
		r.parsers[f] = lp
	}
}

// SetOCR wires an OCR engine and enables image ingestion; without a call
// to SetOCR, image formats parse to an empty, non-fatal result.
func (r *Registry) SetOCR(engine OCREngine) {
	img := NewImageParser(engine, true)
	for _, f := range img.SupportedFormats() {
		r.parsers[f] = img
	}
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
