package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CSVParser handles delimited-text files (.csv, .tsv).
type CSVParser struct{}

func (p *CSVParser) SupportedFormats() []string { return []string{"csv", "tsv"} }

func (p *CSVParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows; columns are reconciled downstream by tablenorm
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		r.Comma = '\t'
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in CSV")
	}

	var content strings.Builder
	for _, row := range rows {
		content.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	meta := map[string]string{
		"row_count": fmt.Sprintf("%d", len(rows)),
	}

	header := rows[0]
	dataRows := rows[1:]

	return &ParseResult{
		Sections: []Section{
			{
				Heading:  filepath.Base(path),
				Content:  content.String(),
				Type:     "table",
				Level:    1,
				Metadata: meta,
			},
		},
		Tables: []TableData{
			{
				Headers:  header,
				Rows:     dataRows,
				Format:   "csv",
				Metadata: meta,
			},
		},
		Method: "native",
	}, nil
}
