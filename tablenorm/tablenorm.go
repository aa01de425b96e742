// Package tablenorm cleans extracted tables and attaches CSV/JSON
// renderings, the spec's TableNormalizer stage.
package tablenorm

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"

	"github.com/yourorg/docrag/llm"
	"github.com/yourorg/docrag/parser"
)

// Normalizer cleans tables and optionally enriches headers via a
// completion model.
type Normalizer struct {
	llm llm.Provider // optional; nil disables header enrichment
}

// New returns a Normalizer. A nil provider disables header enrichment.
func New(provider llm.Provider) *Normalizer {
	return &Normalizer{llm: provider}
}

// Normalize cleans each table independently: drops all-empty rows, drops
// columns whose header and every row cell are empty, optionally enriches
// headers via the completion model (discarding any suggestion that
// doesn't preserve the column count), and attaches CSV/JSON renderings
// to Metadata. An error on a single table is recorded in Metadata
// ("normalize_error") rather than aborting the run.
func (n *Normalizer) Normalize(ctx context.Context, tables []parser.TableData) []parser.TableData {
	out := make([]parser.TableData, len(tables))
	for i, t := range tables {
		out[i] = n.normalizeOne(ctx, t)
	}
	return out
}

func (n *Normalizer) normalizeOne(ctx context.Context, t parser.TableData) parser.TableData {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}

	t.Rows = dropEmptyRows(t.Rows)
	t.Headers, t.Rows = dropEmptyColumns(t.Headers, t.Rows)

	if n.llm != nil {
		if enriched, ok := n.enrichHeaders(ctx, t.Headers); ok {
			t.Headers = enriched
		}
	}

	csvText, err := renderCSV(t.Headers, t.Rows)
	if err != nil {
		t.Metadata["normalize_error"] = err.Error()
	} else {
		t.Metadata["csv"] = csvText
	}

	jsonText, err := renderJSON(t.Headers, t.Rows)
	if err != nil {
		t.Metadata["normalize_error"] = err.Error()
	} else {
		t.Metadata["json"] = jsonText
	}

	return t
}

// dropEmptyRows removes rows whose cells are all empty or whitespace.
// Idempotent on already-clean tables: a second pass finds nothing to drop.
func dropEmptyRows(rows [][]string) [][]string {
	var out [][]string
	for _, row := range rows {
		if !isEmptyRow(row) {
			out = append(out, row)
		}
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// dropEmptyColumns removes columns whose header and every row cell are
// empty.
func dropEmptyColumns(headers []string, rows [][]string) ([]string, [][]string) {
	numCols := len(headers)
	for _, row := range rows {
		if len(row) > numCols {
			numCols = len(row)
		}
	}
	if numCols == 0 {
		return headers, rows
	}

	keep := make([]bool, numCols)
	for i := 0; i < numCols; i++ {
		if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
			keep[i] = true
			continue
		}
		for _, row := range rows {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				keep[i] = true
				break
			}
		}
	}

	newHeaders := filterByMask(headers, keep)
	newRows := make([][]string, len(rows))
	for i, row := range rows {
		newRows[i] = filterByMask(row, keep)
	}
	return newHeaders, newRows
}

func filterByMask(cells []string, keep []bool) []string {
	var out []string
	for i, cell := range cells {
		if i < len(keep) && keep[i] {
			out = append(out, cell)
		}
	}
	return out
}

// enrichHeaders asks the completion model to suggest clearer column
// headers. The suggestion is discarded unless it returns exactly as
// many headers as the input.
func (n *Normalizer) enrichHeaders(ctx context.Context, headers []string) ([]string, bool) {
	if len(headers) == 0 {
		return nil, false
	}
	resp, err := n.llm.Chat(ctx, llm.ChatRequest{
		ResponseFormat: "json_object",
		Messages: []llm.Message{
			{Role: "system", Content: `Suggest clearer column header names. Respond as JSON: {"headers": [strings]}, preserving the exact column count.`},
			{Role: "user", Content: strings.Join(headers, " | ")},
		},
	})
	if err != nil || resp == nil {
		return nil, false
	}

	var parsed struct {
		Headers []string `json:"headers"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, false
	}
	if len(parsed.Headers) != len(headers) {
		return nil, false
	}
	return parsed.Headers, true
}

func renderCSV(headers []string, rows [][]string) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if len(headers) > 0 {
		if err := w.Write(headers); err != nil {
			return "", err
		}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderJSON(headers []string, rows [][]string) (string, error) {
	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
