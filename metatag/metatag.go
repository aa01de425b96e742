// Package metatag detects document type and extracts entities (dates,
// money, emails, phones, IDs, URLs) from raw text, the spec's MetaTagger
// stage.
package metatag

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/yourorg/docrag/llm"
)

// DocType is one of the spec's closed set of document types.
type DocType string

const (
	DocInvoice  DocType = "invoice"
	DocContract DocType = "contract"
	DocReport   DocType = "report"
	DocEmail    DocType = "email"
	DocMemo     DocType = "memo"
	DocLetter   DocType = "letter"
	DocPolicy   DocType = "policy"
	DocManual   DocType = "manual"
	DocOther    DocType = "other"
)

// EntityType is one of the spec's closed set of entity kinds.
type EntityType string

const (
	EntityDate     EntityType = "DATE"
	EntityPerson   EntityType = "PERSON"
	EntityOrg      EntityType = "ORG"
	EntityMoney    EntityType = "MONEY"
	EntityLocation EntityType = "LOCATION"
	EntityID       EntityType = "ID"
	EntityEmail    EntityType = "EMAIL"
	EntityPhone    EntityType = "PHONE"
	EntityOther    EntityType = "OTHER"
)

// Entity is one detected entity span.
type Entity struct {
	Text       string     `json:"text"`
	Type       EntityType `json:"type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"confidence"`
}

// Result is what Tag produces: a classified doc type plus entities and
// derived metadata summaries.
type Result struct {
	DocType     DocType           `json:"doc_type"`
	Confidence  float64           `json:"confidence"`
	Language    string            `json:"language,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Entities    []Entity          `json:"entities"`
	Metadata    map[string][]string `json:"extracted_metadata"` // "dates", "money_amounts", up to 10 each
}

// Tagger classifies document type and extracts entities.
type Tagger struct {
	llm llm.Provider // optional; nil forces heuristic-only classification
}

// New returns a Tagger. A nil provider disables the completion-model
// classification mode, falling back to keyword heuristics only.
func New(provider llm.Provider) *Tagger {
	return &Tagger{llm: provider}
}

// classificationResponse is the JSON-mode shape requested from the
// completion model.
type classificationResponse struct {
	DocType    string   `json:"doc_type"`
	Confidence float64  `json:"confidence"`
	Language   string   `json:"language"`
	Keywords   []string `json:"keywords"`
}

var validDocTypes = map[string]DocType{
	"invoice": DocInvoice, "contract": DocContract, "report": DocReport,
	"email": DocEmail, "memo": DocMemo, "letter": DocLetter,
	"policy": DocPolicy, "manual": DocManual, "other": DocOther,
}

var heuristicKeywords = map[DocType][]string{
	DocInvoice:  {"invoice", "amount due", "bill to", "invoice number"},
	DocContract: {"agreement", "party", "hereinafter", "whereas", "terms and conditions"},
	DocReport:   {"executive summary", "findings", "conclusion", "quarterly"},
	DocEmail:    {"subject:", "dear", "regards", "sent from my"},
	DocMemo:     {"memorandum", "memo to", "re:"},
	DocLetter:   {"dear sir", "dear madam", "sincerely", "yours truly"},
	DocPolicy:   {"policy", "shall comply", "effective date"},
	DocManual:   {"instructions", "step 1", "user manual", "troubleshooting"},
}

// Tag classifies the document type and runs the entity regex passes.
// Entities are always extracted regardless of classification mode;
// doc-type classification uses the completion model in JSON mode when
// configured, falling back to fixed keyword-set heuristics on
// CapabilityUnavailable (no provider, or a failed/malformed response).
func (t *Tagger) Tag(ctx context.Context, rawText string) Result {
	res := Result{
		Entities: extractEntities(rawText),
		Metadata: make(map[string][]string),
	}

	if t.llm != nil {
		if cls, ok := t.classify(ctx, rawText); ok {
			res.DocType = cls.DocType
			res.Confidence = cls.Confidence
			res.Language = cls.Language
			res.Keywords = cls.Keywords
		}
	}
	if res.DocType == "" {
		res.DocType, res.Confidence = classifyHeuristic(rawText)
	}

	for _, e := range res.Entities {
		switch e.Type {
		case EntityDate:
			res.Metadata["dates"] = appendCapped(res.Metadata["dates"], e.Text, 10)
		case EntityMoney:
			res.Metadata["money_amounts"] = appendCapped(res.Metadata["money_amounts"], e.Text, 10)
		}
	}

	return res
}

func appendCapped(slice []string, v string, cap int) []string {
	if len(slice) >= cap {
		return slice
	}
	return append(slice, v)
}

type classified struct {
	DocType    DocType
	Confidence float64
	Language   string
	Keywords   []string
}

// classify asks the completion model in JSON mode for
// {doc_type, confidence, language, keywords[]}.
func (t *Tagger) classify(ctx context.Context, rawText string) (classified, bool) {
	sample := rawText
	if len(sample) > 4000 {
		sample = sample[:4000]
	}
	resp, err := t.llm.Chat(ctx, llm.ChatRequest{
		ResponseFormat: "json_object",
		Messages: []llm.Message{
			{Role: "system", Content: "Classify the document type. Respond as JSON: " +
				`{"doc_type": one of invoice|contract|report|email|memo|letter|policy|manual|other, ` +
				`"confidence": 0..1, "language": BCP-47 code, "keywords": [up to 5 strings]}`},
			{Role: "user", Content: sample},
		},
	})
	if err != nil || resp == nil {
		return classified{}, false
	}

	var parsed classificationResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return classified{}, false
	}
	dt, ok := validDocTypes[strings.ToLower(strings.TrimSpace(parsed.DocType))]
	if !ok {
		return classified{}, false
	}
	return classified{DocType: dt, Confidence: parsed.Confidence, Language: parsed.Language, Keywords: parsed.Keywords}, true
}

// classifyHeuristic matches fixed keyword sets against lowercased text.
func classifyHeuristic(rawText string) (DocType, float64) {
	lower := strings.ToLower(rawText)
	for docType, keywords := range heuristicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return docType, 0.5
			}
		}
	}
	return DocOther, 0.0
}

// --- regex entity extraction (always runs) ---

var entityPatterns = []struct {
	re   *regexp.Regexp
	typ  EntityType
}{
	{regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b`), EntityDate},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), EntityDate}, // ISO-like
	{regexp.MustCompile(`(?i)\d+[.,]?\d*\s*(?:EUR|USD|BAM|KM|RSD|€|\$)`), EntityMoney},
	{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), EntityEmail},
	{regexp.MustCompile(`\b\d{13}\b`), EntityID},                           // 13-digit national ID
	{regexp.MustCompile(`\b[A-Z]{2,4}[-/]?\d{3,8}\b`), EntityID},           // document-id tokens
	{regexp.MustCompile(`\bhttps?://[^\s"'<>]+`), EntityOther},            // URLs
	{regexp.MustCompile(`(?:\+?\d[\d .()-]{6,}\d)`), EntityPhone},
}

var digitsOnlyRe = regexp.MustCompile(`\D`)

// extractEntities runs every entity regex pass over raw text and returns
// all matches grouped by pattern (in entityPatterns order), each pattern's
// matches in order of appearance. Phone candidates are required to
// have >= 8 digits after separator stripping, per spec §4.3.
func extractEntities(text string) []Entity {
	var entities []Entity
	for _, p := range entityPatterns {
		locs := p.re.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			match := text[loc[0]:loc[1]]
			if p.typ == EntityPhone {
				digits := digitsOnlyRe.ReplaceAllString(match, "")
				if len(digits) < 8 {
					continue
				}
			}
			entities = append(entities, Entity{
				Text: match, Type: p.typ, Start: loc[0], End: loc[1], Confidence: 0.8,
			})
		}
	}
	return entities
}
