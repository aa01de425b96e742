// Package structure segments extracted text blocks into hierarchical
// segments and produces sentence-aware chunks with overlap, the spec's
// Structurer stage. Chunk boundaries use an exact character-based
// algorithm in place of the teacher chunker package's token-based
// overlap, but chunk typing and clause/requirement metadata still
// delegate to chunker's content classifiers.
package structure

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/yourorg/docrag/chunker"
	"github.com/yourorg/docrag/llm"
	"github.com/yourorg/docrag/parser"
	"github.com/yourorg/docrag/store"
)

// Config controls chunk size and overlap, both measured in characters
// (the teacher's chunker.Config measures in estimated tokens; the spec
// algorithm is exact and char-based).
type Config struct {
	ChunkSize int
	Overlap   int
}

// DefaultConfig mirrors the teacher's chunker defaults.
func DefaultConfig() Config {
	return Config{ChunkSize: 1000, Overlap: 200}
}

// Segment is the in-memory DocumentSegment: a classified span of text
// with an optional heading level.
type Segment struct {
	Text     string
	Type     string // "heading", "paragraph", "table", "list", "other"
	Level    int    // 1-3 for headings, 0 otherwise
	Metadata map[string]string
}

// Structurer segments parsed sections and chunks their text.
type Structurer struct {
	cfg Config
	llm llm.Provider // optional: used for a completion-model heading pass
}

// New returns a Structurer. A nil provider disables the completion-model
// heading classification pass, falling back to heuristics only.
func New(cfg Config, provider llm.Provider) *Structurer {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = 200
	}
	return &Structurer{cfg: cfg, llm: provider}
}

var (
	numericPrefixRe = regexp.MustCompile(`^(\d+(\.\d+)*)\.?\s`)
	sentenceBoundRe = regexp.MustCompile(`[.!?]\s+`)
)

// Segment classifies each parsed section into a Segment, assigning
// heading levels 1-3: a level supplied by the parser is kept; otherwise a
// numeric prefix N(.N)* gives level = dots+1 (capped at 3); otherwise a
// completion-model pass decides when configured; otherwise a short (<100
// chars) heading with no trailing period is level 2 when title-case or
// all-caps, and every other heading is level 1.
func (s *Structurer) Segment(ctx context.Context, sections []parser.Section) []Segment {
	var segments []Segment
	s.segmentInto(ctx, sections, &segments)
	return segments
}

func (s *Structurer) segmentInto(ctx context.Context, sections []parser.Section, out *[]Segment) {
	for _, sec := range sections {
		if sec.Heading != "" {
			*out = append(*out, Segment{
				Text:     sec.Heading,
				Type:     "heading",
				Level:    s.headingLevel(ctx, sec.Heading, sec.Level),
				Metadata: sec.Metadata,
			})
		}
		if strings.TrimSpace(sec.Content) != "" {
			typ := "paragraph"
			if sec.Type == "table" {
				typ = "table"
			}
			*out = append(*out, Segment{Text: sec.Content, Type: typ, Metadata: sec.Metadata})
		}
		s.segmentInto(ctx, sec.Children, out)
	}
}

// headingLevel determines a heading's level 1-3. If the parser already
// supplied a level, it is trusted. Otherwise a numeric prefix decides,
// then a completion-model pass (when configured), then heuristics.
func (s *Structurer) headingLevel(ctx context.Context, heading string, parserLevel int) int {
	if parserLevel > 0 {
		return clampLevel(parserLevel)
	}
	if m := numericPrefixRe.FindStringSubmatch(heading); m != nil {
		dots := strings.Count(m[1], ".")
		return clampLevel(dots + 1)
	}
	if s.llm != nil {
		if level, ok := s.classifyHeadingLevel(ctx, heading); ok {
			return clampLevel(level)
		}
	}
	if len(heading) < 100 && !strings.HasSuffix(strings.TrimSpace(heading), ".") {
		if isTitleCaseOrUpper(heading) {
			return 2
		}
		return 1
	}
	return 1
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 3 {
		return 3
	}
	return level
}

func isTitleCaseOrUpper(text string) bool {
	hasLetter := false
	for _, word := range strings.Fields(text) {
		for _, r := range word {
			if unicode.IsLetter(r) {
				hasLetter = true
				if unicode.IsLower(r) {
					return false
				}
				break
			}
		}
	}
	return hasLetter
}

// classifyHeadingLevel asks the completion model for a heading's level.
// CapabilityUnavailable (no response, request error) falls back to the
// heuristic branch in headingLevel.
func (s *Structurer) classifyHeadingLevel(ctx context.Context, heading string) (int, bool) {
	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Classify the heading level (1, 2, or 3) of the given document heading. Reply with only the digit."},
			{Role: "user", Content: heading},
		},
		MaxTokens: 4,
	})
	if err != nil || resp == nil {
		return 0, false
	}
	level, err := strconv.Atoi(strings.TrimSpace(resp.Content))
	if err != nil {
		return 0, false
	}
	return level, true
}

// Chunk concatenates segment texts and produces sentence-aware chunks
// with character-based overlap, per spec §4.2:
//  1. Concatenate all segment texts separated by a blank line.
//  2. Split into sentences on the regex boundary [.!?]\s+.
//  3. Greedily accumulate sentences; emit the buffer (trimmed) when
//     adding the next sentence would exceed ChunkSize and the buffer is
//     non-empty.
//  4. Start the next chunk with an overlap prefix: the last Overlap
//     characters of the emitted chunk, advanced past the first sentence
//     boundary within that slice to avoid mid-sentence breaks (or the
//     raw tail if no boundary is found).
//  5. Emit the final buffer if non-empty.
//
// Returned chunks carry contiguous, 0-based PositionInDoc values and
// temporary position-based IDs (real IDs are assigned on store insert,
// matching the teacher's chunker convention).
func (s *Structurer) Chunk(segments []Segment, documentID int64) []store.Chunk {
	var texts []string
	for _, seg := range segments {
		t := strings.TrimSpace(seg.Text)
		if t != "" {
			texts = append(texts, t)
		}
	}
	corpus := strings.Join(texts, "\n\n")

	sentences := splitSentences(corpus)

	var chunks []store.Chunk
	var buf strings.Builder
	pos := 0
	overlapPrefix := ""

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" {
			return
		}
		typ := chunker.ContentType(text)
		chunks = append(chunks, store.Chunk{
			ID:            int64(pos),
			DocumentID:    documentID,
			Content:       text,
			ChunkType:     typ,
			PositionInDoc: pos,
			TokenCount:    estimateTokens(text),
			ContentHash:   contentHash(text),
			Metadata:      chunkMetadata(typ, text),
		})
		pos++
		overlapPrefix = extractOverlap(text, s.cfg.Overlap)
		buf.Reset()
		if overlapPrefix != "" {
			buf.WriteString(overlapPrefix)
		}
	}

	for _, sent := range sentences {
		candidateLen := buf.Len()
		if candidateLen > 0 {
			candidateLen++ // separating space
		}
		candidateLen += len(sent)

		if candidateLen > s.cfg.ChunkSize && buf.Len() > 0 {
			flush()
			if buf.Len() > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(sent)
			continue
		}

		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sent)
	}
	flush()

	return chunks
}

// splitSentences breaks text on [.!?]\s+ boundaries, keeping the
// terminal punctuation attached to the preceding sentence.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}
	locs := sentenceBoundRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var out []string
	start := 0
	for _, loc := range locs {
		out = append(out, text[start:loc[0]+1]) // include the punctuation
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// chunkMetadata attaches clause numbering and requirement strength to
// chunks the content classifier flagged as a requirement or a numbered
// clause, leaving everything else unset.
func chunkMetadata(chunkType, text string) string {
	meta := map[string]string{}
	if clause, ok := chunker.ExtractClauseNumber(text); ok {
		meta["clause"] = clause
	}
	if chunkType == "requirement" {
		if reqs := chunker.DetectRequirements(text); len(reqs) > 0 {
			meta["requirement_level"] = reqs[0].Level
		}
	}
	if len(meta) == 0 {
		return ""
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}

// estimateTokens approximates the token count of text using the teacher's
// word-based heuristic: tokens ~ words * 1.3.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// contentHash returns the SHA-256 hex digest of text.
func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// extractOverlap takes the last n characters of text and advances past
// the first sentence boundary within that slice, so the next chunk
// doesn't start mid-sentence. If no boundary is found, the raw tail is
// kept.
func extractOverlap(text string, n int) string {
	if n <= 0 || text == "" {
		return ""
	}
	tail := text
	if len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	if loc := sentenceBoundRe.FindStringIndex(tail); loc != nil {
		rest := strings.TrimSpace(tail[loc[1]:])
		if rest != "" {
			return rest
		}
	}
	return strings.TrimSpace(tail)
}
