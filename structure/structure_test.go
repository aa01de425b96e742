package structure

import (
	"context"
	"strings"
	"testing"

	"github.com/yourorg/docrag/parser"
)

func TestChunkSingleShortDocument(t *testing.T) {
	para := strings.Repeat("Widgets are small mechanical parts. ", 10) // well under 1000 chars
	sections := []parser.Section{
		{Content: para},
		{Content: para},
		{Content: para},
	}

	s := New(Config{ChunkSize: 1000, Overlap: 200}, nil)
	segments := s.Segment(context.Background(), sections)
	chunks := s.Chunk(segments, 1)

	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 chunk, got %d", len(chunks))
	}
	if chunks[0].PositionInDoc != 0 {
		t.Fatalf("expected PositionInDoc=0, got %d", chunks[0].PositionInDoc)
	}
}

func TestChunkContiguousIndices(t *testing.T) {
	longPara := strings.Repeat("This is a sentence about contracts and obligations. ", 60)
	sections := []parser.Section{{Content: longPara}}

	s := New(Config{ChunkSize: 500, Overlap: 100}, nil)
	segments := s.Segment(context.Background(), sections)
	chunks := s.Chunk(segments, 1)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for a long document, got %d", len(chunks))
	}
	for i, c := range chunks {
		if int(c.PositionInDoc) != i {
			t.Fatalf("chunk %d has non-contiguous PositionInDoc=%d", i, c.PositionInDoc)
		}
	}
}

func TestHeadingLevelNumericPrefix(t *testing.T) {
	s := New(DefaultConfig(), nil)
	level := s.headingLevel(context.Background(), "1.2.3 Subsection Title", 0)
	if level != 3 {
		t.Fatalf("expected level 3 for a triple-dotted numeric prefix, got %d", level)
	}
}
