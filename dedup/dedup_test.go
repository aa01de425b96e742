package dedup

import (
	"testing"

	"github.com/yourorg/docrag/store"
)

func TestNormalizeIdempotent(t *testing.T) {
	in := "  Hello,   WORLD!! 2024-01-02  "
	once := normalize(in)
	twice := normalize(once)
	if once != twice {
		t.Fatalf("normalize not idempotent: %q vs %q", once, twice)
	}
}

func TestSignatureReflexive(t *testing.T) {
	set := shingles(normalize("the quick brown fox jumps over the lazy dog"), defaultShingle)
	sig := signature(set)
	if EstimateJaccard(sig, sig) != 1.0 {
		t.Fatalf("expected reflexive similarity 1.0, got %v", EstimateJaccard(sig, sig))
	}
}

func TestSignatureEmptyShingleSet(t *testing.T) {
	sig := signature(map[string]struct{}{})
	for i, v := range sig {
		if v != 0 {
			t.Fatalf("expected all-zero signature for empty input, got nonzero at %d", i)
		}
	}
}

func TestRunMarksLaterDuplicate(t *testing.T) {
	paragraph := "This invoice covers services rendered during the month of March for consulting work performed onsite and remotely across several departments within the organization including finance and operations."
	chunks := []store.Chunk{
		{PositionInDoc: 0, Content: "Unique filler text that appears only once in this document about widgets."},
		{PositionInDoc: 1, Content: paragraph},
		{PositionInDoc: 2, Content: paragraph},
	}

	d := New(DefaultConfig())
	d.Run(chunks)

	if chunks[1].Duplicate {
		t.Fatalf("expected earlier chunk to remain non-duplicate")
	}
	if !chunks[2].Duplicate {
		t.Fatalf("expected later identical chunk to be marked duplicate")
	}
	if chunks[2].DuplicateOf == "" {
		t.Fatalf("expected DuplicateOf to be set")
	}
	if chunks[0].Duplicate {
		t.Fatalf("unrelated chunk should not be marked duplicate")
	}
}
