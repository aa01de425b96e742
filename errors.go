package docrag

import "errors"

var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("docrag: document not found")

	// ErrDocumentExists is returned when trying to ingest a duplicate path.
	ErrDocumentExists = errors.New("docrag: document already exists")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("docrag: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("docrag: parsing failed")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("docrag: embedding generation failed")

	// ErrLLMUnavailable is returned when the LLM provider is unreachable.
	ErrLLMUnavailable = errors.New("docrag: LLM provider unavailable")

	// ErrLLMRequestFailed is returned when an LLM request fails.
	ErrLLMRequestFailed = errors.New("docrag: LLM request failed")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("docrag: store is closed")

	// ErrNoResults is returned when retrieval yields no matching chunks.
	ErrNoResults = errors.New("docrag: no results found")

	// ErrLowConfidence is returned when the answer confidence is below threshold.
	ErrLowConfidence = errors.New("docrag: answer confidence below threshold")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("docrag: invalid configuration")

	// ErrVisionRequired is returned when a document requires vision processing
	// but no vision provider is configured.
	ErrVisionRequired = errors.New("docrag: vision provider required for this document")

	// ErrExternalParserRequired is returned when a legacy format needs an
	// external parsing service that is not configured.
	ErrExternalParserRequired = errors.New("docrag: external parser required for legacy format")

	// ErrInputInvalid is returned for malformed or unreadable input, such
	// as a file that does not match its declared format.
	ErrInputInvalid = errors.New("docrag: invalid input")

	// ErrCapabilityUnavailable is returned when an optional completion,
	// embedding, or OCR capability is not configured; callers fall back
	// to a heuristic branch where one exists.
	ErrCapabilityUnavailable = errors.New("docrag: capability unavailable")

	// ErrDataMismatch names an internal invariant violation. No code path
	// returns it: the Indexer logs a chunk/embedding count mismatch and
	// skips that batch, and the skipped chunks are pruned after indexing.
	ErrDataMismatch = errors.New("docrag: data mismatch")

	// ErrStoreCommit is returned when a store transaction fails to commit.
	ErrStoreCommit = errors.New("docrag: store commit failed")

	// ErrDAGStuck is returned when an ingestion DAG run has no ready nodes
	// but unvisited nodes remain (a dependency cycle or config bug).
	ErrDAGStuck = errors.New("docrag: dag stuck")
)
