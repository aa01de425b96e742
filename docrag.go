package docrag

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourorg/docrag/agents"
	"github.com/yourorg/docrag/dag"
	"github.com/yourorg/docrag/dedup"
	"github.com/yourorg/docrag/graph"
	"github.com/yourorg/docrag/index"
	"github.com/yourorg/docrag/llm"
	"github.com/yourorg/docrag/metatag"
	"github.com/yourorg/docrag/parser"
	"github.com/yourorg/docrag/pii"
	"github.com/yourorg/docrag/retrieval"
	"github.com/yourorg/docrag/store"
	"github.com/yourorg/docrag/structure"
	"github.com/yourorg/docrag/tablenorm"
)

// Engine is the main entry point for the docrag service.
type Engine interface {
	// Ingest runs a document through the ingestion DAG (Extractor,
	// Structurer, MetaTagger, TableNormalizer, Deduplicator, PIIMasker,
	// Indexer). Returns document ID. Skips if content hash unchanged.
	Ingest(ctx context.Context, path string, opts ...IngestOption) (int64, error)

	// Query runs a question through the agentic retrieval pipeline
	// (Planner, Rewriter, HybridSearch+RRF, Generator, Judge, bounded
	// re-retrieval loop).
	Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, error)

	// Search runs hybrid retrieval only, without generation.
	Search(ctx context.Context, query string, topK int) ([]Source, error)

	// Update re-checks a document by hash. Re-ingests if changed.
	Update(ctx context.Context, path string) (bool, error)

	// UpdateAll checks all ingested documents for changes.
	UpdateAll(ctx context.Context) ([]UpdateResult, error)

	// Delete removes a document and all associated data.
	Delete(ctx context.Context, documentID int64) error

	// DeleteAll removes every ingested document and associated data.
	DeleteAll(ctx context.Context) error

	// GetDocument returns a single ingested document by ID.
	GetDocument(ctx context.Context, documentID int64) (*Document, error)

	// ListDocuments returns all ingested documents.
	ListDocuments(ctx context.Context) ([]Document, error)

	// Store returns the underlying store for diagnostic access (e.g. eval ground-truth checks).
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Answer represents the result of a query.
type Answer struct {
	Text             string   `json:"text"`
	NeedsMore        bool     `json:"needs_more"`
	JudgeReason      string   `json:"judge_reason,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Sources          []Source `json:"sources"`
	ModelUsed        string   `json:"model_used"`
	Iterations       int      `json:"iterations"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
}

// Source represents a retrieved source chunk backing an answer.
type Source struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Heading    string  `json:"heading"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
}

// Document represents an ingested document.
type Document struct {
	ID          int64             `json:"id"`
	Path        string            `json:"path"`
	Filename    string            `json:"filename"`
	Format      string            `json:"format"`
	MIME        string            `json:"mime,omitempty"`
	Size        int64             `json:"size,omitempty"`
	ContentHash string            `json:"content_hash"`
	ParseMethod string            `json:"parse_method"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// UpdateResult reports the outcome of a document update check.
type UpdateResult struct {
	DocumentID int64  `json:"document_id"`
	Path       string `json:"path"`
	Changed    bool   `json:"changed"`
	Error      error  `json:"error,omitempty"`
}

// IngestOption configures ingestion behavior.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	forceReparse bool
	parseMethod  string
	metadata     map[string]string
}

// WithForceReparse forces re-parsing even if the hash hasn't changed.
func WithForceReparse() IngestOption {
	return func(o *ingestOptions) { o.forceReparse = true }
}

// WithParseMethod overrides the automatic parse method selection.
func WithParseMethod(method string) IngestOption {
	return func(o *ingestOptions) { o.parseMethod = method }
}

// WithMetadata attaches custom metadata to the ingested document.
func WithMetadata(metadata map[string]string) IngestOption {
	return func(o *ingestOptions) { o.metadata = metadata }
}

// QueryOption configures query behavior.
type QueryOption func(*queryOptions)

type queryOptions struct {
	topK int
}

// WithMaxResults sets the starting number of chunks to retrieve per
// iteration (the agent loop widens this automatically on needs_more).
func WithMaxResults(n int) QueryOption {
	return func(o *queryOptions) { o.topK = n }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     *store.Store
	chatLLM   llm.Provider
	embedLLM  llm.Provider
	visionLLM llm.Provider
	parsers   *parser.Registry

	structurer *structure.Structurer
	tagger     *metatag.Tagger
	normalizer *tablenorm.Normalizer
	deduper    *dedup.Deduplicator
	masker     *pii.Masker
	indexer    *index.Indexer
	graphB     *graph.Builder

	retriever  *retrieval.Engine
	agentCfg   agents.Config
	summarizer *agents.Summarizer
	search     agents.SearchFunc
	loop       *agents.Loop
}

// New creates a new docrag engine with the given configuration.
func New(cfg Config) (Engine, error) {
	dbPath := cfg.resolveDBPath()

	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 768
	}

	s, err := store.New(dbPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	embedLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	var visionLLM llm.Provider
	if cfg.Vision.Provider != "" {
		visionLLM, err = llm.NewProvider(llm.Config{
			Provider: cfg.Vision.Provider,
			Model:    cfg.Vision.Model,
			BaseURL:  cfg.Vision.BaseURL,
			APIKey:   cfg.Vision.APIKey,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating vision provider: %w", err)
		}
	}

	reg := parser.NewRegistry()
	if cfg.LlamaParse != nil {
		reg.SetLlamaParse(parser.LlamaParseConfig{
			APIKey:  cfg.LlamaParse.APIKey,
			BaseURL: cfg.LlamaParse.BaseURL,
		})
	}
	if cfg.OCREnabled && cfg.OCREngine != nil {
		reg.SetOCR(cfg.OCREngine)
	}

	chunkSize := cfg.MaxChunkTokens
	if chunkSize == 0 {
		chunkSize = 1000
	}
	structurer := structure.New(structure.Config{ChunkSize: chunkSize, Overlap: cfg.ChunkOverlap}, chatLLM)
	tagger := metatag.New(chatLLM)
	normalizer := tablenorm.New(chatLLM)
	deduper := dedup.New(dedup.Config{Threshold: cfg.Dedup.Threshold, ShingleSize: cfg.Dedup.ShingleSize})
	masker := pii.New(pii.Config{
		Emails: cfg.PII.Emails,
		Phones: cfg.PII.Phones,
		IDs:    cfg.PII.IDs,
		Cards:  cfg.PII.Cards,
		IBANs:  cfg.PII.IBANs,
	})
	idx := index.New(index.Config{BatchSize: cfg.IndexBatchSize}, embedLLM, s)
	graphB := graph.NewBuilder(s, chatLLM, embedLLM, cfg.GraphConcurrency)

	retriever := retrieval.New(s, embedLLM, chatLLM, retrieval.Config{
		WeightVector: cfg.WeightVector,
		WeightFTS:    cfg.WeightFTS,
		WeightGraph:  cfg.WeightGraph,
	})

	agentCfg := agents.DefaultConfig()
	if cfg.Agent.RewritesCount > 0 {
		agentCfg.RewritesCount = cfg.Agent.RewritesCount
	}
	if cfg.Agent.MaxIterations > 0 {
		agentCfg.MaxIterations = cfg.Agent.MaxIterations
	}
	if cfg.Agent.TopK > 0 {
		agentCfg.TopKStart = cfg.Agent.TopK
	}

	search := func(ctx context.Context, query string, topK int) ([]store.RetrievalResult, error) {
		results, _, err := retriever.Search(ctx, query, retrieval.SearchOptions{
			MaxResults:  topK,
			WeightVec:   cfg.WeightVector,
			WeightFTS:   cfg.WeightFTS,
			WeightGraph: cfg.WeightGraph,
		})
		return results, err
	}
	summarizer := agents.NewSummarizer(chatLLM)
	loop := agents.NewLoop(agentCfg, chatLLM, search, summarizer)

	return &engine{
		cfg:        cfg,
		store:      s,
		chatLLM:    chatLLM,
		embedLLM:   embedLLM,
		visionLLM:  visionLLM,
		parsers:    reg,
		structurer: structurer,
		tagger:     tagger,
		normalizer: normalizer,
		deduper:    deduper,
		masker:     masker,
		indexer:    idx,
		graphB:     graphB,
		retriever:  retriever,
		agentCfg:   agentCfg,
		summarizer: summarizer,
		search:     search,
		loop:       loop,
	}, nil
}

// Ingest runs a document through the ingestion DAG.
func (e *engine) Ingest(ctx context.Context, path string, opts ...IngestOption) (int64, error) {
	options := &ingestOptions{}
	for _, o := range opts {
		o(options)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return 0, fmt.Errorf("hashing file: %w", err)
	}

	if !options.forceReparse {
		existing, err := e.store.GetDocumentByPath(ctx, absPath)
		if err == nil && existing.ContentHash == hash {
			return existing.ID, nil // no change
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	format := ext

	var metadataJSON string
	if options.metadata != nil {
		data, _ := json.Marshal(options.metadata)
		metadataJSON = string(data)
	}

	filename := filepath.Base(absPath)
	info, statErr := os.Stat(absPath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	docID, err := e.store.UpsertDocument(ctx, store.Document{
		Path:        absPath,
		Filename:    filename,
		Format:      format,
		Size:        size,
		ContentHash: hash,
		ParseMethod: "pending",
		Status:      "processing",
		Metadata:    metadataJSON,
	})
	if err != nil {
		return 0, fmt.Errorf("upserting document: %w", err)
	}

	if err := e.store.DeleteDocumentData(ctx, docID); err != nil {
		return 0, fmt.Errorf("cleaning old data: %w", err)
	}

	ic := &dag.IngestContext{DocumentID: docID, Path: absPath, Filename: filename, Format: format}

	runner := dag.New(e.ingestNodes(options.parseMethod))
	ingestStart := time.Now()
	result, err := runner.Run(ctx, ic)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "error")
		var crit *dag.ErrCritical
		if errors.As(err, &crit) {
			return 0, fmt.Errorf("ingest: %w", err)
		}
		return 0, fmt.Errorf("%w: %v", ErrDAGStuck, err)
	}
	slog.Info("ingest: dag complete",
		"file", filename, "doc_id", docID, "elapsed", time.Since(ingestStart).Round(time.Millisecond),
		"statuses", result.Statuses)

	e.store.UpdateDocumentParseMethod(ctx, docID, ic.ParseMethod)

	metaJSON, _ := json.Marshal(map[string]any{
		"doc_type":    ic.DocType,
		"entities":    ic.Entities,
		"metadata":    ic.ExtractedMetadata,
		"pii_masked":  ic.PIIMasked,
		"duplicates":  ic.Duplicates,
		"table_count": len(ic.Tables),
	})
	e.store.UpdateDocumentMetadata(ctx, docID, string(metaJSON))

	if !e.cfg.SkipGraph && len(ic.Chunks) > 0 {
		slog.Info("ingest: building knowledge graph", "file", filename, "chunks", len(ic.Chunks))
		if err := e.graphB.Build(ctx, docID, ic.Chunks, ic.ChunkIDs); err != nil {
			slog.Warn("graph build had errors (non-fatal)", "doc_id", docID, "error", err)
		}
		communities, err := graph.DetectCommunities(ctx, e.store)
		if err != nil {
			slog.Warn("community detection failed (non-fatal)", "error", err)
		} else if len(communities) > 0 {
			if err := graph.SummarizeCommunities(ctx, e.store, e.chatLLM, communities); err != nil {
				slog.Warn("community summarization failed (non-fatal)", "error", err)
			}
		}
	}

	e.store.UpdateDocumentStatus(ctx, docID, "ready")
	return docID, nil
}

// ingestNodes builds the static C1-C7 DAG: C2, C3, C4 depend on C1; C5
// depends on C2; C6 depends on C5; C7 (Indexer) hard-depends only on
// the chunk pipeline (C1, C2, C5, C6) and soft-depends on C3/C4 for
// ordering, so a non-critical MetaTagger or TableNormalizer failure
// does not prevent chunks from being embedded and persisted.
func (e *engine) ingestNodes(parseMethodOverride string) []dag.Node {
	extractor := func(ctx context.Context, ic *dag.IngestContext) error {
		p, err := e.parsers.Get(ic.Format)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ic.Format)
		}
		parsed, err := p.Parse(ctx, ic.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrParsingFailed, err)
		}
		sections, captioned := e.captionImages(ctx, parsed.Sections, parsed.Images)
		ic.Sections = sections
		ic.Tables = parsed.Tables
		ic.Images = captioned
		ic.ParseMethod = parsed.Method
		if parseMethodOverride != "" {
			ic.ParseMethod = parseMethodOverride
		}
		return nil
	}

	structurer := func(ctx context.Context, ic *dag.IngestContext) error {
		segments := e.structurer.Segment(ctx, ic.Sections)
		ic.Chunks = e.structurer.Chunk(segments, ic.DocumentID)
		return nil
	}

	metaTagger := func(ctx context.Context, ic *dag.IngestContext) error {
		var buf strings.Builder
		for _, s := range ic.Sections {
			buf.WriteString(s.Content)
			buf.WriteByte('\n')
		}
		result := e.tagger.Tag(ctx, buf.String())
		ic.DocType = result.DocType
		ic.Entities = result.Entities
		ic.ExtractedMetadata = result.Metadata
		return nil
	}

	tableNormalizer := func(ctx context.Context, ic *dag.IngestContext) error {
		ic.Tables = e.normalizer.Normalize(ctx, ic.Tables)
		return nil
	}

	deduplicator := func(ctx context.Context, ic *dag.IngestContext) error {
		e.deduper.Run(ic.Chunks)
		for _, c := range ic.Chunks {
			if c.Duplicate {
				ic.Duplicates++
			}
		}
		return nil
	}

	piiMasker := func(ctx context.Context, ic *dag.IngestContext) error {
		ic.PIIMasked = e.masker.Run(ic.Chunks)
		return nil
	}

	indexer := func(ctx context.Context, ic *dag.IngestContext) error {
		for i := range ic.Chunks {
			ic.Chunks[i].DocumentID = ic.DocumentID
		}
		ids, err := e.store.InsertChunks(ctx, ic.Chunks)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreCommit, err)
		}

		var persistedChunks []store.Chunk
		var persistedIDs []int64
		for i, id := range ids {
			if id < 0 {
				continue // duplicate, not persisted
			}
			persistedChunks = append(persistedChunks, ic.Chunks[i])
			persistedIDs = append(persistedIDs, id)
		}

		result, err := e.indexer.Run(ctx, persistedChunks, persistedIDs)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}

		// Prune rows that failed embedding so every persisted chunk keeps
		// the invariant of having a vector, rather than leaving empty rows
		// the rest of the pipeline (graph build, retrieval) could surface.
		if len(result.FailedIDs) > 0 {
			if err := e.store.DeleteChunks(ctx, result.FailedIDs); err != nil {
				slog.Warn("ingest: pruning un-embedded chunks failed (non-fatal)", "error", err)
			}
			failed := make(map[int64]bool, len(result.FailedIDs))
			for _, id := range result.FailedIDs {
				failed[id] = true
			}
			var chunks []store.Chunk
			var ids []int64
			for i, id := range persistedIDs {
				if failed[id] {
					continue
				}
				chunks = append(chunks, persistedChunks[i])
				ids = append(ids, id)
			}
			persistedChunks, persistedIDs = chunks, ids
		}

		ic.Chunks = persistedChunks
		ic.ChunkIDs = persistedIDs
		return nil
	}

	return []dag.Node{
		{ID: "extractor", Fn: extractor, Critical: true},
		{ID: "structurer", Fn: structurer, DependsOn: []dag.NodeID{"extractor"}},
		{ID: "metatagger", Fn: metaTagger, DependsOn: []dag.NodeID{"extractor"}},
		{ID: "tablenorm", Fn: tableNormalizer, DependsOn: []dag.NodeID{"extractor"}},
		{ID: "deduplicator", Fn: deduplicator, DependsOn: []dag.NodeID{"structurer"}},
		{ID: "piimasker", Fn: piiMasker, DependsOn: []dag.NodeID{"deduplicator"}},
		{
			ID:       "indexer",
			Fn:       indexer,
			Critical: true,
			DependsOn: []dag.NodeID{
				"extractor", "structurer", "deduplicator", "piimasker",
			},
			// MetaTagger and TableNormalizer enrich ic.Entities/ic.Tables,
			// which Indexer never reads; a failure there must not stop
			// chunks from being embedded and persisted.
			SoftDeps: []dag.NodeID{"metatagger", "tablenorm"},
		},
	}
}

// captionImages replaces each page's embedded images with an inline
// marker in the owning section's content: the largest image on a page
// gets a vision-generated caption ("[Image: ...]"), the rest fall back
// to a bare "[image]" marker. Returns the updated sections and the set
// of images that were actually captioned. A nil/empty images slice is
// a no-op.
func (e *engine) captionImages(ctx context.Context, sections []parser.Section, images []parser.ExtractedImage) ([]parser.Section, []parser.ExtractedImage) {
	if len(images) == 0 {
		return sections, nil
	}

	out := make([]parser.Section, len(sections))
	copy(out, sections)

	pages := make(map[int][]int)
	var order []int
	for i, img := range images {
		if _, ok := pages[img.PageNumber]; !ok {
			order = append(order, img.PageNumber)
		}
		pages[img.PageNumber] = append(pages[img.PageNumber], i)
	}

	var captioned []parser.ExtractedImage
	for _, page := range order {
		idxs := pages[page]

		largest := idxs[0]
		for _, i := range idxs[1:] {
			if images[i].Width*images[i].Height > images[largest].Width*images[largest].Height {
				largest = i
			}
		}

		if !e.cfg.CaptionImages || e.visionLLM == nil {
			for _, i := range idxs {
				appendImageMarker(out, images[i].SectionIndex, "[image]")
			}
			continue
		}

		vision, ok := e.visionLLM.(llm.VisionProvider)
		if !ok {
			for _, i := range idxs {
				appendImageMarker(out, images[i].SectionIndex, "[image]")
			}
			continue
		}

		caption, err := captionImage(ctx, vision, images[largest])
		if err != nil {
			slog.Warn("image captioning failed, using fallback marker", "page", page, "error", err)
			for _, i := range idxs {
				appendImageMarker(out, images[i].SectionIndex, "[image]")
			}
			continue
		}

		for _, i := range idxs {
			if i == largest {
				appendImageMarker(out, images[i].SectionIndex, fmt.Sprintf("[Image: %s]", caption))
			} else {
				appendImageMarker(out, images[i].SectionIndex, "[image]")
			}
		}
		captioned = append(captioned, images[largest])
	}

	return out, captioned
}

func appendImageMarker(sections []parser.Section, sectionIndex int, marker string) {
	if sectionIndex < 0 || sectionIndex >= len(sections) {
		return
	}
	sections[sectionIndex].Content = strings.TrimRight(sections[sectionIndex].Content, "\n") + "\n" + marker
}

func captionImage(ctx context.Context, vision llm.VisionProvider, img parser.ExtractedImage) (string, error) {
	b64 := base64.StdEncoding.EncodeToString(img.Data)
	resp, err := vision.ChatWithImages(ctx, llm.VisionChatRequest{
		Messages: []llm.VisionMessage{
			{
				Role: "user",
				Content: []llm.ContentPart{
					{Type: "text", Text: "Describe this image in one concise sentence for use as a document caption."},
					{Type: "image_url", ImageURL: &llm.ImageURL{URL: fmt.Sprintf("data:%s;base64,%s", img.MIMEType, b64)}},
				},
			},
		},
		MaxTokens: 200,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// Query runs the agentic retrieval pipeline and returns a generated answer.
func (e *engine) Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, error) {
	options := &queryOptions{}
	for _, o := range opts {
		o(options)
	}

	loop := e.loop
	if options.topK > 0 {
		cfg := e.agentCfg
		cfg.TopKStart = options.topK
		loop = agents.NewLoop(cfg, e.chatLLM, e.search, e.summarizer)
	}

	result, err := loop.Run(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("agent loop: %w", err)
	}

	answer := &Answer{
		Text:             result.Answer.Text,
		NeedsMore:        result.Verdict.NeedsMore,
		JudgeReason:      result.Verdict.Reason,
		Summary:          result.Summary,
		ModelUsed:        result.Answer.ModelUsed,
		Iterations:       result.Iterations,
		PromptTokens:     result.Answer.PromptTokens,
		CompletionTokens: result.Answer.CompletionTokens,
		TotalTokens:      result.Answer.TotalTokens,
	}
	answerWords := significantWords(answer.Text)
	for _, h := range result.Hits {
		answer.Sources = append(answer.Sources, Source{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Filename:   h.Filename,
			Content:    h.Content,
			Heading:    h.Heading,
			PageNumber: h.PageNumber,
			Score:      h.Score,
			Snippet:    extractSnippet(h.Content, answerWords),
		})
	}

	e.store.LogQuery(ctx, store.QueryLog{
		Query:            question,
		Answer:           answer.Text,
		Sources:          answer.Sources,
		RetrievalMethod:  "hybrid-rrf",
		ModelUsed:        answer.ModelUsed,
		Rounds:           answer.Iterations,
		PromptTokens:     answer.PromptTokens,
		CompletionTokens: answer.CompletionTokens,
		TotalTokens:      answer.TotalTokens,
	})

	return answer, nil
}

// Search runs hybrid retrieval only, without the generation/judge loop.
func (e *engine) Search(ctx context.Context, query string, topK int) ([]Source, error) {
	if topK <= 0 {
		topK = 10
	}
	results, _, err := e.retriever.Search(ctx, query, retrieval.SearchOptions{MaxResults: topK})
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			Content:    r.Content,
			Heading:    r.Heading,
			PageNumber: r.PageNumber,
			Score:      r.Score,
		}
	}
	return sources, nil
}

// Update checks if a document has changed and re-ingests if needed.
func (e *engine) Update(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}

	doc, err := e.store.GetDocumentByPath(ctx, absPath)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrDocumentNotFound, absPath)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return false, fmt.Errorf("hashing file: %w", err)
	}

	if hash == doc.ContentHash {
		return false, nil
	}

	_, err = e.Ingest(ctx, absPath, WithForceReparse())
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAll checks all documents for changes.
func (e *engine) UpdateAll(ctx context.Context) ([]UpdateResult, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]UpdateResult, 0, len(docs))
	for _, doc := range docs {
		changed, err := e.Update(ctx, doc.Path)
		results = append(results, UpdateResult{
			DocumentID: doc.ID,
			Path:       doc.Path,
			Changed:    changed,
			Error:      err,
		})
	}
	return results, nil
}

// Delete removes a document and all its associated data.
func (e *engine) Delete(ctx context.Context, documentID int64) error {
	return e.store.DeleteDocument(ctx, documentID)
}

// DeleteAll removes every ingested document.
func (e *engine) DeleteAll(ctx context.Context) error {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := e.store.DeleteDocument(ctx, d.ID); err != nil {
			return fmt.Errorf("deleting document %d: %w", d.ID, err)
		}
	}
	return nil
}

// GetDocument returns a single ingested document by ID.
func (e *engine) GetDocument(ctx context.Context, documentID int64) (*Document, error) {
	d, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	doc := toDocument(*d)
	return &doc, nil
}

// ListDocuments returns all ingested documents.
func (e *engine) ListDocuments(ctx context.Context) ([]Document, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Document, len(docs))
	for i, d := range docs {
		result[i] = toDocument(d)
	}
	return result, nil
}

func toDocument(d store.Document) Document {
	doc := Document{
		ID:          d.ID,
		Path:        d.Path,
		Filename:    d.Filename,
		Format:      d.Format,
		MIME:        d.MIME,
		Size:        d.Size,
		ContentHash: d.ContentHash,
		ParseMethod: d.ParseMethod,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.Metadata != "" {
		_ = json.Unmarshal([]byte(d.Metadata), &doc.Metadata)
	}
	return doc
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
