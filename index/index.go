// Package index batch-embeds chunks and commits them to the store, the
// spec's Indexer stage.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yourorg/docrag/llm"
	"github.com/yourorg/docrag/store"
)

// Config configures the Indexer.
type Config struct {
	BatchSize    int // chunks per embedding request
	MaxEmbedChars int // truncate chunk text before embedding
}

// DefaultConfig returns the spec's default batch size of 50.
func DefaultConfig() Config {
	return Config{
		BatchSize:     50,
		MaxEmbedChars: 8000,
	}
}

// Indexer embeds chunks in batches and persists vectors to the store.
// Unlike the batching it was adapted from, a failed batch is skipped
// rather than retried per-text: its chunks stay unembedded and are
// reported in Result.Failed.
type Indexer struct {
	cfg   Config
	embed llm.Provider
	store *store.Store
}

// New returns an Indexer. embed is the embedding provider; st is the store
// embeddings are committed to.
func New(cfg Config, embed llm.Provider, st *store.Store) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxEmbedChars <= 0 {
		cfg.MaxEmbedChars = 8000
	}
	return &Indexer{cfg: cfg, embed: embed, store: st}
}

// Result summarizes an indexing run.
type Result struct {
	Embedded  int
	Failed    int
	FailedIDs []int64 // chunk IDs that did not get an embedding, for the caller to prune
}

// Run embeds chunks in Config.BatchSize batches and inserts each
// resulting vector via the store. chunks and chunkIDs must be the same
// length and in the same order (chunkIDs[i] is the persisted ID for
// chunks[i]). After all batches commit, it triggers a best-effort
// planner-statistics refresh.
func (idx *Indexer) Run(ctx context.Context, chunks []store.Chunk, chunkIDs []int64) (Result, error) {
	if len(chunks) != len(chunkIDs) {
		return Result{}, fmt.Errorf("index: chunks/chunkIDs length mismatch: %d vs %d", len(chunks), len(chunkIDs))
	}

	var res Result
	batchSize := idx.cfg.BatchSize

	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			prefix := ""
			if chunks[j].Heading != "" {
				prefix = chunks[j].Heading + ": "
			}
			texts[j-i] = idx.truncate(prefix + chunks[j].Content)
		}

		embeddings, err := idx.embed.Embed(ctx, texts)
		if err != nil {
			slog.Warn("index: embedding batch failed, skipping batch",
				"batch_start", i, "batch_end", end, "error", err)
			res.Failed += end - i
			res.FailedIDs = append(res.FailedIDs, chunkIDs[i:end]...)
			continue
		}
		if len(embeddings) != len(texts) {
			slog.Warn("index: embedding batch returned mismatched count, skipping batch",
				"batch_start", i, "batch_end", end, "want", len(texts), "got", len(embeddings))
			res.Failed += end - i
			res.FailedIDs = append(res.FailedIDs, chunkIDs[i:end]...)
			continue
		}

		for j, emb := range embeddings {
			if err := idx.store.InsertEmbedding(ctx, chunkIDs[i+j], emb); err != nil {
				slog.Warn("index: storing embedding failed", "chunk_id", chunkIDs[i+j], "error", err)
				res.Failed++
				res.FailedIDs = append(res.FailedIDs, chunkIDs[i+j])
				continue
			}
			res.Embedded++
		}
	}

	if err := idx.store.TriggerStatsRefresh(ctx); err != nil {
		slog.Warn("index: stats refresh failed (non-fatal)", "error", err)
	}

	if res.Embedded == 0 && len(chunks) > 0 {
		return res, fmt.Errorf("index: all %d chunks failed embedding", len(chunks))
	}
	return res, nil
}

func (idx *Indexer) truncate(text string) string {
	if len(text) <= idx.cfg.MaxEmbedChars {
		return text
	}
	return text[:idx.cfg.MaxEmbedChars]
}
