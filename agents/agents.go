// Package agents implements the query-time pipeline: Planner, Rewriter,
// Generator, Judge, and an optional Summarizer, wired together by a
// bounded-iteration Loop. Each agent wraps a single llm.Provider call,
// adapted from the teacher's monolithic multi-round reasoning.Engine.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/yourorg/docrag/llm"
	"github.com/yourorg/docrag/retrieval"
	"github.com/yourorg/docrag/store"
)

// Config configures the agent pipeline.
type Config struct {
	RewritesCount int     // how many paraphrases Rewriter asks for
	MaxIterations int     // Loop's re-retrieval cap (spec default 2)
	TopKStart     int
	TopKCap       int     // widen cap (spec default 20)
	TopKStep      int     // widen step (spec default +5)
	RRFK          int // RRF's k constant (spec default 60)
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		RewritesCount: 2,
		MaxIterations: 2,
		TopKStart:     10,
		TopKCap:       20,
		TopKStep:      5,
		RRFK:          60,
	}
}

// Plan is the Planner's single decision.
type Plan struct {
	UseRAG   bool
	Rewrites int
}

// Planner decides whether retrieval is needed and how many rewrites to
// request. It is a no-op heuristic in the teacher's sense: spec §4.11
// defines its output as fixed by config, not model-derived.
type Planner struct {
	cfg Config
}

func NewPlanner(cfg Config) *Planner { return &Planner{cfg: cfg} }

func (p *Planner) Plan(ctx context.Context, query string) Plan {
	return Plan{UseRAG: true, Rewrites: p.cfg.RewritesCount}
}

// Rewriter asks the completion model for paraphrases of the query. On
// any failure it returns an empty list rather than propagating the
// error — the Loop always has the original query to fall back on.
type Rewriter struct {
	chat llm.Provider
}

func NewRewriter(chat llm.Provider) *Rewriter { return &Rewriter{chat: chat} }

func (r *Rewriter) Rewrite(ctx context.Context, query string, n int) []string {
	if n <= 0 || r.chat == nil {
		return nil
	}

	resp, err := r.chat.Chat(ctx, llm.ChatRequest{
		ResponseFormat: "json_object",
		Temperature:    0.3,
		Messages: []llm.Message{
			{Role: "system", Content: `Rewrite the user's question into alternative phrasings that preserve its meaning. Respond as JSON: {"rewrites": [strings]}.`},
			{Role: "user", Content: fmt.Sprintf("Produce %d rewrites of: %s", n, query)},
		},
	})
	if err != nil {
		slog.Warn("agents: rewrite failed, continuing with original query only", "error", err)
		return nil
	}

	var parsed struct {
		Rewrites []string `json:"rewrites"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		slog.Warn("agents: rewrite response was not valid JSON, continuing with original query only", "error", err)
		return nil
	}
	if len(parsed.Rewrites) > n {
		parsed.Rewrites = parsed.Rewrites[:n]
	}
	return parsed.Rewrites
}

// maxChunkChars is the per-source context window the Generator includes
// in its prompt (spec §4.11: first 1200 chars per retrieved chunk).
const maxChunkChars = 1200

// Answer is the Generator's output plus the usage it consumed.
type Answer struct {
	Text             string
	ModelUsed        string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator builds a grounded prompt from retrieved hits and asks the
// completion model for an answer restricted to that context.
type Generator struct {
	chat llm.Provider
}

func NewGenerator(chat llm.Provider) *Generator { return &Generator{chat: chat} }

func (g *Generator) Generate(ctx context.Context, query string, hits []store.RetrievalResult) (*Answer, error) {
	var b strings.Builder
	for i, h := range hits {
		content := h.Content
		if len(content) > maxChunkChars {
			content = content[:maxChunkChars]
		}
		fmt.Fprintf(&b, "--- Source %d: %s", i+1, h.Filename)
		if h.Heading != "" {
			fmt.Fprintf(&b, " | %s", h.Heading)
		}
		b.WriteString(" ---\n")
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	prompt := fmt.Sprintf(`Context:
%s

Question: %s

Answer only using the context above. Reply in the same language as the question. If the context is insufficient, say so explicitly.`, b.String(), query)

	resp, err := g.chat.Chat(ctx, llm.ChatRequest{
		Temperature: 0,
		Messages: []llm.Message{
			{Role: "system", Content: "You are a precise document analysis assistant. Answer questions based ONLY on the provided context."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}

	return &Answer{
		Text:             resp.Content,
		ModelUsed:        resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}, nil
}

// Verdict is the Judge's assessment of a generated answer.
type Verdict struct {
	OK        bool   `json:"ok"`
	NeedsMore bool   `json:"needs_more"`
	Reason    string `json:"reason"`
}

// Judge inspects {query, answer, hits} and decides whether the answer
// is acceptable or retrieval should widen and retry.
type Judge struct {
	chat llm.Provider
}

func NewJudge(chat llm.Provider) *Judge { return &Judge{chat: chat} }

func (j *Judge) Evaluate(ctx context.Context, query, answer string, hits []store.RetrievalResult) Verdict {
	if j.chat == nil {
		return heuristicVerdict(answer, hits)
	}

	resp, err := j.chat.Chat(ctx, llm.ChatRequest{
		ResponseFormat: "json_object",
		Temperature:    0,
		Messages: []llm.Message{
			{Role: "system", Content: `Judge whether an answer is adequately supported by its sources. Respond as JSON: {"ok": bool, "needs_more": bool, "reason": string}.`},
			{Role: "user", Content: fmt.Sprintf("Question: %s\n\nAnswer: %s\n\nSource count: %d", query, answer, len(hits))},
		},
	})
	if err != nil {
		slog.Warn("agents: judge call failed, falling back to heuristic", "error", err)
		return heuristicVerdict(answer, hits)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(resp.Content), &v); err != nil {
		slog.Warn("agents: judge response was not valid JSON, falling back to heuristic", "error", err)
		return heuristicVerdict(answer, hits)
	}
	return v
}

func heuristicVerdict(answer string, hits []store.RetrievalResult) Verdict {
	lower := strings.ToLower(answer)
	insufficient := strings.Contains(lower, "not enough information") ||
		strings.Contains(lower, "cannot determine") ||
		strings.Contains(lower, "context is insufficient")

	if len(hits) == 0 || insufficient {
		return Verdict{OK: false, NeedsMore: true, Reason: "no supporting context retrieved"}
	}
	return Verdict{OK: true, NeedsMore: false, Reason: "heuristic pass: context present, no hedging detected"}
}

// Summarizer optionally distills a final answer into two sentences.
type Summarizer struct {
	chat llm.Provider
}

func NewSummarizer(chat llm.Provider) *Summarizer { return &Summarizer{chat: chat} }

func (s *Summarizer) Summarize(ctx context.Context, answer string) (string, error) {
	if s.chat == nil {
		return "", nil
	}
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Temperature: 0,
		Messages: []llm.Message{
			{Role: "system", Content: "Distill the following answer into exactly two sentences, preserving its key claims."},
			{Role: "user", Content: answer},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarization: %w", err)
	}
	return resp.Content, nil
}

// SearchFunc runs a single retrieval pass for one query variant.
type SearchFunc func(ctx context.Context, query string, topK int) ([]store.RetrievalResult, error)

// Result is the Loop's final output.
type Result struct {
	Answer     Answer
	Summary    string
	Hits       []store.RetrievalResult
	Iterations int
	Verdict    Verdict
}

// Loop wires Planner -> Rewriter -> concurrent per-variant search ->
// RRFFuser -> Generator -> Judge, widening topK and re-running the
// search/fuse/generate/judge cycle while the Judge reports needs_more,
// up to Config.MaxIterations.
type Loop struct {
	cfg        Config
	planner    *Planner
	rewriter   *Rewriter
	generator  *Generator
	judge      *Judge
	summarizer *Summarizer
	search     SearchFunc
}

// NewLoop wires a full agent pipeline. summarizer may be nil to skip
// the optional distillation step.
func NewLoop(cfg Config, chat llm.Provider, search SearchFunc, summarizer *Summarizer) *Loop {
	return &Loop{
		cfg:        cfg,
		planner:    NewPlanner(cfg),
		rewriter:   NewRewriter(chat),
		generator:  NewGenerator(chat),
		judge:      NewJudge(chat),
		summarizer: summarizer,
		search:     search,
	}
}

func (l *Loop) Run(ctx context.Context, query string) (*Result, error) {
	plan := l.planner.Plan(ctx, query)
	if !plan.UseRAG {
		ans, err := l.generator.Generate(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return &Result{Answer: *ans}, nil
	}

	rewrites := l.rewriter.Rewrite(ctx, query, plan.Rewrites)
	variants := append([]string{query}, rewrites...)

	topK := l.cfg.TopKStart
	if topK <= 0 {
		topK = 10
	}

	var accumulated [][]store.RetrievalResult
	var hits []store.RetrievalResult
	var ans *Answer
	var verdict Verdict
	iteration := 0

	for ; ; iteration++ {
		results, err := l.searchVariants(ctx, variants, topK)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		accumulated = append(accumulated, results...)

		// Variant-list fusion is unweighted per spec SS4.10/SS4.11 (plain
		// 1/(k+rank)); leg-weighting (vector/FTS/graph) happens only in
		// the 3-leg fuseRRF used by retrieval.Engine.Search.
		fused, _ := retrieval.RRF(accumulated, nil, l.rrfK(), topK)
		hits = fused

		ans, err = l.generator.Generate(ctx, query, hits)
		if err != nil {
			return nil, err
		}

		verdict = l.judge.Evaluate(ctx, query, ans.Text, hits)
		if !verdict.NeedsMore || iteration >= l.maxIterations() {
			break
		}

		topK += l.topKStep()
		if cap := l.topKCap(); topK > cap {
			topK = cap
		}
		slog.Info("agents: judge requested more context, widening retrieval",
			"iteration", iteration+1, "new_top_k", topK, "reason", verdict.Reason)
	}

	res := &Result{Answer: *ans, Hits: hits, Verdict: verdict, Iterations: iteration}

	if l.summarizer != nil {
		summary, err := l.summarizer.Summarize(ctx, ans.Text)
		if err != nil {
			slog.Warn("agents: summarization failed (non-fatal)", "error", err)
		} else {
			res.Summary = summary
		}
	}
	return res, nil
}

// searchVariants runs one search per query variant concurrently,
// mirroring the teacher's fixed 3-way vecCh/ftsCh/graphCh fan-out
// generalized to an N-way fan-out over rewrite variants.
func (l *Loop) searchVariants(ctx context.Context, variants []string, topK int) ([][]store.RetrievalResult, error) {
	results := make([][]store.RetrievalResult, len(variants))
	errs := make([]error, len(variants))

	var wg sync.WaitGroup
	for i, v := range variants {
		wg.Add(1)
		go func(i int, variant string) {
			defer wg.Done()
			r, err := l.search(ctx, variant, topK)
			results[i] = r
			errs[i] = err
		}(i, v)
	}
	wg.Wait()

	var nonNil [][]store.RetrievalResult
	var firstErr error
	for i, r := range results {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		nonNil = append(nonNil, r)
	}
	if len(nonNil) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return nonNil, nil
}

func (l *Loop) rrfK() int {
	if l.cfg.RRFK <= 0 {
		return 60
	}
	return l.cfg.RRFK
}

func (l *Loop) maxIterations() int {
	if l.cfg.MaxIterations <= 0 {
		return 2
	}
	return l.cfg.MaxIterations
}

func (l *Loop) topKStep() int {
	if l.cfg.TopKStep <= 0 {
		return 5
	}
	return l.cfg.TopKStep
}

func (l *Loop) topKCap() int {
	if l.cfg.TopKCap <= 0 {
		return 20
	}
	return l.cfg.TopKCap
}
