package docrag

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/yourorg/docrag/parser"
)

// Config holds all configuration for the docrag engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.docrag/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "docrag". The file will be <DBName>.db inside the
	// storage directory (~/.docrag/ or working dir).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.docrag/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers
	Chat        LLMConfig `json:"chat" yaml:"chat"`
	Embedding   LLMConfig `json:"embedding" yaml:"embedding"`
	Vision      LLMConfig `json:"vision" yaml:"vision"`
	Translation LLMConfig `json:"translation" yaml:"translation"` // optional: fast model for query translation (defaults to Chat)

	// Retrieval weights for RRF
	WeightVector float64 `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS    float64 `json:"weight_fts" yaml:"weight_fts"`
	WeightGraph  float64 `json:"weight_graph" yaml:"weight_graph"`

	// Chunking
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
	ChunkOverlap   int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Graph building
	SkipGraph        bool `json:"skip_graph" yaml:"skip_graph"`                 // Skip knowledge graph extraction during ingest
	GraphConcurrency int  `json:"graph_concurrency" yaml:"graph_concurrency"`   // Max parallel LLM calls for graph extraction (default 16)

	// Reasoning
	MaxRounds           int     `json:"max_rounds" yaml:"max_rounds"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// Image captioning
	CaptionImages bool `json:"caption_images" yaml:"caption_images"` // Opt-in: caption extracted images via vision LLM

	// External parsing
	LlamaParse *LlamaParseConfig `json:"llamaparse,omitempty" yaml:"llamaparse,omitempty"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// Dedup controls the Deduplicator (MinHash/LSH near-duplicate detection).
	Dedup DedupConfig `json:"dedup" yaml:"dedup"`

	// PII controls the PIIMasker.
	PII PIIConfig `json:"pii" yaml:"pii"`

	// Agent controls the query-time agent pipeline (Planner, Rewriter,
	// Judge, Loop).
	Agent AgentConfig `json:"agent" yaml:"agent"`

	// IndexBatchSize is the number of chunks embedded per request
	// during indexing (spec default 50).
	IndexBatchSize int `json:"index_batch_size" yaml:"index_batch_size"`

	// OCREnabled gates the image/OCR parsing capability. Has no effect
	// unless OCREngine is also set: docrag ships no OCR binding of its
	// own, so the caller supplies one (e.g. a Tesseract or cloud-vision
	// wrapper implementing parser.OCREngine) to actually enable it.
	OCREnabled bool `json:"ocr_enabled" yaml:"ocr_enabled"`

	// OCREngine is the pluggable OCR backend used when OCREnabled is
	// true. Not serializable; set programmatically.
	OCREngine parser.OCREngine `json:"-" yaml:"-"`

	// UploadMaxSize is an upload size limit in bytes. It is loaded from
	// config and UPLOAD_MAX_SIZE but neither the engine nor cmd/server
	// reads it: no upload size cap is enforced.
	UploadMaxSize int64 `json:"upload_max_size" yaml:"upload_max_size"`

	// UploadDir is a staging directory for uploads. It is loaded from
	// config and UPLOAD_DIR but neither the engine nor cmd/server reads
	// it: the upload handler always stages files in os.TempDir().
	UploadDir string `json:"upload_dir" yaml:"upload_dir"`

	// CORSOrigins is a comma-separated allow-list for the HTTP adapter.
	CORSOrigins string `json:"cors_origins" yaml:"cors_origins"`
}

// DedupConfig configures the Deduplicator.
type DedupConfig struct {
	Threshold   float64 `json:"threshold" yaml:"threshold"`     // minimum estimated Jaccard similarity (spec default 0.85)
	ShingleSize int     `json:"shingle_size" yaml:"shingle_size"` // word shingle width (spec default 3)
}

// PIIConfig configures the PIIMasker, one toggle per masking rule.
type PIIConfig struct {
	Emails bool `json:"emails" yaml:"emails"`
	Phones bool `json:"phones" yaml:"phones"`
	IDs    bool `json:"ids" yaml:"ids"`
	Cards  bool `json:"cards" yaml:"cards"`
	IBANs  bool `json:"ibans" yaml:"ibans"`
}

// AgentConfig configures the query-time agent pipeline.
type AgentConfig struct {
	RewritesCount   int     `json:"rewrites_count" yaml:"rewrites_count"`     // AGENT_REWRITES
	JudgeStrictness float64 `json:"judge_strictness" yaml:"judge_strictness"` // JUDGE_STRICTNESS
	MaxIterations   int     `json:"max_iterations" yaml:"max_iterations"`
	TopK            int     `json:"top_k" yaml:"top_k"` // RAG_TOP_K
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// LlamaParseConfig configures the LlamaParse external parsing service.
type LlamaParseConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.docrag/docrag.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "docrag",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Vision: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2-vision",
			BaseURL:  "http://localhost:11434",
		},
		WeightVector:        1.0,
		WeightFTS:           1.0,
		WeightGraph:         0.5,
		MaxChunkTokens:      1024,
		ChunkOverlap:        128,
		MaxRounds:           3,
		ConfidenceThreshold: 0.7,
		EmbeddingDim:        768,
		Dedup: DedupConfig{
			Threshold:   0.85,
			ShingleSize: 3,
		},
		PII: PIIConfig{
			Emails: true,
			Phones: true,
			IDs:    true,
			Cards:  true,
			IBANs:  true,
		},
		Agent: AgentConfig{
			RewritesCount:   2,
			JudgeStrictness: 0.5,
			MaxIterations:   2,
			TopK:            10,
		},
		IndexBatchSize: 50,
		OCREnabled:     false,
		UploadMaxSize:  50 << 20, // 50MiB
		UploadDir:      "",       // empty -> os.TempDir()
		CORSOrigins:    "*",
	}
}

// LoadEnvOverrides layers environment variables onto a Config: DOCRAG_DB_PATH, DOCRAG_CHAT_BASE_URL,
// DOCRAG_CHAT_API_KEY, DOCRAG_CHAT_MODEL, DOCRAG_CHAT_PROVIDER,
// DOCRAG_EMBED_BASE_URL, DOCRAG_EMBED_API_KEY, DOCRAG_EMBED_MODEL,
// DOCRAG_EMBED_PROVIDER, DOCRAG_CORS_ORIGINS,
// RAG_TOP_K, AGENT_REWRITES, JUDGE_STRICTNESS, OCR_ENABLED,
// UPLOAD_MAX_SIZE, UPLOAD_DIR.
func (c *Config) LoadEnvOverrides() {
	if v := os.Getenv("DOCRAG_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("DOCRAG_CHAT_BASE_URL"); v != "" {
		c.Chat.BaseURL = v
	}
	if v := os.Getenv("DOCRAG_CHAT_API_KEY"); v != "" {
		c.Chat.APIKey = v
	}
	if v := os.Getenv("DOCRAG_CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("DOCRAG_CHAT_PROVIDER"); v != "" {
		c.Chat.Provider = v
	}
	if v := os.Getenv("DOCRAG_EMBED_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("DOCRAG_EMBED_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("DOCRAG_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("DOCRAG_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("DOCRAG_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = v
	}
	if v := os.Getenv("RAG_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Agent.TopK = n
		}
	}
	if v := os.Getenv("AGENT_REWRITES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Agent.RewritesCount = n
		}
	}
	if v := os.Getenv("JUDGE_STRICTNESS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Agent.JudgeStrictness = f
		}
	}
	if v := os.Getenv("OCR_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.OCREnabled = b
		}
	}
	if v := os.Getenv("UPLOAD_MAX_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.UploadMaxSize = n
		}
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.UploadDir = v
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "docrag"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".docrag")
		return filepath.Join(dir, name+".db")
	}
}
