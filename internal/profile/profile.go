package profile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Main LLM configuration (OpenAI-compatible protocol)
	// All providers (deepseek, openai, siliconflow, dashscope, ollama) use the same config
	LLMProvider    string  // Provider identifier: deepseek, openai, siliconflow, dashscope, openrouter, ollama
	LLMAPIKey      string  // LLM API key
	LLMBaseURL     string  // LLM base URL (optional, has default per provider)
	LLMModel       string  // Model name: deepseek-chat, gpt-4o, etc.
	LLMTemperature float32 // Sampling temperature (default: 0.7)
	LLMMaxTokens   int     // Completion budget (default: 2048)
	LLMTimeout     int     // LLM request timeout in seconds (default: 120)

	// Intent classifier LLM (faster/cheaper model, may share the main key)
	IntentProvider string
	IntentModel    string
	IntentAPIKey   string
	IntentBaseURL  string

	// Embedding service configuration
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingAPIKey   string
	EmbeddingBaseURL  string

	// Reranker service (optional; LLM reranking is the fallback)
	RerankerProvider string
	RerankerModel    string
	RerankerAPIKey   string
	RerankerBaseURL  string

	// Intent recognition tuning
	IntentHistorySize       int     // recent intent entries rendered into the prompt
	IntentFallbackThreshold float32 // confidence below which history fallback applies

	// Conversation memory
	SummaryTriggerThreshold int // turns above which summarization fires
	ContextMaxTokens        int // summary+history token ceiling
	ContextMaxHistory       int // turns kept by the session store

	// Retrieval tuning
	RetrievalTopK       int
	RAGUseHybridSearch  bool
	RAGUseRerank        bool
	RAGUseQueryRewrite  bool
	RAGRerankTopK       int
	RAGSimilarityThresh float32

	// Server
	Mode                  string
	Addr                  string
	Port                  int
	Data                  string // data dir: retrieval indexes, uploads
	UploadDir             string
	PersistDir            string // retrieval index persist dir
	DSN                   string // optional sqlite DSN for durable session backing
	Driver                string
	Version               string
	RequestTimeout        int // per-request deadline in seconds (non-streaming)
	MaxConcurrentSessions int
}

// Provider default configurations for LLM.
// Used when LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"dashscope": {
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:   "qwen-max-latest",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the LLM API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultFloat returns environment variable value as float32 or default value.
func getEnvOrDefaultFloat(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

// getEnvOrDefaultBool returns environment variable value as bool or default value.
func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Main LLM configuration
	p.LLMProvider = getEnvOrDefault("LLM_PROVIDER", "deepseek")
	p.LLMAPIKey = getEnvOrDefault("LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("LLM_MODEL", "")
	p.LLMTemperature = getEnvOrDefaultFloat("LLM_TEMPERATURE", 0.7)
	p.LLMMaxTokens = getEnvOrDefaultInt("LLM_MAX_TOKENS", 2048)
	p.LLMTimeout = getEnvOrDefaultInt("LLM_TIMEOUT_SECONDS", 120)

	if p.LLMProvider != "" {
		if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
			slog.Warn("Unknown LLM provider, using default: deepseek", "provider", p.LLMProvider)
			p.LLMProvider = "deepseek"
		}
	}
	if p.LLMBaseURL == "" || p.LLMModel == "" {
		if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
			if p.LLMBaseURL == "" {
				p.LLMBaseURL = defaults.BaseURL
			}
			if p.LLMModel == "" {
				p.LLMModel = defaults.Model
			}
		}
	}

	// Intent classifier configuration (falls back to the main LLM)
	p.IntentProvider = getEnvOrDefault("INTENT_LLM_PROVIDER", p.LLMProvider)
	p.IntentModel = getEnvOrDefault("INTENT_LLM_MODEL", p.LLMModel)
	p.IntentAPIKey = getEnvOrDefault("INTENT_LLM_API_KEY", p.LLMAPIKey)
	p.IntentBaseURL = getEnvOrDefault("INTENT_LLM_BASE_URL", p.LLMBaseURL)

	// Embedding configuration
	p.EmbeddingProvider = getEnvOrDefault("EMBEDDING_PROVIDER", "siliconflow")
	p.EmbeddingModel = getEnvOrDefault("EMBEDDING_MODEL", "BAAI/bge-m3")
	p.EmbeddingAPIKey = getEnvOrDefault("EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1")

	// Reranker configuration (optional)
	p.RerankerProvider = getEnvOrDefault("RERANKER_PROVIDER", "")
	p.RerankerModel = getEnvOrDefault("RERANKER_MODEL", "BAAI/bge-reranker-v2-m3")
	p.RerankerAPIKey = getEnvOrDefault("RERANKER_API_KEY", p.EmbeddingAPIKey)
	p.RerankerBaseURL = getEnvOrDefault("RERANKER_BASE_URL", p.EmbeddingBaseURL)

	// Intent recognition tuning
	p.IntentHistorySize = getEnvOrDefaultInt("INTENT_HISTORY_SIZE", 5)
	p.IntentFallbackThreshold = getEnvOrDefaultFloat("INTENT_FALLBACK_THRESHOLD", 0.7)

	// Conversation memory
	p.SummaryTriggerThreshold = getEnvOrDefaultInt("SUMMARY_TRIGGER_THRESHOLD", 10)
	p.ContextMaxTokens = getEnvOrDefaultInt("CONTEXT_MAX_TOKENS", 3000)
	p.ContextMaxHistory = getEnvOrDefaultInt("CONTEXT_MAX_HISTORY", 20)

	// Retrieval tuning
	p.RetrievalTopK = getEnvOrDefaultInt("RETRIEVAL_TOP_K", 3)
	p.RAGUseHybridSearch = getEnvOrDefaultBool("RAG_USE_HYBRID_SEARCH", true)
	p.RAGUseRerank = getEnvOrDefaultBool("RAG_USE_RERANK", true)
	p.RAGUseQueryRewrite = getEnvOrDefaultBool("RAG_USE_QUERY_REWRITE", false)
	p.RAGRerankTopK = getEnvOrDefaultInt("RAG_RERANK_TOP_K", 10)
	p.RAGSimilarityThresh = getEnvOrDefaultFloat("RAG_SIMILARITY_THRESHOLD", 0.3)

	// Server limits
	p.RequestTimeout = getEnvOrDefaultInt("REQUEST_TIMEOUT", 30)
	p.MaxConcurrentSessions = getEnvOrDefaultInt("MAX_CONCURRENT_SESSIONS", 1000)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if a relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		if err := os.MkdirAll(dataDir, 0o770); err != nil {
			return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
		}
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		if p.Mode == "prod" {
			p.Data = "/var/opt/mallchat"
		} else {
			p.Data = "data"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.PersistDir == "" {
		p.PersistDir = filepath.Join(dataDir, "indexes")
	}
	if p.UploadDir == "" {
		p.UploadDir = filepath.Join(dataDir, "uploads")
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, "mallchat_"+p.Mode+".db") + "?_loc=auto"
	}

	return nil
}
