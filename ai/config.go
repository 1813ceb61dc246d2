package ai

import (
	"errors"

	"github.com/gradmall/mallchat/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding        EmbeddingConfig
	Reranker         RerankerConfig
	IntentClassifier IntentClassifierConfig
	LLM              LLMConfig
	Intent           IntentConfig
	Memory           MemoryConfig
	Retrieval        RetrievalConfig
	Enabled          bool
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // deepseek, openai, siliconflow, dashscope, openrouter, ollama
	Model       string // deepseek-chat, gpt-4o, etc.
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // seconds
}

// RerankerConfig represents the dedicated rerank API configuration.
type RerankerConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Enabled  bool
}

// IntentClassifierConfig represents intent classification LLM configuration.
// Uses a lightweight model for fast, cost-effective classification.
type IntentClassifierConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Enabled  bool
}

// IntentConfig tunes intent recognition behavior.
type IntentConfig struct {
	HistorySize       int     // recent intent entries rendered into the classification prompt
	FallbackThreshold float32 // confidence below which history fallback applies
}

// MemoryConfig tunes conversation memory and summarization.
type MemoryConfig struct {
	SummaryTriggerThreshold int // turns above which summarization fires
	ContextMaxTokens        int // summary+history token ceiling
	MaxHistory              int // turns kept by the session store
	MaxSessions             int // session store capacity
}

// RetrievalConfig tunes the hybrid search pipeline.
type RetrievalConfig struct {
	TopK                int
	UseHybridSearch     bool
	UseRerank           bool
	UseQueryRewrite     bool
	RerankTopK          int
	SimilarityThreshold float32
	PersistDir          string
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}

	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Dimensions: 1024,
	}

	cfg.LLM = LLMConfig{
		Provider:    p.LLMProvider,
		Model:       p.LLMModel,
		APIKey:      p.LLMAPIKey,
		BaseURL:     p.LLMBaseURL,
		MaxTokens:   p.LLMMaxTokens,
		Temperature: p.LLMTemperature,
		Timeout:     p.LLMTimeout,
	}

	cfg.Reranker = RerankerConfig{
		Enabled:  p.RerankerProvider != "",
		Provider: p.RerankerProvider,
		Model:    p.RerankerModel,
		APIKey:   p.RerankerAPIKey,
		BaseURL:  p.RerankerBaseURL,
	}

	// Intent classifier uses a lighter model when configured, otherwise
	// falls back to the main LLM.
	cfg.IntentClassifier = IntentClassifierConfig{
		Enabled:  p.IntentAPIKey != "",
		Provider: p.IntentProvider,
		Model:    p.IntentModel,
		APIKey:   p.IntentAPIKey,
		BaseURL:  p.IntentBaseURL,
	}

	cfg.Intent = IntentConfig{
		HistorySize:       p.IntentHistorySize,
		FallbackThreshold: p.IntentFallbackThreshold,
	}

	cfg.Memory = MemoryConfig{
		SummaryTriggerThreshold: p.SummaryTriggerThreshold,
		ContextMaxTokens:        p.ContextMaxTokens,
		MaxHistory:              p.ContextMaxHistory,
		MaxSessions:             p.MaxConcurrentSessions,
	}

	cfg.Retrieval = RetrievalConfig{
		TopK:                p.RetrievalTopK,
		UseHybridSearch:     p.RAGUseHybridSearch,
		UseRerank:           p.RAGUseRerank,
		UseQueryRewrite:     p.RAGUseQueryRewrite,
		RerankTopK:          p.RAGRerankTopK,
		SimilarityThreshold: p.RAGSimilarityThresh,
		PersistDir:          p.PersistDir,
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}

	if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}

	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}

	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	return nil
}
