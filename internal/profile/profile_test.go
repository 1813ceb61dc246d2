package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFromEnvDefaults 测试环境变量缺省时的默认配置。
func TestFromEnvDefaults(t *testing.T) {
	clearEnvVars(t)

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "deepseek", p.LLMProvider)
	assert.Equal(t, "https://api.deepseek.com", p.LLMBaseURL)
	assert.Equal(t, "deepseek-chat", p.LLMModel)
	assert.Equal(t, float32(0.7), p.LLMTemperature)
	assert.Equal(t, 2048, p.LLMMaxTokens)
	assert.Equal(t, 120, p.LLMTimeout)

	assert.Equal(t, "siliconflow", p.EmbeddingProvider)
	assert.Equal(t, "BAAI/bge-m3", p.EmbeddingModel)
	assert.Equal(t, "BAAI/bge-reranker-v2-m3", p.RerankerModel)
	assert.Empty(t, p.RerankerProvider)

	assert.Equal(t, 10, p.SummaryTriggerThreshold)
	assert.Equal(t, 20, p.ContextMaxHistory)
	assert.Equal(t, 3, p.RetrievalTopK)
	assert.True(t, p.RAGUseHybridSearch)
	assert.True(t, p.RAGUseRerank)
	assert.False(t, p.RAGUseQueryRewrite)
}

// TestFromEnvOverrides 测试从环境变量读取配置。
func TestFromEnvOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "LLM API key",
			envVar:   "LLM_API_KEY",
			envValue: "test-llm-key",
			field:    func(p *Profile) string { return p.LLMAPIKey },
			expected: "test-llm-key",
		},
		{
			name:     "LLM base URL override",
			envVar:   "LLM_BASE_URL",
			envValue: "http://localhost:8080/v1",
			field:    func(p *Profile) string { return p.LLMBaseURL },
			expected: "http://localhost:8080/v1",
		},
		{
			name:     "embedding API key",
			envVar:   "EMBEDDING_API_KEY",
			envValue: "test-embedding-key",
			field:    func(p *Profile) string { return p.EmbeddingAPIKey },
			expected: "test-embedding-key",
		},
		{
			name:     "reranker provider",
			envVar:   "RERANKER_PROVIDER",
			envValue: "siliconflow",
			field:    func(p *Profile) string { return p.RerankerProvider },
			expected: "siliconflow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv(tt.envVar, tt.envValue)

			p := &Profile{}
			p.FromEnv()

			assert.Equal(t, tt.expected, tt.field(p))
		})
	}
}

// TestFromEnvFallbackChain 测试意图/嵌入配置回退到主 LLM 配置。
func TestFromEnvFallbackChain(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("LLM_API_KEY", "main-key")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "main-key", p.IntentAPIKey)
	assert.Equal(t, "main-key", p.EmbeddingAPIKey)
	assert.Equal(t, "main-key", p.RerankerAPIKey, "reranker key falls back through embedding key")
	assert.Equal(t, p.LLMProvider, p.IntentProvider)
	assert.Equal(t, p.LLMModel, p.IntentModel)
}

// TestFromEnvUnknownProvider 未知 provider 回退到 deepseek。
func TestFromEnvUnknownProvider(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("LLM_PROVIDER", "no-such-provider")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "deepseek", p.LLMProvider)
	assert.Equal(t, "https://api.deepseek.com", p.LLMBaseURL)
}

func TestIsAIEnabled(t *testing.T) {
	p := &Profile{}
	assert.False(t, p.IsAIEnabled())

	p.LLMAPIKey = "some-key"
	assert.True(t, p.IsAIEnabled())
}

func TestValidate(t *testing.T) {
	t.Run("normalizes mode and derives dirs", func(t *testing.T) {
		p := &Profile{
			Mode: "bogus",
			Data: t.TempDir(),
		}
		require.NoError(t, p.Validate())

		assert.Equal(t, "demo", p.Mode)
		assert.Equal(t, filepath.Join(p.Data, "indexes"), p.PersistDir)
		assert.Equal(t, filepath.Join(p.Data, "uploads"), p.UploadDir)
	})

	t.Run("sqlite driver derives DSN", func(t *testing.T) {
		p := &Profile{
			Mode:   "dev",
			Data:   t.TempDir(),
			Driver: "sqlite",
		}
		require.NoError(t, p.Validate())

		assert.Contains(t, p.DSN, "mallchat_dev.db")
	})

	t.Run("explicit DSN preserved", func(t *testing.T) {
		p := &Profile{
			Mode:   "prod",
			Data:   t.TempDir(),
			Driver: "sqlite",
			DSN:    "/tmp/custom.db",
		}
		require.NoError(t, p.Validate())

		assert.Equal(t, "/tmp/custom.db", p.DSN)
	})
}

// clearEnvVars 清除测试关心的环境变量, t.Setenv 保证用例结束后恢复。
func clearEnvVars(t *testing.T) {
	t.Helper()
	keys := []string{
		"LLM_PROVIDER", "LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL",
		"LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT_SECONDS",
		"INTENT_LLM_PROVIDER", "INTENT_LLM_MODEL", "INTENT_LLM_API_KEY", "INTENT_LLM_BASE_URL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_BASE_URL",
		"RERANKER_PROVIDER", "RERANKER_MODEL", "RERANKER_API_KEY", "RERANKER_BASE_URL",
		"SUMMARY_TRIGGER_THRESHOLD", "CONTEXT_MAX_HISTORY", "RETRIEVAL_TOP_K",
		"RAG_USE_HYBRID_SEARCH", "RAG_USE_RERANK", "RAG_USE_QUERY_REWRITE",
	}
	for _, key := range keys {
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}
