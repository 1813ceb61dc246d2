package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/gradmall/mallchat/ai/core/embedding"
	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/core/reranker"
	"github.com/gradmall/mallchat/ai/metrics"
)

// 意图分类等简单任务的默认参数.
const (
	intentTaskMaxTokens   = 1024
	intentTaskTemperature = 0.3
	intentTaskTimeout     = 30 // seconds
)

// NewLLMService 按配置创建主 LLM 服务.
func NewLLMService(cfg *LLMConfig) (llm.Service, error) {
	return llm.NewService(&llm.Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
}

// NewEmbeddingService 按配置创建向量服务.
func NewEmbeddingService(cfg *EmbeddingConfig) (embedding.Service, error) {
	return embedding.NewService(&embedding.Config{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Dimensions: cfg.Dimensions,
	})
}

// NewRerankerService 按配置创建重排服务. Enabled 为 false 时返回
// 保持原序的空实现.
func NewRerankerService(cfg *RerankerConfig) reranker.Service {
	return reranker.NewService(&reranker.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Enabled:  cfg.Enabled,
	})
}

// InstrumentLLM 包装 LLM 服务, 把每次调用的 token 用量和耗时写入指标.
// exporter 为 nil 时原样返回.
func InstrumentLLM(svc llm.Service, exporter *metrics.PrometheusExporter, provider, model string) llm.Service {
	if svc == nil || exporter == nil {
		return svc
	}
	return &instrumentedLLM{inner: svc, exporter: exporter, provider: provider, model: model}
}

type instrumentedLLM struct {
	inner    llm.Service
	exporter *metrics.PrometheusExporter
	provider string
	model    string
}

func (l *instrumentedLLM) record(stats *llm.CallStats) {
	if stats == nil {
		return
	}
	l.exporter.RecordLLMTokens(l.model, "prompt", stats.PromptTokens)
	l.exporter.RecordLLMTokens(l.model, "completion", stats.CompletionTokens)
	l.exporter.RecordLLMLatency(l.model, l.provider, time.Duration(stats.TotalDurationMs)*time.Millisecond)
}

func (l *instrumentedLLM) Chat(ctx context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	content, stats, err := l.inner.Chat(ctx, messages)
	if err == nil {
		l.record(stats)
	}
	return content, stats, err
}

func (l *instrumentedLLM) ChatStream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	contentCh, statsCh, errCh := l.inner.ChatStream(ctx, messages)

	out := make(chan *llm.CallStats, 1)
	go func() {
		defer close(out)
		for stats := range statsCh {
			l.record(stats)
			out <- stats
		}
	}()
	return contentCh, out, errCh
}

func (l *instrumentedLLM) ChatWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDescriptor) (*llm.ChatResponse, *llm.CallStats, error) {
	resp, stats, err := l.inner.ChatWithTools(ctx, messages, tools)
	if err == nil {
		l.record(stats)
	}
	return resp, stats, err
}

func (l *instrumentedLLM) Warmup(ctx context.Context) {
	l.inner.Warmup(ctx)
}

// NewIntentLLMService 创建意图分类专用的轻量 LLM 服务.
// 未单独配置时回退到主 LLM; 两者都不可用时返回 nil, 调用方需判空.
func NewIntentLLMService(cfg *IntentClassifierConfig, mainLLM llm.Service) llm.Service {
	if cfg == nil || !cfg.Enabled {
		slog.Info("Intent classifier uses main LLM service")
		return mainLLM
	}

	svc, err := llm.NewService(&llm.Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   intentTaskMaxTokens,
		Temperature: intentTaskTemperature,
		Timeout:     intentTaskTimeout,
	})
	if err != nil {
		slog.Warn("Failed to create intent LLM service, falling back to main LLM",
			"provider", cfg.Provider,
			"model", cfg.Model,
			"error", err,
		)
		return mainLLM
	}

	slog.Info("Intent LLM service initialized",
		"provider", cfg.Provider,
		"model", cfg.Model,
	)
	return svc
}
