package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Result 单条重排结果, Index 指向传入文档切片的位置.
type Result struct {
	Index int
	Score float32
}

// Service 调用独立重排 API 对候选文档按相关性重新排序.
// 未配置时检索层退回 LLM 重排, 因此实现必须在 Disabled 时保序降级而非报错.
type Service interface {
	// Rerank reorders documents by relevance to the query.
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error)

	// IsEnabled reports whether a rerank provider is configured.
	IsEnabled() bool
}

// Config carries the rerank provider settings.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Enabled  bool
}

type service struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
	enabled bool
}

// NewService 构建重排服务, OpenAI 兼容协议 (SiliconFlow 等 /v1/rerank 端点).
func NewService(cfg *Config) Service {
	return &service{
		enabled: cfg.Enabled,
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *service) IsEnabled() bool {
	return s.enabled
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float32 `json:"relevance_score"`
	} `json:"results"`
}

func (s *service) Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error) {
	if !s.enabled {
		return passthrough(documents, topN), nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     s.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal rerank request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build rerank request")
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call rerank API")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, readErr := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if readErr != nil || len(detail) == 0 {
			return nil, errors.Errorf("rerank API returned HTTP %d", resp.StatusCode)
		}
		return nil, errors.Errorf("rerank API returned HTTP %d: %s", resp.StatusCode, string(detail))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode rerank response")
	}

	results := make([]Result, len(parsed.Results))
	for i, r := range parsed.Results {
		results[i] = Result{Index: r.Index, Score: r.Score}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// endpoint 兼容带或不带 /v1 后缀的 base URL.
func (s *service) endpoint() string {
	base := strings.TrimRight(s.baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/rerank"
	}
	return base + "/v1/rerank"
}

// passthrough 保留原始顺序, 分数递减以便调用方仍可按分排序.
func passthrough(documents []string, topN int) []Result {
	results := make([]Result, len(documents))
	for i := range documents {
		results[i] = Result{Index: i, Score: 1.0 - float32(i)*0.01}
	}
	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}
	return results
}
