package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerank_DisabledKeepsOrder(t *testing.T) {
	svc := NewService(&Config{Enabled: false})

	docs := []string{"doc1", "doc2", "doc3"}
	results, err := svc.Rerank(context.Background(), "query", docs, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.Greater(t, results[0].Score, results[1].Score, "scores stay strictly decreasing for downstream sorting")
	assert.False(t, svc.IsEnabled())
}

func TestRerank_DisabledTopN(t *testing.T) {
	svc := NewService(&Config{Enabled: false})
	docs := []string{"doc1", "doc2", "doc3", "doc4", "doc5"}

	tests := []struct {
		name string
		topN int
		want int
	}{
		{"limit below count", 2, 2},
		{"limit above count", 10, 5},
		{"zero means no limit", 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := svc.Rerank(context.Background(), "query", docs, tt.topN)
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestRerank_DisabledEmptyDocs(t *testing.T) {
	svc := NewService(&Config{Enabled: false})

	results, err := svc.Rerank(context.Background(), "query", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRerank_CallsProviderAndSortsByScore(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq rerankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		// 故意乱序返回, 验证客户端按分数重排
		_, _ = w.Write([]byte(`{"results": [
			{"index": 0, "relevance_score": 0.4},
			{"index": 2, "relevance_score": 0.9},
			{"index": 1, "relevance_score": 0.7}
		]}`))
	}))
	defer srv.Close()

	svc := NewService(&Config{
		Enabled: true,
		Model:   "BAAI/bge-reranker-v2-m3",
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.True(t, svc.IsEnabled())

	results, err := svc.Rerank(context.Background(), "退款流程", []string{"a", "b", "c"}, 3)
	require.NoError(t, err)

	assert.Equal(t, "/v1/rerank", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "退款流程", gotReq.Query)
	assert.Equal(t, "BAAI/bge-reranker-v2-m3", gotReq.Model)

	require.Len(t, results, 3)
	assert.Equal(t, 2, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
	assert.Equal(t, 0, results[2].Index)
}

func TestRerank_ProviderErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewService(&Config{Enabled: true, BaseURL: srv.URL, APIKey: "bad"})

	_, err := svc.Rerank(context.Background(), "query", []string{"a"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestEndpointSuffixHandling(t *testing.T) {
	withV1 := &service{baseURL: "https://api.siliconflow.cn/v1"}
	assert.Equal(t, "https://api.siliconflow.cn/v1/rerank", withV1.endpoint())

	bare := &service{baseURL: "https://api.siliconflow.cn/"}
	assert.Equal(t, "https://api.siliconflow.cn/v1/rerank", bare.endpoint())
}
