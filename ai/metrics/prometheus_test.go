package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusExporter_RecordChatRequest(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())

	e.RecordChatRequest("QA", "sync", 120*time.Millisecond, true)
	e.RecordChatRequest("QA", "sync", 80*time.Millisecond, true)
	e.RecordChatRequest("OrderQuery", "stream", 2*time.Second, false)

	body := scrape(t, e)
	assert.Contains(t, body, `mallchat_chat_requests_total{intent="QA",mode="sync",status="success"} 2`)
	assert.Contains(t, body, `mallchat_chat_requests_total{intent="OrderQuery",mode="stream",status="error"} 1`)
	assert.Contains(t, body, "mallchat_chat_latency_seconds_bucket")
}

func TestPrometheusExporter_IntentDecisions(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())

	e.RecordIntentDecision("OrderQuery", "keyword")
	e.RecordIntentDecision("OrderQuery", "keyword")
	e.RecordIntentDecision("QA", "llm")
	e.RecordIntentDecision("DocumentAnalysis", "attachment")

	body := scrape(t, e)
	assert.Contains(t, body, `mallchat_intent_decisions_total{intent="OrderQuery",method="keyword"} 2`)
	assert.Contains(t, body, `mallchat_intent_decisions_total{intent="QA",method="llm"} 1`)
	assert.Contains(t, body, `mallchat_intent_decisions_total{intent="DocumentAnalysis",method="attachment"} 1`)
}

func TestPrometheusExporter_ToolCalls(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())

	e.RecordToolCall("query_order", 30*time.Millisecond, true)
	e.RecordToolCall("query_order", 45*time.Millisecond, false)

	body := scrape(t, e)
	assert.Contains(t, body, `mallchat_tools_calls_total{status="success",tool_name="query_order"} 1`)
	assert.Contains(t, body, `mallchat_tools_calls_total{status="error",tool_name="query_order"} 1`)
}

func TestPrometheusExporter_Retrieval(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())

	e.RecordRetrieval("products", 3, true)
	e.RecordRetrieval("products", 0, false)

	body := scrape(t, e)
	assert.Contains(t, body, `mallchat_retrieval_requests_total{collection="products",status="success"} 1`)
	assert.Contains(t, body, `mallchat_retrieval_requests_total{collection="products",status="error"} 1`)
}

func TestPrometheusExporter_CacheAndSummary(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())

	e.RecordCacheHit("intent")
	e.RecordCacheHit("intent")
	e.RecordCacheMiss("intent")
	e.RecordSummarization("success")
	e.RecordSummarization("fallback")

	body := scrape(t, e)
	assert.Contains(t, body, `mallchat_cache_hits_total{cache_type="intent"} 2`)
	assert.Contains(t, body, `mallchat_cache_misses_total{cache_type="intent"} 1`)
	assert.Contains(t, body, `mallchat_summary_runs_total{outcome="success"} 1`)
	assert.Contains(t, body, `mallchat_summary_runs_total{outcome="fallback"} 1`)
}

func TestPrometheusExporter_LLMAndActive(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())

	e.RecordLLMTokens("deepseek-chat", "prompt", 100)
	e.RecordLLMTokens("deepseek-chat", "completion", 40)
	e.RecordLLMLatency("deepseek-chat", "deepseek", 900*time.Millisecond)
	e.IncActiveChats()
	e.IncActiveChats()
	e.DecActiveChats()

	body := scrape(t, e)
	assert.Contains(t, body, `mallchat_llm_tokens_total{model="deepseek-chat",token_type="prompt"} 100`)
	assert.Contains(t, body, `mallchat_llm_tokens_total{model="deepseek-chat",token_type="completion"} 40`)
	assert.Contains(t, body, "mallchat_chat_active 1")
}

func TestPrometheusExporter_DefaultBuckets(t *testing.T) {
	e := NewPrometheusExporter(Config{})
	require.NotNil(t, e.Registry())

	e.RecordChatRequest("QA", "sync", 10*time.Millisecond, true)
	body := scrape(t, e)
	assert.True(t, strings.Contains(body, `le="0.01"`))
}

func scrape(t *testing.T, e *PrometheusExporter) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
