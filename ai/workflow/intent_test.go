package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/session"
)

func TestIntentNode_AttachmentShortcut(t *testing.T) {
	mock := &mockLLM{}
	node := NewIntentNode(mock, IntentNodeConfig{})

	state := NewState(1, "s1", "帮我看看这个", []Attachment{{FileName: "report.txt", FilePath: "/tmp/report.txt"}})
	require.NoError(t, node.Execute(context.Background(), state))

	assert.Equal(t, IntentDocumentAnalysis, state.Intent)
	assert.GreaterOrEqual(t, state.Confidence, 0.95)
	assert.Zero(t, mock.ChatCalls(), "shortcut must not call the LLM")
}

func TestIntentNode_AttachmentWithLongMessageNotShortcut(t *testing.T) {
	mock := &mockLLM{}
	node := NewIntentNode(mock, IntentNodeConfig{})

	long := "这个文件里的内容我有很多问题想仔细问问你帮我分析一下吧谢谢"
	state := NewState(1, "s1", long, []Attachment{{FileName: "report.txt"}})
	require.NoError(t, node.Execute(context.Background(), state))

	// falls through to keyword/LLM path
	assert.True(t, state.Intent.Valid())
}

func TestIntentNode_KeywordRules(t *testing.T) {
	cases := []struct {
		message string
		want    Intent
	}{
		{"我的订单到哪了", IntentOrderQuery},
		{"物流信息查一下", IntentOrderQuery},
		{"我要投诉客服", IntentTicket},
		{"页面报错了", IntentTicket},
		{"怎么买这个课程", IntentPurchaseGuide},
		{"支持什么支付方式", IntentPurchaseGuide},
		{"为我推荐点东西", IntentPersonalizedRecommend},
		{"推荐几个热门项目", IntentProductRecommend},
		{"介绍一下这个项目", IntentProductInquiry},
	}

	mock := &mockLLM{}
	node := NewIntentNode(mock, IntentNodeConfig{})
	for _, tc := range cases {
		state := NewState(1, "s1", tc.message, nil)
		require.NoError(t, node.Execute(context.Background(), state))
		assert.Equal(t, tc.want, state.Intent, "message=%s", tc.message)
		assert.GreaterOrEqual(t, state.Confidence, 0.88, "message=%s", tc.message)
	}
	assert.Zero(t, mock.ChatCalls())
}

func TestIntentNode_LLMFallbackAndCache(t *testing.T) {
	mock := &mockLLM{chatFn: func(_ []llm.Message) (string, error) {
		return "这应该是 ProductInquiry 类别", nil
	}}
	node := NewIntentNode(mock, IntentNodeConfig{})

	state := NewState(1, "s1", "那个东西看起来如何", nil)
	require.NoError(t, node.Execute(context.Background(), state))
	assert.Equal(t, IntentProductInquiry, state.Intent)
	assert.InDelta(t, 0.9, state.Confidence, 1e-9)
	assert.Equal(t, 1, mock.ChatCalls())

	// 相同消息第二次命中缓存
	state2 := NewState(1, "s2", "那个东西看起来如何", nil)
	require.NoError(t, node.Execute(context.Background(), state2))
	assert.Equal(t, IntentProductInquiry, state2.Intent)
	assert.Equal(t, 1, mock.ChatCalls(), "second call must hit the cache")
}

func TestIntentNode_LLMFailureDefaultsToQA(t *testing.T) {
	node := NewIntentNode(errLLM(), IntentNodeConfig{})

	state := NewState(1, "s1", "那个东西看起来如何", nil)
	require.NoError(t, node.Execute(context.Background(), state))

	assert.Equal(t, IntentQA, state.Intent)
	assert.InDelta(t, 0.5, state.Confidence, 1e-9)
}

func TestIntentNode_HistoryFallbackOnLowConfidence(t *testing.T) {
	node := NewIntentNode(errLLM(), IntentNodeConfig{FallbackThreshold: 0.7})

	state := NewState(1, "s1", "然后呢接着说", nil)
	state.IntentHistory = []session.IntentRecord{
		{Intent: "QA", Confidence: 0.5, Turn: 1, Timestamp: time.Now()},
		{Intent: "OrderQuery", Confidence: 0.93, Turn: 2, Timestamp: time.Now()},
	}
	require.NoError(t, node.Execute(context.Background(), state))

	assert.Equal(t, IntentOrderQuery, state.Intent)
	assert.InDelta(t, 0.93, state.Confidence, 1e-9)
}

func TestIntentNode_AppendDoesNotMutateInput(t *testing.T) {
	node := NewIntentNode(&mockLLM{}, IntentNodeConfig{})

	original := make([]session.IntentRecord, 1, 4)
	original[0] = session.IntentRecord{Intent: "QA", Confidence: 0.9, Turn: 1, Timestamp: time.Now()}
	snapshot := original[:1:1]

	state := NewState(1, "s1", "我的订单呢", nil)
	state.IntentHistory = original
	require.NoError(t, node.Execute(context.Background(), state))

	assert.Len(t, snapshot, 1)
	assert.Equal(t, "QA", snapshot[0].Intent)
	require.Len(t, state.IntentHistory, 2)
	assert.Equal(t, 2, state.IntentHistory[1].Turn)
}

func TestIntentNode_TurnNumbersIncrease(t *testing.T) {
	node := NewIntentNode(&mockLLM{}, IntentNodeConfig{})

	state := NewState(1, "s1", "订单查询", nil)
	require.NoError(t, node.Execute(context.Background(), state))
	require.Len(t, state.IntentHistory, 1)
	assert.Equal(t, 1, state.IntentHistory[0].Turn)

	next := NewState(1, "s1", "物流到哪了", nil)
	next.IntentHistory = state.IntentHistory
	require.NoError(t, node.Execute(context.Background(), next))
	require.Len(t, next.IntentHistory, 2)
	assert.Equal(t, 2, next.IntentHistory[1].Turn)
}
