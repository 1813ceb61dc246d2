package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
	"github.com/gradmall/mallchat/ai/tools"
)

func demoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	mf := facade.NewMemoryFacade()
	mf.SeedDemoData()
	registry, err := tools.NewDefaultRegistry(mf.Bundle())
	require.NoError(t, err)
	return registry
}

func toolCallResponse(calls ...llm.ToolCall) func([]llm.Message, []llm.ToolDescriptor) (*llm.ChatResponse, error) {
	return func(_ []llm.Message, _ []llm.ToolDescriptor) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{ToolCalls: calls}, nil
	}
}

func TestFunctionCalling_SkipListIntents(t *testing.T) {
	mock := &mockLLM{}
	node := NewFunctionCallingNode(mock, demoRegistry(t))

	for _, intent := range []Intent{IntentQA, IntentDocumentAnalysis, IntentTicket, IntentPurchaseGuide, IntentPersonalizedRecommend} {
		state := &State{Intent: intent, Confidence: 0.9}
		require.NoError(t, node.Execute(context.Background(), state))
		assert.Nil(t, state.ToolUsed, "intent=%s", intent)
		assert.Nil(t, state.ToolResults, "intent=%s", intent)
	}
	assert.Zero(t, mock.toolCalls)
}

func TestFunctionCalling_LowConfidenceSkips(t *testing.T) {
	node := NewFunctionCallingNode(&mockLLM{}, demoRegistry(t))

	state := &State{Intent: IntentOrderQuery, Confidence: 0.4}
	require.NoError(t, node.Execute(context.Background(), state))
	assert.Nil(t, state.ToolUsed)
	assert.Nil(t, state.ToolResults)
}

func TestFunctionCalling_ExecutesToolCalls(t *testing.T) {
	mock := &mockLLM{toolFn: toolCallResponse(llm.ToolCall{
		Function: llm.FunctionCall{
			Name:      "query_order",
			Arguments: `{"order_no": "ORD20240207123456ABCDEF"}`,
		},
	})}
	node := NewFunctionCallingNode(mock, demoRegistry(t))

	state := &State{UserID: 1, Intent: IntentOrderQuery, Confidence: 0.93, UserMessage: "订单到哪了"}
	require.NoError(t, node.Execute(context.Background(), state))

	require.NotNil(t, state.ToolUsed)
	assert.Equal(t, "query_order", *state.ToolUsed)
	require.Len(t, state.ToolResults, 1)
	assert.Empty(t, state.ToolResults[0].Error)
	assert.Equal(t, "已发货", state.ToolResults[0].Result["status_text"])
}

func TestFunctionCalling_UnknownToolRecordedAsError(t *testing.T) {
	mock := &mockLLM{toolFn: toolCallResponse(
		llm.ToolCall{Function: llm.FunctionCall{Name: "query_order", Arguments: `{"order_no":"ORD20240207123456ABCDEF"}`}},
		llm.ToolCall{Function: llm.FunctionCall{Name: "no_such_tool", Arguments: `{}`}},
	)}
	node := NewFunctionCallingNode(mock, demoRegistry(t))

	state := &State{UserID: 1, Intent: IntentOrderQuery, Confidence: 0.93}
	require.NoError(t, node.Execute(context.Background(), state))

	require.NotNil(t, state.ToolUsed)
	assert.Equal(t, "query_order,no_such_tool", *state.ToolUsed)
	require.Len(t, state.ToolResults, 2)
	assert.Empty(t, state.ToolResults[0].Error)
	assert.NotEmpty(t, state.ToolResults[1].Error)
}

func TestFunctionCalling_ToolCallHook(t *testing.T) {
	mock := &mockLLM{toolFn: toolCallResponse(
		llm.ToolCall{Function: llm.FunctionCall{Name: "query_order", Arguments: `{"order_no":"ORD20240207123456ABCDEF"}`}},
		llm.ToolCall{Function: llm.FunctionCall{Name: "no_such_tool", Arguments: `{}`}},
	)}
	node := NewFunctionCallingNode(mock, demoRegistry(t))

	type hookCall struct {
		name    string
		success bool
	}
	var calls []hookCall
	node.SetToolCallHook(func(name string, _ time.Duration, success bool) {
		calls = append(calls, hookCall{name, success})
	})

	state := &State{UserID: 1, Intent: IntentOrderQuery, Confidence: 0.93}
	require.NoError(t, node.Execute(context.Background(), state))

	require.Len(t, calls, 2)
	assert.Equal(t, hookCall{"query_order", true}, calls[0])
	assert.Equal(t, hookCall{"no_such_tool", false}, calls[1])
}

func TestFunctionCalling_LLMErrorYieldsNulls(t *testing.T) {
	node := NewFunctionCallingNode(errLLM(), demoRegistry(t))

	state := &State{UserID: 1, Intent: IntentOrderQuery, Confidence: 0.93}
	require.NoError(t, node.Execute(context.Background(), state))

	// tool_used 与 tool_result 同为空
	assert.Nil(t, state.ToolUsed)
	assert.Nil(t, state.ToolResults)
}

func TestFunctionCalling_NoToolCallsYieldsNulls(t *testing.T) {
	mock := &mockLLM{toolFn: func(_ []llm.Message, _ []llm.ToolDescriptor) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "不需要工具"}, nil
	}}
	node := NewFunctionCallingNode(mock, demoRegistry(t))

	state := &State{UserID: 1, Intent: IntentProductRecommend, Confidence: 0.88}
	require.NoError(t, node.Execute(context.Background(), state))
	assert.Nil(t, state.ToolUsed)
	assert.Nil(t, state.ToolResults)
}
