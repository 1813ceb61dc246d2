package workflow

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/gradmall/mallchat/ai/core/llm"
)

// mockLLM 按回调脚本响应, 并统计调用次数.
type mockLLM struct {
	mu        sync.Mutex
	chatCalls int
	toolCalls int

	chatFn   func(messages []llm.Message) (string, error)
	toolFn   func(messages []llm.Message, tools []llm.ToolDescriptor) (*llm.ChatResponse, error)
	streamFn func(messages []llm.Message) ([]string, error)
}

func (m *mockLLM) ChatCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCalls
}

func (m *mockLLM) Chat(_ context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	m.mu.Lock()
	m.chatCalls++
	m.mu.Unlock()

	if m.chatFn == nil {
		return "QA", &llm.CallStats{}, nil
	}
	content, err := m.chatFn(messages)
	return content, &llm.CallStats{}, err
}

func (m *mockLLM) ChatStream(_ context.Context, messages []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	contentCh := make(chan string, 8)
	statsCh := make(chan *llm.CallStats, 1)
	errCh := make(chan error, 1)

	deltas := []string{"好的", "，我来帮您"}
	var err error
	if m.streamFn != nil {
		deltas, err = m.streamFn(messages)
	}

	go func() {
		defer close(contentCh)
		defer close(statsCh)
		if err != nil {
			errCh <- err
			return
		}
		for _, d := range deltas {
			contentCh <- d
		}
		statsCh <- &llm.CallStats{}
	}()
	return contentCh, statsCh, errCh
}

func (m *mockLLM) ChatWithTools(_ context.Context, messages []llm.Message, tools []llm.ToolDescriptor) (*llm.ChatResponse, *llm.CallStats, error) {
	m.mu.Lock()
	m.toolCalls++
	m.mu.Unlock()

	if m.toolFn == nil {
		return &llm.ChatResponse{Content: "好的"}, &llm.CallStats{}, nil
	}
	resp, err := m.toolFn(messages, tools)
	return resp, &llm.CallStats{}, err
}

func (m *mockLLM) Warmup(_ context.Context) {}

// stallStreamLLM 流式路径先吐一个增量, 然后阻塞到 ctx 取消.
type stallStreamLLM struct {
	mockLLM
}

func (m *stallStreamLLM) ChatStream(ctx context.Context, _ []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	contentCh := make(chan string, 1)
	statsCh := make(chan *llm.CallStats, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(statsCh)
		contentCh <- "部分回复"
		<-ctx.Done()
		errCh <- ctx.Err()
	}()
	return contentCh, statsCh, errCh
}

func errLLM() *mockLLM {
	return &mockLLM{
		chatFn: func(_ []llm.Message) (string, error) {
			return "", errors.New("provider unavailable")
		},
		toolFn: func(_ []llm.Message, _ []llm.ToolDescriptor) (*llm.ChatResponse, error) {
			return nil, errors.New("provider unavailable")
		},
		streamFn: func(_ []llm.Message) ([]string, error) {
			return nil, errors.New("provider unavailable")
		},
	}
}
