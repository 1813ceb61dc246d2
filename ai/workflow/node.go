package workflow

import "context"

// Node 图节点. Execute 就地修改 state, 节点内部失败需自行降级,
// 不得让错误逃逸到引擎之外.
type Node interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// StreamingNode 额外支持逐段产出响应文本. 引擎对 responder 做能力探测,
// 不具备流式能力的节点由引擎整体执行后一次性下发.
type StreamingNode interface {
	Node
	ExecuteStream(ctx context.Context, state *State, emit func(delta string)) error
}
