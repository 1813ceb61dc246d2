package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
)

const (
	personalizedLimit = 5

	noBrowseHistoryResponse = "您还没有浏览记录，先去项目广场逛逛吧，我会根据您的兴趣为您推荐合适的项目。"

	defaultPersonalizedLine = "根据您的喜好，为您挑选了这些项目"
)

// PersonalizedRecommendNode 基于浏览兴趣的个性化推荐.
type PersonalizedRecommendNode struct {
	llm             llm.Service
	browse          facade.BrowseService
	recommendations facade.RecommendationService
}

// NewPersonalizedRecommendNode creates the personalized responder.
func NewPersonalizedRecommendNode(llmService llm.Service, browse facade.BrowseService, recommendations facade.RecommendationService) *PersonalizedRecommendNode {
	return &PersonalizedRecommendNode{llm: llmService, browse: browse, recommendations: recommendations}
}

func (n *PersonalizedRecommendNode) Name() string { return NodePersonalized }

func (n *PersonalizedRecommendNode) Execute(ctx context.Context, state *State) error {
	if n.browse == nil || n.recommendations == nil {
		state.Response = noBrowseHistoryResponse
		return nil
	}

	interests, err := n.browse.GetUserInterests(ctx, state.UserID)
	if err != nil {
		slog.Warn("Interest lookup failed", "user_id", state.UserID, "error", err)
		state.Response = noBrowseHistoryResponse
		return nil
	}
	if interests == nil || len(interests.TechStack) == 0 {
		state.Response = noBrowseHistoryResponse
		return nil
	}

	products, err := n.recommendations.GetPersonalized(ctx, state.UserID, personalizedLimit, nil)
	if err != nil {
		slog.Warn("Personalized recommendation failed", "user_id", state.UserID, "error", err)
		state.Response = apologyResponse
		return nil
	}
	if len(products) == 0 {
		state.Response = noBrowseHistoryResponse
		return nil
	}

	state.Response = n.recommendLine(ctx, products)
	for _, p := range products {
		state.QuickActions = append(state.QuickActions, productCard(p))
		state.RecommendedProducts = append(state.RecommendedProducts, p.ID)
	}
	return nil
}

// recommendLine 生成一句推荐语. 提示词明确禁止提及技术栈与浏览记录.
func (n *PersonalizedRecommendNode) recommendLine(ctx context.Context, products []facade.Product) string {
	if n.llm == nil {
		return defaultPersonalizedLine
	}

	titles := make([]string, len(products))
	for i, p := range products {
		titles[i] = p.Title
	}
	prompt := fmt.Sprintf(`即将向用户展示这些项目: %s
请输出一句不超过30个字的推荐语。注意: 不要提及任何技术栈名称, 也不要提到用户的浏览记录。`,
		strings.Join(titles, "、"))

	content, _, err := n.llm.Chat(ctx, []llm.Message{llm.UserMessage(prompt)})
	if err != nil {
		return defaultPersonalizedLine
	}
	line := strings.TrimSpace(content)
	if line == "" || utf8.RuneCountInString(line) > recommendLineMaxRunes {
		return defaultPersonalizedLine
	}
	return line
}
