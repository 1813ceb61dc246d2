package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
)

const (
	// recommendLineMaxRunes 推荐导语的长度上限.
	recommendLineMaxRunes = 30

	defaultRecommendLine = "为您推荐以下热门项目"
)

var keywordTokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+|\p{Han}+`)

var asciiTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// ProductRecommendationNode 商品推荐: 短导语 + 商品卡片.
type ProductRecommendationNode struct {
	llm      llm.Service
	products facade.ProductService
}

// NewProductRecommendationNode creates the recommendation responder.
func NewProductRecommendationNode(llmService llm.Service, products facade.ProductService) *ProductRecommendationNode {
	return &ProductRecommendationNode{llm: llmService, products: products}
}

func (n *ProductRecommendationNode) Name() string { return NodeProductRecommendation }

func (n *ProductRecommendationNode) Execute(ctx context.Context, state *State) error {
	products := productsFromToolResults(state.ToolResults)
	if len(products) == 0 {
		products = n.fallbackSearch(ctx, state.UserMessage)
	}
	if len(products) == 0 {
		state.Response = "暂时没有找到合适的项目，换个关键词试试?"
		state.QuickActions = append(state.QuickActions, mallHomeAction())
		return nil
	}
	if len(products) > maxProductCards {
		products = products[:maxProductCards]
	}

	state.Response = n.recommendLine(ctx, state.UserMessage, products)
	for _, p := range products {
		state.QuickActions = append(state.QuickActions, productCard(p))
		state.RecommendedProducts = append(state.RecommendedProducts, p.ID)
	}
	state.QuickActions = append(state.QuickActions, QuickAction{
		Type:   "button",
		Label:  "查看更多",
		Action: "view_more",
	})
	return nil
}

// fallbackSearch 没有工具结果时直接检索: 先按首个词元, 再退到销量榜.
func (n *ProductRecommendationNode) fallbackSearch(ctx context.Context, message string) []facade.Product {
	if n.products == nil {
		return nil
	}

	if keyword := extractKeyword(message); keyword != "" {
		products, _, err := n.products.Search(ctx, facade.SearchParams{
			Keyword:  keyword,
			Status:   "published",
			Page:     1,
			PageSize: maxProductCards,
			SortBy:   "sales",
			Order:    "desc",
		})
		if err == nil && len(products) > 0 {
			return products
		}
	}

	products, _, err := n.products.Search(ctx, facade.SearchParams{
		Status:   "published",
		Page:     1,
		PageSize: maxProductCards,
		SortBy:   "sales",
		Order:    "desc",
	})
	if err != nil {
		slog.Warn("Fallback product search failed", "error", err)
		return nil
	}
	return products
}

// extractKeyword 取消息里首个有意义的词元, 英文数字词优先于中文片段.
func extractKeyword(message string) string {
	stopwords := map[string]bool{
		"推荐": true, "几个": true, "一些": true, "相关": true,
		"项目": true, "课程": true, "推荐几个": true, "有什么": true,
	}

	tokens := keywordTokenPattern.FindAllString(message, -1)
	for _, token := range tokens {
		if asciiTokenPattern.MatchString(token) && len(token) >= 2 {
			return strings.ToLower(token)
		}
	}
	for _, token := range tokens {
		if !stopwords[token] && utf8.RuneCountInString(token) >= 2 {
			return token
		}
	}
	return ""
}

// recommendLine 请 LLM 给一句 30 字以内的导语, 不可用时走默认话术.
func (n *ProductRecommendationNode) recommendLine(ctx context.Context, message string, products []facade.Product) string {
	if n.llm == nil {
		return defaultRecommendLine
	}

	titles := make([]string, len(products))
	for i, p := range products {
		titles[i] = p.Title
	}
	prompt := fmt.Sprintf(`用户说: %s
即将展示的项目: %s
请输出一句不超过30个字的推荐语, 不要列举项目名。`, message, strings.Join(titles, "、"))

	content, _, err := n.llm.Chat(ctx, []llm.Message{llm.UserMessage(prompt)})
	if err != nil {
		return defaultRecommendLine
	}
	line := strings.TrimSpace(content)
	if line == "" || utf8.RuneCountInString(line) > recommendLineMaxRunes {
		return defaultRecommendLine
	}
	return line
}

// ProductInquiryNode 商品咨询: 详细对比并推荐 3-5 个商品.
type ProductInquiryNode struct {
	llm      llm.Service
	products facade.ProductService
}

// NewProductInquiryNode creates the inquiry responder.
func NewProductInquiryNode(llmService llm.Service, products facade.ProductService) *ProductInquiryNode {
	return &ProductInquiryNode{llm: llmService, products: products}
}

func (n *ProductInquiryNode) Name() string { return NodeProductInquiry }

func (n *ProductInquiryNode) Execute(ctx context.Context, state *State) error {
	products := productsFromToolResults(state.ToolResults)
	if len(products) == 0 && n.products != nil {
		if keyword := extractKeyword(state.UserMessage); keyword != "" {
			products, _, _ = n.products.Search(ctx, facade.SearchParams{
				Keyword:  keyword,
				Status:   "published",
				Page:     1,
				PageSize: maxProductCards,
				SortBy:   "rating",
				Order:    "desc",
			})
		}
	}
	if len(products) == 0 {
		state.Response = "没有找到相关的项目信息，可以告诉我具体想了解哪个项目吗?"
		state.QuickActions = append(state.QuickActions, mallHomeAction())
		return nil
	}
	if len(products) > maxProductCards {
		products = products[:maxProductCards]
	}

	content := n.compare(ctx, state.UserMessage, products)
	state.Response = content

	recommended := extractRecommendedIDs(content, products)
	for _, p := range products {
		state.QuickActions = append(state.QuickActions, productCard(p))
	}
	state.RecommendedProducts = recommended
	return nil
}

func (n *ProductInquiryNode) compare(ctx context.Context, message string, products []facade.Product) string {
	if n.llm == nil {
		return apologyResponse
	}

	var sb strings.Builder
	sb.WriteString("候选项目:\n")
	for _, p := range products {
		fmt.Fprintf(&sb, "- [%d] %s | 价格 ¥%.2f | 难度 %s | 技术栈 %s | 评分 %.1f\n",
			p.ID, p.Title, p.Price, p.Difficulty, strings.Join(p.TechStack, "/"), p.Rating)
	}

	prompt := fmt.Sprintf(`用户的问题: %s

%s
请对比以上项目并推荐其中最合适的3-5个, 说明各自的适用人群与差异。`, message, sb.String())

	content, _, err := n.llm.Chat(ctx, []llm.Message{
		llm.SystemPrompt("你是电商平台的项目课程顾问。"),
		llm.UserMessage(prompt),
	})
	if err != nil {
		slog.Warn("Product inquiry failed", "error", err)
		return apologyResponse
	}
	return content
}

// extractRecommendedIDs 在回复文本中按标题或 id 匹配被推荐的商品.
func extractRecommendedIDs(content string, products []facade.Product) []int64 {
	var ids []int64
	for _, p := range products {
		if strings.Contains(content, p.Title) || strings.Contains(content, fmt.Sprintf("[%d]", p.ID)) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
