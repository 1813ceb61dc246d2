package workflow

import "strings"

// Responder node keys emitted by the router.
const (
	NodeQA                    = "qa"
	NodeTicket                = "ticket"
	NodeDocument              = "document"
	NodeClarify               = "clarify"
	NodeProductRecommendation = "product_recommendation"
	NodeProductInquiry        = "product_inquiry"
	NodePersonalized          = "personalized"
	NodeOrderQuery            = "order_query"
	NodePurchaseGuide         = "purchase_guide"
)

// clarifyConfidence 低于该置信度转澄清节点.
const clarifyConfidence = 0.6

var intentToNode = map[Intent]string{
	IntentQA:                    NodeQA,
	IntentTicket:                NodeTicket,
	IntentDocumentAnalysis:      NodeDocument,
	IntentProductInquiry:        NodeProductInquiry,
	IntentPurchaseGuide:         NodePurchaseGuide,
	IntentOrderQuery:            NodeOrderQuery,
	IntentPersonalizedRecommend: NodePersonalized,
}

// Route 纯映射: 意图与工具使用情况决定 responder.
// ProductRecommend 优先于工具提示; 两者都不命中时才按意图路由.
func Route(state *State) string {
	if state.Intent == IntentProductRecommend {
		return NodeProductRecommendation
	}

	used := state.ToolUsedString()
	switch {
	case strings.Contains(used, "query_order") || strings.Contains(used, "get_logistics"):
		return NodeOrderQuery
	case strings.Contains(used, "search_products"):
		return NodeProductInquiry
	case strings.Contains(used, "check_inventory") || strings.Contains(used, "calculate_price"):
		return NodePurchaseGuide
	}

	return routeByIntent(state)
}

// routeByIntent 意图兜底路由, 置信度过低转澄清.
func routeByIntent(state *State) string {
	if state.Confidence < clarifyConfidence {
		return NodeClarify
	}
	if node, ok := intentToNode[state.Intent]; ok {
		return node
	}
	return NodeClarify
}
