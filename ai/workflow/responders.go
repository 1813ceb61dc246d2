package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
	"github.com/gradmall/mallchat/ai/session"
)

// apologyResponse 所有 responder 在不可恢复错误时返回的统一话术.
const apologyResponse = "处理您的请求时出现了问题，请稍后再试"

// maxProductCards 响应中最多附带的商品卡片数.
const maxProductCards = 5

// streamLLM 消费流式补全并把增量转发给 emit, 同时累积完整文本.
// 一个字都没产出就失败时回退到道歉话术.
func streamLLM(ctx context.Context, svc llm.Service, messages []llm.Message, emit func(string)) (string, error) {
	contentCh, _, errCh := svc.ChatStream(ctx, messages)

	var sb strings.Builder
	for delta := range contentCh {
		sb.WriteString(delta)
		if emit != nil {
			emit(delta)
		}
	}

	select {
	case err := <-errCh:
		if err != nil && sb.Len() == 0 {
			return "", err
		}
	default:
	}
	return sb.String(), nil
}

// renderRecentHistory 把最近几轮渲染成 用户:/助手: 行.
func renderRecentHistory(history []session.Turn, limit int) string {
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	var sb strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&sb, "用户: %s\n助手: %s\n", turn.User, turn.Assistant)
	}
	return sb.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// mallHomeAction 引导到商城首页, 零结果分支的兜底操作.
func mallHomeAction() QuickAction {
	return QuickAction{
		Type:   "button",
		Label:  "前往商城首页",
		Action: "navigate",
		Data:   map[string]interface{}{"path": "/products"},
	}
}

// productCard 组装商品卡片形式的 QuickAction.
func productCard(p facade.Product) QuickAction {
	return QuickAction{
		Type: "product",
		Data: map[string]interface{}{
			"product_id": p.ID,
			"title":      p.Title,
			"price":      p.Price,
			"difficulty": p.Difficulty,
			"tech_stack": p.TechStack,
			"rating":     p.Rating,
			"cover_url":  p.CoverURL,
		},
	}
}

// productsFromToolResults 从 search_products 的成功结果里还原商品列表.
func productsFromToolResults(results []ToolResult) []facade.Product {
	for _, tr := range results {
		if tr.Tool != "search_products" || tr.Result == nil {
			continue
		}
		raw, ok := tr.Result["products"].([]map[string]interface{})
		if !ok {
			// JSON 往返后是 []interface{}
			anySlice, ok2 := tr.Result["products"].([]interface{})
			if !ok2 {
				continue
			}
			raw = make([]map[string]interface{}, 0, len(anySlice))
			for _, item := range anySlice {
				if m, ok3 := item.(map[string]interface{}); ok3 {
					raw = append(raw, m)
				}
			}
		}

		products := make([]facade.Product, 0, len(raw))
		for _, m := range raw {
			products = append(products, facade.Product{
				ID:         toInt64(m["product_id"]),
				Title:      toString(m["title"]),
				Price:      toFloat64(m["price"]),
				Difficulty: toString(m["difficulty"]),
				TechStack:  toStringSlice(m["tech_stack"]),
				Rating:     toFloat64(m["rating"]),
			})
		}
		if len(products) > 0 {
			return products
		}
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toStringSlice(v interface{}) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
