package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gradmall/mallchat/ai/facade"
)

// orderNoPattern 订单号格式: ORD + 14位时间戳 + 6位大写字母数字.
var orderNoPattern = regexp.MustCompile(`ORD\d{14}[A-Z0-9]{6}`)

// OrderQueryNode 订单查询: 按单号出详情, 无单号列最近订单.
type OrderQueryNode struct {
	orders facade.OrderService
}

// NewOrderQueryNode creates the order query responder.
func NewOrderQueryNode(orders facade.OrderService) *OrderQueryNode {
	return &OrderQueryNode{orders: orders}
}

func (n *OrderQueryNode) Name() string { return NodeOrderQuery }

func (n *OrderQueryNode) Execute(ctx context.Context, state *State) error {
	if n.orders == nil {
		state.Response = apologyResponse
		return nil
	}

	if orderNo := orderNoPattern.FindString(state.UserMessage); orderNo != "" {
		n.respondWithOrder(ctx, state, orderNo)
		return nil
	}

	n.respondWithOrderList(ctx, state)
	return nil
}

func (n *OrderQueryNode) respondWithOrder(ctx context.Context, state *State, orderNo string) {
	order, err := n.orders.Get(ctx, orderNo)
	if err != nil {
		slog.Warn("Order lookup failed", "order_no", orderNo, "error", err)
		state.Response = apologyResponse
		return
	}
	if order == nil {
		state.Response = fmt.Sprintf("没有找到订单 %s，请确认订单号是否正确。", orderNo)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "订单 %s 的当前状态: %s\n", order.OrderNo, order.StatusText())
	fmt.Fprintf(&sb, "订单金额: ¥%.2f\n", order.TotalAmount)
	if len(order.Items) > 0 {
		sb.WriteString("包含商品:\n")
		for _, item := range order.Items {
			fmt.Fprintf(&sb, "- %s x%d (¥%.2f)\n", item.Title, item.Quantity, item.Price)
		}
	}
	fmt.Fprintf(&sb, "下单时间: %s", order.CreatedAt.Format("2006-01-02 15:04:05"))

	state.Response = sb.String()
	state.QuickActions = append(state.QuickActions, orderQuickActions(order)...)
}

func (n *OrderQueryNode) respondWithOrderList(ctx context.Context, state *State) {
	orders, total, err := n.orders.List(ctx, state.UserID, 1, 5, "")
	if err != nil {
		slog.Warn("Order list failed", "user_id", state.UserID, "error", err)
		state.Response = apologyResponse
		return
	}
	if total == 0 {
		state.Response = "您还没有订单记录。如果您想购买商品，可以前往商城首页浏览。"
		state.QuickActions = append(state.QuickActions, mallHomeAction())
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "您最近的 %d 笔订单:\n", len(orders))
	for _, order := range orders {
		fmt.Fprintf(&sb, "- %s | %s | ¥%.2f\n", order.OrderNo, order.StatusText(), order.TotalAmount)
	}
	sb.WriteString("请告诉我您想查询哪一笔。")

	state.Response = sb.String()
	state.QuickActions = append(state.QuickActions, QuickAction{
		Type:   "button",
		Label:  "选择订单",
		Action: "select_order",
	})
}

// orderQuickActions 按订单状态给出合适的后续操作.
func orderQuickActions(order *facade.Order) []QuickAction {
	data := map[string]interface{}{"order_no": order.OrderNo}

	switch order.Status {
	case facade.OrderStatusPending:
		return []QuickAction{{Type: "button", Label: "去支付", Action: "pay", Data: data}}
	case facade.OrderStatusShipped:
		return []QuickAction{{Type: "button", Label: "查看物流", Action: "view_logistics", Data: data}}
	case facade.OrderStatusDelivered:
		return []QuickAction{{Type: "button", Label: "确认收货", Action: "confirm_receipt", Data: data}}
	case facade.OrderStatusCompleted:
		return []QuickAction{{Type: "button", Label: "申请退款", Action: "request_refund", Data: data}}
	default:
		return []QuickAction{{Type: "button", Label: "联系客服", Action: "contact_support", Data: data}}
	}
}
