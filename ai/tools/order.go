package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
)

// QueryOrderTool fetches one order by its human order number.
type QueryOrderTool struct {
	orders facade.OrderService
}

// NewQueryOrderTool creates the query_order tool.
func NewQueryOrderTool(orders facade.OrderService) (*QueryOrderTool, error) {
	if orders == nil {
		return nil, fmt.Errorf("order service cannot be nil")
	}
	return &QueryOrderTool{orders: orders}, nil
}

func (t *QueryOrderTool) Name() string { return "query_order" }

func (t *QueryOrderTool) Description() string {
	return "查询订单详情。根据订单号返回订单状态、金额和商品明细。"
}

func (t *QueryOrderTool) Parameters() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"order_no": {Type: "string", Description: "订单号，形如 ORD20240207123456ABCDEF"},
		},
		Required: []string{"order_no"},
	}
}

type queryOrderInput struct {
	OrderNo string `json:"order_no"`
}

func (t *QueryOrderTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var input queryOrderInput
	if err := json.Unmarshal(args, &input); err != nil {
		return Failure("参数解析失败: %v", err)
	}
	if input.OrderNo == "" {
		return Failure("缺少参数 order_no")
	}

	order, err := t.orders.Get(ctx, input.OrderNo)
	if err != nil {
		return Failure("订单查询失败: %v", err)
	}
	if order == nil {
		return Failure("未找到订单 %s", input.OrderNo)
	}

	items := make([]map[string]interface{}, len(order.Items))
	for i, item := range order.Items {
		items[i] = map[string]interface{}{
			"product_id": item.ProductID,
			"title":      item.Title,
			"price":      item.Price,
			"quantity":   item.Quantity,
		}
	}

	return Success(map[string]interface{}{
		"order_no":     order.OrderNo,
		"status":       order.Status,
		"status_text":  order.StatusText(),
		"total_amount": order.TotalAmount,
		"items":        items,
		"created_at":   order.CreatedAt.Format("2006-01-02 15:04:05"),
	})
}

// GetLogisticsTool returns the delivery status of one order.
type GetLogisticsTool struct {
	logistics facade.LogisticsService
}

// NewGetLogisticsTool creates the get_logistics tool.
func NewGetLogisticsTool(logistics facade.LogisticsService) (*GetLogisticsTool, error) {
	if logistics == nil {
		return nil, fmt.Errorf("logistics service cannot be nil")
	}
	return &GetLogisticsTool{logistics: logistics}, nil
}

func (t *GetLogisticsTool) Name() string { return "get_logistics" }

func (t *GetLogisticsTool) Description() string {
	return "查询订单物流。根据订单号返回承运商、运单号和最新物流轨迹。"
}

func (t *GetLogisticsTool) Parameters() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"order_no": {Type: "string", Description: "订单号"},
		},
		Required: []string{"order_no"},
	}
}

func (t *GetLogisticsTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var input queryOrderInput
	if err := json.Unmarshal(args, &input); err != nil {
		return Failure("参数解析失败: %v", err)
	}
	if input.OrderNo == "" {
		return Failure("缺少参数 order_no")
	}

	logistics, err := t.logistics.Get(ctx, input.OrderNo)
	if err != nil {
		return Failure("物流查询失败: %v", err)
	}
	if logistics == nil {
		return Failure("未找到订单 %s 的物流信息", input.OrderNo)
	}

	traces := make([]map[string]interface{}, len(logistics.Traces))
	for i, trace := range logistics.Traces {
		traces[i] = map[string]interface{}{
			"time":        trace.Time.Format("2006-01-02 15:04"),
			"location":    trace.Location,
			"description": trace.Description,
		}
	}

	return Success(map[string]interface{}{
		"order_no":    logistics.OrderNo,
		"carrier":     logistics.Carrier,
		"tracking_no": logistics.TrackingNo,
		"status":      logistics.Status,
		"traces":      traces,
	})
}
