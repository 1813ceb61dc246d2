package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
)

// searchLimit is how many products a search returns to the LLM.
const searchLimit = 5

// SearchProductsTool searches the catalog by keyword and filters.
type SearchProductsTool struct {
	products facade.ProductService
}

// NewSearchProductsTool creates the search_products tool.
func NewSearchProductsTool(products facade.ProductService) (*SearchProductsTool, error) {
	if products == nil {
		return nil, fmt.Errorf("product service cannot be nil")
	}
	return &SearchProductsTool{products: products}, nil
}

func (t *SearchProductsTool) Name() string { return "search_products" }

func (t *SearchProductsTool) Description() string {
	return "搜索商品。支持关键词、最高价格、难度和技术栈筛选，按销量排序返回最多 5 个商品。"
}

func (t *SearchProductsTool) Parameters() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"keyword":    {Type: "string", Description: "搜索关键词，如 python、爬虫"},
			"max_price":  {Type: "number", Description: "最高价格"},
			"difficulty": {Type: "string", Description: "难度", Enum: []string{"easy", "medium", "hard"}},
			"tech_stack": {Type: "string", Description: "技术栈，如 python、go、vue"},
		},
	}
}

type searchProductsInput struct {
	Keyword    string  `json:"keyword"`
	MaxPrice   float64 `json:"max_price"`
	Difficulty string  `json:"difficulty"`
	TechStack  string  `json:"tech_stack"`
}

func (t *SearchProductsTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var input searchProductsInput
	if err := json.Unmarshal(args, &input); err != nil {
		return Failure("参数解析失败: %v", err)
	}

	products, total, err := t.products.Search(ctx, facade.SearchParams{
		Keyword:    input.Keyword,
		Status:     "published",
		MaxPrice:   input.MaxPrice,
		Difficulty: input.Difficulty,
		TechStack:  input.TechStack,
		Page:       1,
		PageSize:   searchLimit,
		SortBy:     "sales",
		Order:      "desc",
	})
	if err != nil {
		return Failure("商品搜索失败: %v", err)
	}

	return Success(map[string]interface{}{
		"total":    total,
		"products": productDigests(products),
	})
}

// CheckInventoryTool reports availability for one product.
type CheckInventoryTool struct {
	products facade.ProductService
}

// NewCheckInventoryTool creates the check_inventory tool.
func NewCheckInventoryTool(products facade.ProductService) (*CheckInventoryTool, error) {
	if products == nil {
		return nil, fmt.Errorf("product service cannot be nil")
	}
	return &CheckInventoryTool{products: products}, nil
}

func (t *CheckInventoryTool) Name() string { return "check_inventory" }

func (t *CheckInventoryTool) Description() string {
	return "查询商品库存。根据商品 ID 返回库存数量和是否可购买。"
}

func (t *CheckInventoryTool) Parameters() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"product_id": {Type: "integer", Description: "商品 ID"},
		},
		Required: []string{"product_id"},
	}
}

type checkInventoryInput struct {
	ProductID int64 `json:"product_id"`
}

func (t *CheckInventoryTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var input checkInventoryInput
	if err := json.Unmarshal(args, &input); err != nil {
		return Failure("参数解析失败: %v", err)
	}
	if input.ProductID <= 0 {
		return Failure("缺少参数 product_id")
	}

	product, err := t.products.Get(ctx, input.ProductID)
	if err != nil {
		return Failure("库存查询失败: %v", err)
	}
	if product == nil {
		return Failure("未找到商品 %d", input.ProductID)
	}

	return Success(map[string]interface{}{
		"product_id": product.ID,
		"title":      product.Title,
		"stock":      product.Stock,
		"available":  product.Stock > 0 && product.Status == "published",
	})
}

// coupons maps coupon codes to price multipliers.
var coupons = map[string]float64{
	"NEW10": 0.9,
	"VIP20": 0.8,
}

// CalculatePriceTool sums product prices with an optional coupon.
type CalculatePriceTool struct {
	products facade.ProductService
}

// NewCalculatePriceTool creates the calculate_price tool.
func NewCalculatePriceTool(products facade.ProductService) (*CalculatePriceTool, error) {
	if products == nil {
		return nil, fmt.Errorf("product service cannot be nil")
	}
	return &CalculatePriceTool{products: products}, nil
}

func (t *CalculatePriceTool) Name() string { return "calculate_price" }

func (t *CalculatePriceTool) Description() string {
	return "计算商品总价。可选优惠券码（NEW10 九折，VIP20 八折）。"
}

func (t *CalculatePriceTool) Parameters() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"product_ids": {
				Type:        "array",
				Items:       &llm.JSONSchema{Type: "integer"},
				Description: "商品 ID 列表",
			},
			"coupon_code": {Type: "string", Description: "优惠券码"},
		},
		Required: []string{"product_ids"},
	}
}

type calculatePriceInput struct {
	ProductIDs []int64 `json:"product_ids"`
	CouponCode string  `json:"coupon_code"`
}

func (t *CalculatePriceTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var input calculatePriceInput
	if err := json.Unmarshal(args, &input); err != nil {
		return Failure("参数解析失败: %v", err)
	}
	if len(input.ProductIDs) == 0 {
		return Failure("缺少参数 product_ids")
	}

	var original float64
	var missing []int64
	for _, id := range input.ProductIDs {
		product, err := t.products.Get(ctx, id)
		if err != nil {
			return Failure("价格查询失败: %v", err)
		}
		if product == nil {
			missing = append(missing, id)
			continue
		}
		original += product.Price
	}
	if len(missing) == len(input.ProductIDs) {
		return Failure("未找到任何商品")
	}

	final := original
	couponValid := false
	if input.CouponCode != "" {
		if multiplier, ok := coupons[input.CouponCode]; ok {
			final = original * multiplier
			couponValid = true
		}
	}

	fields := map[string]interface{}{
		"original_price": original,
		"final_price":    final,
		"discount":       original - final,
	}
	if input.CouponCode != "" {
		fields["coupon_code"] = input.CouponCode
		fields["coupon_valid"] = couponValid
	}
	if len(missing) > 0 {
		fields["missing_products"] = missing
	}
	return Success(fields)
}

func productDigests(products []facade.Product) []map[string]interface{} {
	digests := make([]map[string]interface{}, len(products))
	for i, p := range products {
		digests[i] = map[string]interface{}{
			"product_id": p.ID,
			"title":      p.Title,
			"price":      p.Price,
			"difficulty": p.Difficulty,
			"tech_stack": p.TechStack,
			"rating":     p.Rating,
			"sales":      p.Sales,
		}
	}
	return digests
}
