package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := facade.NewMemoryFacade()
	store.SeedDemoData()
	registry, err := NewDefaultRegistry(store.Bundle())
	require.NoError(t, err)
	return registry
}

func TestDefaultRegistry_CanonicalTools(t *testing.T) {
	registry := newTestRegistry(t)

	assert.Equal(t, []string{
		"calculate_price",
		"check_inventory",
		"get_logistics",
		"get_personalized_recommendations",
		"get_user_info",
		"query_order",
		"search_products",
	}, registry.Names())
}

func TestRegistry_Descriptors(t *testing.T) {
	registry := newTestRegistry(t)

	descriptors := registry.Descriptors()
	require.Len(t, descriptors, 7)
	for _, d := range descriptors {
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Description)
		assert.Contains(t, d.Parameters, `"type":"object"`)
	}
}

func TestRegistry_UnknownToolFails(t *testing.T) {
	registry := newTestRegistry(t)

	result := registry.Execute(context.Background(), "no_such_tool", json.RawMessage(`{}`))
	assert.False(t, result.OK())
	assert.Contains(t, result.ErrorMessage(), "no_such_tool")
}

type panickingTool struct{}

func (panickingTool) Name() string                { return "panics" }
func (panickingTool) Description() string         { return "always panics" }
func (panickingTool) Parameters() *llm.JSONSchema { return &llm.JSONSchema{Type: "object"} }
func (panickingTool) Execute(context.Context, json.RawMessage) Result {
	panic("boom")
}

func TestRegistry_PanicBecomesFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register(panickingTool{})

	result := registry.Execute(context.Background(), "panics", json.RawMessage(`{}`))
	assert.False(t, result.OK())
	assert.NotEmpty(t, result.ErrorMessage())
}

func TestQueryOrder(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	result := registry.Execute(ctx, "query_order", json.RawMessage(`{"order_no":"ORD20240207123456ABCDEF"}`))
	require.True(t, result.OK())
	assert.Equal(t, "shipped", result["status"])
	assert.Equal(t, "已发货", result["status_text"])
	assert.Equal(t, 99.0, result["total_amount"])

	result = registry.Execute(ctx, "query_order", json.RawMessage(`{"order_no":"ORD99999999999999ZZZZZZ"}`))
	assert.False(t, result.OK())
	assert.Contains(t, result.ErrorMessage(), "未找到订单")

	result = registry.Execute(ctx, "query_order", json.RawMessage(`{}`))
	assert.False(t, result.OK())
}

func TestSearchProducts(t *testing.T) {
	registry := newTestRegistry(t)

	result := registry.Execute(context.Background(), "search_products", json.RawMessage(`{"keyword":"python"}`))
	require.True(t, result.OK())

	products, ok := result["products"].([]map[string]interface{})
	require.True(t, ok)
	require.NotEmpty(t, products)
	assert.LessOrEqual(t, len(products), 5)
	// sales-descending order from the fixture set
	assert.Equal(t, "Python 电商数据分析实战", products[0]["title"])
}

func TestCheckInventory(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	result := registry.Execute(ctx, "check_inventory", json.RawMessage(`{"product_id":101}`))
	require.True(t, result.OK())
	assert.Equal(t, true, result["available"])

	result = registry.Execute(ctx, "check_inventory", json.RawMessage(`{"product_id":9999}`))
	assert.False(t, result.OK())
}

func TestCalculatePrice(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	result := registry.Execute(ctx, "calculate_price", json.RawMessage(`{"product_ids":[101,103]}`))
	require.True(t, result.OK())
	assert.Equal(t, 158.0, result["original_price"])
	assert.Equal(t, 158.0, result["final_price"])

	result = registry.Execute(ctx, "calculate_price", json.RawMessage(`{"product_ids":[101],"coupon_code":"NEW10"}`))
	require.True(t, result.OK())
	assert.Equal(t, true, result["coupon_valid"])
	assert.InDelta(t, 89.1, result["final_price"].(float64), 0.001)

	result = registry.Execute(ctx, "calculate_price", json.RawMessage(`{"product_ids":[101],"coupon_code":"BOGUS"}`))
	require.True(t, result.OK())
	assert.Equal(t, false, result["coupon_valid"])
	assert.Equal(t, 99.0, result["final_price"])

	result = registry.Execute(ctx, "calculate_price", json.RawMessage(`{"product_ids":[]}`))
	assert.False(t, result.OK())
}

func TestGetUserInfo(t *testing.T) {
	registry := newTestRegistry(t)

	result := registry.Execute(context.Background(), "get_user_info", json.RawMessage(`{"user_id":1}`))
	require.True(t, result.OK())
	assert.Equal(t, "demo", result["username"])
	assert.Equal(t, "gold", result["member_level"])
}

func TestGetLogistics(t *testing.T) {
	registry := newTestRegistry(t)

	result := registry.Execute(context.Background(), "get_logistics", json.RawMessage(`{"order_no":"ORD20240207123456ABCDEF"}`))
	require.True(t, result.OK())
	assert.Equal(t, "顺丰速运", result["carrier"])
}

func TestGetPersonalizedRecommendations(t *testing.T) {
	registry := newTestRegistry(t)

	result := registry.Execute(context.Background(), "get_personalized_recommendations", json.RawMessage(`{"user_id":1,"limit":3}`))
	require.True(t, result.OK())

	products, ok := result["products"].([]map[string]interface{})
	require.True(t, ok)
	assert.LessOrEqual(t, len(products), 3)
	assert.NotEmpty(t, products)
}
