package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
)

// GetUserInfoTool fetches a user's identity and profile.
type GetUserInfoTool struct {
	users facade.UserService
}

// NewGetUserInfoTool creates the get_user_info tool.
func NewGetUserInfoTool(users facade.UserService) (*GetUserInfoTool, error) {
	if users == nil {
		return nil, fmt.Errorf("user service cannot be nil")
	}
	return &GetUserInfoTool{users: users}, nil
}

func (t *GetUserInfoTool) Name() string { return "get_user_info" }

func (t *GetUserInfoTool) Description() string {
	return "查询用户信息。根据用户 ID 返回用户名、会员等级和注册时间。"
}

func (t *GetUserInfoTool) Parameters() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"user_id": {Type: "integer", Description: "用户 ID"},
		},
		Required: []string{"user_id"},
	}
}

type getUserInfoInput struct {
	UserID int64 `json:"user_id"`
}

func (t *GetUserInfoTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var input getUserInfoInput
	if err := json.Unmarshal(args, &input); err != nil {
		return Failure("参数解析失败: %v", err)
	}
	if input.UserID <= 0 {
		return Failure("缺少参数 user_id")
	}

	user, err := t.users.Get(ctx, input.UserID)
	if err != nil {
		return Failure("用户查询失败: %v", err)
	}
	if user == nil {
		return Failure("未找到用户 %d", input.UserID)
	}

	return Success(map[string]interface{}{
		"user_id":      user.ID,
		"username":     user.Username,
		"member_level": user.MemberLevel,
		"created_at":   user.CreatedAt.Format("2006-01-02"),
	})
}

// GetPersonalizedRecommendationsTool suggests products from browsing history.
type GetPersonalizedRecommendationsTool struct {
	recommendations facade.RecommendationService
}

// NewGetPersonalizedRecommendationsTool creates the get_personalized_recommendations tool.
func NewGetPersonalizedRecommendationsTool(recommendations facade.RecommendationService) (*GetPersonalizedRecommendationsTool, error) {
	if recommendations == nil {
		return nil, fmt.Errorf("recommendation service cannot be nil")
	}
	return &GetPersonalizedRecommendationsTool{recommendations: recommendations}, nil
}

func (t *GetPersonalizedRecommendationsTool) Name() string {
	return "get_personalized_recommendations"
}

func (t *GetPersonalizedRecommendationsTool) Description() string {
	return "基于用户浏览历史的个性化商品推荐。"
}

func (t *GetPersonalizedRecommendationsTool) Parameters() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"user_id": {Type: "integer", Description: "用户 ID"},
			"limit":   {Type: "integer", Description: "推荐数量，默认 5"},
		},
		Required: []string{"user_id", "limit"},
	}
}

type personalizedInput struct {
	UserID int64 `json:"user_id"`
	Limit  int   `json:"limit"`
}

func (t *GetPersonalizedRecommendationsTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var input personalizedInput
	if err := json.Unmarshal(args, &input); err != nil {
		return Failure("参数解析失败: %v", err)
	}
	if input.UserID <= 0 {
		return Failure("缺少参数 user_id")
	}
	if input.Limit <= 0 {
		input.Limit = 5
	}

	products, err := t.recommendations.GetPersonalized(ctx, input.UserID, input.Limit, nil)
	if err != nil {
		return Failure("推荐查询失败: %v", err)
	}

	return Success(map[string]interface{}{
		"products": productDigests(products),
	})
}

// NewDefaultRegistry wires the canonical tool set against a facade.
func NewDefaultRegistry(f *facade.Facade) (*Registry, error) {
	registry := NewRegistry()

	queryOrder, err := NewQueryOrderTool(f.Orders)
	if err != nil {
		return nil, err
	}
	searchProducts, err := NewSearchProductsTool(f.Products)
	if err != nil {
		return nil, err
	}
	userInfo, err := NewGetUserInfoTool(f.Users)
	if err != nil {
		return nil, err
	}
	inventory, err := NewCheckInventoryTool(f.Products)
	if err != nil {
		return nil, err
	}
	logistics, err := NewGetLogisticsTool(f.Logistics)
	if err != nil {
		return nil, err
	}
	price, err := NewCalculatePriceTool(f.Products)
	if err != nil {
		return nil, err
	}
	personalized, err := NewGetPersonalizedRecommendationsTool(f.Recommendations)
	if err != nil {
		return nil, err
	}

	registry.Register(queryOrder)
	registry.Register(searchProducts)
	registry.Register(userInfo)
	registry.Register(inventory)
	registry.Register(logistics)
	registry.Register(price)
	registry.Register(personalized)
	return registry, nil
}
