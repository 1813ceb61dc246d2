// Package facade defines the narrow interfaces through which the
// conversation engine reaches marketplace data (orders, products, users).
// Implementations live outside the engine; an in-memory variant is
// provided for demo mode and tests.
package facade

import (
	"context"
	"time"
)

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// OrderStatusText maps order statuses to display text.
var OrderStatusText = map[string]string{
	OrderStatusPending:   "待支付",
	OrderStatusPaid:      "已支付",
	OrderStatusShipped:   "已发货",
	OrderStatusDelivered: "已送达",
	OrderStatusCompleted: "已完成",
	OrderStatusCancelled: "已取消",
	OrderStatusRefunded:  "已退款",
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID int64   `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Order is a marketplace order.
type Order struct {
	OrderNo     string      `json:"order_no"`
	UserID      int64       `json:"user_id"`
	Status      string      `json:"status"`
	TotalAmount float64     `json:"total_amount"`
	Items       []OrderItem `json:"items,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// StatusText returns the display text for the order status.
func (o *Order) StatusText() string {
	if text, ok := OrderStatusText[o.Status]; ok {
		return text
	}
	return o.Status
}

// Product is a catalog entry.
type Product struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Status      string   `json:"status"`
	Difficulty  string   `json:"difficulty,omitempty"`
	TechStack   []string `json:"tech_stack,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	Sales       int      `json:"sales,omitempty"`
	Stock       int      `json:"stock"`
	CoverURL    string   `json:"cover_url,omitempty"`
}

// User is a marketplace account.
type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	MemberLevel string    `json:"member_level,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LogisticsTrace is one checkpoint of a delivery.
type LogisticsTrace struct {
	Time        time.Time `json:"time"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
}

// Logistics is the delivery state of a shipped order.
type Logistics struct {
	OrderNo    string           `json:"order_no"`
	Carrier    string           `json:"carrier"`
	TrackingNo string           `json:"tracking_no"`
	Status     string           `json:"status"`
	Traces     []LogisticsTrace `json:"traces,omitempty"`
}

// TechCount is a browse-derived interest weight for one technology.
type TechCount struct {
	Tech  string `json:"tech"`
	Count int    `json:"count"`
}

// CategoryCount is a browse-derived interest weight for one category.
type CategoryCount struct {
	CategoryID int64 `json:"category_id"`
	Count      int   `json:"count"`
}

// UserInterests aggregates a user's browsing signals.
type UserInterests struct {
	TechStack  []TechCount     `json:"tech_stack"`
	Categories []CategoryCount `json:"categories"`
}

// SearchParams filters a product search.
type SearchParams struct {
	Keyword    string
	Status     string
	MaxPrice   float64 // 0 = unbounded
	Difficulty string
	TechStack  string
	Page       int
	PageSize   int
	SortBy     string // price, rating, sales, created_at
	Order      string // asc, desc
}

// OrderService exposes order lookups.
type OrderService interface {
	// List returns a page of the user's orders, optionally filtered by status.
	List(ctx context.Context, userID int64, page, pageSize int, status string) ([]Order, int, error)

	// Get returns one order by its human order number, or nil when unknown.
	Get(ctx context.Context, orderNo string) (*Order, error)
}

// ProductService exposes catalog search and lookup.
type ProductService interface {
	Search(ctx context.Context, params SearchParams) ([]Product, int, error)
	Get(ctx context.Context, productID int64) (*Product, error)
}

// UserService exposes account lookup.
type UserService interface {
	Get(ctx context.Context, userID int64) (*User, error)
}

// BrowseService exposes browse-derived interest aggregation.
type BrowseService interface {
	GetUserInterests(ctx context.Context, userID int64) (*UserInterests, error)
}

// RecommendationService exposes the personalized recommender.
type RecommendationService interface {
	GetPersonalized(ctx context.Context, userID int64, limit int, exclude []int64) ([]Product, error)
}

// LogisticsService exposes delivery tracking.
type LogisticsService interface {
	Get(ctx context.Context, orderNo string) (*Logistics, error)
}

// AttachmentService reads uploaded files as text.
type AttachmentService interface {
	ExtractText(ctx context.Context, filePath string) (string, error)
}

// Facade bundles every collaborator interface the engine consumes.
type Facade struct {
	Orders          OrderService
	Products        ProductService
	Users           UserService
	Browse          BrowseService
	Recommendations RecommendationService
	Logistics       LogisticsService
	Attachments     AttachmentService
}
