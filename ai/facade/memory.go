package facade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryFacade is an in-memory fixture store implementing every facade
// interface through small adapters. Used for demo mode and tests.
type MemoryFacade struct {
	mu        sync.RWMutex
	orders    map[string]*Order
	products  map[int64]*Product
	users     map[int64]*User
	interests map[int64]*UserInterests
	logistics map[string]*Logistics
}

// NewMemoryFacade creates an empty in-memory facade.
func NewMemoryFacade() *MemoryFacade {
	return &MemoryFacade{
		orders:    make(map[string]*Order),
		products:  make(map[int64]*Product),
		users:     make(map[int64]*User),
		interests: make(map[int64]*UserInterests),
		logistics: make(map[string]*Logistics),
	}
}

// Bundle returns a Facade with every service backed by this store.
func (m *MemoryFacade) Bundle() *Facade {
	return &Facade{
		Orders:          &memoryOrders{m},
		Products:        &memoryProducts{m},
		Users:           &memoryUsers{m},
		Browse:          &memoryBrowse{m},
		Recommendations: &memoryRecommendations{m},
		Logistics:       &memoryLogistics{m},
		Attachments:     &LocalAttachmentService{},
	}
}

// PutOrder registers an order fixture.
func (m *MemoryFacade) PutOrder(order Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.OrderNo] = &order
}

// PutProduct registers a product fixture.
func (m *MemoryFacade) PutProduct(product Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = &product
}

// PutUser registers a user fixture.
func (m *MemoryFacade) PutUser(user User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = &user
}

// PutInterests registers browse-derived interests for a user.
func (m *MemoryFacade) PutInterests(userID int64, interests UserInterests) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interests[userID] = &interests
}

// PutLogistics registers delivery tracking for an order.
func (m *MemoryFacade) PutLogistics(l Logistics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logistics[l.OrderNo] = &l
}

type memoryOrders struct{ store *MemoryFacade }

func (s *memoryOrders) List(_ context.Context, userID int64, page, pageSize int, status string) ([]Order, int, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var matched []Order
	for _, order := range s.store.orders {
		if order.UserID != userID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		matched = append(matched, *order)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	paged, total := paginate(matched, page, pageSize)
	return paged, total, nil
}

func (s *memoryOrders) Get(_ context.Context, orderNo string) (*Order, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	order, ok := s.store.orders[orderNo]
	if !ok {
		return nil, nil
	}
	out := *order
	return &out, nil
}

type memoryProducts struct{ store *MemoryFacade }

func (s *memoryProducts) Search(_ context.Context, params SearchParams) ([]Product, int, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	keyword := strings.ToLower(params.Keyword)

	var matched []Product
	for _, p := range s.store.products {
		if params.Status != "" && p.Status != params.Status {
			continue
		}
		if params.MaxPrice > 0 && p.Price > params.MaxPrice {
			continue
		}
		if params.Difficulty != "" && p.Difficulty != params.Difficulty {
			continue
		}
		if params.TechStack != "" && !containsFold(p.TechStack, params.TechStack) {
			continue
		}
		if keyword != "" && !productMatches(p, keyword) {
			continue
		}
		matched = append(matched, *p)
	}

	sortProducts(matched, params.SortBy, params.Order)

	paged, total := paginate(matched, params.Page, params.PageSize)
	return paged, total, nil
}

func (s *memoryProducts) Get(_ context.Context, productID int64) (*Product, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	p, ok := s.store.products[productID]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

type memoryUsers struct{ store *MemoryFacade }

func (s *memoryUsers) Get(_ context.Context, userID int64) (*User, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	u, ok := s.store.users[userID]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

type memoryBrowse struct{ store *MemoryFacade }

func (s *memoryBrowse) GetUserInterests(_ context.Context, userID int64) (*UserInterests, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	interests, ok := s.store.interests[userID]
	if !ok {
		return &UserInterests{}, nil
	}
	out := *interests
	return &out, nil
}

type memoryRecommendations struct{ store *MemoryFacade }

func (s *memoryRecommendations) GetPersonalized(ctx context.Context, userID int64, limit int, exclude []int64) ([]Product, error) {
	browse := &memoryBrowse{s.store}
	interests, err := browse.GetUserInterests(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	excluded := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	// Score by overlap between the user's tech interests and each product.
	type scored struct {
		product Product
		score   int
	}
	var candidates []scored
	for _, p := range s.store.products {
		if p.Status != "published" || excluded[p.ID] {
			continue
		}
		score := 0
		for _, tc := range interests.TechStack {
			if containsFold(p.TechStack, tc.Tech) {
				score += tc.Count
			}
		}
		candidates = append(candidates, scored{product: *p, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].product.Sales > candidates[j].product.Sales
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	products := make([]Product, len(candidates))
	for i, c := range candidates {
		products[i] = c.product
	}
	return products, nil
}

type memoryLogistics struct{ store *MemoryFacade }

func (s *memoryLogistics) Get(_ context.Context, orderNo string) (*Logistics, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	l, ok := s.store.logistics[orderNo]
	if !ok {
		return nil, nil
	}
	out := *l
	return &out, nil
}

func paginate[T any](items []T, page, pageSize int) ([]T, int) {
	total := len(items)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return items[start:end], total
}

func productMatches(p *Product, keyword string) bool {
	if strings.Contains(strings.ToLower(p.Title), keyword) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Description), keyword) {
		return true
	}
	return containsFold(p.TechStack, keyword)
}

func containsFold(items []string, target string) bool {
	for _, item := range items {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

func sortProducts(products []Product, sortBy, order string) {
	asc := order == "asc"
	sort.Slice(products, func(i, j int) bool {
		switch sortBy {
		case "price":
			if asc {
				return products[i].Price < products[j].Price
			}
			return products[i].Price > products[j].Price
		case "rating":
			if asc {
				return products[i].Rating < products[j].Rating
			}
			return products[i].Rating > products[j].Rating
		default: // sales
			if asc {
				return products[i].Sales < products[j].Sales
			}
			return products[i].Sales > products[j].Sales
		}
	})
}

// maxAttachmentBytes bounds a single attachment read.
const maxAttachmentBytes = 1 << 20

// LocalAttachmentService reads uploaded files from the local filesystem.
// Only text-like formats are supported; binary formats yield an error.
type LocalAttachmentService struct{}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true,
	".csv": true, ".json": true, ".log": true,
	".py": true, ".go": true, ".js": true, ".ts": true,
	".java": true, ".html": true, ".css": true, ".xml": true, ".yaml": true, ".yml": true,
}

func (s *LocalAttachmentService) ExtractText(_ context.Context, filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if !textExtensions[ext] {
		return "", fmt.Errorf("unsupported attachment format: %s", ext)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return "", fmt.Errorf("stat attachment: %w", err)
	}
	if info.Size() > maxAttachmentBytes {
		return "", fmt.Errorf("attachment too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	return string(data), nil
}

// SeedDemoData loads a small demo fixture set: a few products, one user
// with orders and browse interests.
func (m *MemoryFacade) SeedDemoData() {
	now := time.Now()

	m.PutUser(User{ID: 1, Username: "demo", Email: "demo@example.com", MemberLevel: "gold", CreatedAt: now.AddDate(-1, 0, 0)})

	m.PutProduct(Product{ID: 101, Title: "Python 电商数据分析实战", Price: 99, Status: "published", Difficulty: "medium", TechStack: []string{"python", "pandas"}, Rating: 4.8, Sales: 1200, Stock: 999})
	m.PutProduct(Product{ID: 102, Title: "Go 微服务脚手架", Price: 199, Status: "published", Difficulty: "hard", TechStack: []string{"go", "grpc"}, Rating: 4.6, Sales: 800, Stock: 999})
	m.PutProduct(Product{ID: 103, Title: "Vue3 管理后台模板", Price: 59, Status: "published", Difficulty: "easy", TechStack: []string{"vue", "typescript"}, Rating: 4.5, Sales: 2100, Stock: 999})
	m.PutProduct(Product{ID: 104, Title: "Python 爬虫进阶课程", Price: 129, Status: "published", Difficulty: "medium", TechStack: []string{"python", "scrapy"}, Rating: 4.7, Sales: 950, Stock: 999})

	m.PutOrder(Order{
		OrderNo:     "ORD20240207123456ABCDEF",
		UserID:      1,
		Status:      OrderStatusShipped,
		TotalAmount: 99,
		Items:       []OrderItem{{ProductID: 101, Title: "Python 电商数据分析实战", Price: 99, Quantity: 1}},
		CreatedAt:   now.AddDate(0, 0, -3),
	})
	m.PutLogistics(Logistics{
		OrderNo:    "ORD20240207123456ABCDEF",
		Carrier:    "顺丰速运",
		TrackingNo: "SF1234567890",
		Status:     "运输中",
		Traces: []LogisticsTrace{
			{Time: now.AddDate(0, 0, -2), Location: "深圳", Description: "已揽收"},
			{Time: now.AddDate(0, 0, -1), Location: "广州中转场", Description: "运输中"},
		},
	})

	m.PutInterests(1, UserInterests{
		TechStack: []TechCount{{Tech: "python", Count: 8}, {Tech: "go", Count: 3}},
	})
}
