// Package memory — хранилище в памяти с тем же поведением, что и postgres
// используется в тестах и в демо-режиме консоли
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/repository/postgres"
)

// Store хранит заказы, категории, товары и администраторов
// все методы безопасны для конкурентного использования
type Store struct {
	mu         sync.Mutex
	orders     map[int64]model.Order
	categories map[int64]model.Category
	products   map[int64]model.Product
	admins     map[string]model.AdminUser

	nextOrder    int64
	nextCategory int64
	nextProduct  int64
	nextVariant  int64
	nextItem     int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		orders:     make(map[int64]model.Order),
		categories: make(map[int64]model.Category),
		products:   make(map[int64]model.Product),
		admins:     make(map[string]model.AdminUser),
		now:        time.Now,
	}
}

// PutOrder кладёт заказ как есть; нулевой ID назначается автоматически
func (s *Store) PutOrder(o model.Order) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == 0 {
		s.nextOrder++
		o.ID = s.nextOrder
	} else if o.ID > s.nextOrder {
		s.nextOrder = o.ID
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	for i := range o.Items {
		if o.Items[i].ID == 0 {
			s.nextItem++
			o.Items[i].ID = s.nextItem
		}
	}
	s.orders[o.ID] = cloneOrder(o)
	return o
}

// PutProduct кладёт товар; категория должна существовать заранее
func (s *Store) PutProduct(p model.Product) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		s.nextProduct++
		p.ID = s.nextProduct
	} else if p.ID > s.nextProduct {
		s.nextProduct = p.ID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.products[p.ID] = p
	return p
}

// PutCategory кладёт категорию как есть; нулевой ID назначается автоматически
func (s *Store) PutCategory(c model.Category) model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		s.nextCategory++
		c.ID = s.nextCategory
	} else if c.ID > s.nextCategory {
		s.nextCategory = c.ID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.ProductCount = 0
	s.categories[c.ID] = c
	return c
}

// PutAdmin регистрирует администратора
func (s *Store) PutAdmin(u model.AdminUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[u.ID] = u
}

func (s *Store) ListPage(ctx context.Context, q model.PageQuery) (model.OrderPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.filteredLocked(func(o model.Order) bool { return matchStatus(o, q.Status) })
	total := len(all)
	from := q.Page * q.Limit

	page := model.OrderPage{Orders: []model.Order{}, TotalCount: total}
	if from < total {
		page.Orders = all[from:min(from+q.Limit, total)]
	}
	if to := from + q.Limit - 1; to < total-1 {
		next := q.Page + 1
		page.HasMore = true
		page.NextPage = &next
	}
	return page, nil
}

func (s *Store) Search(ctx context.Context, query, status string, maxResults uint64) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(query)
	found := s.filteredLocked(func(o model.Order) bool {
		if !matchStatus(o, status) {
			return false
		}
		return strings.Contains(strings.ToLower(o.CustomerName), needle) ||
			strings.Contains(strings.ToLower(o.OrderNumber), needle) ||
			strings.Contains(strings.ToLower(o.CustomerPhone), needle)
	})
	if maxResults > 0 && uint64(len(found)) > maxResults {
		found = found[:maxResults]
	}
	return found, nil
}

func (s *Store) Stats(ctx context.Context) (model.OrderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats model.OrderStats
	for _, o := range s.orders {
		stats.Add(o.Status, 1)
		if o.Status != model.StatusCancelled {
			stats.TotalRevenue += o.TotalPrice
		}
	}
	return stats, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("memory: order %d: %w", id, postgres.ErrOrderNotFound)
	}
	return cloneOrder(o), nil
}

func (s *Store) GetByNumber(ctx context.Context, number string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return model.Order{}, fmt.Errorf("memory: order %s: %w", number, postgres.ErrOrderNotFound)
}

func (s *Store) ListByPhone(ctx context.Context, phone string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filteredLocked(func(o model.Order) bool { return o.CustomerPhone == phone }), nil
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("memory: order %d: %w", id, postgres.ErrOrderNotFound)
	}
	o.Status = status
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return cloneOrder(o), nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return fmt.Errorf("memory: order %d: %w", id, postgres.ErrOrderNotFound)
	}
	delete(s.orders, id)
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order model.Order) (int64, error) {
	s.mu.Lock()
	for _, o := range s.orders {
		if o.OrderNumber == order.OrderNumber {
			s.mu.Unlock()
			return 0, fmt.Errorf("memory: %s: %w", order.OrderNumber, postgres.ErrOrderExists)
		}
	}
	s.mu.Unlock()

	order.ID = 0
	return s.PutOrder(order).ID, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		c.ProductCount = s.productCountLocked(c.ID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) AddCategory(ctx context.Context, in model.NewCategory) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if c.Slug == in.Slug {
			return model.Category{}, fmt.Errorf("memory: %s: %w", in.Slug, postgres.ErrCategoryExists)
		}
	}
	s.nextCategory++
	c := model.Category{ID: s.nextCategory, Name: in.Name, Slug: in.Slug, CreatedAt: s.now()}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.productCountLocked(id); n > 0 {
		return fmt.Errorf("memory: %w", &postgres.CategoryInUseError{Count: n})
	}
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("memory: category %d: %w", id, postgres.ErrCategoryNotFound)
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		if c, ok := s.categories[p.CategoryID]; ok {
			p.Category = &model.CategoryRef{ID: c.ID, Name: c.Name, Slug: c.Slug}
		}
		p.Variants = slices.Clone(p.Variants)
		model.SortVariants(p.SizeType, p.Variants)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, in model.NewProduct) (model.Product, error) {
	s.mu.Lock()
	if _, ok := s.categories[in.CategoryID]; !ok {
		s.mu.Unlock()
		return model.Product{}, fmt.Errorf("memory: category %d: %w", in.CategoryID, postgres.ErrCategoryNotFound)
	}
	variants := make([]model.Variant, len(in.Variants))
	for i, v := range in.Variants {
		s.nextVariant++
		variants[i] = model.Variant{ID: s.nextVariant, Size: v.Size, Stock: v.Stock}
	}
	s.mu.Unlock()

	model.SortVariants(in.SizeType, variants)
	return s.PutProduct(model.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Discount:    in.Discount,
		Color:       in.Color,
		CategoryID:  in.CategoryID,
		SizeType:    in.SizeType,
		Status:      in.Status,
		SKU:         in.SKU,
		Images:      slices.Clone(in.Images),
		Variants:    variants,
	}), nil
}

// AdminByID возвращает nil без ошибки, если пользователь не администратор
func (s *Store) AdminByID(ctx context.Context, id string) (*model.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.admins[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// filteredLocked возвращает подходящие заказы, новые первыми
func (s *Store) filteredLocked(keep func(model.Order) bool) []model.Order {
	out := []model.Order{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out
}

func (s *Store) productCountLocked(categoryID int64) int {
	n := 0
	for _, p := range s.products {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n
}

func matchStatus(o model.Order, status string) bool {
	return status == "" || status == model.StatusAll || string(o.Status) == status
}

// newer — порядок created_at DESC, id DESC
func newer(at time.Time, id int64, otherAt time.Time, otherID int64) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return id > otherID
}

func cloneOrder(o model.Order) model.Order {
	o.Items = slices.Clone(o.Items)
	return o
}
