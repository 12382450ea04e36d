package service

import (
	"context"
	"time"

	"github.com/asquebay/storefront-service/internal/auth"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/ratelimit"
)

// OrderRepository определяет контракт для хранилища заказов в БД
type OrderRepository interface {
	ListPage(ctx context.Context, q model.PageQuery) (model.OrderPage, error)
	Search(ctx context.Context, query, status string, maxResults uint64) ([]model.Order, error)
	Stats(ctx context.Context) (model.OrderStats, error)
	GetByID(ctx context.Context, id int64) (model.Order, error)
	GetByNumber(ctx context.Context, number string) (model.Order, error)
	ListByPhone(ctx context.Context, phone string) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error)
	Delete(ctx context.Context, id int64) error
	CreateOrder(ctx context.Context, order model.Order) (int64, error)
}

// CatalogRepository определяет контракт для хранилища категорий и товаров
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	AddCategory(ctx context.Context, in model.NewCategory) (model.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	ListProducts(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, in model.NewProduct) (model.Product, error)
}

// Authorizer проверяет, что вызов сделан администратором
type Authorizer interface {
	CheckAdminAuth(ctx context.Context) auth.Result
}

// Limiter — счётчик запросов публичных эндпоинтов
type Limiter interface {
	Check(identity string, maxRequests int, window time.Duration) ratelimit.Result
}

// RateObserver учитывает отказы лимитера (метрики)
type RateObserver interface {
	RateLimited(class string)
}

// EventPublisher сообщает внешним системам об изменениях заказов
type EventPublisher interface {
	OrderStatusChanged(ctx context.Context, order model.Order) error
	OrderDeleted(ctx context.Context, id int64) error
}
