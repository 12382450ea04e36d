// Package dashboard — чтения и мутации админки поверх общего кэша
// все чтения идут через кэш, все мутации через оптимистичный протокол кэша
package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/querykey"
	"github.com/asquebay/storefront-service/internal/repository/cache"
	"github.com/asquebay/storefront-service/internal/service"
	"github.com/asquebay/storefront-service/internal/storage"
)

// defaultRetry — сколько раз повторяется неудачная загрузка
const defaultRetry = 1

// OrderSource — функции доступа к заказам
type OrderSource interface {
	GetOrdersByPhone(ctx context.Context, phone string) ([]model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (model.Order, error)
	ListOrders(ctx context.Context, q model.PageQuery) (model.OrderPage, error)
	SearchOrders(ctx context.Context, query, status string) ([]model.Order, error)
	GetOrderStats(ctx context.Context) (model.OrderStats, error)
	GetOrderByID(ctx context.Context, id int64) (model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// CatalogSource — функции доступа к категориям и товарам
type CatalogSource interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	AddCategory(ctx context.Context, in model.NewCategory) (model.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	ListProducts(ctx context.Context) ([]model.Product, error)
	AddProduct(ctx context.Context, in model.NewProduct, images []storage.Image) (model.Product, error)
}

type Dashboard struct {
	cache    *cache.Client
	orders   OrderSource
	catalog  CatalogSource
	times    config.Cache
	pageSize int
	log      *slog.Logger
}

func New(c *cache.Client, orders OrderSource, catalog CatalogSource, times config.Cache, search config.Search, log *slog.Logger) *Dashboard {
	return &Dashboard{
		cache:    c,
		orders:   orders,
		catalog:  catalog,
		times:    times,
		pageSize: search.PageSize,
		log:      log,
	}
}

// Cache возвращает общий кэш (для инвалидации извне и для тестов)
func (d *Dashboard) Cache() *cache.Client { return d.cache }

// PageSize — размер страницы бесконечного списка заказов
func (d *Dashboard) PageSize() int { return d.pageSize }

func (d *Dashboard) opts(t config.QueryTimes) cache.Options {
	return cache.Options{StaleTime: t.StaleTime, GCTime: t.GCTime, Retry: defaultRetry}
}

// OrderStats — агрегаты по заказам
func (d *Dashboard) OrderStats(ctx context.Context) (model.OrderStats, error) {
	return cache.Query(ctx, d.cache, querykey.OrderStatsKey(), d.orders.GetOrderStats, d.opts(d.times.Stats))
}

// Order — заказ с позициями
func (d *Dashboard) Order(ctx context.Context, id int64) (model.Order, error) {
	return cache.Query(ctx, d.cache, querykey.OrderDetail(id), func(ctx context.Context) (model.Order, error) {
		return d.orders.GetOrderByID(ctx, id)
	}, d.opts(d.times.Orders))
}

// SearchOrders — поиск по тексту, одним запросом без страниц
func (d *Dashboard) SearchOrders(ctx context.Context, query, status string) ([]model.Order, error) {
	return cache.Query(ctx, d.cache, querykey.OrdersSearch(query, status), func(ctx context.Context) ([]model.Order, error) {
		return d.orders.SearchOrders(ctx, query, status)
	}, d.opts(d.times.Search))
}

// CustomerOrders — заказы покупателя по телефону
func (d *Dashboard) CustomerOrders(ctx context.Context, phone string) ([]model.Order, error) {
	return cache.Query(ctx, d.cache, querykey.OrdersByPhone(service.SanitizePhone(phone)), func(ctx context.Context) ([]model.Order, error) {
		return d.orders.GetOrdersByPhone(ctx, phone)
	}, d.opts(d.times.Orders))
}

// CustomerOrder — заказ покупателя по номеру
func (d *Dashboard) CustomerOrder(ctx context.Context, number string) (model.Order, error) {
	return cache.Query(ctx, d.cache, querykey.OrderByNumber(service.NormalizeOrderNumber(number)), func(ctx context.Context) (model.Order, error) {
		return d.orders.GetOrderByNumber(ctx, number)
	}, d.opts(d.times.Orders))
}

// orderPages загружает страницы бесконечного списка с фильтром status
func (d *Dashboard) orderPages(status string) cache.PageFetcher {
	return func(ctx context.Context, param int) (cache.Page, error) {
		page, err := d.orders.ListOrders(ctx, model.PageQuery{Page: param, Limit: d.pageSize, Status: status})
		if err != nil {
			return cache.Page{}, err
		}
		return cache.Page{
			Items:      page.Orders,
			TotalCount: page.TotalCount,
			HasMore:    page.HasMore,
			NextPage:   page.NextPage,
		}, nil
	}
}

// OrdersFirstPage загружает (или берёт из кэша) первую страницу списка
func (d *Dashboard) OrdersFirstPage(ctx context.Context, status string) (cache.Page, error) {
	return d.cache.GetPage(ctx, querykey.OrdersInfinite(status), cache.FirstPage, d.orderPages(status), d.opts(d.times.Orders))
}

// FetchNextOrders догружает следующую страницу списка
func (d *Dashboard) FetchNextOrders(ctx context.Context, status string) (cache.Page, error) {
	return d.cache.FetchNextPage(ctx, querykey.OrdersInfinite(status), d.orderPages(status), d.opts(d.times.Orders))
}

// OrdersPage возвращает страницу page списка
// страница, которая не продолжает загруженную последовательность, читается мимо кэша
func (d *Dashboard) OrdersPage(ctx context.Context, status string, page int) (cache.Page, error) {
	p, err := d.cache.GetPage(ctx, querykey.OrdersInfinite(status), page, d.orderPages(status), d.opts(d.times.Orders))
	if errors.Is(err, cache.ErrPageOutOfOrder) {
		d.log.Debug("page out of order, reading past cache", slog.String("status", status), slog.Int("page", page))
		p, err = d.orderPages(status)(ctx, page)
		p.Param = page
	}
	return p, err
}

// InfiniteOrders — текущее состояние бесконечного списка без загрузки
func (d *Dashboard) InfiniteOrders(status string) cache.Snapshot {
	snap, _ := d.cache.Peek(querykey.OrdersInfinite(status))
	return snap
}

func (d *Dashboard) Categories(ctx context.Context) ([]model.Category, error) {
	return cache.Query(ctx, d.cache, querykey.CategoriesList(), d.catalog.ListCategories, d.opts(d.times.Categories))
}

func (d *Dashboard) Products(ctx context.Context) ([]model.Product, error) {
	return cache.Query(ctx, d.cache, querykey.ProductsList(nil), d.catalog.ListProducts, d.opts(d.times.Products))
}

// InvalidateOrders помечает устаревшими все заказы и статистику
// вызывается, когда заказы поменялись в обход админки (новый заказ из checkout)
func (d *Dashboard) InvalidateOrders() int {
	return d.cache.Invalidate(querykey.OrdersAll()) + d.cache.Invalidate(querykey.OrderStatsKey())
}
