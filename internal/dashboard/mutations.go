package dashboard

import (
	"context"
	"log/slog"

	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/querykey"
	"github.com/asquebay/storefront-service/internal/repository/cache"
	"github.com/asquebay/storefront-service/internal/storage"
)

type statusChange struct {
	id     int64
	status model.OrderStatus
}

// UpdateOrderStatus меняет статус заказа
// все закэшированные копии заказа показывают новый статус ещё до ответа хранилища;
// при ошибке кэш возвращается к снимку, при успехе списки и статистика инвалидируются
func (d *Dashboard) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	return cache.Mutate(ctx, d.cache, cache.Mutation[statusChange, model.Order]{
		Name: "update-order-status",
		Fn: func(ctx context.Context, v statusChange) (model.Order, error) {
			return d.orders.UpdateOrderStatus(ctx, v.id, v.status)
		},
		OnMutate: func(tx *cache.Tx, v statusChange) {
			tx.Snapshot(querykey.OrdersAll(), querykey.OrderStatsKey())
			setStatus := func(o model.Order) (model.Order, bool) {
				if o.ID == v.id {
					o.Status = v.status
				}
				return o, true
			}
			tx.SetPages(querykey.OrdersInfinitePrefix(), func(p cache.Page) cache.Page {
				return patchPage(p, setStatus)
			})
			tx.SetData(querykey.OrdersAll(), func(old any) any {
				return patchOrders(old, setStatus)
			})
		},
		Invalidate: func(statusChange, model.Order) []querykey.Key {
			return []querykey.Key{querykey.OrdersAll(), querykey.OrderStatsKey()}
		},
		OnError: func(err error, v statusChange) {
			d.log.Warn("order status update rolled back",
				slog.Int64("order_id", v.id),
				slog.String("status", string(v.status)),
				slog.String("error", err.Error()),
			)
		},
	}, statusChange{id: id, status: status})
}

// DeleteOrder удаляет заказ; из закэшированных списков он пропадает сразу
func (d *Dashboard) DeleteOrder(ctx context.Context, id int64) error {
	_, err := cache.Mutate(ctx, d.cache, cache.Mutation[int64, struct{}]{
		Name: "delete-order",
		Fn: func(ctx context.Context, id int64) (struct{}, error) {
			return struct{}{}, d.orders.DeleteOrder(ctx, id)
		},
		OnMutate: func(tx *cache.Tx, id int64) {
			tx.Snapshot(querykey.OrdersAll(), querykey.OrderStatsKey())
			drop := func(o model.Order) (model.Order, bool) { return o, o.ID != id }
			tx.SetPageList(querykey.OrdersInfinitePrefix(), func(pages []cache.Page) []cache.Page {
				return dropFromPages(pages, id)
			})
			tx.SetData(querykey.OrdersAll(), func(old any) any {
				return patchOrders(old, drop)
			})
		},
		Invalidate: func(int64, struct{}) []querykey.Key {
			return []querykey.Key{querykey.OrdersAll(), querykey.OrderStatsKey()}
		},
		OnError: func(err error, id int64) {
			d.log.Warn("order deletion rolled back", slog.Int64("order_id", id), slog.String("error", err.Error()))
		},
	}, id)
	return err
}

// AddCategory создаёт категорию; список категорий перечитывается
func (d *Dashboard) AddCategory(ctx context.Context, in model.NewCategory) (model.Category, error) {
	return cache.Mutate(ctx, d.cache, cache.Mutation[model.NewCategory, model.Category]{
		Name: "add-category",
		Fn:   d.catalog.AddCategory,
		Invalidate: func(model.NewCategory, model.Category) []querykey.Key {
			return []querykey.Key{querykey.CategoriesAll()}
		},
	}, in)
}

// DeleteCategory убирает категорию из кэша сразу и возвращает её, если удаление отклонено
func (d *Dashboard) DeleteCategory(ctx context.Context, id int64) error {
	_, err := cache.Mutate(ctx, d.cache, cache.Mutation[int64, struct{}]{
		Name: "delete-category",
		Fn: func(ctx context.Context, id int64) (struct{}, error) {
			return struct{}{}, d.catalog.DeleteCategory(ctx, id)
		},
		OnMutate: func(tx *cache.Tx, id int64) {
			tx.Snapshot(querykey.CategoriesAll())
			tx.SetData(querykey.CategoriesAll(), func(old any) any {
				categories, ok := old.([]model.Category)
				if !ok {
					return old
				}
				out := make([]model.Category, 0, len(categories))
				for _, c := range categories {
					if c.ID != id {
						out = append(out, c)
					}
				}
				return out
			})
		},
		Invalidate: func(int64, struct{}) []querykey.Key {
			return []querykey.Key{querykey.CategoriesAll()}
		},
		OnError: func(err error, id int64) {
			d.log.Warn("category deletion rolled back", slog.Int64("category_id", id), slog.String("error", err.Error()))
		},
	}, id)
	return err
}

type newProduct struct {
	in     model.NewProduct
	images []storage.Image
}

// AddProduct создаёт товар; меняются и товары, и счётчики товаров в категориях
func (d *Dashboard) AddProduct(ctx context.Context, in model.NewProduct, images []storage.Image) (model.Product, error) {
	return cache.Mutate(ctx, d.cache, cache.Mutation[newProduct, model.Product]{
		Name: "add-product",
		Fn: func(ctx context.Context, v newProduct) (model.Product, error) {
			return d.catalog.AddProduct(ctx, v.in, v.images)
		},
		Invalidate: func(newProduct, model.Product) []querykey.Key {
			return []querykey.Key{querykey.ProductsAll(), querykey.CategoriesAll()}
		},
	}, newProduct{in: in, images: images})
}

// patchOrders применяет fn к заказам в данных записи: к списку или к одному заказу
// fn возвращает false, чтобы убрать заказ из списка; одиночный заказ не убирается
func patchOrders(old any, fn func(model.Order) (model.Order, bool)) any {
	switch v := old.(type) {
	case []model.Order:
		out := make([]model.Order, 0, len(v))
		for _, o := range v {
			if o, keep := fn(o); keep {
				out = append(out, o)
			}
		}
		return out
	case model.Order:
		o, _ := fn(v)
		return o
	default:
		return old
	}
}

// patchPage правит заказы одной страницы, не меняя счётчиков
func patchPage(p cache.Page, fn func(model.Order) (model.Order, bool)) cache.Page {
	orders, ok := p.Items.([]model.Order)
	if !ok {
		return p
	}
	p.Items = patchOrders(orders, fn).([]model.Order)
	return p
}

// dropFromPages убирает заказ из загруженных страниц;
// totalCount уменьшается на каждой странице, потому что вид берёт его с последней
func dropFromPages(pages []cache.Page, id int64) []cache.Page {
	found := false
	for _, p := range pages {
		orders, _ := p.Items.([]model.Order)
		if _, ok := findOrderByID(orders, id); ok {
			found = true
			break
		}
	}
	if !found {
		return pages
	}

	drop := func(o model.Order) (model.Order, bool) { return o, o.ID != id }
	for i, p := range pages {
		p = patchPage(p, drop)
		if p.TotalCount > 0 {
			p.TotalCount--
		}
		pages[i] = p
	}
	return pages
}

func findOrderByID(orders []model.Order, id int64) (model.Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}
