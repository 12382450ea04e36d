package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asquebay/storefront-service/internal/auth"
	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/lib/logger"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/querykey"
	"github.com/asquebay/storefront-service/internal/ratelimit"
	"github.com/asquebay/storefront-service/internal/repository/cache"
	"github.com/asquebay/storefront-service/internal/repository/memory"
	"github.com/asquebay/storefront-service/internal/service"
	"github.com/asquebay/storefront-service/internal/storage"
)

type allowAll struct{}

func (allowAll) CheckAdminAuth(ctx context.Context) auth.Result {
	return auth.Result{Authorized: true, User: &model.AdminUser{ID: "admin"}}
}

// countingOrders считает обращения к функциям доступа и умеет
// задержать или уронить смену статуса
type countingOrders struct {
	*service.OrderService

	mu        sync.Mutex
	calls     map[string]int
	searches  []string
	started   chan struct{}
	gate      chan struct{}
	updateErr error
}

func (c *countingOrders) count(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *countingOrders) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *countingOrders) ListOrders(ctx context.Context, q model.PageQuery) (model.OrderPage, error) {
	c.count("list")
	return c.OrderService.ListOrders(ctx, q)
}

func (c *countingOrders) SearchOrders(ctx context.Context, query, status string) ([]model.Order, error) {
	c.count("search")
	c.mu.Lock()
	c.searches = append(c.searches, query)
	c.mu.Unlock()
	return c.OrderService.SearchOrders(ctx, query, status)
}

func (c *countingOrders) GetOrderStats(ctx context.Context) (model.OrderStats, error) {
	c.count("stats")
	return c.OrderService.GetOrderStats(ctx)
}

func (c *countingOrders) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	c.count("update")
	if c.started != nil {
		close(c.started)
	}
	if c.gate != nil {
		<-c.gate
	}
	if c.updateErr != nil {
		return model.Order{}, c.updateErr
	}
	return c.OrderService.UpdateOrderStatus(ctx, id, status)
}

func (c *countingOrders) DeleteOrder(ctx context.Context, id int64) error {
	c.count("delete")
	if c.started != nil {
		close(c.started)
	}
	if c.gate != nil {
		<-c.gate
	}
	return c.OrderService.DeleteOrder(ctx, id)
}

var testTimes = config.Cache{
	Stats:      config.QueryTimes{StaleTime: 5 * time.Minute, GCTime: 10 * time.Minute},
	Orders:     config.QueryTimes{StaleTime: 2 * time.Minute, GCTime: 5 * time.Minute},
	Search:     config.QueryTimes{StaleTime: time.Minute, GCTime: 3 * time.Minute},
	Categories: config.QueryTimes{StaleTime: 5 * time.Minute, GCTime: 10 * time.Minute},
	Products:   config.QueryTimes{StaleTime: 5 * time.Minute, GCTime: 10 * time.Minute},
}

type fixture struct {
	d      *Dashboard
	store  *memory.Store
	orders *countingOrders
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()
	store := memory.New()

	limits := config.RateLimit{
		PhoneSearch: config.Limit{MaxRequests: 10, Window: time.Minute},
		OrderNumber: config.Limit{MaxRequests: 20, Window: time.Minute},
	}
	orders := &countingOrders{
		OrderService: service.NewOrderService(store, allowAll{}, ratelimit.New(), limits, config.Search{MaxResults: 1000}, log),
		calls:        make(map[string]int),
	}
	catalog := service.NewCatalogService(store, allowAll{}, storage.NewLocal(t.TempDir(), "/uploads"), log)

	c := cache.New(log, cache.WithRetryPolicy(func(err error) bool { return apperr.Is(err, apperr.Internal) }))
	t.Cleanup(c.Wait)

	d := New(c, orders, catalog, testTimes, config.Search{PageSize: 50}, log)
	return &fixture{d: d, store: store, orders: orders}
}

// seed создаёт n заказов; заказ i создан на i минут позже первого
func (f *fixture) seed(n int, status func(i int) model.OrderStatus) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		f.store.PutOrder(model.Order{
			ID:              int64(i),
			OrderNumber:     fmt.Sprintf("ORD-%03d", i),
			CustomerName:    fmt.Sprintf("Customer %d", i),
			CustomerPhone:   fmt.Sprintf("900%07d", i),
			Status:          status(i),
			TotalPrice:      10,
			ShippingAddress: "Main st",
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
			Items:           []model.OrderItem{{ProductName: "Cap", Quantity: 1, UnitPrice: 10, Subtotal: 10}},
		})
	}
}

func allPending(int) model.OrderStatus { return model.StatusPending }

func findOrder(orders []model.Order, id int64) (model.Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}

func TestUpdateOrderStatus_OptimisticThenStatsInvalidated(t *testing.T) {
	f := newFixture(t)
	f.seed(60, allPending)
	ctx := context.Background()

	_, err := f.d.OrdersFirstPage(ctx, "")
	require.NoError(t, err)
	_, err = f.d.SearchOrders(ctx, "Customer 42", "")
	require.NoError(t, err)
	stats, err := f.d.OrderStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 60, stats.Pending)
	require.Equal(t, 1, f.orders.Calls("stats"))

	f.orders.started = make(chan struct{})
	f.orders.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.d.UpdateOrderStatus(ctx, 42, model.StatusConfirmed)
		done <- err
	}()

	<-f.orders.started
	// хранилище ещё не ответило, а кэш уже показывает новый статус
	snap := f.d.InfiniteOrders("")
	o, ok := findOrder(cache.Items[model.Order](snap.Pages), 42)
	require.True(t, ok)
	assert.Equal(t, model.StatusConfirmed, o.Status)

	found, err := f.d.SearchOrders(ctx, "Customer 42", "")
	require.NoError(t, err)
	o, ok = findOrder(found, 42)
	require.True(t, ok)
	assert.Equal(t, model.StatusConfirmed, o.Status)

	close(f.orders.gate)
	require.NoError(t, <-done)

	statsSnap, ok := f.d.Cache().Peek(querykey.OrderStatsKey())
	require.True(t, ok)
	assert.True(t, statsSnap.IsStale)

	stats, err = f.d.OrderStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.orders.Calls("stats"), "stats must be refetched after the mutation")
	assert.Equal(t, 59, stats.Pending)
	assert.Equal(t, 1, stats.Confirmed)
}

func TestUpdateOrderStatus_FailureRestoresCache(t *testing.T) {
	f := newFixture(t)
	f.seed(10, allPending)
	ctx := context.Background()

	_, err := f.d.OrdersFirstPage(ctx, "")
	require.NoError(t, err)
	_, err = f.d.SearchOrders(ctx, "Customer", "")
	require.NoError(t, err)
	_, err = f.d.OrderStats(ctx)
	require.NoError(t, err)

	keys := []querykey.Key{querykey.OrdersInfinite(""), querykey.OrdersSearch("Customer", ""), querykey.OrderStatsKey()}
	before := make([]cache.Snapshot, len(keys))
	for i, k := range keys {
		before[i], _ = f.d.Cache().Peek(k)
	}

	f.orders.updateErr = apperr.Wrap(errors.New("timeout"), "Failed to update order status")
	_, err = f.d.UpdateOrderStatus(ctx, 3, model.StatusDelivered)
	require.Error(t, err)
	assert.Equal(t, "Failed to update order status", apperr.Message(err))

	for i, k := range keys {
		after, _ := f.d.Cache().Peek(k)
		assert.Equal(t, before[i], after, k.String())
	}
}

func TestDeleteOrder_ListRefetchedWithoutOrder(t *testing.T) {
	f := newFixture(t)
	f.seed(5, allPending)
	ctx := context.Background()

	_, err := f.d.OrdersFirstPage(ctx, "")
	require.NoError(t, err)

	require.NoError(t, f.d.DeleteOrder(ctx, 2))

	// после инвалидации список перечитывается и заказа там уже нет
	page, err := f.d.OrdersFirstPage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalCount)
	_, ok := findOrder(page.Items.([]model.Order), 2)
	assert.False(t, ok)
	assert.Equal(t, 2, f.orders.Calls("list"))
}

func TestDropFromPages(t *testing.T) {
	pages := func() []cache.Page {
		return []cache.Page{
			{Param: 0, Items: []model.Order{{ID: 1}, {ID: 2}}, TotalCount: 4},
			{Param: 1, Items: []model.Order{{ID: 3}, {ID: 4}}, TotalCount: 4},
		}
	}

	got := dropFromPages(pages(), 1)
	assert.Equal(t, []model.Order{{ID: 2}}, got[0].Items)
	assert.Equal(t, []model.Order{{ID: 3}, {ID: 4}}, got[1].Items)
	for _, p := range got {
		assert.Equal(t, 3, p.TotalCount)
	}

	// заказа нет ни на одной странице: счётчики не трогаются
	got = dropFromPages(pages(), 99)
	assert.Equal(t, pages(), got)
}

func TestDeleteOrder_OptimisticAcrossPages(t *testing.T) {
	f := newFixture(t)
	f.seed(60, allPending)
	ctx := context.Background()

	_, err := f.d.OrdersFirstPage(ctx, "")
	require.NoError(t, err)
	_, err = f.d.FetchNextOrders(ctx, "")
	require.NoError(t, err)
	require.Len(t, f.d.InfiniteOrders("").Pages, 2)

	f.orders.started = make(chan struct{})
	f.orders.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		// заказ 60 самый новый, он на первой странице
		done <- f.d.DeleteOrder(ctx, 60)
	}()

	<-f.orders.started
	snap := f.d.InfiniteOrders("")
	items := cache.Items[model.Order](snap.Pages)
	assert.Len(t, items, 59)
	_, ok := findOrder(items, 60)
	assert.False(t, ok)
	for _, p := range snap.Pages {
		assert.Equal(t, 59, p.TotalCount)
	}

	close(f.orders.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.orders.Calls("delete"))
}

func TestDeleteCategory_ConflictRestoresCachedList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shirts, err := f.d.AddCategory(ctx, model.NewCategory{Name: "Shirts"})
	require.NoError(t, err)
	_, err = f.d.AddCategory(ctx, model.NewCategory{Name: "Hats"})
	require.NoError(t, err)
	for range 3 {
		f.store.PutProduct(model.Product{Name: "Tee", CategoryID: shirts.ID, SizeType: model.SizeAlpha})
	}

	categories, err := f.d.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	before, _ := f.d.Cache().Peek(querykey.CategoriesList())

	err = f.d.DeleteCategory(ctx, shirts.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Conflict))
	assert.Equal(t, "Cannot delete category. 3 product(s) are using it.", apperr.Message(err))

	after, _ := f.d.Cache().Peek(querykey.CategoriesList())
	assert.Equal(t, before, after)

	categories, err = f.d.Categories(ctx)
	require.NoError(t, err)
	var ids []int64
	for _, c := range categories {
		ids = append(ids, c.ID)
	}
	assert.Contains(t, ids, shirts.ID)
}

func TestAddProduct_InvalidatesProductsAndCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.d.AddCategory(ctx, model.NewCategory{Name: "Shirts"})
	require.NoError(t, err)
	categories, err := f.d.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, categories[0].ProductCount)
	products, err := f.d.Products(ctx)
	require.NoError(t, err)
	require.Empty(t, products)

	_, err = f.d.AddProduct(ctx, model.NewProduct{
		Name:        "Oxford shirt",
		Description: "Classic cotton shirt",
		Price:       30,
		Color:       "blue",
		CategoryID:  c.ID,
		SizeType:    model.SizeNumeric,
		Status:      model.ProductActive,
		Variants:    []model.Variant{{Size: "10", Stock: 3}, {Size: "9", Stock: 1}, {Size: "12", Stock: 2}},
	}, []storage.Image{{Filename: "front.jpg", Body: strings.NewReader("img")}})
	require.NoError(t, err)

	products, err = f.d.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	// "9" < "10" < "12" по значению, хотя лексически "10" шло бы первым
	sizes := make([]string, 0, len(products[0].Variants))
	for _, v := range products[0].Variants {
		sizes = append(sizes, v.Size)
	}
	assert.Equal(t, []string{"9", "10", "12"}, sizes)

	categories, err = f.d.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, categories[0].ProductCount)
}

func TestInvalidateOrders_ForcesRefetch(t *testing.T) {
	f := newFixture(t)
	f.seed(3, allPending)
	ctx := context.Background()

	_, err := f.d.OrderStats(ctx)
	require.NoError(t, err)
	_, err = f.d.OrdersFirstPage(ctx, "")
	require.NoError(t, err)

	f.seed(4, allPending)
	assert.Equal(t, 2, f.d.InvalidateOrders())

	stats, err := f.d.OrderStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	page, err := f.d.OrdersFirstPage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalCount)
}

func TestCustomerLookups_CachedByNormalizedInput(t *testing.T) {
	f := newFixture(t)
	f.seed(2, allPending)
	ctx := context.Background()

	o, err := f.d.CustomerOrder(ctx, " ord-001 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.ID)

	_, ok := f.d.Cache().Peek(querykey.OrderByNumber("ORD-001"))
	assert.True(t, ok)

	orders, err := f.d.CustomerOrders(ctx, "9000000002")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(2), orders[0].ID)

	_, err = f.d.CustomerOrder(ctx, "ORD-999")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}
