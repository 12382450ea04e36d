package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/repository/postgres"
)

func seedOrders(s *Store, n int, status func(i int) model.OrderStatus) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		s.PutOrder(model.Order{
			OrderNumber:   fmt.Sprintf("ORD-%03d", i),
			CustomerName:  fmt.Sprintf("Customer %d", i),
			CustomerPhone: fmt.Sprintf("900%07d", i),
			Status:        status(i),
			TotalPrice:    100,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestListPage(t *testing.T) {
	s := New()
	seedOrders(s, 120, func(int) model.OrderStatus { return model.StatusPending })
	ctx := context.Background()

	tests := []struct {
		page     int
		wantLen  int
		wantMore bool
		wantNext *int
		first    string
	}{
		{page: 0, wantLen: 50, wantMore: true, wantNext: ptr(1), first: "ORD-120"},
		{page: 1, wantLen: 50, wantMore: true, wantNext: ptr(2), first: "ORD-070"},
		{page: 2, wantLen: 20, wantMore: false, first: "ORD-020"},
		{page: 3, wantLen: 0, wantMore: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			p, err := s.ListPage(ctx, model.PageQuery{Page: tt.page, Limit: 50})
			require.NoError(t, err)
			assert.Len(t, p.Orders, tt.wantLen)
			assert.Equal(t, 120, p.TotalCount)
			assert.Equal(t, tt.wantMore, p.HasMore)
			assert.Equal(t, tt.wantNext, p.NextPage)
			if tt.first != "" {
				assert.Equal(t, tt.first, p.Orders[0].OrderNumber)
			}
		})
	}
}

func ptr(i int) *int { return &i }

func TestListPage_ExactMultipleHasNoMore(t *testing.T) {
	s := New()
	seedOrders(s, 100, func(int) model.OrderStatus { return model.StatusPending })

	p, err := s.ListPage(context.Background(), model.PageQuery{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, p.Orders, 50)
	assert.False(t, p.HasMore)
	assert.Nil(t, p.NextPage)
}

func TestSearchAndStats(t *testing.T) {
	s := New()
	seedOrders(s, 10, func(i int) model.OrderStatus {
		if i%5 == 0 {
			return model.StatusCancelled
		}
		return model.StatusDelivered
	})
	ctx := context.Background()

	found, err := s.Search(ctx, "customer 1", "", 0)
	require.NoError(t, err)
	require.Len(t, found, 2) // Customer 10, Customer 1
	assert.Equal(t, "ORD-010", found[0].OrderNumber)

	found, err = s.Search(ctx, "customer", string(model.StatusCancelled), 0)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = s.Search(ctx, "ord", model.StatusAll, 3)
	require.NoError(t, err)
	assert.Len(t, found, 3)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 8, stats.Delivered)
	assert.Equal(t, 2, stats.Cancelled)
	assert.Equal(t, 800.0, stats.TotalRevenue)
}

func TestOrderMutations(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := s.PutOrder(model.Order{OrderNumber: "ORD-1", Status: model.StatusPending})

	updated, err := s.UpdateStatus(ctx, o.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, updated.Status)

	_, err = s.CreateOrder(ctx, model.Order{OrderNumber: "ORD-1"})
	assert.ErrorIs(t, err, postgres.ErrOrderExists)

	require.NoError(t, s.Delete(ctx, o.ID))
	assert.ErrorIs(t, s.Delete(ctx, o.ID), postgres.ErrOrderNotFound)
	_, err = s.UpdateStatus(ctx, o.ID, model.StatusDelivered)
	assert.ErrorIs(t, err, postgres.ErrOrderNotFound)
}

func TestCategories(t *testing.T) {
	s := New()
	ctx := context.Background()

	c, err := s.AddCategory(ctx, model.NewCategory{Name: "Shirts", Slug: "shirts"})
	require.NoError(t, err)
	_, err = s.AddCategory(ctx, model.NewCategory{Name: "Shirts 2", Slug: "shirts"})
	assert.ErrorIs(t, err, postgres.ErrCategoryExists)

	s.PutProduct(model.Product{Name: "Linen shirt", CategoryID: c.ID})
	err = s.DeleteCategory(ctx, c.ID)
	assert.ErrorIs(t, err, postgres.ErrCategoryInUse)

	list, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ProductCount)

	assert.ErrorIs(t, s.DeleteCategory(ctx, 99), postgres.ErrCategoryNotFound)
}

func TestAdminByID(t *testing.T) {
	s := New()
	s.PutAdmin(model.AdminUser{ID: "a1", Email: "a1@example.com"})

	u, err := s.AdminByID(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "a1@example.com", u.Email)

	u, err = s.AdminByID(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)
}
