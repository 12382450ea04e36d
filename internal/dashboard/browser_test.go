package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asquebay/storefront-service/internal/model"
)

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		filters Filters
		want    Mode
	}{
		{name: "empty", want: ModeInfinite},
		{name: "blank text", text: "   ", want: ModeInfinite},
		{name: "status only", filters: Filters{Status: "pending"}, want: ModeInfinite},
		{name: "text", text: "anna", want: ModeSearch},
		{name: "text and status", text: " anna ", filters: Filters{Status: "all"}, want: ModeSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectMode(tt.text, tt.filters))
		})
	}
}

func TestBrowser_OnlyCurrentModeQueries(t *testing.T) {
	f := newFixture(t)
	f.seed(5, allPending)
	ctx := context.Background()
	b := f.d.NewBrowser(ctx, time.Hour, nil)
	defer b.Close()

	v := b.View(ctx)
	assert.Equal(t, ModeInfinite, v.Mode)
	assert.Len(t, v.Items, 5)
	assert.Equal(t, 1, f.orders.Calls("list"))
	assert.Zero(t, f.orders.Calls("search"))

	b.Type("Customer 3")
	// до истечения задержки режим не меняется
	assert.Equal(t, ModeInfinite, b.Mode())
	b.Flush()
	assert.Equal(t, ModeSearch, b.Mode())

	v = b.View(ctx)
	assert.Equal(t, ModeSearch, v.Mode)
	require.Len(t, v.Items, 1)
	assert.Equal(t, int64(3), v.Items[0].ID)
	assert.False(t, v.HasNextPage)
	assert.Equal(t, 1, f.orders.Calls("search"))

	// в режиме поиска догрузка страниц ничего не запрашивает
	v, err := b.FetchNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeSearch, v.Mode)
	assert.Equal(t, 1, f.orders.Calls("list"))

	b.Type("")
	b.Flush()
	v = b.View(ctx)
	assert.Equal(t, ModeInfinite, v.Mode)
	assert.Len(t, v.Items, 5)
	assert.Equal(t, 1, f.orders.Calls("list"), "fresh first page is served from cache")
	assert.Equal(t, 1, f.orders.Calls("search"))
}

func TestBrowser_StatusFilterStaysInfinite(t *testing.T) {
	f := newFixture(t)
	f.seed(6, func(i int) model.OrderStatus {
		if i%2 == 0 {
			return model.StatusDelivered
		}
		return model.StatusPending
	})
	ctx := context.Background()
	b := f.d.NewBrowser(ctx, time.Hour, nil)
	defer b.Close()

	b.SetStatus(string(model.StatusDelivered))
	v := b.View(ctx)
	assert.Equal(t, ModeInfinite, v.Mode)
	require.Len(t, v.Items, 3)
	for _, o := range v.Items {
		assert.Equal(t, model.StatusDelivered, o.Status)
	}
	assert.Zero(t, f.orders.Calls("search"))
}

func TestBrowser_InfinitePages(t *testing.T) {
	f := newFixture(t)
	f.seed(120, allPending)
	ctx := context.Background()
	b := f.d.NewBrowser(ctx, time.Hour, nil)
	defer b.Close()

	v := b.View(ctx)
	assert.Len(t, v.Items, 50)
	assert.True(t, v.HasNextPage)
	assert.Equal(t, 120, v.TotalCount)

	v, err := b.FetchNextPage(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Items, 100)
	assert.True(t, v.HasNextPage)

	v, err = b.FetchNextPage(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Items, 120)
	assert.False(t, v.HasNextPage)
	assert.False(t, v.IsFetchingNextPage)

	// конец списка: повторная догрузка ничего не меняет
	v, err = b.FetchNextPage(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Items, 120)
	assert.Equal(t, 3, f.orders.Calls("list"))

	seen := make(map[int64]bool, len(v.Items))
	for i, o := range v.Items {
		assert.False(t, seen[o.ID], "duplicate order %d", o.ID)
		seen[o.ID] = true
		assert.Equal(t, int64(120-i), o.ID)
	}
}

func TestBrowser_DebounceIsTrailing(t *testing.T) {
	f := newFixture(t)
	f.seed(5, allPending)
	ctx := context.Background()

	views := make(chan View, 10)
	b := f.d.NewBrowser(ctx, 30*time.Millisecond, func(v View) { views <- v })
	defer b.Close()

	for _, text := range []string{"C", "Cu", "Cus", "Customer 4"} {
		b.Type(text)
	}

	select {
	case v := <-views:
		assert.Equal(t, ModeSearch, v.Mode)
		assert.Equal(t, "Customer 4", v.Search)
		require.Len(t, v.Items, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced search did not settle")
	}

	select {
	case v := <-views:
		t.Fatalf("unexpected extra view for %q", v.Search)
	case <-time.After(100 * time.Millisecond):
	}

	f.orders.mu.Lock()
	defer f.orders.mu.Unlock()
	assert.Equal(t, []string{"Customer 4"}, f.orders.searches)
}

func TestBrowser_ClosedIgnoresInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	views := make(chan View, 1)
	b := f.d.NewBrowser(ctx, 10*time.Millisecond, func(v View) { views <- v })
	b.Type("anything")
	b.Close()

	select {
	case <-views:
		t.Fatal("closed browser must not publish")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, f.orders.Calls("search"))
}
