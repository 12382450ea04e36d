package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/repository/cache"
)

// DefaultDebounce — задержка между последним нажатием и поиском
const DefaultDebounce = 300 * time.Millisecond

// Mode — какой из двух запросов списка заказов сейчас включён
type Mode string

const (
	ModeInfinite Mode = "infinite"
	ModeSearch   Mode = "search"
)

// Filters — фильтры списка заказов
type Filters struct {
	Status string
}

// SelectMode включает поиск только при непустом тексте;
// один фильтр по статусу уточняет постраничный список, а не включает поиск
func SelectMode(searchText string, _ Filters) Mode {
	if strings.TrimSpace(searchText) != "" {
		return ModeSearch
	}
	return ModeInfinite
}

// View — единый вид списка заказов в любом режиме
type View struct {
	Mode               Mode
	Search             string
	Status             string
	Items              []model.Order
	TotalCount         int
	IsLoading          bool
	Err                error
	HasNextPage        bool
	IsFetchingNextPage bool
}

// Browser — состояние экрана заказов: текст поиска с задержкой и фильтр статуса
// в каждый момент выполняется только запрос текущего режима
type Browser struct {
	d        *Dashboard
	ctx      context.Context
	debounce time.Duration
	onSettle func(View)

	mu      sync.Mutex
	typed   string
	settled string
	filters Filters
	timer   *time.Timer
	seq     uint64
	closed  bool
}

// NewBrowser создаёт экран; onSettle (может быть nil) получает вид
// после каждого применённого изменения текста или фильтра.
// ctx используется загрузками, запущенными таймером
func (d *Dashboard) NewBrowser(ctx context.Context, debounce time.Duration, onSettle func(View)) *Browser {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Browser{d: d, ctx: ctx, debounce: debounce, onSettle: onSettle}
}

// Type запоминает набранный текст; поиск увидит его только после паузы,
// каждое нажатие перезапускает ожидание
func (b *Browser) Type(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.typed = text
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, func() { b.settle(text) })
}

func (b *Browser) settle(text string) {
	b.mu.Lock()
	if b.closed || b.typed != text || b.settled == text {
		b.mu.Unlock()
		return
	}
	b.settled = text
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	b.publish(seq)
}

// Flush применяет набранный текст без ожидания
func (b *Browser) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	text := b.typed
	b.mu.Unlock()

	b.settle(text)
}

// SetStatus меняет фильтр статуса сразу, без задержки
func (b *Browser) SetStatus(status string) {
	b.mu.Lock()
	if b.closed || b.filters.Status == status {
		b.mu.Unlock()
		return
	}
	b.filters.Status = status
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	b.publish(seq)
}

// publish загружает вид и отдаёт его, если за время загрузки состояние не сменилось
func (b *Browser) publish(seq uint64) {
	if b.onSettle == nil {
		return
	}
	v := b.View(b.ctx)

	b.mu.Lock()
	current := seq == b.seq && !b.closed
	b.mu.Unlock()
	if current {
		b.onSettle(v)
	}
}

// Mode — режим для применённого текста и фильтров
func (b *Browser) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return SelectMode(b.settled, b.filters)
}

func (b *Browser) state() (string, Filters) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settled, b.filters
}

// View загружает запрос текущего режима и возвращает единый вид
func (b *Browser) View(ctx context.Context) View {
	text, filters := b.state()
	v := View{Mode: SelectMode(text, filters), Search: strings.TrimSpace(text), Status: filters.Status}

	if v.Mode == ModeSearch {
		orders, err := b.d.SearchOrders(ctx, v.Search, filters.Status)
		v.Items = orders
		v.TotalCount = len(orders)
		v.Err = err
		return v
	}

	_, err := b.d.OrdersFirstPage(ctx, filters.Status)
	return b.infiniteView(v, err)
}

func (b *Browser) infiniteView(v View, err error) View {
	snap := b.d.InfiniteOrders(v.Status)
	v.Items = cache.Items[model.Order](snap.Pages)
	v.HasNextPage = snap.HasNextPage()
	v.IsFetchingNextPage = snap.IsFetchingNextPage
	v.IsLoading = snap.IsLoading()
	if n := len(snap.Pages); n > 0 {
		v.TotalCount = snap.Pages[n-1].TotalCount
	}
	v.Err = err
	if v.Err == nil {
		v.Err = snap.Err
	}
	return v
}

// FetchNextPage догружает страницу списка; в режиме поиска ничего не делает
func (b *Browser) FetchNextPage(ctx context.Context) (View, error) {
	text, filters := b.state()
	v := View{Mode: SelectMode(text, filters), Search: strings.TrimSpace(text), Status: filters.Status}
	if v.Mode == ModeSearch {
		return b.View(ctx), nil
	}

	_, err := b.d.FetchNextOrders(ctx, filters.Status)
	if errors.Is(err, cache.ErrNoNextPage) {
		err = nil
	}
	if err != nil {
		return b.infiniteView(v, err), err
	}
	return b.infiniteView(v, nil), nil
}

// Close останавливает ожидание; после закрытия изменения не применяются
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
}
