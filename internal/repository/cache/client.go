package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/asquebay/storefront-service/internal/querykey"
)

// ErrUnexpectedType возвращается типизированными обёртками,
// если в записи лежат данные другого типа
var ErrUnexpectedType = errors.New("cached data has unexpected type")

// ErrNoData — загрузка завершилась без ошибки, но ничего не вернула;
// такая запись считается ошибочной, а не успешной
var ErrNoData = errors.New("fetcher returned no data")

// Fetcher загружает данные для одного ключа
type Fetcher func(ctx context.Context) (any, error)

// Observer получает события кэша (метрики)
type Observer interface {
	CacheRequest(entity, result string)
	CacheFetch(entity string, err error)
	CacheEvicted(count int)
	MutationFinished(name string, committed bool)
}

type nopObserver struct{}

func (nopObserver) CacheRequest(string, string)   {}
func (nopObserver) CacheFetch(string, error)      {}
func (nopObserver) CacheEvicted(int)              {}
func (nopObserver) MutationFinished(string, bool) {}

// Client — единственный источник правды для загруженных данных:
// хранит записи по ключам, следит за свежестью, склеивает одинаковые
// загрузки и поддерживает оптимистичные мутации с откатом
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	seq     uint64

	clock      Clock
	obs        Observer
	log        *slog.Logger
	sweepEvery time.Duration
	lastSweep  time.Time
	retryable  func(error) bool

	bg sync.WaitGroup
}

// Option настраивает клиент
type Option func(*Client)

// WithRetryPolicy ограничивает повторы загрузки ошибками, для которых fn возвращает true
func WithRetryPolicy(fn func(error) bool) Option {
	return func(c *Client) { c.retryable = fn }
}

// WithClock подменяет источник времени
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithObserver подключает наблюдателя (метрики)
func WithObserver(obs Observer) Option {
	return func(c *Client) {
		if obs != nil {
			c.obs = obs
		}
	}
}

// WithSweepEvery задаёт, как часто чтения запускают сборку мусора
func WithSweepEvery(d time.Duration) Option {
	return func(c *Client) { c.sweepEvery = d }
}

// New создаёт пустой кэш
func New(log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		entries:    make(map[string]*entry),
		clock:      systemClock{},
		obs:        nopObserver{},
		log:        log,
		sweepEvery: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get возвращает данные по ключу
// свежие данные отдаются без загрузки; устаревшие по времени отдаются сразу,
// а обновление запускается в фоне; при отсутствии данных или после
// инвалидации вызов ждёт загрузку. одновременные загрузки одного ключа
// склеиваются в одну
func (c *Client) Get(ctx context.Context, key querykey.Key, fetch Fetcher, opts Options) (any, error) {
	now := c.clock.Now()

	c.mu.Lock()
	c.maybeSweepLocked(now)
	e := c.entryLocked(key, false, opts)
	e.lastRead = now

	if e.fresh(now) {
		data := e.data
		c.mu.Unlock()
		c.obs.CacheRequest(string(key.Entity()), "hit")
		return data, nil
	}

	if e.hasData() && !e.invalidated {
		// stale-while-revalidate: отдаём то, что есть, и обновляем в фоне
		data := e.data
		if !e.fetching {
			ch := c.fetchLocked(ctx, e, key.String(), fetch, storeData)
			c.background(ch)
		}
		c.mu.Unlock()
		c.obs.CacheRequest(string(key.Entity()), "stale")
		return data, nil
	}

	ch := c.fetchLocked(ctx, e, key.String(), fetch, storeData)
	c.mu.Unlock()
	c.obs.CacheRequest(string(key.Entity()), "miss")

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Query — типизированная обёртка над Get
func Query[T any](ctx context.Context, c *Client, key querykey.Key, fetch func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	data, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}, opts)
	if err != nil {
		return zero, err
	}
	if data == nil {
		return zero, nil
	}
	v, ok := data.(T)
	if !ok {
		return zero, fmt.Errorf("%s: %w", key, ErrUnexpectedType)
	}
	return v, nil
}

// Peek возвращает копию записи без чтения (не продлевает жизнь и не грузит)
func (c *Client) Peek(key querykey.Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return Snapshot{Key: key, Status: StatusIdle, IsStale: true}, false
	}
	return e.snapshot(c.clock.Now()), true
}

// Invalidate помечает устаревшими все записи с префиксом prefix
// незавершённые загрузки этих записей отбрасываются, следующее чтение грузит заново
func (c *Client) Invalidate(prefix querykey.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidateLocked(prefix)
}

func (c *Client) invalidateLocked(prefix querykey.Key) int {
	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		c.supersedeLocked(e)
		n++
	}
	if n > 0 {
		c.log.Debug("cache entries invalidated", slog.String("prefix", prefix.String()), slog.Int("count", n))
	}
	return n
}

// Len возвращает число записей
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Wait дожидается фоновых обновлений (для тестов и остановки)
func (c *Client) Wait() {
	c.bg.Wait()
}

// Run периодически выселяет неиспользуемые записи, пока не отменён ctx
func (c *Client) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep выселяет записи, которые не читались дольше своего GCTime
func (c *Client) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.clock.Now())
}

func (c *Client) maybeSweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.sweepEvery {
		return
	}
	c.sweepLocked(now)
}

func (c *Client) sweepLocked(now time.Time) int {
	c.lastSweep = now
	n := 0
	for k, e := range c.entries {
		if e.fetching || e.fetchingNext {
			continue
		}
		if now.Sub(e.lastRead) >= e.opts.GCTime {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.obs.CacheEvicted(n)
		c.log.Debug("cache entries evicted", slog.Int("count", n), slog.Int("remaining", len(c.entries)))
	}
	return n
}

func (c *Client) nextGen() uint64 {
	c.seq++
	return c.seq
}

// entryLocked возвращает запись по ключу, создавая пустую при отсутствии
func (c *Client) entryLocked(key querykey.Key, infinite bool, opts Options) *entry {
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{
			key:      key,
			infinite: infinite,
			status:   StatusIdle,
			gen:      c.nextGen(),
		}
		c.entries[k] = e
	}
	e.opts = opts
	return e
}

// supersedeLocked отбрасывает незавершённые загрузки записи:
// их результат относится к состоянию до оптимистичной правки или инвалидации
func (c *Client) supersedeLocked(e *entry) {
	e.gen = c.nextGen()
	for k := range e.inflight {
		c.group.Forget(k)
	}
	e.inflight = nil
	e.fetching = false
	e.fetchingNext = false
	if e.status == StatusLoading {
		if e.hasData() {
			e.status = StatusSuccess
		} else {
			e.status = StatusIdle
		}
	}
}

// storeFunc применяет результат загрузки к записи; вызывается под мьютексом
type storeFunc func(e *entry, val any, now time.Time)

func storeData(e *entry, val any, now time.Time) {
	e.data = val
	e.fetchedAt = now
	e.invalidated = false
}

// fetchLocked запускает (или присоединяется к) загрузку flightKey
// результат сохраняется, только если запись не была вытеснена или перезаписана
func (c *Client) fetchLocked(ctx context.Context, e *entry, flightKey string, fetch Fetcher, store storeFunc) <-chan singleflight.Result {
	gen := e.gen
	key := e.key
	retry := e.opts.Retry

	e.status = StatusLoading
	e.fetching = true
	if e.inflight == nil {
		e.inflight = make(map[string]struct{})
	}
	e.inflight[flightKey] = struct{}{}

	// загрузка общая для всех ожидающих, поэтому отмена одного вызова её не прерывает
	fetchCtx := context.WithoutCancel(ctx)

	return c.group.DoChan(flightKey, func() (any, error) {
		val, err := c.runFetch(fetchCtx, fetch, retry)
		c.obs.CacheFetch(string(key.Entity()), err)
		c.settle(key, flightKey, gen, val, err, store)
		return val, err
	})
}

func (c *Client) runFetch(ctx context.Context, fetch Fetcher, retry int) (val any, err error) {
	for attempt := 0; attempt <= retry; attempt++ {
		val, err = fetch(ctx)
		if err == nil && val == nil {
			return nil, ErrNoData
		}
		if err == nil {
			return val, nil
		}
		if c.retryable != nil && !c.retryable(err) {
			break
		}
	}
	return nil, err
}

func (c *Client) settle(key querykey.Key, flightKey string, gen uint64, val any, err error, store storeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok || e.gen != gen {
		c.log.Debug("discarding superseded fetch result", slog.String("key", flightKey))
		return
	}

	delete(e.inflight, flightKey)
	if len(e.inflight) == 0 {
		e.fetching = false
		e.fetchingNext = false
	}

	now := c.clock.Now()
	if err != nil {
		// последние удачные данные не трогаем
		e.status = StatusError
		e.err = err
		c.log.Debug("cache fetch failed", slog.String("key", flightKey), slog.String("error", err.Error()))
		return
	}

	store(e, val, now)
	e.status = StatusSuccess
	e.err = nil
}

func (c *Client) background(ch <-chan singleflight.Result) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		<-ch
	}()
}
